package model

import "time"

// CartPosition is a temporary, time-boxed claim on one unit of an
// item or variation, identified by a cart session key.  It counts
// toward quota consumption only while ExpiresAt is in the future;
// once expired it is logically absent even before the sweeper has
// physically deleted the row.  A cart position is not an order and is
// never invoiced.
//
// Fields:
//  ID          – primary key identifier.
//  EventID     – event the claimed item belongs to.
//  SessionKey  – opaque cart/session identifier supplied by the caller.
//  ItemID      – claimed item.
//  VariationID – claimed variation (nullable).
//  SubeventID  – subevent scope (nullable).
//  PriceCents  – price at the time the position was added.
//  Token       – random token returned to the client for correlation.
//  ExpiresAt   – when the claim lapses.
//  CreatedAt   – when the claim was created.
type CartPosition struct {
	ID          int64     // cart_positions.id
	EventID     int64     // cart_positions.event_id
	SessionKey  string    // cart_positions.session_key
	ItemID      int64     // cart_positions.item_id
	VariationID *int64    // cart_positions.variation_id (nullable)
	SubeventID  *int64    // cart_positions.subevent_id (nullable)
	PriceCents  uint32    // cart_positions.price_cents
	Token       string    // cart_positions.token
	ExpiresAt   time.Time // cart_positions.expires_at
	CreatedAt   time.Time // cart_positions.created_at
}

// Live reports whether the position still counts toward quota
// consumption at the given instant.
func (p *CartPosition) Live(now time.Time) bool {
	return p.ExpiresAt.After(now)
}
