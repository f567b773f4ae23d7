package model

import "time"

// OrderStatus enumerates the lifecycle states of an order.  Pending
// orders still consume quota until they expire or are cancelled; paid
// orders consume quota permanently until cancellation or refund.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderExpired   OrderStatus = "EXPIRED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Consuming reports whether positions of an order in this status
// count toward quota consumption.
func (s OrderStatus) Consuming() bool {
	return s == OrderPending || s == OrderPaid
}

// Order is a durable purchase: either confirmed (paid) or awaiting
// payment (pending).  ExpiresAt is the payment due date computed from
// the event's payment terms; a pending order past it is expired by
// the sweeper and stops consuming quota.
//
// Fields:
//  ID         – primary key identifier.
//  Code       – short human-facing order code.
//  EventID    – event this order was placed for.
//  Status     – lifecycle state, see OrderStatus.
//  TotalCents – total price of all positions in cents.
//  ExpiresAt  – payment due date for pending orders.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Order struct {
	ID         int64       // orders.id
	Code       string      // orders.code
	EventID    int64       // orders.event_id
	Status     OrderStatus // orders.status
	TotalCents uint32      // orders.total_cents
	ExpiresAt  time.Time   // orders.expires_at
	CreatedAt  time.Time   // orders.created_at
	UpdatedAt  time.Time   // orders.updated_at
}

// OrderPosition binds one unit of an item or variation to an order at
// a fixed price.  Positions are cascade-deleted with their order.
type OrderPosition struct {
	ID          int64  // order_positions.id
	OrderID     int64  // order_positions.order_id
	EventID     int64  // order_positions.event_id (denormalized for counting)
	ItemID      int64  // order_positions.item_id
	VariationID *int64 // order_positions.variation_id (nullable)
	SubeventID  *int64 // order_positions.subevent_id (nullable)
	PriceCents  uint32 // order_positions.price_cents
}
