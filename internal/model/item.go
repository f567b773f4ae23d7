package model

import "time"

// Item is a sellable product belonging to exactly one event, e.g. a
// ticket category.  Capacity is never attached to the item itself;
// it comes from the quotas covering the item (see Quota).
type Item struct {
	ID                int64     // items.id
	EventID           int64     // items.event_id
	Name              string    // items.name
	DefaultPriceCents uint32    // items.default_price_cents
	Active            bool      // items.active
	CreatedAt         time.Time // items.created_at
}

// ItemVariation is an optional variant of an item (e.g. a size).  A
// variation always references exactly one parent item.  When an item
// has variations, quota coverage and cart/order positions reference
// the variation rather than the bare item.
type ItemVariation struct {
	ID         int64   // item_variations.id
	ItemID     int64   // item_variations.item_id
	Value      string  // item_variations.value
	PriceCents *uint32 // item_variations.price_cents (nullable, falls back to item default)
}
