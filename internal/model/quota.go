package model

import "time"

// Quota is a capacity pool shared across a set of items and item
// variations.  Its consumption is the sum of paid order positions,
// pending order positions and live cart positions for anything it
// covers; the remaining capacity is recomputed from those sets on
// every check and never stored as a running counter.
//
// Multiple quotas may cover overlapping items.  An item's true
// availability is the minimum remaining capacity across all quotas
// covering it.
//
// Fields:
//  ID           – primary key identifier.
//  EventID      – event owning this quota.
//  SubeventID   – optional subevent scope; when set, only consumption
//                 within that subevent counts against the quota.
//  Name         – display name, e.g. "Standing room".
//  Size         – capacity; nil means unlimited.
//  ItemIDs      – covered items without variations.
//  VariationIDs – covered item variations.
//  CreatedAt    – timestamp when the record was created.
type Quota struct {
	ID           int64     // quotas.id
	EventID      int64     // quotas.event_id
	SubeventID   *int64    // quotas.subevent_id (nullable)
	Name         string    // quotas.name
	Size         *int64    // quotas.size (nullable = unlimited)
	ItemIDs      []int64   // quota_items.item_id
	VariationIDs []int64   // quota_variations.variation_id
	CreatedAt    time.Time // quotas.created_at
}

// Covers reports whether a position for the given item/variation
// consumes this quota.  Positions carrying a variation are matched
// against the variation coverage; bare items against the item
// coverage.
func (q *Quota) Covers(itemID int64, variationID *int64) bool {
	if variationID != nil {
		for _, v := range q.VariationIDs {
			if v == *variationID {
				return true
			}
		}
		return false
	}
	for _, i := range q.ItemIDs {
		if i == itemID {
			return true
		}
	}
	return false
}
