// Package queue defines message payloads exchanged over the message
// broker and the background consumer that triggers inventory sweeps.
package queue

// OrderConfirmedEvent is published when the order pipeline persists a
// new order.  It carries enough information for downstream consumers
// (notifications, analytics) without querying the primary database.
type OrderConfirmedEvent struct {
	OrderID    int64  `json:"order_id"`
	Code       string `json:"code"`
	EventID    int64  `json:"event_id"`
	Positions  int    `json:"positions"`
	TotalCents uint32 `json:"total_cents"`
	ExpiresAt  string `json:"expires_at"`
	CreatedAt  string `json:"created_at"`
}

// SweepCompletedEvent is published after an expiry sweep released
// capacity.  EventID is null for global sweeps.
type SweepCompletedEvent struct {
	EventID  *int64 `json:"event_id"`
	Released int    `json:"released"`
	SweptAt  string `json:"swept_at"`
}

// SweepRequest is consumed from the inventory.sweep queue and asks
// for an on-demand sweep, optionally scoped to one event.
type SweepRequest struct {
	EventID *int64 `json:"event_id"`
}
