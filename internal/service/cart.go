package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openticket/boxoffice/internal/metrics"
	"github.com/openticket/boxoffice/internal/model"
	"github.com/openticket/boxoffice/internal/repository"
)

// DefaultCartTTL is the checkout-session lifetime of a cart
// reservation.
const DefaultCartTTL = 30 * time.Minute

// ErrEventNotLive is returned when reserving or ordering on an event
// that does not currently permit sales.
var ErrEventNotLive = errors.New("event is not live")

// Cart tracks time-boxed reservations that count against quota
// without being orders yet.  Reservation is optimistic by design:
// availability is checked immediately before the insert but NOT under
// the event lock, so two concurrent reservations can race past each
// other when capacity is exactly one.  The reservation only signals
// intent and improves UX; the authoritative, lock-protected recheck
// happens at order confirmation.  Locking every cart add would
// reintroduce global contention on the hot path for nothing.
type Cart struct {
	store repository.Store
	calc  *Calculator
	ttl   time.Duration
	log   logrus.FieldLogger
}

// NewCart returns a cart tracker.  A non-positive ttl falls back to
// DefaultCartTTL.
func NewCart(store repository.Store, calc *Calculator, ttl time.Duration, log logrus.FieldLogger) *Cart {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &Cart{store: store, calc: calc, ttl: ttl, log: log}
}

// TTL returns the reservation lifetime the cart operates with.
func (c *Cart) TTL() time.Duration {
	return c.ttl
}

// Reserve places quantity cart positions for the session.  Expired
// positions of other sessions are logically absent from the
// availability check even when not yet swept.  Returns the created
// positions with their expiry.
func (c *Cart) Reserve(ctx context.Context, sessionKey string, eventID, itemID int64, variationID, subeventID *int64, priceCents uint32, quantity int) ([]model.CartPosition, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is required")
	}
	if quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	ev, err := c.store.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.Live {
		return nil, ErrEventNotLive
	}

	now := time.Now().UTC()
	avail, err := c.calc.itemAvailability(ctx, c.store, eventID, itemID, variationID, subeventID, CountOptions{}, now)
	if err != nil {
		return nil, err
	}
	if !avail.Sellable(int64(quantity)) {
		return nil, fmt.Errorf("cannot reserve %d units of item %d: %w", quantity, itemID, ErrQuotaExceeded)
	}

	expiresAt := now.Add(c.ttl)
	positions := make([]model.CartPosition, 0, quantity)
	for i := 0; i < quantity; i++ {
		token, err := randomToken(32)
		if err != nil {
			return nil, fmt.Errorf("generate cart token: %w", err)
		}
		positions = append(positions, model.CartPosition{
			EventID:     eventID,
			SessionKey:  sessionKey,
			ItemID:      itemID,
			VariationID: variationID,
			SubeventID:  subeventID,
			PriceCents:  priceCents,
			Token:       token,
			ExpiresAt:   expiresAt,
			CreatedAt:   now,
		})
	}
	if err := c.store.InsertCartPositions(ctx, positions); err != nil {
		return nil, err
	}
	metrics.CartReservations.Add(float64(quantity))
	c.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"item_id":  itemID,
		"quantity": quantity,
	}).Debug("cart positions reserved")
	return positions, nil
}

// Extend pushes the expiry of the session's live positions forward by
// one TTL from now.  Positions that already lapsed are not revived;
// the caller has to reserve again and take its chances with current
// availability.
func (c *Cart) Extend(ctx context.Context, sessionKey string, eventID int64) (int64, error) {
	now := time.Now().UTC()
	return c.store.ExtendCartPositions(ctx, sessionKey, eventID, now.Add(c.ttl), now)
}

// Release drops all positions of the session for the event,
// immediately freeing the held capacity.
func (c *Cart) Release(ctx context.Context, sessionKey string, eventID int64) (int64, error) {
	return c.store.DeleteCartPositions(ctx, sessionKey, eventID)
}
