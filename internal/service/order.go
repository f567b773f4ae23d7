package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openticket/boxoffice/internal/cache"
	"github.com/openticket/boxoffice/internal/metrics"
	"github.com/openticket/boxoffice/internal/model"
	"github.com/openticket/boxoffice/internal/queue"
	"github.com/openticket/boxoffice/internal/repository"
)

// PaymentConfig carries the event's payment term settings, passed
// explicitly into order creation instead of being read from an
// ambient settings object.
type PaymentConfig struct {
	// PaymentTermDays is how many days a pending order may await
	// payment.
	PaymentTermDays int
	// PaymentTermLast optionally caps the due date at a fixed
	// deadline (e.g. the day before the event).
	PaymentTermLast *time.Time
	// PaymentTermGracePending keeps overdue pending orders counting
	// against quota until the sweeper expires them.
	PaymentTermGracePending bool
}

// DueDate computes the payment due date for an order created at now.
func (p PaymentConfig) DueDate(now time.Time) time.Time {
	due := now.AddDate(0, 0, p.PaymentTermDays)
	if p.PaymentTermLast != nil && due.After(*p.PaymentTermLast) {
		due = *p.PaymentTermLast
	}
	return due
}

// PositionRequest asks for one unit of an item or variation at a
// fixed price.
type PositionRequest struct {
	ItemID      int64
	VariationID *int64
	SubeventID  *int64
	PriceCents  uint32
}

// Orders is the write path converting reservations (or direct
// requests) into durable orders.  All quota-affecting writes go
// through Create, which serializes per event via the lock manager;
// the optimistic cart path is the only permitted bypass and never
// confirms scarce capacity itself.
type Orders struct {
	store     repository.Store
	locks     *LockManager
	calc      *Calculator
	hints     *cache.Availability
	publisher *queue.Publisher
	log       logrus.FieldLogger
}

// NewOrders wires the order pipeline.  hints and publisher may be nil.
func NewOrders(store repository.Store, locks *LockManager, calc *Calculator, hints *cache.Availability, publisher *queue.Publisher, log logrus.FieldLogger) *Orders {
	return &Orders{store: store, locks: locks, calc: calc, hints: hints, publisher: publisher, log: log}
}

// Create runs the order creation pipeline:
//
//  1. acquire the event lock (repository.ErrLockTimeout propagates to
//     the caller, who may retry later);
//  2. inside one store transaction, consume the session's cart
//     positions and re-run the availability check authoritatively for
//     the full requested demand;
//  3. abort the whole order with ErrQuotaExceeded when any position
//     is short — no partial orders;
//  4. otherwise persist the order with its payment due date and
//     release the lock.
//
// The transaction means a crash mid-creation leaves no partial state;
// the session's cart rows reappear on rollback.
func (o *Orders) Create(ctx context.Context, eventID int64, sessionKey string, positions []PositionRequest, payment PaymentConfig) (*model.Order, error) {
	if len(positions) == 0 {
		return nil, errors.New("order needs at least one position")
	}
	ev, err := o.store.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.Live {
		return nil, ErrEventNotLive
	}

	guard, err := o.locks.Acquire(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil && !errors.Is(rerr, repository.ErrLockRelease) {
			o.log.WithError(rerr).WithField("event_id", eventID).Error("releasing event lock failed")
		}
	}()

	now := time.Now().UTC()
	code, err := orderCode()
	if err != nil {
		return nil, fmt.Errorf("generate order code: %w", err)
	}
	order := &model.Order{
		Code:      code,
		EventID:   eventID,
		Status:    model.OrderPending,
		ExpiresAt: payment.DueDate(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = o.store.InTx(ctx, func(tx repository.Store) error {
		// The session's own cart positions would count against the
		// quota we are about to check, so they are consumed first;
		// rollback restores them if the order is rejected.
		if sessionKey != "" {
			if _, err := tx.DeleteCartPositions(ctx, sessionKey, eventID); err != nil {
				return err
			}
		}
		if err := o.calc.checkDemand(ctx, tx, eventID, positions, now); err != nil {
			return err
		}
		opos := make([]model.OrderPosition, 0, len(positions))
		var total uint32
		for _, r := range positions {
			total += r.PriceCents
			opos = append(opos, model.OrderPosition{
				EventID:     eventID,
				ItemID:      r.ItemID,
				VariationID: r.VariationID,
				SubeventID:  r.SubeventID,
				PriceCents:  r.PriceCents,
			})
		}
		order.TotalCents = total
		return tx.InsertOrder(ctx, order, opos)
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.OrdersRejected.Inc()
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	o.hints.Bump(ctx, eventID)
	if perr := o.publisher.OrderConfirmed(ctx, queue.OrderConfirmedEvent{
		OrderID:    order.ID,
		Code:       order.Code,
		EventID:    eventID,
		Positions:  len(positions),
		TotalCents: order.TotalCents,
		ExpiresAt:  order.ExpiresAt.Format(time.RFC3339),
		CreatedAt:  order.CreatedAt.Format(time.RFC3339),
	}); perr != nil {
		o.log.WithError(perr).Warn("publishing order event failed")
	}
	o.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"order":    order.Code,
		"total":    order.TotalCents,
	}).Info("order created")
	return order, nil
}

// MarkPaid records a successful payment.  Only pending orders can be
// paid; anything else means the order expired or was cancelled in the
// meantime.
func (o *Orders) MarkPaid(ctx context.Context, orderID int64) error {
	ok, err := o.store.UpdateOrderStatus(ctx, orderID, model.OrderPending, model.OrderPaid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %d is not pending", orderID)
	}
	return nil
}

// Cancel releases a pending order's capacity.  Paid orders go through
// the refund flow instead.
func (o *Orders) Cancel(ctx context.Context, orderID int64, eventID int64) error {
	ok, err := o.store.UpdateOrderStatus(ctx, orderID, model.OrderPending, model.OrderCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %d is not pending", orderID)
	}
	o.hints.Bump(ctx, eventID)
	return nil
}
