package repository

import (
	"context"
	"time"

	"github.com/openticket/boxoffice/internal/model"
)

// CountOptions controls which consumption sets contribute to a
// quota's usage.
type CountOptions struct {
	// IncludeWaitingList adds waiting list entries to the count so
	// that waiting-list assignment does not oversell.
	IncludeWaitingList bool
	// GracePending keeps pending orders counting against quota even
	// after their payment due date has passed.  When false, overdue
	// pending positions stop counting before the sweeper physically
	// expires them, mirroring the cart expiry filter.
	GracePending bool
}

// Consumption is the per-quota breakdown of capacity usage.  All
// counts are numbers of units (positions), never fractional.
type Consumption struct {
	Paid        int64
	Pending     int64
	CartHeld    int64
	WaitingList int64
}

// Total returns the units counting against the quota under the given
// options.
func (c Consumption) Total(opts CountOptions) int64 {
	n := c.Paid + c.Pending + c.CartHeld
	if opts.IncludeWaitingList {
		n += c.WaitingList
	}
	return n
}

// Soft returns the units that could still be released again: cart
// holds and pending (unpaid) orders.
func (c Consumption) Soft() int64 {
	return c.Pending + c.CartHeld
}

// Store is the persistence contract of the inventory core.  Two
// backends implement it: MySQLStore for production and MemoryStore
// for tests and single-node development runs.  All timestamps are
// UTC; callers pass `now` explicitly so that expiry comparisons stay
// deterministic and testable.
type Store interface {
	// AcquireLock atomically claims the event's lock row for the
	// given token.  A live lock held by another token fails with
	// ErrLockTimeout; a lock older than the timeout is overwritten
	// (stolen).
	AcquireLock(ctx context.Context, eventID int64, token string, now time.Time, timeout time.Duration) error
	// ReleaseLock clears the lock row if and only if the stored
	// token still matches; otherwise ErrLockRelease.
	ReleaseLock(ctx context.Context, eventID int64, token string) error

	// Event returns the event row or ErrNotFound.
	Event(ctx context.Context, eventID int64) (*model.Event, error)
	// QuotaByID returns the quota with its coverage loaded, or
	// ErrNotFound.
	QuotaByID(ctx context.Context, quotaID int64) (*model.Quota, error)
	// QuotasForItem returns all quotas of the event covering the
	// item/variation.  When subeventID is set, subevent-scoped quotas
	// of other subevents are excluded.
	QuotasForItem(ctx context.Context, eventID, itemID int64, variationID, subeventID *int64) ([]model.Quota, error)
	// ConsumptionByQuota computes the usage breakdown for each quota,
	// counting paid positions, pending positions (per the grace
	// policy), cart positions with expires_at > now and optionally
	// waiting list entries.  Consumption is always recomputed from
	// the authoritative row sets, never read from a cached counter.
	ConsumptionByQuota(ctx context.Context, quotas []model.Quota, subeventID *int64, now time.Time, opts CountOptions) (map[int64]Consumption, error)

	// InsertCartPositions persists new cart positions and fills in
	// their generated IDs.
	InsertCartPositions(ctx context.Context, positions []model.CartPosition) error
	// ExtendCartPositions pushes the expiry of the session's live
	// positions for the event to the given timestamp and returns the
	// number of rows touched.  Already-expired rows are left alone.
	ExtendCartPositions(ctx context.Context, sessionKey string, eventID int64, expiresAt, now time.Time) (int64, error)
	// DeleteCartPositions removes all positions of one session for
	// one event, returning the number of rows removed.
	DeleteCartPositions(ctx context.Context, sessionKey string, eventID int64) (int64, error)
	// DeleteExpiredCartPositions removes positions with
	// expires_at <= now, scoped to one event when eventID is set or
	// globally when nil.
	DeleteExpiredCartPositions(ctx context.Context, eventID *int64, now time.Time) (int64, error)

	// InsertOrder persists an order and its positions, filling in the
	// generated IDs.
	InsertOrder(ctx context.Context, order *model.Order, positions []model.OrderPosition) error
	// UpdateOrderStatus transitions an order from one status to
	// another, returning false when the row was not in the expected
	// status (the guard against downgrading a just-confirmed order).
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error)
	// ExpirePendingOrders marks pending orders with
	// expires_at <= now as expired, scoped like
	// DeleteExpiredCartPositions.  The status guard is part of the
	// same statement so a concurrent payment cannot be overwritten.
	ExpirePendingOrders(ctx context.Context, eventID *int64, now time.Time) (int64, error)

	// InTx runs fn against a store view whose writes commit
	// atomically; when fn returns an error everything is rolled
	// back.  The order creation pipeline wraps its authoritative
	// recheck and insert in one InTx call.
	InTx(ctx context.Context, fn func(Store) error) error
}
