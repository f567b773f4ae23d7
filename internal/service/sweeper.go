package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openticket/boxoffice/internal/cache"
	"github.com/openticket/boxoffice/internal/metrics"
	"github.com/openticket/boxoffice/internal/queue"
	"github.com/openticket/boxoffice/internal/repository"
)

// DefaultSweepInterval is how often the background sweeper runs when
// no interval is configured.
const DefaultSweepInterval = time.Minute

// Sweeper reclaims capacity held by expired cart positions and
// overdue pending orders.  It takes no event lock: expired carts are
// already logically absent from every availability read, and the
// pending-order cancellation carries its own row-level
// "only if still pending" guard so a concurrent confirmation can
// never be downgraded.  Running it twice over the same expired set is
// a no-op the second time.
type Sweeper struct {
	store     repository.Store
	hints     *cache.Availability
	publisher *queue.Publisher
	interval  time.Duration
	log       logrus.FieldLogger
}

// NewSweeper returns a sweeper.  hints and publisher may be nil; a
// non-positive interval falls back to DefaultSweepInterval.
func NewSweeper(store repository.Store, hints *cache.Availability, publisher *queue.Publisher, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, hints: hints, publisher: publisher, interval: interval, log: log}
}

// Sweep releases expired rows, scoped to one event or global when
// eventID is nil.  Returns the number of rows released (cart
// positions deleted plus pending orders expired).
func (s *Sweeper) Sweep(ctx context.Context, eventID *int64) (int, error) {
	start := time.Now()
	now := start.UTC()

	carts, err := s.store.DeleteExpiredCartPositions(ctx, eventID, now)
	if err != nil {
		return 0, err
	}
	orders, err := s.store.ExpirePendingOrders(ctx, eventID, now)
	if err != nil {
		return int(carts), err
	}
	released := int(carts + orders)
	metrics.SweepDuration.Set(time.Since(start).Seconds())
	if released == 0 {
		return 0, nil
	}
	metrics.SweepReleased.Add(float64(released))

	// Hint invalidation needs an event scope; global sweeps rely on
	// the cache TTL instead.
	if eventID != nil {
		s.hints.Bump(ctx, *eventID)
	}
	if perr := s.publisher.SweepCompleted(ctx, queue.SweepCompletedEvent{
		EventID:  eventID,
		Released: released,
		SweptAt:  now.Format(time.RFC3339),
	}); perr != nil {
		s.log.WithError(perr).Warn("publishing sweep event failed")
	}
	s.log.WithFields(logrus.Fields{
		"carts":  carts,
		"orders": orders,
	}).Info("expiry sweep released capacity")
	return released, nil
}

// Run performs global sweeps on a ticker until ctx is cancelled.
// Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, nil); err != nil {
				s.log.WithError(err).Warn("expiry sweep failed")
			}
		}
	}
}
