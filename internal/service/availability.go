package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openticket/boxoffice/internal/cache"
	"github.com/openticket/boxoffice/internal/model"
	"github.com/openticket/boxoffice/internal/repository"
)

// ErrQuotaExceeded is returned when a requested item has no remaining
// capacity.  It is terminal for the current attempt: retrying the
// identical request will keep failing until capacity frees up, so
// callers must re-present availability to the user instead of
// retrying automatically.
var ErrQuotaExceeded = errors.New("requested item is no longer available")

// CountOptions controls optional consumption sets for availability
// reads.
type CountOptions struct {
	IncludeWaitingList bool
}

// Calculator computes remaining quota capacity.  Reads are unlocked
// and eventually consistent (display purposes); the order pipeline
// runs the same computation against a transactional store view inside
// the event lock for its authoritative check.  Capacity is always
// recomputed from the confirmed/pending/reserved row sets — there is
// no denormalized counter that could drift.
type Calculator struct {
	store        repository.Store
	hints        *cache.Availability
	gracePending bool
}

// NewCalculator returns a calculator over the given store.  hints may
// be nil to disable the Redis hint cache.  gracePending keeps overdue
// pending orders counting against quota until the sweeper expires
// them.
func NewCalculator(store repository.Store, hints *cache.Availability, gracePending bool) *Calculator {
	return &Calculator{store: store, hints: hints, gracePending: gracePending}
}

func subKey(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

// ItemAvailability returns the overall availability of an item or
// variation: the minimum remaining capacity across all covering
// quotas.  Results may be served from the hint cache; they are
// display hints, not reservations.
func (c *Calculator) ItemAvailability(ctx context.Context, eventID, itemID int64, variationID, subeventID *int64, opts CountOptions) (model.Availability, error) {
	key := fmt.Sprintf("item:%d:%s:%s:%t", itemID, subKey(variationID), subKey(subeventID), opts.IncludeWaitingList)
	if a, ok := c.hints.Get(ctx, eventID, key); ok {
		return a, nil
	}
	a, err := c.itemAvailability(ctx, c.store, eventID, itemID, variationID, subeventID, opts, time.Now().UTC())
	if err != nil {
		return model.Availability{}, err
	}
	c.hints.Set(ctx, eventID, key, a)
	return a, nil
}

// QuotaAvailability returns the remaining capacity of a single quota.
func (c *Calculator) QuotaAvailability(ctx context.Context, quotaID int64, subeventID *int64, opts CountOptions) (model.Availability, error) {
	q, err := c.store.QuotaByID(ctx, quotaID)
	if err != nil {
		return model.Availability{}, err
	}
	key := fmt.Sprintf("quota:%d:%s:%t", quotaID, subKey(subeventID), opts.IncludeWaitingList)
	if a, ok := c.hints.Get(ctx, q.EventID, key); ok {
		return a, nil
	}
	a, err := c.compute(ctx, c.store, []model.Quota{*q}, subeventID, opts, time.Now().UTC())
	if err != nil {
		return model.Availability{}, err
	}
	c.hints.Set(ctx, q.EventID, key, a)
	return a, nil
}

// itemAvailability is the cache-free computation, also used against
// transactional store views.  An item covered by no quota at all is
// not sellable.
func (c *Calculator) itemAvailability(ctx context.Context, st repository.Store, eventID, itemID int64, variationID, subeventID *int64, opts CountOptions, now time.Time) (model.Availability, error) {
	quotas, err := st.QuotasForItem(ctx, eventID, itemID, variationID, subeventID)
	if err != nil {
		return model.Availability{}, err
	}
	if len(quotas) == 0 {
		return model.Limited(0, false), nil
	}
	return c.compute(ctx, st, quotas, subeventID, opts, now)
}

// compute takes the minimum remaining capacity across the quotas.  A
// quota with nil size contributes no constraint.
func (c *Calculator) compute(ctx context.Context, st repository.Store, quotas []model.Quota, subeventID *int64, opts CountOptions, now time.Time) (model.Availability, error) {
	counts, err := st.ConsumptionByQuota(ctx, quotas, subeventID, now, repository.CountOptions{
		IncludeWaitingList: opts.IncludeWaitingList,
		GracePending:       c.gracePending,
	})
	if err != nil {
		return model.Availability{}, err
	}
	constrained := false
	var minRemaining int64
	var minSoft bool
	for _, q := range quotas {
		if q.Size == nil {
			continue
		}
		cons := counts[q.ID]
		remaining := *q.Size - cons.Total(repository.CountOptions{IncludeWaitingList: opts.IncludeWaitingList})
		if remaining < 0 {
			remaining = 0
		}
		if !constrained || remaining < minRemaining {
			constrained = true
			minRemaining = remaining
			minSoft = cons.Soft() > 0
		}
	}
	if !constrained {
		return model.Unlimited(), nil
	}
	return model.Limited(minRemaining, minSoft), nil
}

// checkDemand validates that every requested position fits within its
// covering quotas, aggregating demand per quota first so that several
// positions competing for the same quota are checked cumulatively
// rather than one by one.  This is the authoritative check the order
// pipeline runs inside the event lock.
func (c *Calculator) checkDemand(ctx context.Context, st repository.Store, eventID int64, reqs []PositionRequest, now time.Time) error {
	type group struct {
		subevent *int64
		quotas   map[int64]model.Quota
		demand   map[int64]int64
	}
	groups := make(map[string]*group)
	for _, r := range reqs {
		key := subKey(r.SubeventID)
		g, ok := groups[key]
		if !ok {
			g = &group{subevent: r.SubeventID, quotas: make(map[int64]model.Quota), demand: make(map[int64]int64)}
			groups[key] = g
		}
		quotas, err := st.QuotasForItem(ctx, eventID, r.ItemID, r.VariationID, r.SubeventID)
		if err != nil {
			return err
		}
		if len(quotas) == 0 {
			return fmt.Errorf("item %d has no quota: %w", r.ItemID, ErrQuotaExceeded)
		}
		for _, q := range quotas {
			g.quotas[q.ID] = q
			g.demand[q.ID]++
		}
	}
	for _, g := range groups {
		list := make([]model.Quota, 0, len(g.quotas))
		for _, q := range g.quotas {
			list = append(list, q)
		}
		counts, err := st.ConsumptionByQuota(ctx, list, g.subevent, now, repository.CountOptions{
			GracePending: c.gracePending,
		})
		if err != nil {
			return err
		}
		for _, q := range list {
			if q.Size == nil {
				continue
			}
			remaining := *q.Size - counts[q.ID].Total(repository.CountOptions{})
			if remaining < g.demand[q.ID] {
				return fmt.Errorf("quota %q short by %d: %w", q.Name, g.demand[q.ID]-remaining, ErrQuotaExceeded)
			}
		}
	}
	return nil
}
