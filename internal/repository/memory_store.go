package repository

import (
	"context"
	"sync"
	"time"

	"github.com/openticket/boxoffice/internal/model"
)

// memoryState is the shared mutable state behind MemoryStore views.
// A single mutex serializes access; the transactional view created by
// InTx holds the mutex for the whole callback, which gives the same
// atomicity the MySQL backend gets from a database transaction.
type memoryState struct {
	mu             sync.Mutex
	events         map[int64]model.Event
	quotas         map[int64]model.Quota
	carts          map[int64]model.CartPosition
	orders         map[int64]model.Order
	orderPositions map[int64]model.OrderPosition
	waiting        []model.CartPosition // waiting list entries reuse the position shape, expiry unused
	locks          map[int64]model.EventLock
	nextID         int64
}

// MemoryStore is an in-memory Store used by the test-suite and for
// single-node development runs without a database.  Semantics mirror
// MySQLStore, including lock theft and the only-if-still-pending
// guard on order expiry.
type MemoryStore struct {
	st *memoryState
	tx bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memoryState{
		events:         make(map[int64]model.Event),
		quotas:         make(map[int64]model.Quota),
		carts:          make(map[int64]model.CartPosition),
		orders:         make(map[int64]model.Order),
		orderPositions: make(map[int64]model.OrderPosition),
		locks:          make(map[int64]model.EventLock),
	}}
}

// lock acquires the state mutex unless this view runs inside InTx,
// which already holds it.
func (s *MemoryStore) lock() func() {
	if s.tx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

func (s *MemoryStore) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

// AddEvent seeds an event and returns its ID.
func (s *MemoryStore) AddEvent(ev model.Event) int64 {
	defer s.lock()()
	if ev.ID == 0 {
		ev.ID = s.id()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.st.events[ev.ID] = ev
	return ev.ID
}

// AddQuota seeds a quota with its coverage and returns its ID.
func (s *MemoryStore) AddQuota(q model.Quota) int64 {
	defer s.lock()()
	if q.ID == 0 {
		q.ID = s.id()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	s.st.quotas[q.ID] = q
	return q.ID
}

// AddWaitingListEntry seeds one waiting list entry for the given
// item/variation.
func (s *MemoryStore) AddWaitingListEntry(eventID, itemID int64, variationID, subeventID *int64) {
	defer s.lock()()
	s.st.waiting = append(s.st.waiting, model.CartPosition{
		EventID:     eventID,
		ItemID:      itemID,
		VariationID: variationID,
		SubeventID:  subeventID,
	})
}

// OrderStatus reports the current status of an order; ok is false
// when the order does not exist.
func (s *MemoryStore) OrderStatus(orderID int64) (model.OrderStatus, bool) {
	defer s.lock()()
	o, ok := s.st.orders[orderID]
	return o.Status, ok
}

// CartPositionCount returns the number of physically present cart
// rows, expired or not.
func (s *MemoryStore) CartPositionCount() int {
	defer s.lock()()
	return len(s.st.carts)
}

// AcquireLock claims or steals the event's lock, see Store.
func (s *MemoryStore) AcquireLock(ctx context.Context, eventID int64, token string, now time.Time, timeout time.Duration) error {
	defer s.lock()()
	l, ok := s.st.locks[eventID]
	if ok && !l.Expired(now, timeout) {
		return ErrLockTimeout
	}
	s.st.locks[eventID] = model.EventLock{EventID: eventID, Token: token, AcquiredAt: now.UTC()}
	return nil
}

// ReleaseLock clears the lock only while the token matches.
func (s *MemoryStore) ReleaseLock(ctx context.Context, eventID int64, token string) error {
	defer s.lock()()
	l, ok := s.st.locks[eventID]
	if !ok || l.Token != token {
		return ErrLockRelease
	}
	delete(s.st.locks, eventID)
	return nil
}

// Event returns the seeded event or ErrNotFound.
func (s *MemoryStore) Event(ctx context.Context, eventID int64) (*model.Event, error) {
	defer s.lock()()
	ev, ok := s.st.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

// QuotaByID returns the seeded quota or ErrNotFound.
func (s *MemoryStore) QuotaByID(ctx context.Context, quotaID int64) (*model.Quota, error) {
	defer s.lock()()
	q, ok := s.st.quotas[quotaID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

// QuotasForItem returns the quotas of the event covering the
// item/variation, excluding subevent-scoped quotas of a different
// subevent.
func (s *MemoryStore) QuotasForItem(ctx context.Context, eventID, itemID int64, variationID, subeventID *int64) ([]model.Quota, error) {
	defer s.lock()()
	var out []model.Quota
	for _, q := range s.st.quotas {
		if q.EventID != eventID || !q.Covers(itemID, variationID) {
			continue
		}
		if subeventID != nil && q.SubeventID != nil && *q.SubeventID != *subeventID {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func scopeMatches(scope, positionSubevent *int64) bool {
	if scope == nil {
		return true
	}
	return positionSubevent != nil && *positionSubevent == *scope
}

// ConsumptionByQuota recomputes per-quota usage by scanning the order,
// cart and waiting list sets.
func (s *MemoryStore) ConsumptionByQuota(ctx context.Context, quotas []model.Quota, subeventID *int64, now time.Time, opts CountOptions) (map[int64]Consumption, error) {
	defer s.lock()()
	out := make(map[int64]Consumption, len(quotas))
	for i := range quotas {
		qt := &quotas[i]
		scope := qt.SubeventID
		if scope == nil {
			scope = subeventID
		}
		var c Consumption
		for _, op := range s.st.orderPositions {
			if op.EventID != qt.EventID || !qt.Covers(op.ItemID, op.VariationID) || !scopeMatches(scope, op.SubeventID) {
				continue
			}
			o := s.st.orders[op.OrderID]
			switch o.Status {
			case model.OrderPaid:
				c.Paid++
			case model.OrderPending:
				if opts.GracePending || o.ExpiresAt.After(now) {
					c.Pending++
				}
			}
		}
		for _, cp := range s.st.carts {
			if cp.EventID == qt.EventID && cp.ExpiresAt.After(now) &&
				qt.Covers(cp.ItemID, cp.VariationID) && scopeMatches(scope, cp.SubeventID) {
				c.CartHeld++
			}
		}
		if opts.IncludeWaitingList {
			for _, w := range s.st.waiting {
				if w.EventID == qt.EventID && qt.Covers(w.ItemID, w.VariationID) && scopeMatches(scope, w.SubeventID) {
					c.WaitingList++
				}
			}
		}
		out[qt.ID] = c
	}
	return out, nil
}

// InsertCartPositions stores the positions and fills in generated
// IDs.
func (s *MemoryStore) InsertCartPositions(ctx context.Context, positions []model.CartPosition) error {
	defer s.lock()()
	for i := range positions {
		positions[i].ID = s.id()
		s.st.carts[positions[i].ID] = positions[i]
	}
	return nil
}

// ExtendCartPositions pushes the expiry of live positions forward.
func (s *MemoryStore) ExtendCartPositions(ctx context.Context, sessionKey string, eventID int64, expiresAt, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, cp := range s.st.carts {
		if cp.SessionKey == sessionKey && cp.EventID == eventID && cp.ExpiresAt.After(now) {
			cp.ExpiresAt = expiresAt.UTC()
			s.st.carts[id] = cp
			n++
		}
	}
	return n, nil
}

// DeleteCartPositions removes all positions of a session for one
// event.
func (s *MemoryStore) DeleteCartPositions(ctx context.Context, sessionKey string, eventID int64) (int64, error) {
	defer s.lock()()
	var n int64
	for id, cp := range s.st.carts {
		if cp.SessionKey == sessionKey && cp.EventID == eventID {
			delete(s.st.carts, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredCartPositions removes positions whose expiry has
// passed.
func (s *MemoryStore) DeleteExpiredCartPositions(ctx context.Context, eventID *int64, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, cp := range s.st.carts {
		if eventID != nil && cp.EventID != *eventID {
			continue
		}
		if !cp.ExpiresAt.After(now) {
			delete(s.st.carts, id)
			n++
		}
	}
	return n, nil
}

// InsertOrder stores the order and its positions.
func (s *MemoryStore) InsertOrder(ctx context.Context, order *model.Order, positions []model.OrderPosition) error {
	defer s.lock()()
	order.ID = s.id()
	s.st.orders[order.ID] = *order
	for i := range positions {
		positions[i].ID = s.id()
		positions[i].OrderID = order.ID
		s.st.orderPositions[positions[i].ID] = positions[i]
	}
	return nil
}

// UpdateOrderStatus transitions the order only when the from-guard
// matches.
func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	defer s.lock()()
	o, ok := s.st.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	s.st.orders[orderID] = o
	return true, nil
}

// ExpirePendingOrders marks overdue pending orders as expired, one
// row at a time with the pending guard applied per row.
func (s *MemoryStore) ExpirePendingOrders(ctx context.Context, eventID *int64, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for id, o := range s.st.orders {
		if eventID != nil && o.EventID != *eventID {
			continue
		}
		if o.Status == model.OrderPending && !o.ExpiresAt.After(now) {
			o.Status = model.OrderExpired
			o.UpdatedAt = now.UTC()
			s.st.orders[id] = o
			n++
		}
	}
	return n, nil
}

// InTx holds the state mutex for the whole callback and restores a
// snapshot of the mutable sets when fn fails, so a rejected order
// leaves no partial state behind.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	carts := cloneMap(s.st.carts)
	orders := cloneMap(s.st.orders)
	orderPositions := cloneMap(s.st.orderPositions)
	nextID := s.st.nextID
	if err := fn(&MemoryStore{st: s.st, tx: true}); err != nil {
		s.st.carts = carts
		s.st.orders = orders
		s.st.orderPositions = orderPositions
		s.st.nextID = nextID
		return err
	}
	return nil
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
