package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openticket/boxoffice/internal/model"
	"github.com/openticket/boxoffice/internal/repository"
)

func newSweeper(st *repository.MemoryStore) *Sweeper {
	return NewSweeper(st, nil, nil, time.Minute, testLogger())
}

func TestSweepReleasesExpiredRows(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(10), 7)
	now := time.Now().UTC()

	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: eventID, SessionKey: "lapsed", ItemID: 7, ExpiresAt: now.Add(-time.Minute)},
		{EventID: eventID, SessionKey: "live", ItemID: 7, ExpiresAt: now.Add(time.Hour)},
	}))
	overdue := &model.Order{Code: "OV", EventID: eventID, Status: model.OrderPending, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, st.InsertOrder(ctx, overdue, []model.OrderPosition{{EventID: eventID, ItemID: 7}}))

	released, err := newSweeper(st).Sweep(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	status, ok := st.OrderStatus(overdue.ID)
	require.True(t, ok)
	assert.Equal(t, model.OrderExpired, status)
	assert.Equal(t, 1, st.CartPositionCount())
}

func TestSweepIdempotent(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(10), 7)
	now := time.Now().UTC()

	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: eventID, SessionKey: "lapsed", ItemID: 7, ExpiresAt: now.Add(-time.Minute)},
	}))

	sweeper := newSweeper(st)
	released, err := sweeper.Sweep(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	// Sweeping the same expired set again releases nothing.
	released, err = sweeper.Sweep(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestSweepNeverDowngradesPaidOrders(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(10), 7)
	now := time.Now().UTC()

	// Paid past its original due date; payment already arrived.
	paid := &model.Order{Code: "PD", EventID: eventID, Status: model.OrderPaid, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, st.InsertOrder(ctx, paid, []model.OrderPosition{{EventID: eventID, ItemID: 7}}))

	released, err := newSweeper(st).Sweep(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	status, _ := st.OrderStatus(paid.ID)
	assert.Equal(t, model.OrderPaid, status)
}

func TestSweepScopedToEvent(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	ev1, _ := seedEvent(st, int64p(10), 7)
	ev2, _ := seedEvent(st, int64p(10), 8)
	now := time.Now().UTC()

	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: ev1, SessionKey: "a", ItemID: 7, ExpiresAt: now.Add(-time.Minute)},
		{EventID: ev2, SessionKey: "b", ItemID: 8, ExpiresAt: now.Add(-time.Minute)},
	}))

	released, err := newSweeper(st).Sweep(ctx, &ev1)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, st.CartPositionCount())
}

func TestSweepFreesCapacityForNewOrders(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(1), 7)
	calc := NewCalculator(st, nil, true)
	orders := newOrders(st, calc)
	now := time.Now().UTC()

	// With grace enabled the overdue pending order blocks the quota
	// until the sweeper expires it.
	overdue := &model.Order{Code: "OV", EventID: eventID, Status: model.OrderPending, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, st.InsertOrder(ctx, overdue, []model.OrderPosition{{EventID: eventID, ItemID: 7}}))

	_, err := orders.Create(ctx, eventID, "", []PositionRequest{{ItemID: 7}}, PaymentConfig{PaymentTermDays: 14})
	require.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = newSweeper(st).Sweep(ctx, &eventID)
	require.NoError(t, err)

	_, err = orders.Create(ctx, eventID, "", []PositionRequest{{ItemID: 7}}, PaymentConfig{PaymentTermDays: 14})
	require.NoError(t, err)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	st := repository.NewMemoryStore()
	sweeper := NewSweeper(st, nil, nil, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
