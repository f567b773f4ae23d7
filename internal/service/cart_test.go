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

func TestCartReserveHoldsCapacity(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(3), 7)
	calc := NewCalculator(st, nil, false)
	cart := newCart(st, calc)

	positions, err := cart.Reserve(ctx, "session-1", eventID, 7, nil, nil, 2500, 2)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	for _, p := range positions {
		assert.NotEmpty(t, p.Token)
		assert.NotZero(t, p.ID)
		assert.True(t, p.ExpiresAt.After(time.Now().UTC()))
	}

	a, err := calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	require.NotNil(t, a.Remaining)
	assert.Equal(t, int64(1), *a.Remaining)
}

func TestCartReserveRejectsOverCapacity(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(3), 7)
	calc := NewCalculator(st, nil, false)
	cart := newCart(st, calc)

	_, err := cart.Reserve(ctx, "session-1", eventID, 7, nil, nil, 2500, 2)
	require.NoError(t, err)

	_, err = cart.Reserve(ctx, "session-2", eventID, 7, nil, nil, 2500, 2)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Nothing was inserted for the rejected session.
	assert.Equal(t, 2, st.CartPositionCount())
}

func TestCartReserveValidation(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(3), 7)
	cart := newCart(st, NewCalculator(st, nil, false))

	_, err := cart.Reserve(ctx, "", eventID, 7, nil, nil, 0, 1)
	assert.Error(t, err)

	_, err = cart.Reserve(ctx, "s", eventID, 7, nil, nil, 0, 0)
	assert.Error(t, err)

	_, err = cart.Reserve(ctx, "s", 9999, 7, nil, nil, 0, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCartReserveEventNotLive(t *testing.T) {
	st := repository.NewMemoryStore()
	eventID := st.AddEvent(model.Event{Name: "Draft", Live: false})
	st.AddQuota(model.Quota{EventID: eventID, Size: int64p(3), ItemIDs: []int64{7}})
	cart := newCart(st, NewCalculator(st, nil, false))

	_, err := cart.Reserve(context.Background(), "s", eventID, 7, nil, nil, 0, 1)
	assert.ErrorIs(t, err, ErrEventNotLive)
}

func TestCartExtendOnlyLivePositions(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(5), 7)
	calc := NewCalculator(st, nil, false)
	cart := newCart(st, calc)
	now := time.Now().UTC()

	_, err := cart.Reserve(ctx, "session-1", eventID, 7, nil, nil, 0, 2)
	require.NoError(t, err)
	// A position that already lapsed must not be revived.
	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: eventID, SessionKey: "session-1", ItemID: 7, ExpiresAt: now.Add(-time.Minute)},
	}))

	n, err := cart.Extend(ctx, "session-1", eventID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCartReleaseFreesCapacity(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(3), 7)
	calc := NewCalculator(st, nil, false)
	cart := newCart(st, calc)

	_, err := cart.Reserve(ctx, "session-1", eventID, 7, nil, nil, 0, 3)
	require.NoError(t, err)

	a, err := calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityReserved, a.Code)

	n, err := cart.Release(ctx, "session-1", eventID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	a, err = calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), *a.Remaining)
}
