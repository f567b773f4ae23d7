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

func TestItemAvailabilityUnlimited(t *testing.T) {
	st := repository.NewMemoryStore()
	eventID, _ := seedEvent(st, nil, 7)
	calc := NewCalculator(st, nil, false)

	a, err := calc.ItemAvailability(context.Background(), eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityOK, a.Code)
	assert.Nil(t, a.Remaining)
}

func TestItemAvailabilityNoQuota(t *testing.T) {
	st := repository.NewMemoryStore()
	eventID := st.AddEvent(model.Event{Live: true})
	calc := NewCalculator(st, nil, false)

	// An item covered by no quota at all is not sellable.
	a, err := calc.ItemAvailability(context.Background(), eventID, 42, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityGone, a.Code)
	require.NotNil(t, a.Remaining)
	assert.Equal(t, int64(0), *a.Remaining)
}

func TestItemAvailabilityMinimumAcrossQuotas(t *testing.T) {
	st := repository.NewMemoryStore()
	eventID := st.AddEvent(model.Event{Live: true})
	st.AddQuota(model.Quota{EventID: eventID, Name: "Venue", Size: int64p(100), ItemIDs: []int64{7}})
	st.AddQuota(model.Quota{EventID: eventID, Name: "Early bird", Size: int64p(3), ItemIDs: []int64{7}})
	calc := NewCalculator(st, nil, false)

	a, err := calc.ItemAvailability(context.Background(), eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	require.NotNil(t, a.Remaining)
	assert.Equal(t, int64(3), *a.Remaining)
}

func TestItemAvailabilityIgnoresExpiredCarts(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(5), 7)
	now := time.Now().UTC()

	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: eventID, SessionKey: "live", ItemID: 7, ExpiresAt: now.Add(time.Hour)},
		{EventID: eventID, SessionKey: "lapsed", ItemID: 7, ExpiresAt: now.Add(-time.Second)},
	}))

	calc := NewCalculator(st, nil, false)
	a, err := calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	require.NotNil(t, a.Remaining)
	assert.Equal(t, int64(4), *a.Remaining)
}

func TestItemAvailabilityGracePending(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(5), 7)
	now := time.Now().UTC()

	overdue := &model.Order{Code: "OV", EventID: eventID, Status: model.OrderPending, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, st.InsertOrder(ctx, overdue, []model.OrderPosition{{EventID: eventID, ItemID: 7}}))

	// Without grace an overdue pending order stops counting before the
	// sweeper removes it.
	a, err := NewCalculator(st, nil, false).ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), *a.Remaining)

	a, err = NewCalculator(st, nil, true).ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), *a.Remaining)
}

func TestItemAvailabilityWaitingList(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(2), 7)
	st.AddWaitingListEntry(eventID, 7, nil, nil)

	calc := NewCalculator(st, nil, false)

	a, err := calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), *a.Remaining)

	a, err = calc.ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{IncludeWaitingList: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), *a.Remaining)
}

func TestItemAvailabilityReservedVersusGone(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("sold out to a live cart reports reserved", func(t *testing.T) {
		st := repository.NewMemoryStore()
		eventID, _ := seedEvent(st, int64p(1), 7)
		require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
			{EventID: eventID, SessionKey: "s", ItemID: 7, ExpiresAt: now.Add(time.Hour)},
		}))

		a, err := NewCalculator(st, nil, false).ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
		require.NoError(t, err)
		assert.Equal(t, model.AvailabilityReserved, a.Code)
		assert.Equal(t, int64(0), *a.Remaining)
	})

	t.Run("sold out to a paid order reports gone", func(t *testing.T) {
		st := repository.NewMemoryStore()
		eventID, _ := seedEvent(st, int64p(1), 7)
		paid := &model.Order{Code: "PD", EventID: eventID, Status: model.OrderPaid, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, st.InsertOrder(ctx, paid, []model.OrderPosition{{EventID: eventID, ItemID: 7}}))

		a, err := NewCalculator(st, nil, false).ItemAvailability(ctx, eventID, 7, nil, nil, CountOptions{})
		require.NoError(t, err)
		assert.Equal(t, model.AvailabilityGone, a.Code)
		assert.Equal(t, int64(0), *a.Remaining)
	})
}

func TestQuotaAvailability(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, quotaID := seedEvent(st, int64p(10), 7)
	require.NoError(t, st.InsertCartPositions(ctx, []model.CartPosition{
		{EventID: eventID, SessionKey: "s", ItemID: 7, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}))

	a, err := NewCalculator(st, nil, false).QuotaAvailability(ctx, quotaID, nil, CountOptions{})
	require.NoError(t, err)
	require.NotNil(t, a.Remaining)
	assert.Equal(t, int64(9), *a.Remaining)

	_, err = NewCalculator(st, nil, false).QuotaAvailability(ctx, 9999, nil, CountOptions{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCheckDemandAggregatesPerQuota(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID, _ := seedEvent(st, int64p(3), 7)
	calc := NewCalculator(st, nil, false)
	now := time.Now().UTC()

	three := []PositionRequest{{ItemID: 7}, {ItemID: 7}, {ItemID: 7}}
	require.NoError(t, calc.checkDemand(ctx, st, eventID, three, now))

	// Four positions individually fit a quota of three but must be
	// rejected cumulatively.
	four := append(three, PositionRequest{ItemID: 7})
	assert.ErrorIs(t, calc.checkDemand(ctx, st, eventID, four, now), ErrQuotaExceeded)
}

func TestCheckDemandVariationCoverage(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	eventID := st.AddEvent(model.Event{Live: true})
	st.AddQuota(model.Quota{EventID: eventID, Name: "Seated", Size: int64p(1), VariationIDs: []int64{31}})
	calc := NewCalculator(st, nil, false)
	now := time.Now().UTC()

	one := []PositionRequest{{ItemID: 7, VariationID: int64p(31)}}
	require.NoError(t, calc.checkDemand(ctx, st, eventID, one, now))

	// The bare item has no coverage of its own.
	bare := []PositionRequest{{ItemID: 7}}
	assert.ErrorIs(t, calc.checkDemand(ctx, st, eventID, bare, now), ErrQuotaExceeded)
}
