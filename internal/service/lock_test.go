package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openticket/boxoffice/internal/repository"
)

func TestLockManagerMutualExclusion(t *testing.T) {
	st := repository.NewMemoryStore()
	m := NewLockManager(st, 3*time.Second, testLogger())
	ctx := context.Background()

	guard, err := m.Acquire(ctx, 1)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrLockTimeout)

	require.NoError(t, guard.Release())

	guard2, err := m.Acquire(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, guard2.Release())
}

func TestLockManagerIndependentEvents(t *testing.T) {
	st := repository.NewMemoryStore()
	m := NewLockManager(st, 3*time.Second, testLogger())
	ctx := context.Background()

	g1, err := m.Acquire(ctx, 1)
	require.NoError(t, err)
	g2, err := m.Acquire(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, g1.Release())
	require.NoError(t, g2.Release())
}

func TestLockManagerTheftAfterTimeout(t *testing.T) {
	st := repository.NewMemoryStore()
	m := NewLockManager(st, 10*time.Millisecond, testLogger())
	ctx := context.Background()

	stale, err := m.Acquire(ctx, 1)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	thief, err := m.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, stale.Token(), thief.Token())

	// The original holder's release must not clear the thief's lock.
	assert.ErrorIs(t, stale.Release(), repository.ErrLockRelease)

	require.NoError(t, thief.Release())
}

func TestLockGuardReleaseIdempotent(t *testing.T) {
	st := repository.NewMemoryStore()
	m := NewLockManager(st, 3*time.Second, testLogger())

	guard, err := m.Acquire(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, guard.Release())
	// A second Release reports the first outcome instead of failing on
	// the now-absent row.
	require.NoError(t, guard.Release())
}

func TestLockManagerDefaultTimeout(t *testing.T) {
	m := NewLockManager(repository.NewMemoryStore(), 0, testLogger())
	assert.Equal(t, DefaultLockTimeout, m.Timeout())
}
