package model

import "time"

// EventLock is the advisory mutex row serializing quota-affecting
// writes for one event.  A single event has at most one live lock at
// a time.  The lock is considered released when the holder clears the
// row or when AcquiredAt is older than the configured lock timeout,
// at which point a new acquirer may overwrite (steal) it.
type EventLock struct {
	EventID    int64     // event_locks.event_id (primary key)
	Token      string    // event_locks.token
	AcquiredAt time.Time // event_locks.acquired_at
}

// Expired reports whether the lock may be stolen at the given
// instant.
func (l *EventLock) Expired(now time.Time, timeout time.Duration) bool {
	return !l.AcquiredAt.After(now.Add(-timeout))
}
