// Package repository defines the storage contract for the inventory
// core along with sentinel error values reused across backends.
// These sentinels let the service layer distinguish failure classes
// with errors.Is: lock contention is retryable, a stale release is a
// lifecycle bug worth investigating, and a missing row is terminal
// for the current call.
package repository

import "errors"

// ErrLockTimeout is returned when an event lock is held by another
// token and has not yet aged past the lock timeout.  It is transient;
// callers should retry with backoff or surface a "busy" response.
var ErrLockTimeout = errors.New("event lock held by another process")

// ErrLockRelease is returned when releasing a lock whose stored token
// no longer matches, i.e. the lock was stolen after the holder's
// timeout elapsed.  Callers must log it, not swallow it.
var ErrLockRelease = errors.New("event lock no longer held by this token")

// ErrNotFound is returned when a referenced event, quota or order row
// does not exist.
var ErrNotFound = errors.New("not found")
