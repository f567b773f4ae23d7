// Package cache provides the Redis-backed availability hint cache.
// Cached results serve display reads only; the authoritative in-lock
// recheck of the order pipeline never consults the cache.  When no
// Redis client is configured, every operation degrades to a no-op and
// reads fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openticket/boxoffice/internal/model"
)

// Availability caches quota availability results under a per-event
// version counter.  Writers bump the version instead of deleting
// individual keys, which instantly invalidates all hints for the
// event; the stale generation ages out via TTL.
type Availability struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAvailability returns a cache over the given client.  A nil
// client disables caching.
func NewAvailability(rdb *redis.Client, ttl time.Duration) *Availability {
	return &Availability{rdb: rdb, ttl: ttl}
}

func (c *Availability) enabled() bool {
	return c != nil && c.rdb != nil
}

type entry struct {
	Code      model.AvailabilityCode `json:"code"`
	Remaining *int64                 `json:"remaining"`
}

func (c *Availability) version(ctx context.Context, eventID int64) string {
	v, err := c.rdb.Get(ctx, fmt.Sprintf("avail:ver:%d", eventID)).Result()
	if err != nil {
		return "0"
	}
	return v
}

// Get returns a cached availability for the key, if one exists under
// the event's current version.
func (c *Availability) Get(ctx context.Context, eventID int64, key string) (model.Availability, bool) {
	if !c.enabled() {
		return model.Availability{}, false
	}
	full := fmt.Sprintf("avail:%d:%s:%s", eventID, c.version(ctx, eventID), key)
	raw, err := c.rdb.Get(ctx, full).Bytes()
	if err != nil {
		return model.Availability{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.Availability{}, false
	}
	return model.Availability{Code: e.Code, Remaining: e.Remaining}, true
}

// Set stores an availability hint under the event's current version.
// Failures are ignored; the cache is advisory.
func (c *Availability) Set(ctx context.Context, eventID int64, key string, a model.Availability) {
	if !c.enabled() {
		return
	}
	raw, err := json.Marshal(entry{Code: a.Code, Remaining: a.Remaining})
	if err != nil {
		return
	}
	full := fmt.Sprintf("avail:%d:%s:%s", eventID, c.version(ctx, eventID), key)
	_ = c.rdb.Set(ctx, full, raw, c.ttl).Err()
}

// Bump invalidates all cached hints for the event by advancing its
// version counter.  Called after order creation and sweeps.
func (c *Availability) Bump(ctx context.Context, eventID int64) {
	if !c.enabled() {
		return
	}
	_ = c.rdb.Incr(ctx, fmt.Sprintf("avail:ver:%d", eventID)).Err()
}
