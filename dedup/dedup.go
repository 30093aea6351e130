// Package dedup remembers which webhook deliveries have already been handled so a redelivered payload
// isn't stored twice.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a delivery id is remembered. Mailgun gives up retrying well within a day.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "foiatracker:seen:"

// Filter reports whether an id is being seen for the first time
type Filter interface {
	IsNew(ctx context.Context, id string) (bool, error)
	// Forget unmarks id so a delivery that failed can be retried
	Forget(ctx context.Context, id string) error
}

// Redis is a Filter backed by SETNX so concurrent deliveries agree on which one was first
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis returns a Redis filter remembering ids for ttl
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// IsNew returns true and marks id as seen if it has not been seen before
func (r *Redis) IsNew(ctx context.Context, id string) (bool, error) {
	set, err := r.rdb.SetNX(ctx, keyPrefix+id, 1, r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "dedup: redis SETNX")
	}

	return set, nil
}

// Forget deletes the seen marker for id
func (r *Redis) Forget(ctx context.Context, id string) error {
	return errors.Wrap(r.rdb.Del(ctx, keyPrefix+id).Err(), "dedup: redis DEL")
}

// Memory is an in process Filter
type Memory struct {
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
	m    sync.Mutex
}

// NewMemory returns a Memory filter remembering ids for ttl
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsNew returns true and marks id as seen if it has not been seen before
func (mem *Memory) IsNew(ctx context.Context, id string) (bool, error) {
	mem.m.Lock()
	defer mem.m.Unlock()

	now := mem.now()

	for k, exp := range mem.seen {
		if !exp.After(now) {
			delete(mem.seen, k)
		}
	}

	if _, ok := mem.seen[id]; ok {
		return false, nil
	}

	mem.seen[id] = now.Add(mem.ttl)
	return true, nil
}

// Forget deletes the seen marker for id
func (mem *Memory) Forget(ctx context.Context, id string) error {
	mem.m.Lock()
	defer mem.m.Unlock()

	delete(mem.seen, id)
	return nil
}
