// Package cache holds short lived JSON values such as the chat user roster
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "foiatracker:cache:"

// Cache stores JSON encodable values for a limited time
type Cache interface {
	// Get decodes the value stored under key into v. ok is false on a miss.
	Get(ctx context.Context, key string, v interface{}) (ok bool, err error)
	Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// Redis is a Cache backed by Redis string keys
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Redis cache
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Get implements Cache
func (r *Redis) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	b, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cache: failed to get %v", key)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return false, errors.Wrapf(err, "cache: failed to decode %v", key)
	}

	return true, nil
}

// Set implements Cache
func (r *Redis) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "cache: failed to encode %v", key)
	}

	if err := r.rdb.Set(ctx, keyPrefix+key, b, ttl).Err(); err != nil {
		return errors.Wrapf(err, "cache: failed to set %v", key)
	}

	return nil
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in process Cache
type Memory struct {
	entries map[string]entry
	now     func() time.Time
	m       sync.RWMutex
}

// NewMemory returns an empty Memory cache
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Cache
func (mem *Memory) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	mem.m.RLock()
	e, ok := mem.entries[key]
	mem.m.RUnlock()

	if !ok || !e.expires.After(mem.now()) {
		return false, nil
	}

	if err := json.Unmarshal(e.value, v); err != nil {
		return false, errors.Wrapf(err, "cache: failed to decode %v", key)
	}

	return true, nil
}

// Set implements Cache
func (mem *Memory) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "cache: failed to encode %v", key)
	}

	mem.m.Lock()
	defer mem.m.Unlock()

	mem.entries[key] = entry{value: b, expires: mem.now().Add(ttl)}
	return nil
}
