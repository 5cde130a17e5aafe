// Package cache is the explicit query cache shared by the services. Entries
// are keyed by resource and scope (usually a user id) and invalidated by
// hand after mutations or change events.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Resource names used by the services.
const (
	ResourceDashboard    = "dashboard"
	ResourceDocuments    = "documents"
	ResourceQuizzes      = "quizzes"
	ResourceStudySession = "study.session"
)

// Key addresses one cache entry.
type Key struct {
	Resource string
	ScopeID  string
}

func (k Key) String() string {
	return k.Resource + ":" + k.ScopeID
}

// Cache stores encoded values by key.
type Cache interface {
	// Get returns the stored bytes and whether the key was present.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Set stores value for ttl; a zero ttl uses the cache default.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	// Invalidate removes the given keys.
	Invalidate(ctx context.Context, keys ...Key) error
	Close() error
}

// Fetch returns the cached value for key or calls load and caches its result.
// Decode failures are treated as a miss.
func Fetch[T any](ctx context.Context, c Cache, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok, err := c.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return zero, err
	}
	if err := Store(ctx, c, key, v, 0); err != nil {
		return v, err
	}
	return v, nil
}

// Store encodes v as JSON and sets it.
func Store[T any](ctx context.Context, c Cache, key Key, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	return nil
}

// Load decodes the entry at key into a T. ok is false on a miss.
func Load[T any](ctx context.Context, c Cache, key Key) (v T, ok bool, err error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return v, true, nil
}

// UserKeys are the per-user entries invalidated together when a user's data changes.
func UserKeys(userID string, resources ...string) []Key {
	keys := make([]Key, 0, len(resources))
	for _, r := range resources {
		keys = append(keys, Key{Resource: r, ScopeID: userID})
	}
	return keys
}
