// Package tally persists the devotional tally counter.
package tally

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"ramadan-companion/internal/kvstore"
)

const (
	// Namespace holds the counter key.
	Namespace = "tasbeeh_prefs"
	keyCount  = "count"
)

// Counter is a persisted non-negative integer.
type Counter struct {
	mu    sync.Mutex
	store *kvstore.Namespace
}

// New binds a counter to store.
func New(store kvstore.Store) *Counter {
	return &Counter{store: kvstore.NewNamespace(store, Namespace)}
}

// Get returns the current value; an unset counter reads as 0.
func (c *Counter) Get(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(ctx)
}

func (c *Counter) get(ctx context.Context) (int64, error) {
	raw, err := c.store.Get(ctx, keyCount)
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: malformed count %q", c.store.Name(), raw)
	}
	return n, nil
}

// Increment adds one and returns the new value.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.get(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := c.store.Set(ctx, keyCount, strconv.FormatInt(n, 10)); err != nil {
		return 0, err
	}
	return n, nil
}

// Reset sets the counter back to zero.
func (c *Counter) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Set(ctx, keyCount, "0")
}
