// Package kvstore provides the flat key-value persistence used for the
// coordinate cache and the tally counter.
package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when a key has never been set.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a flat string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetTTL writes key so that it expires after ttl. A ttl <= 0 behaves like Set.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Namespace scopes keys of an underlying store under a fixed prefix, the way
// separate preference files keep unrelated caches apart.
type Namespace struct {
	store  Store
	prefix string
}

// NewNamespace wraps store so every key is stored as "<name>/<key>".
func NewNamespace(store Store, name string) *Namespace {
	return &Namespace{store: store, prefix: strings.TrimSuffix(name, "/") + "/"}
}

// Name returns the namespace without the trailing separator.
func (n *Namespace) Name() string {
	return strings.TrimSuffix(n.prefix, "/")
}

// Get reads key within the namespace.
func (n *Namespace) Get(ctx context.Context, key string) (string, error) {
	return n.store.Get(ctx, n.prefix+key)
}

// Set writes key within the namespace.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

// SetTTL writes an expiring key within the namespace.
func (n *Namespace) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return n.store.SetTTL(ctx, n.prefix+key, value, ttl)
}

// Delete removes key within the namespace.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

// Close is a no-op; the underlying store is owned by the caller.
func (n *Namespace) Close() error {
	return nil
}

var _ Store = (*Namespace)(nil)
