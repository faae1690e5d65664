package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "lat", "16.866100"))
	v, err := s.Get(ctx, "lat")
	require.NoError(t, err)
	assert.Equal(t, "16.866100", v)

	require.NoError(t, s.Set(ctx, "lat", "0.000000"))
	v, err = s.Get(ctx, "lat")
	require.NoError(t, err)
	assert.Equal(t, "0.000000", v)

	require.NoError(t, s.Delete(ctx, "lat"))
	_, err = s.Get(ctx, "lat")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "never-set"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 2, 20, 18, 31, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.SetTTL(ctx, "notified/2026-02-20/Maghrib", "run", 48*time.Hour))
	v, err := m.Get(ctx, "notified/2026-02-20/Maghrib")
	require.NoError(t, err)
	assert.Equal(t, "run", v)

	now = now.Add(48 * time.Hour)
	_, err = m.Get(ctx, "notified/2026-02-20/Maghrib")
	assert.ErrorIs(t, err, ErrNotFound)

	// the next write sweeps expired keys
	require.NoError(t, m.SetTTL(ctx, "notified/2026-02-22/Fajr", "run", time.Hour))
	assert.Len(t, m.data, 1)

	require.NoError(t, m.Set(ctx, "notified/2026-02-22/Fajr", "run"))
	now = now.Add(2 * time.Hour)
	_, err = m.Get(ctx, "notified/2026-02-22/Fajr")
	assert.NoError(t, err, "Set clears a previous expiry")
}

func TestBadgerSetTTL(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetTTL(ctx, "marker", "run", time.Hour))
	v, err := s.Get(ctx, "marker")
	require.NoError(t, err)
	assert.Equal(t, "run", v)

	var expiresAt uint64
	require.NoError(t, s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("marker"))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	}))
	assert.InDelta(t, float64(time.Now().Add(time.Hour).Unix()), float64(expiresAt), 60)

	require.NoError(t, s.SetTTL(ctx, "plain", "v", 0))
	require.NoError(t, s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("plain"))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	}))
	assert.Zero(t, expiresAt)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "tasbeeh_prefs/count", "33"))
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerConfig{Path: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "tasbeeh_prefs/count")
	require.NoError(t, err)
	assert.Equal(t, "33", v)
}

func TestBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client, "ramadan:", 0)
	defer s.Close()

	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", "v"))
	assert.True(t, mr.Exists("ramadan:k"))
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client, "ramadan:", 0)
	defer s.Close()
	ctx := context.Background()

	ns := NewNamespace(s, "notified")
	require.NoError(t, ns.SetTTL(ctx, "2026-02-20/Maghrib", "run", 48*time.Hour))
	assert.Equal(t, 48*time.Hour, mr.TTL("ramadan:notified/2026-02-20/Maghrib"))

	mr.FastForward(47 * time.Hour)
	_, err := ns.Get(ctx, "2026-02-20/Maghrib")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = ns.Get(ctx, "2026-02-20/Maghrib")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestNamespaceScopesKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	loc := NewNamespace(base, "location_prefs")
	tally := NewNamespace(base, "tasbeeh_prefs/")

	require.NoError(t, loc.Set(ctx, "lat", "1"))
	require.NoError(t, tally.Set(ctx, "count", "2"))

	v, err := base.Get(ctx, "location_prefs/lat")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	v, err = base.Get(ctx, "tasbeeh_prefs/count")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = tally.Get(ctx, "lat")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "tasbeeh_prefs", tally.Name())
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(context.Background(), Config{Backend: "etcd"}, zerolog.Nop())
	assert.Error(t, err)
}
