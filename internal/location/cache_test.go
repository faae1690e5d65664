package location

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/kvstore"
)

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	cache := NewCache(store)

	coords, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.False(t, coords.Known)

	require.NoError(t, cache.Save(ctx, Yangon))
	raw, err := store.Get(ctx, "location_prefs/lat")
	require.NoError(t, err)
	assert.Equal(t, "16.866100", raw)

	coords, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, coords.Known)
	assert.InDelta(t, 16.8661, coords.Latitude, 1e-9)
	assert.InDelta(t, 96.1951, coords.Longitude, 1e-9)

	require.NoError(t, cache.Clear(ctx))
	coords, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.False(t, coords.Known)
}

func TestCacheMalformed(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(ctx, "location_prefs/lat", "north"))
	require.NoError(t, store.Set(ctx, "location_prefs/lon", "96.2"))

	_, err := NewCache(store).Load(ctx)
	assert.ErrorIs(t, err, ErrMalformed)

	require.NoError(t, store.Set(ctx, "location_prefs/lat", "120"))
	_, err = NewCache(store).Load(ctx)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCacheRefusesUnknown(t *testing.T) {
	assert.Error(t, NewCache(kvstore.NewMemory()).Save(context.Background(), geo.Unknown))
}

type failingProvider struct{}

func (failingProvider) Locate(context.Context) (geo.Coordinates, error) {
	return geo.Unknown, errors.New("no fix")
}

func TestServiceRefreshKeepsPreviousFixOnFailure(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(kvstore.NewMemory())
	require.NoError(t, cache.Save(ctx, Yangon))

	svc := NewService(failingProvider{}, cache, zerolog.Nop())
	_, err := svc.Refresh(ctx)
	require.Error(t, err)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.InDelta(t, Yangon.Latitude, current.Latitude, 1e-9)
}

func TestServiceRefreshWritesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(kvstore.NewMemory())
	want := geo.Coordinates{Latitude: 21.4225, Longitude: 39.8262, Known: true}

	svc := NewService(StaticProvider{Coordinates: want}, cache, zerolog.Nop())
	got, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.Latitude, loaded.Latitude, 1e-9)
}

func TestServiceForDisplayFallsBack(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	svc := NewService(nil, NewCache(store), zerolog.Nop())

	coords, fallback := svc.ForDisplay(ctx, Yangon, true)
	assert.True(t, fallback)
	assert.Equal(t, Yangon, coords)

	_, err := svc.Set(ctx, 0, 10)
	require.NoError(t, err)
	_, fallback = svc.ForDisplay(ctx, Yangon, true)
	assert.True(t, fallback, "zero latitude reads as unset")
	coords, fallback = svc.ForDisplay(ctx, Yangon, false)
	assert.False(t, fallback)
	assert.Equal(t, 10.0, coords.Longitude)

	require.NoError(t, store.Set(ctx, "location_prefs/lat", "garbage"))
	_, fallback = svc.ForDisplay(ctx, Yangon, false)
	assert.True(t, fallback)
}
