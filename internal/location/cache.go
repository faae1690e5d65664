// Package location owns the cached last-known coordinates and the flow that
// refreshes them from a geolocation provider.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/kvstore"
)

const (
	// Namespace holds the coordinate keys.
	Namespace = "location_prefs"
	keyLat    = "lat"
	keyLon    = "lon"

	storedPlaces = 6
)

// ErrMalformed is returned when a cached value cannot be decoded.
var ErrMalformed = errors.New("location: malformed cached coordinates")

// Cache reads and writes the last successful fix.
type Cache struct {
	store *kvstore.Namespace
}

// NewCache binds a cache to store under the location namespace.
func NewCache(store kvstore.Store) *Cache {
	return &Cache{store: kvstore.NewNamespace(store, Namespace)}
}

// Load returns the cached pair. A missing latitude yields geo.Unknown and no
// error; a missing longitude alongside a present latitude reads as 0.
func (c *Cache) Load(ctx context.Context) (geo.Coordinates, error) {
	latRaw, err := c.store.Get(ctx, keyLat)
	if errors.Is(err, kvstore.ErrNotFound) {
		return geo.Unknown, nil
	}
	if err != nil {
		return geo.Unknown, fmt.Errorf("load latitude: %w", err)
	}
	lonRaw, err := c.store.Get(ctx, keyLon)
	if errors.Is(err, kvstore.ErrNotFound) {
		lonRaw = "0"
	} else if err != nil {
		return geo.Unknown, fmt.Errorf("load longitude: %w", err)
	}

	lat, err := decimal.NewFromString(latRaw)
	if err != nil {
		return geo.Unknown, fmt.Errorf("%w: lat %q", ErrMalformed, latRaw)
	}
	lon, err := decimal.NewFromString(lonRaw)
	if err != nil {
		return geo.Unknown, fmt.Errorf("%w: lon %q", ErrMalformed, lonRaw)
	}

	coords, err := geo.New(lat.InexactFloat64(), lon.InexactFloat64())
	if err != nil {
		return geo.Unknown, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return coords, nil
}

// Save writes both fields with fixed precision.
func (c *Cache) Save(ctx context.Context, coords geo.Coordinates) error {
	if !coords.Known {
		return errors.New("location: refusing to cache unknown coordinates")
	}
	if _, err := geo.New(coords.Latitude, coords.Longitude); err != nil {
		return err
	}
	lat := decimal.NewFromFloat(coords.Latitude).StringFixed(storedPlaces)
	lon := decimal.NewFromFloat(coords.Longitude).StringFixed(storedPlaces)
	if err := c.store.Set(ctx, keyLat, lat); err != nil {
		return fmt.Errorf("save latitude: %w", err)
	}
	if err := c.store.Set(ctx, keyLon, lon); err != nil {
		return fmt.Errorf("save longitude: %w", err)
	}
	return nil
}

// Clear forgets the cached fix.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, keyLat); err != nil {
		return err
	}
	return c.store.Delete(ctx, keyLon)
}
