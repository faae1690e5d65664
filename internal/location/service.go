package location

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ramadan-companion/internal/geo"
)

// Service is the foreground location flow. It is the only writer of the cache.
type Service struct {
	provider Provider
	cache    *Cache
	logger   zerolog.Logger
}

// NewService wires a provider to the cache.
func NewService(provider Provider, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		logger:   logger.With().Str("component", "location").Logger(),
	}
}

// Refresh asks the provider for a fix and caches it. The previous fix is kept
// when the provider fails.
func (s *Service) Refresh(ctx context.Context) (geo.Coordinates, error) {
	if s.provider == nil {
		return geo.Unknown, fmt.Errorf("location: no provider configured")
	}
	coords, err := s.provider.Locate(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("location fetch failed, keeping cached fix")
		return geo.Unknown, fmt.Errorf("locate: %w", err)
	}
	if err := s.cache.Save(ctx, coords); err != nil {
		return geo.Unknown, err
	}
	s.logger.Info().Str("coords", coords.String()).Msg("cached new location")
	return coords, nil
}

// Set caches an explicit pair, as a manual override.
func (s *Service) Set(ctx context.Context, lat, lon float64) (geo.Coordinates, error) {
	coords, err := geo.New(lat, lon)
	if err != nil {
		return geo.Unknown, err
	}
	if err := s.cache.Save(ctx, coords); err != nil {
		return geo.Unknown, err
	}
	return coords, nil
}

// Current returns the cached fix.
func (s *Service) Current(ctx context.Context) (geo.Coordinates, error) {
	return s.cache.Load(ctx)
}

// ForDisplay returns the cached fix, or fallback when nothing usable is cached.
// The bool reports whether the fallback was used.
func (s *Service) ForDisplay(ctx context.Context, fallback geo.Coordinates, zeroLatUnset bool) (geo.Coordinates, bool) {
	coords, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cached location unreadable, using fallback")
		return fallback, true
	}
	if !coords.Usable(zeroLatUnset) {
		return fallback, true
	}
	return coords, false
}
