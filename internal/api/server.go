// Package api serves the read-only schedule views and the small mutable
// surfaces (location override, tally) over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ramadan-companion/internal/config"
	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/metrics"
	"ramadan-companion/internal/ramadan"
	"ramadan-companion/internal/tally"
)

// LocationService is the subset of location.Service the handlers need.
type LocationService interface {
	Current(ctx context.Context) (geo.Coordinates, error)
	Set(ctx context.Context, lat, lon float64) (geo.Coordinates, error)
	ForDisplay(ctx context.Context, fallback geo.Coordinates, zeroLatUnset bool) (geo.Coordinates, bool)
}

// Deps wires the server to the domain services.
type Deps struct {
	Location          LocationService
	Planner           *ramadan.Planner
	Tally             *tally.Counter
	Metrics           *metrics.Metrics
	Fallback          geo.Coordinates
	ZeroLatitudeUnset bool
	Now               func() time.Time
}

// Server is the HTTP front of the companion.
type Server struct {
	cfg     config.APIConfig
	deps    Deps
	router  *gin.Engine
	limiter *rateLimiter
	logger  zerolog.Logger
}

// New builds the router.
func New(cfg config.APIConfig, deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Location == nil || deps.Planner == nil || deps.Tally == nil {
		return nil, errors.New("api: location, planner and tally are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.Burst, 10*time.Minute)
	}
	s.router = s.routes()
	return s, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.middleware(s.logger))
	}
	{
		v1.GET("/prayer-times", s.prayerTimes)
		v1.GET("/today", s.today)
		v1.GET("/ramadan", s.schedule)
		v1.GET("/location", s.getLocation)
		v1.PUT("/location", s.putLocation)
		v1.GET("/tally", s.getTally)
		v1.POST("/tally/increment", s.incrementTally)
		v1.POST("/tally/reset", s.resetTally)
	}
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(started)).
			Msg("request served")
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	if s.limiter != nil {
		go s.limiter.janitor(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info().Msg("api stopped")
	return nil
}
