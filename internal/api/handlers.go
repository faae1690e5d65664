package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/location"
	"ramadan-companion/internal/prayer"
)

type prayerTimesResponse struct {
	Date             string            `json:"date"`
	Coordinates      geo.Coordinates   `json:"coordinates"`
	FallbackLocation bool              `json:"fallback_location"`
	Method           prayer.Method     `json:"method"`
	Madhab           prayer.Madhab     `json:"madhab"`
	Times            map[string]string `json:"times"`
	SehriEnd         string            `json:"sehri_end"`
	Iftar            string            `json:"iftar"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) displayCoords(c *gin.Context) (geo.Coordinates, bool) {
	return s.deps.Location.ForDisplay(c.Request.Context(), s.deps.Fallback, s.deps.ZeroLatitudeUnset)
}

func (s *Server) prayerTimes(c *gin.Context) {
	loc := s.deps.Planner.Location()
	at := s.deps.Now().In(loc)
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		at = d.Add(12 * time.Hour)
	}
	coords, fallback := s.displayCoords(c)
	card, err := s.deps.Planner.Today(coords, at)
	if err != nil {
		s.computeError(c, err)
		return
	}
	times := make(map[string]string, len(prayer.Order))
	for _, e := range card.Times.Entries(prayer.Order) {
		times[string(e.Prayer)] = e.Time.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, prayerTimesResponse{
		Date:             at.Format(time.DateOnly),
		Coordinates:      coords,
		FallbackLocation: fallback,
		Method:           card.Method,
		Madhab:           card.Times.Madhab,
		Times:            times,
		SehriEnd:         card.SehriEnd.Format(time.RFC3339),
		Iftar:            card.Iftar.Format(time.RFC3339),
	})
}

func (s *Server) today(c *gin.Context) {
	coords, fallback := s.displayCoords(c)
	card, err := s.deps.Planner.Today(coords, s.deps.Now())
	if err != nil {
		s.computeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": card, "fallback_location": fallback})
}

func (s *Server) schedule(c *gin.Context) {
	coords, fallback := s.displayCoords(c)
	sched, err := s.deps.Planner.Schedule(coords, s.deps.Now())
	if err != nil {
		s.computeError(c, err)
		return
	}
	sched.Fallback = fallback
	c.JSON(http.StatusOK, sched)
}

func (s *Server) computeError(c *gin.Context, err error) {
	s.logger.Warn().Err(err).Str("path", c.FullPath()).Msg("prayer computation failed")
	status := http.StatusInternalServerError
	if errors.Is(err, prayer.ErrPolarCondition) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getLocation(c *gin.Context) {
	coords, err := s.deps.Location.Current(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, location.ErrMalformed) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coordinates": coords,
		"usable":      coords.Usable(s.deps.ZeroLatitudeUnset),
	})
}

func (s *Server) putLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}
	coords, err := s.deps.Location.Set(c.Request.Context(), *req.Latitude, *req.Longitude)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, geo.ErrOutOfRange) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info().Str("coords", coords.String()).Msg("location overridden via api")
	c.JSON(http.StatusOK, gin.H{"coordinates": coords})
}

func (s *Server) getTally(c *gin.Context) {
	n, err := s.deps.Tally.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) incrementTally(c *gin.Context) {
	n, err := s.deps.Tally.Increment(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.deps.Metrics.SetTally(n)
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) resetTally(c *gin.Context) {
	if err := s.deps.Tally.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.deps.Metrics.SetTally(0)
	c.JSON(http.StatusOK, gin.H{"count": 0})
}
