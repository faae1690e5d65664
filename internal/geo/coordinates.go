// Package geo holds the coordinate model shared by the location cache,
// the prayer calculator and the periodic check.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange reports a latitude or longitude outside the valid domain.
var ErrOutOfRange = errors.New("coordinates out of range")

// Coordinates is a latitude/longitude pair in decimal degrees.
// Known is false when no location fix has been recorded yet.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Known     bool    `json:"known"`
}

// Unknown is the zero "never fetched" value.
var Unknown = Coordinates{}

// New validates and returns a known coordinate pair.
func New(lat, lon float64) (Coordinates, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return Coordinates{}, fmt.Errorf("%w: non-finite value", ErrOutOfRange)
	}
	if lat < -90 || lat > 90 {
		return Coordinates{}, fmt.Errorf("%w: latitude %.6f", ErrOutOfRange, lat)
	}
	if lon < -180 || lon > 180 {
		return Coordinates{}, fmt.Errorf("%w: longitude %.6f", ErrOutOfRange, lon)
	}
	return Coordinates{Latitude: lat, Longitude: lon, Known: true}, nil
}

// Usable reports whether the pair may drive a computation. When zeroLatUnset
// is set, a latitude of exactly 0.0 is read as the legacy "never fetched"
// marker even if Known is true.
func (c Coordinates) Usable(zeroLatUnset bool) bool {
	if !c.Known {
		return false
	}
	if zeroLatUnset && c.Latitude == 0 {
		return false
	}
	return true
}

func (c Coordinates) String() string {
	if !c.Known {
		return "unknown"
	}
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}
