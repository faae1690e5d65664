// Package prayer computes the daily prayer times for a coordinate pair.
package prayer

import (
	"errors"
	"fmt"
	"time"

	"github.com/mnadev/adhango/pkg/calc"
	"github.com/mnadev/adhango/pkg/data"
	"github.com/mnadev/adhango/pkg/util"

	"ramadan-companion/internal/geo"
)

var (
	// ErrNoCoordinates is returned when the coordinates are not known.
	ErrNoCoordinates = errors.New("prayer: coordinates unknown")
	// ErrPolarCondition is returned when the sun does not rise or set on the date.
	ErrPolarCondition = errors.New("prayer: sun does not rise or set on this date")
)

// Calculator derives prayer times. The calendar date is read from date in
// its own location; the returned instants are expressed in that location.
type Calculator interface {
	Compute(coords geo.Coordinates, date time.Time, method Method, madhab Madhab) (Times, error)
}

// Adhan computes prayer times with the adhan astronomical library.
type Adhan struct{}

// NewAdhan constructs the default calculator.
func NewAdhan() *Adhan {
	return &Adhan{}
}

// Compute implements Calculator.
func (a *Adhan) Compute(coords geo.Coordinates, date time.Time, method Method, madhab Madhab) (Times, error) {
	if !coords.Known {
		return Times{}, ErrNoCoordinates
	}
	if _, err := geo.New(coords.Latitude, coords.Longitude); err != nil {
		return Times{}, err
	}
	cm, err := method.calculation()
	if err != nil {
		return Times{}, err
	}
	if madhab == "" {
		madhab = Hanafi
	}

	loc := date.Location()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	civil := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	pt, err := a.solve(coords, civil, cm, madhab)
	if err != nil {
		return Times{}, fmt.Errorf("%w (lat %.4f, %s): %v", ErrPolarCondition, coords.Latitude, day.Format(time.DateOnly), err)
	}
	// adhan works on the solar day at the longitude; far from the zone's
	// meridian that day lands on the neighbouring local date.
	if shift := dayDiff(day, pt.Dhuhr.In(loc)); shift == 1 || shift == -1 {
		pt, err = a.solve(coords, civil.AddDate(0, 0, shift), cm, madhab)
		if err != nil {
			return Times{}, fmt.Errorf("%w (lat %.4f, %s): %v", ErrPolarCondition, coords.Latitude, day.Format(time.DateOnly), err)
		}
	}

	times := Times{
		Date:        day,
		Coordinates: coords,
		Method:      method,
		Madhab:      madhab,
		Fajr:        pt.Fajr.In(loc),
		Sunrise:     pt.Sunrise.In(loc),
		Dhuhr:       pt.Dhuhr.In(loc),
		Asr:         pt.Asr.In(loc),
		Maghrib:     pt.Maghrib.In(loc),
		Isha:        pt.Isha.In(loc),
	}
	if !daylight(times) {
		return Times{}, fmt.Errorf("%w (lat %.4f, %s)", ErrPolarCondition, coords.Latitude, day.Format(time.DateOnly))
	}
	return boundTwilight(times), nil
}

func (a *Adhan) solve(coords geo.Coordinates, civil time.Time, cm calc.CalculationMethod, madhab Madhab) (*calc.PrayerTimes, error) {
	point, err := util.NewCoordinates(coords.Latitude, coords.Longitude)
	if err != nil {
		return nil, err
	}
	params := calc.GetMethodParameters(cm)
	if madhab == Hanafi {
		params.Madhab = calc.HANAFI
	}
	return calc.NewPrayerTimes(point, data.NewDateComponents(civil), params)
}

// dayDiff returns how many calendar days want lies after got's local date.
func dayDiff(want, got time.Time) int {
	g := time.Date(got.Year(), got.Month(), got.Day(), 0, 0, 0, 0, time.UTC)
	w := time.Date(want.Year(), want.Month(), want.Day(), 0, 0, 0, 0, time.UTC)
	return int(w.Sub(g).Hours() / 24)
}

// daylight reports whether sunrise through maghrib are ordered and near the
// requested date. It fails when the sun never crosses the horizon.
func daylight(t Times) bool {
	seq := []time.Time{t.Sunrise, t.Dhuhr, t.Asr, t.Maghrib}
	for i, v := range seq {
		if d := dayDiff(t.Date, v); d < -1 || d > 1 {
			return false
		}
		if i > 0 && !v.After(seq[i-1]) {
			return false
		}
	}
	return t.Maghrib.Sub(t.Sunrise) < 24*time.Hour
}

// boundTwilight falls back to half of the night for a Fajr or Isha the
// twilight angle could not produce.
func boundTwilight(t Times) Times {
	half := (24*time.Hour - t.Maghrib.Sub(t.Sunrise)) / 2
	if gap := t.Sunrise.Sub(t.Fajr); gap <= 0 || gap > 12*time.Hour {
		t.Fajr = t.Sunrise.Add(-half).Round(time.Minute)
	}
	if gap := t.Isha.Sub(t.Maghrib); gap <= 0 || gap > 12*time.Hour {
		t.Isha = t.Maghrib.Add(half).Round(time.Minute)
	}
	return t
}

var _ Calculator = (*Adhan)(nil)
