package prayer

import (
	"fmt"
	"strings"
	"time"

	"ramadan-companion/internal/geo"
)

// Prayer names one of the daily times.
type Prayer string

const (
	Fajr    Prayer = "Fajr"
	Sunrise Prayer = "Sunrise"
	Dhuhr   Prayer = "Dhuhr"
	Asr     Prayer = "Asr"
	Maghrib Prayer = "Maghrib"
	Isha    Prayer = "Isha"
)

// Order is the display order of the daily times.
var Order = []Prayer{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// Notifiable lists the five prayers that trigger notifications. Sunrise is
// not a prayer.
var Notifiable = []Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

// ParsePrayer resolves a prayer name, case-insensitively.
func ParsePrayer(name string) (Prayer, error) {
	for _, p := range Order {
		if strings.EqualFold(string(p), strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown prayer %q", name)
}

// Times holds the computed times for one coordinate pair and one date.
type Times struct {
	Date        time.Time
	Coordinates geo.Coordinates
	Method      Method
	Madhab      Madhab

	Fajr    time.Time
	Sunrise time.Time
	Dhuhr   time.Time
	Asr     time.Time
	Maghrib time.Time
	Isha    time.Time
}

// Entry pairs a prayer with its instant.
type Entry struct {
	Prayer Prayer
	Time   time.Time
}

// Get returns the instant of p, or the zero time for an unknown name.
func (t Times) Get(p Prayer) time.Time {
	switch p {
	case Fajr:
		return t.Fajr
	case Sunrise:
		return t.Sunrise
	case Dhuhr:
		return t.Dhuhr
	case Asr:
		return t.Asr
	case Maghrib:
		return t.Maghrib
	case Isha:
		return t.Isha
	}
	return time.Time{}
}

// Entries returns the given prayers in order.
func (t Times) Entries(prayers []Prayer) []Entry {
	out := make([]Entry, 0, len(prayers))
	for _, p := range prayers {
		out = append(out, Entry{Prayer: p, Time: t.Get(p)})
	}
	return out
}

// In converts every instant to loc.
func (t Times) In(loc *time.Location) Times {
	t.Fajr = t.Fajr.In(loc)
	t.Sunrise = t.Sunrise.In(loc)
	t.Dhuhr = t.Dhuhr.In(loc)
	t.Asr = t.Asr.In(loc)
	t.Maghrib = t.Maghrib.In(loc)
	t.Isha = t.Isha.In(loc)
	return t
}

// SehriEnd is the end of the pre-dawn meal, offset before Fajr.
func (t Times) SehriEnd(offset time.Duration) time.Time {
	return t.Fajr.Add(-offset)
}

// Iftar is the fast-breaking time, equal to Maghrib.
func (t Times) Iftar() time.Time {
	return t.Maghrib
}
