// Package ramadan builds the month-long fasting schedule from prayer times.
package ramadan

import (
	"fmt"
	"strings"
	"time"

	"github.com/hablullah/go-hijri"
)

const (
	monthRamadan = 9
	// lastTabulatedYear is the final Hijri year fully covered by the
	// Umm al-Qura tables.
	lastTabulatedYear = 1500
)

// Calendar names the Hijri reckoning used to find 1 Ramadan.
type Calendar string

const (
	UmmAlQura  Calendar = "umm_al_qura"
	Arithmetic Calendar = "arithmetic"
)

// ParseCalendar resolves a calendar name; empty means UmmAlQura.
func ParseCalendar(name string) (Calendar, error) {
	switch Calendar(strings.ToLower(strings.TrimSpace(name))) {
	case "", UmmAlQura:
		return UmmAlQura, nil
	case Arithmetic:
		return Arithmetic, nil
	}
	return "", fmt.Errorf("unknown hijri calendar %q", name)
}

// HijriDate is a day in the Islamic calendar.
type HijriDate struct {
	Year  int64 `json:"year"`
	Month int64 `json:"month"`
	Day   int64 `json:"day"`
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d AH", h.Year, h.Month, h.Day)
}

// ToHijri converts the calendar day of t. Umm al-Qura falls back to the
// arithmetic calendar outside its tabulated range.
func ToHijri(t time.Time, cal Calendar) (HijriDate, Calendar, error) {
	day := civilDay(t)
	if cal != Arithmetic {
		if uq, err := hijri.CreateUmmAlQuraDate(day); err == nil {
			return HijriDate{Year: uq.Year, Month: uq.Month, Day: uq.Day}, UmmAlQura, nil
		}
	}
	h, err := hijri.CreateHijriDate(day, hijri.Default)
	if err != nil {
		return HijriDate{}, Arithmetic, fmt.Errorf("hijri conversion of %s: %w", day.Format(time.DateOnly), err)
	}
	return HijriDate{Year: h.Year, Month: h.Month, Day: h.Day}, Arithmetic, nil
}

// RamadanStart returns the Gregorian date of 1 Ramadan of the given Hijri
// year as midnight UTC.
func RamadanStart(year int64, cal Calendar) time.Time {
	if cal == UmmAlQura && year > 1356 && year <= lastTabulatedYear {
		return hijri.UmmAlQuraDate{Year: year, Month: monthRamadan, Day: 1}.ToGregorian()
	}
	return hijri.HijriDate{Year: year, Month: monthRamadan, Day: 1, Pattern: hijri.Default}.ToGregorian()
}

// UpcomingStart returns 1 Ramadan of the current Hijri year while it has not
// ended yet, otherwise of the next year.
func UpcomingStart(now time.Time, cal Calendar) (time.Time, int64, error) {
	h, used, err := ToHijri(now, cal)
	if err != nil {
		return time.Time{}, 0, err
	}
	year := h.Year
	if h.Month > monthRamadan {
		year++
	}
	return RamadanStart(year, used), year, nil
}

// civilDay keeps the calendar day of t in its own location and expresses it
// as midnight UTC, which is how the converters read dates.
func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
