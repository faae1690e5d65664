package ramadan

import (
	"fmt"
	"time"

	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/prayer"
)

// Config parameterises the schedule.
type Config struct {
	StartDate       string        `mapstructure:"start_date"`
	Days            int           `mapstructure:"days"`
	SehriOffset     time.Duration `mapstructure:"sehri_offset"`
	CardSehriOffset time.Duration `mapstructure:"card_sehri_offset"`
	Calendar        string        `mapstructure:"calendar"`
}

// Day is one row of the schedule.
type Day struct {
	Number   int           `json:"day"`
	Date     time.Time     `json:"date"`
	Hijri    HijriDate     `json:"hijri"`
	SehriEnd time.Time     `json:"sehri_end"`
	Fajr     time.Time     `json:"fajr"`
	Sunrise  time.Time     `json:"sunrise"`
	Dhuhr    time.Time     `json:"dhuhr"`
	Asr      time.Time     `json:"asr"`
	Iftar    time.Time     `json:"iftar"`
	Isha     time.Time     `json:"isha"`
	Method   prayer.Method `json:"method"`
	IsToday  bool          `json:"is_today"`
}

// Schedule is the whole month.
type Schedule struct {
	HijriYear   int64           `json:"hijri_year"`
	Calendar    Calendar        `json:"calendar"`
	Start       time.Time       `json:"start"`
	Coordinates geo.Coordinates `json:"coordinates"`
	Fallback    bool            `json:"fallback_location"`
	Method      prayer.Method   `json:"method"`
	Days        []Day           `json:"days"`
}

// Today returns the row for the current day, if the schedule covers it.
func (s Schedule) Today() (Day, bool) {
	for _, d := range s.Days {
		if d.IsToday {
			return d, true
		}
	}
	return Day{}, false
}

// Card is the home screen summary for today.
type Card struct {
	Date        time.Time       `json:"date"`
	Coordinates geo.Coordinates `json:"coordinates"`
	Method      prayer.Method   `json:"method"`
	SehriEnd    time.Time       `json:"sehri_end"`
	Iftar       time.Time       `json:"iftar"`
	RamadanDay  int             `json:"ramadan_day,omitempty"`
	Next        *prayer.Entry   `json:"next,omitempty"`
	Times       prayer.Times    `json:"-"`
}

// Planner derives schedules from a calculator.
type Planner struct {
	calc     prayer.Calculator
	cfg      Config
	calendar Calendar
	start    time.Time
	loc      *time.Location
}

// NewPlanner validates cfg and builds a planner. Dates are reckoned in loc.
func NewPlanner(calc prayer.Calculator, cfg Config, loc *time.Location) (*Planner, error) {
	if loc == nil {
		loc = time.Local
	}
	if cfg.Days <= 0 {
		cfg.Days = 30
	}
	if cfg.SehriOffset < 0 || cfg.CardSehriOffset < 0 {
		return nil, fmt.Errorf("sehri offsets must not be negative")
	}
	cal, err := ParseCalendar(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	p := &Planner{calc: calc, cfg: cfg, calendar: cal, loc: loc}
	if cfg.StartDate != "" {
		start, err := time.ParseInLocation(time.DateOnly, cfg.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("parse ramadan start_date: %w", err)
		}
		p.start = start
	}
	return p, nil
}

// Location returns the zone the planner reckons dates in.
func (p *Planner) Location() *time.Location {
	return p.loc
}

// Start resolves the first day of the schedule relative to now.
func (p *Planner) Start(now time.Time) (time.Time, int64, Calendar, error) {
	if !p.start.IsZero() {
		h, used, err := ToHijri(p.start, p.calendar)
		if err != nil {
			return time.Time{}, 0, "", err
		}
		return p.start, h.Year, used, nil
	}
	start, year, err := UpcomingStart(now.In(p.loc), p.calendar)
	if err != nil {
		return time.Time{}, 0, "", err
	}
	_, used, _ := ToHijri(start, p.calendar)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, p.loc), year, used, nil
}

// Schedule computes every day of the month for coords.
func (p *Planner) Schedule(coords geo.Coordinates, now time.Time) (Schedule, error) {
	start, year, cal, err := p.Start(now)
	if err != nil {
		return Schedule{}, err
	}
	method := prayer.SelectMethod(coords.Latitude, coords.Longitude)
	today := now.In(p.loc)

	out := Schedule{
		HijriYear:   year,
		Calendar:    cal,
		Start:       start,
		Coordinates: coords,
		Method:      method,
		Days:        make([]Day, 0, p.cfg.Days),
	}
	for i := 0; i < p.cfg.Days; i++ {
		date := start.AddDate(0, 0, i)
		times, err := p.calc.Compute(coords, date, method, prayer.Hanafi)
		if err != nil {
			return Schedule{}, fmt.Errorf("day %d (%s): %w", i+1, date.Format(time.DateOnly), err)
		}
		h, _, err := ToHijri(date, cal)
		if err != nil {
			return Schedule{}, err
		}
		out.Days = append(out.Days, Day{
			Number:   i + 1,
			Date:     date,
			Hijri:    h,
			SehriEnd: times.SehriEnd(p.cfg.SehriOffset),
			Fajr:     times.Fajr,
			Sunrise:  times.Sunrise,
			Dhuhr:    times.Dhuhr,
			Asr:      times.Asr,
			Iftar:    times.Iftar(),
			Isha:     times.Isha,
			Method:   method,
			IsToday:  sameDay(date, today),
		})
	}
	return out, nil
}

// Today builds the home card for now.
func (p *Planner) Today(coords geo.Coordinates, now time.Time) (Card, error) {
	local := now.In(p.loc)
	method := prayer.SelectMethod(coords.Latitude, coords.Longitude)
	times, err := p.calc.Compute(coords, local, method, prayer.Hanafi)
	if err != nil {
		return Card{}, err
	}
	card := Card{
		Date:        times.Date,
		Coordinates: coords,
		Method:      method,
		SehriEnd:    times.SehriEnd(p.cfg.CardSehriOffset),
		Iftar:       times.Iftar(),
		Times:       times,
	}
	for _, e := range times.Entries(prayer.Notifiable) {
		if e.Time.After(local) {
			card.Next = &e
			break
		}
	}
	if start, _, _, err := p.Start(local); err == nil {
		day := int(dayIndex(start, local)) + 1
		if day >= 1 && day <= p.cfg.Days {
			card.RamadanDay = day
		}
	}
	return card, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayIndex(start, t time.Time) int64 {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int64(d.Sub(s).Hours() / 24)
}
