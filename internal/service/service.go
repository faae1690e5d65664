package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ramadan-companion/internal/alerting"
	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/kvstore"
	"ramadan-companion/internal/metrics"
	"ramadan-companion/internal/prayer"
	"ramadan-companion/internal/storage"
)

// Check outcomes reported to metrics and the audit log.
const (
	OutcomeNoLocation = "no_location"
	OutcomeNoMatch    = "no_match"
	OutcomeMatched    = "matched"
	OutcomeFailed     = "failed"
	OutcomeLocked     = "locked"
	OutcomeNoSink     = "no_sink"
)

// CoordinateSource supplies the cached coordinates.
type CoordinateSource interface {
	Load(ctx context.Context) (geo.Coordinates, error)
}

// Options tune the periodic check.
type Options struct {
	ZeroLatitudeUnset bool
	OncePerDay        bool
	Location          *time.Location
	AdvisoryLockKey   int64
}

// Result summarises one tick.
type Result struct {
	RunID   string
	At      time.Time
	Outcome string
	Method  prayer.Method
	Times   *prayer.Times
	Matched []prayer.Prayer
	Sent    []alerting.Notification
	Unsent  []alerting.Notification
	Err     error
}

// PrayerCheck orchestrates the read, compute, match and notify steps.
type PrayerCheck struct {
	coords   CoordinateSource
	calc     prayer.Calculator
	notifier alerting.Notifier
	marks    *kvstore.Namespace
	runs     storage.CheckRunStore
	notes    storage.NotificationStore
	locker   storage.AdvisoryLocker
	metrics  *metrics.Metrics
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customises optional collaborators.
type Option func(*PrayerCheck)

// WithAudit persists runs and notifications. The store doubles as the
// advisory locker when it implements storage.AdvisoryLocker.
func WithAudit(runs storage.CheckRunStore, notes storage.NotificationStore) Option {
	return func(p *PrayerCheck) {
		p.runs = runs
		p.notes = notes
		if l, ok := runs.(storage.AdvisoryLocker); ok {
			p.locker = l
		}
	}
}

// WithMetrics reports outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *PrayerCheck) { p.metrics = m }
}

// MarkerTTL 是单日提醒标记的保留时长, 跨过时区边界的次日仍能命中.
const MarkerTTL = 48 * time.Hour

// WithMarkers stores once-per-day markers in kv.
func WithMarkers(kv kvstore.Store) Option {
	return func(p *PrayerCheck) { p.marks = kvstore.NewNamespace(kv, "notified") }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *PrayerCheck) { p.now = now }
}

// New constructs the periodic prayer check.
func New(coords CoordinateSource, calc prayer.Calculator, notifier alerting.Notifier, opts Options, logger zerolog.Logger, options ...Option) *PrayerCheck {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	p := &PrayerCheck{
		coords:   coords,
		calc:     calc,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "prayer_check").Logger(),
		now:      time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Tick is the scheduler entry point. It never returns an error: a failed
// check is logged and skipped, and the next tick starts fresh.
func (p *PrayerCheck) Tick(ctx context.Context, _ time.Time) error {
	p.Evaluate(ctx, p.now())
	return nil
}

// Evaluate runs one check at the given instant.
func (p *PrayerCheck) Evaluate(ctx context.Context, at time.Time) (res Result) {
	started := time.Now()
	res = Result{RunID: uuid.NewString(), At: at.In(p.opts.Location)}
	log := p.logger.With().Str("run_id", res.RunID).Logger()

	var coords geo.Coordinates
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
			res.Sent = nil
			log.Error().Str("panic", fmt.Sprint(r)).Msg("prayer check panicked, skipping tick")
		}
		p.metrics.ObserveCheck(res.Outcome, started)
		p.recordRun(ctx, log, res, coords, time.Since(started))
	}()

	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("advisory lock unavailable, running unlocked")
	}
	if !proceed {
		res.Outcome = OutcomeLocked
		log.Debug().Msg("skip tick because advisory lock held elsewhere")
		return res
	}
	if unlock != nil {
		defer unlock()
	}

	coords, err = p.coords.Load(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("load coordinates: %w", err)
		log.Warn().Err(err).Msg("cached coordinates unreadable, skipping tick")
		return res
	}
	if !coords.Usable(p.opts.ZeroLatitudeUnset) {
		res.Outcome = OutcomeNoLocation
		log.Debug().Msg("location not established, nothing to do")
		return res
	}

	res.Method = prayer.SelectMethod(coords.Latitude, coords.Longitude)
	times, err := p.calc.Compute(coords, res.At, res.Method, prayer.Hanafi)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("compute prayer times: %w", err)
		log.Warn().Err(err).Str("coords", coords.String()).Msg("prayer time computation failed, skipping tick")
		return res
	}
	times = times.In(p.opts.Location)
	res.Times = &times

	res.Matched = Match(times, res.At)
	if len(res.Matched) == 0 {
		res.Outcome = OutcomeNoMatch
		log.Debug().Str("method", string(res.Method)).Msg("no prayer at this minute")
		return res
	}
	res.Outcome = OutcomeMatched
	if p.notifier == nil {
		res.Outcome = OutcomeNoSink
	}

	for _, name := range res.Matched {
		note := alerting.NewPrayerNotification(name, times.Get(name))
		note.RunID = res.RunID
		if p.opts.OncePerDay && p.alreadyNotified(ctx, log, note) {
			p.metrics.ObserveSuppressed(string(name))
			log.Info().Str("prayer", string(name)).Msg("already notified today, suppressed")
			continue
		}
		if p.notifier == nil {
			p.metrics.ObserveUndelivered(string(name))
			log.Warn().Str("prayer", string(name)).Msg("no notification sink configured, prayer not delivered")
			res.Unsent = append(res.Unsent, note)
			continue
		}
		if p.emit(ctx, log, note) {
			res.Sent = append(res.Sent, note)
		} else {
			res.Unsent = append(res.Unsent, note)
		}
	}
	return res
}

// Match returns the notifiable prayers whose hour and minute equal those of now.
func Match(times prayer.Times, now time.Time) []prayer.Prayer {
	var out []prayer.Prayer
	for _, e := range times.Entries(prayer.Notifiable) {
		t := e.Time.In(now.Location())
		if t.Hour() == now.Hour() && t.Minute() == now.Minute() {
			out = append(out, e.Prayer)
		}
	}
	return out
}

// emit delivers note through the configured sinks and reports success.
func (p *PrayerCheck) emit(ctx context.Context, log zerolog.Logger, note alerting.Notification) bool {
	sendErr := p.notifier.Notify(ctx, note)
	p.metrics.ObserveNotification(string(note.Prayer), sendErr)
	if sendErr != nil {
		log.Error().Err(sendErr).Str("prayer", string(note.Prayer)).Msg("failed to dispatch notification")
	} else {
		log.Info().Str("prayer", string(note.Prayer)).Uint32("id", note.ID).Msg("notification dispatched")
		p.markNotified(ctx, log, note)
	}

	if p.notes != nil {
		rec := storage.NotificationRecord{
			RunID:          note.RunID,
			Day:            note.At,
			Prayer:         string(note.Prayer),
			NotificationID: int64(note.ID),
			PrayerTime:     note.At,
		}
		if sendErr != nil {
			msg := sendErr.Error()
			rec.Error = &msg
		}
		if _, err := p.notes.RecordNotification(ctx, rec); err != nil {
			log.Error().Err(err).Str("prayer", string(note.Prayer)).Msg("failed to persist notification record")
		}
	}
	return sendErr == nil
}

func (p *PrayerCheck) markerKey(note alerting.Notification) string {
	return note.Day + "/" + string(note.Prayer)
}

func (p *PrayerCheck) alreadyNotified(ctx context.Context, log zerolog.Logger, note alerting.Notification) bool {
	if p.marks != nil {
		_, err := p.marks.Get(ctx, p.markerKey(note))
		if err == nil {
			return true
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to read notification marker")
		}
	}
	if p.notes != nil {
		done, err := p.notes.HasNotified(ctx, note.At, string(note.Prayer))
		if err != nil {
			log.Warn().Err(err).Msg("failed to query notification log")
			return false
		}
		return done
	}
	return false
}

func (p *PrayerCheck) markNotified(ctx context.Context, log zerolog.Logger, note alerting.Notification) {
	if p.marks == nil || !p.opts.OncePerDay {
		return
	}
	if err := p.marks.SetTTL(ctx, p.markerKey(note), note.RunID, MarkerTTL); err != nil {
		log.Warn().Err(err).Msg("failed to write notification marker")
	}
}

func (p *PrayerCheck) recordRun(ctx context.Context, log zerolog.Logger, res Result, coords geo.Coordinates, took time.Duration) {
	if p.runs == nil || res.Outcome == OutcomeLocked {
		return
	}
	run := storage.CheckRun{
		RunID:      res.RunID,
		TickAt:     res.At,
		Method:     string(res.Method),
		Status:     runStatus(res.Outcome),
		DurationMS: took.Milliseconds(),
	}
	if coords.Known {
		lat := decimal.NewFromFloat(coords.Latitude)
		lon := decimal.NewFromFloat(coords.Longitude)
		run.Latitude = &lat
		run.Longitude = &lon
	}
	for _, m := range res.Matched {
		run.Matched = append(run.Matched, string(m))
	}
	if res.Err != nil {
		msg := res.Err.Error()
		run.Error = &msg
	}
	if err := p.runs.InsertCheckRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("failed to persist check run")
	}
}

func runStatus(outcome string) string {
	switch outcome {
	case OutcomeNoLocation:
		return storage.StatusNoLocation
	case OutcomeFailed:
		return storage.StatusErrored
	case OutcomeNoMatch:
		return storage.StatusSkipped
	case OutcomeNoSink:
		return storage.StatusNoSink
	default:
		return storage.StatusComplete
	}
}

func (p *PrayerCheck) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.opts.AdvisoryLockKey == 0 || p.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.locker.TryAdvisoryLock(ctx, p.opts.AdvisoryLockKey)
	if err != nil {
		return nil, true, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
