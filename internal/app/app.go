package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ramadan-companion/internal/alerting"
	"ramadan-companion/internal/api"
	"ramadan-companion/internal/config"
	"ramadan-companion/internal/geo"
	"ramadan-companion/internal/kvstore"
	"ramadan-companion/internal/location"
	"ramadan-companion/internal/metrics"
	"ramadan-companion/internal/prayer"
	"ramadan-companion/internal/ramadan"
	"ramadan-companion/internal/scheduler"
	"ramadan-companion/internal/service"
	"ramadan-companion/internal/storage"
	"ramadan-companion/internal/tally"
	"ramadan-companion/internal/version"
)

const (
	locationRefreshJob = "LocationRefresh"
	retentionJob       = "AuditRetention"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	calc prayer.Calculator
	now  func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		calc:   prayer.NewAdhan(),
		now:    time.Now,
	}
}

// runtime holds the dependencies shared by every command.
type runtime struct {
	kv       kvstore.Store
	cache    *location.Cache
	location *location.Service
	planner  *ramadan.Planner
	tally    *tally.Counter
	tz       *time.Location
}

func (r *runtime) Close() {
	if r.kv != nil {
		_ = r.kv.Close()
	}
}

func (a *App) open(ctx context.Context) (*runtime, error) {
	tz, err := a.Config.TimeLocation()
	if err != nil {
		return nil, err
	}
	kv, err := kvstore.Open(ctx, a.Config.KV, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	planner, err := ramadan.NewPlanner(a.calc, a.Config.Ramadan, tz)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	cache := location.NewCache(kv)
	return &runtime{
		kv:       kv,
		cache:    cache,
		location: location.NewService(a.newProvider(), cache, a.Logger),
		planner:  planner,
		tally:    tally.New(kv),
		tz:       tz,
	}, nil
}

func (a *App) newProvider() location.Provider {
	cfg := a.Config.Location
	switch strings.ToLower(cfg.Provider) {
	case "static":
		return location.StaticProvider{Coordinates: geo.Coordinates{
			Latitude:  cfg.Static.Latitude,
			Longitude: cfg.Static.Longitude,
			Known:     true,
		}}
	case "none":
		return nil
	default:
		ua := cfg.IPAPI.UserAgent
		if ua == "" {
			ua = version.UserAgent()
		}
		return location.NewIPProvider(location.IPOptions{
			BaseURL:   cfg.IPAPI.BaseURL,
			Timeout:   cfg.IPAPI.RequestTimeout,
			UserAgent: ua,
		}, a.Logger)
	}
}

func (a *App) fallback() geo.Coordinates {
	cfg := a.Config.Location
	coords, err := geo.New(cfg.FallbackLatitude, cfg.FallbackLongitude)
	if err != nil {
		return location.Yangon
	}
	return coords
}

// newNotifier fans out to every enabled sink. The returned closer disconnects
// the MQTT client when one was dialled.
func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	var sinks []alerting.Notifier
	closer := func() {}
	if cfg.Log.Enabled {
		sinks = append(sinks, alerting.NewLogNotifier(a.Logger))
	}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Telegram.RequestTimeout, a.Logger))
	}
	if cfg.MQTT.Enabled {
		n, client, err := alerting.DialMQTT(alerting.MQTTOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            byte(cfg.MQTT.QoS),
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, n)
		closer = func() { client.Disconnect(250) }
	}

	fan := alerting.NewFanout(sinks...)
	if fan.Len() == 0 {
		a.Logger.Warn().Msg("alerting enabled but no sink configured")
		return nil, closer, nil
	}
	return fan, closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if !a.Config.Database.Enabled || a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newCheck(rt *runtime, notifier alerting.Notifier, store *storage.Store, m *metrics.Metrics) *service.PrayerCheck {
	opts := []service.Option{service.WithMetrics(m), service.WithClock(a.now)}
	if a.Config.Alerting.OncePerDay {
		opts = append(opts, service.WithMarkers(rt.kv))
	}
	if store != nil {
		opts = append(opts, service.WithAudit(store, store))
	}
	return service.New(rt.cache, a.calc, notifier, service.Options{
		ZeroLatitudeUnset: a.Config.Location.ZeroLatitudeUnset,
		OncePerDay:        a.Config.Alerting.OncePerDay,
		Location:          rt.tz,
		AdvisoryLockKey:   a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger, opts...)
}

// Run executes the long-running companion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database not configured; audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if n, err := rt.tally.Get(ctx); err == nil {
		m.SetTally(n)
	}

	if a.Config.Location.RefreshOnStart {
		if _, err := rt.location.Refresh(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("initial location refresh failed")
		}
	}

	registry := scheduler.NewRegistry(a.Logger)
	if err := a.registerJobs(registry, rt, notifier, store, m); err != nil {
		return err
	}

	for _, job := range registry.Jobs() {
		a.Logger.Debug().Str("job", job.Name).Dur("interval", job.Interval).Msg("periodic job queued")
	}

	var srv *api.Server
	if a.Config.API.Enabled {
		srv, err = api.New(a.Config.API, api.Deps{
			Location:          rt.location,
			Planner:           rt.planner,
			Tally:             rt.tally,
			Metrics:           m,
			Fallback:          a.fallback(),
			ZeroLatitudeUnset: a.Config.Location.ZeroLatitudeUnset,
			Now:               a.now,
		}, a.Logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	a.Logger.Info().Str("job", a.Config.Scheduler.JobName).Dur("interval", a.Config.Scheduler.Interval).Msg("starting companion service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("companion service stopped")
	return nil
}

func (a *App) registerJobs(registry *scheduler.Registry, rt *runtime, notifier alerting.Notifier, store *storage.Store, m *metrics.Metrics) error {
	sc := a.Config.Scheduler
	policy, err := scheduler.ParsePolicy(sc.ExistingPolicy)
	if err != nil {
		return err
	}
	check := a.newCheck(rt, notifier, store, m)
	if _, err := registry.EnqueueUniquePeriodic(sc.JobName, policy, scheduler.Options{
		Interval:       sc.Interval,
		AlignToStart:   sc.AlignToStart,
		StartupDelay:   sc.StartupDelay,
		RunImmediately: sc.RunImmediately,
	}, check.Tick); err != nil {
		return err
	}

	if every := a.Config.Location.RefreshInterval; every > 0 && !strings.EqualFold(a.Config.Location.Provider, "none") {
		_, err := registry.EnqueueUniquePeriodic(locationRefreshJob, scheduler.Replace, scheduler.Options{Interval: every}, func(ctx context.Context, _ time.Time) error {
			_, err := rt.location.Refresh(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if keep := a.Config.Database.Retention; store != nil && keep > 0 {
		_, err := registry.EnqueueUniquePeriodic(retentionJob, scheduler.Replace, scheduler.Options{Interval: 24 * time.Hour}, func(ctx context.Context, at time.Time) error {
			return store.DeleteRunsBefore(ctx, at.Add(-keep))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportOptions hold parameters for exporting the Ramadan schedule.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
