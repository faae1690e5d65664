// Package metrics exposes Prometheus instrumentation for the periodic check
// and the notification sinks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service reports to.
type Metrics struct {
	Checks        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	TickDuration  prometheus.Histogram
	LastTick      prometheus.Gauge
	TallyValue    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ramadan_prayer_checks_total",
				Help: "Periodic prayer checks by outcome",
			},
			[]string{"outcome"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ramadan_notifications_total",
				Help: "Prayer notifications by prayer and delivery result",
			},
			[]string{"prayer", "result"},
		),
		TickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ramadan_prayer_check_duration_seconds",
				Help:    "Duration of one periodic prayer check",
				Buckets: prometheus.DefBuckets,
			},
		),
		LastTick: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ramadan_prayer_check_last_timestamp_seconds",
				Help: "Unix time of the most recent prayer check",
			},
		),
		TallyValue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ramadan_tally_count",
				Help: "Current tally counter value",
			},
		),
		gatherer: reg,
	}
}

// ObserveCheck records one check outcome and its duration.
func (m *Metrics) ObserveCheck(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(time.Since(started).Seconds())
	m.LastTick.Set(float64(started.Unix()))
}

// ObserveNotification records one delivery attempt.
func (m *Metrics) ObserveNotification(prayer string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(prayer, result).Inc()
}

// ObserveUndelivered records a matched prayer with no sink to deliver it.
func (m *Metrics) ObserveUndelivered(prayer string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(prayer, "no_sink").Inc()
}

// ObserveSuppressed records a notification skipped by once-per-day suppression.
func (m *Metrics) ObserveSuppressed(prayer string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(prayer, "suppressed").Inc()
}

// SetTally publishes the tally value.
func (m *Metrics) SetTally(n int64) {
	if m == nil {
		return
	}
	m.TallyValue.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
