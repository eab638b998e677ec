// Package metrics exposes prometheus collectors for scrape runs, alerts,
// repairs, merges, and attendance imports.
//
// Each Recorder owns its registry so tests and multiple daemons in one process
// never collide on global registration. A nil *Recorder is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hashsync/internal/config"
)

// Recorder wraps the hashsync collectors.
type Recorder struct {
	registry *prometheus.Registry

	scrapeRuns     *prometheus.CounterVec
	scrapeEvents   *prometheus.CounterVec
	scrapeDuration *prometheus.HistogramVec
	alertsRaised   *prometheus.CounterVec
	repairActions  *prometheus.CounterVec
	kennelMerges   *prometheus.CounterVec
	importRecords  *prometheus.CounterVec
}

// New builds a recorder with its own registry. Go runtime and process
// collectors are registered alongside the hashsync metrics.
func New(namespace string) *Recorder {
	if namespace == "" {
		namespace = "hashsync"
	}
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.scrapeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_runs_total",
		Help:      "Scrape runs by source and status",
	}, []string{"source", "status"})
	r.scrapeEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_events_total",
		Help:      "Scraped candidates by source and merge outcome",
	}, []string{"source", "outcome"})
	r.scrapeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Wall time of one scrape run",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"source"})
	r.alertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_raised_total",
		Help:      "Alerts opened by type",
	}, []string{"type"})
	r.repairActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repair_actions_total",
		Help:      "Alert repair actions by action and result",
	}, []string{"action", "result"})
	r.kennelMerges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kennel_merges_total",
		Help:      "Kennel merge executions by result",
	}, []string{"result"})
	r.importRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_import_records_total",
		Help:      "Attendance records processed by import outcome",
	}, []string{"outcome"})

	r.registry.MustRegister(
		r.scrapeRuns, r.scrapeEvents, r.scrapeDuration,
		r.alertsRaised, r.repairActions, r.kennelMerges, r.importRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// FromConfig returns a recorder, or nil when metrics are disabled.
func FromConfig(cfg *config.Config) *Recorder {
	if cfg == nil || !cfg.Metrics.Enabled {
		return nil
	}
	return New(cfg.Metrics.Namespace)
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveScrape records one finished run.
func (r *Recorder) ObserveScrape(source, status string, created, updated, skipped int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.scrapeRuns.WithLabelValues(source, status).Inc()
	r.scrapeEvents.WithLabelValues(source, "created").Add(float64(created))
	r.scrapeEvents.WithLabelValues(source, "updated").Add(float64(updated))
	r.scrapeEvents.WithLabelValues(source, "skipped").Add(float64(skipped))
	r.scrapeDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// AlertRaised counts a newly opened alert.
func (r *Recorder) AlertRaised(alertType string) {
	if r == nil {
		return
	}
	r.alertsRaised.WithLabelValues(alertType).Inc()
}

// RepairAction counts one repair attempt.
func (r *Recorder) RepairAction(action, result string) {
	if r == nil {
		return
	}
	r.repairActions.WithLabelValues(action, result).Inc()
}

// KennelMerge counts one merge execution.
func (r *Recorder) KennelMerge(result string) {
	if r == nil {
		return
	}
	r.kennelMerges.WithLabelValues(result).Inc()
}

// ImportRecords counts attendance records by outcome (inserted, duplicate).
func (r *Recorder) ImportRecords(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.importRecords.WithLabelValues(outcome).Add(float64(n))
}

// CounterValue returns the current value of a counter series, or 0 when the
// series does not exist. Intended for status output and tests.
func (r *Recorder) CounterValue(name string, labels map[string]string) float64 {
	if r == nil {
		return 0
	}
	families, err := r.registry.Gather()
	if err != nil {
		return 0
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

type labelPair interface {
	GetName() string
	GetValue() string
}

func labelsMatch[T labelPair](pairs []T, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
