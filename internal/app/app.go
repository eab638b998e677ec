// Package app assembles the hashsync components around one store so the
// daemon and the CLI run the same wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"hashsync/internal/adapter"
	"hashsync/internal/alerts"
	"hashsync/internal/config"
	"hashsync/internal/csvimport"
	"hashsync/internal/logging"
	"hashsync/internal/merge"
	"hashsync/internal/metrics"
	"hashsync/internal/notifications"
	"hashsync/internal/resolver"
	"hashsync/internal/scrape"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/tracker"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Metrics  *metrics.Recorder
	Notifier notifications.Service
	Issues   tracker.Client
	Adapters *adapter.Registry
	Resolver *resolver.Resolver
	Scraper  *scrape.Engine
	Detector *alerts.Detector
	Alerts   *alerts.Manager
	Merger   *merge.Engine
	Importer *csvimport.Importer
}

// Option customizes assembly.
type Option func(*App)

// WithNotifier replaces the configured notifier.
func WithNotifier(n notifications.Service) Option {
	return func(a *App) { a.Notifier = n }
}

// WithTracker replaces the configured issue tracker.
func WithTracker(c tracker.Client) Option {
	return func(a *App) { a.Issues = c }
}

// WithAdapters replaces the default adapter registry.
func WithAdapters(r *adapter.Registry) Option {
	return func(a *App) { a.Adapters = r }
}

// WithMetrics replaces the configured recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *App) { a.Metrics = r }
}

// Open opens the store and wires every component.
func Open(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Metrics:  metrics.FromConfig(cfg),
		Notifier: notifications.NewService(cfg),
		Issues:   tracker.New(cfg),
		Adapters: adapter.NewRegistry(adapter.NewJSONFeed(cfg)),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Resolver = resolver.New(st, logger)

	a.Scraper = scrape.NewEngine(cfg, st, a.Adapters, logger)
	a.Scraper.SetMetrics(a.Metrics)

	a.Detector = alerts.NewDetector(cfg, st, a.Notifier, logger)
	a.Detector.SetMetrics(a.Metrics)
	a.Scraper.SetObserver(a.Detector)

	a.Alerts = alerts.NewManager(cfg, st, a.Scraper, a.Issues, logger)
	a.Alerts.SetMetrics(a.Metrics)
	a.Alerts.AddCacheClearer(a.Resolver)

	a.Merger = merge.NewEngine(st, a.Notifier, logger)
	a.Merger.SetMetrics(a.Metrics)
	a.Merger.AddCacheClearer(a.Resolver)

	a.Importer = csvimport.NewImporter(cfg, st, logger)
	a.Importer.SetMetrics(a.Metrics)
	return a, nil
}

// Resolve resolves tag through the shared cache, applying sourceID's
// patterns when sourceID is non-zero.
func (a *App) Resolve(ctx context.Context, tag string, sourceID int64) (resolver.Result, error) {
	if sourceID == 0 {
		return a.Resolver.Resolve(ctx, tag)
	}
	src, err := a.Store.GetSource(ctx, sourceID)
	if err != nil {
		return resolver.Result{}, err
	}
	if src == nil {
		return resolver.Result{}, services.Wrap(services.ErrNotFound, "app", "resolve", fmt.Sprintf("source %d not found", sourceID), nil)
	}
	return a.Resolver.ResolveForSource(ctx, tag, src)
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
