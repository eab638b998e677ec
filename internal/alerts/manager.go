package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/tracker"
)

// Rescraper re-runs a source's scrape. The scrape engine implements it.
type Rescraper interface {
	Rescrape(ctx context.Context, sourceID int64, force bool) (*store.ScrapeLog, error)
}

// CacheClearer is a resolution cache that must be dropped after kennel,
// alias, or link mutations.
type CacheClearer interface {
	ClearCache()
}

// Manager drives the alert lifecycle and repair actions.
type Manager struct {
	store     *store.Store
	cfg       config.Alerts
	rescraper Rescraper
	issues    tracker.Client
	metrics   *metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
	caches    []CacheClearer
}

// NewManager constructs a manager. rescraper and issues may be nil, in which
// case the matching repair actions fail with a descriptive error.
func NewManager(cfg *config.Config, st *store.Store, rescraper Rescraper, issues tracker.Client, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		cfg:       cfg.Alerts,
		rescraper: rescraper,
		issues:    issues,
		logger:    logging.NewComponentLogger(logger, "alerts"),
		now:       time.Now,
	}
}

// SetMetrics registers the metrics recorder.
func (m *Manager) SetMetrics(recorder *metrics.Recorder) {
	m.metrics = recorder
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// AddCacheClearer registers a long-lived resolver whose cache is dropped
// after every mutating repair.
func (m *Manager) AddCacheClearer(c CacheClearer) {
	if c != nil {
		m.caches = append(m.caches, c)
	}
}

func (m *Manager) clearCaches() {
	for _, c := range m.caches {
		c.ClearCache()
	}
}

// Detail is an alert with its source and repair log.
type Detail struct {
	Alert   *store.Alert
	Source  *store.Source
	Repairs []store.RepairEntry
}

// Get returns an alert with its repair log.
func (m *Manager) Get(ctx context.Context, id int64) (*Detail, error) {
	a, err := m.mustAlert(ctx, id, "get")
	if err != nil {
		return nil, err
	}
	src, err := m.store.GetSource(ctx, a.SourceID)
	if err != nil {
		return nil, err
	}
	repairs, err := m.store.RepairLog(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Alert: a, Source: src, Repairs: repairs}, nil
}

// List returns alerts matching filter, newest first. Expired snoozes are
// woken first so they list as OPEN.
func (m *Manager) List(ctx context.Context, filter store.AlertFilter) ([]*store.Alert, error) {
	if _, err := m.WakeExpired(ctx); err != nil {
		return nil, err
	}
	return m.store.ListAlerts(ctx, filter)
}

// WakeExpired returns every snoozed alert past its wake time to OPEN.
func (m *Manager) WakeExpired(ctx context.Context) (int, error) {
	return wakeExpired(ctx, m.store, m.now(), m.logger)
}

// Acknowledge moves an OPEN alert to ACKNOWLEDGED.
func (m *Manager) Acknowledge(ctx context.Context, id int64, actor string) (*store.Alert, error) {
	return m.transition(ctx, "acknowledge", store.Transition{
		AlertID: id,
		From:    []store.AlertStatus{store.AlertOpen},
		To:      store.AlertAcknowledged,
		Actor:   actorOrSystem(actor),
	})
}

// Snooze hides an OPEN or ACKNOWLEDGED alert until the wake time. A zero
// until snoozes for the configured default.
func (m *Manager) Snooze(ctx context.Context, id int64, until time.Time, actor string) (*store.Alert, error) {
	now := m.now()
	if until.IsZero() {
		until = now.Add(time.Duration(m.cfg.DefaultSnoozeHours) * time.Hour)
	}
	if !until.After(now) {
		return nil, services.Wrap(services.ErrValidation, "alerts", "snooze", "wake time must be in the future", nil)
	}
	return m.transition(ctx, "snooze", store.Transition{
		AlertID: id,
		From:    []store.AlertStatus{store.AlertOpen, store.AlertAcknowledged},
		To:      store.AlertSnoozed,
		Actor:   actorOrSystem(actor),
		Until:   &until,
	})
}

// Resolve closes any non-resolved alert.
func (m *Manager) Resolve(ctx context.Context, id int64, actor string) (*store.Alert, error) {
	return m.transition(ctx, "resolve", store.Transition{
		AlertID: id,
		From:    store.ActiveAlertStatuses,
		To:      store.AlertResolved,
		Actor:   actorOrSystem(actor),
	})
}

// ResolveAllForSource resolves every active alert of a source and reports
// how many changed.
func (m *Manager) ResolveAllForSource(ctx context.Context, sourceID int64, actor string) (int, error) {
	src, err := m.store.GetSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if src == nil {
		return 0, services.Wrap(services.ErrNotFound, "alerts", "resolve source", fmt.Sprintf("source %d not found", sourceID), nil)
	}
	active, err := m.store.ListAlerts(ctx, store.AlertFilter{SourceID: sourceID, Statuses: store.ActiveAlertStatuses})
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, a := range active {
		changed, err := m.store.TransitionAlert(ctx, store.Transition{
			AlertID: a.ID,
			From:    store.ActiveAlertStatuses,
			To:      store.AlertResolved,
			Actor:   actorOrSystem(actor),
		})
		if err != nil {
			return resolved, err
		}
		if changed {
			resolved++
		}
	}
	m.logger.Info("source alerts resolved",
		logging.SourceID(sourceID),
		logging.Int("resolved", resolved),
		logging.String(logging.FieldActor, actorOrSystem(actor)),
	)
	return resolved, nil
}

func (m *Manager) transition(ctx context.Context, op string, t store.Transition) (*store.Alert, error) {
	if _, err := m.WakeExpired(ctx); err != nil {
		return nil, err
	}
	if _, err := m.mustAlert(ctx, t.AlertID, op); err != nil {
		return nil, err
	}
	changed, err := m.store.TransitionAlert(ctx, t)
	if err != nil {
		return nil, err
	}
	current, err := m.mustAlert(ctx, t.AlertID, op)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, services.Wrap(services.ErrValidation, "alerts", op,
			fmt.Sprintf("alert %d is %s", t.AlertID, current.Status), nil)
	}
	m.logger.Info("alert transitioned",
		logging.AlertID(t.AlertID),
		logging.String("status", string(current.Status)),
		logging.String(logging.FieldActor, t.Actor),
	)
	return current, nil
}

func (m *Manager) mustAlert(ctx context.Context, id int64, op string) (*store.Alert, error) {
	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, services.Wrap(services.ErrNotFound, "alerts", op, fmt.Sprintf("alert %d not found", id), nil)
	}
	return a, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return services.SystemActor
	}
	return actor
}
