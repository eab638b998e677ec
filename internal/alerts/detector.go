package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/notifications"
	"hashsync/internal/resolver"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

// Detector evaluates detection rules for each scrape run.
type Detector struct {
	store    *store.Store
	cfg      config.Alerts
	notifier notifications.Service
	metrics  *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewDetector constructs a detector. notifier may be nil.
func NewDetector(cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger) *Detector {
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Detector{
		store:    st,
		cfg:      cfg.Alerts,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "detector"),
		now:      time.Now,
	}
}

// SetMetrics registers the metrics recorder.
func (d *Detector) SetMetrics(recorder *metrics.Recorder) {
	d.metrics = recorder
}

// SetClock overrides the time source, for tests.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

type detection struct {
	alertType store.AlertType
	severity  store.Severity
	title     string
	context   store.AlertContext
}

// ObserveRun evaluates every rule for run and opens or refreshes alerts.
func (d *Detector) ObserveRun(ctx context.Context, run *store.ScrapeLog) error {
	if run == nil {
		return nil
	}
	ctx = services.WithSourceID(ctx, run.SourceID)
	logger := logging.WithContext(ctx, d.logger).With(logging.RunID(run.RunID))

	if _, err := wakeExpired(ctx, d.store, d.now(), logger); err != nil {
		logger.Warn("failed to wake expired snoozes", logging.Error(err))
	}

	src, err := d.store.GetSource(ctx, run.SourceID)
	if err != nil {
		return err
	}
	if src == nil {
		return services.Wrap(services.ErrNotFound, "detector", "observe run", fmt.Sprintf("source %d not found", run.SourceID), nil)
	}

	detections, err := d.evaluate(ctx, src, run)
	if err != nil {
		return err
	}

	var errs []error
	if run.Succeeded() {
		if err := d.resolveFailures(ctx, logger, src); err != nil {
			errs = append(errs, err)
		}
	}
	for _, det := range detections {
		if err := d.raise(ctx, logger, src, det); err != nil {
			errs = append(errs, fmt.Errorf("raise %s: %w", det.alertType, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Detector) evaluate(ctx context.Context, src *store.Source, run *store.ScrapeLog) ([]detection, error) {
	if !run.Succeeded() {
		consecutive, err := d.store.ConsecutiveFailures(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		failure := store.ScrapeFailureContext{Errors: run.Errors, ConsecutiveFailures: consecutive}
		dets := []detection{{
			alertType: store.AlertScrapeFailure,
			severity:  store.SeverityWarning,
			title:     fmt.Sprintf("Scrape of %s failed", src.Name),
			context:   failure,
		}}
		if consecutive >= d.cfg.ConsecutiveFailureThreshold {
			dets = append(dets, detection{
				alertType: store.AlertConsecutiveFailures,
				severity:  store.SeverityCritical,
				title:     fmt.Sprintf("%s failed %d runs in a row", src.Name, consecutive),
				context:   failure,
			})
		}
		return dets, nil
	}

	var dets []detection
	if len(run.UnmatchedTags) > 0 {
		dets = append(dets, detection{
			alertType: store.AlertUnmatchedTags,
			severity:  store.SeverityWarning,
			title:     fmt.Sprintf("%d unresolved tag(s) from %s", len(run.UnmatchedTags), src.Name),
			context:   store.UnmatchedTagsContext{Tags: run.UnmatchedTags, RunID: run.RunID},
		})
	}
	if len(run.MismatchedTags) > 0 {
		kennels, err := d.mismatchedKennels(ctx, src, run.MismatchedTags)
		if err != nil {
			return nil, err
		}
		dets = append(dets, detection{
			alertType: store.AlertSourceKennelMismatch,
			severity:  store.SeverityWarning,
			title:     fmt.Sprintf("%s emits events for %d unlinked kennel tag(s)", src.Name, len(run.MismatchedTags)),
			context:   store.KennelMismatchContext{Tags: run.MismatchedTags, Kennels: kennels},
		})
	}

	baseline, err := d.store.RecentScrapeLogs(ctx, store.ScrapeLogQuery{
		SourceID:    src.ID,
		BeforeID:    run.ID,
		SuccessOnly: true,
		Limit:       d.cfg.BaselineRuns,
	})
	if err != nil {
		return nil, err
	}
	if len(baseline) > 0 {
		prev := baseline[0].StructureHash
		if prev != "" && run.StructureHash != "" && prev != run.StructureHash {
			dets = append(dets, detection{
				alertType: store.AlertStructureChange,
				severity:  store.SeverityInfo,
				title:     fmt.Sprintf("Structure of %s changed", src.Name),
				context:   store.StructureChangeContext{PreviousHash: prev, CurrentHash: run.StructureHash},
			})
		}
	}
	if len(baseline) < d.cfg.MinBaselineRuns {
		return dets, nil
	}
	if det, ok := d.eventCountRule(src, run, baseline); ok {
		dets = append(dets, det)
	}
	if det, ok := d.fieldFillRule(src, run, baseline); ok {
		dets = append(dets, det)
	}
	return dets, nil
}

func (d *Detector) eventCountRule(src *store.Source, run *store.ScrapeLog, baseline []*store.ScrapeLog) (detection, bool) {
	total := 0
	for _, prev := range baseline {
		total += prev.EventsFound
	}
	avg := float64(total) / float64(len(baseline))
	if avg <= 0 {
		return detection{}, false
	}
	drop := (avg - float64(run.EventsFound)) / avg * 100
	if drop <= d.cfg.EventCountDropPercent {
		return detection{}, false
	}
	severity := store.SeverityWarning
	if run.EventsFound == 0 {
		severity = store.SeverityCritical
	}
	return detection{
		alertType: store.AlertEventCountAnomaly,
		severity:  severity,
		title:     fmt.Sprintf("%s returned %d events, %.0f%% below its baseline of %.1f", src.Name, run.EventsFound, drop, avg),
		context: store.EventCountContext{
			Current:         run.EventsFound,
			BaselineAverage: round2(avg),
			BaselineRuns:    len(baseline),
			DropPercent:     round2(drop),
		},
	}, true
}

func (d *Detector) fieldFillRule(src *store.Source, run *store.ScrapeLog, baseline []*store.ScrapeLog) (detection, bool) {
	if run.EventsFound == 0 || len(run.FillRates) == 0 {
		return detection{}, false
	}
	fields := make([]string, 0, len(run.FillRates))
	for field := range run.FillRates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var drops []store.FieldDrop
	for _, field := range fields {
		sum, n := 0.0, 0
		for _, prev := range baseline {
			if rate, ok := prev.FillRates[field]; ok {
				sum += rate
				n++
			}
		}
		if n == 0 {
			continue
		}
		base := sum / float64(n)
		current := run.FillRates[field]
		if base-current > d.cfg.FieldFillDropPoints {
			drops = append(drops, store.FieldDrop{
				Field:      field,
				Baseline:   round2(base),
				Current:    round2(current),
				DropPoints: round2(base - current),
			})
		}
	}
	if len(drops) == 0 {
		return detection{}, false
	}
	names := make([]string, len(drops))
	for i, drop := range drops {
		names[i] = drop.Field
	}
	return detection{
		alertType: store.AlertFieldFillDrop,
		severity:  store.SeverityWarning,
		title:     fmt.Sprintf("Fill rate dropped on %s: %s", src.Name, strings.Join(names, ", ")),
		context:   store.FieldFillContext{Drops: drops},
	}, true
}

func (d *Detector) mismatchedKennels(ctx context.Context, src *store.Source, tags []string) ([]store.MismatchedKennel, error) {
	res := resolver.New(d.store, d.logger)
	out := make([]store.MismatchedKennel, 0, len(tags))
	for _, tag := range tags {
		r, err := res.ResolveForSource(ctx, tag, src)
		if err != nil {
			return nil, err
		}
		if !r.Matched {
			continue
		}
		out = append(out, store.MismatchedKennel{Tag: tag, KennelID: r.KennelID, ShortName: r.ShortName})
	}
	return out, nil
}

func (d *Detector) raise(ctx context.Context, logger *slog.Logger, src *store.Source, det detection) error {
	now := d.now()
	var opened *store.Alert
	err := d.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.ActiveAlert(ctx, src.ID, det.alertType)
		if err != nil {
			return err
		}
		if existing == nil {
			a := &store.Alert{
				SourceID: src.ID,
				Type:     det.alertType,
				Severity: det.severity,
				Status:   store.AlertOpen,
				Title:    det.title,
				Context:  det.context,
			}
			if err := tx.InsertAlert(ctx, a); err != nil {
				return err
			}
			opened = a
			return nil
		}
		if existing.Status == store.AlertSnoozed && snoozeExpired(existing, now) {
			if _, err := tx.TransitionAlert(ctx, store.Transition{
				AlertID: existing.ID,
				From:    []store.AlertStatus{store.AlertSnoozed},
				To:      store.AlertOpen,
				Actor:   services.SystemActor,
			}); err != nil {
				return err
			}
		}
		existing.Severity = det.severity
		existing.Title = det.title
		existing.Context = store.MergeContexts(existing.Context, det.context)
		return tx.RefreshAlert(ctx, existing)
	})
	if err != nil {
		return err
	}
	if opened == nil {
		logger.Debug("active alert refreshed", logging.String("type", string(det.alertType)))
		return nil
	}

	d.metrics.AlertRaised(string(opened.Type))
	logger.Info("alert opened",
		logging.AlertID(opened.ID),
		logging.String("type", string(opened.Type)),
		logging.String("severity", string(opened.Severity)),
		logging.String("title", opened.Title),
	)
	d.notify(ctx, logger, src, opened)
	return nil
}

func (d *Detector) notify(ctx context.Context, logger *slog.Logger, src *store.Source, a *store.Alert) {
	var err error
	if failure, ok := a.Context.(store.ScrapeFailureContext); ok && a.Type == store.AlertScrapeFailure {
		cause := ""
		if len(failure.Errors) > 0 {
			cause = failure.Errors[0]
		}
		err = d.notifier.NotifyScrapeFailed(ctx, src.Name, failure.ConsecutiveFailures, cause)
	} else {
		err = d.notifier.NotifyAlertOpened(ctx, notifications.AlertNotice{
			AlertID:    a.ID,
			SourceName: src.Name,
			Type:       string(a.Type),
			Severity:   string(a.Severity),
			Title:      a.Title,
		})
	}
	if err != nil {
		logging.WarnWithContext(logger, "alert notification failed", "alert_notify_failed",
			logging.AlertID(a.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "alert recorded but nobody was paged"),
		)
	}
}

func (d *Detector) resolveFailures(ctx context.Context, logger *slog.Logger, src *store.Source) error {
	for _, alertType := range []store.AlertType{store.AlertScrapeFailure, store.AlertConsecutiveFailures} {
		a, err := d.store.ActiveAlert(ctx, src.ID, alertType)
		if err != nil {
			return err
		}
		if a == nil {
			continue
		}
		changed, err := d.store.TransitionAlert(ctx, store.Transition{
			AlertID: a.ID,
			From:    store.ActiveAlertStatuses,
			To:      store.AlertResolved,
			Actor:   services.SystemActor,
		})
		if err != nil {
			return err
		}
		if changed {
			logger.Info("failure alert auto-resolved after successful run",
				logging.AlertID(a.ID),
				logging.String("type", string(alertType)),
			)
		}
	}
	return nil
}

func snoozeExpired(a *store.Alert, now time.Time) bool {
	return a.SnoozedUntil != nil && !a.SnoozedUntil.After(now)
}

// wakeExpired returns snoozed alerts past their wake time to OPEN.
func wakeExpired(ctx context.Context, st *store.Store, now time.Time, logger *slog.Logger) (int, error) {
	expired, err := st.ExpiredSnoozes(ctx, now)
	if err != nil {
		return 0, err
	}
	woken := 0
	for _, a := range expired {
		changed, err := st.TransitionAlert(ctx, store.Transition{
			AlertID: a.ID,
			From:    []store.AlertStatus{store.AlertSnoozed},
			To:      store.AlertOpen,
			Actor:   services.SystemActor,
		})
		if err != nil {
			return woken, err
		}
		if changed {
			woken++
			logger.Info("snoozed alert reopened", logging.AlertID(a.ID))
		}
	}
	return woken, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
