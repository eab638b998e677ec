package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/notifications"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

// CacheClearer is a resolution cache invalidated after a merge.
type CacheClearer interface {
	ClearCache()
}

// KennelRef names a kennel in merge output.
type KennelRef struct {
	ID        int64  `json:"id"`
	ShortName string `json:"short_name"`
	FullName  string `json:"full_name"`
}

// CollectionCount is the number of rows each side holds in one collection.
type CollectionCount struct {
	Table  string `json:"table"`
	Policy Policy `json:"policy"`
	Source int    `json:"source"`
	Target int    `json:"target"`
}

// Preview describes a merge without performing it.
type Preview struct {
	Source      KennelRef            `json:"source"`
	Target      KennelRef            `json:"target"`
	Collections []CollectionCount    `json:"collections"`
	Conflicts   []store.DateConflict `json:"conflicts,omitempty"`
}

// Blocked reports whether date conflicts prevent execution.
func (p *Preview) Blocked() bool {
	return p != nil && len(p.Conflicts) > 0
}

// Result is the outcome of Merge.
type Result struct {
	Preview     *Preview           `json:"preview,omitempty"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	Collections []CollectionResult `json:"collections,omitempty"`

	err error
}

// Err returns the classified error behind a failed result.
func (r Result) Err() error {
	return r.err
}

// Engine merges duplicate kennels.
type Engine struct {
	store    *store.Store
	notifier notifications.Service
	metrics  *metrics.Recorder
	logger   *slog.Logger
	caches   []CacheClearer
}

// NewEngine constructs a merge engine. notifier may be nil.
func NewEngine(st *store.Store, notifier notifications.Service, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "merge"),
	}
}

// SetMetrics registers the metrics recorder.
func (e *Engine) SetMetrics(recorder *metrics.Recorder) {
	e.metrics = recorder
}

// AddCacheClearer registers a resolver whose cache is dropped after a merge.
func (e *Engine) AddCacheClearer(c CacheClearer) {
	if c != nil {
		e.caches = append(e.caches, c)
	}
}

// Merge folds kennel sourceID into targetID. With preview set it only
// reports counts and conflicts. Execution refuses while any date conflict
// exists and otherwise walks the ownership graph in one transaction.
func (e *Engine) Merge(ctx context.Context, sourceID, targetID int64, preview bool) Result {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.Int64("source_kennel_id", sourceID),
		logging.Int64("target_kennel_id", targetID),
	)
	if sourceID == targetID {
		return e.fail(logger, "rejected", services.Wrap(services.ErrValidation, "merge", "merge kennels", "cannot merge a kennel into itself", nil), nil)
	}

	plan, err := e.preview(ctx, e.store, sourceID, targetID)
	if err != nil {
		return e.fail(logger, "rejected", err, nil)
	}
	if preview {
		return Result{Preview: plan, Success: !plan.Blocked()}
	}
	if plan.Blocked() {
		return e.fail(logger, "conflict", conflictError(plan.Conflicts), plan)
	}

	var collections []CollectionResult
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		// Re-check inside the transaction so a concurrent scrape cannot slip a
		// conflicting event in between preview and execution.
		conflicts, err := tx.SameDateEvents(ctx, sourceID, targetID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			plan.Conflicts = conflicts
			return conflictError(conflicts)
		}
		collections, err = walk(ctx, tx, sourceID, targetID)
		return err
	})
	if err != nil {
		return e.fail(logger, "failure", err, plan)
	}

	for _, c := range e.caches {
		c.ClearCache()
	}
	e.metrics.KennelMerge("success")
	moved := make(map[string]int, len(collections))
	attrs := make([]logging.Attr, 0, len(collections))
	for _, c := range collections {
		moved[c.Table] = int(c.Moved)
		attrs = append(attrs, logging.Int64(c.Table, c.Moved+c.Deduped+c.Deleted))
	}
	logger.Info("kennels merged",
		logging.String("source", plan.Source.ShortName),
		logging.String("target", plan.Target.ShortName),
		logging.Group("rows", attrs...),
	)
	if e.notifier != nil {
		if err := e.notifier.NotifyMergeCompleted(ctx, notifications.MergeNotice{
			SourceKennel: plan.Source.ShortName,
			TargetKennel: plan.Target.ShortName,
			Moved:        moved,
		}); err != nil {
			logging.WarnWithContext(logger, "merge notification failed", "merge_notify_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "merge completed without notification"),
			)
		}
	}
	return Result{Preview: plan, Success: true, Collections: collections}
}

func (e *Engine) fail(logger *slog.Logger, outcome string, err error, plan *Preview) Result {
	e.metrics.KennelMerge(outcome)
	logging.WarnWithContext(logger, "kennel merge failed", "merge_failed",
		logging.String("outcome", outcome),
		logging.Error(err),
	)
	return Result{Preview: plan, Error: services.Message(err), err: err}
}

type previewSource interface {
	GetKennel(ctx context.Context, id int64) (*store.Kennel, error)
	CountByKennel(ctx context.Context, table string, kennelID int64) (int, error)
	SameDateEvents(ctx context.Context, sourceKennelID, targetKennelID int64) ([]store.DateConflict, error)
}

func (e *Engine) preview(ctx context.Context, q previewSource, sourceID, targetID int64) (*Preview, error) {
	source, err := mustKennel(ctx, q, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := mustKennel(ctx, q, targetID)
	if err != nil {
		return nil, err
	}
	plan := &Preview{Source: ref(source), Target: ref(target)}
	for _, c := range ownershipGraph() {
		src, err := q.CountByKennel(ctx, c.table, sourceID)
		if err != nil {
			return nil, err
		}
		dst, err := q.CountByKennel(ctx, c.table, targetID)
		if err != nil {
			return nil, err
		}
		plan.Collections = append(plan.Collections, CollectionCount{Table: c.table, Policy: c.policy, Source: src, Target: dst})
	}
	if plan.Conflicts, err = q.SameDateEvents(ctx, sourceID, targetID); err != nil {
		return nil, err
	}
	return plan, nil
}

func walk(ctx context.Context, tx *store.Tx, from, to int64) ([]CollectionResult, error) {
	graph := ownershipGraph()
	results := make([]CollectionResult, 0, len(graph))
	for _, c := range graph {
		res, err := c.apply(ctx, tx, from, to)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.table, err)
		}
		results = append(results, res)
	}
	deleted, err := tx.DeleteKennel(ctx, from)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, services.Wrap(services.ErrNotFound, "merge", "delete kennel", fmt.Sprintf("kennel %d not found", from), nil)
	}
	refs, err := tx.KennelReferences(ctx, from)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		tables := make([]string, 0, len(refs))
		for table, n := range refs {
			tables = append(tables, fmt.Sprintf("%s=%d", table, n))
		}
		sort.Strings(tables)
		return nil, fmt.Errorf("kennel %d still referenced: %s", from, strings.Join(tables, ", "))
	}
	return results, nil
}

func mustKennel(ctx context.Context, q previewSource, id int64) (*store.Kennel, error) {
	k, err := q.GetKennel(ctx, id)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, services.Wrap(services.ErrNotFound, "merge", "load kennel", fmt.Sprintf("kennel %d not found", id), nil)
	}
	return k, nil
}

func conflictError(conflicts []store.DateConflict) error {
	dates := make([]string, 0, len(conflicts))
	seen := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		if _, ok := seen[c.Date]; ok {
			continue
		}
		seen[c.Date] = struct{}{}
		dates = append(dates, c.Date)
	}
	return services.Wrap(services.ErrConflict, "merge", "merge kennels",
		fmt.Sprintf("both kennels have events on %s; resolve these before merging", strings.Join(dates, ", ")), nil)
}

func ref(k *store.Kennel) KennelRef {
	return KennelRef{ID: k.ID, ShortName: k.ShortName, FullName: k.FullName}
}
