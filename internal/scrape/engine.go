package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"hashsync/internal/adapter"
	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/resolver"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

// ErrSourceBusy reports that another scrape of the same source holds its lock.
var ErrSourceBusy = fmt.Errorf("%w: scrape already running", services.ErrConflict)

// maxParallelSources bounds ScrapeAll concurrency.
const maxParallelSources = 4

// Options tune one scrape run.
type Options struct {
	// Force reprocesses candidates whose fingerprint is already current.
	Force bool
	Actor string
}

// RunResult summarizes one scrape run.
type RunResult struct {
	RunID          string        `json:"run_id"`
	SourceID       int64         `json:"source_id"`
	SourceName     string        `json:"source_name"`
	Success        bool          `json:"success"`
	EventsFound    int           `json:"events_found"`
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Skipped        int           `json:"skipped"`
	UnmatchedTags  []string      `json:"unmatched_tags,omitempty"`
	MismatchedTags []string      `json:"mismatched_tags,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	StructureHash  string        `json:"structure_hash,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// RunObserver receives every persisted scrape log.
type RunObserver interface {
	ObserveRun(ctx context.Context, log *store.ScrapeLog) error
}

// Engine merges adapter output into the event store.
type Engine struct {
	store    *store.Store
	adapters *adapter.Registry
	lockDir  string
	logger   *slog.Logger
	metrics  *metrics.Recorder
	observer RunObserver
	now      func() time.Time
}

// NewEngine constructs a scrape engine.
func NewEngine(cfg *config.Config, st *store.Store, adapters *adapter.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		adapters: adapters,
		lockDir:  cfg.LockDir(),
		logger:   logging.NewComponentLogger(logger, "scrape"),
		now:      time.Now,
	}
}

// SetObserver registers the component notified after each run.
func (e *Engine) SetObserver(observer RunObserver) {
	e.observer = observer
}

// SetMetrics registers the metrics recorder.
func (e *Engine) SetMetrics(recorder *metrics.Recorder) {
	e.metrics = recorder
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Scrape fetches one source and merges its candidates. The returned error is
// reserved for an unknown source, lock contention, or a store failure while
// persisting the run; fetch and candidate failures land in RunResult.Errors.
func (e *Engine) Scrape(ctx context.Context, sourceID int64, opts Options) (RunResult, error) {
	ctx = services.WithSourceID(ctx, sourceID)
	ctx = services.WithOperation(ctx, "scrape")
	ctx = services.WithActor(ctx, opts.Actor)
	logger := logging.WithContext(ctx, e.logger)

	src, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return RunResult{}, services.Wrap(services.ErrTransient, "scrape", "load source", "", err)
	}
	if src == nil {
		return RunResult{}, services.Wrap(services.ErrNotFound, "scrape", "load source", fmt.Sprintf("source %d not found", sourceID), nil)
	}

	unlock, err := e.lockSource(sourceID)
	if err != nil {
		return RunResult{}, err
	}
	defer unlock()

	started := e.now()
	run := &store.ScrapeLog{
		RunID:     uuid.NewString(),
		SourceID:  src.ID,
		Forced:    opts.Force,
		StartedAt: started,
	}
	logger = logger.With(logging.RunID(run.RunID))

	fetched, fetchErr := e.fetch(ctx, src)
	if fetchErr != nil {
		run.Status = store.RunFailed
		run.Errors = []string{fetchErr.Error()}
		logging.WarnWithContext(logger, "source fetch failed", "scrape_fetch_failed",
			logging.Error(fetchErr),
			logging.String(logging.FieldErrorHint, "check the source url and adapter configuration"),
			logging.String(logging.FieldImpact, "no events merged for this source this run"),
		)
	} else {
		run.Status = store.RunSuccess
		e.merge(ctx, logger, src, fetched, opts.Force, run)
	}
	run.FinishedAt = e.now()

	if err := e.store.InsertScrapeLog(ctx, run); err != nil {
		return RunResult{}, services.Wrap(services.ErrTransient, "scrape", "persist run", run.RunID, err)
	}
	hash := ""
	if run.Succeeded() {
		hash = run.StructureHash
	}
	if err := e.store.RecordScrape(ctx, src.ID, run.FinishedAt, hash); err != nil {
		logger.Warn("failed to stamp source scrape time", logging.Error(err))
	}

	if e.observer != nil {
		if err := e.observer.ObserveRun(ctx, run); err != nil {
			logging.ErrorWithContext(logger, "anomaly detection failed", "scrape_observe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "alerts for this run may be missing; rerun detection with a rescrape"),
			)
		}
	}

	elapsed := run.FinishedAt.Sub(started)
	e.metrics.ObserveScrape(src.Name, string(run.Status), run.Created, run.Updated, run.Skipped, elapsed)
	logger.Info("scrape run finished",
		logging.String("source", src.Name),
		logging.String("status", string(run.Status)),
		logging.Int("events_found", run.EventsFound),
		logging.Int("created", run.Created),
		logging.Int("updated", run.Updated),
		logging.Int("skipped", run.Skipped),
		logging.Int("unmatched_tags", len(run.UnmatchedTags)),
		logging.Int("errors", len(run.Errors)),
		logging.Duration("elapsed", elapsed),
	)
	return resultFromLog(src, run, elapsed), nil
}

// Rescrape runs a scrape and returns its persisted log. It lets the alert
// manager re-invoke scraping without importing this package.
func (e *Engine) Rescrape(ctx context.Context, sourceID int64, force bool) (*store.ScrapeLog, error) {
	res, err := e.Scrape(ctx, sourceID, Options{Force: force, Actor: services.ActorFromContext(ctx)})
	if err != nil {
		return nil, err
	}
	return e.store.GetScrapeLog(ctx, res.RunID)
}

// ScrapeAll scrapes every enabled source, several at a time. Results keep the
// source order; sources that could not start contribute to the joined error.
func (e *Engine) ScrapeAll(ctx context.Context, opts Options) ([]RunResult, error) {
	sources, err := e.store.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}
	results := make([]RunResult, len(sources))
	errs := make([]error, len(sources))
	sem := make(chan struct{}, maxParallelSources)
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = e.Scrape(ctx, id, opts)
		}(i, src.ID)
	}
	wg.Wait()

	out := results[:0]
	for i := range results {
		if errs[i] == nil {
			out = append(out, results[i])
		}
	}
	return out, errors.Join(errs...)
}

func (e *Engine) lockSource(sourceID int64) (func(), error) {
	if err := os.MkdirAll(e.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(e.lockDir, fmt.Sprintf("source-%d.lock", sourceID)))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire source lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: source %d", ErrSourceBusy, sourceID)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (e *Engine) fetch(ctx context.Context, src *store.Source) (adapter.FetchResult, error) {
	if e.adapters == nil {
		return adapter.FetchResult{}, errors.New("no adapters registered")
	}
	a, err := e.adapters.Lookup(src.Type)
	if err != nil {
		return adapter.FetchResult{}, err
	}
	return a.Fetch(ctx, src)
}

type candidateOutcome struct {
	upsert     store.UpsertOutcome
	skipped    bool
	unmatched  bool
	mismatched bool
}

func (e *Engine) merge(ctx context.Context, logger *slog.Logger, src *store.Source, fetched adapter.FetchResult, force bool, run *store.ScrapeLog) {
	run.EventsFound = len(fetched.Events)
	run.Errors = append(run.Errors, fetched.Errors...)
	run.StructureHash = structureHash(fetched.Structure, fetched.Events)

	linked, err := e.linkedKennels(ctx, src.ID)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("load source links: %v", err))
	}
	res := resolver.New(e.store, e.logger)

	var (
		valid      []candidate
		unmatched  []string
		mismatched []string
	)
	for i, raw := range fetched.Events {
		c, err := normalizeCandidate(raw)
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("candidate %d: %v", i, err))
			continue
		}
		valid = append(valid, c)

		out, err := e.mergeCandidate(ctx, res, src, linked, c, force)
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("candidate %d (%s %s): %v", i, c.Tag, c.Date, err))
			logger.Debug("candidate merge failed", logging.Int("index", i), logging.Error(err))
			continue
		}
		switch {
		case out.unmatched:
			unmatched = append(unmatched, c.Tag)
			continue
		case out.skipped:
			run.Skipped++
		case out.upsert == store.UpsertCreated:
			run.Created++
		case out.upsert == store.UpsertUpdated:
			run.Updated++
		default:
			run.Skipped++
		}
		if out.mismatched {
			mismatched = append(mismatched, c.Tag)
		}
	}

	run.UnmatchedTags = store.UnionTags(unmatched)
	run.MismatchedTags = store.UnionTags(mismatched)
	run.FillRates = fillRates(valid)
	if len(run.UnmatchedTags) > 0 {
		logger.Info("unresolved tags recorded",
			logging.Int("count", len(run.UnmatchedTags)),
			logging.Any("tags", run.UnmatchedTags),
		)
	}
}

func (e *Engine) linkedKennels(ctx context.Context, sourceID int64) (map[int64]bool, error) {
	ids, err := e.store.LinkedKennelIDs(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	linked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		linked[id] = true
	}
	return linked, nil
}

func (e *Engine) mergeCandidate(ctx context.Context, res *resolver.Resolver, src *store.Source, linked map[int64]bool, c candidate, force bool) (candidateOutcome, error) {
	fingerprint := c.fingerprint()
	resolution, err := res.ResolveForSource(ctx, c.Tag, src)
	if err != nil {
		return candidateOutcome{}, err
	}
	if !resolution.Matched {
		if c.Tag == "" {
			return candidateOutcome{}, errors.New("missing tag and no source default")
		}
		// Left unprocessed so the next run retries it once the tag resolves.
		if err := e.store.RecordRawEvent(ctx, &store.RawEvent{
			SourceID:    src.ID,
			Fingerprint: fingerprint,
			DataJSON:    c.encode(),
		}); err != nil {
			return candidateOutcome{}, err
		}
		return candidateOutcome{unmatched: true}, nil
	}

	out := candidateOutcome{mismatched: linked != nil && !linked[resolution.KennelID]}
	if !force {
		prior, err := e.store.RawEventByFingerprint(ctx, src.ID, fingerprint)
		if err != nil {
			return candidateOutcome{}, err
		}
		if prior != nil && prior.Processed {
			out.skipped = true
			return out, nil
		}
	}

	ev := &store.Event{
		KennelID:   resolution.KennelID,
		Date:       c.Date,
		RunNumber:  c.RunNumber,
		Title:      c.Title,
		Location:   c.Location,
		StartTime:  c.StartTime,
		Hares:      c.Hares,
		SourceURL:  c.SourceURL,
		Origin:     store.OriginScrape,
		SourceID:   src.ID,
		TrustLevel: src.TrustLevel,
	}
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		outcome, err := tx.UpsertEvent(ctx, ev)
		if err != nil {
			return err
		}
		out.upsert = outcome
		return tx.RecordRawEvent(ctx, &store.RawEvent{
			SourceID:    src.ID,
			Fingerprint: fingerprint,
			DataJSON:    c.encode(),
			EventID:     ev.ID,
			Processed:   true,
		})
	})
	if err != nil {
		return candidateOutcome{}, err
	}
	return out, nil
}

func resultFromLog(src *store.Source, run *store.ScrapeLog, elapsed time.Duration) RunResult {
	return RunResult{
		RunID:          run.RunID,
		SourceID:       src.ID,
		SourceName:     src.Name,
		Success:        run.Succeeded(),
		EventsFound:    run.EventsFound,
		Created:        run.Created,
		Updated:        run.Updated,
		Skipped:        run.Skipped,
		UnmatchedTags:  run.UnmatchedTags,
		MismatchedTags: run.MismatchedTags,
		Errors:         run.Errors,
		StructureHash:  run.StructureHash,
		Duration:       elapsed,
	}
}
