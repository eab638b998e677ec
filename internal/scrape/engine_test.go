package scrape_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"hashsync/internal/adapter"
	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/scrape"
	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/testsupport"
)

type stubAdapter struct {
	result adapter.FetchResult
	err    error
	calls  int
}

func (s *stubAdapter) Type() string { return adapter.TypeJSONFeed }

func (s *stubAdapter) Fetch(context.Context, *store.Source) (adapter.FetchResult, error) {
	s.calls++
	return s.result, s.err
}

type recordingObserver struct {
	logs []*store.ScrapeLog
}

func (r *recordingObserver) ObserveRun(_ context.Context, log *store.ScrapeLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func intPtr(v int) *int { return &v }

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	engine   *scrape.Engine
	feed     *stubAdapter
	observer *recordingObserver
	metrics  *metrics.Recorder
	source   *store.Source
	kennel   *store.Kennel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	kennel := testsupport.MustCreateKennel(t, st, "RH3", "Rumson")
	src := testsupport.MustCreateSource(t, st, "Rumson Calendar", store.SourceConfig{})
	testsupport.MustLink(t, st, src.ID, kennel.ID)

	feed := &stubAdapter{}
	engine := scrape.NewEngine(cfg, st, adapter.NewRegistry(feed), logging.NewNop())
	observer := &recordingObserver{}
	engine.SetObserver(observer)
	rec := metrics.New("test")
	engine.SetMetrics(rec)
	return &fixture{cfg: cfg, store: st, engine: engine, feed: feed, observer: observer, metrics: rec, source: src, kennel: kennel}
}

func (f *fixture) scrape(t *testing.T, opts scrape.Options) scrape.RunResult {
	t.Helper()
	res, err := f.engine.Scrape(context.Background(), f.source.ID, opts)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	return res
}

func TestScrapeIsIdempotentOnUnchangedInput(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{
		{Tag: "RH3", Date: "2026-01-15", Title: "Winter Trail", RunNumber: intPtr(2100)},
		{Tag: "rumson", Date: "1/22/26", Title: "Pub Crawl"},
		{Tag: "Mystery H3", Date: "2026-01-23"},
	}}

	first := f.scrape(t, scrape.Options{})
	if !first.Success || first.Created != 2 || first.Updated != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	if len(first.UnmatchedTags) != 1 || first.UnmatchedTags[0] != "Mystery H3" {
		t.Fatalf("expected unmatched tag recorded, got %v", first.UnmatchedTags)
	}

	second := f.scrape(t, scrape.Options{})
	if second.Created != 0 || second.Updated != 0 || second.Skipped != 2 {
		t.Fatalf("second run should skip current candidates: %+v", second)
	}
	count, err := f.store.CountEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events after two runs, got %d", count)
	}

	forced := f.scrape(t, scrape.Options{Force: true})
	if forced.Created != 0 || forced.Updated != 0 || forced.Skipped != 2 {
		t.Fatalf("forced run on unchanged input should change nothing: %+v", forced)
	}
	if len(f.observer.logs) != 3 {
		t.Fatalf("observer should see every run, saw %d", len(f.observer.logs))
	}
	if got := f.metrics.CounterValue("test_scrape_runs_total", map[string]string{"status": "success"}); got != 3 {
		t.Fatalf("expected 3 successful runs recorded, got %v", got)
	}
}

func TestScrapeUpdatesChangedFields(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{
		{Tag: "RH3", Date: "2026-01-15", Title: "Winter Trail", RunNumber: intPtr(2100)},
	}}
	f.scrape(t, scrape.Options{})

	f.feed.result.Events[0].Location = "Red Bank Station"
	res := f.scrape(t, scrape.Options{})
	if res.Created != 0 || res.Updated != 1 {
		t.Fatalf("expected one update, got %+v", res)
	}
	ev, err := f.store.FindEventByNaturalKey(context.Background(), f.kennel.ID, "2026-01-15", intPtr(2100))
	if err != nil || ev == nil {
		t.Fatalf("FindEventByNaturalKey: %v %v", ev, err)
	}
	if ev.Location != "Red Bank Station" || ev.Title != "Winter Trail" {
		t.Fatalf("unexpected merged event: %+v", ev)
	}
}

func TestScrapeIsolatesCandidateFailures(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{
		Events: []adapter.RawEvent{
			{Tag: "RH3", Date: "not a date"},
			{Tag: "Unknown Kennel", Date: "2026-02-01"},
			{Tag: "RH3", Date: "2026-02-08"},
			{Tag: "", Date: "2026-02-09"},
		},
		Errors: []string{"event[9]: decode: bad json"},
	}
	res := f.scrape(t, scrape.Options{})
	if !res.Success {
		t.Fatalf("candidate failures must not fail the run: %+v", res)
	}
	if res.Created != 1 {
		t.Fatalf("resolvable candidate should still be created, got %+v", res)
	}
	if len(res.Errors) != 3 {
		t.Fatalf("expected adapter error plus two candidate errors, got %v", res.Errors)
	}
	if len(res.UnmatchedTags) != 1 {
		t.Fatalf("expected one unmatched tag, got %v", res.UnmatchedTags)
	}
}

func TestScrapeRetriesUnmatchedOnceResolvable(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{
		{Tag: "Rumson Hash", Date: "2026-03-01"},
	}}
	first := f.scrape(t, scrape.Options{})
	if first.Created != 0 || len(first.UnmatchedTags) != 1 {
		t.Fatalf("unexpected first run: %+v", first)
	}

	if _, err := f.store.CreateAlias(context.Background(), f.kennel.ID, "Rumson Hash"); err != nil {
		t.Fatalf("CreateAlias: %v", err)
	}
	second := f.scrape(t, scrape.Options{})
	if second.Created != 1 || len(second.UnmatchedTags) != 0 {
		t.Fatalf("candidate should merge after alias exists: %+v", second)
	}
}

func TestScrapeRecordsKennelMismatch(t *testing.T) {
	f := newFixture(t)
	testsupport.MustCreateKennel(t, f.store, "NYCH3")
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{
		{Tag: "NYCH3", Date: "2026-01-10"},
		{Tag: "RH3", Date: "2026-01-11"},
	}}
	res := f.scrape(t, scrape.Options{})
	if res.Created != 2 {
		t.Fatalf("mismatched events are still merged: %+v", res)
	}
	if len(res.MismatchedTags) != 1 || res.MismatchedTags[0] != "NYCH3" {
		t.Fatalf("expected NYCH3 mismatch, got %v", res.MismatchedTags)
	}
}

func TestScrapeFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.feed.err = errors.New("connection refused")

	res := f.scrape(t, scrape.Options{})
	if res.Success {
		t.Fatal("fetch failure must mark the run unsuccessful")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected fetch error recorded, got %v", res.Errors)
	}
	logged, err := f.store.GetScrapeLog(context.Background(), res.RunID)
	if err != nil || logged == nil {
		t.Fatalf("GetScrapeLog: %v %v", logged, err)
	}
	if logged.Status != store.RunFailed {
		t.Fatalf("expected failed status, got %s", logged.Status)
	}
	if len(f.observer.logs) != 1 || f.observer.logs[0].Succeeded() {
		t.Fatalf("observer should receive the failed run")
	}
}

func TestScrapeStructureHash(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{
		{Tag: "RH3", Date: "2026-01-15"},
	}}
	a := f.scrape(t, scrape.Options{})
	b := f.scrape(t, scrape.Options{})
	if a.StructureHash == "" || a.StructureHash != b.StructureHash {
		t.Fatalf("fallback structure hash should be stable: %q vs %q", a.StructureHash, b.StructureHash)
	}

	f.feed.result.Structure = []string{"calendar", "RH3"}
	c := f.scrape(t, scrape.Options{})
	if c.StructureHash == a.StructureHash {
		t.Fatal("adapter structure should change the hash")
	}
	src, err := f.store.GetSource(context.Background(), f.source.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if src.LastStructureHash != c.StructureHash || src.LastScrapeAt == nil {
		t.Fatalf("source not stamped: %+v", src)
	}
}

func TestScrapeFailsFastWhenSourceLocked(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(filepath.Join(f.cfg.LockDir(), fmt.Sprintf("source-%d.lock", f.source.ID)))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err = f.engine.Scrape(context.Background(), f.source.ID, scrape.Options{})
	if !errors.Is(err, scrape.ErrSourceBusy) {
		t.Fatalf("expected ErrSourceBusy, got %v", err)
	}
	if f.feed.calls != 0 {
		t.Fatal("adapter must not run while the source is locked")
	}
}

func TestScrapeUnknownSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Scrape(context.Background(), 999, scrape.Options{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRescrapeReturnsPersistedLog(t *testing.T) {
	f := newFixture(t)
	f.feed.result = adapter.FetchResult{Events: []adapter.RawEvent{{Tag: "RH3", Date: "2026-01-15"}}}
	log, err := f.engine.Rescrape(context.Background(), f.source.ID, true)
	if err != nil {
		t.Fatalf("Rescrape: %v", err)
	}
	if log == nil || !log.Forced || log.Created != 1 {
		t.Fatalf("unexpected log: %+v", log)
	}
}
