package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hashsync/internal/services"
	"hashsync/internal/store"
	"hashsync/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats != (store.Stats{}) {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	// Reopening an initialized database keeps the data.
	k := testsupport.MustCreateKennel(t, st, "NYCH3")
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.GetKennel(ctx, k.ID)
	if err != nil || got == nil || got.ShortName != "NYCH3" {
		t.Fatalf("expected kennel after reopen, got %#v err=%v", got, err)
	}
}

func TestKennelUniqueness(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustCreateKennel(t, st, "NYCH3")

	err := st.CreateKennel(ctx, &store.Kennel{ShortName: "NYCH3", Slug: "other", FullName: "Other"})
	if !store.IsDuplicate(err) {
		t.Fatalf("expected duplicate short name, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate to be a validation error, got %v", err)
	}
	err = st.CreateKennel(ctx, &store.Kennel{ShortName: "Other", Slug: "nych3", FullName: "Other"})
	if !store.IsDuplicate(err) {
		t.Fatalf("expected duplicate slug, got %v", err)
	}

	missing, err := st.GetKennel(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing kennel, got %#v, %v", missing, err)
	}
	byName, err := st.KennelByNameRegion(ctx, "nych3 hash house harriers", "TEST REGION")
	if err != nil || byName == nil {
		t.Fatalf("expected case-insensitive name/region lookup, got %#v, %v", byName, err)
	}
}

func TestAliasCaseInsensitive(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3", "Boston Hash")

	got, err := st.KennelByAlias(ctx, "BOSTON HASH")
	if err != nil || got == nil || got.ID != k.ID {
		t.Fatalf("expected alias to resolve case-insensitively, got %#v, %v", got, err)
	}
	if _, err := st.CreateAlias(ctx, k.ID, "boston hash"); !store.IsDuplicate(err) {
		t.Fatalf("expected duplicate alias, got %v", err)
	}
}

func TestAliasFoldsNonASCII(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	zh := testsupport.MustCreateKennel(t, st, "ZH3", "Zürich")
	rh := testsupport.MustCreateKennel(t, st, "RH3")

	if _, err := st.CreateAlias(ctx, rh.ID, "ZÜRICH"); !store.IsDuplicate(err) {
		t.Fatalf("expected upper-case non-ASCII alias to collide, got %v", err)
	}
	got, err := st.KennelByAlias(ctx, "ZÜRICH")
	if err != nil || got == nil || got.ID != zh.ID {
		t.Fatalf("expected ZÜRICH to resolve to ZH3, got %#v, %v", got, err)
	}
	alias, err := st.AliasByText(ctx, "zürich")
	if err != nil || alias == nil || alias.KennelID != zh.ID || alias.Alias != "Zürich" {
		t.Fatalf("expected stored alias text to be kept, got %#v, %v", alias, err)
	}
}

func TestSourceLinks(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3")
	src := testsupport.MustCreateSource(t, st, "Boston Calendar", store.SourceConfig{
		Patterns:   []store.TagPattern{{Pattern: "^boston", Kennel: "BH3"}},
		DefaultTag: "BH3",
	})

	linked, err := st.IsLinked(ctx, src.ID, k.ID)
	if err != nil || linked {
		t.Fatalf("expected no link yet, got %v, %v", linked, err)
	}
	testsupport.MustLink(t, st, src.ID, k.ID)
	if _, err := st.LinkSourceKennel(ctx, src.ID, k.ID); !store.IsDuplicate(err) {
		t.Fatalf("expected duplicate link, got %v", err)
	}
	ids, err := st.LinkedKennelIDs(ctx, src.ID)
	if err != nil || len(ids) != 1 || ids[0] != k.ID {
		t.Fatalf("unexpected linked kennels %v, %v", ids, err)
	}

	fetched, err := st.GetSource(ctx, src.ID)
	if err != nil || fetched == nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	if len(fetched.Config.Patterns) != 1 || fetched.Config.DefaultTag != "BH3" {
		t.Fatalf("config did not round trip: %+v", fetched.Config)
	}
}

func TestUpsertEventNaturalKeys(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3")

	ev := &store.Event{KennelID: k.ID, Date: "2026-01-15", Title: "Run"}
	outcome, err := st.UpsertEvent(ctx, ev)
	if err != nil || outcome != store.UpsertCreated {
		t.Fatalf("expected created, got %v, %v", outcome, err)
	}

	same := &store.Event{KennelID: k.ID, Date: "2026-01-15", Title: "Run"}
	outcome, err = st.UpsertEvent(ctx, same)
	if err != nil || outcome != store.UpsertUnchanged || same.ID != ev.ID {
		t.Fatalf("expected unchanged on same key, got %v, %v (id %d)", outcome, err, same.ID)
	}

	run := 2100
	numbered := &store.Event{KennelID: k.ID, Date: "2026-01-15", RunNumber: &run, Location: "Park"}
	outcome, err = st.UpsertEvent(ctx, numbered)
	if err != nil || outcome != store.UpsertUpdated || numbered.ID != ev.ID {
		t.Fatalf("expected numberless event to adopt run number, got %v, %v", outcome, err)
	}

	moved := &store.Event{KennelID: k.ID, Date: "2026-01-16", RunNumber: &run}
	outcome, err = st.UpsertEvent(ctx, moved)
	if err != nil || outcome != store.UpsertUpdated {
		t.Fatalf("expected date update by run number, got %v, %v", outcome, err)
	}
	stored, err := st.GetEvent(ctx, ev.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if stored.Date != "2026-01-16" || stored.Title != "Run" || stored.Location != "Park" {
		t.Fatalf("unexpected merged event %+v", stored)
	}

	count, err := st.CountEvents(ctx, k.ID)
	if err != nil || count != 1 {
		t.Fatalf("expected a single event, got %d, %v", count, err)
	}
}

func TestUpsertEventRespectsTrust(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3")

	if _, err := st.UpsertEvent(ctx, &store.Event{KennelID: k.ID, Date: "2026-02-01", Title: "Official", TrustLevel: 9}); err != nil {
		t.Fatalf("UpsertEvent failed: %v", err)
	}
	outcome, err := st.UpsertEvent(ctx, &store.Event{KennelID: k.ID, Date: "2026-02-01", Title: "Rumour", TrustLevel: 2})
	if err != nil || outcome != store.UpsertUnchanged {
		t.Fatalf("expected low-trust update to be ignored, got %v, %v", outcome, err)
	}
}

func TestScrapeLogsAndConsecutiveFailures(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	src := testsupport.MustCreateSource(t, st, "Feed", store.SourceConfig{})

	now := time.Now()
	statuses := []store.RunStatus{store.RunFailed, store.RunSuccess, store.RunFailed, store.RunFailed}
	for i, status := range statuses {
		l := &store.ScrapeLog{
			RunID:         "run-" + string(rune('a'+i)),
			SourceID:      src.ID,
			Status:        status,
			StartedAt:     now,
			FinishedAt:    now,
			EventsFound:   i,
			UnmatchedTags: []string{"X"},
			FillRates:     map[string]float64{"title": 0.5},
		}
		if err := st.InsertScrapeLog(ctx, l); err != nil {
			t.Fatalf("InsertScrapeLog failed: %v", err)
		}
	}

	failures, err := st.ConsecutiveFailures(ctx, src.ID)
	if err != nil || failures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d, %v", failures, err)
	}

	logs, err := st.RecentScrapeLogs(ctx, store.ScrapeLogQuery{SourceID: src.ID, SuccessOnly: true, Limit: 5})
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one successful log, got %d, %v", len(logs), err)
	}
	if logs[0].FillRates["title"] != 0.5 || len(logs[0].UnmatchedTags) != 1 {
		t.Fatalf("log json fields did not round trip: %+v", logs[0])
	}
}

func TestTransitionAlertOnce(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	src := testsupport.MustCreateSource(t, st, "Feed", store.SourceConfig{})

	alert := &store.Alert{
		SourceID: src.ID,
		Type:     store.AlertUnmatchedTags,
		Severity: store.SeverityWarning,
		Title:    "Unmatched tags",
		Context:  store.UnmatchedTagsContext{Tags: []string{"Foo"}, RunID: "r1"},
	}
	if err := st.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	active, err := st.ActiveAlert(ctx, src.ID, store.AlertUnmatchedTags)
	if err != nil || active == nil || active.ID != alert.ID {
		t.Fatalf("expected active alert, got %#v, %v", active, err)
	}
	ctxValue, ok := active.Context.(store.UnmatchedTagsContext)
	if !ok || len(ctxValue.Tags) != 1 || ctxValue.RunID != "r1" {
		t.Fatalf("context did not round trip: %#v", active.Context)
	}

	resolve := store.Transition{AlertID: alert.ID, From: store.ActiveAlertStatuses, To: store.AlertResolved, Actor: "alice"}
	changed, err := st.TransitionAlert(ctx, resolve)
	if err != nil || !changed {
		t.Fatalf("expected first resolve to change the alert, got %v, %v", changed, err)
	}
	changed, err = st.TransitionAlert(ctx, resolve)
	if err != nil || changed {
		t.Fatalf("expected second resolve to be a no-op, got %v, %v", changed, err)
	}

	fetched, err := st.GetAlert(ctx, alert.ID)
	if err != nil || fetched.Status != store.AlertResolved || fetched.ResolvedBy != "alice" || fetched.ResolvedAt == nil {
		t.Fatalf("unexpected resolved alert %#v, %v", fetched, err)
	}
	active, err = st.ActiveAlert(ctx, src.ID, store.AlertUnmatchedTags)
	if err != nil || active != nil {
		t.Fatalf("expected no active alert after resolve, got %#v, %v", active, err)
	}
}

func TestExpiredSnoozesOrdersSubsecondTimes(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	src := testsupport.MustCreateSource(t, st, "Feed", store.SourceConfig{})
	alert := &store.Alert{SourceID: src.ID, Type: store.AlertScrapeFailure, Severity: store.SeverityWarning, Title: "t"}
	if err := st.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := base.Add(500 * time.Millisecond)
	snooze := store.Transition{AlertID: alert.ID, From: store.ActiveAlertStatuses, To: store.AlertSnoozed, Until: &until}
	if changed, err := st.TransitionAlert(ctx, snooze); err != nil || !changed {
		t.Fatalf("expected snooze, got %v, %v", changed, err)
	}

	expired, err := st.ExpiredSnoozes(ctx, base)
	if err != nil {
		t.Fatalf("ExpiredSnoozes failed: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected snooze ending at %s to be pending at %s, got %d expired", until, base, len(expired))
	}
	expired, err = st.ExpiredSnoozes(ctx, base.Add(time.Second))
	if err != nil || len(expired) != 1 || expired[0].ID != alert.ID {
		t.Fatalf("expected snooze to expire a second later, got %#v, %v", expired, err)
	}
}

func TestAppendRepairDuplicateEntryIsNoop(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	src := testsupport.MustCreateSource(t, st, "Feed", store.SourceConfig{})
	alert := &store.Alert{SourceID: src.ID, Type: store.AlertStructureChange, Severity: store.SeverityInfo, Title: "t"}
	if err := st.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	entry := &store.RepairEntry{
		AlertID: alert.ID,
		EntryID: "entry-1",
		Action:  store.RepairCreateAlias,
		Actor:   "alice",
		Details: store.RepairDetails{Tag: "Foo", KennelID: 3},
		Result:  store.RepairSucceeded,
	}
	appended, err := st.AppendRepair(ctx, entry)
	if err != nil || !appended {
		t.Fatalf("expected first append, got %v, %v", appended, err)
	}
	retry := *entry
	appended, err = st.AppendRepair(ctx, &retry)
	if err != nil || appended {
		t.Fatalf("expected duplicate entry to be a silent no-op, got %v, %v", appended, err)
	}

	log, err := st.RepairLog(ctx, alert.ID)
	if err != nil || len(log) != 1 {
		t.Fatalf("expected one repair entry, got %d, %v", len(log), err)
	}
	if log[0].Details.Tag != "Foo" || log[0].Actor != "alice" {
		t.Fatalf("unexpected repair entry %+v", log[0])
	}
}

func TestWithTxRollsBack(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateKennel(ctx, &store.Kennel{ShortName: "TMP", Slug: "tmp", FullName: "Temp"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	k, err := st.KennelByShortName(ctx, "TMP")
	if err != nil || k != nil {
		t.Fatalf("expected rollback, got %#v, %v", k, err)
	}
}

func TestMoveAttendancesSkipsSharedEvents(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3")
	ev1 := testsupport.MustCreateEvent(t, st, k.ID, "2026-01-01", 0)
	ev2 := testsupport.MustCreateEvent(t, st, k.ID, "2026-01-08", 0)

	from := &store.RosterEntry{KennelID: k.ID, HashName: "Lost Cause"}
	to := &store.RosterEntry{KennelID: k.ID, HashName: "lost cause", Email: "lc@example.test"}
	for _, e := range []*store.RosterEntry{from, to} {
		if err := st.CreateRosterEntry(ctx, e); err != nil {
			t.Fatalf("CreateRosterEntry failed: %v", err)
		}
	}
	records := []store.Attendance{
		{EventID: ev1.ID, RosterEntryID: from.ID, Attended: true},
		{EventID: ev2.ID, RosterEntryID: from.ID, Attended: true, Hared: true},
		{EventID: ev1.ID, RosterEntryID: to.ID, Attended: true},
	}
	inserted, dupes, err := st.InsertAttendances(ctx, records)
	if err != nil || inserted != 3 || dupes != 0 {
		t.Fatalf("InsertAttendances = %d, %d, %v", inserted, dupes, err)
	}
	inserted, dupes, err = st.InsertAttendances(ctx, records[:1])
	if err != nil || inserted != 0 || dupes != 1 {
		t.Fatalf("expected re-insert to count a duplicate, got %d, %d, %v", inserted, dupes, err)
	}

	moved, dropped, err := st.MoveAttendances(ctx, from.ID, to.ID)
	if err != nil || moved != 1 || dropped != 1 {
		t.Fatalf("MoveAttendances = %d, %d, %v", moved, dropped, err)
	}
	att, err := st.AttendancesForEntry(ctx, to.ID)
	if err != nil || len(att) != 2 {
		t.Fatalf("expected 2 attendances on destination, got %d, %v", len(att), err)
	}
}

func TestKennelReferences(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	k := testsupport.MustCreateKennel(t, st, "BH3", "Boston")
	testsupport.MustCreateEvent(t, st, k.ID, "2026-01-01", 0)

	refs, err := st.KennelReferences(ctx, k.ID)
	if err != nil {
		t.Fatalf("KennelReferences failed: %v", err)
	}
	if refs[store.TableAliases] != 1 || refs[store.TableEvents] != 1 {
		t.Fatalf("unexpected references %v", refs)
	}
	if _, err := st.CountByKennel(ctx, "sqlite_master", k.ID); err == nil {
		t.Fatal("expected unknown table to be rejected")
	}
}
