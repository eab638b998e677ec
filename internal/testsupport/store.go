package testsupport

import (
	"context"
	"testing"

	"hashsync/internal/config"
	"hashsync/internal/store"
	"hashsync/internal/textutil"
)

// MustOpenStore opens the store for cfg and closes it when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustCreateKennel inserts a kennel with the given short name and aliases.
func MustCreateKennel(t testing.TB, st *store.Store, shortName string, aliases ...string) *store.Kennel {
	t.Helper()

	ctx := context.Background()
	k := &store.Kennel{
		ShortName: shortName,
		Slug:      textutil.Slugify(shortName),
		FullName:  shortName + " Hash House Harriers",
		Region:    "Test Region",
	}
	if err := st.CreateKennel(ctx, k); err != nil {
		t.Fatalf("CreateKennel %s: %v", shortName, err)
	}
	for _, alias := range aliases {
		if _, err := st.CreateAlias(ctx, k.ID, alias); err != nil {
			t.Fatalf("CreateAlias %s: %v", alias, err)
		}
	}
	return k
}

// MustCreateSource inserts an enabled json_feed source.
func MustCreateSource(t testing.TB, st *store.Store, name string, cfg store.SourceConfig) *store.Source {
	t.Helper()

	src := &store.Source{
		Name:       name,
		URL:        "https://example.test/" + textutil.Slugify(name),
		Type:       "json_feed",
		TrustLevel: 5,
		Config:     cfg,
		Enabled:    true,
	}
	if err := st.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource %s: %v", name, err)
	}
	return src
}

// MustLink links a source to kennels.
func MustLink(t testing.TB, st *store.Store, sourceID int64, kennelIDs ...int64) {
	t.Helper()

	for _, kennelID := range kennelIDs {
		if _, err := st.LinkSourceKennel(context.Background(), sourceID, kennelID); err != nil {
			t.Fatalf("LinkSourceKennel %d/%d: %v", sourceID, kennelID, err)
		}
	}
}

// MustCreateEvent inserts an event for a kennel on date with an optional run number.
func MustCreateEvent(t testing.TB, st *store.Store, kennelID int64, date string, runNumber int) *store.Event {
	t.Helper()

	ev := &store.Event{KennelID: kennelID, Date: date, Title: "Run on " + date, Origin: store.OriginManual}
	if runNumber > 0 {
		ev.RunNumber = &runNumber
	}
	if _, err := st.UpsertEvent(context.Background(), ev); err != nil {
		t.Fatalf("UpsertEvent %s: %v", date, err)
	}
	return ev
}
