package api

import (
	"context"
	"testing"

	"hashsync/internal/store"
)

type catalogStub struct {
	kennels []*store.Kennel
	aliases map[int64][]store.Alias
	sources []*store.Source
	links   map[int64][]int64
}

func (s *catalogStub) ListKennels(context.Context) ([]*store.Kennel, error) {
	return s.kennels, nil
}

func (s *catalogStub) AliasesForKennel(_ context.Context, id int64) ([]store.Alias, error) {
	return s.aliases[id], nil
}

func (s *catalogStub) ListSources(_ context.Context, enabledOnly bool) ([]*store.Source, error) {
	if !enabledOnly {
		return s.sources, nil
	}
	var out []*store.Source
	for _, src := range s.sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *catalogStub) LinkedKennelIDs(_ context.Context, id int64) ([]int64, error) {
	return s.links[id], nil
}

func TestCatalogServiceListings(t *testing.T) {
	stub := &catalogStub{
		kennels: []*store.Kennel{{ID: 1, ShortName: "NYCH3"}, {ID: 2, ShortName: "BFM"}},
		aliases: map[int64][]store.Alias{1: {{KennelID: 1, Alias: "NYC"}}},
		sources: []*store.Source{
			{ID: 10, Name: "hashnyc.com", Enabled: true},
			{ID: 11, Name: "retired", Enabled: false},
		},
		links: map[int64][]int64{10: {1, 2}},
	}
	svc := NewCatalogService(stub)
	ctx := context.Background()

	kennels, err := svc.Kennels(ctx)
	if err != nil {
		t.Fatalf("Kennels: %v", err)
	}
	if len(kennels) != 2 || len(kennels[0].Aliases) != 1 || kennels[1].Aliases != nil {
		t.Fatalf("unexpected kennels %+v", kennels)
	}

	sources, err := svc.Sources(ctx, true)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 1 || len(sources[0].KennelIDs) != 2 {
		t.Fatalf("unexpected sources %+v", sources)
	}
}

func TestNilCatalogService(t *testing.T) {
	var svc *CatalogService
	if got, err := svc.Kennels(context.Background()); got != nil || err != nil {
		t.Fatalf("expected nil result from nil service, got %v %v", got, err)
	}
	if NewCatalogService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}
