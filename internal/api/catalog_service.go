package api

import (
	"context"

	"hashsync/internal/store"
)

// CatalogReader abstracts the store reads needed for kennel and source listings.
type CatalogReader interface {
	ListKennels(ctx context.Context) ([]*store.Kennel, error)
	AliasesForKennel(ctx context.Context, kennelID int64) ([]store.Alias, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]*store.Source, error)
	LinkedKennelIDs(ctx context.Context, sourceID int64) ([]int64, error)
}

// CatalogService exposes read-only kennel and source listings as API DTOs.
type CatalogService struct {
	store CatalogReader
}

// NewCatalogService constructs a CatalogService around the provided reader.
func NewCatalogService(store CatalogReader) *CatalogService {
	if store == nil {
		return nil
	}
	return &CatalogService{store: store}
}

// Kennels returns every kennel with its aliases.
func (s *CatalogService) Kennels(ctx context.Context) ([]Kennel, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	kennels, err := s.store.ListKennels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Kennel, 0, len(kennels))
	for _, k := range kennels {
		aliases, err := s.store.AliasesForKennel(ctx, k.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, FromKennel(k, aliases))
	}
	return out, nil
}

// Sources returns sources with their linked kennel ids.
func (s *CatalogService) Sources(ctx context.Context, enabledOnly bool) ([]Source, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	sources, err := s.store.ListSources(ctx, enabledOnly)
	if err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		ids, err := s.store.LinkedKennelIDs(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, FromSource(src, ids))
	}
	return out, nil
}
