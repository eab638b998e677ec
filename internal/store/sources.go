package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sourceColumns = "id, name, url, type, trust_level, config_json, enabled, last_scrape_at, last_structure_hash, created_at, updated_at"

func scanSource(scanner rowScanner) (*Source, error) {
	var (
		s          Source
		configRaw  sql.NullString
		enabled    int
		lastScrape sql.NullString
		hash       sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&s.ID, &s.Name, &s.URL, &s.Type, &s.TrustLevel, &configRaw, &enabled,
		&lastScrape, &hash, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(configRaw, &s.Config); err != nil {
		return nil, fmt.Errorf("source %d config: %w", s.ID, err)
	}
	s.Enabled = enabled != 0
	s.LastScrapeAt = parseNullTime(lastScrape)
	s.LastStructureHash = hash.String
	s.CreatedAt = parseTime(createdRaw)
	s.UpdatedAt = parseTime(updatedRaw)
	return &s, nil
}

// CreateSource inserts a source. Name collisions return ErrDuplicate.
func (c conn) CreateSource(ctx context.Context, s *Source) error {
	if s == nil {
		return errors.New("source is nil")
	}
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.TrimSpace(s.Type)
	if s.Name == "" || s.Type == "" {
		return errors.New("source name and type are required")
	}
	cfgJSON, err := marshalJSON(s.Config)
	if err != nil {
		return err
	}
	now := c.timestamp()
	id, err := c.insert(ctx,
		`INSERT INTO sources (name, url, type, trust_level, config_json, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.URL, s.Type, s.TrustLevel, cfgJSON, boolToInt(s.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert source %s: %w", s.Name, err)
	}
	s.ID = id
	s.CreatedAt = parseTime(now)
	s.UpdatedAt = s.CreatedAt
	return nil
}

func (c conn) querySource(ctx context.Context, where string, args ...any) (*Source, error) {
	row := c.db.QueryRowContext(ensureContext(ctx), "SELECT "+sourceColumns+" FROM sources WHERE "+where+" LIMIT 1", args...)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return s, nil
}

// GetSource fetches a source by id.
func (c conn) GetSource(ctx context.Context, id int64) (*Source, error) {
	return c.querySource(ctx, "id = ?", id)
}

// SourceByName fetches a source by its unique name.
func (c conn) SourceByName(ctx context.Context, name string) (*Source, error) {
	return c.querySource(ctx, "name = ?", strings.TrimSpace(name))
}

// ListSources returns sources ordered by name.
func (c conn) ListSources(ctx context.Context, enabledOnly bool) ([]*Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"
	rows, err := c.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var sources []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSource rewrites a source's mutable fields.
func (c conn) UpdateSource(ctx context.Context, s *Source) error {
	cfgJSON, err := marshalJSON(s.Config)
	if err != nil {
		return err
	}
	now := c.timestamp()
	if _, err := c.execWithRetry(ctx,
		`UPDATE sources SET url = ?, type = ?, trust_level = ?, config_json = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		s.URL, s.Type, s.TrustLevel, cfgJSON, boolToInt(s.Enabled), now, s.ID,
	); err != nil {
		return fmt.Errorf("update source %d: %w", s.ID, err)
	}
	s.UpdatedAt = parseTime(now)
	return nil
}

// RecordScrape stamps the last scrape time and, when non-empty, the structure hash.
func (c conn) RecordScrape(ctx context.Context, sourceID int64, at time.Time, structureHash string) error {
	_, err := c.execWithRetry(ctx,
		`UPDATE sources SET last_scrape_at = ?, last_structure_hash = COALESCE(?, last_structure_hash), updated_at = ? WHERE id = ?`,
		nullableTime(&at), nullableString(structureHash), c.timestamp(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("record scrape for source %d: %w", sourceID, err)
	}
	return nil
}

// LinkSourceKennel records that a source may emit events for a kennel.
// An existing link returns ErrDuplicate.
func (c conn) LinkSourceKennel(ctx context.Context, sourceID, kennelID int64) (*SourceKennel, error) {
	now := c.timestamp()
	id, err := c.insert(ctx, "INSERT INTO source_kennels (source_id, kennel_id, created_at) VALUES (?, ?, ?)", sourceID, kennelID, now)
	if err != nil {
		return nil, fmt.Errorf("link source %d to kennel %d: %w", sourceID, kennelID, err)
	}
	return &SourceKennel{ID: id, SourceID: sourceID, KennelID: kennelID, CreatedAt: parseTime(now)}, nil
}

// IsLinked reports whether the (source, kennel) link exists.
func (c conn) IsLinked(ctx context.Context, sourceID, kennelID int64) (bool, error) {
	var count int
	if err := c.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM source_kennels WHERE source_id = ? AND kennel_id = ?", sourceID, kennelID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return count > 0, nil
}

// LinkedKennelIDs returns the kennels a source is linked to.
func (c conn) LinkedKennelIDs(ctx context.Context, sourceID int64) ([]int64, error) {
	return c.queryIDs(ctx, "SELECT kennel_id FROM source_kennels WHERE source_id = ? ORDER BY kennel_id", sourceID)
}

// LinkedSourceIDs returns the sources linked to a kennel.
func (c conn) LinkedSourceIDs(ctx context.Context, kennelID int64) ([]int64, error) {
	return c.queryIDs(ctx, "SELECT source_id FROM source_kennels WHERE kennel_id = ? ORDER BY source_id", kennelID)
}

func (c conn) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EncodeSourceConfig renders a config for display.
func EncodeSourceConfig(cfg SourceConfig) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(data)
}
