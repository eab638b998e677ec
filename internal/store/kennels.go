package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hashsync/internal/textutil"
)

const kennelColumns = "id, short_name, slug, full_name, region, country, website, description, founded_year, created_at, updated_at"

func scanKennel(scanner rowScanner) (*Kennel, error) {
	var (
		k           Kennel
		website     sql.NullString
		description sql.NullString
		founded     sql.NullInt64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&k.ID, &k.ShortName, &k.Slug, &k.FullName, &k.Region, &k.Country,
		&website, &description, &founded, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	k.Website = website.String
	k.Description = description.String
	k.FoundedYear = nullIntPtr(founded)
	k.CreatedAt = parseTime(createdRaw)
	k.UpdatedAt = parseTime(updatedRaw)
	return &k, nil
}

// CreateKennel inserts a kennel. Short name and slug collisions return ErrDuplicate.
func (c conn) CreateKennel(ctx context.Context, k *Kennel) error {
	if k == nil {
		return errors.New("kennel is nil")
	}
	k.ShortName = strings.TrimSpace(k.ShortName)
	k.FullName = strings.TrimSpace(k.FullName)
	if k.ShortName == "" || k.Slug == "" {
		return errors.New("kennel short name and slug are required")
	}
	if k.FullName == "" {
		k.FullName = k.ShortName
	}
	now := c.timestamp()
	id, err := c.insert(ctx,
		`INSERT INTO kennels (short_name, slug, full_name, region, country, website, description, founded_year, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ShortName, k.Slug, k.FullName, strings.TrimSpace(k.Region), strings.TrimSpace(k.Country),
		nullableString(k.Website), nullableString(k.Description), nullableInt(k.FoundedYear), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert kennel %s: %w", k.ShortName, err)
	}
	k.ID = id
	k.CreatedAt = parseTime(now)
	k.UpdatedAt = k.CreatedAt
	return nil
}

func (c conn) queryKennel(ctx context.Context, where string, args ...any) (*Kennel, error) {
	row := c.db.QueryRowContext(ensureContext(ctx), "SELECT "+kennelColumns+" FROM kennels WHERE "+where+" LIMIT 1", args...)
	k, err := scanKennel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kennel: %w", err)
	}
	return k, nil
}

// GetKennel fetches a kennel by id.
func (c conn) GetKennel(ctx context.Context, id int64) (*Kennel, error) {
	return c.queryKennel(ctx, "id = ?", id)
}

// KennelByShortName looks up a kennel by its exact short name.
func (c conn) KennelByShortName(ctx context.Context, shortName string) (*Kennel, error) {
	return c.queryKennel(ctx, "short_name = ?", strings.TrimSpace(shortName))
}

// KennelBySlug looks up a kennel by slug.
func (c conn) KennelBySlug(ctx context.Context, slug string) (*Kennel, error) {
	return c.queryKennel(ctx, "slug = ?", slug)
}

// KennelByNameRegion looks up a kennel by full name and region, case-insensitively.
func (c conn) KennelByNameRegion(ctx context.Context, fullName, region string) (*Kennel, error) {
	return c.queryKennel(ctx, "lower(full_name) = lower(?) AND lower(region) = lower(?)",
		strings.TrimSpace(fullName), strings.TrimSpace(region))
}

// KennelByAlias resolves an alias to its kennel by folded key, so case and
// diacritics are ignored for every script.
func (c conn) KennelByAlias(ctx context.Context, alias string) (*Kennel, error) {
	return c.queryKennel(ctx, "id = (SELECT kennel_id FROM kennel_aliases WHERE alias_key = ?)", textutil.FoldKey(alias))
}

// ListKennels returns every kennel ordered by short name.
func (c conn) ListKennels(ctx context.Context) ([]*Kennel, error) {
	return c.queryKennels(ctx, "SELECT "+kennelColumns+" FROM kennels ORDER BY short_name")
}

// KennelsByIDs returns the kennels with the given ids.
func (c conn) KennelsByIDs(ctx context.Context, ids []int64) ([]*Kennel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + kennelColumns + " FROM kennels WHERE id IN (" + makePlaceholders(len(ids)) + ") ORDER BY short_name"
	return c.queryKennels(ctx, query, int64Args(ids)...)
}

func (c conn) queryKennels(ctx context.Context, query string, args ...any) ([]*Kennel, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kennels: %w", err)
	}
	defer rows.Close()
	var kennels []*Kennel
	for rows.Next() {
		k, err := scanKennel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kennel: %w", err)
		}
		kennels = append(kennels, k)
	}
	return kennels, rows.Err()
}

// DeleteKennel removes a kennel row. Dependent rows must already be gone.
func (c conn) DeleteKennel(ctx context.Context, id int64) (bool, error) {
	res, err := c.execWithRetry(ctx, "DELETE FROM kennels WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete kennel %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateAlias adds an alias for a kennel. Aliases whose folded keys collide
// return ErrDuplicate.
func (c conn) CreateAlias(ctx context.Context, kennelID int64, alias string) (*Alias, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, errors.New("alias is required")
	}
	now := c.timestamp()
	id, err := c.insert(ctx, "INSERT INTO kennel_aliases (kennel_id, alias, alias_key, created_at) VALUES (?, ?, ?, ?)",
		kennelID, alias, textutil.FoldKey(alias), now)
	if err != nil {
		return nil, fmt.Errorf("insert alias %q: %w", alias, err)
	}
	return &Alias{ID: id, KennelID: kennelID, Alias: alias, CreatedAt: parseTime(now)}, nil
}

// AliasByText returns the alias row whose folded key matches text.
func (c conn) AliasByText(ctx context.Context, alias string) (*Alias, error) {
	row := c.db.QueryRowContext(ensureContext(ctx),
		"SELECT id, kennel_id, alias, created_at FROM kennel_aliases WHERE alias_key = ?",
		textutil.FoldKey(alias))
	var (
		a          Alias
		createdRaw string
	)
	if err := row.Scan(&a.ID, &a.KennelID, &a.Alias, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query alias: %w", err)
	}
	a.CreatedAt = parseTime(createdRaw)
	return &a, nil
}

// AliasesForKennel lists a kennel's aliases.
func (c conn) AliasesForKennel(ctx context.Context, kennelID int64) ([]Alias, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT id, kennel_id, alias, created_at FROM kennel_aliases WHERE kennel_id = ? ORDER BY alias", kennelID)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()
	var aliases []Alias
	for rows.Next() {
		var (
			a          Alias
			createdRaw string
		)
		if err := rows.Scan(&a.ID, &a.KennelID, &a.Alias, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		a.CreatedAt = parseTime(createdRaw)
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}
