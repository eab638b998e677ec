package store

import (
	"context"
	"fmt"
	"sort"
)

// Tables whose rows point at a kennel through a kennel_id column.
const (
	TableAliases          = "kennel_aliases"
	TableSourceLinks      = "source_kennels"
	TableEvents           = "events"
	TableMemberships      = "kennel_members"
	TableGroupMembership  = "roster_group_kennels"
	TableRosterEntries    = "roster_entries"
	TableExternalRequests = "external_requests"
)

var kennelOwnedTables = map[string]struct{}{
	TableAliases:          {},
	TableSourceLinks:      {},
	TableEvents:           {},
	TableMemberships:      {},
	TableGroupMembership:  {},
	TableRosterEntries:    {},
	TableExternalRequests: {},
}

// KennelOwnedTables lists every table that references a kennel.
func KennelOwnedTables() []string {
	out := make([]string, 0, len(kennelOwnedTables))
	for table := range kennelOwnedTables {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

func checkOwnedTable(table string) error {
	if _, ok := kennelOwnedTables[table]; !ok {
		return fmt.Errorf("table %q does not reference kennels", table)
	}
	return nil
}

// CountByKennel counts rows of table referencing a kennel.
func (c conn) CountByKennel(ctx context.Context, table string, kennelID int64) (int, error) {
	if err := checkOwnedTable(table); err != nil {
		return 0, err
	}
	var count int
	if err := c.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM "+table+" WHERE kennel_id = ?", kennelID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// ReassignKennel points every row of table at kennel to instead of from.
func (c conn) ReassignKennel(ctx context.Context, table string, from, to int64) (int64, error) {
	if err := checkOwnedTable(table); err != nil {
		return 0, err
	}
	res, err := c.execWithRetry(ctx, "UPDATE "+table+" SET kennel_id = ? WHERE kennel_id = ?", to, from)
	if err != nil {
		return 0, fmt.Errorf("reassign %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteByKennel deletes every row of table referencing a kennel.
func (c conn) DeleteByKennel(ctx context.Context, table string, kennelID int64) (int64, error) {
	if err := checkOwnedTable(table); err != nil {
		return 0, err
	}
	res, err := c.execWithRetry(ctx, "DELETE FROM "+table+" WHERE kennel_id = ?", kennelID)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// KennelReferences counts, per table, the rows still referencing a kennel.
// Tables with zero rows are omitted.
func (c conn) KennelReferences(ctx context.Context, kennelID int64) (map[string]int, error) {
	refs := make(map[string]int)
	for _, table := range KennelOwnedTables() {
		n, err := c.CountByKennel(ctx, table, kennelID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			refs[table] = n
		}
	}
	return refs, nil
}

// DropSharedSourceLinks deletes from's source links that to already has.
func (c conn) DropSharedSourceLinks(ctx context.Context, from, to int64) (int64, error) {
	res, err := c.execWithRetry(ctx,
		`DELETE FROM source_kennels WHERE kennel_id = ?
		 AND source_id IN (SELECT source_id FROM source_kennels WHERE kennel_id = ?)`, from, to)
	if err != nil {
		return 0, fmt.Errorf("drop shared source links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
