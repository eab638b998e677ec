package merge

import (
	"context"
	"fmt"

	"hashsync/internal/store"
	"hashsync/internal/textutil"
)

// Policy is what happens to the source kennel's rows in one collection.
type Policy string

const (
	PolicyReassign       Policy = "reassign"
	PolicyDedupeReassign Policy = "dedupe_reassign"
	PolicyDelete         Policy = "delete"
)

// CollectionResult reports what a merge did to one collection.
type CollectionResult struct {
	Table   string `json:"table"`
	Policy  Policy `json:"policy"`
	Moved   int64  `json:"moved"`
	Deduped int64  `json:"deduped,omitempty"`
	Deleted int64  `json:"deleted,omitempty"`
	// AttendancesMoved and AttendancesDropped count attendance rows carried
	// from deduped roster entries onto their winners. Dropped rows were
	// duplicates of attendance the winner already had.
	AttendancesMoved   int64 `json:"attendances_moved,omitempty"`
	AttendancesDropped int64 `json:"attendances_dropped,omitempty"`
}

type dedupeFunc func(ctx context.Context, tx *store.Tx, from, to int64, res *CollectionResult) error

type collection struct {
	table  string
	policy Policy
	dedupe dedupeFunc
}

// ownershipGraph lists every kennel-owned collection in walk order.
func ownershipGraph() []collection {
	return []collection{
		{table: store.TableSourceLinks, policy: PolicyDedupeReassign, dedupe: dedupeSourceLinks},
		{table: store.TableMemberships, policy: PolicyDedupeReassign, dedupe: dedupeMemberships},
		{table: store.TableRosterEntries, policy: PolicyDedupeReassign, dedupe: dedupeRoster},
		{table: store.TableEvents, policy: PolicyReassign},
		{table: store.TableExternalRequests, policy: PolicyReassign},
		{table: store.TableAliases, policy: PolicyDelete},
		{table: store.TableGroupMembership, policy: PolicyDelete},
	}
}

func (c collection) apply(ctx context.Context, tx *store.Tx, from, to int64) (CollectionResult, error) {
	res := CollectionResult{Table: c.table, Policy: c.policy}
	switch c.policy {
	case PolicyDelete:
		n, err := tx.DeleteByKennel(ctx, c.table, from)
		if err != nil {
			return res, err
		}
		res.Deleted = n
		return res, nil
	case PolicyDedupeReassign:
		if c.dedupe != nil {
			if err := c.dedupe(ctx, tx, from, to, &res); err != nil {
				return res, fmt.Errorf("dedupe %s: %w", c.table, err)
			}
		}
	}
	n, err := tx.ReassignKennel(ctx, c.table, from, to)
	if err != nil {
		return res, err
	}
	res.Moved = n
	return res, nil
}

func dedupeSourceLinks(ctx context.Context, tx *store.Tx, from, to int64, res *CollectionResult) error {
	n, err := tx.DropSharedSourceLinks(ctx, from, to)
	if err != nil {
		return err
	}
	res.Deduped = n
	return nil
}

// dedupeMemberships keeps one membership per user, at the higher rank.
func dedupeMemberships(ctx context.Context, tx *store.Tx, from, to int64, res *CollectionResult) error {
	source, err := tx.MembershipsForKennel(ctx, from)
	if err != nil {
		return err
	}
	target, err := tx.MembershipsForKennel(ctx, to)
	if err != nil {
		return err
	}
	byUser := make(map[string]store.Membership, len(target))
	for _, m := range target {
		byUser[m.UserID] = m
	}
	for _, m := range source {
		existing, ok := byUser[m.UserID]
		if !ok {
			continue
		}
		if m.Role.Rank() > existing.Role.Rank() {
			if err := tx.UpdateMembershipRole(ctx, existing.ID, m.Role); err != nil {
				return err
			}
		}
		if err := tx.DeleteMembership(ctx, m.ID); err != nil {
			return err
		}
		res.Deduped++
	}
	return nil
}

// dedupeRoster folds source entries into target entries with the same
// case-insensitive hash name. The entry with more populated optional fields
// wins, a tie keeps the target's, and the target row survives either way so
// its id stays stable.
func dedupeRoster(ctx context.Context, tx *store.Tx, from, to int64, res *CollectionResult) error {
	source, err := tx.RosterEntriesForKennels(ctx, []int64{from})
	if err != nil {
		return err
	}
	target, err := tx.RosterEntriesForKennels(ctx, []int64{to})
	if err != nil {
		return err
	}
	byName := make(map[string]*store.RosterEntry, len(target))
	for _, e := range target {
		key := textutil.FoldKey(e.HashName)
		if _, dup := byName[key]; !dup {
			byName[key] = e
		}
	}
	for _, loser := range source {
		keep, ok := byName[textutil.FoldKey(loser.HashName)]
		if !ok {
			continue
		}
		merged := mergeRosterEntries(*keep, *loser)
		if err := tx.UpdateRosterEntry(ctx, &merged); err != nil {
			return err
		}
		*keep = merged
		moved, dropped, err := tx.MoveAttendances(ctx, loser.ID, keep.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteRosterEntry(ctx, loser.ID); err != nil {
			return err
		}
		res.Deduped++
		res.AttendancesMoved += moved
		res.AttendancesDropped += dropped
	}
	return nil
}

// mergeRosterEntries returns target's row carrying the winner's fields, with
// blanks filled from the other entry.
func mergeRosterEntries(target, source store.RosterEntry) store.RosterEntry {
	if source.PopulatedFields() <= target.PopulatedFields() {
		target.FillFrom(source)
		return target
	}
	merged := source
	merged.ID = target.ID
	merged.KennelID = target.KennelID
	merged.CreatedAt = target.CreatedAt
	merged.FillFrom(target)
	return merged
}
