package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// AddMembership grants a user a role under a kennel.
func (c conn) AddMembership(ctx context.Context, userID string, kennelID int64, role Role) (*Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("membership requires user id")
	}
	if role == "" {
		role = RoleMember
	}
	now := c.timestamp()
	id, err := c.insert(ctx, "INSERT INTO kennel_members (user_id, kennel_id, role, created_at) VALUES (?, ?, ?, ?)",
		userID, kennelID, string(role), now)
	if err != nil {
		return nil, fmt.Errorf("add membership: %w", err)
	}
	return &Membership{ID: id, UserID: userID, KennelID: kennelID, Role: role, CreatedAt: parseTime(now)}, nil
}

// MembershipsForKennel lists a kennel's role memberships.
func (c conn) MembershipsForKennel(ctx context.Context, kennelID int64) ([]Membership, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT id, user_id, kennel_id, role, created_at FROM kennel_members WHERE kennel_id = ? ORDER BY id", kennelID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()
	var members []Membership
	for rows.Next() {
		var (
			m          Membership
			role       string
			createdRaw string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.KennelID, &role, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = parseTime(createdRaw)
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMembershipRole changes a membership's role.
func (c conn) UpdateMembershipRole(ctx context.Context, id int64, role Role) error {
	if _, err := c.execWithRetry(ctx, "UPDATE kennel_members SET role = ? WHERE id = ?", string(role), id); err != nil {
		return fmt.Errorf("update membership %d: %w", id, err)
	}
	return nil
}

// DeleteMembership removes one membership row.
func (c conn) DeleteMembership(ctx context.Context, id int64) error {
	if _, err := c.execWithRetry(ctx, "DELETE FROM kennel_members WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete membership %d: %w", id, err)
	}
	return nil
}

// CreateRosterGroup creates a named roster group.
func (c conn) CreateRosterGroup(ctx context.Context, name string) (*RosterGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("roster group requires a name")
	}
	id, err := c.insert(ctx, "INSERT INTO roster_groups (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("create roster group: %w", err)
	}
	return &RosterGroup{ID: id, Name: name}, nil
}

// AddKennelToGroup places a kennel into a roster group. A kennel belongs to at most one group.
func (c conn) AddKennelToGroup(ctx context.Context, groupID, kennelID int64) error {
	if _, err := c.execWithRetry(ctx, "INSERT INTO roster_group_kennels (group_id, kennel_id) VALUES (?, ?)", groupID, kennelID); err != nil {
		return fmt.Errorf("add kennel %d to group %d: %w", kennelID, groupID, err)
	}
	return nil
}

// RosterKennelIDs returns the kennels sharing a roster with kennelID,
// including kennelID itself.
func (c conn) RosterKennelIDs(ctx context.Context, kennelID int64) ([]int64, error) {
	ids, err := c.queryIDs(ctx,
		`SELECT kennel_id FROM roster_group_kennels
		 WHERE group_id = (SELECT group_id FROM roster_group_kennels WHERE kennel_id = ?)
		 ORDER BY kennel_id`, kennelID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []int64{kennelID}, nil
	}
	return ids, nil
}

const rosterColumns = "id, kennel_id, hash_name, nerd_name, email, phone, notes, created_at, updated_at"

func scanRosterEntry(scanner rowScanner) (*RosterEntry, error) {
	var (
		e          RosterEntry
		nerd       sql.NullString
		email      sql.NullString
		phone      sql.NullString
		notes      sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&e.ID, &e.KennelID, &e.HashName, &nerd, &email, &phone, &notes, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	e.NerdName = nerd.String
	e.Email = email.String
	e.Phone = phone.String
	e.Notes = notes.String
	e.CreatedAt = parseTime(createdRaw)
	e.UpdatedAt = parseTime(updatedRaw)
	return &e, nil
}

// CreateRosterEntry adds a hasher to a kennel's roster.
func (c conn) CreateRosterEntry(ctx context.Context, e *RosterEntry) error {
	if e == nil || e.KennelID == 0 || strings.TrimSpace(e.HashName) == "" {
		return errors.New("roster entry requires kennel and hash name")
	}
	e.HashName = strings.TrimSpace(e.HashName)
	now := c.timestamp()
	id, err := c.insert(ctx,
		`INSERT INTO roster_entries (kennel_id, hash_name, nerd_name, email, phone, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.KennelID, e.HashName, nullableString(e.NerdName), nullableString(e.Email), nullableString(e.Phone),
		nullableString(e.Notes), now, now)
	if err != nil {
		return fmt.Errorf("create roster entry: %w", err)
	}
	e.ID = id
	e.CreatedAt = parseTime(now)
	e.UpdatedAt = e.CreatedAt
	return nil
}

// UpdateRosterEntry rewrites a roster entry's fields.
func (c conn) UpdateRosterEntry(ctx context.Context, e *RosterEntry) error {
	now := c.timestamp()
	if _, err := c.execWithRetry(ctx,
		`UPDATE roster_entries SET hash_name = ?, nerd_name = ?, email = ?, phone = ?, notes = ?, updated_at = ? WHERE id = ?`,
		e.HashName, nullableString(e.NerdName), nullableString(e.Email), nullableString(e.Phone), nullableString(e.Notes), now, e.ID,
	); err != nil {
		return fmt.Errorf("update roster entry %d: %w", e.ID, err)
	}
	e.UpdatedAt = parseTime(now)
	return nil
}

// DeleteRosterEntry removes a roster entry. Its attendances must already be gone.
func (c conn) DeleteRosterEntry(ctx context.Context, id int64) error {
	if _, err := c.execWithRetry(ctx, "DELETE FROM roster_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete roster entry %d: %w", id, err)
	}
	return nil
}

// RosterEntriesForKennels lists roster entries owned by the given kennels.
func (c conn) RosterEntriesForKennels(ctx context.Context, kennelIDs []int64) ([]*RosterEntry, error) {
	if len(kennelIDs) == 0 {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT "+rosterColumns+" FROM roster_entries WHERE kennel_id IN ("+makePlaceholders(len(kennelIDs))+") ORDER BY hash_name, id",
		int64Args(kennelIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()
	var entries []*RosterEntry
	for rows.Next() {
		e, err := scanRosterEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RosterForKennel lists the roster shared by kennelID's group.
func (c conn) RosterForKennel(ctx context.Context, kennelID int64) ([]*RosterEntry, error) {
	ids, err := c.RosterKennelIDs(ctx, kennelID)
	if err != nil {
		return nil, err
	}
	return c.RosterEntriesForKennels(ctx, ids)
}

// MoveAttendances reassigns attendances from one roster entry to another,
// dropping those for events the destination already attended. It returns the
// number moved and dropped.
func (c conn) MoveAttendances(ctx context.Context, fromEntryID, toEntryID int64) (int64, int64, error) {
	res, err := c.execWithRetry(ctx,
		`UPDATE attendances SET roster_entry_id = ?
		 WHERE roster_entry_id = ?
		   AND event_id NOT IN (SELECT event_id FROM attendances WHERE roster_entry_id = ?)`,
		toEntryID, fromEntryID, toEntryID)
	if err != nil {
		return 0, 0, fmt.Errorf("move attendances: %w", err)
	}
	moved, _ := res.RowsAffected()
	res, err = c.execWithRetry(ctx, "DELETE FROM attendances WHERE roster_entry_id = ?", fromEntryID)
	if err != nil {
		return moved, 0, fmt.Errorf("drop duplicate attendances: %w", err)
	}
	dropped, _ := res.RowsAffected()
	return moved, dropped, nil
}

// AttendanceKey identifies one (roster entry, event) pair.
type AttendanceKey struct {
	RosterEntryID int64
	EventID       int64
}

// AttendancePairs returns the attendance pairs already recorded for events.
func (c conn) AttendancePairs(ctx context.Context, eventIDs []int64) (map[AttendanceKey]struct{}, error) {
	pairs := make(map[AttendanceKey]struct{})
	if len(eventIDs) == 0 {
		return pairs, nil
	}
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT roster_entry_id, event_id FROM attendances WHERE event_id IN ("+makePlaceholders(len(eventIDs))+")",
		int64Args(eventIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list attendance pairs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key AttendanceKey
		if err := rows.Scan(&key.RosterEntryID, &key.EventID); err != nil {
			return nil, fmt.Errorf("scan attendance pair: %w", err)
		}
		pairs[key] = struct{}{}
	}
	return pairs, rows.Err()
}

// InsertAttendances records attendance rows. Pairs already on record are
// skipped and counted as duplicates.
func (c conn) InsertAttendances(ctx context.Context, records []Attendance) (inserted int, duplicates int, err error) {
	now := c.timestamp()
	for _, r := range records {
		res, err := c.execWithRetry(ctx,
			`INSERT INTO attendances (event_id, roster_entry_id, attended, paid, hared, recorded_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(event_id, roster_entry_id) DO NOTHING`,
			r.EventID, r.RosterEntryID, boolToInt(r.Attended), boolToInt(r.Paid), boolToInt(r.Hared),
			nullableString(r.RecordedBy), now)
		if err != nil {
			return inserted, duplicates, fmt.Errorf("insert attendance: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		} else {
			duplicates++
		}
	}
	return inserted, duplicates, nil
}

// AttendancesForEntry lists a roster entry's attendance rows.
func (c conn) AttendancesForEntry(ctx context.Context, rosterEntryID int64) ([]Attendance, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		`SELECT id, event_id, roster_entry_id, attended, paid, hared, recorded_by, created_at
		 FROM attendances WHERE roster_entry_id = ? ORDER BY event_id`, rosterEntryID)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	defer rows.Close()
	var out []Attendance
	for rows.Next() {
		var (
			a                     Attendance
			attended, paid, hared int
			recordedBy            sql.NullString
			createdRaw            string
		)
		if err := rows.Scan(&a.ID, &a.EventID, &a.RosterEntryID, &attended, &paid, &hared, &recordedBy, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		a.Attended = attended != 0
		a.Paid = paid != 0
		a.Hared = hared != 0
		a.RecordedBy = recordedBy.String
		a.CreatedAt = parseTime(createdRaw)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateExternalRequest records a pending roster-access request.
func (c conn) CreateExternalRequest(ctx context.Context, r *ExternalRequest) error {
	if r == nil || r.KennelID == 0 || strings.TrimSpace(r.UserID) == "" {
		return errors.New("external request requires kennel and user")
	}
	if r.Status == "" {
		r.Status = "PENDING"
	}
	now := c.timestamp()
	id, err := c.insert(ctx,
		"INSERT INTO external_requests (kennel_id, user_id, message, status, created_at) VALUES (?, ?, ?, ?, ?)",
		r.KennelID, r.UserID, nullableString(r.Message), r.Status, now)
	if err != nil {
		return fmt.Errorf("create external request: %w", err)
	}
	r.ID = id
	r.CreatedAt = parseTime(now)
	return nil
}
