package merge

import (
	"testing"

	"hashsync/internal/store"
)

func TestOwnershipGraphCoversEveryKennelTable(t *testing.T) {
	declared := map[string]bool{}
	for _, c := range ownershipGraph() {
		if declared[c.table] {
			t.Fatalf("table %s declared twice", c.table)
		}
		declared[c.table] = true
	}
	for _, table := range store.KennelOwnedTables() {
		if !declared[table] {
			t.Errorf("table %s has no merge policy", table)
		}
	}
}

func TestMergeRosterEntries(t *testing.T) {
	tests := []struct {
		name   string
		target store.RosterEntry
		source store.RosterEntry
		want   store.RosterEntry
	}{
		{
			name:   "source richer wins",
			target: store.RosterEntry{ID: 1, KennelID: 2, HashName: "bob", Notes: "n"},
			source: store.RosterEntry{ID: 9, KennelID: 3, HashName: "Bob", Email: "e", Phone: "p"},
			want:   store.RosterEntry{ID: 1, KennelID: 2, HashName: "Bob", Email: "e", Phone: "p", Notes: "n"},
		},
		{
			name:   "tie keeps target",
			target: store.RosterEntry{ID: 1, KennelID: 2, HashName: "bob", Email: "target@x"},
			source: store.RosterEntry{ID: 9, KennelID: 3, HashName: "Bob", Email: "source@x"},
			want:   store.RosterEntry{ID: 1, KennelID: 2, HashName: "bob", Email: "target@x"},
		},
		{
			name:   "target richer fills blanks",
			target: store.RosterEntry{ID: 1, KennelID: 2, HashName: "bob", Email: "t", Phone: "t"},
			source: store.RosterEntry{ID: 9, KennelID: 3, HashName: "Bob", NerdName: "Robert"},
			want:   store.RosterEntry{ID: 1, KennelID: 2, HashName: "bob", NerdName: "Robert", Email: "t", Phone: "t"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeRosterEntries(tt.target, tt.source); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
