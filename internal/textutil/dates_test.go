package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2026-01-15", "2026-01-15", true},
		{"1/15/26", "2026-01-15", true},
		{"01/15/2026", "2026-01-15", true},
		{"1-15-26", "2026-01-15", true},
		{"Jan 15 2026", "2026-01-15", true},
		{"January 15, 2026", "2026-01-15", true},
		{"15 Jan 2026", "2026-01-15", true},
		{"2026-01-15T18:30:00Z", "2026-01-15", true},
		{"  2026-01-15  ", "2026-01-15", true},
		{"#2100", "", false},
		{"", "", false},
		{"13/45/26", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseDate(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "ParseDate(%q)", tt.in)
	}
}

func TestParseRunNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"#2100", 2100, true},
		{"2100", 2100, true},
		{"Run 2100", 2100, true},
		{"run #2100", 2100, true},
		{"R2100", 2100, true},
		{"# 42", 42, true},
		{"0", 0, false},
		{"1/15/26", 0, false},
		{"Hash 2100", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRunNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseRunNumber(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "ParseRunNumber(%q)", tt.in)
	}
}
