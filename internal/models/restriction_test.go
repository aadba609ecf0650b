package models

import (
	"testing"
	"time"
)

func TestProcessingRestrictionIsCurrentlyActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name     string
		active   bool
		expiry   *time.Time
		want     bool
	}{
		{"active, no expiry", true, nil, true},
		{"active, expires in future", true, &future, true},
		{"active, already expired", true, &past, false},
		{"lifted", false, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := &ProcessingRestriction{IsActive: c.active, ExpiresAt: c.expiry}
			if got := r.IsCurrentlyActive(now); got != c.want {
				t.Errorf("IsCurrentlyActive() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestProcessingRestrictionBlocks(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		ops        []string
		tables     []string
		op, table  string
		want       bool
	}{
		{"exact op and table match", []string{"DELETE"}, []string{"users"}, "DELETE", "users", true},
		{"wildcard op", []string{"all"}, []string{"users"}, "EXPORT", "users", true},
		{"wildcard table", []string{"DELETE"}, []string{"all"}, "DELETE", "leads", true},
		{"op mismatch", []string{"DELETE"}, []string{"users"}, "EXPORT", "users", false},
		{"table mismatch", []string{"DELETE"}, []string{"users"}, "DELETE", "leads", false},
		{"empty op/table always matches", []string{"DELETE"}, []string{"users"}, "", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := &ProcessingRestriction{
				IsActive:             true,
				RestrictedOperations: c.ops,
				RestrictedTables:     c.tables,
			}
			if got := r.Blocks(now, c.op, c.table); got != c.want {
				t.Errorf("Blocks(%q, %q) = %v, want %v", c.op, c.table, got, c.want)
			}
		})
	}
}

func TestProcessingRestrictionBlocksNothingWhenLifted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &ProcessingRestriction{
		IsActive:             false,
		RestrictedOperations: []string{"all"},
		RestrictedTables:     []string{"all"},
	}
	if r.Blocks(now, "DELETE", "users") {
		t.Error("a lifted restriction must never block")
	}
}

func TestRestrictionReasonValid(t *testing.T) {
	if !RestrictionReasonAccuracyContested.Valid() {
		t.Error("expected ACCURACY_CONTESTED to be valid")
	}
	if RestrictionReason("BOGUS").Valid() {
		t.Error("expected an unknown restriction reason to be invalid")
	}
}
