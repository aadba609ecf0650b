package schema

import "testing"

func TestLookup(t *testing.T) {
	m := New()

	d, ok := m.Lookup("users")
	if !ok {
		t.Fatal("expected users to be in the schema map")
	}
	if d.IdentifierColumn != "email" {
		t.Errorf("expected identifier column email, got %q", d.IdentifierColumn)
	}

	if _, ok := m.Lookup("nonexistent_table"); ok {
		t.Error("expected nonexistent_table to be absent from the schema map")
	}
}

func TestTablesForExportExcludesSkippedButIncludesAuthorLinked(t *testing.T) {
	m := New()

	exported := m.TablesForExport()
	names := make(map[string]bool, len(exported))
	for _, d := range exported {
		names[d.Table] = true
		if d.Table == "locations" {
			t.Error("locations is marked Skip and must not appear in TablesForExport")
		}
		if d.IdentifierColumn == "" && d.AuthorColumn == "" {
			t.Errorf("table %q has neither an identifier nor an author column and must not appear in TablesForExport", d.Table)
		}
	}

	// reviews has no identifier column but is linked by author_name
	// (spec.md §8 Scenario S2: users+leads+reviews all export).
	if !names["reviews"] {
		t.Error("reviews is author-linked and must appear in TablesForExport")
	}
}

func TestTablesForErasureExcludesOnlySkipped(t *testing.T) {
	m := New()

	erased := m.TablesForErasure()
	names := make(map[string]bool, len(erased))
	for _, d := range erased {
		names[d.Table] = true
	}

	if names["locations"] {
		t.Error("locations is marked Skip and must not appear in TablesForErasure")
	}
	if !names["reviews"] {
		t.Error("reviews is not deletable but is not skipped, so it must still appear in TablesForErasure")
	}
}

func TestTablesPreservesDeclarationOrder(t *testing.T) {
	m := New()
	order := m.Tables()

	usersIdx, reviewsIdx, requestsIdx := -1, -1, -1
	for i, name := range order {
		switch name {
		case "users":
			usersIdx = i
		case "reviews":
			reviewsIdx = i
		case "gdpr_requests":
			requestsIdx = i
		}
	}
	if usersIdx < 0 || reviewsIdx < 0 || requestsIdx < 0 {
		t.Fatal("expected users, reviews and gdpr_requests in Tables()")
	}
	if !(usersIdx < reviewsIdx && reviewsIdx < requestsIdx) {
		t.Errorf("expected declaration order users < reviews < gdpr_requests, got indices %d, %d, %d", usersIdx, reviewsIdx, requestsIdx)
	}
}

func TestRectifiableFieldsIsSortedAndCopied(t *testing.T) {
	m := New()

	fields, ok := m.RectifiableFields("leads")
	if !ok {
		t.Fatal("expected leads to have a rectifiable-fields entry")
	}
	for i := 1; i < len(fields); i++ {
		if fields[i-1] > fields[i] {
			t.Fatalf("expected sorted output, got %v", fields)
		}
	}

	fields[0] = "mutated"
	fields2, _ := m.RectifiableFields("leads")
	if fields2[0] == "mutated" {
		t.Error("RectifiableFields must return a fresh copy each call, not a shared slice")
	}

	if _, ok := m.RectifiableFields("nonexistent_table"); ok {
		t.Error("expected ok=false for a table absent from the schema map")
	}
}

func TestAnonEmailIsDeterministicAndCaseInsensitive(t *testing.T) {
	a := AnonEmail("User@Example.com")
	b := AnonEmail("user@example.com ")

	if a != b {
		t.Errorf("expected AnonEmail to normalize case and whitespace, got %q vs %q", a, b)
	}
	if a == "" {
		t.Fatal("expected a non-empty anonymized address")
	}
	const suffix = "@anonymized.local"
	if len(a) <= len(suffix) || a[len(a)-len(suffix):] != suffix {
		t.Errorf("expected anonymized address to end in %q, got %q", suffix, a)
	}

	c := AnonEmail("other@example.com")
	if a == c {
		t.Error("expected different source emails to anonymize to different addresses")
	}
}

func TestLocalPart(t *testing.T) {
	cases := map[string]string{
		"jane@example.com": "jane",
		"no-at-sign":       "no-at-sign",
		"a@b@c":            "a",
	}
	for in, want := range cases {
		if got := LocalPart(in); got != want {
			t.Errorf("LocalPart(%q) = %q, want %q", in, got, want)
		}
	}
}
