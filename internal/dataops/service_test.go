package dataops

import (
	"context"
	"testing"

	"gdprengine/internal/models"
	"gdprengine/internal/schema"
	"gdprengine/internal/testutil"
)

func TestContainsField(t *testing.T) {
	whitelist := []string{"name", "company"}
	if !containsField(whitelist, "name") {
		t.Error("expected name to be found in the whitelist")
	}
	if containsField(whitelist, "email") {
		t.Error("expected email to not be found in the whitelist")
	}
}

func TestFirstInvalidFieldReportsOutOfWhitelistColumn(t *testing.T) {
	whitelist := []string{"name"}
	fields := map[string]interface{}{"name": "Jane"}
	if got := firstInvalidField(fields, whitelist); got != "" {
		t.Errorf("expected no invalid field, got %q", got)
	}

	fields["password_hash"] = "x"
	if got := firstInvalidField(fields, whitelist); got != "password_hash" {
		t.Errorf("expected password_hash to be reported as invalid, got %q", got)
	}
}

func TestFieldNamesReturnsEveryKey(t *testing.T) {
	names := fieldNames(map[string]interface{}{"a": 1, "b": 2})
	if len(names) != 2 {
		t.Fatalf("expected 2 field names, got %d", len(names))
	}
}

func TestAnonymizeSetClauseRewritesIdentifierWhenPII(t *testing.T) {
	d := models.TableDescriptor{
		IdentifierColumn: "email",
		PIIColumns:       []string{"email", "name"},
		AnonymizeTo:      map[string]interface{}{"name": nil},
	}
	setClause, args, touched := anonymizeSetClause(d, "deleted_abcd@anonymized.local")
	if setClause == "" {
		t.Fatal("expected a non-empty SET clause")
	}
	if len(args) != 1 || args[0] != "deleted_abcd@anonymized.local" {
		t.Errorf("expected the anonymized email as the only bound arg, got %v", args)
	}
	if len(touched) != 2 {
		t.Errorf("expected both name and email to be reported as touched, got %v", touched)
	}
}

func TestAnonymizeSetClauseSkipsIdentifierWhenNotPII(t *testing.T) {
	d := models.TableDescriptor{
		IdentifierColumn: "subject_ref",
		PIIColumns:       []string{"name"},
		AnonymizeTo:      map[string]interface{}{"name": nil},
	}
	_, args, touched := anonymizeSetClause(d, "deleted_abcd@anonymized.local")
	if len(args) != 0 {
		t.Errorf("expected no bound args when identifier isn't PII, got %v", args)
	}
	if len(touched) != 1 || touched[0] != "name" {
		t.Errorf("expected only name to be touched, got %v", touched)
	}
}

func TestQuoteIdentSanitizesIdentifier(t *testing.T) {
	if got := quoteIdent("users"); got != `"users"` {
		t.Errorf("expected a double-quoted identifier, got %q", got)
	}
}

func TestRectifyEmailRejectsIdenticalAddresses(t *testing.T) {
	o := NewOperator(&testutil.FakeDB{}, schema.New(), nil, nil, nil, "")
	_, err := o.RectifyEmail(context.Background(), models.Actor{}, "Jane@Example.com", "jane@example.com", false, "req-1")
	if err == nil {
		t.Fatal("expected an error when old and new email normalize to the same address")
	}
}

func TestCleanupExportsNoFilesSkipsAuditAndDB(t *testing.T) {
	dir := t.TempDir()
	db := &testutil.FakeDB{}
	o := NewOperator(db, schema.New(), nil, nil, nil, dir)

	removed, err := o.CleanupExports(context.Background(), models.Actor{PerformedBy: "system"}, 30)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 files removed from an empty directory, got %d", removed)
	}
	if len(db.Txs) != 0 {
		t.Error("expected no transaction to be opened when nothing was removed")
	}
}
