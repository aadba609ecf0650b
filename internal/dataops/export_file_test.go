package dataops

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gdprengine/internal/security"
)

func TestExportFilenameIsStableAndHashed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	name := exportFilename("jane@example.com", "json", at)
	if !strings.HasPrefix(name, "gdpr_export_") {
		t.Errorf("expected filename to start with gdpr_export_, got %q", name)
	}
	if !strings.HasSuffix(name, ".json") {
		t.Errorf("expected a .json suffix, got %q", name)
	}
	if !strings.Contains(name, "20260301T123000Z") {
		t.Errorf("expected the UTC timestamp in the filename, got %q", name)
	}

	again := exportFilename("Jane@Example.com", "json", at)
	if again != name {
		t.Errorf("expected the hash to be case-insensitive on email, got %q vs %q", again, name)
	}
}

func TestWriteJSONExportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	at := time.Now().UTC()
	data := map[string][]map[string]interface{}{
		"users": {{"email": "jane@example.com", "name": "Jane"}},
	}

	path, size, err := writeJSONExport(dir, "jane@example.com", at, data, nil)
	if err != nil {
		t.Fatalf("writeJSONExport failed: %v", err)
	}
	if size == 0 {
		t.Error("expected a non-zero file size")
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export file: %v", err)
	}
	var doc jsonExportDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("failed to unmarshal export document: %v", err)
	}
	if doc.SubjectEmail != "jane@example.com" {
		t.Errorf("expected subject_email to round-trip, got %q", doc.SubjectEmail)
	}
	if doc.Format != "json" {
		t.Errorf("expected format json, got %q", doc.Format)
	}
}

func TestWriteJSONExportEncryptsWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	enc := security.NewEncryptor("a deployment secret")
	data := map[string][]map[string]interface{}{"users": {{"email": "jane@example.com"}}}

	path, _, err := writeJSONExport(dir, "jane@example.com", time.Now().UTC(), data, enc)
	if err != nil {
		t.Fatalf("writeJSONExport failed: %v", err)
	}
	if !strings.HasSuffix(path, ".enc") {
		t.Errorf("expected an .enc suffix for an encrypted export, got %q", path)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export file: %v", err)
	}
	var doc jsonExportDocument
	if err := json.Unmarshal(body, &doc); err == nil {
		t.Error("expected the on-disk bytes to not be parseable JSON when encrypted")
	}
}

func TestWriteCSVExportIncludesTableSections(t *testing.T) {
	dir := t.TempDir()
	data := map[string][]map[string]interface{}{
		"users": {{"email": "jane@example.com", "name": "Jane"}},
	}
	columnOrder := map[string][]string{"users": {"email", "name"}}

	path, _, err := writeCSVExport(dir, "jane@example.com", time.Now().UTC(), []string{"users"}, data, columnOrder, nil)
	if err != nil {
		t.Fatalf("writeCSVExport failed: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export file: %v", err)
	}
	content := string(body)
	if !strings.Contains(content, "=== USERS ===") {
		t.Error("expected an uppercased table section header")
	}
	if !strings.Contains(content, "jane@example.com") {
		t.Error("expected the exported row value to appear in the CSV")
	}
}

func TestStringifyCellHandlesNilAndStringer(t *testing.T) {
	if got := stringifyCell(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
	if got := stringifyCell("plain"); got != "plain" {
		t.Errorf("expected plain string passthrough, got %q", got)
	}
	if got := stringifyCell(42); got != "42" {
		t.Errorf("expected fmt.Sprintf fallback for non-string types, got %q", got)
	}
}

func TestCleanupOldExportsRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "gdpr_export_abc123_20200101T000000Z.json")
	fresh := filepath.Join(dir, "gdpr_export_def456_20260101T000000Z.json")
	ignored := filepath.Join(dir, "not_an_export.txt")

	for _, p := range []string{stale, fresh, ignored} {
		if err := os.WriteFile(p, []byte("{}"), 0o640); err != nil {
			t.Fatalf("failed to seed fixture file: %v", err)
		}
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, oldTime, oldTime); err != nil {
		t.Fatalf("failed to backdate fixture file: %v", err)
	}

	removed, err := cleanupOldExports(dir, 24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("cleanupOldExports failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected exactly 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected the stale export file to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("expected the fresh export file to survive")
	}
	if _, err := os.Stat(ignored); err != nil {
		t.Error("expected the non-export file to be left alone regardless of age")
	}
}

func TestCleanupOldExportsOnMissingDirectoryIsNotAnError(t *testing.T) {
	removed, err := cleanupOldExports(filepath.Join(t.TempDir(), "does-not-exist"), 24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("expected no error for a missing exports directory, got %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}
