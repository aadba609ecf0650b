package dataops

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gdprengine/internal/security"
)

// exportShortHash is the 12-hex-character fragment used in export
// filenames: gdpr_export_<12hex>_<ts>.<ext> (spec.md §4.4, scenario S2).
func exportShortHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:6])
}

// exportFilename builds the stable filename spec.md §4.4 requires.
func exportFilename(email, ext string, at time.Time) string {
	ts := at.UTC().Format("20060102T150405Z")
	return fmt.Sprintf("gdpr_export_%s_%s.%s", exportShortHash(email), ts, ext)
}

// jsonExportDocument is the on-disk shape of spec.md §6's "Persisted file
// format — Export JSON". Field order is fixed so marshalled output is
// always round-trippable the same way.
type jsonExportDocument struct {
	SubjectEmail    string                   `json:"subject_email"`
	ExportTimestamp string                   `json:"export_timestamp"`
	Format          string                   `json:"format"`
	Data            map[string][]map[string]interface{} `json:"data"`
}

func writeJSONExport(dir, email string, at time.Time, data map[string][]map[string]interface{}, enc *security.Encryptor) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create exports directory: %w", err)
	}

	doc := jsonExportDocument{
		SubjectEmail:    email,
		ExportTimestamp: at.UTC().Format(time.RFC3339),
		Format:          "json",
		Data:            data,
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal export document: %w", err)
	}

	name := exportFilename(email, "json", at)
	if enc.Enabled() {
		if body, err = enc.Encrypt(body); err != nil {
			return "", 0, fmt.Errorf("failed to encrypt export file: %w", err)
		}
		name += ".enc"
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return "", 0, fmt.Errorf("failed to write export file: %w", err)
	}
	return path, int64(len(body)), nil
}

// writeCSVExport implements spec.md §6's "Persisted file format — Export
// CSV": five metadata lines, then per-table "=== TABLE ===" sections with a
// header row, data rows, and a blank separator.
func writeCSVExport(dir, email string, at time.Time, tables []string, data map[string][]map[string]interface{}, columnOrder map[string][]string, enc *security.Encryptor) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create exports directory: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"GDPR Data Export"})
	_ = w.Write([]string{"Subject Email", email})
	_ = w.Write([]string{"Export Timestamp", at.UTC().Format(time.RFC3339)})
	_ = w.Write([]string{})

	for _, table := range tables {
		_ = w.Write([]string{fmt.Sprintf("=== %s ===", strings.ToUpper(table))})

		cols := columnOrder[table]
		if len(cols) > 0 {
			_ = w.Write(cols)
		}
		for _, rowData := range data[table] {
			record := make([]string, len(cols))
			for i, c := range cols {
				record[i] = stringifyCell(rowData[c])
			}
			_ = w.Write(record)
		}
		_ = w.Write([]string{})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, fmt.Errorf("failed to flush export file: %w", err)
	}

	body := buf.Bytes()
	name := exportFilename(email, "csv", at)
	if enc.Enabled() {
		encrypted, err := enc.Encrypt(body)
		if err != nil {
			return "", 0, fmt.Errorf("failed to encrypt export file: %w", err)
		}
		body = encrypted
		name += ".enc"
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return "", 0, fmt.Errorf("failed to write export file: %w", err)
	}
	return path, int64(len(body)), nil
}

func stringifyCell(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// cleanupOldExports implements the SPEC_FULL.md-supplemented export file
// retention sweep, grounded on data_exporter.py's cleanup_old_exports.
func cleanupOldExports(dir string, olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read exports directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "gdpr_export_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > olderThan {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
