// Package schema is C1, the Schema Map: a static, read-only PII descriptor
// table loaded once at process start and consulted by C3-C6 before any
// export, erasure, rectification, or retention sweep touches a table. A
// table absent here is invisible to the engine (spec.md §4.1, §9).
//
// The descriptor set below is grounded on
// original_source/compliance/gdpr/data_eraser.py (PII_TABLES) and
// data_exporter.py (PII_TABLES), generalized from the source's hardcoded
// Python dict into a Go-native, still closed, loaded-once table.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"gdprengine/internal/models"
)

// Map is the loaded-once, read-only schema descriptor table. Constructed by
// New and never mutated afterward.
type Map struct {
	order       []string
	descriptors map[string]models.TableDescriptor
}

// New builds the default schema map for this deployment. In a real
// controller this would be loaded from a reviewed configuration file; it is
// a Go literal here so the descriptor set is a closed, compiled-in list per
// spec.md §9 ("a closed, reviewable list... the security boundary").
func New() *Map {
	descriptors := []models.TableDescriptor{
		{
			Table:             "users",
			IdentifierColumn:  "email",
			CanDelete:         true,
			PIIColumns:        []string{"email", "password_hash", "name", "company"},
			RectifiableFields: []string{"name", "company"},
			ExportColumns:     []string{"id", "email", "name", "company", "role", "status", "created_at", "last_login"},
		},
		{
			Table:             "leads",
			IdentifierColumn:  "email",
			CanDelete:         true,
			PIIColumns:        []string{"email", "name", "phone", "linkedin_url", "title"},
			RectifiableFields: []string{"name", "phone", "linkedin_url", "title"},
			ExportColumns:     []string{"id", "email", "name", "phone", "linkedin_url", "title", "created_at"},
		},
		{
			Table:             "reviews",
			AuthorColumn:      "author_name",
			CanDelete:         false,
			PIIColumns:        []string{"author_name", "author_url"},
			RectifiableFields: []string{},
			AnonymizeTo: map[string]interface{}{
				"author_name": "Anonymous User",
				"author_url":  nil,
			},
			ExportColumns: []string{"id", "author_name", "author_url", "rating", "body", "created_at"},
		},
		{
			Table: "locations",
			Skip:  true,
		},
		{
			Table:             "outreach_log",
			IdentifierColumn:  "lead_email",
			CanDelete:         true,
			PIIColumns:        []string{"lead_email"},
			RectifiableFields: []string{},
			ExportColumns:     []string{"id", "lead_email", "channel", "sent_at"},
		},
		{
			Table:            "gdpr_consents",
			IdentifierColumn: "subject_email",
			CanDelete:        false,
			PIIColumns:       []string{},
			AnonymizeTo: map[string]interface{}{
				"ip_address": nil,
				"user_agent": nil,
			},
		},
		{
			Table:            "gdpr_requests",
			IdentifierColumn: "subject_email",
			CanDelete:        false,
			PIIColumns:       []string{},
			AnonymizeTo: map[string]interface{}{
				"ip_address": nil,
				"user_agent": nil,
			},
		},
	}

	m := &Map{descriptors: make(map[string]models.TableDescriptor, len(descriptors))}
	for _, d := range descriptors {
		m.order = append(m.order, d.Table)
		m.descriptors[d.Table] = d
	}
	return m
}

// Lookup returns a table's descriptor, false if the table is not in the map.
func (m *Map) Lookup(table string) (models.TableDescriptor, bool) {
	d, ok := m.descriptors[table]
	return d, ok
}

// Tables returns the declared insertion order, the iteration order every
// C4/C6 sweep must use per spec.md §4.4 ("Ordering & tie-breaks").
func (m *Map) Tables() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// TablesForExport returns all non-skip descriptors with an identifier
// column or an author-linkage column, in schema-map order (§4.1).
// `reviews`-shaped tables (data_exporter.py's `elif author_column:` branch)
// carry no subject identifier but are still exported by matching
// AuthorColumn against the email's local part.
func (m *Map) TablesForExport() []models.TableDescriptor {
	var out []models.TableDescriptor
	for _, name := range m.order {
		d := m.descriptors[name]
		if d.Skip || (d.IdentifierColumn == "" && d.AuthorColumn == "") {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TablesForErasure returns all descriptors with skip=false, in schema-map
// order, regardless of deletable/anonymize-only split — the caller
// partitions on CanDelete (§4.1).
func (m *Map) TablesForErasure() []models.TableDescriptor {
	var out []models.TableDescriptor
	for _, name := range m.order {
		d := m.descriptors[name]
		if d.Skip {
			continue
		}
		out = append(out, d)
	}
	return out
}

// RectifiableFields returns the whitelist of a table's rewritable columns.
func (m *Map) RectifiableFields(table string) ([]string, bool) {
	d, ok := m.descriptors[table]
	if !ok {
		return nil, false
	}
	out := make([]string, len(d.RectifiableFields))
	copy(out, d.RectifiableFields)
	sort.Strings(out)
	return out, true
}

// AnonEmail implements spec.md §4.1's deterministic anonymization:
// anon_email(e) = "deleted_" + hex(sha256(e)[:4]) + "@anonymized.local".
func AnonEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "deleted_" + hex.EncodeToString(sum[:4]) + "@anonymized.local"
}

// LocalPart returns the portion of an email before '@', used by the
// author-name anonymization LIKE predicate (§4.4).
func LocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}
