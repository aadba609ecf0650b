package models

// TableDescriptor is one entry of the SchemaMap (C1), spec.md §3. It is the
// security boundary per §9: any table absent from the map is invisible to
// every destructive or exporting operation.
type TableDescriptor struct {
	Table string

	// IdentifierColumn is the column matching subject_email (or an
	// equivalent), used by export/erase/rectify WHERE clauses.
	IdentifierColumn string

	// AuthorColumn, when set, is an additional non-identifier column
	// matched with a case-insensitive LIKE against the email's local part
	// — the author-name anonymization path of §4.4.
	AuthorColumn string

	// CanDelete: true removes matching rows outright; false anonymizes them
	// in place.
	CanDelete bool

	// PIIColumns are the columns considered personal data.
	PIIColumns []string

	// AnonymizeTo maps a column to its replacement literal on anonymization
	// (nil value means SQL NULL).
	AnonymizeTo map[string]interface{}

	// RectifiableFields is the whitelist of columns rectification may
	// rewrite; always a subset of PIIColumns.
	RectifiableFields []string

	// ExportColumns is the fixed projection used by Data.Export; when empty,
	// PIIColumns plus IdentifierColumn are used.
	ExportColumns []string

	// Skip excludes this descriptor from every C4/C6 operation.
	Skip bool
}
