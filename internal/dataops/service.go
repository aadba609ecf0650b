package dataops

import (
	"context"
	"strings"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/dberr"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/logger"
	"gdprengine/internal/models"
	"gdprengine/internal/schema"
	"gdprengine/internal/security"
)

// CheckFn adapts restriction.Manager.Check (C5's permission predicate,
// spec.md §4.5) without creating an import cycle between internal/dataops
// and internal/restriction.
type CheckFn func(ctx context.Context, email, op, table string) (blocked bool, detail string, err error)

// Operator is C4.
type Operator struct {
	db               dbexec.DB
	schema           *schema.Map
	audit            *audit.Logger
	events           events.Publisher
	checkRestriction CheckFn
	exportsDir       string
	encryptor        *security.Encryptor
}

func NewOperator(db dbexec.DB, schemaMap *schema.Map, auditLogger *audit.Logger, publisher events.Publisher, checkRestriction CheckFn, exportsDir string) *Operator {
	return &Operator{
		db:               db,
		schema:           schemaMap,
		audit:            auditLogger,
		events:           publisher,
		checkRestriction: checkRestriction,
		exportsDir:       exportsDir,
	}
}

// WithEncryption enables at-rest AES-GCM encryption of generated export
// files; nil disables it (the default). Returns o for chaining at
// construction time.
func (o *Operator) WithEncryption(enc *security.Encryptor) *Operator {
	o.encryptor = enc
	return o
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (o *Operator) permitted(ctx context.Context, email, op, table string) error {
	if o.checkRestriction == nil {
		return nil
	}
	blocked, detail, err := o.checkRestriction(ctx, email, op, table)
	if err != nil {
		return dberr.Internal("failed to check processing restriction", err)
	}
	if blocked {
		return dberr.PreconditionFailed("processing restricted: " + detail)
	}
	return nil
}

// Export implements spec.md §4.4's Export operation.
func (o *Operator) Export(ctx context.Context, actor models.Actor, email, format string, requestID string) (*models.ExportResult, error) {
	email = normalizeEmail(email)
	format = strings.ToLower(format)
	if format != "json" && format != "csv" {
		return nil, dberr.InvalidArgument("format must be json or csv")
	}
	localPart := schema.LocalPart(email)

	descriptors := o.schema.TablesForExport()
	data := make(map[string][]map[string]interface{}, len(descriptors))
	columnOrder := make(map[string][]string, len(descriptors))
	var tablesExported []string
	total := 0

	for _, d := range descriptors {
		if err := o.permitted(ctx, email, "EXPORT", d.Table); err != nil {
			return nil, err
		}

		cols := d.ExportColumns
		if len(cols) == 0 {
			cols = append(append([]string{}, d.PIIColumns...), d.IdentifierColumn)
		}

		var rows []row
		var names []string
		var err error
		if d.IdentifierColumn != "" {
			rows, names, err = selectByIdentifier(ctx, o.db, d.Table, cols, d.IdentifierColumn, email)
		} else {
			rows, names, err = selectByAuthorLike(ctx, o.db, d.Table, cols, d.AuthorColumn, localPart)
		}
		if err != nil {
			return nil, dberr.Internal("export failed on table "+d.Table, err)
		}
		if len(rows) == 0 {
			continue
		}

		out := make([]map[string]interface{}, len(rows))
		for i, r := range rows {
			out[i] = map[string]interface{}(r)
		}
		data[d.Table] = out
		columnOrder[d.Table] = names
		tablesExported = append(tablesExported, d.Table)
		total += len(rows)
	}

	now := time.Now().UTC()
	var filePath string
	var fileSize int64
	var err error
	if format == "json" {
		filePath, fileSize, err = writeJSONExport(o.exportsDir, email, now, data, o.encryptor)
	} else {
		filePath, fileSize, err = writeCSVExport(o.exportsDir, email, now, tablesExported, data, columnOrder, o.encryptor)
	}
	if err != nil {
		return nil, dberr.Internal("failed to write export file", err)
	}

	if tablesExported == nil {
		tablesExported = []string{}
	}

	tx, err := o.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := o.audit.DataExported(ctx, tx, actor, email, tablesExported, total, filePath, requestID); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	result := &models.ExportResult{
		Success:         true,
		Email:           email,
		Format:          format,
		FilePath:        filePath,
		FileSize:        fileSize,
		TotalRecords:    total,
		TablesExported:  tablesExported,
		ExportTimestamp: now.Format(time.RFC3339),
		Encrypted:       o.encryptor.Enabled(),
	}

	_ = o.events.Publish(ctx, string(models.EventDataExported), email, result)
	logger.WithContext(ctx).WithField("subject_email", email).WithField("total_records", total).Info("data export completed")
	return result, nil
}

// PreviewExport implements the SPEC_FULL.md-supplemented read-only preview:
// per-table counts without writing an audit row or touching files.
func (o *Operator) PreviewExport(ctx context.Context, email string) (*models.ExportPreview, error) {
	email = normalizeEmail(email)
	localPart := schema.LocalPart(email)
	counts := make(map[string]int)
	total := 0
	for _, d := range o.schema.TablesForExport() {
		var n int
		var err error
		if d.IdentifierColumn != "" {
			n, err = countByIdentifier(ctx, o.db, d.Table, d.IdentifierColumn, email)
		} else {
			n, err = countByAuthorLike(ctx, o.db, d.Table, d.AuthorColumn, localPart)
		}
		if err != nil {
			return nil, dberr.Internal("preview export failed on table "+d.Table, err)
		}
		if n > 0 {
			counts[d.Table] = n
			total += n
		}
	}
	return &models.ExportPreview{Email: email, TableCounts: counts, TotalRecords: total}, nil
}

// Erase implements spec.md §4.4's Erase operation. bypassRestriction must
// be true only when the call originates from a DATA_ERASURE request, per
// §4.5 ("erasure must always be permitted so the right to erasure cannot be
// blocked by a restriction"). Iteration walks the schema map in its fixed
// declared order; a failure on one table is collected and the walk
// continues (best-effort), except dry-run, which never mutates.
func (o *Operator) Erase(ctx context.Context, actor models.Actor, email string, dryRun, bypassRestriction bool, requestID string) (*models.EraseResult, error) {
	email = normalizeEmail(email)
	localPart := schema.LocalPart(email)
	anonEmail := schema.AnonEmail(email)

	result := &models.EraseResult{Email: email, DryRun: dryRun}

	tx, err := o.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	var exec dbexec.Execer = tx

	affectedTables := []string{}
	anyTableSucceeded := false

	for _, d := range o.schema.TablesForErasure() {
		if !bypassRestriction {
			if err := o.permitted(ctx, email, "DELETE", d.Table); err != nil {
				return nil, err
			}
		}

		var tr models.EraseTableResult
		var execErr error

		switch {
		case d.CanDelete:
			tr, execErr = eraseDeletable(ctx, exec, d, email, dryRun)
		case d.AuthorColumn != "":
			tr, execErr = eraseByAuthor(ctx, exec, d, localPart, dryRun)
		case d.IdentifierColumn != "":
			tr, execErr = eraseAnonymizable(ctx, exec, d, email, anonEmail, dryRun)
		default:
			continue
		}

		if execErr != nil {
			tr.Error = execErr.Error()
			result.Errors = append(result.Errors, d.Table+": "+execErr.Error())
			result.Tables = append(result.Tables, tr)
			continue
		}

		result.Tables = append(result.Tables, tr)
		if tr.Count == 0 {
			continue
		}
		anyTableSucceeded = true
		affectedTables = append(affectedTables, d.Table)
		if tr.Action == string(models.RetentionActionDelete) {
			result.TotalDeleted += tr.Count
		} else {
			result.TotalAnonymized += tr.Count
		}
	}

	if dryRun {
		return result, nil
	}

	if !anyTableSucceeded {
		// Nothing affected; idempotent repeat call per §8 invariant 4.
		// Rolling back an empty transaction is a no-op.
		return result, nil
	}

	if result.TotalDeleted > 0 {
		if err := o.audit.DataDeleted(ctx, tx, actor, email, affectedTables, result.TotalDeleted, requestID); err != nil {
			return nil, dberr.Internal("failed to write audit entry", err)
		}
	}
	if result.TotalAnonymized > 0 {
		if err := o.audit.DataAnonymized(ctx, tx, actor, email, affectedTables, result.TotalAnonymized, requestID); err != nil {
			return nil, dberr.Internal("failed to write audit entry", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	_ = o.events.Publish(ctx, string(models.EventDataErased), email, result)
	logger.WithContext(ctx).WithField("subject_email", email).
		WithField("total_deleted", result.TotalDeleted).
		WithField("total_anonymized", result.TotalAnonymized).
		Info("erasure completed")
	return result, nil
}

// PreviewErase implements the SPEC_FULL.md-supplemented read-only preview
// (data_eraser.py: preview_erasure): identical accounting to Erase's
// dry-run but without opening a write transaction at all.
func (o *Operator) PreviewErase(ctx context.Context, email string) (*models.ErasePreview, error) {
	email = normalizeEmail(email)
	localPart := schema.LocalPart(email)

	preview := &models.ErasePreview{Email: email}
	for _, d := range o.schema.TablesForErasure() {
		var tr models.EraseTableResult
		var err error
		switch {
		case d.CanDelete:
			tr, err = eraseDeletable(ctx, o.db, d, email, true)
		case d.AuthorColumn != "":
			tr, err = eraseByAuthor(ctx, o.db, d, localPart, true)
		case d.IdentifierColumn != "":
			tr, err = eraseAnonymizable(ctx, o.db, d, email, "", true)
		default:
			continue
		}
		if err != nil {
			tr.Error = err.Error()
		}
		preview.Tables = append(preview.Tables, tr)
	}
	return preview, nil
}

func eraseDeletable(ctx context.Context, exec dbexec.Execer, d models.TableDescriptor, email string, dryRun bool) (models.EraseTableResult, error) {
	tr := models.EraseTableResult{Table: d.Table, Action: string(models.RetentionActionDelete)}
	if dryRun {
		n, err := countByIdentifier(ctx, exec, d.Table, d.IdentifierColumn, email)
		tr.Count = n
		return tr, err
	}
	n, err := deleteByIdentifier(ctx, exec, d.Table, d.IdentifierColumn, email)
	tr.Count = int(n)
	return tr, err
}

func eraseByAuthor(ctx context.Context, exec dbexec.Execer, d models.TableDescriptor, localPart string, dryRun bool) (models.EraseTableResult, error) {
	tr := models.EraseTableResult{Table: d.Table, Action: "anonymize"}
	if dryRun {
		n, err := countByAuthorLike(ctx, exec, d.Table, d.AuthorColumn, localPart)
		tr.Count = n
		return tr, err
	}
	n, cols, err := anonymizeByAuthorLike(ctx, exec, d, localPart)
	tr.Count = int(n)
	tr.ColumnsAnonymized = cols
	return tr, err
}

func eraseAnonymizable(ctx context.Context, exec dbexec.Execer, d models.TableDescriptor, email, anonEmail string, dryRun bool) (models.EraseTableResult, error) {
	tr := models.EraseTableResult{Table: d.Table, Action: "anonymize"}
	if dryRun {
		n, err := countByIdentifier(ctx, exec, d.Table, d.IdentifierColumn, email)
		tr.Count = n
		return tr, err
	}
	n, cols, err := anonymizeByIdentifier(ctx, exec, d, email, anonEmail)
	tr.Count = int(n)
	tr.ColumnsAnonymized = cols
	return tr, err
}

// RectifiableFields implements the SPEC_FULL.md-supplemented read-only
// helper (data_rectifier.py: get_rectifiable_fields): the schema map's
// whitelist joined with current values for a subject.
func (o *Operator) RectifiableFields(ctx context.Context, email string) (map[string]map[string]interface{}, error) {
	email = normalizeEmail(email)
	out := make(map[string]map[string]interface{})
	for _, table := range o.schema.Tables() {
		fields, ok := o.schema.RectifiableFields(table)
		if !ok || len(fields) == 0 {
			continue
		}
		d, _ := o.schema.Lookup(table)
		values, err := selectCurrentValues(ctx, o.db, table, d.IdentifierColumn, email, fields)
		if err != nil {
			return nil, dberr.Internal("failed to read rectifiable fields for "+table, err)
		}
		if len(values) > 0 {
			out[table] = values
		}
	}
	return out, nil
}

// Rectify implements spec.md §4.4's Rectify operation. Validation happens
// per-table: an out-of-whitelist field fails that table with a collected
// error but does not abort the whole request (§4.4, §7 IntegrityFailure).
func (o *Operator) Rectify(ctx context.Context, actor models.Actor, email string, rectifications map[string]map[string]interface{}, dryRun bool, requestID string) (*models.RectifyResult, error) {
	email = normalizeEmail(email)
	result := &models.RectifyResult{Email: email, DryRun: dryRun}

	before := make(map[string]interface{})
	after := make(map[string]interface{})
	var touchedTables []string

	var exec dbexec.Execer = o.db
	var tx interface {
		Commit(context.Context) error
		Rollback(context.Context) error
	}
	if !dryRun {
		t, err := o.db.Begin(ctx)
		if err != nil {
			return nil, dberr.Internal("failed to start transaction", err)
		}
		defer t.Rollback(ctx)
		exec = t
		tx = t
	}

	for table, fields := range rectifications {
		whitelist, ok := o.schema.RectifiableFields(table)
		if !ok {
			tr := models.RectifyTableResult{Table: table, Error: "unknown or non-rectifiable table"}
			result.Tables = append(result.Tables, tr)
			result.Errors = append(result.Errors, table+": unknown or non-rectifiable table")
			continue
		}

		invalid := firstInvalidField(fields, whitelist)
		if invalid != "" {
			tr := models.RectifyTableResult{Table: table, Error: "field not in rectifiable whitelist: " + invalid}
			result.Tables = append(result.Tables, tr)
			result.Errors = append(result.Errors, table+": field not in rectifiable whitelist: "+invalid)
			continue
		}

		if err := o.permitted(ctx, email, "UPDATE", table); err != nil {
			return nil, err
		}

		d, _ := o.schema.Lookup(table)
		oldValues, err := selectCurrentValues(ctx, o.db, table, d.IdentifierColumn, email, fieldNames(fields))
		if err != nil {
			tr := models.RectifyTableResult{Table: table, Error: err.Error()}
			result.Tables = append(result.Tables, tr)
			result.Errors = append(result.Errors, table+": "+err.Error())
			continue
		}

		tr := models.RectifyTableResult{Table: table, OldValues: oldValues, NewValues: fields}

		if !dryRun {
			if _, err := updateFields(ctx, exec, table, d.IdentifierColumn, email, fields); err != nil {
				tr.Error = err.Error()
				result.Tables = append(result.Tables, tr)
				result.Errors = append(result.Errors, table+": "+err.Error())
				continue
			}
			touchedTables = append(touchedTables, table)
			before[table] = oldValues
			after[table] = fields
		}

		result.Tables = append(result.Tables, tr)
	}

	if dryRun || len(touchedTables) == 0 {
		return result, nil
	}

	if err := o.audit.DataRectified(ctx, exec, actor, email, touchedTables, before, after, requestID); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	_ = o.events.Publish(ctx, string(models.EventDataRectified), email, result)
	return result, nil
}

// RectifyEmail implements spec.md §4.4's rectify_email specialization:
// rewrite the identifier column across every rectifiable table.
func (o *Operator) RectifyEmail(ctx context.Context, actor models.Actor, oldEmail, newEmail string, dryRun bool, requestID string) (*models.RectifyResult, error) {
	oldEmail = normalizeEmail(oldEmail)
	newEmail = normalizeEmail(newEmail)
	if oldEmail == newEmail {
		return nil, dberr.InvalidArgument("new email must differ from the current one")
	}

	rectifications := make(map[string]map[string]interface{})
	for _, table := range o.schema.Tables() {
		d, _ := o.schema.Lookup(table)
		if d.Skip || d.IdentifierColumn == "" {
			continue
		}
		whitelist, _ := o.schema.RectifiableFields(table)
		if !containsField(whitelist, d.IdentifierColumn) {
			continue
		}
		rectifications[table] = map[string]interface{}{d.IdentifierColumn: newEmail}
	}

	return o.Rectify(ctx, actor, oldEmail, rectifications, dryRun, requestID)
}

// CleanupExports implements the SPEC_FULL.md-supplemented export file
// retention sweep.
func (o *Operator) CleanupExports(ctx context.Context, actor models.Actor, olderThanDays int) (int, error) {
	removed, err := cleanupOldExports(o.exportsDir, time.Duration(olderThanDays)*24*time.Hour, time.Now().UTC())
	if err != nil {
		return 0, dberr.Internal("failed to clean up export files", err)
	}
	if removed == 0 {
		return 0, nil
	}

	tx, err := o.db.Begin(ctx)
	if err != nil {
		return removed, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := o.audit.Log(ctx, tx, models.AuditEntry{
		Action:               models.AuditActionDataDeleted,
		AffectedTables:       []string{},
		AffectedRecordsCount: removed,
		PerformedBy:          actor.PerformedBy,
		Details:              map[string]interface{}{"operation": "export_cleanup"},
	}); err != nil {
		return removed, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return removed, dberr.Internal("failed to commit transaction", err)
	}
	return removed, nil
}

func firstInvalidField(fields map[string]interface{}, whitelist []string) string {
	for f := range fields {
		if !containsField(whitelist, f) {
			return f
		}
	}
	return ""
}

func containsField(list []string, f string) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

func fieldNames(fields map[string]interface{}) []string {
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	return out
}
