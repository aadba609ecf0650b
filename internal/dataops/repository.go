// Package dataops is C4, the Data Operator: export, erasure, and
// rectification over the tables declared in the schema map (spec.md §4.4).
// Unlike the other repositories in this module, the SQL here is
// schema-driven: table and column identifiers vary at runtime, sourced
// exclusively from the closed, compiled-in internal/schema.Map (never from
// caller input), and are identifier-quoted with pgx.Identifier per spec.md
// §9 before being interpolated into a statement. Data values always travel
// through parameter binding.
//
// Grounded on original_source/compliance/gdpr/data_exporter.py,
// data_eraser.py, data_rectifier.py for the per-table operation sequencing;
// SQL idiom grounded on
// services/user-service/internal/repository/user_repository.go's dynamic
// SET-clause builder.
package dataops

import (
	"context"
	"fmt"
	"strings"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/jackc/pgx/v5"
)

// quoteIdent identifier-quotes a single SQL identifier.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// row is a generic column->value row read from an arbitrary PII table.
type row map[string]interface{}

// selectByIdentifier runs `SELECT <cols> FROM <table> WHERE lower(<id col>) = lower($1)`
// and returns every matching row as a column->value map, preserving column order
// via the returned slice of keys to keep export output deterministic.
func selectByIdentifier(ctx context.Context, exec dbexec.Execer, table string, columns []string, identifierColumn, email string) ([]row, []string, error) {
	projection := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
		}
		projection = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lower(%s) = lower($1)`,
		projection, quoteIdent(table), quoteIdent(identifierColumn))

	rows, err := exec.Query(ctx, query, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}

	var out []row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row from %s: %w", table, err)
		}
		r := make(row, len(names))
		for i, n := range names {
			r[n] = vals[i]
		}
		out = append(out, r)
	}
	return out, names, rows.Err()
}

// selectByAuthorLike runs the export-side counterpart of selectByIdentifier
// for author-linked tables (data_exporter.py's `elif author_column:`
// branch): `SELECT <cols> FROM <table> WHERE <author col> ILIKE $1`.
func selectByAuthorLike(ctx context.Context, exec dbexec.Execer, table string, columns []string, authorColumn, localPart string) ([]row, []string, error) {
	projection := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
		}
		projection = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ILIKE $1`,
		projection, quoteIdent(table), quoteIdent(authorColumn))

	rows, err := exec.Query(ctx, query, "%"+localPart+"%")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select from %s by author: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}

	var out []row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row from %s: %w", table, err)
		}
		r := make(row, len(names))
		for i, n := range names {
			r[n] = vals[i]
		}
		out = append(out, r)
	}
	return out, names, rows.Err()
}

// countByIdentifier counts rows matching the identifier predicate, used for
// the verification count that §4.4's "numeric semantics" requires to match
// the driver rowcount from the same transaction.
func countByIdentifier(ctx context.Context, exec dbexec.Execer, table, identifierColumn, email string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE lower(%s) = lower($1)`, quoteIdent(table), quoteIdent(identifierColumn))
	var n int
	if err := exec.QueryRow(ctx, query, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n, nil
}

// countByAuthorLike counts rows matching the author-name LIKE predicate
// (the reviews author-name anonymization path of §4.4).
func countByAuthorLike(ctx context.Context, exec dbexec.Execer, table, authorColumn, localPart string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s ILIKE $1`, quoteIdent(table), quoteIdent(authorColumn))
	var n int
	if err := exec.QueryRow(ctx, query, "%"+localPart+"%").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s by author: %w", table, err)
	}
	return n, nil
}

// deleteByIdentifier issues the erasure DELETE for a deletable descriptor.
func deleteByIdentifier(ctx context.Context, exec dbexec.Execer, table, identifierColumn, email string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE lower(%s) = lower($1)`, quoteIdent(table), quoteIdent(identifierColumn))
	tag, err := exec.Exec(ctx, query, email)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// anonymizeSetClause builds the SET clause and bound args for an
// anonymize-in-place update: AnonymizeTo literals, plus the identifier
// column rewritten to AnonEmail(email) if it is itself a PII column.
func anonymizeSetClause(d models.TableDescriptor, anonEmail string) (string, []interface{}, []string) {
	var setParts []string
	var args []interface{}
	var touched []string
	argN := 1

	isPII := func(col string) bool {
		for _, c := range d.PIIColumns {
			if c == col {
				return true
			}
		}
		return false
	}

	for col, val := range d.AnonymizeTo {
		if val == nil {
			setParts = append(setParts, fmt.Sprintf("%s = NULL", quoteIdent(col)))
		} else {
			setParts = append(setParts, fmt.Sprintf("%s = $%d", quoteIdent(col), argN))
			args = append(args, val)
			argN++
		}
		touched = append(touched, col)
	}

	if d.IdentifierColumn != "" && isPII(d.IdentifierColumn) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", quoteIdent(d.IdentifierColumn), argN))
		args = append(args, anonEmail)
		touched = append(touched, d.IdentifierColumn)
		argN++
	}

	return strings.Join(setParts, ", "), args, touched
}

func anonymizeByIdentifier(ctx context.Context, exec dbexec.Execer, d models.TableDescriptor, email, anonEmail string) (int64, []string, error) {
	setClause, args, touched := anonymizeSetClause(d, anonEmail)
	if setClause == "" {
		return 0, nil, nil
	}
	args = append(args, email)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE lower(%s) = lower($%d)`,
		quoteIdent(d.Table), setClause, quoteIdent(d.IdentifierColumn), len(args))

	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to anonymize %s: %w", d.Table, err)
	}
	return tag.RowsAffected(), touched, nil
}

func anonymizeByAuthorLike(ctx context.Context, exec dbexec.Execer, d models.TableDescriptor, localPart string) (int64, []string, error) {
	setClause, args, touched := anonymizeSetClause(d, "")
	if setClause == "" {
		return 0, nil, nil
	}
	args = append(args, "%"+localPart+"%")
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s ILIKE $%d`,
		quoteIdent(d.Table), setClause, quoteIdent(d.AuthorColumn), len(args))

	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to anonymize %s by author: %w", d.Table, err)
	}
	return tag.RowsAffected(), touched, nil
}

// updateFields issues a single rectification UPDATE for one table.
func updateFields(ctx context.Context, exec dbexec.Execer, table, identifierColumn, email string, fields map[string]interface{}) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	var setParts []string
	var args []interface{}
	argN := 1
	for col, val := range fields {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", quoteIdent(col), argN))
		args = append(args, val)
		argN++
	}
	args = append(args, email)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE lower(%s) = lower($%d)`,
		quoteIdent(table), strings.Join(setParts, ", "), quoteIdent(identifierColumn), len(args))

	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to rectify %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// selectCurrentValues reads the current value of a set of columns for the
// single matching row, used by Rectify to populate old_values.
func selectCurrentValues(ctx context.Context, exec dbexec.Execer, table, identifierColumn, email string, fields []string) (map[string]interface{}, error) {
	if len(fields) == 0 {
		return map[string]interface{}{}, nil
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteIdent(f)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lower(%s) = lower($1) LIMIT 1`,
		strings.Join(quoted, ", "), quoteIdent(table), quoteIdent(identifierColumn))

	dest := make([]interface{}, len(fields))
	ptrs := make([]interface{}, len(fields))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	err := exec.QueryRow(ctx, query, email).Scan(ptrs...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to read current values from %s: %w", table, err)
	}

	out := make(map[string]interface{}, len(fields))
	for i, f := range fields {
		out[f] = dest[i]
	}
	return out, nil
}
