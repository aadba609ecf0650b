package retention

import (
	"context"
	"fmt"
	"strings"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/jackc/pgx/v5"
)

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// whereFragment builds spec.md §6's stable retention WHERE fragment:
// `created_at < now() - retention_days * interval '1 day'` plus an optional
// `AND <cond_col> = <cond_value>`.
func whereFragment(p models.RetentionPolicy) (string, []interface{}) {
	clause := fmt.Sprintf(`created_at < now() - $1 * interval '1 day'`)
	args := []interface{}{p.RetentionDays}
	if p.ConditionColumn != "" {
		clause += fmt.Sprintf(` AND %s = $2`, quoteIdent(p.ConditionColumn))
		args = append(args, p.ConditionValue)
	}
	return clause, args
}

func countExpired(ctx context.Context, exec dbexec.Execer, table string, p models.RetentionPolicy) (int, error) {
	where, args := whereFragment(p)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, quoteIdent(table), where)
	var n int
	if err := exec.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count expired rows in %s: %w", table, err)
	}
	return n, nil
}

func deleteExpired(ctx context.Context, exec dbexec.Execer, table string, p models.RetentionPolicy) (int64, error) {
	where, args := whereFragment(p)
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, quoteIdent(table), where)
	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rows from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// anonymizeExpired sets every declared PII column to NULL on rows matching
// the retention window. No-op (returns 0) if the table descriptor declares
// no PII columns, per spec.md §4.6.
func anonymizeExpired(ctx context.Context, exec dbexec.Execer, table string, p models.RetentionPolicy, piiColumns []string) (int64, error) {
	if len(piiColumns) == 0 {
		return 0, nil
	}
	where, args := whereFragment(p)

	setParts := make([]string, len(piiColumns))
	for i, c := range piiColumns {
		setParts[i] = fmt.Sprintf("%s = NULL", quoteIdent(c))
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, quoteIdent(table), strings.Join(setParts, ", "), where)
	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize expired rows in %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// ensureArchiveTable implements the SPEC_FULL.md-supplemented archive
// bootstrap (retention_manager.py: _ensure_archive_table), concretized into
// a one-time `CREATE TABLE IF NOT EXISTS <name>_archive (LIKE <name>
// INCLUDING ALL)` plus an archived_at column, under an advisory lock so
// concurrent schedulers don't race the DDL (spec.md §5).
func ensureArchiveTable(ctx context.Context, exec dbexec.Execer, table string) (string, error) {
	archiveTable := table + "_archive"

	lockKey := fmt.Sprintf("retention:archive:%s", table)
	if _, err := exec.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return "", fmt.Errorf("failed to acquire archive DDL lock for %s: %w", table, err)
	}

	createQuery := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)`,
		quoteIdent(archiveTable), quoteIdent(table),
	)
	if _, err := exec.Exec(ctx, createQuery); err != nil {
		return "", fmt.Errorf("failed to create archive table %s: %w", archiveTable, err)
	}

	alterQuery := fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN IF NOT EXISTS archived_at TIMESTAMPTZ`,
		quoteIdent(archiveTable),
	)
	if _, err := exec.Exec(ctx, alterQuery); err != nil {
		return "", fmt.Errorf("failed to alter archive table %s: %w", archiveTable, err)
	}

	return archiveTable, nil
}

// archiveExpired copies matching rows into the archive table (stamping
// archived_at) then deletes them from source, per spec.md §4.6's ARCHIVE
// action.
func archiveExpired(ctx context.Context, exec dbexec.Execer, table string, p models.RetentionPolicy) (int64, error) {
	archiveTable, err := ensureArchiveTable(ctx, exec, table)
	if err != nil {
		return 0, err
	}

	where, args := whereFragment(p)

	insertQuery := fmt.Sprintf(
		`INSERT INTO %s SELECT *, now() AS archived_at FROM %s WHERE %s`,
		quoteIdent(archiveTable), quoteIdent(table), where,
	)
	tag, err := exec.Exec(ctx, insertQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to copy expired rows from %s to %s: %w", table, archiveTable, err)
	}
	copied := tag.RowsAffected()

	if copied == 0 {
		return 0, nil
	}

	if _, err := deleteExpired(ctx, exec, table, p); err != nil {
		return 0, fmt.Errorf("failed to remove archived rows from %s: %w", table, err)
	}

	return copied, nil
}
