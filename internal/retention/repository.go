// Package retention is C6, the Retention Scheduler: policy-driven periodic
// delete/anonymize/archive sweeps over the schema map's tables (spec.md
// §4.6). Grounded on original_source/compliance/gdpr/retention_manager.py
// for the per-policy sweep sequencing and archive-table bootstrap;
// repository idiom grounded on
// services/user-service/internal/repository/user_repository.go.
package retention

import (
	"context"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	ListActive(ctx context.Context, exec dbexec.Execer) ([]models.RetentionPolicy, error)
	GetByTable(ctx context.Context, exec dbexec.Execer, table string) (*models.RetentionPolicy, error)
	Create(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error
	Update(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error
	Delete(ctx context.Context, exec dbexec.Execer, table string) error
	RecordRun(ctx context.Context, exec dbexec.Execer, table string, at time.Time, count int) error
}

type repository struct{}

func NewRepository() Repository { return &repository{} }

const policyColumns = `table_name, retention_days, action, condition_column, condition_value,
	is_active, last_run_at, last_run_count`

func scanPolicy(row pgx.Row) (*models.RetentionPolicy, error) {
	var p models.RetentionPolicy
	var condCol, condVal *string
	err := row.Scan(&p.TableName, &p.RetentionDays, &p.Action, &condCol, &condVal, &p.IsActive, &p.LastRunAt, &p.LastRunCount)
	if err != nil {
		return nil, err
	}
	if condCol != nil {
		p.ConditionColumn = *condCol
	}
	if condVal != nil {
		p.ConditionValue = *condVal
	}
	return &p, nil
}

func (r *repository) ListActive(ctx context.Context, exec dbexec.Execer) ([]models.RetentionPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_retention_policies WHERE is_active = true ORDER BY table_name`, policyColumns)
	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list retention policies: %w", err)
	}
	defer rows.Close()

	var out []models.RetentionPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retention policy: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) GetByTable(ctx context.Context, exec dbexec.Execer, table string) (*models.RetentionPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_retention_policies WHERE table_name = $1`, policyColumns)
	p, err := scanPolicy(exec.QueryRow(ctx, query, table))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error {
	query := `
		INSERT INTO gdpr_retention_policies (table_name, retention_days, action, condition_column, condition_value, is_active, last_run_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)`
	_, err := exec.Exec(ctx, query, p.TableName, p.RetentionDays, p.Action, nullable(p.ConditionColumn), nullable(p.ConditionValue), p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create retention policy: %w", err)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error {
	query := `
		UPDATE gdpr_retention_policies
		SET retention_days = $2, action = $3, condition_column = $4, condition_value = $5, is_active = $6
		WHERE table_name = $1`
	tag, err := exec.Exec(ctx, query, p.TableName, p.RetentionDays, p.Action, nullable(p.ConditionColumn), nullable(p.ConditionValue), p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update retention policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, exec dbexec.Execer, table string) error {
	_, err := exec.Exec(ctx, `DELETE FROM gdpr_retention_policies WHERE table_name = $1`, table)
	if err != nil {
		return fmt.Errorf("failed to delete retention policy: %w", err)
	}
	return nil
}

func (r *repository) RecordRun(ctx context.Context, exec dbexec.Execer, table string, at time.Time, count int) error {
	_, err := exec.Exec(ctx, `UPDATE gdpr_retention_policies SET last_run_at = $2, last_run_count = $3 WHERE table_name = $1`, table, at, count)
	if err != nil {
		return fmt.Errorf("failed to record retention run: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
