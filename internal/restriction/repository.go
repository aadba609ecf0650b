// Package restriction is C5, the Restriction Manager: Art. 18 processing
// holds that C4 must consult before any destructive or exporting operation,
// except an erasure originating from a DATA_ERASURE request (spec.md §4.5).
//
// Repository grounded on services/user-service/internal/repository/user_repository.go's
// raw-pgx idiom; business rules grounded on
// original_source/compliance/gdpr/processing_restriction.py.
package restriction

import (
	"context"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, exec dbexec.Execer, r *models.ProcessingRestriction) error
	GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.ProcessingRestriction, error)
	ActiveForEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.ProcessingRestriction, error)
	HistoryForEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.ProcessingRestriction, error)
	Lift(ctx context.Context, exec dbexec.Execer, id, liftedBy, liftReason string, at time.Time) (bool, error)
	ListExpiringActive(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.ProcessingRestriction, error)
	MarkExpired(ctx context.Context, exec dbexec.Execer, id string) error
}

type repository struct{}

func NewRepository() Repository { return &repository{} }

const restrictionColumns = `id, subject_email, reason, reason_details, is_active,
	restricted_operations, restricted_tables, requested_at, expires_at,
	lifted_at, lifted_by, lift_reason, request_id, ip_address, user_agent`

func scanRestriction(row pgx.Row) (*models.ProcessingRestriction, error) {
	var r models.ProcessingRestriction
	var details, liftedBy, liftReason, requestID, ip, ua *string
	err := row.Scan(
		&r.ID, &r.SubjectEmail, &r.Reason, &details, &r.IsActive,
		pq.Array(&r.RestrictedOperations), pq.Array(&r.RestrictedTables),
		&r.RequestedAt, &r.ExpiresAt, &r.LiftedAt, &liftedBy, &liftReason, &requestID, &ip, &ua,
	)
	if err != nil {
		return nil, err
	}
	if details != nil {
		r.ReasonDetails = *details
	}
	if liftedBy != nil {
		r.LiftedBy = *liftedBy
	}
	if liftReason != nil {
		r.LiftReason = *liftReason
	}
	if requestID != nil {
		r.RequestID = *requestID
	}
	if ip != nil {
		r.IPAddress = *ip
	}
	if ua != nil {
		r.UserAgent = *ua
	}
	return &r, nil
}

func (r *repository) Create(ctx context.Context, exec dbexec.Execer, rr *models.ProcessingRestriction) error {
	if rr.ID == "" {
		rr.ID = uuid.New().String()
	}
	query := `
		INSERT INTO gdpr_processing_restrictions (
			id, subject_email, reason, reason_details, is_active,
			restricted_operations, restricted_tables, requested_at, expires_at, request_id, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, true, $5, $6, $7, $8, $9, $10, $11)`

	_, err := exec.Exec(ctx, query,
		rr.ID, rr.SubjectEmail, rr.Reason, nullable(rr.ReasonDetails),
		pq.Array(rr.RestrictedOperations), pq.Array(rr.RestrictedTables),
		rr.RequestedAt, rr.ExpiresAt, nullable(rr.RequestID), nullable(rr.IPAddress), nullable(rr.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to create restriction: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.ProcessingRestriction, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_processing_restrictions WHERE id = $1`, restrictionColumns)
	rr, err := scanRestriction(exec.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get restriction: %w", err)
	}
	return rr, nil
}

func (r *repository) ActiveForEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.ProcessingRestriction, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_processing_restrictions WHERE subject_email = $1 AND is_active = true`, restrictionColumns)
	return r.queryList(ctx, exec, query, email)
}

func (r *repository) HistoryForEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.ProcessingRestriction, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_processing_restrictions WHERE subject_email = $1 ORDER BY requested_at DESC`, restrictionColumns)
	return r.queryList(ctx, exec, query, email)
}

func (r *repository) ListExpiringActive(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.ProcessingRestriction, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_processing_restrictions WHERE is_active = true AND expires_at IS NOT NULL AND expires_at < $1`, restrictionColumns)
	return r.queryList(ctx, exec, query, now)
}

func (r *repository) queryList(ctx context.Context, exec dbexec.Execer, query string, args ...interface{}) ([]models.ProcessingRestriction, error) {
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list restrictions: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessingRestriction
	for rows.Next() {
		rr, err := scanRestriction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restriction: %w", err)
		}
		out = append(out, *rr)
	}
	return out, rows.Err()
}

func (r *repository) Lift(ctx context.Context, exec dbexec.Execer, id, liftedBy, liftReason string, at time.Time) (bool, error) {
	query := `
		UPDATE gdpr_processing_restrictions
		SET is_active = false, lifted_at = $2, lifted_by = $3, lift_reason = $4
		WHERE id = $1 AND is_active = true`
	tag, err := exec.Exec(ctx, query, id, at, liftedBy, nullable(liftReason))
	if err != nil {
		return false, fmt.Errorf("failed to lift restriction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, exec dbexec.Execer, id string) error {
	_, err := exec.Exec(ctx, `UPDATE gdpr_processing_restrictions SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("failed to mark restriction expired: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
