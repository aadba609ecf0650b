// Package request is C7, the Request Engine: the Art. 15-20 subject-rights
// request state machine with a 30-day statutory deadline (spec.md §4.7).
// Repository grounded on
// services/user-service/internal/repository/user_repository.go; state
// machine grounded on original_source/compliance/gdpr/gdpr_requests.py.
package request

import (
	"context"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository interface {
	Create(ctx context.Context, exec dbexec.Execer, r *models.Request) error
	GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.Request, error)
	FindNonTerminal(ctx context.Context, exec dbexec.Execer, email string, reqType models.RequestType) (*models.Request, error)
	UpdateStatus(ctx context.Context, exec dbexec.Execer, id string, from []models.RequestStatus, to models.RequestStatus) (bool, error)
	Complete(ctx context.Context, exec dbexec.Execer, id string, at time.Time, fileURL string, fileSize int64) (bool, error)
	Reject(ctx context.Context, exec dbexec.Execer, id, reason string, at time.Time) (bool, error)
	ListPending(ctx context.Context, exec dbexec.Execer) ([]models.Request, error)
	ListOverdue(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.Request, error)
}

type repository struct{}

func NewRepository() Repository { return &repository{} }

const requestColumns = `id, subject_email, type, status, created_at, deadline_at, completed_at,
	processed_by, rejection_reason, result_file_url, result_file_size`

func scanRequest(row pgx.Row) (*models.Request, error) {
	var r models.Request
	var processedBy, rejectionReason, fileURL *string
	var fileSize *int64
	err := row.Scan(
		&r.ID, &r.SubjectEmail, &r.Type, &r.Status, &r.CreatedAt, &r.DeadlineAt, &r.CompletedAt,
		&processedBy, &rejectionReason, &fileURL, &fileSize,
	)
	if err != nil {
		return nil, err
	}
	if processedBy != nil {
		r.ProcessedBy = *processedBy
	}
	if rejectionReason != nil {
		r.RejectionReason = *rejectionReason
	}
	if fileURL != nil {
		r.ResultFileURL = *fileURL
	}
	if fileSize != nil {
		r.ResultFileSize = *fileSize
	}
	return &r, nil
}

func (r *repository) Create(ctx context.Context, exec dbexec.Execer, req *models.Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	query := `
		INSERT INTO gdpr_requests (id, subject_email, type, status, created_at, deadline_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)`
	_, err := exec.Exec(ctx, query, req.ID, req.SubjectEmail, req.Type, req.CreatedAt, req.DeadlineAt)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_requests WHERE id = $1`, requestColumns)
	req, err := scanRequest(exec.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// FindNonTerminal implements the duplicate-request guard of spec.md §4.7
// ("refuses if a non-terminal request of the same (email, type) exists").
func (r *repository) FindNonTerminal(ctx context.Context, exec dbexec.Execer, email string, reqType models.RequestType) (*models.Request, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM gdpr_requests
		WHERE subject_email = $1 AND type = $2 AND status IN ('PENDING', 'IN_PROGRESS')
		LIMIT 1`, requestColumns)
	req, err := scanRequest(exec.QueryRow(ctx, query, email, reqType))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find non-terminal request: %w", err)
	}
	return req, nil
}

func (r *repository) UpdateStatus(ctx context.Context, exec dbexec.Execer, id string, from []models.RequestStatus, to models.RequestStatus) (bool, error) {
	query := `UPDATE gdpr_requests SET status = $2 WHERE id = $1 AND status = ANY($3)`
	fromStrings := make([]string, len(from))
	for i, f := range from {
		fromStrings[i] = string(f)
	}
	tag, err := exec.Exec(ctx, query, id, to, fromStrings)
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) Complete(ctx context.Context, exec dbexec.Execer, id string, at time.Time, fileURL string, fileSize int64) (bool, error) {
	query := `
		UPDATE gdpr_requests
		SET status = 'COMPLETED', completed_at = $2, result_file_url = $3, result_file_size = $4
		WHERE id = $1 AND status = 'IN_PROGRESS'`
	tag, err := exec.Exec(ctx, query, id, at, nullableString(fileURL), fileSize)
	if err != nil {
		return false, fmt.Errorf("failed to complete request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) Reject(ctx context.Context, exec dbexec.Execer, id, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE gdpr_requests
		SET status = 'REJECTED', completed_at = $2, rejection_reason = $3
		WHERE id = $1 AND status IN ('PENDING', 'IN_PROGRESS')`
	tag, err := exec.Exec(ctx, query, id, at, reason)
	if err != nil {
		return false, fmt.Errorf("failed to reject request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) ListPending(ctx context.Context, exec dbexec.Execer) ([]models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_requests WHERE status = 'PENDING' ORDER BY created_at`, requestColumns)
	return r.queryList(ctx, exec, query)
}

func (r *repository) ListOverdue(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.Request, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM gdpr_requests
		WHERE status IN ('PENDING', 'IN_PROGRESS') AND deadline_at < $1
		ORDER BY deadline_at`, requestColumns)
	return r.queryList(ctx, exec, query, now)
}

func (r *repository) queryList(ctx context.Context, exec dbexec.Execer, query string, args ...interface{}) ([]models.Request, error) {
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
