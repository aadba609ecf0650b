// Package webhook is C8, the Webhook Dispatcher: subscription store, signed
// HTTP delivery with per-subscription retry, and a durable delivery log
// (spec.md §4.8). HMAC signing reuses internal/security/signer.go.
// Grounded on other_examples/446b3fbb_dublyo-mailat__...-compliance.go.go
// (HMAC+hex signing idiom) and
// yourflock-roost/server/services/billing/handlers_webhooks.go (the
// hmac.Equal verification idiom, confirmed against a second corpus
// example). Repository idiom grounded on
// services/user-service/internal/repository/user_repository.go.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error
	GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.WebhookSubscription, error)
	ListActive(ctx context.Context, exec dbexec.Execer) ([]models.WebhookSubscription, error)
	Update(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error
	Delete(ctx context.Context, exec dbexec.Execer, id string) error
	RecordAttempt(ctx context.Context, exec dbexec.Execer, id string, statusCode *int, at time.Time, success bool) error

	AppendLog(ctx context.Context, exec dbexec.Execer, entry models.WebhookLog) error
	ListLogs(ctx context.Context, exec dbexec.Execer, subscriptionID, eventType string, limit int) ([]models.WebhookLog, error)
	TrimLogs(ctx context.Context, exec dbexec.Execer, olderThan time.Time) (int64, error)
}

type repository struct{}

func NewRepository() Repository { return &repository{} }

const subscriptionColumns = `id, name, url, secret, events, is_active, headers,
	retry_count, timeout_seconds, last_triggered_at, last_status_code, failure_count`

func scanSubscription(row pgx.Row) (*models.WebhookSubscription, error) {
	var s models.WebhookSubscription
	var headersJSON []byte
	err := row.Scan(
		&s.ID, &s.Name, &s.URL, &s.Secret, pq.Array(&s.Events), &s.IsActive, &headersJSON,
		&s.RetryCount, &s.TimeoutSeconds, &s.LastTriggeredAt, &s.LastStatusCode, &s.FailureCount,
	)
	if err != nil {
		return nil, err
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &s.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode subscription headers: %w", err)
		}
	}
	return &s, nil
}

func (r *repository) Create(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	headersJSON, err := json.Marshal(s.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription headers: %w", err)
	}

	query := `
		INSERT INTO gdpr_webhook_subscriptions (
			id, name, url, secret, events, is_active, headers, retry_count, timeout_seconds, failure_count
		) VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8, 0)`
	_, err = exec.Exec(ctx, query, s.ID, s.Name, s.URL, s.Secret, pq.Array(s.Events), headersJSON, s.RetryCount, s.TimeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.WebhookSubscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_webhook_subscriptions WHERE id = $1`, subscriptionColumns)
	s, err := scanSubscription(exec.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return s, nil
}

func (r *repository) ListActive(ctx context.Context, exec dbexec.Execer) ([]models.WebhookSubscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_webhook_subscriptions WHERE is_active = true`, subscriptionColumns)
	rows, err := exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repository) Update(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error {
	headersJSON, err := json.Marshal(s.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription headers: %w", err)
	}
	query := `
		UPDATE gdpr_webhook_subscriptions
		SET name = $2, url = $3, secret = $4, events = $5, is_active = $6, headers = $7,
			retry_count = $8, timeout_seconds = $9
		WHERE id = $1`
	tag, err := exec.Exec(ctx, query, s.ID, s.Name, s.URL, s.Secret, pq.Array(s.Events), s.IsActive, headersJSON, s.RetryCount, s.TimeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, exec dbexec.Execer, id string) error {
	_, err := exec.Exec(ctx, `DELETE FROM gdpr_webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	return nil
}

func (r *repository) RecordAttempt(ctx context.Context, exec dbexec.Execer, id string, statusCode *int, at time.Time, success bool) error {
	var query string
	if success {
		query = `UPDATE gdpr_webhook_subscriptions SET last_triggered_at = $2, last_status_code = $3, failure_count = 0 WHERE id = $1`
	} else {
		query = `UPDATE gdpr_webhook_subscriptions SET last_triggered_at = $2, last_status_code = $3, failure_count = failure_count + 1 WHERE id = $1`
	}
	_, err := exec.Exec(ctx, query, id, at, statusCode)
	if err != nil {
		return fmt.Errorf("failed to record webhook attempt: %w", err)
	}
	return nil
}

func (r *repository) AppendLog(ctx context.Context, exec dbexec.Execer, entry models.WebhookLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO gdpr_webhook_logs (
			id, subscription_id, event_type, payload, attempt_number,
			response_status, response_body, success, error_message, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := exec.Exec(ctx, query,
		entry.ID, entry.SubscriptionID, entry.EventType, entry.Payload, entry.AttemptNumber,
		entry.ResponseStatus, nullableString(entry.ResponseBody), entry.Success,
		nullableString(entry.ErrorMessage), entry.DurationMS, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append webhook log: %w", err)
	}
	return nil
}

func (r *repository) ListLogs(ctx context.Context, exec dbexec.Execer, subscriptionID, eventType string, limit int) ([]models.WebhookLog, error) {
	query := `
		SELECT id, subscription_id, event_type, payload, attempt_number,
			response_status, response_body, success, error_message, duration_ms, created_at
		FROM gdpr_webhook_logs
		WHERE ($1 = '' OR subscription_id = $1) AND ($2 = '' OR event_type = $2)
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := exec.Query(ctx, query, subscriptionID, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookLog
	for rows.Next() {
		var l models.WebhookLog
		var respBody, errMsg *string
		if err := rows.Scan(&l.ID, &l.SubscriptionID, &l.EventType, &l.Payload, &l.AttemptNumber,
			&l.ResponseStatus, &respBody, &l.Success, &errMsg, &l.DurationMS, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook log: %w", err)
		}
		if respBody != nil {
			l.ResponseBody = *respBody
		}
		if errMsg != nil {
			l.ErrorMessage = *errMsg
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) TrimLogs(ctx context.Context, exec dbexec.Execer, olderThan time.Time) (int64, error) {
	tag, err := exec.Exec(ctx, `DELETE FROM gdpr_webhook_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to trim webhook logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
