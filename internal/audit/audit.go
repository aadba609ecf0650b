// Package audit is C2, the append-only audit log. Every mutation in
// C3-C7 writes through Logger.Log (or one of its typed helpers) inside the
// same transaction as the mutation itself, per spec.md §4.2 and §8 invariant
// 2. The log is append-only by construction: this package exposes no
// update or delete statement generator for the audit table.
//
// Grounded on shared/security/audit.go (AuditLogger shape, typed-helper
// naming) and original_source/compliance/gdpr/gdpr_audit.py (one helper per
// AuditActionEnum variant).
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"
	"gdprengine/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// Log appends one AuditEntry row within exec (a pool or an in-flight
// transaction). affectedTables must be non-empty whenever count > 0 (§8
// invariant 2).
func (l *Logger) Log(ctx context.Context, exec dbexec.Execer, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.AffectedTables == nil {
		entry.AffectedTables = []string{}
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO gdpr_audit_log (
			id, action, subject_email, affected_tables, affected_records_count,
			performed_by, ip_address, user_agent, request_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = exec.Exec(ctx, query,
		entry.ID, entry.Action, nullableString(entry.SubjectEmail), pq.Array(entry.AffectedTables),
		entry.AffectedRecordsCount, entry.PerformedBy, nullableString(entry.IPAddress),
		nullableString(entry.UserAgent), nullableString(entry.RequestID), detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	metrics.RecordAuditEntry(string(entry.Action))
	logger.WithContext(ctx).WithField("action", entry.Action).WithField("subject_email", entry.SubjectEmail).Debug("audit entry written")
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// --- Typed helpers, one per domain action, pre-filling affected_tables and
// details the way gdpr_audit.py's log_* helpers do. ---

func (l *Logger) ConsentGranted(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, consentType string, expiresAt *time.Time) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionConsentGranted,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_consents"},
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            actor.RequestID,
		Details: map[string]interface{}{
			"consent_type": consentType,
			"expires_at":   expiresAt,
		},
	})
}

func (l *Logger) ConsentWithdrawn(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, consentType string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionConsentWithdrawn,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_consents"},
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            actor.RequestID,
		Details:              map[string]interface{}{"consent_type": consentType},
	})
}

func (l *Logger) ConsentExpired(ctx context.Context, exec dbexec.Execer, email string, consentType string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionConsentExpired,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_consents"},
		AffectedRecordsCount: 1,
		PerformedBy:          "system",
		Details:              map[string]interface{}{"consent_type": consentType},
	})
}

func (l *Logger) DataExported(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, tables []string, recordCount int, fileURL string, requestID string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionDataExported,
		SubjectEmail:         email,
		AffectedTables:       tables,
		AffectedRecordsCount: recordCount,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            requestID,
		Details:              map[string]interface{}{"file_url": fileURL},
	})
}

func (l *Logger) DataDeleted(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, tables []string, recordCount int, requestID string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionDataDeleted,
		SubjectEmail:         email,
		AffectedTables:       tables,
		AffectedRecordsCount: recordCount,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            requestID,
		Details:              map[string]interface{}{"operation": "erasure"},
	})
}

func (l *Logger) DataAnonymized(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, tables []string, recordCount int, requestID string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionDataAnonymized,
		SubjectEmail:         email,
		AffectedTables:       tables,
		AffectedRecordsCount: recordCount,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            requestID,
		Details:              map[string]interface{}{"operation": "erasure"},
	})
}

// DataRectified records a rectification. Per spec.md §4.4 the source tags
// rectification as DATA_ACCESSED, and this helper keeps that tag; the row's
// details carry operation "rectification" plus the old and new values.
func (l *Logger) DataRectified(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, tables []string, before, after map[string]interface{}, requestID string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionDataAccessed,
		SubjectEmail:         email,
		AffectedTables:       tables,
		AffectedRecordsCount: len(tables),
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            requestID,
		Details: map[string]interface{}{
			"operation":  "rectification",
			"old_values": before,
			"new_values": after,
		},
	})
}

func (l *Logger) RequestCreated(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, requestID string, requestType string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionRequestCreated,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_requests"},
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            requestID,
		Details:              map[string]interface{}{"request_type": requestType},
	})
}

func (l *Logger) RequestCompleted(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, requestID string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionRequestCompleted,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_requests"},
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		RequestID:            requestID,
	})
}

// RequestRejected is always written unconditionally, resolving open
// question #3.
func (l *Logger) RequestRejected(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, requestID string, reason string) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionRequestRejected,
		SubjectEmail:         email,
		AffectedTables:       []string{"gdpr_requests"},
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		RequestID:            requestID,
		Details:              map[string]interface{}{"rejection_reason": reason},
	})
}

func (l *Logger) RetentionCleanup(ctx context.Context, exec dbexec.Execer, table string, action string, count int) error {
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionRetentionCleanup,
		AffectedTables:       []string{table},
		AffectedRecordsCount: count,
		PerformedBy:          "system",
		Details:              map[string]interface{}{"retention_action": action},
	})
}

func (l *Logger) PolicyUpdated(ctx context.Context, exec dbexec.Execer, actor models.Actor, email string, tables []string, operation string, details map[string]interface{}) error {
	merged := map[string]interface{}{"operation": operation}
	for k, v := range details {
		merged[k] = v
	}
	return l.Log(ctx, exec, models.AuditEntry{
		Action:               models.AuditActionPolicyUpdated,
		SubjectEmail:         email,
		AffectedTables:       tables,
		AffectedRecordsCount: 1,
		PerformedBy:          actor.PerformedBy,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
		RequestID:            actor.RequestID,
		Details:              merged,
	})
}
