package request

import (
	"context"
	"strings"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/dataops"
	"gdprengine/internal/dberr"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"
	"gdprengine/internal/models"
)

// Engine is C7. It orchestrates C4 (Export/Erase) directly; rectification
// and restriction requests stay IN_PROGRESS and are closed by their own
// dedicated endpoints, per spec.md §4.7 and open question #4.
type Engine struct {
	db       dbexec.DB
	repo     Repository
	operator *dataops.Operator
	audit    *audit.Logger
	events   events.Publisher
	deadlineDays int
}

func NewEngine(db dbexec.DB, repo Repository, operator *dataops.Operator, auditLogger *audit.Logger, publisher events.Publisher, deadlineDays int) *Engine {
	return &Engine{db: db, repo: repo, operator: operator, audit: auditLogger, events: publisher, deadlineDays: deadlineDays}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create implements spec.md §4.7's create operation.
func (e *Engine) Create(ctx context.Context, actor models.Actor, email string, reqType models.RequestType) (*models.Request, error) {
	email = normalizeEmail(email)
	if !reqType.Valid() {
		return nil, dberr.InvalidArgument("unknown request type: " + string(reqType))
	}

	existing, err := e.repo.FindNonTerminal(ctx, e.db, email, reqType)
	if err != nil {
		return nil, dberr.Internal("failed to check for duplicate request", err)
	}
	if existing != nil {
		return nil, dberr.Conflict("a non-terminal request of this type already exists for this subject")
	}

	now := time.Now().UTC()
	req := &models.Request{
		SubjectEmail: email,
		Type:         reqType,
		Status:       models.RequestStatusPending,
		CreatedAt:    now,
		DeadlineAt:   now.AddDate(0, 0, e.deadlineDays),
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := e.repo.Create(ctx, tx, req); err != nil {
		return nil, dberr.Internal("failed to create request", err)
	}
	if err := e.audit.RequestCreated(ctx, tx, actor, email, req.ID, string(reqType)); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	_ = e.events.Publish(ctx, string(models.EventRequestCreated), email, req)
	logger.WithContext(ctx).WithField("subject_email", email).WithField("request_id", req.ID).WithField("type", reqType).Info("request created")
	return req, nil
}

// Get implements spec.md §6's Request.Get.
func (e *Engine) Get(ctx context.Context, id string) (*models.Request, error) {
	req, err := e.repo.GetByID(ctx, e.db, id)
	if err != nil {
		return nil, dberr.Internal("failed to fetch request", err)
	}
	if req == nil {
		return nil, dberr.NotFound("request")
	}
	return req, nil
}

// ProcessResult is returned by Process.
type ProcessResult struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Process implements spec.md §4.7's process operation: only legal from
// PENDING/IN_PROGRESS. On success the request completes; on exception it
// rolls back to PENDING with no success audit row, so the caller can retry.
func (e *Engine) Process(ctx context.Context, actor models.Actor, id string) (*ProcessResult, error) {
	req, err := e.repo.GetByID(ctx, e.db, id)
	if err != nil {
		return nil, dberr.Internal("failed to fetch request", err)
	}
	if req == nil {
		return nil, dberr.NotFound("request")
	}
	if req.Status != models.RequestStatusPending && req.Status != models.RequestStatusInProgress {
		return nil, dberr.PreconditionFailed("request is not in a processable state")
	}

	if req.Status == models.RequestStatusPending {
		ok, err := e.repo.UpdateStatus(ctx, e.db, id, []models.RequestStatus{models.RequestStatusPending}, models.RequestStatusInProgress)
		if err != nil {
			return nil, dberr.Internal("failed to mark request in progress", err)
		}
		if !ok {
			return nil, dberr.PreconditionFailed("request is not in a processable state")
		}
		_ = e.events.Publish(ctx, string(models.EventRequestProcessing), req.SubjectEmail, req)
	}

	actor.RequestID = id
	result, opErr := e.dispatch(ctx, actor, req)
	if opErr != nil {
		// Roll back to PENDING so the next call can retry, per §4.7/§7.
		_, _ = e.repo.UpdateStatus(ctx, e.db, id, []models.RequestStatus{models.RequestStatusInProgress}, models.RequestStatusPending)
		metrics.RecordRequestProcessed(string(req.Type), "failed")
		logger.WithContext(ctx).WithError(opErr).WithField("request_id", id).Error("request processing failed")
		return &ProcessResult{Status: string(models.RequestStatusPending), Error: opErr.Error()}, nil
	}

	switch req.Type {
	case models.RequestTypeDataRectification, models.RequestTypeProcessingRestriction:
		// Stays IN_PROGRESS indefinitely until closed by the dedicated
		// rectify/restrict endpoint or reject(); open question #4.
		metrics.RecordRequestProcessed(string(req.Type), "manual_processing_required")
		return &ProcessResult{Status: string(models.RequestStatusInProgress), Result: result}, nil
	}

	now := time.Now().UTC()
	var fileURL string
	var fileSize int64
	if export, ok := result.(*models.ExportResult); ok {
		fileURL = export.FilePath
		fileSize = export.FileSize
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	ok, err := e.repo.Complete(ctx, tx, id, now, fileURL, fileSize)
	if err != nil {
		return nil, dberr.Internal("failed to complete request", err)
	}
	if !ok {
		return nil, dberr.Internal("request was not in progress at completion time", nil)
	}
	if err := e.audit.RequestCompleted(ctx, tx, actor, req.SubjectEmail, id); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	metrics.RecordRequestProcessed(string(req.Type), "completed")
	_ = e.events.Publish(ctx, string(models.EventRequestCompleted), req.SubjectEmail, map[string]interface{}{
		"request_id": id, "type": req.Type, "result": result,
	})
	return &ProcessResult{Status: string(models.RequestStatusCompleted), Result: result}, nil
}

func (e *Engine) dispatch(ctx context.Context, actor models.Actor, req *models.Request) (interface{}, error) {
	switch req.Type {
	case models.RequestTypeDataExport, models.RequestTypeDataAccess, models.RequestTypeDataPortability:
		return e.operator.Export(ctx, actor, req.SubjectEmail, "json", req.ID)
	case models.RequestTypeDataErasure:
		return e.operator.Erase(ctx, actor, req.SubjectEmail, false, true, req.ID)
	case models.RequestTypeDataRectification, models.RequestTypeProcessingRestriction:
		return map[string]string{"status": "manual_processing_required"}, nil
	default:
		return nil, dberr.InvalidArgument("unknown request type: " + string(req.Type))
	}
}

// Reject implements spec.md §4.7's reject operation. REQUEST_REJECTED is
// now written unconditionally on every reject path, resolving open
// question #3.
func (e *Engine) Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.Request, error) {
	req, err := e.repo.GetByID(ctx, e.db, id)
	if err != nil {
		return nil, dberr.Internal("failed to fetch request", err)
	}
	if req == nil {
		return nil, dberr.NotFound("request")
	}
	if req.Status != models.RequestStatusPending && req.Status != models.RequestStatusInProgress {
		return nil, dberr.PreconditionFailed("request is not in a rejectable state")
	}

	now := time.Now().UTC()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	ok, err := e.repo.Reject(ctx, tx, id, reason, now)
	if err != nil {
		return nil, dberr.Internal("failed to reject request", err)
	}
	if !ok {
		return nil, dberr.PreconditionFailed("request is not in a rejectable state")
	}
	if err := e.audit.RequestRejected(ctx, tx, actor, req.SubjectEmail, id, reason); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	req.Status = models.RequestStatusRejected
	req.CompletedAt = &now
	req.RejectionReason = reason

	_ = e.events.Publish(ctx, string(models.EventRequestRejected), req.SubjectEmail, req)
	return req, nil
}

// Pending implements spec.md §6's Request.Pending.
func (e *Engine) Pending(ctx context.Context) ([]models.Request, error) {
	reqs, err := e.repo.ListPending(ctx, e.db)
	if err != nil {
		return nil, dberr.Internal("failed to list pending requests", err)
	}
	return reqs, nil
}

// Overdue implements spec.md §4.7's overdue() enumeration.
func (e *Engine) Overdue(ctx context.Context) ([]models.Request, error) {
	reqs, err := e.repo.ListOverdue(ctx, e.db, time.Now().UTC())
	if err != nil {
		return nil, dberr.Internal("failed to list overdue requests", err)
	}
	return reqs, nil
}
