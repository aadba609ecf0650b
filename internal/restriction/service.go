package restriction

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
)

// Manager is C5.
type Manager struct {
	db     dbexec.DB
	repo   Repository
	audit  *audit.Logger
	events events.Publisher
}

func NewManager(db dbexec.DB, repo Repository, auditLogger *audit.Logger, publisher events.Publisher) *Manager {
	return &Manager{db: db, repo: repo, audit: auditLogger, events: publisher}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestOptions carries the optional inputs to Request, defaulted per
// spec.md §4.5 ("Defaults: ops = {"all"}, tables = {"all"}").
type RequestOptions struct {
	ReasonDetails string
	Operations    []string
	Tables        []string
	ExpiresInDays *int
	RequestID     string
}

// Request implements §4.5's request operation. Fails with Conflict if an
// active restriction already exists for this subject.
func (m *Manager) Request(ctx context.Context, actor models.Actor, email string, reason models.RestrictionReason, opts RequestOptions) (*models.ProcessingRestriction, error) {
	email = normalizeEmail(email)
	if !reason.Valid() {
		return nil, dberr.InvalidArgument("unknown restriction reason: " + string(reason))
	}

	existing, err := m.repo.ActiveForEmail(ctx, m.db, email)
	if err != nil {
		return nil, dberr.Internal("failed to check existing restrictions", err)
	}
	if len(existing) > 0 {
		return nil, dberr.Conflict("an active processing restriction already exists for this subject")
	}

	ops := opts.Operations
	if len(ops) == 0 {
		ops = []string{string(models.RestrictionOpAll)}
	}
	tables := opts.Tables
	if len(tables) == 0 {
		tables = []string{string(models.RestrictionOpAll)}
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if opts.ExpiresInDays != nil && *opts.ExpiresInDays > 0 {
		t := now.AddDate(0, 0, *opts.ExpiresInDays)
		expiresAt = &t
	}

	rr := &models.ProcessingRestriction{
		SubjectEmail:         email,
		Reason:               reason,
		ReasonDetails:        opts.ReasonDetails,
		IsActive:             true,
		RestrictedOperations: ops,
		RestrictedTables:     tables,
		RequestedAt:          now,
		ExpiresAt:            expiresAt,
		RequestID:            opts.RequestID,
		IPAddress:            actor.IPAddress,
		UserAgent:            actor.UserAgent,
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := m.repo.Create(ctx, tx, rr); err != nil {
		return nil, dberr.Internal("failed to create restriction", err)
	}

	if err := m.audit.PolicyUpdated(ctx, tx, actor, email, tables, "processing_restriction_requested", map[string]interface{}{
		"restriction_id": rr.ID,
		"reason":         reason,
		"operations":     ops,
	}); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	_ = m.events.Publish(ctx, string(models.EventDataRestricted), email, rr)
	logger.WithContext(ctx).WithField("subject_email", email).WithField("restriction_id", rr.ID).Info("processing restriction requested")
	return rr, nil
}

// Lift implements §4.5's lift operation: only legal on an active
// restriction.
func (m *Manager) Lift(ctx context.Context, actor models.Actor, id, liftedBy, liftReason string) (*models.ProcessingRestriction, error) {
	rr, err := m.repo.GetByID(ctx, m.db, id)
	if err != nil {
		return nil, dberr.Internal("failed to fetch restriction", err)
	}
	if rr == nil {
		return nil, dberr.NotFound("restriction")
	}
	if !rr.IsActive {
		return nil, dberr.PreconditionFailed("restriction is already lifted")
	}

	now := time.Now().UTC()

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	ok, err := m.repo.Lift(ctx, tx, id, liftedBy, liftReason, now)
	if err != nil {
		return nil, dberr.Internal("failed to lift restriction", err)
	}
	if !ok {
		return nil, dberr.PreconditionFailed("restriction is already lifted")
	}

	if err := m.audit.PolicyUpdated(ctx, tx, actor, rr.SubjectEmail, rr.RestrictedTables, "processing_restriction_lifted", map[string]interface{}{
		"restriction_id": id,
		"lifted_by":      liftedBy,
		"lift_reason":    liftReason,
	}); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	rr.IsActive = false
	rr.LiftedAt = &now
	rr.LiftedBy = liftedBy
	rr.LiftReason = liftReason
	return rr, nil
}

// CheckResult is the output of Check.
type CheckResult struct {
	IsRestricted bool   `json:"is_restricted"`
	Detail       string `json:"detail,omitempty"`
}

// Check implements §4.5's permission predicate. C4 consults this before any
// destructive operation except an erasure originating from a DATA_ERASURE
// request, which must always be permitted.
func (m *Manager) Check(ctx context.Context, email, op, table string) (CheckResult, error) {
	email = normalizeEmail(email)
	active, err := m.repo.ActiveForEmail(ctx, m.db, email)
	if err != nil {
		return CheckResult{}, dberr.Internal("failed to check restrictions", err)
	}

	now := time.Now().UTC()
	for _, rr := range active {
		if rr.Blocks(now, op, table) {
			return CheckResult{
				IsRestricted: true,
				Detail:       "blocked by restriction " + rr.ID + " (" + string(rr.Reason) + ")",
			}, nil
		}
	}
	return CheckResult{IsRestricted: false}, nil
}

// History implements the SPEC_FULL.md-supplemented Restriction.History.
func (m *Manager) History(ctx context.Context, email string) ([]models.ProcessingRestriction, error) {
	return m.repo.HistoryForEmail(ctx, m.db, normalizeEmail(email))
}

// ExpireOld implements §4.5's scheduled sweep.
func (m *Manager) ExpireOld(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	expiring, err := m.repo.ListExpiringActive(ctx, m.db, now)
	if err != nil {
		return 0, dberr.Internal("failed to list expiring restrictions", err)
	}

	count := 0
	for _, rr := range expiring {
		if err := m.expireOne(ctx, rr); err != nil {
			logger.GetLogger().WithError(err).WithField("restriction_id", rr.ID).Error("failed to expire restriction")
			continue
		}
		count++
	}
	return count, nil
}

func (m *Manager) expireOne(ctx context.Context, rr models.ProcessingRestriction) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := m.repo.MarkExpired(ctx, tx, rr.ID); err != nil {
		return err
	}
	if err := m.audit.PolicyUpdated(ctx, tx, models.Actor{PerformedBy: "system"}, rr.SubjectEmail, rr.RestrictedTables, "processing_restriction_expired", map[string]interface{}{
		"restriction_id": rr.ID,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
