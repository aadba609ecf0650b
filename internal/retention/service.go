package retention

import (
	"context"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/dberr"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"
	"gdprengine/internal/models"
	"gdprengine/internal/schema"
)

// Scheduler is C6.
type Scheduler struct {
	db     dbexec.DB
	repo   Repository
	schema *schema.Map
	audit  *audit.Logger
	events events.Publisher
}

func NewScheduler(db dbexec.DB, repo Repository, schemaMap *schema.Map, auditLogger *audit.Logger, publisher events.Publisher) *Scheduler {
	return &Scheduler{db: db, repo: repo, schema: schemaMap, audit: auditLogger, events: publisher}
}

// Policies implements spec.md §6's Retention.Policies (read-only).
func (s *Scheduler) Policies(ctx context.Context) ([]models.RetentionPolicy, error) {
	return s.repo.ListActive(ctx, s.db)
}

// CreatePolicy/UpdatePolicy/DeletePolicy implement the SPEC_FULL.md-
// supplemented retention policy CRUD (retention_manager.py), audited as
// POLICY_UPDATED per SPEC_FULL.md's note.
func (s *Scheduler) CreatePolicy(ctx context.Context, actor models.Actor, p models.RetentionPolicy) (*models.RetentionPolicy, error) {
	if _, ok := s.schema.Lookup(p.TableName); !ok {
		return nil, dberr.InvalidArgument("table is not in the schema map: " + p.TableName)
	}
	if !p.Action.Valid() {
		return nil, dberr.InvalidArgument("unknown retention action: " + string(p.Action))
	}
	if p.RetentionDays <= 0 {
		return nil, dberr.InvalidArgument("retention_days must be positive")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Create(ctx, tx, &p); err != nil {
		return nil, dberr.Internal("failed to create retention policy", err)
	}
	if err := s.audit.PolicyUpdated(ctx, tx, actor, "", []string{p.TableName}, "retention_policy_created", map[string]interface{}{
		"retention_days": p.RetentionDays, "action": p.Action,
	}); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}
	return &p, nil
}

func (s *Scheduler) UpdatePolicy(ctx context.Context, actor models.Actor, p models.RetentionPolicy) (*models.RetentionPolicy, error) {
	if !p.Action.Valid() {
		return nil, dberr.InvalidArgument("unknown retention action: " + string(p.Action))
	}
	if p.RetentionDays <= 0 {
		return nil, dberr.InvalidArgument("retention_days must be positive")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Update(ctx, tx, &p); err != nil {
		return nil, dberr.NotFound("retention policy")
	}
	if err := s.audit.PolicyUpdated(ctx, tx, actor, "", []string{p.TableName}, "retention_policy_updated", map[string]interface{}{
		"retention_days": p.RetentionDays, "action": p.Action,
	}); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}
	return &p, nil
}

func (s *Scheduler) DeletePolicy(ctx context.Context, actor models.Actor, table string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Delete(ctx, tx, table); err != nil {
		return dberr.Internal("failed to delete retention policy", err)
	}
	if err := s.audit.PolicyUpdated(ctx, tx, actor, "", []string{table}, "retention_policy_deleted", nil); err != nil {
		return dberr.Internal("failed to write audit entry", err)
	}
	return tx.Commit(ctx)
}

// Cleanup implements spec.md §4.6's sweep. When table is non-empty, only
// that policy is swept; otherwise every active policy runs.
func (s *Scheduler) Cleanup(ctx context.Context, table string, dryRun bool) (*models.CleanupResult, error) {
	policies, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, dberr.Internal("failed to list retention policies", err)
	}

	result := &models.CleanupResult{DryRun: dryRun}
	now := time.Now().UTC()

	for _, p := range policies {
		if table != "" && p.TableName != table {
			continue
		}

		if _, ok := s.schema.Lookup(p.TableName); !ok {
			msg := "table is not in the schema map: " + p.TableName
			result.Tables = append(result.Tables, models.CleanupTableResult{TableName: p.TableName, Action: p.Action, Error: msg})
			result.Errors = append(result.Errors, msg)
			continue
		}

		tr, err := s.sweepOne(ctx, p, dryRun, now)
		if err != nil {
			tr.Error = err.Error()
			result.Errors = append(result.Errors, p.TableName+": "+err.Error())
		}
		result.Tables = append(result.Tables, tr)
		result.TotalAffected += tr.Count
	}

	return result, nil
}

func (s *Scheduler) sweepOne(ctx context.Context, p models.RetentionPolicy, dryRun bool, now time.Time) (models.CleanupTableResult, error) {
	tr := models.CleanupTableResult{TableName: p.TableName, Action: p.Action}

	if dryRun {
		n, err := countExpired(ctx, s.db, p.TableName, p)
		tr.Count = n
		return tr, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return tr, err
	}
	defer tx.Rollback(ctx)

	var count int64
	desc, _ := s.schema.Lookup(p.TableName)

	switch p.Action {
	case models.RetentionActionDelete:
		count, err = deleteExpired(ctx, tx, p.TableName, p)
	case models.RetentionActionAnonymize:
		count, err = anonymizeExpired(ctx, tx, p.TableName, p, desc.PIIColumns)
	case models.RetentionActionArchive:
		count, err = archiveExpired(ctx, tx, p.TableName, p)
	default:
		err = dberr.InvalidArgument("unknown retention action: " + string(p.Action))
	}
	if err != nil {
		return tr, err
	}
	tr.Count = int(count)

	if err := s.repo.RecordRun(ctx, tx, p.TableName, now, int(count)); err != nil {
		return tr, err
	}

	if count > 0 {
		if err := s.audit.RetentionCleanup(ctx, tx, p.TableName, string(p.Action), int(count)); err != nil {
			return tr, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return tr, err
	}

	metrics.RecordRetentionRows(p.TableName, string(p.Action), int(count))
	if count > 0 {
		_ = s.events.Publish(ctx, string(models.EventComplianceRetentionRun), "", tr)
	}
	logger.GetLogger().WithField("table", p.TableName).WithField("action", p.Action).WithField("count", count).Info("retention sweep completed")
	return tr, nil
}

// Statistics implements the SPEC_FULL.md-supplemented read-only
// Retention.Statistics (retention_manager.py: get_statistics).
func (s *Scheduler) Statistics(ctx context.Context) ([]models.RetentionPolicy, error) {
	return s.repo.ListActive(ctx, s.db)
}
