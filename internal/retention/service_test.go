package retention

import (
	"context"
	"testing"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/models"
	"gdprengine/internal/schema"
	"gdprengine/internal/testutil"

	"github.com/jackc/pgx/v5"
)

// mockRepository stores policies by table name; Cleanup/sweepOne are not
// exercised here since they call raw-SQL helpers directly against
// dbexec.DB/pgx.Tx rather than through Repository (see DESIGN.md).
type mockRepository struct {
	byTable map[string]*models.RetentionPolicy
}

func newMockRepository() *mockRepository {
	return &mockRepository{byTable: make(map[string]*models.RetentionPolicy)}
}

func (m *mockRepository) ListActive(ctx context.Context, exec dbexec.Execer) ([]models.RetentionPolicy, error) {
	var out []models.RetentionPolicy
	for _, p := range m.byTable {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepository) GetByTable(ctx context.Context, exec dbexec.Execer, table string) (*models.RetentionPolicy, error) {
	p, ok := m.byTable[table]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepository) Create(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error {
	p.IsActive = true
	cp := *p
	m.byTable[p.TableName] = &cp
	return nil
}

func (m *mockRepository) Update(ctx context.Context, exec dbexec.Execer, p *models.RetentionPolicy) error {
	if _, ok := m.byTable[p.TableName]; !ok {
		return pgx.ErrNoRows
	}
	cp := *p
	m.byTable[p.TableName] = &cp
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, exec dbexec.Execer, table string) error {
	delete(m.byTable, table)
	return nil
}

func (m *mockRepository) RecordRun(ctx context.Context, exec dbexec.Execer, table string, at time.Time, count int) error {
	if p, ok := m.byTable[table]; ok {
		p.LastRunAt = &at
		p.LastRunCount = count
	}
	return nil
}

func newTestScheduler() (*Scheduler, *mockRepository, *testutil.FakeDB) {
	db := &testutil.FakeDB{}
	repo := newMockRepository()
	s := NewScheduler(db, repo, schema.New(), audit.NewLogger(), events.NewNoOpPublisher())
	return s, repo, db
}

func TestCreatePolicyRejectsUnknownTable(t *testing.T) {
	s, _, _ := newTestScheduler()

	_, err := s.CreatePolicy(context.Background(), models.Actor{}, models.RetentionPolicy{
		TableName: "no_such_table", RetentionDays: 90, Action: models.RetentionActionDelete,
	})
	if err == nil {
		t.Fatal("expected an error for a table absent from the schema map")
	}
}

func TestCreatePolicyRejectsUnknownAction(t *testing.T) {
	s, _, _ := newTestScheduler()

	_, err := s.CreatePolicy(context.Background(), models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 90, Action: models.RetentionAction("PURGE"),
	})
	if err == nil {
		t.Fatal("expected an error for an unknown retention action")
	}
}

func TestCreatePolicyRejectsNonPositiveRetentionDays(t *testing.T) {
	s, _, _ := newTestScheduler()

	_, err := s.CreatePolicy(context.Background(), models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 0, Action: models.RetentionActionDelete,
	})
	if err == nil {
		t.Fatal("expected an error for a non-positive retention_days")
	}
}

func TestCreatePolicyCommitsAndMarksActive(t *testing.T) {
	s, repo, db := newTestScheduler()

	p, err := s.CreatePolicy(context.Background(), models.Actor{PerformedBy: "dpo"}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 180, Action: models.RetentionActionDelete,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !p.IsActive {
		t.Error("expected a newly created policy to be active")
	}
	if len(db.Txs) != 1 || !db.Txs[0].Committed {
		t.Error("expected CreatePolicy to commit one transaction")
	}
	if len(db.Txs[0].Execs) != 1 {
		t.Errorf("expected exactly one audit row written inside the transaction, got %d", len(db.Txs[0].Execs))
	}
	stored, _ := repo.GetByTable(context.Background(), nil, "leads")
	if stored == nil {
		t.Fatal("expected the policy to be persisted in the repository")
	}
}

func TestUpdatePolicyReturnsNotFoundForUnknownTable(t *testing.T) {
	s, _, _ := newTestScheduler()

	_, err := s.UpdatePolicy(context.Background(), models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 90, Action: models.RetentionActionDelete,
	})
	if err == nil {
		t.Fatal("expected NotFound updating a policy that was never created")
	}
}

func TestUpdatePolicyChangesRetentionDays(t *testing.T) {
	s, repo, _ := newTestScheduler()
	ctx := context.Background()

	if _, err := s.CreatePolicy(ctx, models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 90, Action: models.RetentionActionDelete,
	}); err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	updated, err := s.UpdatePolicy(ctx, models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 365, Action: models.RetentionActionArchive, IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}
	if updated.RetentionDays != 365 {
		t.Errorf("expected retention_days to be updated to 365, got %d", updated.RetentionDays)
	}
	stored, _ := repo.GetByTable(ctx, nil, "leads")
	if stored.Action != models.RetentionActionArchive {
		t.Errorf("expected action to be updated to ARCHIVE, got %q", stored.Action)
	}
}

func TestDeletePolicyRemovesIt(t *testing.T) {
	s, repo, db := newTestScheduler()
	ctx := context.Background()

	if _, err := s.CreatePolicy(ctx, models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 90, Action: models.RetentionActionDelete,
	}); err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	if err := s.DeletePolicy(ctx, models.Actor{PerformedBy: "dpo"}, "leads"); err != nil {
		t.Fatalf("DeletePolicy failed: %v", err)
	}
	stored, _ := repo.GetByTable(ctx, nil, "leads")
	if stored != nil {
		t.Error("expected the policy to be gone after DeletePolicy")
	}
	if len(db.Txs) != 2 || !db.Txs[1].Committed { // one for Create, one for Delete
		t.Error("expected DeletePolicy to commit its own transaction")
	}
}

func TestPoliciesAndStatisticsReturnActivePolicies(t *testing.T) {
	s, _, _ := newTestScheduler()
	ctx := context.Background()

	if _, err := s.CreatePolicy(ctx, models.Actor{}, models.RetentionPolicy{
		TableName: "leads", RetentionDays: 90, Action: models.RetentionActionDelete,
	}); err != nil {
		t.Fatalf("CreatePolicy failed: %v", err)
	}

	policies, err := s.Policies(ctx)
	if err != nil {
		t.Fatalf("Policies failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 active policy, got %d", len(policies))
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if len(stats) != 1 {
		t.Errorf("expected Statistics to report 1 policy, got %d", len(stats))
	}
}
