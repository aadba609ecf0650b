package request

import (
	"context"
	"testing"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/models"
	"gdprengine/internal/testutil"
)

type mockRepository struct {
	byID map[string]*models.Request
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[string]*models.Request)}
}

func (m *mockRepository) Create(ctx context.Context, exec dbexec.Execer, r *models.Request) error {
	if r.ID == "" {
		r.ID = "request-" + r.SubjectEmail + "-" + string(r.Type)
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.Request, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepository) FindNonTerminal(ctx context.Context, exec dbexec.Execer, email string, reqType models.RequestType) (*models.Request, error) {
	for _, r := range m.byID {
		if r.SubjectEmail == email && r.Type == reqType && !r.Status.IsTerminal() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, exec dbexec.Execer, id string, from []models.RequestStatus, to models.RequestStatus) (bool, error) {
	r, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) Complete(ctx context.Context, exec dbexec.Execer, id string, at time.Time, fileURL string, fileSize int64) (bool, error) {
	r, ok := m.byID[id]
	if !ok || r.Status != models.RequestStatusInProgress {
		return false, nil
	}
	r.Status = models.RequestStatusCompleted
	r.CompletedAt = &at
	r.ResultFileURL = fileURL
	r.ResultFileSize = fileSize
	return true, nil
}

func (m *mockRepository) Reject(ctx context.Context, exec dbexec.Execer, id, reason string, at time.Time) (bool, error) {
	r, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	if r.Status != models.RequestStatusPending && r.Status != models.RequestStatusInProgress {
		return false, nil
	}
	r.Status = models.RequestStatusRejected
	r.CompletedAt = &at
	r.RejectionReason = reason
	return true, nil
}

func (m *mockRepository) ListPending(ctx context.Context, exec dbexec.Execer) ([]models.Request, error) {
	var out []models.Request
	for _, r := range m.byID {
		if r.Status == models.RequestStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRepository) ListOverdue(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.Request, error) {
	var out []models.Request
	for _, r := range m.byID {
		if (r.Status == models.RequestStatusPending || r.Status == models.RequestStatusInProgress) && r.DeadlineAt.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newTestEngine() (*Engine, *mockRepository, *testutil.FakeDB) {
	db := &testutil.FakeDB{}
	repo := newMockRepository()
	// operator is nil: every test here exercises request types that
	// dispatch() resolves without ever calling into dataops.Operator.
	eng := NewEngine(db, repo, nil, audit.NewLogger(), events.NewNoOpPublisher(), 30)
	return eng, repo, db
}

func TestCreateSetsDeadline(t *testing.T) {
	eng, _, _ := newTestEngine()

	req, err := eng.Create(context.Background(), models.Actor{PerformedBy: "api"}, "Jane@Example.com", models.RequestTypeDataRectification)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("expected status PENDING, got %q", req.Status)
	}
	if req.SubjectEmail != "jane@example.com" {
		t.Errorf("expected normalized email, got %q", req.SubjectEmail)
	}
	wantDeadline := req.CreatedAt.AddDate(0, 0, 30)
	if !req.DeadlineAt.Equal(wantDeadline) {
		t.Errorf("expected deadline 30 days after creation, got %v want %v", req.DeadlineAt, wantDeadline)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	eng, _, _ := newTestEngine()

	_, err := eng.Create(context.Background(), models.Actor{}, "jane@example.com", models.RequestType("BOGUS"))
	if err == nil {
		t.Fatal("expected an error for an unknown request type")
	}
}

func TestCreateConflictsWithNonTerminalDuplicate(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	if _, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeDataRectification); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeDataRectification)
	if err == nil {
		t.Fatal("expected a conflict creating a second non-terminal request of the same type")
	}
}

func TestProcessManualTypeStaysInProgress(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	req, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeProcessingRestriction)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := eng.Process(ctx, models.Actor{PerformedBy: "dpo"}, req.ID)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Status != string(models.RequestStatusInProgress) {
		t.Errorf("expected a PROCESSING_RESTRICTION request to stay IN_PROGRESS after processing, got %q", result.Status)
	}

	stored, _ := eng.Get(ctx, req.ID)
	if stored.Status != models.RequestStatusInProgress {
		t.Errorf("expected the stored request to remain IN_PROGRESS, got %q", stored.Status)
	}
}

func TestProcessRejectsTerminalRequest(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	req, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeDataRectification)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := eng.Reject(ctx, models.Actor{}, req.ID, "not applicable"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	if _, err := eng.Process(ctx, models.Actor{}, req.ID); err == nil {
		t.Fatal("expected Process to fail on an already-rejected request")
	}
}

func TestRejectWritesReasonAndCompletesRequest(t *testing.T) {
	eng, _, db := newTestEngine()
	ctx := context.Background()

	req, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeDataRectification)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rejected, err := eng.Reject(ctx, models.Actor{PerformedBy: "dpo"}, req.ID, "duplicate of an earlier request")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.RequestStatusRejected {
		t.Errorf("expected status REJECTED, got %q", rejected.Status)
	}
	if rejected.RejectionReason != "duplicate of an earlier request" {
		t.Errorf("expected rejection reason to be recorded, got %q", rejected.RejectionReason)
	}
	if len(db.Txs) != 2 { // one for Create, one for Reject
		t.Errorf("expected 2 transactions total (create + reject), got %d", len(db.Txs))
	}
}

func TestPendingAndOverdueEnumerations(t *testing.T) {
	eng, repo, _ := newTestEngine()
	ctx := context.Background()

	if _, err := eng.Create(ctx, models.Actor{}, "jane@example.com", models.RequestTypeDataRectification); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pending, err := eng.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}

	// Force the deadline into the past directly on the fake store, since
	// Create always assigns deadline_at = now + configured days.
	for id, r := range repo.byID {
		r.DeadlineAt = time.Now().UTC().Add(-time.Hour)
		repo.byID[id] = r
	}

	overdue, err := eng.Overdue(ctx)
	if err != nil {
		t.Fatalf("Overdue failed: %v", err)
	}
	if len(overdue) != 1 {
		t.Errorf("expected 1 overdue request, got %d", len(overdue))
	}
}
