package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"
	"gdprengine/internal/security"
	"gdprengine/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is a testify-style mock, in the teacher's MockActivityRepository
// idiom (internal/testutils/mocks.go, *_service_test.go), but hand-rolled
// against a map store since every test here only ever runs one subscription
// at a time and a map keeps the fan-out logic trivial to reason about.
type mockRepository struct {
	mu    sync.Mutex
	subs  map[string]*models.WebhookSubscription
	logs  []models.WebhookLog
}

func newMockRepository() *mockRepository {
	return &mockRepository{subs: make(map[string]*models.WebhookSubscription)}
}

func (m *mockRepository) Create(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = "sub-" + s.Name
	}
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, exec dbexec.Execer, id string) (*models.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepository) ListActive(ctx context.Context, exec dbexec.Execer) ([]models.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WebhookSubscription
	for _, s := range m.subs {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockRepository) Update(ctx context.Context, exec dbexec.Execer, s *models.WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, exec dbexec.Execer, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

func (m *mockRepository) RecordAttempt(ctx context.Context, exec dbexec.Execer, id string, statusCode *int, at time.Time, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil
	}
	s.LastTriggeredAt = &at
	s.LastStatusCode = statusCode
	if success {
		s.FailureCount = 0
	} else {
		s.FailureCount++
	}
	return nil
}

func (m *mockRepository) AppendLog(ctx context.Context, exec dbexec.Execer, entry models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *mockRepository) ListLogs(ctx context.Context, exec dbexec.Execer, subscriptionID, eventType string, limit int) ([]models.WebhookLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WebhookLog
	for _, l := range m.logs {
		if (subscriptionID == "" || l.SubscriptionID == subscriptionID) && (eventType == "" || l.EventType == eventType) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockRepository) TrimLogs(ctx context.Context, exec dbexec.Execer, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.WebhookLog
	var trimmed int64
	for _, l := range m.logs {
		if l.CreatedAt.Before(olderThan) {
			trimmed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return trimmed, nil
}

func newTestDispatcher() (*Dispatcher, *mockRepository) {
	repo := newMockRepository()
	d := NewDispatcher(&testutil.FakeDB{}, repo)
	return d, repo
}

func TestSubscribeDefaultsEventsAndRetries(t *testing.T) {
	d, _ := newTestDispatcher()

	sub, err := d.Subscribe(context.Background(), "audit-sink", "https://example.com/hook", "shh", nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{models.WildcardEvent}, sub.Events)
	assert.Equal(t, 3, sub.RetryCount)
	assert.Equal(t, 30, sub.TimeoutSeconds)
	assert.True(t, sub.IsActive)
}

func TestSubscribeRequiresURL(t *testing.T) {
	d, _ := newTestDispatcher()

	_, err := d.Subscribe(context.Background(), "audit-sink", "", "shh", nil, nil, 3, 30)
	assert.Error(t, err)
}

// TestDispatchSignsAndDeliversOnFirstAttempt grounds the S5 scenario of
// spec.md §8: the receiving endpoint recomputes hmac_sha256(secret, body)
// against X-Webhook-Signature and it matches.
func TestDispatchSignsAndDeliversOnFirstAttempt(t *testing.T) {
	var receivedSig string
	var receivedBody []byte
	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		receivedSig = r.Header.Get("X-Webhook-Signature")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, repo := newTestDispatcher()
	ctx := context.Background()
	sub, err := d.Subscribe(ctx, "audit-sink", srv.URL, "shh", []string{string(models.EventConsentGranted)}, nil, 3, 5)
	require.NoError(t, err)

	err = d.Dispatch(ctx, string(models.EventConsentGranted), map[string]string{"subject_email": "jane@example.com"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "expected exactly one delivery attempt on success")
	assert.True(t, security.VerifyWebhookSignature("shh", receivedBody, receivedSig))

	logs, err := d.Logs(ctx, sub.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, 1, logs[0].AttemptNumber)

	updated, err := repo.GetByID(ctx, nil, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.FailureCount)
}

func TestDispatchSkipsNonMatchingSubscriptions(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher()
	ctx := context.Background()
	_, err := d.Subscribe(ctx, "consent-only", srv.URL, "shh", []string{string(models.EventConsentGranted)}, nil, 3, 5)
	require.NoError(t, err)

	err = d.Dispatch(ctx, string(models.EventDataErased), map[string]string{"subject_email": "jane@example.com"})
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "expected no delivery for an event the subscription didn't subscribe to")
}

// TestDispatchRetriesUntilSuccess grounds spec.md §4.8's retry policy: a
// subscriber that fails twice then succeeds should be attempted exactly
// three times, with a growing delay between attempts.
func TestDispatchRetriesUntilSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher()
	ctx := context.Background()
	sub, err := d.Subscribe(ctx, "flaky", srv.URL, "shh", []string{string(models.EventConsentGranted)}, nil, 3, 5)
	require.NoError(t, err)

	start := time.Now()
	err = d.Dispatch(ctx, string(models.EventConsentGranted), map[string]string{})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	// backoff is 2^0 + 2^1 = 3 seconds between the 3 attempts.
	assert.GreaterOrEqual(t, elapsed, 3*time.Second)

	logs, err := d.Logs(ctx, sub.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.False(t, logs[0].Success)
	assert.False(t, logs[1].Success)
	assert.True(t, logs[2].Success)
}

func TestDispatchExhaustsRetriesAndRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, repo := newTestDispatcher()
	ctx := context.Background()
	sub, err := d.Subscribe(ctx, "always-failing", srv.URL, "shh", []string{string(models.EventConsentGranted)}, nil, 2, 5)
	require.NoError(t, err)

	err = d.Dispatch(ctx, string(models.EventConsentGranted), map[string]string{})
	require.NoError(t, err, "Dispatch itself must not return an error even when every delivery fails")

	logs, err := d.Logs(ctx, sub.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	updated, err := repo.GetByID(ctx, nil, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.FailureCount)
}

func TestWebhookLogResponseBodyIsTruncated(t *testing.T) {
	oversized := make([]byte, models.WebhookLogBodyTruncateBytes*4)
	for i := range oversized {
		oversized[i] = 'x'
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write(oversized)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher()
	ctx := context.Background()
	sub, err := d.Subscribe(ctx, "chatty", srv.URL, "shh", []string{string(models.EventConsentGranted)}, nil, 1, 5)
	require.NoError(t, err)

	err = d.Dispatch(ctx, string(models.EventConsentGranted), map[string]string{})
	require.NoError(t, err)

	logs, err := d.Logs(ctx, sub.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.LessOrEqual(t, len(logs[0].ResponseBody), models.WebhookLogBodyTruncateBytes)
}

func TestEnvelopeMarshalsEventAndData(t *testing.T) {
	env := envelope{Event: "consent.granted", Timestamp: time.Now().UTC().Format(time.RFC3339), Data: map[string]string{"subject_email": "jane@example.com"}}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"event":"consent.granted"`)
}
