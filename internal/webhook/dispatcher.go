package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gdprengine/internal/dberr"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"
	"gdprengine/internal/models"
	"gdprengine/internal/security"
)

const maxResponseBodyBytes = models.WebhookLogBodyTruncateBytes

// envelope is the JSON body POSTed to subscribers, spec.md §4.8.
type envelope struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Dispatcher is C8. Dispatch fans out to every matching active subscription
// concurrently; within a subscription, retries are sequential and blocking
// only that subscription (spec.md §5 concurrency model).
type Dispatcher struct {
	db         dbexec.DB
	repo       Repository
	httpClient *http.Client
}

func NewDispatcher(db dbexec.DB, repo Repository) *Dispatcher {
	return &Dispatcher{
		db:   db,
		repo: repo,
		httpClient: &http.Client{
			// Per-attempt timeout is applied per-subscription below
			// (spec.md §5: "per attempt, not total"); this default only
			// bounds requests that somehow bypass that context deadline.
			Timeout: 60 * time.Second,
		},
	}
}

// Subscribe implements spec.md §6's Webhook.Subscribe.
func (d *Dispatcher) Subscribe(ctx context.Context, name, url, secret string, events []string, headers map[string]string, retries, timeoutSeconds int) (*models.WebhookSubscription, error) {
	if url == "" {
		return nil, dberr.InvalidArgument("url is required")
	}
	if len(events) == 0 {
		events = []string{models.WildcardEvent}
	}
	if retries <= 0 {
		retries = 3
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	s := &models.WebhookSubscription{
		Name: name, URL: url, Secret: secret, Events: events, Headers: headers,
		RetryCount: retries, TimeoutSeconds: timeoutSeconds, IsActive: true,
	}
	if err := d.repo.Create(ctx, d.db, s); err != nil {
		return nil, dberr.Internal("failed to create subscription", err)
	}
	return s, nil
}

// UpdateSubscription implements the SPEC_FULL.md-supplemented
// Webhook.UpdateSubscription (gdpr_webhooks.py: update_subscription).
func (d *Dispatcher) UpdateSubscription(ctx context.Context, id string, mutate func(*models.WebhookSubscription)) (*models.WebhookSubscription, error) {
	s, err := d.repo.GetByID(ctx, d.db, id)
	if err != nil {
		return nil, dberr.Internal("failed to fetch subscription", err)
	}
	if s == nil {
		return nil, dberr.NotFound("subscription")
	}
	mutate(s)
	if err := d.repo.Update(ctx, d.db, s); err != nil {
		return nil, dberr.Internal("failed to update subscription", err)
	}
	return s, nil
}

// Unsubscribe implements spec.md §6's Webhook.Unsubscribe.
func (d *Dispatcher) Unsubscribe(ctx context.Context, id string) error {
	if err := d.repo.Delete(ctx, d.db, id); err != nil {
		return dberr.Internal("failed to delete subscription", err)
	}
	return nil
}

// Logs implements spec.md §6's Webhook.Logs.
func (d *Dispatcher) Logs(ctx context.Context, subscriptionID, eventType string, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 {
		limit = 100
	}
	logs, err := d.repo.ListLogs(ctx, d.db, subscriptionID, eventType, limit)
	if err != nil {
		return nil, dberr.Internal("failed to list webhook logs", err)
	}
	return logs, nil
}

// TrimLogs implements §4.8/§4.10's 90-day log trim.
func (d *Dispatcher) TrimLogs(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	n, err := d.repo.TrimLogs(ctx, d.db, cutoff)
	if err != nil {
		return 0, dberr.Internal("failed to trim webhook logs", err)
	}
	return n, nil
}

// Dispatch is the synchronous entry point: it blocks until every matching
// subscription's delivery (including retries) has completed, per spec.md
// §4.8.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data interface{}) error {
	subs, err := d.repo.ListActive(ctx, d.db)
	if err != nil {
		return dberr.Internal("failed to list webhook subscriptions", err)
	}

	env := envelope{Event: event, Timestamp: time.Now().UTC().Format(time.RFC3339), Data: data}
	body, err := json.Marshal(env)
	if err != nil {
		return dberr.Internal("failed to marshal webhook envelope", err)
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		if !s.Matches(models.WebhookEvent(event)) {
			continue
		}
		wg.Add(1)
		go func(sub models.WebhookSubscription) {
			defer wg.Done()
			d.deliverWithRetry(context.WithoutCancel(ctx), sub, event, body)
		}(s)
	}
	wg.Wait()
	return nil
}

// DispatchAsync returns immediately after scheduling delivery; no ordering
// guarantee across events or subscriptions (spec.md §5).
func (d *Dispatcher) DispatchAsync(ctx context.Context, event string, data interface{}) {
	go func() {
		if err := d.Dispatch(context.WithoutCancel(ctx), event, data); err != nil {
			logger.GetLogger().WithError(err).WithField("event", event).Error("async webhook dispatch failed")
		}
	}()
}

// deliverWithRetry implements spec.md §4.8's per-subscription retry policy:
// up to RetryCount attempts, waiting 2^(n-1) seconds between attempt n and
// n+1 (1s, 2s, 4s, ...), success is 2xx. Every attempt is logged; failure_count/last_* fields
// update on every attempt regardless of outcome.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, sub models.WebhookSubscription, event string, body []byte) {
	retries := sub.RetryCount
	if retries <= 0 {
		retries = 3
	}
	timeout := time.Duration(sub.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	signature := security.SignWebhookBody(sub.Secret, body)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		statusCode, respBody, duration, err := d.attempt(ctx, sub, event, body, signature, timeout)
		success := err == nil && statusCode >= 200 && statusCode < 300

		logEntry := models.WebhookLog{
			SubscriptionID: sub.ID,
			EventType:      event,
			Payload:        string(body),
			AttemptNumber:  attempt,
			Success:        success,
			DurationMS:     duration.Milliseconds(),
		}
		if statusCode > 0 {
			sc := statusCode
			logEntry.ResponseStatus = &sc
		}
		if respBody != "" {
			logEntry.ResponseBody = truncate(respBody, maxResponseBodyBytes)
		}
		if err != nil {
			logEntry.ErrorMessage = err.Error()
		}

		if logErr := d.repo.AppendLog(ctx, d.db, logEntry); logErr != nil {
			logger.GetLogger().WithError(logErr).WithField("subscription_id", sub.ID).Error("failed to record webhook delivery log")
		}

		var sc *int
		if statusCode > 0 {
			v := statusCode
			sc = &v
		}
		if recErr := d.repo.RecordAttempt(ctx, d.db, sub.ID, sc, time.Now().UTC(), success); recErr != nil {
			logger.GetLogger().WithError(recErr).WithField("subscription_id", sub.ID).Error("failed to record webhook subscription state")
		}

		outcome := "failure"
		if success {
			outcome = "success"
		}
		metrics.RecordWebhookDelivery(event, outcome)

		if success {
			return
		}

		lastErr = err
		if attempt < retries {
			time.Sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}
	}

	logger.GetLogger().WithField("subscription_id", sub.ID).WithField("event", event).WithError(lastErr).
		Warn("webhook delivery exhausted retries")
}

func (d *Dispatcher) attempt(ctx context.Context, sub models.WebhookSubscription, event string, body []byte, signature string, timeout time.Duration) (int, string, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return 0, "", duration, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes*4))
	return resp.StatusCode, string(respBody), duration, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
