package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"gdprengine/internal/models"
	"gdprengine/internal/notify"
)

type fakeConsent struct {
	expireOldCount int
	expireOldErr   error
	expiring       []models.Consent
	expiringErr    error
}

func (f *fakeConsent) ExpireOld(ctx context.Context) (int, error) {
	return f.expireOldCount, f.expireOldErr
}

func (f *fakeConsent) ExpiringWithin(ctx context.Context, from, to time.Time) ([]models.Consent, error) {
	return f.expiring, f.expiringErr
}

type fakeRestriction struct {
	expireOldCount int
	expireOldErr   error
}

func (f *fakeRestriction) ExpireOld(ctx context.Context) (int, error) {
	return f.expireOldCount, f.expireOldErr
}

type fakeRequests struct {
	overdue []models.Request
	err     error
}

func (f *fakeRequests) Overdue(ctx context.Context) ([]models.Request, error) {
	return f.overdue, f.err
}

type fakeNotifier struct {
	overdueCalls   int
	expiringCalls  int
	overdueResult  notify.Result
	expiringResult notify.Result
}

func (f *fakeNotifier) NotifyOverdue(ctx context.Context, overdue []models.Request) notify.Result {
	f.overdueCalls++
	return f.overdueResult
}

func (f *fakeNotifier) NotifyConsentExpiringSoon(ctx context.Context, expiring []models.Consent, daysBefore int) notify.Result {
	f.expiringCalls++
	return f.expiringResult
}

type fakeWebhooks struct {
	trimmed int64
	err     error
}

func (f *fakeWebhooks) TrimLogs(ctx context.Context, olderThanDays int) (int64, error) {
	return f.trimmed, f.err
}

func TestNewJobDefaultsNonPositiveDays(t *testing.T) {
	j := NewJob(&fakeConsent{}, &fakeRestriction{}, &fakeRequests{}, &fakeNotifier{}, &fakeWebhooks{}, 0, -5)
	if j.ConsentExpiryDays != 30 {
		t.Errorf("expected default consent expiry of 30 days, got %d", j.ConsentExpiryDays)
	}
	if j.LogRetentionDays != 90 {
		t.Errorf("expected default log retention of 90 days, got %d", j.LogRetentionDays)
	}
}

func TestRunExecutesAllFiveStepsInOrder(t *testing.T) {
	consent := &fakeConsent{expireOldCount: 2, expiring: []models.Consent{{}, {}, {}}}
	restriction := &fakeRestriction{expireOldCount: 1}
	requests := &fakeRequests{overdue: []models.Request{{}, {}}}
	notifier := &fakeNotifier{overdueResult: notify.Result{CountFound: 2, CountSent: 1}, expiringResult: notify.Result{CountFound: 3, CountSent: 3}}
	webhooks := &fakeWebhooks{trimmed: 5}

	j := NewJob(consent, restriction, requests, notifier, webhooks, 30, 90)
	result := j.Run(context.Background())

	if result.ConsentsExpired != 2 {
		t.Errorf("expected 2 consents expired, got %d", result.ConsentsExpired)
	}
	if result.RestrictionsExpired != 1 {
		t.Errorf("expected 1 restriction expired, got %d", result.RestrictionsExpired)
	}
	if result.OverdueNotified.CountSent != 1 {
		t.Errorf("expected overdue notification result to pass through, got %+v", result.OverdueNotified)
	}
	if result.ConsentsNotified.CountSent != 3 {
		t.Errorf("expected consent-expiring notification result to pass through, got %+v", result.ConsentsNotified)
	}
	if result.WebhookLogsTrimmed != 5 {
		t.Errorf("expected 5 webhook logs trimmed, got %d", result.WebhookLogsTrimmed)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors on a fully successful run, got %v", result.Errors)
	}
	if notifier.overdueCalls != 1 || notifier.expiringCalls != 1 {
		t.Error("expected each notifier method to be called exactly once")
	}
}

func TestRunIsolatesFailuresAndContinues(t *testing.T) {
	consent := &fakeConsent{expireOldErr: errors.New("db unavailable"), expiring: []models.Consent{{}}}
	restriction := &fakeRestriction{expireOldCount: 4}
	requests := &fakeRequests{err: errors.New("query failed")}
	notifier := &fakeNotifier{}
	webhooks := &fakeWebhooks{err: errors.New("trim failed")}

	j := NewJob(consent, restriction, requests, notifier, webhooks, 30, 90)
	result := j.Run(context.Background())

	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 isolated errors (overdue lookup, consent expiry, webhook trim), got %d: %v", len(result.Errors), result.Errors)
	}
	if result.RestrictionsExpired != 4 {
		t.Errorf("expected the restriction step to still succeed despite earlier failures, got %d", result.RestrictionsExpired)
	}
	if notifier.overdueCalls != 0 {
		t.Error("expected NotifyOverdue to be skipped when the overdue lookup failed")
	}
	if notifier.expiringCalls != 1 {
		t.Error("expected NotifyConsentExpiringSoon to still run since the expiring-consent lookup succeeded")
	}
}
