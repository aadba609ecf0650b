// Package scheduler is C10, the Daily Scheduler: runs once per invocation
// and drives C9's digests plus C3/C5's expiry sweeps and C8's log trim, in
// the fixed order spec.md §4.10 specifies. A failure in one step is logged
// and does not abort later steps.
//
// Grounded on services/scheduler-service's standalone-binary job-runner
// shape (each job independent, errors isolated per job) and
// original_source/compliance/gdpr/gdpr_notifications.py's run order (the
// original wires an equivalent cron entrypoint calling these same five
// operations).
package scheduler

import (
	"context"
	"time"

	"gdprengine/internal/logger"
	"gdprengine/internal/models"
	"gdprengine/internal/notify"
)

// ConsentExpirer is the subset of C3 this job drives.
type ConsentExpirer interface {
	ExpireOld(ctx context.Context) (int, error)
	ExpiringWithin(ctx context.Context, from, to time.Time) ([]models.Consent, error)
}

// RestrictionExpirer is the subset of C5 this job drives.
type RestrictionExpirer interface {
	ExpireOld(ctx context.Context) (int, error)
}

// OverdueLister is the subset of C7 this job drives.
type OverdueLister interface {
	Overdue(ctx context.Context) ([]models.Request, error)
}

// Notifier is the subset of C9 this job drives.
type Notifier interface {
	NotifyOverdue(ctx context.Context, overdue []models.Request) notify.Result
	NotifyConsentExpiringSoon(ctx context.Context, expiring []models.Consent, daysBefore int) notify.Result
}

// LogTrimmer is the subset of C8 this job drives.
type LogTrimmer interface {
	TrimLogs(ctx context.Context, olderThanDays int) (int64, error)
}

// Job is C10.
type Job struct {
	Consent           ConsentExpirer
	Restriction       RestrictionExpirer
	Requests          OverdueLister
	Notify            Notifier
	Webhooks          LogTrimmer
	ConsentExpiryDays int
	LogRetentionDays  int
}

func NewJob(consent ConsentExpirer, restriction RestrictionExpirer, requests OverdueLister, notifier Notifier, webhooks LogTrimmer, consentExpiryDays, logRetentionDays int) *Job {
	if consentExpiryDays <= 0 {
		consentExpiryDays = 30
	}
	if logRetentionDays <= 0 {
		logRetentionDays = 90
	}
	return &Job{
		Consent: consent, Restriction: restriction, Requests: requests, Notify: notifier, Webhooks: webhooks,
		ConsentExpiryDays: consentExpiryDays, LogRetentionDays: logRetentionDays,
	}
}

// RunResult reports what each of the five steps did, even when some failed.
type RunResult struct {
	OverdueNotified     notify.Result `json:"overdue_notified"`
	ConsentsExpired     int           `json:"consents_expired"`
	RestrictionsExpired int           `json:"restrictions_expired"`
	ConsentsNotified    notify.Result `json:"consents_notified"`
	WebhookLogsTrimmed  int64         `json:"webhook_logs_trimmed"`
	Errors              []string      `json:"errors,omitempty"`
}

// Run executes the five steps of spec.md §4.10 in order. Every step is
// independent: a failure is appended to Errors and the run continues.
func (j *Job) Run(ctx context.Context) RunResult {
	var result RunResult
	log := logger.GetLogger()

	// 1. Notifications.notify_overdue()
	overdue, err := j.Requests.Overdue(ctx)
	if err != nil {
		result.Errors = append(result.Errors, "overdue lookup: "+err.Error())
		log.WithError(err).Error("scheduler: failed to list overdue requests")
	} else {
		result.OverdueNotified = j.Notify.NotifyOverdue(ctx, overdue)
	}

	// 2. Consent.expire_old()
	expiredConsents, err := j.Consent.ExpireOld(ctx)
	if err != nil {
		result.Errors = append(result.Errors, "consent expiry: "+err.Error())
		log.WithError(err).Error("scheduler: failed to expire consents")
	} else {
		result.ConsentsExpired = expiredConsents
	}

	// 3. Restriction.expire_old()
	expiredRestrictions, err := j.Restriction.ExpireOld(ctx)
	if err != nil {
		result.Errors = append(result.Errors, "restriction expiry: "+err.Error())
		log.WithError(err).Error("scheduler: failed to expire restrictions")
	} else {
		result.RestrictionsExpired = expiredRestrictions
	}

	// 4. Notifications.notify_consent_expiring_soon(days_before=30)
	now := time.Now().UTC()
	expiring, err := j.Consent.ExpiringWithin(ctx, now, now.AddDate(0, 0, j.ConsentExpiryDays))
	if err != nil {
		result.Errors = append(result.Errors, "expiring-consent lookup: "+err.Error())
		log.WithError(err).Error("scheduler: failed to list expiring consents")
	} else {
		result.ConsentsNotified = j.Notify.NotifyConsentExpiringSoon(ctx, expiring, j.ConsentExpiryDays)
	}

	// 5. Trim WebhookLog where created_at < now - 90 days.
	trimmed, err := j.Webhooks.TrimLogs(ctx, j.LogRetentionDays)
	if err != nil {
		result.Errors = append(result.Errors, "webhook log trim: "+err.Error())
		log.WithError(err).Error("scheduler: failed to trim webhook logs")
	} else {
		result.WebhookLogsTrimmed = trimmed
	}

	log.WithField("consents_expired", result.ConsentsExpired).
		WithField("restrictions_expired", result.RestrictionsExpired).
		WithField("overdue_found", result.OverdueNotified.CountFound).
		WithField("consents_notified", result.ConsentsNotified.CountSent).
		WithField("webhook_logs_trimmed", result.WebhookLogsTrimmed).
		Info("daily scheduler run complete")

	return result
}
