// Command scheduler is C10's standalone binary: wires the same
// repositories and services cmd/server does, runs one pass of the daily
// job, logs the result, and exits. Intended to be invoked by an external
// cron rather than run as a long-lived process, per spec.md §4.10's
// advisory-lock note (exactly one instance should be scheduled at a time;
// this binary does not itself coordinate against concurrent invocations).
//
// Grounded on services/scheduler-service/main.go's wiring order, adapted
// from a long-running gRPC+HTTP server into a run-once job invocation.
package main

import (
	"context"
	"os"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/cache"
	"gdprengine/internal/config"
	"gdprengine/internal/consent"
	"gdprengine/internal/database"
	"gdprengine/internal/dataops"
	"gdprengine/internal/events"
	"gdprengine/internal/logger"
	"gdprengine/internal/notify"
	"gdprengine/internal/request"
	"gdprengine/internal/restriction"
	"gdprengine/internal/scheduler"
	"gdprengine/internal/schema"
	"gdprengine/internal/webhook"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.GetLogger()

	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	redisClient, err := cache.NewRedisClient(cfg.RedisURL, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	publisher := events.NewKafkaPublisher(cfg)
	defer publisher.Close()

	schemaMap := schema.New()
	auditLogger := audit.NewLogger()

	emailSender := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, "", "", cfg.SMTPFrom)
	notifier := notify.NewService(emailSender, cfg.SMTPFrom, "Acme", cfg.SMTPFrom)

	consentMgr := consent.NewManager(db.Pool, consent.NewRepository(), auditLogger, publisher, redisClient, cfg.ConsentStatusCacheTTL, cfg.DefaultConsentExpiryDays)
	restrictionMgr := restriction.NewManager(db.Pool, restriction.NewRepository(), auditLogger, publisher)

	checkRestriction := dataops.CheckFn(func(ctx context.Context, email, op, table string) (bool, string, error) {
		result, err := restrictionMgr.Check(ctx, email, op, table)
		if err != nil {
			return false, "", err
		}
		return result.IsRestricted, result.Detail, nil
	})
	dataOperator := dataops.NewOperator(db.Pool, schemaMap, auditLogger, publisher, checkRestriction, cfg.ExportsDir)
	requestEngine := request.NewEngine(db.Pool, request.NewRepository(), dataOperator, auditLogger, publisher, cfg.RequestDeadlineDays)
	webhookDispatcher := webhook.NewDispatcher(db.Pool, webhook.NewRepository())

	job := scheduler.NewJob(consentMgr, restrictionMgr, requestEngine, notifier, webhookDispatcher, 30, cfg.WebhookLogRetentionDays)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Minute)
	defer cancel()

	start := time.Now()
	result := job.Run(ctx)
	log.WithFields(map[string]interface{}{
		"duration":             time.Since(start).String(),
		"consents_expired":     result.ConsentsExpired,
		"restrictions_expired": result.RestrictionsExpired,
		"overdue_notified":     result.OverdueNotified,
		"consents_notified":    result.ConsentsNotified,
		"webhook_logs_trimmed": result.WebhookLogsTrimmed,
	}).Info("daily scheduler run complete")

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			log.WithField("step_error", e).Error("daily scheduler step failed")
		}
		os.Exit(1)
	}
}
