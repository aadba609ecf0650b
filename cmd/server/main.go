// Command server is the gin HTTP + gRPC health entrypoint wiring every
// component's repository, service, and handler, grounded on
// services/user-service/main.go's config -> logger -> security -> db ->
// cache -> events -> repos -> services -> handlers -> servers -> graceful
// shutdown sequence.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/cache"
	"gdprengine/internal/config"
	"gdprengine/internal/consent"
	"gdprengine/internal/database"
	"gdprengine/internal/dataops"
	"gdprengine/internal/events"
	"gdprengine/internal/grpcapi"
	"gdprengine/internal/handlers"
	"gdprengine/internal/logger"
	"gdprengine/internal/metrics"
	"gdprengine/internal/notify"
	"gdprengine/internal/request"
	"gdprengine/internal/restriction"
	"gdprengine/internal/retention"
	"gdprengine/internal/scheduler"
	"gdprengine/internal/schema"
	"gdprengine/internal/security"
	"gdprengine/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	var publisher events.Publisher
	if cfg.Environment == "test" {
		publisher = events.NewNoOpPublisher()
	} else {
		publisher = events.NewKafkaPublisher(cfg)
	}
	defer publisher.Close()

	var vaultClient *security.VaultClient
	if cfg.VaultAddress != "" {
		vaultClient, err = security.NewVaultClient(&security.VaultConfig{
			Address:    cfg.VaultAddress,
			Token:      cfg.VaultToken,
			MountPath:  cfg.VaultMountPath,
			MaxRetries: 3,
			Timeout:    5 * time.Second,
		}, log)
		if err != nil {
			log.WithError(err).Warn("vault unavailable, webhook secrets will be stored in the database")
		}
	}

	schemaMap := schema.New()
	auditLogger := audit.NewLogger()

	var emailSender notify.EmailSender
	if cfg.Environment == "test" {
		emailSender = notify.NoOpSender{}
	} else {
		emailSender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, "", "", cfg.SMTPFrom)
	}
	notifier := notify.NewService(emailSender, cfg.SMTPFrom, "Acme", cfg.SMTPFrom)

	consentRepo := consent.NewRepository()
	consentMgr := consent.NewManager(db.Pool, consentRepo, auditLogger, publisher, redisClient, cfg.ConsentStatusCacheTTL, cfg.DefaultConsentExpiryDays)

	restrictionRepo := restriction.NewRepository()
	restrictionMgr := restriction.NewManager(db.Pool, restrictionRepo, auditLogger, publisher)

	checkRestriction := dataops.CheckFn(func(ctx context.Context, email, op, table string) (bool, string, error) {
		result, err := restrictionMgr.Check(ctx, email, op, table)
		if err != nil {
			return false, "", err
		}
		return result.IsRestricted, result.Detail, nil
	})
	dataOperator := dataops.NewOperator(db.Pool, schemaMap, auditLogger, publisher, checkRestriction, cfg.ExportsDir).
		WithEncryption(security.NewEncryptor(cfg.ExportEncryptionKey))

	requestRepo := request.NewRepository()
	requestEngine := request.NewEngine(db.Pool, requestRepo, dataOperator, auditLogger, publisher, cfg.RequestDeadlineDays)

	retentionRepo := retention.NewRepository()
	retentionScheduler := retention.NewScheduler(db.Pool, retentionRepo, schemaMap, auditLogger, publisher)

	webhookRepo := webhook.NewRepository()
	webhookDispatcher := webhook.NewDispatcher(db.Pool, webhookRepo)

	if cfg.Environment != "test" {
		eventConsumer := events.NewConsumer(cfg, "gdpr-webhook-dispatcher")
		consumerCtx, stopConsumer := context.WithCancel(context.Background())
		defer stopConsumer()
		go func() {
			err := eventConsumer.Run(consumerCtx, func(ctx context.Context, event events.ComplianceEvent) {
				webhookDispatcher.DispatchAsync(ctx, event.Event, event.Data)
			})
			if err != nil {
				log.WithError(err).Error("compliance event consumer stopped")
			}
		}()
		defer eventConsumer.Close()
	}

	dailyJob := scheduler.NewJob(consentMgr, restrictionMgr, requestEngine, notifier, webhookDispatcher, 30, cfg.WebhookLogRetentionDays)

	registry := &handlers.Registry{
		Consent:     handlers.NewConsentHandler(consentMgr, log),
		Requests:    handlers.NewRequestHandler(requestEngine, log),
		Data:        handlers.NewDataOpsHandler(dataOperator, log),
		Restriction: handlers.NewRestrictionHandler(restrictionMgr, log),
		Retention:   handlers.NewRetentionHandler(retentionScheduler, log),
		Webhook:     handlers.NewWebhookHandler(webhookDispatcher, vaultClient, log),
		Health:      handlers.NewHealthHandler(requestEngine, dailyJob, log),
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.SecurityHeaders())
	router.Use(handlers.SecureCORS(cfg.CORSAllowedOrigins))
	router.Use(handlers.RequestSizeLimit(cfg.MaxRequestBodyBytes))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registry.Register(router)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	grpcSrv := grpcapi.NewServer()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.WithError(err).Fatal("failed to bind grpc listener")
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	go func() {
		log.WithField("port", cfg.GRPCPort).Info("grpc server listening")
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.WithError(err).Fatal("grpc server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcSrv.GracefulStop()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
	fmt.Fprintln(os.Stdout, "shutdown complete")
}
