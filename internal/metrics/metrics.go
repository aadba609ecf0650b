// Package metrics exposes Prometheus series for the GDPR engine the way the
// teacher's internal/metrics/metrics.go wires promauto + a gRPC interceptor.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	grpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	requestsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdpr_requests_processed_total",
			Help: "Total number of GDPR subject requests processed, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	auditEntriesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdpr_audit_entries_total",
			Help: "Total number of audit entries written, by action",
		},
		[]string{"action"},
	)

	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdpr_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts, by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	retentionRowsAffectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdpr_retention_rows_affected_total",
			Help: "Total number of rows affected by retention sweeps, by table and action",
		},
		[]string{"table", "action"},
	)
)

func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		method := info.FullMethod
		statusCode := "OK"

		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code().String()
			} else {
				statusCode = "Unknown"
			}
		}

		grpcRequestsTotal.WithLabelValues(method, statusCode).Inc()
		grpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())

		return resp, err
	}
}

func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	cacheMissesTotal.WithLabelValues(cacheType).Inc()
}

func SetActiveConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

func RecordRequestProcessed(requestType, outcome string) {
	requestsProcessedTotal.WithLabelValues(requestType, outcome).Inc()
}

func RecordAuditEntry(action string) {
	auditEntriesWrittenTotal.WithLabelValues(action).Inc()
}

func RecordWebhookDelivery(event, outcome string) {
	webhookDeliveriesTotal.WithLabelValues(event, outcome).Inc()
}

func RecordRetentionRows(table, action string, count int) {
	retentionRowsAffectedTotal.WithLabelValues(table, action).Add(float64(count))
}
