// Package handlers is the gin HTTP transport exposing every operation in
// spec.md §6's table. Grounded directly on
// services/user-service/internal/handlers/gdpr_handler.go: one handler
// struct per domain holding the service plus a logger, a
// Setup*Routes(*gin.RouterGroup) method, and gin.H JSON error bodies.
package handlers

import "github.com/gin-gonic/gin"

// Registry bundles every domain handler so cmd/server can wire them in one
// call, mirroring the teacher main.go's sequence of SetupXRoutes calls.
type Registry struct {
	Consent     *ConsentHandler
	Requests    *RequestHandler
	Data        *DataOpsHandler
	Restriction *RestrictionHandler
	Retention   *RetentionHandler
	Webhook     *WebhookHandler
	Health      *HealthHandler
}

// Register mounts every domain's routes under "/api/v1" on root, plus the
// unversioned "/health" endpoint.
func (r *Registry) Register(root *gin.Engine) {
	api := root.Group("/api/v1")
	r.Consent.SetupConsentRoutes(api)
	r.Requests.SetupRequestRoutes(api)
	r.Data.SetupDataOpsRoutes(api)
	r.Restriction.SetupRestrictionRoutes(api)
	r.Retention.SetupRetentionRoutes(api)
	r.Webhook.SetupWebhookRoutes(api)
	r.Health.SetupHealthRoutes(root, api)
}
