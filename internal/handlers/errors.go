// Package handlers is the gin HTTP transport exposing every operation in
// spec.md §6's table. Grounded directly on
// services/user-service/internal/handlers/gdpr_handler.go: one handler
// struct per domain holding the service plus a logger, a
// Setup*Routes(*gin.RouterGroup) method, and gin.H JSON error bodies.
package handlers

import (
	"net/http"

	"gdprengine/internal/dberr"
	"gdprengine/internal/models"

	"github.com/gin-gonic/gin"
)

// statusFor maps dberr.Kind onto the HTTP status the original gdpr_handler.go
// would use for the equivalent condition (§7's error taxonomy).
func statusFor(kind dberr.Kind) int {
	switch kind {
	case dberr.KindInvalidArgument:
		return http.StatusBadRequest
	case dberr.KindNotFound:
		return http.StatusNotFound
	case dberr.KindConflict:
		return http.StatusConflict
	case dberr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case dberr.KindIntegrityFailure:
		return http.StatusUnprocessableEntity
	case dberr.KindDeliveryFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a JSON error body with the status matching err's kind.
func respondError(c *gin.Context, err error) {
	kind := dberr.KindOf(err)
	c.JSON(statusFor(kind), gin.H{"error": err.Error()})
}

// actorFrom builds the caller-identity tuple every core operation accepts,
// per spec.md §6 ("all operations accept {performed_by, ip?, ua?,
// request_id?}"). performed_by defaults to "api" when no authenticated
// identity is attached to the gin context, mirroring the teacher's
// GetString("user_id") pattern without mandating auth middleware this
// engine does not implement (transport-level auth is out of scope per
// spec.md's Non-goals).
func actorFrom(c *gin.Context) models.Actor {
	performedBy := c.GetString("user_id")
	if performedBy == "" {
		performedBy = c.GetHeader("X-Performed-By")
	}
	if performedBy == "" {
		performedBy = "api"
	}
	return models.Actor{
		PerformedBy: performedBy,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
		RequestID:   c.GetHeader("X-Request-ID"),
	}
}
