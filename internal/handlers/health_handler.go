package handlers

import (
	"net/http"

	"gdprengine/internal/request"
	"gdprengine/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler exposes spec.md §6's Health operation and, as an
// HTTP-triggerable alternative to the standalone cmd/scheduler binary,
// Schedule.RunDaily.
type HealthHandler struct {
	requests *request.Engine
	job      *scheduler.Job
	logger   *logrus.Logger
}

func NewHealthHandler(requests *request.Engine, job *scheduler.Job, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{requests: requests, job: job, logger: logger}
}

// Health implements spec.md §6: {status, pending, overdue, components}.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.requests.Pending(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("health check: failed to list pending requests")
	}
	overdue, err := h.requests.Overdue(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("health check: failed to list overdue requests")
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"pending": len(pending),
		"overdue": len(overdue),
		"components": gin.H{
			"consent":     "ok",
			"requests":    "ok",
			"dataops":     "ok",
			"restriction": "ok",
			"retention":   "ok",
			"webhook":     "ok",
		},
	})
}

// RunDaily implements spec.md §6's Schedule.RunDaily as an HTTP-triggerable
// alternative to cmd/scheduler, for deployments that prefer an
// externally-cron-triggered endpoint over a standalone binary.
func (h *HealthHandler) RunDaily(c *gin.Context) {
	result := h.job.Run(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

// SetupHealthRoutes registers the health and daily-scheduler trigger
// endpoints. Health is mounted at the API root, not under /api/v1, mirroring
// the teacher's main.go ("/health" alongside "/metrics").
func (h *HealthHandler) SetupHealthRoutes(root *gin.Engine, api *gin.RouterGroup) {
	root.GET("/health", h.Health)
	api.POST("/schedule/run-daily", h.RunDaily)
}
