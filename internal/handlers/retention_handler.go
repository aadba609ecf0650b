package handlers

import (
	"net/http"

	"gdprengine/internal/models"
	"gdprengine/internal/retention"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RetentionHandler exposes C6's policy CRUD and sweep surface.
type RetentionHandler struct {
	service *retention.Scheduler
	logger  *logrus.Logger
}

func NewRetentionHandler(service *retention.Scheduler, logger *logrus.Logger) *RetentionHandler {
	return &RetentionHandler{service: service, logger: logger}
}

func (h *RetentionHandler) Policies(c *gin.Context) {
	result, err := h.service.Policies(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetentionHandler) Statistics(c *gin.Context) {
	result, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetentionHandler) CreatePolicy(c *gin.Context) {
	var body models.RetentionPolicy
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.CreatePolicy(c.Request.Context(), actorFrom(c), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *RetentionHandler) UpdatePolicy(c *gin.Context) {
	var body models.RetentionPolicy
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	body.TableName = c.Param("table")
	result, err := h.service.UpdatePolicy(c.Request.Context(), actorFrom(c), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetentionHandler) DeletePolicy(c *gin.Context) {
	table := c.Param("table")
	if err := h.service.DeletePolicy(c.Request.Context(), actorFrom(c), table); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type cleanupRequest struct {
	Table  string `json:"table,omitempty"`
	DryRun bool   `json:"dry_run"`
}

func (h *RetentionHandler) Cleanup(c *gin.Context) {
	var body cleanupRequest
	// Cleanup accepts an empty body (sweep every active policy).
	_ = c.ShouldBindJSON(&body)
	result, err := h.service.Cleanup(c.Request.Context(), body.Table, body.DryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetupRetentionRoutes registers C6's HTTP surface under router.
func (h *RetentionHandler) SetupRetentionRoutes(router *gin.RouterGroup) {
	retentionGroup := router.Group("/retention")
	{
		retentionGroup.GET("/policies", h.Policies)
		retentionGroup.GET("/statistics", h.Statistics)
		retentionGroup.POST("/policies", h.CreatePolicy)
		retentionGroup.PUT("/policies/:table", h.UpdatePolicy)
		retentionGroup.DELETE("/policies/:table", h.DeletePolicy)
		retentionGroup.POST("/cleanup", h.Cleanup)
	}
}
