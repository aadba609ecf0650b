package handlers

import (
	"net/http"
	"strconv"

	"gdprengine/internal/dataops"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DataOpsHandler exposes C4's export/erase/rectify operations and the
// SPEC_FULL.md-supplemented preview/cleanup/discovery endpoints.
type DataOpsHandler struct {
	service *dataops.Operator
	logger  *logrus.Logger
}

func NewDataOpsHandler(service *dataops.Operator, logger *logrus.Logger) *DataOpsHandler {
	return &DataOpsHandler{service: service, logger: logger}
}

func (h *DataOpsHandler) Export(c *gin.Context) {
	email := c.Query("email")
	format := c.DefaultQuery("format", "json")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.Export(c.Request.Context(), actorFrom(c), email, format, c.GetHeader("X-Request-ID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DataOpsHandler) PreviewExport(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.PreviewExport(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type eraseRequest struct {
	Email  string `json:"email" binding:"required"`
	DryRun bool   `json:"dry_run"`
}

func (h *DataOpsHandler) Erase(c *gin.Context) {
	var req eraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Erase(c.Request.Context(), actorFrom(c), req.Email, req.DryRun, false, c.GetHeader("X-Request-ID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DataOpsHandler) PreviewErase(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.PreviewErase(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DataOpsHandler) RectifiableFields(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.RectifiableFields(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rectifyRequest struct {
	Email           string                            `json:"email" binding:"required"`
	Rectifications  map[string]map[string]interface{} `json:"rectifications" binding:"required"`
	DryRun          bool                              `json:"dry_run"`
}

func (h *DataOpsHandler) Rectify(c *gin.Context) {
	var req rectifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Rectify(c.Request.Context(), actorFrom(c), req.Email, req.Rectifications, req.DryRun, c.GetHeader("X-Request-ID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rectifyEmailRequest struct {
	OldEmail string `json:"old_email" binding:"required"`
	NewEmail string `json:"new_email" binding:"required"`
	DryRun   bool   `json:"dry_run"`
}

func (h *DataOpsHandler) RectifyEmail(c *gin.Context) {
	var req rectifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.RectifyEmail(c.Request.Context(), actorFrom(c), req.OldEmail, req.NewEmail, req.DryRun, c.GetHeader("X-Request-ID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DataOpsHandler) CleanupExports(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("older_than_days", "30"))
	count, err := h.service.CleanupExports(c.Request.Context(), actorFrom(c), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files_removed": count})
}

// SetupDataOpsRoutes registers C4's HTTP surface under router.
func (h *DataOpsHandler) SetupDataOpsRoutes(router *gin.RouterGroup) {
	data := router.Group("/data")
	{
		data.GET("/export", h.Export)
		data.GET("/export/preview", h.PreviewExport)
		data.POST("/erase", h.Erase)
		data.GET("/erase/preview", h.PreviewErase)
		data.GET("/rectifiable-fields", h.RectifiableFields)
		data.POST("/rectify", h.Rectify)
		data.POST("/rectify-email", h.RectifyEmail)
		data.POST("/exports/cleanup", h.CleanupExports)
	}
}
