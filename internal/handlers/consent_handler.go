package handlers

import (
	"net/http"

	"gdprengine/internal/consent"
	"gdprengine/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConsentHandler exposes C3's operations per spec.md §6, grounded on
// gdpr_handler.go's per-domain handler-struct shape.
type ConsentHandler struct {
	service *consent.Manager
	logger  *logrus.Logger
}

func NewConsentHandler(service *consent.Manager, logger *logrus.Logger) *ConsentHandler {
	return &ConsentHandler{service: service, logger: logger}
}

type grantRequest struct {
	Email         string             `json:"email" binding:"required"`
	Type          models.ConsentType `json:"type" binding:"required"`
	ExpiresInDays *int               `json:"expires_in_days,omitempty"`
}

func (h *ConsentHandler) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Grant(c.Request.Context(), actorFrom(c), req.Email, req.Type, req.ExpiresInDays)
	if err != nil {
		h.logger.WithError(err).WithField("subject_email", req.Email).Warn("consent grant failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type withdrawRequest struct {
	Email string             `json:"email" binding:"required"`
	Type  models.ConsentType `json:"type" binding:"required"`
}

func (h *ConsentHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	withdrawnAt, err := h.service.Withdraw(c.Request.Context(), actorFrom(c), req.Email, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "withdrawn_at": withdrawnAt})
}

func (h *ConsentHandler) WithdrawAll(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	count, err := h.service.WithdrawAll(c.Request.Context(), actorFrom(c), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn_count": count})
}

func (h *ConsentHandler) Status(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	status, err := h.service.Status(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *ConsentHandler) Check(c *gin.Context) {
	email := c.Query("email")
	consentType := models.ConsentType(c.Query("type"))
	if email == "" || !consentType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and a valid type are required"})
		return
	}
	ok, err := h.service.Check(c.Request.Context(), email, consentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

// SetupConsentRoutes registers C3's HTTP surface under router.
func (h *ConsentHandler) SetupConsentRoutes(router *gin.RouterGroup) {
	consentGroup := router.Group("/consent")
	{
		consentGroup.POST("/grant", h.Grant)
		consentGroup.POST("/withdraw", h.Withdraw)
		consentGroup.POST("/withdraw-all", h.WithdrawAll)
		consentGroup.GET("/status", h.Status)
		consentGroup.GET("/check", h.Check)
	}
}
