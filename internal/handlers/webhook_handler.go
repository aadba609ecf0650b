package handlers

import (
	"context"
	"net/http"
	"strconv"

	"gdprengine/internal/models"
	"gdprengine/internal/security"
	"gdprengine/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// secretVault is the subset of security.VaultClient the handler mirrors
// new and rotated subscription secrets into; nil when Vault is not
// configured, in which case the secret column in the database is the only
// copy (see internal/security's package doc).
type secretVault interface {
	PutWebhookSecret(ctx context.Context, subscriptionID, secret string) error
}

// WebhookHandler exposes C8's subscription management and delivery log.
type WebhookHandler struct {
	service *webhook.Dispatcher
	vault   secretVault
	logger  *logrus.Logger
}

func NewWebhookHandler(service *webhook.Dispatcher, vault *security.VaultClient, logger *logrus.Logger) *WebhookHandler {
	h := &WebhookHandler{service: service, logger: logger}
	if vault != nil {
		h.vault = vault
	}
	return h
}

// mirrorSecret best-effort copies a subscription's secret into Vault when
// one is configured. A failure here does not fail the request: the
// database column already holds the authoritative copy.
func (h *WebhookHandler) mirrorSecret(ctx context.Context, subscriptionID, secret string) {
	if h.vault == nil {
		return
	}
	if err := h.vault.PutWebhookSecret(ctx, subscriptionID, secret); err != nil {
		h.logger.WithError(err).WithField("subscription_id", subscriptionID).Warn("failed to mirror webhook secret into vault")
	}
}

type subscribeRequest struct {
	Name           string            `json:"name" binding:"required"`
	URL            string            `json:"url" binding:"required"`
	Secret         string            `json:"secret" binding:"required"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

func (h *WebhookHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Subscribe(c.Request.Context(), req.Name, req.URL, req.Secret, req.Events, req.Headers, req.RetryCount, req.TimeoutSeconds)
	if err != nil {
		respondError(c, err)
		return
	}
	h.mirrorSecret(c.Request.Context(), result.ID, req.Secret)
	c.JSON(http.StatusCreated, result)
}

type updateSubscriptionRequest struct {
	IsActive *bool             `json:"is_active,omitempty"`
	Secret   *string           `json:"secret,omitempty"`
	Events   []string          `json:"events,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

func (h *WebhookHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.UpdateSubscription(c.Request.Context(), id, func(s *models.WebhookSubscription) {
		if req.IsActive != nil {
			s.IsActive = *req.IsActive
		}
		if req.Secret != nil {
			s.Secret = *req.Secret
		}
		if req.Events != nil {
			s.Events = req.Events
		}
		if req.Headers != nil {
			s.Headers = req.Headers
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Secret != nil {
		h.mirrorSecret(c.Request.Context(), id, *req.Secret)
	}
	c.JSON(http.StatusOK, result)
}

func (h *WebhookHandler) Unsubscribe(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Unsubscribe(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *WebhookHandler) Logs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	result, err := h.service.Logs(c.Request.Context(), c.Query("subscription_id"), c.Query("event"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetupWebhookRoutes registers C8's HTTP surface under router.
func (h *WebhookHandler) SetupWebhookRoutes(router *gin.RouterGroup) {
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/subscriptions", h.Subscribe)
		webhooks.PATCH("/subscriptions/:id", h.Update)
		webhooks.DELETE("/subscriptions/:id", h.Unsubscribe)
		webhooks.GET("/logs", h.Logs)
	}
}
