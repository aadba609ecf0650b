package handlers

import (
	"net/http"

	"gdprengine/internal/models"
	"gdprengine/internal/restriction"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RestrictionHandler exposes C5's Art. 18 processing-restriction surface.
type RestrictionHandler struct {
	service *restriction.Manager
	logger  *logrus.Logger
}

func NewRestrictionHandler(service *restriction.Manager, logger *logrus.Logger) *RestrictionHandler {
	return &RestrictionHandler{service: service, logger: logger}
}

type restrictionRequestBody struct {
	Email         string                    `json:"email" binding:"required"`
	Reason        models.RestrictionReason  `json:"reason" binding:"required"`
	ReasonDetails string                    `json:"reason_details,omitempty"`
	Operations    []string                  `json:"operations,omitempty"`
	Tables        []string                  `json:"tables,omitempty"`
	ExpiresInDays *int                      `json:"expires_in_days,omitempty"`
}

func (h *RestrictionHandler) Request(c *gin.Context) {
	var body restrictionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Request(c.Request.Context(), actorFrom(c), body.Email, body.Reason, restriction.RequestOptions{
		ReasonDetails: body.ReasonDetails,
		Operations:    body.Operations,
		Tables:        body.Tables,
		ExpiresInDays: body.ExpiresInDays,
		RequestID:     c.GetHeader("X-Request-ID"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type liftRequestBody struct {
	LiftedBy   string `json:"lifted_by" binding:"required"`
	LiftReason string `json:"lift_reason" binding:"required"`
}

func (h *RestrictionHandler) Lift(c *gin.Context) {
	id := c.Param("id")
	var body liftRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lifted_by and lift_reason are required"})
		return
	}
	result, err := h.service.Lift(c.Request.Context(), actorFrom(c), id, body.LiftedBy, body.LiftReason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RestrictionHandler) Check(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.Check(c.Request.Context(), email, c.Query("op"), c.Query("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RestrictionHandler) History(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	result, err := h.service.History(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetupRestrictionRoutes registers C5's HTTP surface under router.
func (h *RestrictionHandler) SetupRestrictionRoutes(router *gin.RouterGroup) {
	restrictions := router.Group("/restrictions")
	{
		restrictions.POST("", h.Request)
		restrictions.POST("/:id/lift", h.Lift)
		restrictions.GET("/check", h.Check)
		restrictions.GET("/history", h.History)
	}
}
