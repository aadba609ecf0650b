package handlers

import (
	"net/http"

	"gdprengine/internal/models"
	"gdprengine/internal/request"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestHandler exposes C7's Art. 15-20 request lifecycle per spec.md §6.
type RequestHandler struct {
	service *request.Engine
	logger  *logrus.Logger
}

func NewRequestHandler(service *request.Engine, logger *logrus.Logger) *RequestHandler {
	return &RequestHandler{service: service, logger: logger}
}

type createRequestBody struct {
	Email string             `json:"email" binding:"required"`
	Type  models.RequestType `json:"type" binding:"required"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.service.Create(c.Request.Context(), actorFrom(c), req.Email, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	result, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RequestHandler) Process(c *gin.Context) {
	id := c.Param("id")
	result, err := h.service.Process(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rejectRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *RequestHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	var body rejectRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	result, err := h.service.Reject(c.Request.Context(), actorFrom(c), id, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RequestHandler) Pending(c *gin.Context) {
	result, err := h.service.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RequestHandler) Overdue(c *gin.Context) {
	result, err := h.service.Overdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetupRequestRoutes registers C7's HTTP surface under router.
func (h *RequestHandler) SetupRequestRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.POST("", h.Create)
		requests.GET("/pending", h.Pending)
		requests.GET("/overdue", h.Overdue)
		requests.GET("/:id", h.Get)
		requests.POST("/:id/process", h.Process)
		requests.POST("/:id/reject", h.Reject)
	}
}
