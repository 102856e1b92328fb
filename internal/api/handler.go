package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/service"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type supportService interface {
	HandleAction(ctx context.Context, req *service.ActionRequest) (*service.ActionResponse, error)
	EndCall(ctx context.Context, room, participant, closing string) string
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	supportService supportService
	checks         map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(supportService supportService) *Handler {
	return &Handler{
		supportService: supportService,
		checks:         make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency checked by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions/:room/actions", h.dispatchAction)
		v1.POST("/sessions/:room/end", h.endCall)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ActionRequest is the HTTP body of a dispatched action. Payload may be a
// JSON string or an inline object.
type ActionRequest struct {
	Action              string          `json:"action" binding:"required"`
	OrderID             string          `json:"order_id"`
	Email               string          `json:"email"`
	Payload             json.RawMessage `json:"payload"`
	ParticipantIdentity string          `json:"participant_identity"`
	ClosingMessage      string          `json:"closing_message"`
	RequestID           string          `json:"request_id"`
}

// EndCallRequest is the HTTP body of an end call request
type EndCallRequest struct {
	ParticipantIdentity string `json:"participant_identity"`
	ClosingMessage      string `json:"closing_message"`
}

// dispatchAction handles one action for the room's call
func (h *Handler) dispatchAction(c *gin.Context) {
	var req ActionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.RequestID == "" {
		req.RequestID = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.supportService.HandleAction(c.Request.Context(), &service.ActionRequest{
		RequestID:           req.RequestID,
		RoomName:            c.Param("room"),
		ParticipantIdentity: req.ParticipantIdentity,
		Action:              req.Action,
		OrderID:             req.OrderID,
		Email:               req.Email,
		Payload:             service.PayloadString(req.Payload),
		ClosingMessage:      req.ClosingMessage,
	})
	if errors.Is(err, service.ErrDuplicateRequest) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Request already processed",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to dispatch action",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// endCall handles the terminal end action for the room's call
func (h *Handler) endCall(c *gin.Context) {
	var req EndCallRequest

	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	result := h.supportService.EndCall(c.Request.Context(), c.Param("room"), req.ParticipantIdentity, req.ClosingMessage)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
