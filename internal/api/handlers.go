// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
	"github.com/mateatletas/payments/internal/payment"
)

// Handler contains the HTTP handlers for the payment API.
type Handler struct {
	paymentService *payment.Service
	logger         *zap.Logger
}

// NewHandler creates a new API handler with the payment service.
func NewHandler(paymentService *payment.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		paymentService: paymentService,
		logger:         logger.Named("http"),
	}
}

// MembershipCheckoutRequest is the body of POST /api/pagos/suscripcion.
// Without a product id the cheapest active subscription is used.
type MembershipCheckoutRequest struct {
	ProductID string `json:"producto_id"`
}

// CourseCheckoutRequest is the body of POST /api/pagos/curso.
type CourseCheckoutRequest struct {
	StudentID string `json:"estudiante_id" binding:"required"`
	ProductID string `json:"producto_id" binding:"required"`
}

// PreferenceResponse represents the response from the checkout endpoints.
type PreferenceResponse struct {
	Success          bool   `json:"success"`
	PreferenceID     string `json:"preference_id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
	MockMode         bool   `json:"mock_mode"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// CreateMembershipCheckout handles POST /api/pagos/suscripcion
func (h *Handler) CreateMembershipCheckout(c *gin.Context) {
	var req MembershipCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		validationError(c, err)
		return
	}

	pref, err := h.paymentService.CreateMembershipPreference(c.Request.Context(), tutorID(c), strings.TrimSpace(req.ProductID))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.preferenceResponse(c, pref)
}

// CreateCourseCheckout handles POST /api/pagos/curso
func (h *Handler) CreateCourseCheckout(c *gin.Context) {
	var req CourseCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	pref, err := h.paymentService.CreateCoursePreference(c.Request.Context(), tutorID(c), req.StudentID, req.ProductID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.preferenceResponse(c, pref)
}

func (h *Handler) preferenceResponse(c *gin.Context, pref *domain.Preference) {
	c.JSON(http.StatusCreated, PreferenceResponse{
		Success:          true,
		PreferenceID:     pref.ID,
		InitPoint:        pref.InitPoint,
		SandboxInitPoint: pref.SandboxInitPoint,
		MockMode:         h.paymentService.MockMode(),
	})
}

// GetCurrentMembership handles GET /api/pagos/membresia
func (h *Handler) GetCurrentMembership(c *gin.Context) {
	m, err := h.paymentService.GetCurrentMembership(c.Request.Context(), tutorID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"membresia": m})
}

// GetMembershipStatus handles GET /api/pagos/membresia/:id/estado
func (h *Handler) GetMembershipStatus(c *gin.Context) {
	status, err := h.paymentService.GetMembershipStatus(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ManualActivateMembership handles POST /api/pagos/mock/activar-membresia/:id
func (h *Handler) ManualActivateMembership(c *gin.Context) {
	m, err := h.paymentService.ManualActivateMembership(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "membresia": m})
}

// ListEnrollments handles GET /api/pagos/inscripciones
func (h *Handler) ListEnrollments(c *gin.Context) {
	list, err := h.paymentService.ListEnrollments(c.Request.Context(), tutorID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if list == nil {
		list = []domain.Enrollment{}
	}
	c.JSON(http.StatusOK, gin.H{"inscripciones": list})
}

// GetHistory handles GET /api/pagos/historial
func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.paymentService.History(c.Request.Context(), tutorID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// WebhookRequest represents the JSON body from Mercado Pago webhooks.
type WebhookRequest struct {
	ID     any    `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
	LiveMode *bool `json:"live_mode"`
}

// HandleWebhook handles POST /api/pagos/webhook
// Always answers 200 so Mercado Pago stops retrying; failures are logged.
func (h *Handler) HandleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Mercado Pago might send different formats, log and fall back to the query
		h.logger.Warn("webhook body not parseable", zap.Error(err))
	}

	notification := domain.WebhookNotification{
		ID:       stringID(req.ID),
		Type:     firstNonEmpty(req.Type, c.Query("type"), c.Query("topic")),
		Action:   req.Action,
		DataID:   firstNonEmpty(c.GetString(webhookDataIDKey), stringID(req.Data.ID), c.Query("data.id")),
		LiveMode: req.LiveMode,
	}

	ack, err := h.paymentService.HandleWebhook(c.Request.Context(), notification)
	if err != nil {
		h.logger.Error("webhook processing error",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("payment_id", notification.DataID),
			zap.Error(err))
		// Still return 200 to prevent MP from retrying
		c.JSON(http.StatusOK, gin.H{"status": "processed_with_error"})
		return
	}

	c.JSON(http.StatusOK, ack)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "mateatletas-payments",
		"mock_mode": h.paymentService.MockMode(),
	})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   "Invalid request body: " + err.Error(),
		Code:    "VALIDATION_ERROR",
	})
}

// handleServiceError maps domain errors to HTTP responses.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	statusCode, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		statusCode, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidProduct):
		statusCode, code = http.StatusBadRequest, "INVALID_PRODUCT"
	case errors.Is(err, domain.ErrMalformedWebhook):
		statusCode, code = http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		statusCode, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrForbidden):
		statusCode, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrIntegrationFailure):
		statusCode, code = http.StatusBadGateway, "GATEWAY_ERROR"
	}

	message := err.Error()
	var paymentErr *domain.PaymentError
	if errors.As(err, &paymentErr) {
		message = paymentErr.Message
		if paymentErr.Code != "" {
			code = paymentErr.Code
		}
	}

	if statusCode == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "Internal server error"
	}

	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
