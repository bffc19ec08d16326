package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicehub/internal/pkg/response"
	"servicehub/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the authenticated payment endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/create-order", h.CreateOrder)
	rg.POST("/payments/verify", h.VerifyPayment)
	rg.POST("/payments/refund", h.Refund)
	rg.GET("/payments/transactions", h.ListTransactions)
}

// RegisterWebhookRoutes mounts the unauthenticated gateway callback; it is
// authenticated by the webhook signature instead of a bearer token.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/webhook/razorpay", h.Webhook)
}

func respondError(c *gin.Context, err error) {
	var gw *GatewayError
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, ErrInvalidState):
		response.Error(c, http.StatusConflict, "INVALID_STATE", "Payment precondition violated")
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Signature verification failed")
	case errors.Is(err, ErrNoRefundDue):
		response.Error(c, http.StatusBadRequest, "NO_REFUND_DUE", "Computed refund amount is zero")
	case errors.Is(err, ErrGatewayUnavailable):
		response.Error(c, http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "Payment gateway is not configured")
	case errors.Is(err, ErrGatewayUncertain):
		response.Error(c, http.StatusBadGateway, "GATEWAY_UNCERTAIN", "Gateway outcome unknown; do not retry blindly")
	case errors.As(err, &gw):
		response.Error(c, http.StatusBadGateway, "GATEWAY_ERROR", "Payment gateway rejected the request")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error")
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	out, err := h.service.CreateOrder(c.Request.Context(), c.GetInt64("user_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b, err := h.service.VerifyPayment(c.Request.Context(), c.GetInt64("user_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	out, err := h.service.ProcessRefund(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	out, err := h.service.ListTransactions(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), repository.ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Webhook reads the raw body before any parsing: the signature covers the
// exact bytes the gateway sent. Rejections carry no detail about the cause.
func (h *Handler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_WEBHOOK", "Webhook rejected")
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if err := h.service.HandleWebhook(c.Request.Context(), raw, signature); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			response.Error(c, http.StatusBadRequest, "INVALID_WEBHOOK", "Webhook rejected")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
