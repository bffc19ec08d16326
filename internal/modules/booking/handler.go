package booking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicehub/internal/domain"
	"servicehub/internal/pkg/response"
	"servicehub/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings", h.CreateBooking)
	rg.GET("/bookings", h.ListBookings)
	rg.GET("/bookings/upcoming", h.UpcomingBookings)
	rg.GET("/bookings/:id", h.GetBooking)
	rg.PATCH("/bookings/:id/status", h.UpdateStatus)
	rg.POST("/bookings/:id/cancel", h.CancelBooking)
	rg.PUT("/bookings/:id/work-summary", h.AddWorkSummary)
}

// RegisterAdminRoutes mounts the admin-only listing; the caller is expected
// to guard the group with the admin role middleware.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookings", h.AdminListBookings)
}

func actor(c *gin.Context) (int64, string) {
	return c.GetInt64("user_id"), c.GetString("role")
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking id")
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request")
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusBadRequest, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, ErrInvalidState):
		response.Error(c, http.StatusConflict, "CONFLICT", "Booking state does not allow this operation")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error")
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	userID, role := actor(c)
	if domain.Role(role) != domain.RoleCustomer {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Only customers can create bookings")
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"booking": b})
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	userID, role := actor(c)

	b, err := h.service.GetBooking(c.Request.Context(), userID, role, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) ListBookings(c *gin.Context) {
	userID, role := actor(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	f := repository.ListFilter{
		Status: domain.BookingStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	}

	out, err := h.service.ListBookings(c.Request.Context(), userID, role, f)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) AdminListBookings(c *gin.Context) {
	customerID, _ := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	providerID, _ := strconv.ParseInt(c.Query("provider_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	f := repository.ListFilter{
		Status: domain.BookingStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	}

	out, err := h.service.ListBookingsForAdmin(c.Request.Context(), customerID, providerID, f)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) UpcomingBookings(c *gin.Context) {
	userID, role := actor(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.service.UpcomingBookings(c.Request.Context(), userID, role, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": items})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	userID, role := actor(c)

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), userID, role, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	userID, role := actor(c)

	var req CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Cancellation reason is required")
		return
	}

	b, err := h.service.CancelBooking(c.Request.Context(), userID, role, id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"booking":       b,
		"refund_amount": b.RefundAmount,
	})
}

func (h *Handler) AddWorkSummary(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	userID, role := actor(c)

	var req WorkSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	b, err := h.service.AddWorkSummary(c.Request.Context(), userID, role, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}
