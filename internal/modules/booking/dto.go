package booking

import (
	"time"

	"servicehub/internal/domain"
)

type CreateBookingRequest struct {
	ProviderID          int64                     `json:"provider_id" binding:"required"`
	ServiceID           int64                     `json:"service_id" binding:"required"`
	ScheduledDate       time.Time                 `json:"scheduled_date" binding:"required"`
	EstimatedDuration   int                       `json:"estimated_duration"`
	Address             string                    `json:"address" binding:"required"`
	ContactPhone        string                    `json:"contact_phone" binding:"required"`
	SpecialInstructions string                    `json:"special_instructions"`
	AdditionalCharges   []domain.AdditionalCharge `json:"additional_charges"`
	Discount            int64                     `json:"discount"`
	DiscountType        string                    `json:"discount_type"`
}

type UpdateStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Reason   string `json:"reason"`
	Comments string `json:"comments"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type WorkSummaryRequest struct {
	WorkStartTime   *time.Time `json:"work_start_time"`
	WorkEndTime     *time.Time `json:"work_end_time"`
	WorkDescription string     `json:"work_description"`
	BeforeImages    []string   `json:"before_images"`
	AfterImages     []string   `json:"after_images"`
	MaterialsUsed   []string   `json:"materials_used"`
	AdditionalNotes string     `json:"additional_notes"`
}

// ListResponse wraps a page of bookings with the total match count.
type ListResponse struct {
	Bookings []domain.Booking `json:"bookings"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}
