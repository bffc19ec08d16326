package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in-progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingNoShow     BookingStatus = "no-show"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type PaymentMethod string

const (
	MethodRazorpay PaymentMethod = "razorpay"
	MethodStripe   PaymentMethod = "stripe"
	MethodCash     PaymentMethod = "cash"
	MethodUPI      PaymentMethod = "upi"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type CancelledBy string

const (
	CancelledByCustomer CancelledBy = "customer"
	CancelledByProvider CancelledBy = "provider"
	CancelledByAdmin    CancelledBy = "admin"
)

// StatusChange is a single append-only entry in a booking's status history.
type StatusChange struct {
	Status    BookingStatus `json:"status"`
	ChangedBy int64         `json:"changed_by"`
	ChangedAt time.Time     `json:"changed_at"`
	Reason    string        `json:"reason,omitempty"`
	Comments  string        `json:"comments,omitempty"`
}

type AdditionalCharge struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// Pricing is computed once at booking creation and never re-derived; all
// amounts are whole currency units.
type Pricing struct {
	BaseAmount        int64              `json:"base_amount"`
	AdditionalCharges []AdditionalCharge `json:"additional_charges,omitempty"`
	Discount          int64              `json:"discount,omitempty"`
	DiscountType      DiscountType       `json:"discount_type,omitempty"`
	TaxAmount         int64              `json:"tax_amount"`
	TotalAmount       int64              `json:"total_amount"`
}

// PaymentInfo is the payment sub-state nested inside a booking. Its lifecycle
// is independent of the booking status.
type PaymentInfo struct {
	Status              PaymentStatus `json:"status"`
	Method              PaymentMethod `json:"method,omitempty"`
	TransactionID       string        `json:"transaction_id,omitempty"`
	PaidAmount          int64         `json:"paid_amount"`
	PaidAt              *time.Time    `json:"paid_at,omitempty"`
	RefundTransactionID string        `json:"refund_transaction_id,omitempty"`
	RefundAmount        int64         `json:"refund_amount,omitempty"`
	RefundedAt          *time.Time    `json:"refunded_at,omitempty"`
}

type WorkSummary struct {
	WorkStartTime   *time.Time `json:"work_start_time,omitempty"`
	WorkEndTime     *time.Time `json:"work_end_time,omitempty"`
	WorkDescription string     `json:"work_description,omitempty"`
	BeforeImages    []string   `json:"before_images,omitempty"`
	AfterImages     []string   `json:"after_images,omitempty"`
	MaterialsUsed   []string   `json:"materials_used,omitempty"`
	AdditionalNotes string     `json:"additional_notes,omitempty"`
}

type Booking struct {
	ID            int64  `json:"id"`
	BookingNumber string `json:"booking_number"`

	CustomerID int64 `json:"customer_id"`
	ProviderID int64 `json:"provider_id"`
	ServiceID  int64 `json:"service_id"`

	ScheduledDate     time.Time `json:"scheduled_date"`
	EstimatedDuration int       `json:"estimated_duration"` // minutes, 15..1440
	ActualDuration    int       `json:"actual_duration,omitempty"`

	Address             string `json:"address"`
	ContactPhone        string `json:"contact_phone"`
	SpecialInstructions string `json:"special_instructions,omitempty"`

	Status        BookingStatus  `json:"status"`
	StatusHistory []StatusChange `json:"status_history,omitempty"`

	Pricing     Pricing      `json:"pricing"`
	Payment     PaymentInfo  `json:"payment"`
	WorkSummary *WorkSummary `json:"work_summary,omitempty"`

	CancelledBy        CancelledBy `json:"cancelled_by,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time  `json:"cancellation_date,omitempty"`
	RefundAmount       int64       `json:"refund_amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 1440
)

// GenerateBookingNumber builds a human-readable booking number: "BK", the
// last six digits of the unix-millisecond timestamp and three random bytes in
// upper-case hex. Uniqueness is enforced by the database constraint; callers
// regenerate on collision.
func GenerateBookingNumber(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return "BK" + ts + strings.ToUpper(hex.EncodeToString(suffix))
}
