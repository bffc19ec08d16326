package payment

import "servicehub/internal/domain"

type CreateOrderRequest struct {
	BookingID int64 `json:"booking_id" binding:"required"`
}

type CreateOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	KeyID    string `json:"key_id,omitempty"`
}

type VerifyPaymentRequest struct {
	BookingID         int64  `json:"booking_id" binding:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

type RefundRequest struct {
	BookingID int64  `json:"booking_id" binding:"required"`
	Reason    string `json:"reason"`
}

type RefundResponse struct {
	RefundID string               `json:"refund_id"`
	Amount   int64                `json:"amount"`
	Status   domain.PaymentStatus `json:"status"`
}

type TransactionsResponse struct {
	Transactions []domain.Booking `json:"transactions"`
	Total        int64            `json:"total"`
}

// WebhookEvent is the gateway's delivery envelope. Only the entities relevant
// to the event type are populated.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity WebhookPayment `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity WebhookRefund `json:"entity"`
		} `json:"refund"`
		Order struct {
			Entity WebhookOrder `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type WebhookPayment struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Amount  int64             `json:"amount"` // minor units
	Method  string            `json:"method"`
	Notes   map[string]string `json:"notes"`
}

type WebhookRefund struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"` // minor units
	Notes     map[string]string `json:"notes"`
}

type WebhookOrder struct {
	ID     string            `json:"id"`
	Amount int64             `json:"amount"` // minor units
	Notes  map[string]string `json:"notes"`
}
