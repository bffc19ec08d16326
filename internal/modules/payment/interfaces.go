package payment

import (
	"context"
	"time"

	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

type BookingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ApplyTransition(ctx context.Context, b *domain.Booking, prev domain.BookingStatus, change domain.StatusChange) error
	MarkPaidIdempotent(ctx context.Context, bookingID int64, method domain.PaymentMethod, transactionID string, amount int64, paidAt time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, bookingID int64, transactionID string) (bool, error)
	RecordRefundIfAbsent(ctx context.Context, bookingID int64, refundTransactionID string, amount int64, status domain.PaymentStatus, refundedAt time.Time) (bool, error)
	ListTransactions(ctx context.Context, column string, ownerID int64, f repository.ListFilter) ([]domain.Booking, int64, error)
}

type ProviderRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*domain.Provider, error)
}

// PaymentGateway is the narrow seam to the external processor; the service
// never sees gateway-specific wire formats.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error)
	VerifySignature(orderID, paymentID, signature string) bool
	ValidateWebhookSignature(rawBody []byte, signature string) bool
}

type NotificationSender interface {
	NotifyBookingConfirmed(ctx context.Context, recipientID int64, b *domain.Booking) error
	NotifyPaymentSucceeded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error
	NotifyPaymentFailed(ctx context.Context, recipientID int64, b *domain.Booking) error
	NotifyPaymentRefunded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error
}
