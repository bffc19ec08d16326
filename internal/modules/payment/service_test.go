package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepo) ApplyTransition(ctx context.Context, b *domain.Booking, prev domain.BookingStatus, change domain.StatusChange) error {
	args := m.Called(ctx, b, prev, change)
	return args.Error(0)
}

func (m *MockBookingRepo) MarkPaidIdempotent(ctx context.Context, bookingID int64, method domain.PaymentMethod, transactionID string, amount int64, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, bookingID, method, transactionID, amount, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) MarkPaymentFailed(ctx context.Context, bookingID int64, transactionID string) (bool, error) {
	args := m.Called(ctx, bookingID, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) RecordRefundIfAbsent(ctx context.Context, bookingID int64, refundTransactionID string, amount int64, status domain.PaymentStatus, refundedAt time.Time) (bool, error) {
	args := m.Called(ctx, bookingID, refundTransactionID, amount, status, refundedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) ListTransactions(ctx context.Context, column string, ownerID int64, f repository.ListFilter) ([]domain.Booking, int64, error) {
	args := m.Called(ctx, column, ownerID, f)
	return args.Get(0).([]domain.Booking), args.Get(1).(int64), args.Error(2)
}

type MockProviderRepo struct {
	mock.Mock
}

func (m *MockProviderRepo) GetByUserID(ctx context.Context, userID int64) (*domain.Provider, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Provider), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	args := m.Called(ctx, amount, currency, receipt, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockGateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GatewayPayment), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	args := m.Called(ctx, paymentID, amount, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Refund), args.Error(1)
}

func (m *MockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	args := m.Called(orderID, paymentID, signature)
	return args.Bool(0)
}

func (m *MockGateway) ValidateWebhookSignature(rawBody []byte, signature string) bool {
	args := m.Called(rawBody, signature)
	return args.Bool(0)
}

type MockPaymentNotifier struct {
	mock.Mock
}

func (m *MockPaymentNotifier) NotifyBookingConfirmed(ctx context.Context, recipientID int64, b *domain.Booking) error {
	args := m.Called(ctx, recipientID, b)
	return args.Error(0)
}

func (m *MockPaymentNotifier) NotifyPaymentSucceeded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error {
	args := m.Called(ctx, recipientID, b, amount)
	return args.Error(0)
}

func (m *MockPaymentNotifier) NotifyPaymentFailed(ctx context.Context, recipientID int64, b *domain.Booking) error {
	args := m.Called(ctx, recipientID, b)
	return args.Error(0)
}

func (m *MockPaymentNotifier) NotifyPaymentRefunded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error {
	args := m.Called(ctx, recipientID, b, amount)
	return args.Error(0)
}

func newPaymentServiceForTest(now time.Time) (*Service, *MockBookingRepo, *MockProviderRepo, *MockGateway, *MockPaymentNotifier) {
	bookings := new(MockBookingRepo)
	providers := new(MockProviderRepo)
	gateway := new(MockGateway)
	notifs := new(MockPaymentNotifier)
	svc := NewService(bookings, providers, gateway, notifs, "rzp_test_key", nil)
	svc.now = func() time.Time { return now }
	return svc, bookings, providers, gateway, notifs
}

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:            42,
		BookingNumber: "BK123456ABCDEF",
		CustomerID:    1,
		ProviderID:    7,
		ServiceID:     3,
		Status:        domain.BookingPending,
		Pricing:       domain.Pricing{TotalAmount: 1280},
		Payment:       domain.PaymentInfo{Status: domain.PaymentPending},
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	b := pendingBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("CreateOrder", mock.Anything, int64(1280), "INR", "booking_BK123456ABCDEF", mock.MatchedBy(func(notes map[string]string) bool {
		return notes["booking_id"] == "42" && notes["customer_id"] == "1" &&
			notes["provider_id"] == "7" && notes["service_id"] == "3" &&
			notes["booking_number"] == "BK123456ABCDEF"
	})).Return(&Order{ID: "order_xyz", Amount: 1280, Currency: "INR", Status: "created"}, nil)

	out, err := svc.CreateOrder(context.Background(), 1, CreateOrderRequest{BookingID: 42})
	assert.NoError(t, err)
	assert.Equal(t, "order_xyz", out.OrderID)
	assert.Equal(t, int64(1280), out.Amount)
	assert.Equal(t, "rzp_test_key", out.KeyID)
}

func TestCreateOrderOwnershipAndState(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	b := pendingBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)

	_, err := svc.CreateOrder(context.Background(), 99, CreateOrderRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrForbidden)

	b.Status = domain.BookingCompleted
	_, err = svc.CreateOrder(context.Background(), 1, CreateOrderRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)

	b.Status = domain.BookingConfirmed
	b.Payment.Status = domain.PaymentPaid
	_, err = svc.CreateOrder(context.Background(), 1, CreateOrderRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)

	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	b := pendingBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("VerifySignature", "order_xyz", "pay_123", "bad").Return(false)

	_, err := svc.VerifyPayment(context.Background(), 1, VerifyPaymentRequest{
		BookingID:         42,
		RazorpayOrderID:   "order_xyz",
		RazorpayPaymentID: "pay_123",
		RazorpaySignature: "bad",
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	bookings.AssertNotCalled(t, "MarkPaidIdempotent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentAutoConfirms(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	b := pendingBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("VerifySignature", "order_xyz", "pay_123", "sig").Return(true)
	gateway.On("FetchPayment", mock.Anything, "pay_123").
		Return(&GatewayPayment{ID: "pay_123", OrderID: "order_xyz", Amount: 1280, Status: "captured", Method: "upi"}, nil)
	bookings.On("MarkPaidIdempotent", mock.Anything, int64(42), domain.MethodUPI, "pay_123", int64(1280), now).
		Return(true, nil)
	bookings.On("ApplyTransition", mock.Anything, mock.Anything, domain.BookingPending, mock.MatchedBy(func(c domain.StatusChange) bool {
		return c.Status == domain.BookingConfirmed && c.Reason == "Payment completed"
	})).Return(nil)
	notifs.On("NotifyPaymentSucceeded", mock.Anything, int64(1), mock.Anything, int64(1280)).Return(nil)
	notifs.On("NotifyBookingConfirmed", mock.Anything, int64(1), mock.Anything).Return(nil)

	_, err := svc.VerifyPayment(context.Background(), 1, VerifyPaymentRequest{
		BookingID:         42,
		RazorpayOrderID:   "order_xyz",
		RazorpayPaymentID: "pay_123",
		RazorpaySignature: "sig",
	})
	assert.NoError(t, err)
	bookings.AssertCalled(t, "ApplyTransition", mock.Anything, mock.Anything, domain.BookingPending, mock.Anything)
}

func capturedWebhookBody(bookingID string) []byte {
	var ev WebhookEvent
	ev.Event = "payment.captured"
	ev.Payload.Payment.Entity = WebhookPayment{
		ID:     "pay_123",
		Amount: 128000,
		Method: "upi",
		Notes:  map[string]string{"booking_id": bookingID},
	}
	raw, _ := json.Marshal(ev)
	return raw
}

func TestWebhookCapturedIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	raw := capturedWebhookBody("42")
	b := pendingBooking()

	gateway.On("ValidateWebhookSignature", raw, "sig").Return(true)
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	bookings.On("MarkPaidIdempotent", mock.Anything, int64(42), domain.MethodUPI, "pay_123", int64(1280), now).
		Return(true, nil).Once()
	bookings.On("ApplyTransition", mock.Anything, mock.Anything, domain.BookingPending, mock.Anything).Return(nil).Once()
	notifs.On("NotifyPaymentSucceeded", mock.Anything, int64(1), mock.Anything, int64(1280)).Return(nil)
	notifs.On("NotifyBookingConfirmed", mock.Anything, int64(1), mock.Anything).Return(nil)

	assert.NoError(t, svc.HandleWebhook(context.Background(), raw, "sig"))

	// Redelivery: the conditional write reports no change, so no transition
	// and no second notification.
	bookings.On("MarkPaidIdempotent", mock.Anything, int64(42), domain.MethodUPI, "pay_123", int64(1280), now).
		Return(false, nil).Once()

	assert.NoError(t, svc.HandleWebhook(context.Background(), raw, "sig"))
	bookings.AssertNumberOfCalls(t, "ApplyTransition", 1)
	notifs.AssertNumberOfCalls(t, "NotifyPaymentSucceeded", 1)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	raw := capturedWebhookBody("42")
	gateway.On("ValidateWebhookSignature", raw, "bad").Return(false)

	err := svc.HandleWebhook(context.Background(), raw, "bad")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	raw := []byte(`{"event":"invoice.expired","payload":{}}`)
	gateway.On("ValidateWebhookSignature", raw, "sig").Return(true)

	assert.NoError(t, svc.HandleWebhook(context.Background(), raw, "sig"))
	bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestWebhookPaymentFailed(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	var ev WebhookEvent
	ev.Event = "payment.failed"
	ev.Payload.Payment.Entity = WebhookPayment{
		ID:    "pay_bad",
		Notes: map[string]string{"booking_id": "42"},
	}
	raw, _ := json.Marshal(ev)

	b := pendingBooking()
	gateway.On("ValidateWebhookSignature", raw, "sig").Return(true)
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	bookings.On("MarkPaymentFailed", mock.Anything, int64(42), "pay_bad").Return(true, nil)
	notifs.On("NotifyPaymentFailed", mock.Anything, int64(1), mock.Anything).Return(nil)

	assert.NoError(t, svc.HandleWebhook(context.Background(), raw, "sig"))
	bookings.AssertCalled(t, "MarkPaymentFailed", mock.Anything, int64(42), "pay_bad")
}

func cancelledPaidBooking() *domain.Booking {
	b := pendingBooking()
	b.Status = domain.BookingCancelled
	b.Payment = domain.PaymentInfo{
		Status:        domain.PaymentPaid,
		TransactionID: "pay_123",
		PaidAmount:    1280,
	}
	b.RefundAmount = 960
	return b
}

func TestProcessRefundHappyPath(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	b := cancelledPaidBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("Refund", mock.Anything, "pay_123", int64(960), mock.Anything).
		Return(&Refund{ID: "rfnd_1", PaymentID: "pay_123", Amount: 960, Status: "processed"}, nil)
	bookings.On("RecordRefundIfAbsent", mock.Anything, int64(42), "rfnd_1", int64(960), domain.PaymentPartiallyRefunded, now).
		Return(true, nil)
	notifs.On("NotifyPaymentRefunded", mock.Anything, int64(1), mock.Anything, int64(960)).Return(nil)

	out, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42, Reason: "cancelled"})
	assert.NoError(t, err)
	assert.Equal(t, "rfnd_1", out.RefundID)
	assert.Equal(t, int64(960), out.Amount)
	assert.Equal(t, domain.PaymentPartiallyRefunded, out.Status)
}

func TestProcessRefundFullAmountMarksRefunded(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	b := cancelledPaidBooking()
	b.RefundAmount = 1280
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("Refund", mock.Anything, "pay_123", int64(1280), mock.Anything).
		Return(&Refund{ID: "rfnd_1", PaymentID: "pay_123", Amount: 1280, Status: "processed"}, nil)
	bookings.On("RecordRefundIfAbsent", mock.Anything, int64(42), "rfnd_1", int64(1280), domain.PaymentRefunded, now).
		Return(true, nil)
	notifs.On("NotifyPaymentRefunded", mock.Anything, int64(1), mock.Anything, int64(1280)).Return(nil)

	out, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, out.Status)
}

func TestProcessRefundPreconditions(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	// Not cancelled.
	active := pendingBooking()
	active.Payment.Status = domain.PaymentPaid
	bookings.On("GetByID", mock.Anything, int64(42)).Return(active, nil).Once()
	_, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Not paid.
	unpaid := pendingBooking()
	unpaid.Status = domain.BookingCancelled
	bookings.On("GetByID", mock.Anything, int64(42)).Return(unpaid, nil).Once()
	_, err = svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Refund already recorded: the race loser observes the precondition.
	refunded := cancelledPaidBooking()
	refunded.Payment.RefundTransactionID = "rfnd_prev"
	bookings.On("GetByID", mock.Anything, int64(42)).Return(refunded, nil).Once()
	_, err = svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)

	gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRefundLosingWriteRaceFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	// Two callers pass the precondition check on the same snapshot; the
	// conditional write decides the winner. The loser sees no row changed and
	// must fail instead of reporting an unrecorded refund.
	b := cancelledPaidBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("Refund", mock.Anything, "pay_123", int64(960), mock.Anything).
		Return(&Refund{ID: "rfnd_loser", PaymentID: "pay_123", Amount: 960, Status: "processed"}, nil)
	bookings.On("RecordRefundIfAbsent", mock.Anything, int64(42), "rfnd_loser", int64(960), domain.PaymentPartiallyRefunded, now).
		Return(false, nil)

	out, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, out)
	notifs.AssertNotCalled(t, "NotifyPaymentRefunded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRefundStaleBookingFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, notifs := newPaymentServiceForTest(now)

	b := cancelledPaidBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	gateway.On("Refund", mock.Anything, "pay_123", int64(960), mock.Anything).
		Return(&Refund{ID: "rfnd_1", PaymentID: "pay_123", Amount: 960, Status: "processed"}, nil)
	bookings.On("RecordRefundIfAbsent", mock.Anything, int64(42), "rfnd_1", int64(960), domain.PaymentPartiallyRefunded, now).
		Return(false, repository.ErrStaleBooking)

	out, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, out)
	notifs.AssertNotCalled(t, "NotifyPaymentRefunded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRefundZeroAmountIsNoRefundDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, _, gateway, _ := newPaymentServiceForTest(now)

	b := cancelledPaidBooking()
	b.RefundAmount = 0
	b.Pricing.TotalAmount = 0
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)

	_, err := svc.ProcessRefund(context.Background(), 1, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrNoRefundDue)
	gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRefundAuthorization(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, bookings, providers, gateway, notifs := newPaymentServiceForTest(now)

	b := cancelledPaidBooking()
	bookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	providers.On("GetByUserID", mock.Anything, int64(70)).Return(&domain.Provider{ID: 7, UserID: 70}, nil)
	providers.On("GetByUserID", mock.Anything, int64(71)).Return(&domain.Provider{ID: 8, UserID: 71}, nil)
	gateway.On("Refund", mock.Anything, "pay_123", int64(960), mock.Anything).
		Return(&Refund{ID: "rfnd_1", PaymentID: "pay_123", Amount: 960, Status: "processed"}, nil)
	bookings.On("RecordRefundIfAbsent", mock.Anything, int64(42), "rfnd_1", int64(960), domain.PaymentPartiallyRefunded, now).
		Return(true, nil)
	notifs.On("NotifyPaymentRefunded", mock.Anything, int64(1), mock.Anything, int64(960)).Return(nil)

	_, err := svc.ProcessRefund(context.Background(), 2, "customer", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ProcessRefund(context.Background(), 71, "provider", RefundRequest{BookingID: 42})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ProcessRefund(context.Background(), 70, "provider", RefundRequest{BookingID: 42})
	assert.NoError(t, err)
}
