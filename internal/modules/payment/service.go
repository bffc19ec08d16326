package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"servicehub/internal/domain"
	"servicehub/internal/pkg/metrics"
	"servicehub/internal/pricing"
	"servicehub/internal/repository"
)

type Service struct {
	bookings  BookingRepository
	providers ProviderRepository
	gateway   PaymentGateway
	notifs    NotificationSender
	keyID     string
	loggerf   func(format string, args ...interface{})
	now       func() time.Time
}

func NewService(
	bookings BookingRepository,
	providers ProviderRepository,
	gateway PaymentGateway,
	notifs NotificationSender,
	keyID string,
	loggerf func(format string, args ...interface{}),
) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		bookings:  bookings,
		providers: providers,
		gateway:   gateway,
		notifs:    notifs,
		keyID:     keyID,
		loggerf:   loggerf,
		now:       time.Now,
	}
}

func (s *Service) loadBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// CreateOrder registers a gateway order for the booking's frozen total. The
// notes embed the local identifiers so webhook deliveries can be correlated
// back to the booking.
func (s *Service) CreateOrder(ctx context.Context, actorID int64, req CreateOrderRequest) (*CreateOrderResponse, error) {
	b, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actorID {
		return nil, ErrForbidden
	}
	if b.Status != domain.BookingPending && b.Status != domain.BookingConfirmed {
		return nil, ErrInvalidState
	}
	if b.Payment.Status == domain.PaymentPaid {
		return nil, ErrInvalidState
	}

	notes := map[string]string{
		"booking_id":     strconv.FormatInt(b.ID, 10),
		"booking_number": b.BookingNumber,
		"customer_id":    strconv.FormatInt(b.CustomerID, 10),
		"provider_id":    strconv.FormatInt(b.ProviderID, 10),
		"service_id":     strconv.FormatInt(b.ServiceID, 10),
	}
	order, err := s.gateway.CreateOrder(ctx, b.Pricing.TotalAmount, "INR", "booking_"+b.BookingNumber, notes)
	if err != nil {
		return nil, err
	}

	metrics.PaymentOrdersCreated.Inc()
	s.loggerf("level=info msg=payment order created booking_id=%d order_id=%s amount=%d", b.ID, order.ID, order.Amount)

	return &CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Status:   order.Status,
		KeyID:    s.keyID,
	}, nil
}

// VerifyPayment handles the checkout callback: signature check, payment
// details fetch, then the idempotent paid write and auto-confirm.
func (s *Service) VerifyPayment(ctx context.Context, actorID int64, req VerifyPaymentRequest) (*domain.Booking, error) {
	b, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actorID {
		return nil, ErrForbidden
	}

	if !s.gateway.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		metrics.PaymentsVerified.WithLabelValues("invalid_signature").Inc()
		s.loggerf("level=warn msg=payment signature rejected booking_id=%d order_id=%s", b.ID, req.RazorpayOrderID)
		return nil, ErrInvalidSignature
	}

	p, err := s.gateway.FetchPayment(ctx, req.RazorpayPaymentID)
	if err != nil {
		metrics.PaymentsVerified.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	if _, err := s.markCaptured(ctx, b, p.ID, domain.PaymentMethod(p.Method), p.Amount, actorID); err != nil {
		return nil, err
	}

	metrics.PaymentsVerified.WithLabelValues("success").Inc()
	return s.loadBooking(ctx, b.ID)
}

// markCaptured is shared by the verify path and the webhook path; both races
// collapse onto the single conditional write in the repository.
func (s *Service) markCaptured(ctx context.Context, b *domain.Booking, paymentID string, method domain.PaymentMethod, amount int64, actorID int64) (bool, error) {
	if method == "" {
		method = domain.MethodRazorpay
	}
	now := s.now().UTC()

	changed, err := s.bookings.MarkPaidIdempotent(ctx, b.ID, method, paymentID, amount, now)
	if err != nil {
		return false, err
	}
	if !changed {
		s.loggerf("level=info msg=payment already recorded booking_id=%d transaction_id=%s", b.ID, paymentID)
		return false, nil
	}

	// Auto-confirm pending bookings once payment lands. A concurrent
	// transition losing here is fine: someone else already moved the booking.
	fresh, err := s.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return true, err
	}
	if fresh.Status == domain.BookingPending {
		updated, change, terr := domain.ApplyTransition(*fresh, domain.BookingConfirmed, actorID, "Payment completed", "", now)
		if terr == nil {
			if err := s.bookings.ApplyTransition(ctx, &updated, domain.BookingPending, change); err != nil && !errors.Is(err, repository.ErrStaleBooking) {
				return true, err
			}
		}
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyPaymentSucceeded(ctx, fresh.CustomerID, fresh, amount)
		if fresh.Status == domain.BookingPending {
			_ = s.notifs.NotifyBookingConfirmed(ctx, fresh.CustomerID, fresh)
		}
	}
	return true, nil
}

// ProcessRefund issues the tier-computed refund for a cancelled, paid
// booking. The refund write is conditional on no refund existing yet, so a
// racing refund.created webhook cannot double-record.
func (s *Service) ProcessRefund(ctx context.Context, actorID int64, role string, req RefundRequest) (*RefundResponse, error) {
	b, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRefund(ctx, actorID, role, b); err != nil {
		return nil, err
	}

	if b.Status != domain.BookingCancelled {
		return nil, ErrInvalidState
	}
	if b.Payment.Status != domain.PaymentPaid {
		return nil, ErrInvalidState
	}
	if b.Payment.RefundTransactionID != "" {
		return nil, ErrInvalidState
	}

	amount := b.RefundAmount
	if amount == 0 {
		at := s.now().UTC()
		if b.CancellationDate != nil {
			at = *b.CancellationDate
		}
		amount = pricing.ComputeRefundAmount(b.Pricing.TotalAmount, b.ScheduledDate, at)
	}
	if amount == 0 {
		return nil, ErrNoRefundDue
	}

	notes := map[string]string{
		"booking_id": strconv.FormatInt(b.ID, 10),
		"reason":     req.Reason,
	}
	refund, err := s.gateway.Refund(ctx, b.Payment.TransactionID, amount, notes)
	if err != nil {
		return nil, err
	}

	status := domain.PaymentPartiallyRefunded
	if refund.Amount == b.Pricing.TotalAmount {
		status = domain.PaymentRefunded
	}

	changed, err := s.bookings.RecordRefundIfAbsent(ctx, b.ID, refund.ID, refund.Amount, status, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStaleBooking) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	if !changed {
		// A concurrent refund (API or webhook) won the conditional write;
		// this caller's gateway refund was not recorded.
		s.loggerf("level=warn msg=refund lost write race booking_id=%d refund_id=%s", b.ID, refund.ID)
		return nil, ErrInvalidState
	}

	metrics.RefundsProcessed.WithLabelValues(string(status)).Inc()
	s.loggerf("level=info msg=refund processed booking_id=%d refund_id=%s amount=%d", b.ID, refund.ID, refund.Amount)

	if s.notifs != nil {
		_ = s.notifs.NotifyPaymentRefunded(ctx, b.CustomerID, b, refund.Amount)
	}

	return &RefundResponse{RefundID: refund.ID, Amount: refund.Amount, Status: status}, nil
}

func (s *Service) authorizeRefund(ctx context.Context, actorID int64, role string, b *domain.Booking) error {
	switch domain.Role(role) {
	case domain.RoleAdmin:
		return nil
	case domain.RoleCustomer:
		if b.CustomerID == actorID {
			return nil
		}
	case domain.RoleProvider:
		p, err := s.providers.GetByUserID(ctx, actorID)
		if err == nil && p.ID == b.ProviderID {
			return nil
		}
	}
	return ErrForbidden
}

// HandleWebhook authenticates and dispatches a gateway delivery. Unknown
// event types are recorded and ignored; every handler is idempotent under
// redelivery.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.gateway.ValidateWebhookSignature(rawBody, signature) {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		s.loggerf("level=warn msg=webhook signature rejected")
		return ErrInvalidSignature
	}

	var ev WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return ErrInvalidSignature
	}

	var err error
	switch ev.Event {
	case "payment.captured":
		err = s.handlePaymentCaptured(ctx, ev.Payload.Payment.Entity)
	case "order.paid":
		// order.paid carries the payment entity alongside the order.
		err = s.handlePaymentCaptured(ctx, ev.Payload.Payment.Entity)
	case "payment.failed":
		err = s.handlePaymentFailed(ctx, ev.Payload.Payment.Entity)
	case "refund.created":
		err = s.handleRefundCreated(ctx, ev.Payload.Refund.Entity)
	default:
		metrics.WebhookEvents.WithLabelValues(ev.Event, "ignored").Inc()
		s.loggerf("level=info msg=webhook event ignored event=%s", ev.Event)
		return nil
	}

	outcome := "processed"
	if err != nil {
		outcome = "failed"
	}
	metrics.WebhookEvents.WithLabelValues(ev.Event, outcome).Inc()
	return err
}

func bookingIDFromNotes(notes map[string]string) (int64, bool) {
	raw, ok := notes["booking_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) handlePaymentCaptured(ctx context.Context, p WebhookPayment) error {
	id, ok := bookingIDFromNotes(p.Notes)
	if !ok {
		s.loggerf("level=warn msg=webhook payment without booking correlation payment_id=%s", p.ID)
		return nil
	}
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.loggerf("level=warn msg=webhook references unknown booking booking_id=%d", id)
			return nil
		}
		return err
	}
	_, err = s.markCaptured(ctx, b, p.ID, domain.PaymentMethod(p.Method), p.Amount/100, 0)
	return err
}

func (s *Service) handlePaymentFailed(ctx context.Context, p WebhookPayment) error {
	id, ok := bookingIDFromNotes(p.Notes)
	if !ok {
		return nil
	}
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	changed, err := s.bookings.MarkPaymentFailed(ctx, b.ID, p.ID)
	if err != nil {
		return err
	}
	if changed {
		s.loggerf("level=info msg=payment failed booking_id=%d transaction_id=%s", b.ID, p.ID)
		if s.notifs != nil {
			_ = s.notifs.NotifyPaymentFailed(ctx, b.CustomerID, b)
		}
	}
	return nil
}

func (s *Service) handleRefundCreated(ctx context.Context, r WebhookRefund) error {
	id, ok := bookingIDFromNotes(r.Notes)
	if !ok {
		return nil
	}
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	amount := r.Amount / 100
	status := domain.PaymentPartiallyRefunded
	if amount == b.Pricing.TotalAmount {
		status = domain.PaymentRefunded
	}

	changed, err := s.bookings.RecordRefundIfAbsent(ctx, b.ID, r.ID, amount, status, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStaleBooking) {
			// Booking not paid (or refund already landed via the API path):
			// nothing to reconcile.
			return nil
		}
		return err
	}
	if changed {
		metrics.RefundsProcessed.WithLabelValues(string(status)).Inc()
		if s.notifs != nil {
			_ = s.notifs.NotifyPaymentRefunded(ctx, b.CustomerID, b, amount)
		}
	}
	return nil
}

// ListTransactions returns the caller's bookings that have a gateway
// transaction attached.
func (s *Service) ListTransactions(ctx context.Context, actorID int64, role string, f repository.ListFilter) (*TransactionsResponse, error) {
	var (
		items []domain.Booking
		total int64
		err   error
	)
	switch domain.Role(role) {
	case domain.RoleCustomer:
		items, total, err = s.bookings.ListTransactions(ctx, "customer_id", actorID, f)
	case domain.RoleProvider:
		var p *domain.Provider
		p, err = s.providers.GetByUserID(ctx, actorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		items, total, err = s.bookings.ListTransactions(ctx, "provider_id", p.ID, f)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return &TransactionsResponse{Transactions: items, Total: total}, nil
}
