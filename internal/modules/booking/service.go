package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"servicehub/internal/domain"
	"servicehub/internal/pricing"
	"servicehub/internal/repository"
)

// createRetries bounds the regeneration attempts when a booking number
// collides with an existing row.
const createRetries = 3

type Service struct {
	bookings  BookingRepository
	providers ProviderRepository
	services  ServiceRepository
	notifs    NotificationSender
	taxRate   float64
	now       func() time.Time
}

func NewService(
	bookings BookingRepository,
	providers ProviderRepository,
	services ServiceRepository,
	notifs NotificationSender,
	taxRate float64,
) *Service {
	return &Service{
		bookings:  bookings,
		providers: providers,
		services:  services,
		notifs:    notifs,
		taxRate:   taxRate,
		now:       time.Now,
	}
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Service) CreateBooking(ctx context.Context, customerID int64, req CreateBookingRequest) (*domain.Booking, error) {
	now := s.now().UTC()

	if !req.ScheduledDate.After(now) {
		return nil, ErrValidation
	}
	if req.Discount < 0 {
		return nil, ErrValidation
	}
	for _, c := range req.AdditionalCharges {
		if c.Amount < 0 || c.Name == "" {
			return nil, ErrValidation
		}
	}

	discountType := domain.DiscountType(req.DiscountType)
	switch discountType {
	case "", domain.DiscountFixed:
		discountType = domain.DiscountFixed
	case domain.DiscountPercentage:
		if req.Discount > 100 {
			return nil, ErrValidation
		}
	default:
		return nil, ErrValidation
	}

	svc, err := s.services.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrValidation
		}
		return nil, err
	}
	if !svc.IsActive {
		return nil, ErrValidation
	}

	provider, err := s.providers.GetByID(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrValidation
		}
		return nil, err
	}
	if !provider.IsAvailable {
		return nil, ErrValidation
	}

	offers, err := s.providers.OffersService(ctx, provider.ID, svc.ID)
	if err != nil {
		return nil, err
	}
	if !offers {
		return nil, ErrValidation
	}

	duration := req.EstimatedDuration
	if duration == 0 {
		duration = svc.Duration
	}
	if duration < domain.MinDurationMinutes || duration > domain.MaxDurationMinutes {
		return nil, ErrValidation
	}

	taxAmount, totalAmount := pricing.ComputeTotals(svc.BasePrice, req.AdditionalCharges, req.Discount, discountType, s.taxRate)

	b := &domain.Booking{
		CustomerID:          customerID,
		ProviderID:          provider.ID,
		ServiceID:           svc.ID,
		ScheduledDate:       req.ScheduledDate.UTC(),
		EstimatedDuration:   duration,
		Address:             req.Address,
		ContactPhone:        req.ContactPhone,
		SpecialInstructions: req.SpecialInstructions,
		Status:              domain.BookingPending,
		StatusHistory: []domain.StatusChange{{
			Status:    domain.BookingPending,
			ChangedBy: customerID,
			ChangedAt: now,
			Reason:    "Booking created",
		}},
		Pricing: domain.Pricing{
			BaseAmount:        svc.BasePrice,
			AdditionalCharges: req.AdditionalCharges,
			Discount:          req.Discount,
			DiscountType:      discountType,
			TaxAmount:         taxAmount,
			TotalAmount:       totalAmount,
		},
		Payment:   domain.PaymentInfo{Status: domain.PaymentPending},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 0; ; attempt++ {
		b.BookingNumber = domain.GenerateBookingNumber(s.now())
		err = s.bookings.Create(ctx, b)
		if err == nil {
			break
		}
		if isDuplicateKey(err) && attempt < createRetries {
			continue
		}
		return nil, err
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyBookingCreated(ctx, provider.UserID, b)
	}

	return b, nil
}

// GetBooking loads a booking and enforces visibility: admins see everything,
// customers and providers only their own bookings.
func (s *Service) GetBooking(ctx context.Context, actorID int64, role string, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, actorID, role, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) authorize(ctx context.Context, actorID int64, role string, b *domain.Booking) error {
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

func (s *Service) ListBookings(ctx context.Context, actorID int64, role string, f repository.ListFilter) (*ListResponse, error) {
	var (
		items []domain.Booking
		total int64
		err   error
	)
	switch domain.Role(role) {
	case domain.RoleCustomer:
		items, total, err = s.bookings.ListByCustomer(ctx, actorID, f)
	case domain.RoleProvider:
		var p *domain.Provider
		p, err = s.providers.GetByUserID(ctx, actorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		items, total, err = s.bookings.ListByProvider(ctx, p.ID, f)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return &ListResponse{Bookings: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// ListBookingsForAdmin lists any customer's or provider's bookings. Role
// enforcement happens in the routing layer; exactly one owner filter must be
// supplied.
func (s *Service) ListBookingsForAdmin(ctx context.Context, customerID, providerID int64, f repository.ListFilter) (*ListResponse, error) {
	var (
		items []domain.Booking
		total int64
		err   error
	)
	switch {
	case customerID > 0:
		items, total, err = s.bookings.ListByCustomer(ctx, customerID, f)
	case providerID > 0:
		items, total, err = s.bookings.ListByProvider(ctx, providerID, f)
	default:
		return nil, ErrValidation
	}
	if err != nil {
		return nil, err
	}
	return &ListResponse{Bookings: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// UpcomingBookings returns the caller's pending and confirmed bookings
// scheduled from now onwards.
func (s *Service) UpcomingBookings(ctx context.Context, actorID int64, role string, limit int) ([]domain.Booking, error) {
	switch domain.Role(role) {
	case domain.RoleCustomer:
		return s.bookings.ListUpcoming(ctx, "customer_id", actorID, s.now().UTC(), limit)
	case domain.RoleProvider:
		p, err := s.providers.GetByUserID(ctx, actorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		return s.bookings.ListUpcoming(ctx, "provider_id", p.ID, s.now().UTC(), limit)
	default:
		return nil, ErrForbidden
	}
}

// UpdateStatus performs a status transition on behalf of the actor. Admins
// may request any legal transition, providers only on their own bookings,
// and customers may only cancel their own bookings (which CancelBooking
// handles with refund side effects).
func (s *Service) UpdateStatus(ctx context.Context, actorID int64, role string, bookingID int64, req UpdateStatusRequest) (*domain.Booking, error) {
	to := domain.BookingStatus(req.Status)
	switch to {
	case domain.BookingConfirmed, domain.BookingInProgress, domain.BookingCompleted, domain.BookingCancelled:
	default:
		return nil, ErrValidation
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, actorID, role, b); err != nil {
		return nil, err
	}
	if domain.Role(role) == domain.RoleCustomer && to != domain.BookingCancelled {
		return nil, ErrForbidden
	}

	updated, change, err := domain.ApplyTransition(*b, to, actorID, req.Reason, req.Comments, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if to == domain.BookingCancelled {
		updated.CancelledBy = cancelledByRole(role)
	}

	if err := s.bookings.ApplyTransition(ctx, &updated, b.Status, change); err != nil {
		if errors.Is(err, repository.ErrStaleBooking) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	if s.notifs != nil {
		switch to {
		case domain.BookingConfirmed:
			_ = s.notifs.NotifyBookingConfirmed(ctx, updated.CustomerID, &updated)
		case domain.BookingCancelled:
			_ = s.notifs.NotifyBookingCancelled(ctx, updated.CustomerID, &updated, req.Reason)
		}
	}

	return &updated, nil
}

func cancelledByRole(role string) domain.CancelledBy {
	switch domain.Role(role) {
	case domain.RoleAdmin:
		return domain.CancelledByAdmin
	case domain.RoleProvider:
		return domain.CancelledByProvider
	default:
		return domain.CancelledByCustomer
	}
}

// CancelBooking cancels with a mandatory reason and records the refund the
// customer is owed under the time-tiered policy. The refund itself is issued
// through the payment module; this only freezes the amount.
func (s *Service) CancelBooking(ctx context.Context, actorID int64, role string, bookingID int64, reason string) (*domain.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrValidation
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, actorID, role, b); err != nil {
		return nil, err
	}

	switch b.Status {
	case domain.BookingCompleted, domain.BookingInProgress, domain.BookingCancelled:
		return nil, ErrInvalidState
	}

	now := s.now().UTC()
	updated, change, err := domain.ApplyTransition(*b, domain.BookingCancelled, actorID, reason, "", now)
	if err != nil {
		return nil, err
	}
	updated.CancelledBy = cancelledByRole(role)
	if b.Payment.Status == domain.PaymentPaid {
		updated.RefundAmount = pricing.ComputeRefundAmount(b.Pricing.TotalAmount, b.ScheduledDate, now)
	}

	if err := s.bookings.ApplyTransition(ctx, &updated, b.Status, change); err != nil {
		if errors.Is(err, repository.ErrStaleBooking) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyBookingCancelled(ctx, updated.CustomerID, &updated, reason)
	}

	return &updated, nil
}

// AddWorkSummary lets the provider (or an admin) attach work details while
// the booking is in progress or just completed.
func (s *Service) AddWorkSummary(ctx context.Context, actorID int64, role string, bookingID int64, req WorkSummaryRequest) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, actorID, role, b); err != nil {
		return nil, err
	}
	if domain.Role(role) == domain.RoleCustomer {
		return nil, ErrForbidden
	}

	ws := &domain.WorkSummary{
		WorkStartTime:   req.WorkStartTime,
		WorkEndTime:     req.WorkEndTime,
		WorkDescription: req.WorkDescription,
		BeforeImages:    req.BeforeImages,
		AfterImages:     req.AfterImages,
		MaterialsUsed:   req.MaterialsUsed,
		AdditionalNotes: req.AdditionalNotes,
	}
	allowed := []domain.BookingStatus{domain.BookingInProgress, domain.BookingCompleted}
	if err := s.bookings.UpdateWorkSummary(ctx, bookingID, ws, allowed); err != nil {
		if errors.Is(err, repository.ErrStaleBooking) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	return s.bookings.GetByID(ctx, bookingID)
}
