package booking

import (
	"context"
	"time"

	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

// BookingRepository defines the persistence operations the booking service
// depends on.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID int64, f repository.ListFilter) ([]domain.Booking, int64, error)
	ListByProvider(ctx context.Context, providerID int64, f repository.ListFilter) ([]domain.Booking, int64, error)
	ListUpcoming(ctx context.Context, column string, ownerID int64, from time.Time, limit int) ([]domain.Booking, error)
	ApplyTransition(ctx context.Context, b *domain.Booking, prev domain.BookingStatus, change domain.StatusChange) error
	UpdateWorkSummary(ctx context.Context, id int64, ws *domain.WorkSummary, allowed []domain.BookingStatus) error
}

type ProviderRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Provider, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.Provider, error)
	OffersService(ctx context.Context, providerID, serviceID int64) (bool, error)
}

type ServiceRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
}

// NotificationSender delivers booking lifecycle events. Implementations are
// best-effort; errors are ignored by the service.
type NotificationSender interface {
	NotifyBookingCreated(ctx context.Context, recipientID int64, b *domain.Booking) error
	NotifyBookingConfirmed(ctx context.Context, recipientID int64, b *domain.Booking) error
	NotifyBookingCancelled(ctx context.Context, recipientID int64, b *domain.Booking, reason string) error
}
