package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"servicehub/internal/domain"
)

type ProviderRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

type providerModel struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	UserID      int64     `gorm:"column:user_id;uniqueIndex"`
	IsAvailable bool      `gorm:"column:is_available"`
	Rating      float64   `gorm:"column:rating"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (providerModel) TableName() string { return "providers" }

// providerServiceModel links providers to the services they offer.
type providerServiceModel struct {
	ProviderID int64 `gorm:"column:provider_id;primaryKey"`
	ServiceID  int64 `gorm:"column:service_id;primaryKey"`
}

func (providerServiceModel) TableName() string { return "provider_services" }

func toDomainProvider(m providerModel) *domain.Provider {
	return &domain.Provider{
		ID:          m.ID,
		UserID:      m.UserID,
		IsAvailable: m.IsAvailable,
		Rating:      m.Rating,
	}
}

func (r *ProviderRepository) Create(ctx context.Context, p *domain.Provider) error {
	m := providerModel{
		UserID:      p.UserID,
		IsAvailable: p.IsAvailable,
		Rating:      p.Rating,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	p.ID = m.ID
	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, id int64) (*domain.Provider, error) {
	var m providerModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return toDomainProvider(m), nil
}

func (r *ProviderRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Provider, error) {
	var m providerModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return toDomainProvider(m), nil
}

// OffersService reports whether the provider is linked to the service.
func (r *ProviderRepository) OffersService(ctx context.Context, providerID, serviceID int64) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&providerServiceModel{}).
		Where("provider_id = ? AND service_id = ?", providerID, serviceID).
		Count(&cnt).Error
	if err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *ProviderRepository) LinkService(ctx context.Context, providerID, serviceID int64) error {
	return r.db.WithContext(ctx).Create(&providerServiceModel{ProviderID: providerID, ServiceID: serviceID}).Error
}
