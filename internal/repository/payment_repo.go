package repository

import (
	"context"
	"errors"

	"carelink/internal/models"

	"gorm.io/gorm"
)

type PaymentAccountRepository struct {
	db *gorm.DB
}

func NewPaymentAccountRepository(db *gorm.DB) *PaymentAccountRepository {
	return &PaymentAccountRepository{db: db}
}

func (r *PaymentAccountRepository) Create(ctx context.Context, a *models.PaymentAccount) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *PaymentAccountRepository) GetByProfessionalID(ctx context.Context, professionalID uint) (*models.PaymentAccount, error) {
	var a models.PaymentAccount
	err := r.db.WithContext(ctx).Where("professional_id = ?", professionalID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PaymentAccountRepository) UpdateStatus(ctx context.Context, professionalID uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentAccount{}).
		Where("professional_id = ?", professionalID).
		Update("status", status).Error
}

// PriceRepository is a read-only view of professional price floors.
type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// MinPriceCents returns the active floor for (professional, service type).
// found is false when no active price is configured.
func (r *PriceRepository) MinPriceCents(ctx context.Context, professionalID uint, serviceType string) (cents int64, found bool, err error) {
	var p models.ProfessionalPrice
	err = r.db.WithContext(ctx).
		Where("professional_id = ? AND service_type = ? AND is_active = ?", professionalID, serviceType, true).
		Order("min_price_cents ASC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p.MinPriceCents, true, nil
}
