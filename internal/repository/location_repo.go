package repository

import (
	"context"

	"carelink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Upsert overwrites the single row for (service_request_id, user_id).
func (r *LocationRepository) Upsert(ctx context.Context, loc *models.ServiceLocation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_request_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_type", "latitude", "longitude", "accuracy", "heading", "speed",
			"timestamp", "is_active", "updated_at",
		}),
	}).Create(loc).Error
}

func (r *LocationRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.ServiceLocation, error) {
	var list []models.ServiceLocation
	err := r.db.WithContext(ctx).Where("service_request_id = ?", requestID).Find(&list).Error
	return list, err
}

func (r *LocationRepository) Get(ctx context.Context, requestID, userID uint) (*models.ServiceLocation, error) {
	var loc models.ServiceLocation
	err := r.db.WithContext(ctx).
		Where("service_request_id = ? AND user_id = ?", requestID, userID).
		First(&loc).Error
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// Deactivate marks one actor's row inactive. The row is kept as the last
// known position.
func (r *LocationRepository) Deactivate(ctx context.Context, requestID, userID uint) error {
	return r.db.WithContext(ctx).Model(&models.ServiceLocation{}).
		Where("service_request_id = ? AND user_id = ?", requestID, userID).
		Update("is_active", false).Error
}

func (r *LocationRepository) DeactivateAll(ctx context.Context, requestID uint) error {
	return r.db.WithContext(ctx).Model(&models.ServiceLocation{}).
		Where("service_request_id = ? AND is_active = ?", requestID, true).
		Update("is_active", false).Error
}
