package repository

import (
	"context"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"

	"gorm.io/gorm"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RequestRepository) GetByID(ctx context.Context, id uint) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByParticipant returns requests where userID is the client or the
// professional, newest first.
func (r *RequestRepository) ListByParticipant(ctx context.Context, userID uint, limit, offset int) ([]models.ServiceRequest, error) {
	var list []models.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("client_id = ? OR professional_id = ?", userID, userID).
		Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// ListBetween returns every request between the pair, newest first.
func (r *RequestRepository) ListBetween(ctx context.Context, clientID, professionalID uint) ([]models.ServiceRequest, error) {
	var list []models.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND professional_id = ?", clientID, professionalID).
		Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

// UpdateIfVersion applies fields only when the stored version still equals
// version, bumping it by one. It reports whether the row was written.
func (r *RequestRepository) UpdateIfVersion(ctx context.Context, id uint, version int64, fields map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid flips payment_completed false -> true. It is the only write to
// that column and never runs in the other direction.
func (r *RequestRepository) MarkPaid(ctx context.Context, id uint, source string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"payment_completed": true,
		"payment_source":    source,
		"version":           gorm.Expr("version + 1"),
		"updated_at":        at,
	}
	if source == domain.PaymentSourceProvider {
		updates["payment_confirmed_at"] = at
	} else {
		updates["payment_self_reported_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND payment_completed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpgradeToProviderConfirmed records provider confirmation on a request that
// was opened by a self-report.
func (r *RequestRepository) UpgradeToProviderConfirmed(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND payment_completed = ? AND payment_source = ?", id, true, domain.PaymentSourceSelfReported).
		Updates(map[string]interface{}{
			"payment_source":       domain.PaymentSourceProvider,
			"payment_confirmed_at": at,
			"version":              gorm.Expr("version + 1"),
			"updated_at":           at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *RequestRepository) GetByPaymentReference(ctx context.Context, ref string) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", ref).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ListAwaitingPayment returns accepted requests with a provider reference
// that are not yet paid, oldest first.
func (r *RequestRepository) ListAwaitingPayment(ctx context.Context, limit int) ([]models.ServiceRequest, error) {
	var list []models.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_completed = ? AND payment_reference IS NOT NULL", domain.RequestStatusAccepted, false).
		Order("accepted_at ASC, id ASC").Limit(limit).Find(&list).Error
	return list, err
}

// SetPaymentSelfReported stamps a self-report on a request without opening
// the gate.
func (r *RequestRepository) SetPaymentSelfReported(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("id = ? AND payment_self_reported_at IS NULL", id).
		Update("payment_self_reported_at", at).Error
}

// CountPendingForProfessional feeds the professional's badge.
func (r *RequestRepository) CountPendingForProfessional(ctx context.Context, professionalID uint) (int64, error) {
	var c int64
	err := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Where("professional_id = ? AND status = ?", professionalID, domain.RequestStatusPending).
		Count(&c).Error
	return c, err
}
