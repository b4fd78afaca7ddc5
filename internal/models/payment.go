package models

import "time"

// PaymentAccount is a professional's connected payment capability.
type PaymentAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProfessionalID uint      `gorm:"uniqueIndex;not null" json:"professional_id"`
	Provider       string    `gorm:"size:50;not null" json:"provider"`
	AccountRef     string    `gorm:"size:255;not null" json:"-"`
	Status         string    `gorm:"size:20;not null;index" json:"status"` // connected, needs_refresh, disconnected
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (PaymentAccount) TableName() string {
	return "payment_accounts"
}

// ProfessionalPrice is the read-only price floor per service type.
type ProfessionalPrice struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProfessionalID uint      `gorm:"not null;index:idx_price_pro_type" json:"professional_id"`
	ServiceType    string    `gorm:"size:20;not null;index:idx_price_pro_type" json:"service_type"`
	MinPriceCents  int64     `gorm:"not null" json:"min_price_cents"`
	Currency       string    `gorm:"size:3;default:'USD'" json:"currency"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ProfessionalPrice) TableName() string {
	return "professional_prices"
}
