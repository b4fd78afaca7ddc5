package models

import "time"

// ServiceLocation holds the latest sample per (request, user). Rows are
// upserted in place and deactivated, never deleted.
type ServiceLocation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ServiceRequestID uint      `gorm:"not null;uniqueIndex:idx_location_request_user" json:"service_request_id"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_location_request_user" json:"user_id"`
	UserType         string    `gorm:"size:20;not null" json:"user_type"` // client, professional
	Latitude         float64   `gorm:"type:decimal(10,8);not null" json:"latitude"`
	Longitude        float64   `gorm:"type:decimal(11,8);not null" json:"longitude"`
	Accuracy         float64   `gorm:"type:decimal(8,2)" json:"accuracy"`
	Heading          *float64  `json:"heading"`
	Speed            *float64  `json:"speed"`
	Timestamp        time.Time `gorm:"not null" json:"timestamp"`
	IsActive         bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ServiceLocation) TableName() string {
	return "service_locations"
}
