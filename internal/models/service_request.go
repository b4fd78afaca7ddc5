package models

import (
	"time"

	"carelink/internal/domain"
)

// ServiceRequest is the shared row both parties poll. Rows are never
// deleted; terminal statuses are final.
type ServiceRequest struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ClientID       uint   `gorm:"not null;index" json:"client_id"`
	ProfessionalID uint   `gorm:"not null;index" json:"professional_id"`
	ServiceType    string `gorm:"size:20;not null" json:"service_type"`       // message, video_call, in_person
	Status         string `gorm:"size:20;not null;index" json:"status"`       // pending, accepted, rejected, cancelled, completed
	AmountCents    int64  `gorm:"not null;default:0" json:"amount_cents"`     // charge computed at acceptance
	Currency       string `gorm:"size:3;default:'USD'" json:"currency"`

	PaymentLink           *string    `gorm:"size:1024" json:"payment_link"`
	PaymentReference      *string    `gorm:"size:255;index" json:"payment_reference"`
	PaymentCompleted      bool       `gorm:"not null;default:false;index" json:"payment_completed"`
	PaymentSource         *string    `gorm:"size:20" json:"payment_source"`
	PaymentSelfReportedAt *time.Time `json:"payment_self_reported_at"`
	PaymentConfirmedAt    *time.Time `json:"payment_confirmed_at"`

	// Empty video call status means no call.
	VideoCallRoomID string `gorm:"size:100" json:"video_call_room_id"`
	VideoCallStatus string `gorm:"size:20" json:"video_call_status"`

	CancellationReason string `gorm:"type:text" json:"cancellation_reason"`
	Rating             *int   `json:"rating"`
	ReviewComment      string `gorm:"type:text" json:"review_comment"`

	Version int64 `gorm:"not null;default:1" json:"version"`

	AcceptedAt  *time.Time `json:"accepted_at"`
	RejectedAt  *time.Time `json:"rejected_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	RatedAt     *time.Time `json:"rated_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ServiceRequest) TableName() string {
	return "service_requests"
}

func (r *ServiceRequest) IsAccepted() bool { return r.Status == domain.RequestStatusAccepted }

func (r *ServiceRequest) IsTerminal() bool { return domain.IsTerminal(r.Status) }

// IsParticipant reports whether userID is the client or the professional.
func (r *ServiceRequest) IsParticipant(userID uint) bool {
	return r.ClientID == userID || r.ProfessionalID == userID
}

// CounterpartOf returns the other participant's id.
func (r *ServiceRequest) CounterpartOf(userID uint) uint {
	if r.ClientID == userID {
		return r.ProfessionalID
	}
	return r.ClientID
}

// CommunicationBlocked is the payment gate: an accepted request with an
// outstanding payment link blocks messaging and call entry.
func (r *ServiceRequest) CommunicationBlocked() bool {
	return r.Status == domain.RequestStatusAccepted && r.PaymentLink != nil && !r.PaymentCompleted
}
