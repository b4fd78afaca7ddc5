package domain

const (
	RoleClient       = "CLIENT"
	RoleProfessional = "PROFESSIONAL"
)

// User types stored on location rows.
const (
	UserTypeClient       = "client"
	UserTypeProfessional = "professional"
)

const (
	ServiceTypeMessage   = "message"
	ServiceTypeVideoCall = "video_call"
	ServiceTypeInPerson  = "in_person"
)

const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
	RequestStatusCompleted = "completed"
)

// Video call statuses. An empty status means no call.
const (
	VideoCallPending = "pending"
	VideoCallActive  = "active"
	VideoCallEnded   = "ended"
)

const (
	PaymentSourceProvider     = "provider"
	PaymentSourceSelfReported = "self_reported"
)

const (
	PaymentAccountConnected    = "connected"
	PaymentAccountNeedsRefresh = "needs_refresh"
	PaymentAccountDisconnected = "disconnected"
)

// Payment status values returned to the polling client.
const (
	PaymentStatusPaid        = "paid"
	PaymentStatusUnpaid      = "unpaid"
	PaymentStatusNotRequired = "not_required"
)

const (
	MinRating = 1
	MaxRating = 5
)

// DefaultCommissionPercent is the platform's cut applied to payment links.
const DefaultCommissionPercent = 10.0

func ValidServiceType(t string) bool {
	switch t {
	case ServiceTypeMessage, ServiceTypeVideoCall, ServiceTypeInPerson:
		return true
	}
	return false
}
