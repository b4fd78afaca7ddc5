package payment

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks carelink/pkg/payment Provider

import "context"

// Outcome of a payment-link request.
type Outcome string

const (
	OutcomeLink            Outcome = "link"
	OutcomeNeedsConnection Outcome = "needs_connection"
	OutcomeNeedsRefresh    Outcome = "needs_refresh"
)

// LinkRequest asks the provider for a checkout link charging AmountCents
// against a request, paid out to the professional's AccountRef minus the
// platform commission.
type LinkRequest struct {
	RequestID         uint
	AccountRef        string
	AmountCents       int64
	Currency          string
	CommissionPercent float64
	Description       string
}

type LinkResult struct {
	Outcome   Outcome
	URL       string
	Reference string
}

type Provider interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error)
	VerifyPayment(ctx context.Context, reference string) (bool, error)
}

// CommissionCents returns the platform's cut of amountCents, rounded down.
func CommissionCents(amountCents int64, percent float64) int64 {
	if percent <= 0 || amountCents <= 0 {
		return 0
	}
	return int64(float64(amountCents) * percent / 100)
}
