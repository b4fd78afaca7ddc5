package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const stubPrefix = "stub_"

// StubProvider issues local links for development. Every stub reference is
// reported as paid.
type StubProvider struct {
	BaseURL string
}

func (s *StubProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	if req.AccountRef == "" {
		return &LinkResult{Outcome: OutcomeNeedsConnection}, nil
	}
	ref := fmt.Sprintf("%s%d_%s", stubPrefix, req.RequestID, uuid.NewString()[:8])
	base := s.BaseURL
	if base == "" {
		base = "http://localhost:8099/pay/"
	}
	return &LinkResult{Outcome: OutcomeLink, URL: base + ref, Reference: ref}, nil
}

func (s *StubProvider) VerifyPayment(ctx context.Context, reference string) (bool, error) {
	return strings.HasPrefix(reference, stubPrefix), nil
}
