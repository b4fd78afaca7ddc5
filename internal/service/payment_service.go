package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"carelink/config"
	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"
	"carelink/pkg/payment"

	"gorm.io/gorm"
)

// Reasons attached to a PaymentPrompt.
const (
	PromptNeedsConnection = "needs_connection"
	PromptNeedsRefresh    = "needs_refresh"
	PromptProviderError   = "provider_error"
)

// PaymentPrompt is the actionable message returned to a professional whose
// acceptance went through without a payment link.
type PaymentPrompt struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// PaymentStatusView answers the client's payment poll.
type PaymentStatusView struct {
	RequestID   uint    `json:"request_id"`
	Status      string  `json:"status"` // paid, unpaid, not_required
	PaymentLink *string `json:"payment_link,omitempty"`
	Source      *string `json:"payment_source,omitempty"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
}

// PaymentService owns the payment gate. Provider confirmation is
// authoritative; a client's self-report is audit-logged and opens the gate
// only when configured to.
type PaymentService struct {
	store    *requestStore
	accounts *repository.PaymentAccountRepository
	prices   *repository.PriceRepository
	provider payment.Provider
	notifier *NotificationService
	cfg      config.PaymentConfig
}

func NewPaymentService(
	requests *repository.RequestRepository,
	accounts *repository.PaymentAccountRepository,
	prices *repository.PriceRepository,
	audit *repository.AuditLogRepository,
	provider payment.Provider,
	notifier *NotificationService,
	events EventPublisher,
	cfg config.PaymentConfig,
) *PaymentService {
	return &PaymentService{
		store:    &requestStore{repo: requests, audit: audit, events: events},
		accounts: accounts,
		prices:   prices,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Gate reports whether communication on req is blocked pending payment.
func (s *PaymentService) Gate(req *models.ServiceRequest) bool {
	return req.CommunicationBlocked()
}

func statusOf(req *models.ServiceRequest) string {
	switch {
	case req.PaymentCompleted:
		return domain.PaymentStatusPaid
	case req.PaymentLink == nil:
		return domain.PaymentStatusNotRequired
	}
	return domain.PaymentStatusUnpaid
}

// Status is the payment poll. An unpaid request with a provider reference is
// checked against the provider; a provider failure leaves it unpaid until
// the next poll.
func (s *PaymentService) Status(ctx context.Context, actor domain.Actor, id uint) (*PaymentStatusView, error) {
	req, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if statusOf(req) == domain.PaymentStatusUnpaid && req.PaymentReference != nil && s.provider != nil {
		paid, err := s.provider.VerifyPayment(ctx, *req.PaymentReference)
		if err != nil {
			log.Printf("[PAYMENT] verify request=%d ref=%s: %v", req.ID, *req.PaymentReference, err)
		} else if paid {
			if updated, err := s.markProviderPaid(ctx, req); err == nil {
				req = updated
			}
		}
	}
	return viewOf(req), nil
}

func viewOf(req *models.ServiceRequest) *PaymentStatusView {
	return &PaymentStatusView{
		RequestID:   req.ID,
		Status:      statusOf(req),
		PaymentLink: req.PaymentLink,
		Source:      req.PaymentSource,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}
}

// ConfirmFromProvider records an authoritative confirmation for reference.
func (s *PaymentService) ConfirmFromProvider(ctx context.Context, reference string) (*models.ServiceRequest, error) {
	req, err := s.store.repo.GetByPaymentReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "load request by reference", err)
	}
	return s.markProviderPaid(ctx, req)
}

func (s *PaymentService) markProviderPaid(ctx context.Context, req *models.ServiceRequest) (*models.ServiceRequest, error) {
	now := time.Now()
	flipped, err := s.store.repo.MarkPaid(ctx, req.ID, domain.PaymentSourceProvider, now)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "mark paid", err)
	}
	upgraded := false
	if !flipped {
		upgraded, err = s.store.repo.UpgradeToProviderConfirmed(ctx, req.ID, now)
		if err != nil {
			return nil, appErrors.Wrap(appErrors.CodeInternal, "confirm self-reported payment", err)
		}
	}
	updated, err := s.store.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if flipped || upgraded {
		log.Printf("[PAYMENT] provider confirmed request=%d flipped=%v", req.ID, flipped)
		s.store.auditLog(ctx, nil, "payment.provider_confirmed", req.ID, map[string]interface{}{
			"reference": deref(req.PaymentReference),
			"upgraded":  upgraded,
		})
		s.store.publishRequest(updated, relay.OpUpdate)
	}
	switch {
	case flipped && updated.IsTerminal():
		// Recorded for reconciliation; neither party is told of a payment
		// on a request that is already closed.
		log.Printf("[PAYMENT] late confirmation request=%d status=%s", updated.ID, updated.Status)
	case flipped:
		s.notifier.NotifyPaymentConfirmed(ctx, updated)
	}
	return updated, nil
}

// SelfReport records the client's claim that it paid. The claim is always
// audit-logged; it opens the gate only when AllowSelfReport is set, and
// otherwise triggers an immediate provider check.
func (s *PaymentService) SelfReport(ctx context.Context, actor domain.Actor, id uint) (*PaymentStatusView, error) {
	if !actor.IsClient() {
		return nil, appErrors.ErrWrongRole
	}
	req, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusAccepted {
		return nil, appErrors.ErrNotAccepted
	}
	if req.PaymentLink == nil {
		return nil, appErrors.FailedPrecondition("no payment is due on this request")
	}
	if req.PaymentCompleted {
		return viewOf(req), nil
	}
	s.store.auditLog(ctx, &actor.UserID, "payment.self_report", req.ID, map[string]interface{}{
		"reference":    deref(req.PaymentReference),
		"opens_gate":   s.cfg.AllowSelfReport,
		"amount_cents": req.AmountCents,
	})
	now := time.Now()
	if s.cfg.AllowSelfReport {
		flipped, err := s.store.repo.MarkPaid(ctx, req.ID, domain.PaymentSourceSelfReported, now)
		if err != nil {
			return nil, appErrors.Wrap(appErrors.CodeInternal, "mark paid", err)
		}
		log.Printf("[PAYMENT] self-report request=%d client=%d flipped=%v", req.ID, actor.UserID, flipped)
		updated, err := s.store.load(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if flipped {
			s.store.publishRequest(updated, relay.OpUpdate)
		}
		return viewOf(updated), nil
	}
	if err := s.store.repo.SetPaymentSelfReported(ctx, req.ID, now); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "record self-report", err)
	}
	log.Printf("[PAYMENT] self-report request=%d client=%d recorded, awaiting provider", req.ID, actor.UserID)
	return s.Status(ctx, actor, id)
}

// linkForAccept computes the charge and obtains a payment link for a request
// about to be accepted. Any failure is non-fatal: it comes back as a prompt
// and the request is accepted without a link.
func (s *PaymentService) linkForAccept(ctx context.Context, req *models.ServiceRequest) (map[string]interface{}, *PaymentPrompt) {
	acct, err := s.accounts.GetByProfessionalID(ctx, req.ProfessionalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &PaymentPrompt{Reason: PromptNeedsConnection, Message: "Connect your payment account to get paid through the app"}
	}
	if err != nil {
		log.Printf("[PAYMENT] load account professional=%d: %v", req.ProfessionalID, err)
		return nil, &PaymentPrompt{Reason: PromptProviderError, Message: "Payment link could not be created"}
	}
	switch acct.Status {
	case domain.PaymentAccountNeedsRefresh:
		return nil, &PaymentPrompt{Reason: PromptNeedsRefresh, Message: "Finish setting up your payment account"}
	case domain.PaymentAccountConnected:
	default:
		return nil, &PaymentPrompt{Reason: PromptNeedsConnection, Message: "Connect your payment account to get paid through the app"}
	}

	amount, err := s.chargeFor(ctx, req)
	if err != nil {
		log.Printf("[PAYMENT] price lookup request=%d: %v", req.ID, err)
		return nil, &PaymentPrompt{Reason: PromptProviderError, Message: "Payment link could not be created"}
	}
	res, err := s.provider.CreatePaymentLink(ctx, payment.LinkRequest{
		RequestID:         req.ID,
		AccountRef:        acct.AccountRef,
		AmountCents:       amount,
		Currency:          s.cfg.Currency,
		CommissionPercent: s.commission(),
		Description:       fmt.Sprintf("%s service request #%d", humanServiceType(req.ServiceType), req.ID),
	})
	if err != nil {
		log.Printf("[PAYMENT] create link request=%d: %v", req.ID, err)
		return nil, &PaymentPrompt{Reason: PromptProviderError, Message: "Payment link could not be created"}
	}
	switch res.Outcome {
	case payment.OutcomeNeedsConnection:
		s.updateAccountStatus(ctx, req.ProfessionalID, domain.PaymentAccountDisconnected)
		return nil, &PaymentPrompt{Reason: PromptNeedsConnection, Message: "Connect your payment account to get paid through the app"}
	case payment.OutcomeNeedsRefresh:
		s.updateAccountStatus(ctx, req.ProfessionalID, domain.PaymentAccountNeedsRefresh)
		return nil, &PaymentPrompt{Reason: PromptNeedsRefresh, Message: "Finish setting up your payment account"}
	}
	if res.URL == "" {
		log.Printf("[PAYMENT] provider returned empty link request=%d", req.ID)
		return nil, &PaymentPrompt{Reason: PromptProviderError, Message: "Payment link could not be created"}
	}
	log.Printf("[PAYMENT] link created request=%d amount=%d ref=%s", req.ID, amount, res.Reference)
	fields := map[string]interface{}{
		"payment_link": res.URL,
		"amount_cents": amount,
		"currency":     s.cfg.Currency,
	}
	if res.Reference != "" {
		fields["payment_reference"] = res.Reference
	}
	return fields, nil
}

func (s *PaymentService) chargeFor(ctx context.Context, req *models.ServiceRequest) (int64, error) {
	cents, found, err := s.prices.MinPriceCents(ctx, req.ProfessionalID, req.ServiceType)
	if err != nil {
		return 0, err
	}
	if found && cents > 0 {
		return cents, nil
	}
	return s.cfg.FallbackPriceCents, nil
}

func (s *PaymentService) commission() float64 {
	if s.cfg.CommissionPercent > 0 {
		return s.cfg.CommissionPercent
	}
	return domain.DefaultCommissionPercent
}

func (s *PaymentService) updateAccountStatus(ctx context.Context, professionalID uint, status string) {
	if err := s.accounts.UpdateStatus(ctx, professionalID, status); err != nil {
		log.Printf("[PAYMENT] account status professional=%d: %v", professionalID, err)
	}
}

// ReconcileAwaiting asks the provider about up to limit unpaid requests and
// confirms the ones it reports paid.
func (s *PaymentService) ReconcileAwaiting(ctx context.Context, limit int) (int, error) {
	list, err := s.store.repo.ListAwaitingPayment(ctx, limit)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for i := range list {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}
		req := &list[i]
		paid, err := s.provider.VerifyPayment(ctx, *req.PaymentReference)
		if err != nil {
			log.Printf("[PAYMENT] reconcile verify request=%d: %v", req.ID, err)
			continue
		}
		if !paid {
			continue
		}
		if _, err := s.markProviderPaid(ctx, req); err != nil {
			log.Printf("[PAYMENT] reconcile confirm request=%d: %v", req.ID, err)
			continue
		}
		confirmed++
	}
	return confirmed, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
