package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"
)

type CreateRequestInput struct {
	ProfessionalID uint   `json:"professional_id" binding:"required"`
	ServiceType    string `json:"service_type" binding:"required"`
}

// RequestView is the poll read: the full row plus derived state.
type RequestView struct {
	*models.ServiceRequest
	CommunicationBlocked bool   `json:"communication_blocked"`
	PaymentStatus        string `json:"payment_status"`
	CallJoinable         bool   `json:"call_joinable"`
	LocationSharing      bool   `json:"location_sharing"`
}

func NewRequestView(req *models.ServiceRequest) *RequestView {
	blocked := req.CommunicationBlocked()
	return &RequestView{
		ServiceRequest:       req,
		CommunicationBlocked: blocked,
		PaymentStatus:        statusOf(req),
		CallJoinable:         req.VideoCallStatus == domain.VideoCallActive && !blocked && req.IsAccepted(),
		LocationSharing:      req.ServiceType == domain.ServiceTypeInPerson && req.IsAccepted(),
	}
}

type AcceptResult struct {
	Request       *RequestView         `json:"request"`
	Conversation  *models.Conversation `json:"conversation,omitempty"`
	PaymentPrompt *PaymentPrompt       `json:"payment_prompt,omitempty"`
}

// LifecycleService owns the request state machine.
type LifecycleService struct {
	store         *requestStore
	conversations *repository.ConversationRepository
	locations     *repository.LocationRepository
	payments      *PaymentService
	notifier      *NotificationService
}

func NewLifecycleService(
	requests *repository.RequestRepository,
	conversations *repository.ConversationRepository,
	locations *repository.LocationRepository,
	audit *repository.AuditLogRepository,
	payments *PaymentService,
	notifier *NotificationService,
	events EventPublisher,
) *LifecycleService {
	return &LifecycleService{
		store:         &requestStore{repo: requests, audit: audit, events: events},
		conversations: conversations,
		locations:     locations,
		payments:      payments,
		notifier:      notifier,
	}
}

func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, in CreateRequestInput) (*RequestView, error) {
	if !actor.IsClient() {
		return nil, appErrors.ErrWrongRole
	}
	if !domain.ValidServiceType(in.ServiceType) {
		return nil, appErrors.ErrInvalidServiceType
	}
	if in.ProfessionalID == 0 {
		return nil, appErrors.InvalidArg("professional_id is required")
	}
	if in.ProfessionalID == actor.UserID {
		return nil, appErrors.ErrSelfRequest
	}
	req := &models.ServiceRequest{
		ClientID:       actor.UserID,
		ProfessionalID: in.ProfessionalID,
		ServiceType:    in.ServiceType,
		Status:         domain.RequestStatusPending,
		Version:        1,
	}
	if err := s.store.repo.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "create request", err)
	}
	log.Printf("[LIFECYCLE] created request=%d client=%d professional=%d type=%s", req.ID, req.ClientID, req.ProfessionalID, req.ServiceType)
	s.store.publishRequest(req, relay.OpInsert)
	s.notifier.NotifyNewRequest(ctx, req)
	return NewRequestView(req), nil
}

func (s *LifecycleService) Get(ctx context.Context, actor domain.Actor, id uint) (*RequestView, error) {
	req, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return NewRequestView(req), nil
}

func (s *LifecycleService) ListMine(ctx context.Context, actor domain.Actor, limit, offset int) ([]*RequestView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.store.repo.ListByParticipant(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "list requests", err)
	}
	out := make([]*RequestView, 0, len(list))
	for i := range list {
		if checkParty(actor, &list[i]) != nil {
			continue
		}
		out = append(out, NewRequestView(&list[i]))
	}
	return out, nil
}

// transitionCheck validates moving req to status `to` on behalf of actor.
func transitionCheck(actor domain.Actor, to string) func(req *models.ServiceRequest) error {
	return func(req *models.ServiceRequest) error {
		if req.IsTerminal() {
			return appErrors.ErrTerminalState
		}
		role := domain.TransitionRole(req.Status, to)
		if role == "" {
			return appErrors.ErrInvalidTransition
		}
		if actor.Role != role {
			return appErrors.ErrWrongRole
		}
		return nil
	}
}

// terminalFields adds the columns every move into a terminal state writes:
// a live call is ended along with the request.
func terminalFields(req *models.ServiceRequest, fields map[string]interface{}) map[string]interface{} {
	if domain.IsLiveCall(req.VideoCallStatus) {
		fields["video_call_status"] = domain.VideoCallEnded
	}
	return fields
}

func (s *LifecycleService) afterTerminal(ctx context.Context, req *models.ServiceRequest) {
	if req.ServiceType != domain.ServiceTypeInPerson {
		return
	}
	if err := s.locations.DeactivateAll(ctx, req.ID); err != nil {
		log.Printf("[LIFECYCLE] deactivate locations request=%d: %v", req.ID, err)
	}
}

// Accept moves a pending request to accepted. A payment link is requested
// first so the gate is in place from the moment the row reads accepted;
// link failures are returned as a prompt and do not block acceptance.
func (s *LifecycleService) Accept(ctx context.Context, actor domain.Actor, id uint, expectedVersion int64) (*AcceptResult, error) {
	var (
		linkFields map[string]interface{}
		prompt     *PaymentPrompt
		linked     bool
	)
	req, err := s.store.apply(ctx, actor, id, expectedVersion, mutation{
		action: "accept",
		check:  transitionCheck(actor, domain.RequestStatusAccepted),
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			if !linked && s.payments != nil {
				linkFields, prompt = s.payments.linkForAccept(ctx, req)
				linked = true
			}
			fields := map[string]interface{}{
				"status":      domain.RequestStatusAccepted,
				"accepted_at": time.Now(),
			}
			for k, v := range linkFields {
				fields[k] = v
			}
			return fields, nil
		},
	})
	if err != nil {
		if linkFields != nil {
			log.Printf("[LIFECYCLE] accept request=%d failed after link was issued: %v", id, err)
		}
		return nil, err
	}
	log.Printf("[LIFECYCLE] accepted request=%d professional=%d gated=%v", req.ID, actor.UserID, req.PaymentLink != nil)

	result := &AcceptResult{Request: NewRequestView(req), PaymentPrompt: prompt}
	reqID := req.ID
	conv, err := s.conversations.GetOrCreate(ctx, req.ClientID, req.ProfessionalID, &reqID)
	if err != nil {
		log.Printf("[LIFECYCLE] conversation for request=%d: %v", req.ID, err)
	} else {
		result.Conversation = conv
	}
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyAccepted(ctx, req)
	return result, nil
}

// Reject requires confirmed to be set; the confirmation step is explicit.
func (s *LifecycleService) Reject(ctx context.Context, actor domain.Actor, id uint, confirmed bool, expectedVersion int64) (*RequestView, error) {
	if !confirmed {
		return nil, appErrors.ErrConfirmationRequired
	}
	req, err := s.store.apply(ctx, actor, id, expectedVersion, mutation{
		action: "reject",
		check:  transitionCheck(actor, domain.RequestStatusRejected),
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return terminalFields(req, map[string]interface{}{
				"status":      domain.RequestStatusRejected,
				"rejected_at": time.Now(),
			}), nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LIFECYCLE] rejected request=%d professional=%d", req.ID, actor.UserID)
	s.afterTerminal(ctx, req)
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyRejected(ctx, req)
	return NewRequestView(req), nil
}

// Cancel stores reason exactly as given; only its trimmed form must be
// non-empty.
func (s *LifecycleService) Cancel(ctx context.Context, actor domain.Actor, id uint, reason string, expectedVersion int64) (*RequestView, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.ErrReasonRequired
	}
	req, err := s.store.apply(ctx, actor, id, expectedVersion, mutation{
		action: "cancel",
		check:  transitionCheck(actor, domain.RequestStatusCancelled),
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return terminalFields(req, map[string]interface{}{
				"status":              domain.RequestStatusCancelled,
				"cancellation_reason": reason,
				"cancelled_at":        time.Now(),
			}), nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LIFECYCLE] cancelled request=%d client=%d", req.ID, actor.UserID)
	s.afterTerminal(ctx, req)
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyCancelled(ctx, req)
	return NewRequestView(req), nil
}

func (s *LifecycleService) Complete(ctx context.Context, actor domain.Actor, id uint, expectedVersion int64) (*RequestView, error) {
	req, err := s.store.apply(ctx, actor, id, expectedVersion, mutation{
		action: "complete",
		check:  transitionCheck(actor, domain.RequestStatusCompleted),
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return terminalFields(req, map[string]interface{}{
				"status":       domain.RequestStatusCompleted,
				"completed_at": time.Now(),
			}), nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LIFECYCLE] completed request=%d professional=%d", req.ID, actor.UserID)
	s.afterTerminal(ctx, req)
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyCompleted(ctx, req)
	return NewRequestView(req), nil
}

// Rate records the client's rating on a completed request, once.
func (s *LifecycleService) Rate(ctx context.Context, actor domain.Actor, id uint, rating int, comment string) (*RequestView, error) {
	if !actor.IsClient() {
		return nil, appErrors.ErrWrongRole
	}
	if rating < domain.MinRating || rating > domain.MaxRating {
		return nil, appErrors.ErrInvalidRating
	}
	req, err := s.store.apply(ctx, actor, id, 0, mutation{
		action: "rate",
		check: func(req *models.ServiceRequest) error {
			if req.Status != domain.RequestStatusCompleted {
				return appErrors.ErrNotCompleted
			}
			if req.Rating != nil {
				return appErrors.ErrAlreadyRated
			}
			return nil
		},
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return map[string]interface{}{
				"rating":         rating,
				"review_comment": strings.TrimSpace(comment),
				"rated_at":       time.Now(),
			}, nil
		},
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) && conflict.Current.Rating != nil {
			return nil, appErrors.ErrAlreadyRated
		}
		return nil, err
	}
	log.Printf("[LIFECYCLE] rated request=%d rating=%d", req.ID, rating)
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyRated(ctx, req)
	return NewRequestView(req), nil
}
