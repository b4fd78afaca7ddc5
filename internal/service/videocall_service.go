package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"

	"github.com/google/uuid"
)

// JoinInfo is everything a party needs to enter the external call room.
type JoinInfo struct {
	RequestID uint   `json:"request_id"`
	RoomID    string `json:"room_id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
}

// VideoCallService runs the initiate/accept rendezvous on the request row.
// The call medium itself is external; only the room id is managed here.
type VideoCallService struct {
	store       *requestStore
	notifier    *NotificationService
	roomBaseURL string
}

func NewVideoCallService(
	requests *repository.RequestRepository,
	audit *repository.AuditLogRepository,
	notifier *NotificationService,
	events EventPublisher,
	roomBaseURL string,
) *VideoCallService {
	return &VideoCallService{
		store:       &requestStore{repo: requests, audit: audit, events: events},
		notifier:    notifier,
		roomBaseURL: roomBaseURL,
	}
}

// NewRoomID returns an identifier unique per call attempt.
func NewRoomID(requestID uint, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("req%d-%d-%s", requestID, now.UnixMilli(), suffix)
}

func (s *VideoCallService) joinInfo(req *models.ServiceRequest) *JoinInfo {
	info := &JoinInfo{RequestID: req.ID, RoomID: req.VideoCallRoomID, Status: req.VideoCallStatus}
	if req.VideoCallRoomID != "" {
		info.URL = s.roomBaseURL + req.VideoCallRoomID
	}
	return info
}

// callable checks the request-level preconditions for entering a call.
func callable(req *models.ServiceRequest) error {
	if req.ServiceType != domain.ServiceTypeVideoCall {
		return appErrors.ErrNotVideoCall
	}
	if req.Status != domain.RequestStatusAccepted {
		return appErrors.ErrNotAccepted
	}
	if req.CommunicationBlocked() {
		return appErrors.ErrPaymentRequired
	}
	return nil
}

// Initiate rings the client with a fresh room. A pending or ended attempt is
// replaced; an active call is not.
func (s *VideoCallService) Initiate(ctx context.Context, actor domain.Actor, id uint) (*JoinInfo, error) {
	if !actor.IsProfessional() {
		return nil, appErrors.ErrWrongRole
	}
	req, err := s.store.apply(ctx, actor, id, 0, mutation{
		action: "video.initiate",
		check: func(req *models.ServiceRequest) error {
			if err := callable(req); err != nil {
				return err
			}
			if !domain.CanInitiateCall(req.VideoCallStatus) {
				return appErrors.ErrCallInProgress
			}
			return nil
		},
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return map[string]interface{}{
				"video_call_room_id": NewRoomID(req.ID, time.Now()),
				"video_call_status":  domain.VideoCallPending,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VIDEO] initiated request=%d room=%s", req.ID, req.VideoCallRoomID)
	s.store.publishRequest(req, relay.OpUpdate)
	s.notifier.NotifyIncomingCall(ctx, req)
	return s.joinInfo(req), nil
}

// Accept moves a pending call with a matching room id to active. Accepting
// the same room again once active changes nothing.
func (s *VideoCallService) Accept(ctx context.Context, actor domain.Actor, id uint, roomID string) (*JoinInfo, error) {
	if !actor.IsClient() {
		return nil, appErrors.ErrWrongRole
	}
	if roomID == "" {
		return nil, appErrors.InvalidArg("room_id is required")
	}
	current, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if current.VideoCallStatus == domain.VideoCallActive && current.VideoCallRoomID == roomID {
		if err := callable(current); err != nil {
			return nil, err
		}
		return s.joinInfo(current), nil
	}
	req, err := s.store.apply(ctx, actor, id, 0, mutation{
		action: "video.accept",
		check: func(req *models.ServiceRequest) error {
			if err := callable(req); err != nil {
				return err
			}
			if req.VideoCallStatus != domain.VideoCallPending {
				return appErrors.ErrCallNotPending
			}
			if req.VideoCallRoomID != roomID {
				return appErrors.ErrRoomMismatch
			}
			return nil
		},
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return map[string]interface{}{"video_call_status": domain.VideoCallActive}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VIDEO] accepted request=%d room=%s", req.ID, req.VideoCallRoomID)
	s.store.publishRequest(req, relay.OpUpdate)
	return s.joinInfo(req), nil
}

// Join returns the active room without writing anything.
func (s *VideoCallService) Join(ctx context.Context, actor domain.Actor, id uint) (*JoinInfo, error) {
	req, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := callable(req); err != nil {
		return nil, err
	}
	if req.VideoCallStatus != domain.VideoCallActive {
		return nil, appErrors.ErrCallNotActive
	}
	return s.joinInfo(req), nil
}

// Decline dismisses the ring on the client side. The room stays pending.
func (s *VideoCallService) Decline(ctx context.Context, actor domain.Actor, id uint) error {
	if !actor.IsClient() {
		return appErrors.ErrWrongRole
	}
	req, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return err
	}
	if req.VideoCallStatus != domain.VideoCallPending {
		return appErrors.ErrCallNotPending
	}
	log.Printf("[VIDEO] declined request=%d room=%s client=%d", req.ID, req.VideoCallRoomID, actor.UserID)
	return nil
}

// End closes a pending or active call. Ending an ended call is a no-op.
func (s *VideoCallService) End(ctx context.Context, actor domain.Actor, id uint) (*JoinInfo, error) {
	current, err := s.store.loadFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if current.VideoCallStatus == domain.VideoCallEnded {
		return s.joinInfo(current), nil
	}
	req, err := s.store.apply(ctx, actor, id, 0, mutation{
		action: "video.end",
		check: func(req *models.ServiceRequest) error {
			if !domain.IsLiveCall(req.VideoCallStatus) {
				return appErrors.ErrCallNotActive
			}
			return nil
		},
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return map[string]interface{}{"video_call_status": domain.VideoCallEnded}, nil
		},
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) && conflict.Current.VideoCallStatus == domain.VideoCallEnded {
			return s.joinInfo(conflict.Current), nil
		}
		return nil, err
	}
	log.Printf("[VIDEO] ended request=%d room=%s by=%d", req.ID, req.VideoCallRoomID, actor.UserID)
	s.store.publishRequest(req, relay.OpUpdate)
	return s.joinInfo(req), nil
}

// Reset clears an ended call back to none. Closed requests keep their
// last call state.
func (s *VideoCallService) Reset(ctx context.Context, actor domain.Actor, id uint) (*JoinInfo, error) {
	if !actor.IsProfessional() {
		return nil, appErrors.ErrWrongRole
	}
	req, err := s.store.apply(ctx, actor, id, 0, mutation{
		action: "video.reset",
		check: func(req *models.ServiceRequest) error {
			if req.IsTerminal() {
				return appErrors.ErrTerminalState
			}
			if req.VideoCallStatus != domain.VideoCallEnded {
				return appErrors.ErrCallNotEnded
			}
			return nil
		},
		build: func(req *models.ServiceRequest) (map[string]interface{}, error) {
			return map[string]interface{}{"video_call_room_id": "", "video_call_status": ""}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[VIDEO] reset request=%d", req.ID)
	s.store.publishRequest(req, relay.OpUpdate)
	return s.joinInfo(req), nil
}
