package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"

	"gorm.io/gorm"
)

// maxCASAttempts bounds retries when a compare-and-swap loses to a change
// that leaves the requested transition legal.
const maxCASAttempts = 3

// EventPublisher is the change-notification relay as seen by services.
type EventPublisher interface {
	Publish(ev relay.Event) int
}

// ConflictError is returned when the other party changed the request first.
// Current is the row as it is now.
type ConflictError struct {
	Current *models.ServiceRequest
}

func (e *ConflictError) Error() string { return appErrors.ErrConflict.Error() }

func (e *ConflictError) Unwrap() error { return appErrors.ErrConflict }

// requestStore wraps the request repository with the read/CAS helpers every
// coordination service shares.
type requestStore struct {
	repo   *repository.RequestRepository
	audit  *repository.AuditLogRepository
	events EventPublisher
}

func (s *requestStore) load(ctx context.Context, id uint) (*models.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "load request", err)
	}
	return req, nil
}

// loadFor loads the request and checks actor is one of its parties.
func (s *requestStore) loadFor(ctx context.Context, actor domain.Actor, id uint) (*models.ServiceRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkParty(actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

// checkParty requires actor to be the party its role claims on req.
func checkParty(actor domain.Actor, req *models.ServiceRequest) error {
	switch {
	case actor.IsClient() && req.ClientID == actor.UserID:
		return nil
	case actor.IsProfessional() && req.ProfessionalID == actor.UserID:
		return nil
	}
	return appErrors.ErrNotParticipant
}

// mutation describes one compare-and-swap write to a request row.
type mutation struct {
	action string
	// check validates the row before writing; it runs again on every retry.
	check func(req *models.ServiceRequest) error
	// build returns the columns to write.
	build func(req *models.ServiceRequest) (map[string]interface{}, error)
}

// apply runs m against request id. expectedVersion 0 means the version just
// read; a non-zero value is enforced strictly. When the CAS misses the row is
// re-read and m.check runs again: a failure then means the peer got there
// first and is reported as a ConflictError.
func (s *requestStore) apply(ctx context.Context, actor domain.Actor, id uint, expectedVersion int64, m mutation) (*models.ServiceRequest, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		req, err := s.loadFor(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if attempt == 0 && expectedVersion != 0 && req.Version != expectedVersion {
			return nil, s.conflict(ctx, actor, req, m.action, expectedVersion)
		}
		if err := m.check(req); err != nil {
			if attempt > 0 {
				return nil, s.conflict(ctx, actor, req, m.action, expectedVersion)
			}
			return nil, err
		}
		fields, err := m.build(req)
		if err != nil {
			return nil, err
		}
		ok, err := s.repo.UpdateIfVersion(ctx, req.ID, req.Version, fields)
		if err != nil {
			return nil, appErrors.Wrap(appErrors.CodeInternal, "update request", err)
		}
		if ok {
			return s.load(ctx, id)
		}
		log.Printf("[CAS] %s request=%d version=%d lost race, attempt=%d", m.action, req.ID, req.Version, attempt+1)
		if expectedVersion != 0 {
			current, err := s.load(ctx, id)
			if err != nil {
				return nil, err
			}
			return nil, s.conflict(ctx, actor, current, m.action, expectedVersion)
		}
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, s.conflict(ctx, actor, current, m.action, expectedVersion)
}

func (s *requestStore) conflict(ctx context.Context, actor domain.Actor, current *models.ServiceRequest, action string, expectedVersion int64) error {
	log.Printf("[CAS] conflict action=%s request=%d actor=%d status=%s version=%d expected=%d",
		action, current.ID, actor.UserID, current.Status, current.Version, expectedVersion)
	s.auditLog(ctx, &actor.UserID, "request.conflict", current.ID, map[string]interface{}{
		"attempted":        action,
		"current_status":   current.Status,
		"current_version":  current.Version,
		"expected_version": expectedVersion,
	})
	return &ConflictError{Current: current}
}

func (s *requestStore) auditLog(ctx context.Context, userID *uint, action string, requestID uint, meta map[string]interface{}) {
	if s.audit == nil {
		return
	}
	b, _ := json.Marshal(meta)
	err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "service_request",
		ResourceID: fmt.Sprintf("%d", requestID),
		Metadata:   string(b),
	})
	if err != nil {
		log.Printf("[AUDIT] write %s request=%d: %v", action, requestID, err)
	}
}

// publishRequest tells both parties the request row changed.
func (s *requestStore) publishRequest(req *models.ServiceRequest, op string) {
	if s.events == nil {
		return
	}
	s.events.Publish(relay.Event{
		Table:     relay.TableServiceRequests,
		Op:        op,
		RowID:     req.ID,
		RequestID: req.ID,
		Audience:  []uint{req.ClientID, req.ProfessionalID},
	})
}
