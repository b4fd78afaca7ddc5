package service

import (
	"context"
	"log"
	"math"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/relay"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"
	"carelink/pkg/location"
)

// Sample is one device position reading.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationSnapshot is what either party polls: its own marker and the
// peer's. A nil Peer means the peer has not shared yet.
type LocationSnapshot struct {
	RequestID      uint                    `json:"request_id"`
	Self           *models.ServiceLocation `json:"self"`
	Peer           *models.ServiceLocation `json:"peer"`
	PeerShared     bool                    `json:"peer_shared"`
	DistanceMeters *float64                `json:"distance_meters,omitempty"`
	ETASeconds     int                     `json:"eta_seconds,omitempty"`
	Proximity      string                  `json:"proximity,omitempty"`
	Tracking       bool                    `json:"tracking"`
}

type LocationService struct {
	store     *requestStore
	locations *repository.LocationRepository
}

func NewLocationService(requests *repository.RequestRepository, locations *repository.LocationRepository, events EventPublisher) *LocationService {
	return &LocationService{
		store:     &requestStore{repo: requests, events: events},
		locations: locations,
	}
}

func trackable(req *models.ServiceRequest) error {
	if req.ServiceType != domain.ServiceTypeInPerson {
		return appErrors.ErrNotInPerson
	}
	if req.Status != domain.RequestStatusAccepted {
		return appErrors.ErrNotAccepted
	}
	return nil
}

// Report upserts the actor's row for the request. Each actor writes only
// its own row.
func (s *LocationService) Report(ctx context.Context, actor domain.Actor, requestID uint, in Sample) (*models.ServiceLocation, error) {
	if !(location.Point{Lat: in.Latitude, Lng: in.Longitude}).Valid() {
		return nil, appErrors.ErrInvalidLocation
	}
	if in.Accuracy < 0 || math.IsNaN(in.Accuracy) {
		return nil, appErrors.ErrInvalidLocation
	}
	req, err := s.store.loadFor(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if err := trackable(req); err != nil {
		return nil, err
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	loc := &models.ServiceLocation{
		ServiceRequestID: req.ID,
		UserID:           actor.UserID,
		UserType:         actor.UserType(),
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		Accuracy:         in.Accuracy,
		Heading:          in.Heading,
		Speed:            in.Speed,
		Timestamp:        ts,
		IsActive:         true,
	}
	if err := s.locations.Upsert(ctx, loc); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "store location", err)
	}
	s.publish(req, actor.UserID)
	return loc, nil
}

// Stop marks the actor's row inactive. The row is kept.
func (s *LocationService) Stop(ctx context.Context, actor domain.Actor, requestID uint) error {
	req, err := s.store.loadFor(ctx, actor, requestID)
	if err != nil {
		return err
	}
	if err := s.locations.Deactivate(ctx, req.ID, actor.UserID); err != nil {
		return appErrors.Wrap(appErrors.CodeInternal, "stop location", err)
	}
	log.Printf("[LOCATION] stopped request=%d user=%d", req.ID, actor.UserID)
	s.publish(req, actor.UserID)
	return nil
}

func (s *LocationService) Snapshot(ctx context.Context, actor domain.Actor, requestID uint) (*LocationSnapshot, error) {
	req, err := s.store.loadFor(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	rows, err := s.locations.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "load locations", err)
	}
	snap := &LocationSnapshot{
		RequestID: req.ID,
		Tracking:  trackable(req) == nil,
	}
	peerID := req.CounterpartOf(actor.UserID)
	for i := range rows {
		switch rows[i].UserID {
		case actor.UserID:
			snap.Self = &rows[i]
		case peerID:
			snap.Peer = &rows[i]
		}
	}
	snap.PeerShared = snap.Peer != nil
	if snap.Self != nil && snap.Peer != nil {
		d := location.DistanceMeters(
			location.Point{Lat: snap.Self.Latitude, Lng: snap.Self.Longitude},
			location.Point{Lat: snap.Peer.Latitude, Lng: snap.Peer.Longitude},
		)
		snap.DistanceMeters = &d
		snap.Proximity = location.ProximityLabel(d)
		if snap.Peer.IsActive {
			snap.ETASeconds = location.EstimateETASeconds(d, snap.Peer.Speed)
		}
	}
	return snap, nil
}

func (s *LocationService) publish(req *models.ServiceRequest, reporterID uint) {
	if s.store.events == nil {
		return
	}
	s.store.events.Publish(relay.Event{
		Table:     relay.TableServiceLocations,
		Op:        relay.OpUpdate,
		RequestID: req.ID,
		Audience:  []uint{req.CounterpartOf(reporterID)},
	})
}
