package actor

import (
	"context"
	"log"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/poll"
	"carelink/internal/relay"
	"carelink/internal/service"
	appErrors "carelink/pkg/errors"
)

// Geolocator streams high-accuracy device positions until ctx ends.
type Geolocator interface {
	Watch(ctx context.Context) (<-chan service.Sample, error)
}

// LocationWriter persists the actor's own position row.
type LocationWriter interface {
	Report(ctx context.Context, actor domain.Actor, requestID uint, in service.Sample) (*models.ServiceLocation, error)
	Stop(ctx context.Context, actor domain.Actor, requestID uint) error
}

// LocationReporter forwards every geolocator sample to the store while it
// runs and marks the row inactive when it stops.
type LocationReporter struct {
	actor     domain.Actor
	requestID uint
	geo       Geolocator
	writer    LocationWriter
}

func NewLocationReporter(actor domain.Actor, requestID uint, geo Geolocator, writer LocationWriter) *LocationReporter {
	return &LocationReporter{actor: actor, requestID: requestID, geo: geo, writer: writer}
}

// Run reports samples until ctx ends, the geolocator closes its channel, or
// the request stops being trackable. Transient write errors are logged and
// the next sample is tried.
func (r *LocationReporter) Run(ctx context.Context) error {
	samples, err := r.geo.Watch(ctx)
	if err != nil {
		return err
	}
	defer r.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			if _, err := r.writer.Report(ctx, r.actor, r.requestID, s); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				switch appErrors.CodeOf(err) {
				case appErrors.CodeFailedPrecondition, appErrors.CodePermissionDenied, appErrors.CodeNotFound:
					return err
				}
				log.Printf("[LOCATION] report request=%d user=%d: %v", r.requestID, r.actor.UserID, err)
			}
		}
	}
}

func (r *LocationReporter) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.writer.Stop(ctx, r.actor, r.requestID); err != nil {
		log.Printf("[LOCATION] stop request=%d user=%d: %v", r.requestID, r.actor.UserID, err)
	}
}

// SnapshotSource returns both location rows for a request.
type SnapshotSource interface {
	Snapshot(ctx context.Context, actor domain.Actor, requestID uint) (*service.LocationSnapshot, error)
}

// WatchLocations polls the request's location snapshot and hands each one
// to onSnapshot until ctx ends. Relay events for the request force an early
// read when events is non-nil.
func WatchLocations(ctx context.Context, actor domain.Actor, requestID uint, src SnapshotSource, events EventSource, interval time.Duration, onSnapshot func(*service.LocationSnapshot)) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	trigger := poll.NewTrigger()
	if events != nil {
		sub := events.Subscribe(actor.UserID)
		defer sub.Close()
		go forwardEvents(ctx, sub, trigger, func(ev relay.Event) bool {
			return ev.Table == relay.TableServiceLocations && ev.RequestID == requestID
		})
	}
	loop := &poll.Loop[*service.LocationSnapshot]{
		Name:     "locations",
		Interval: interval,
		Trigger:  trigger,
		Fetch: func(ctx context.Context) (*service.LocationSnapshot, error) {
			return src.Snapshot(ctx, actor, requestID)
		},
		Apply: onSnapshot,
	}
	return loop.Run(ctx)
}
