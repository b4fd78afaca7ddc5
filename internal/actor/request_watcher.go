package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"carelink/internal/domain"
	"carelink/internal/poll"
	"carelink/internal/relay"
	"carelink/internal/service"
)

// RequestSource is the poll read for one request.
type RequestSource interface {
	Get(ctx context.Context, actor domain.Actor, id uint) (*service.RequestView, error)
}

// PaymentSource answers the client's payment poll. Calling it may confirm
// the payment with the provider as a side effect.
type PaymentSource interface {
	Status(ctx context.Context, actor domain.Actor, id uint) (*service.PaymentStatusView, error)
}

// EventSource is the optional change-notification relay.
type EventSource interface {
	Subscribe(userID uint) *relay.Subscription
}

// RequestObserver receives transitions seen by a RequestWatcher. Any field
// may be nil.
type RequestObserver struct {
	// OnStatusChange fires on the first snapshot (prev is nil) and whenever
	// the status differs from the previous snapshot.
	OnStatusChange func(prev, cur *service.RequestView)
	OnGateCleared  func(cur *service.RequestView)
	// OnIncomingCall fires for the client when a new pending room appears.
	OnIncomingCall func(cur *service.RequestView)
	OnCallActive   func(cur *service.RequestView)
	OnCallEnded    func(cur *service.RequestView)
	// OnConflict fires when a write made through the watcher lost a race.
	// The conflict's current row is passed along and a refresh is queued.
	OnConflict func(current *service.RequestView)
}

// RequestWatcher keeps one actor's view of one request current by polling
// and, when a relay is available, refreshing early on change events.
type RequestWatcher struct {
	actor     domain.Actor
	requestID uint
	requests  RequestSource
	payments  PaymentSource
	events    EventSource
	interval  time.Duration
	observer  RequestObserver

	trigger chan struct{}

	mu   sync.Mutex
	last *service.RequestView
}

type RequestWatcherConfig struct {
	Actor     domain.Actor
	RequestID uint
	Requests  RequestSource
	Payments  PaymentSource // optional; only consulted for clients
	Events    EventSource   // optional
	Interval  time.Duration
	Observer  RequestObserver
}

func NewRequestWatcher(cfg RequestWatcherConfig) *RequestWatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Second
	}
	return &RequestWatcher{
		actor:     cfg.Actor,
		requestID: cfg.RequestID,
		requests:  cfg.Requests,
		payments:  cfg.Payments,
		events:    cfg.Events,
		interval:  cfg.Interval,
		observer:  cfg.Observer,
		trigger:   poll.NewTrigger(),
	}
}

// Run polls until ctx is cancelled.
func (w *RequestWatcher) Run(ctx context.Context) error {
	if w.events != nil {
		sub := w.events.Subscribe(w.actor.UserID)
		defer sub.Close()
		go forwardEvents(ctx, sub, w.trigger, func(ev relay.Event) bool {
			return ev.Table == relay.TableServiceRequests && ev.RequestID == w.requestID
		})
	}

	loop := &poll.Loop[*service.RequestView]{
		Name:     "request",
		Interval: w.interval,
		Trigger:  w.trigger,
		Fetch:    w.fetch,
		Apply:    w.apply,
	}
	return loop.Run(ctx)
}

// Refresh queues an immediate poll.
func (w *RequestWatcher) Refresh() { poll.Nudge(w.trigger) }

// Latest returns the most recently applied snapshot, or nil before the
// first successful poll.
func (w *RequestWatcher) Latest() *service.RequestView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// HandleWriteError inspects the error from a write made on this request. A
// lost race is reported to OnConflict and triggers a refresh; it returns
// true in that case.
func (w *RequestWatcher) HandleWriteError(err error) bool {
	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		return false
	}
	if w.observer.OnConflict != nil && conflict.Current != nil {
		w.observer.OnConflict(service.NewRequestView(conflict.Current))
	}
	w.Refresh()
	return true
}

func (w *RequestWatcher) fetch(ctx context.Context) (*service.RequestView, error) {
	view, err := w.requests.Get(ctx, w.actor, w.requestID)
	if err != nil {
		return nil, err
	}
	if !w.actor.IsClient() || w.payments == nil || view.PaymentStatus != domain.PaymentStatusUnpaid {
		return view, nil
	}
	status, err := w.payments.Status(ctx, w.actor, w.requestID)
	if err != nil {
		return nil, err
	}
	if status.Status == domain.PaymentStatusPaid {
		// The payment poll confirmed with the provider; re-read so the
		// snapshot carries the cleared gate.
		return w.requests.Get(ctx, w.actor, w.requestID)
	}
	return view, nil
}

func (w *RequestWatcher) apply(cur *service.RequestView) {
	w.mu.Lock()
	prev := w.last
	w.last = cur
	w.mu.Unlock()
	w.dispatch(prev, cur)
}

func (w *RequestWatcher) dispatch(prev, cur *service.RequestView) {
	o := w.observer
	if (prev == nil || prev.Status != cur.Status) && o.OnStatusChange != nil {
		o.OnStatusChange(prev, cur)
	}
	if prev != nil && prev.CommunicationBlocked && !cur.CommunicationBlocked && o.OnGateCleared != nil {
		o.OnGateCleared(cur)
	}

	prevCall, prevRoom := "", ""
	if prev != nil {
		prevCall, prevRoom = prev.VideoCallStatus, prev.VideoCallRoomID
	}
	curRoom := cur.VideoCallRoomID
	switch cur.VideoCallStatus {
	case domain.VideoCallPending:
		newRoom := prevCall != domain.VideoCallPending || prevRoom != curRoom
		if w.actor.IsClient() && newRoom && o.OnIncomingCall != nil {
			o.OnIncomingCall(cur)
		}
	case domain.VideoCallActive:
		if (prevCall != domain.VideoCallActive || prevRoom != curRoom) && o.OnCallActive != nil {
			o.OnCallActive(cur)
		}
	case domain.VideoCallEnded:
		if domain.IsLiveCall(prevCall) && o.OnCallEnded != nil {
			o.OnCallEnded(cur)
		}
	}
}

// forwardEvents turns matching relay events into poll nudges until ctx ends
// or the subscription closes.
func forwardEvents(ctx context.Context, sub *relay.Subscription, trigger chan<- struct{}, match func(relay.Event) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if match(ev) {
				poll.Nudge(trigger)
			}
		}
	}
}
