package relay

import (
	"sync"
	"time"
)

// Tables that produce change events.
const (
	TableServiceRequests  = "service_requests"
	TableMessages         = "messages"
	TableServiceLocations = "service_locations"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// Event is a best-effort row-change notice. Receivers treat it only as a
// hint to re-read; the row itself is never carried.
type Event struct {
	Table          string    `json:"table"`
	Op             string    `json:"op"`
	RowID          uint      `json:"row_id"`
	RequestID      uint      `json:"request_id,omitempty"`
	ConversationID uint      `json:"conversation_id,omitempty"`
	Audience       []uint    `json:"-"`
	At             time.Time `json:"at"`
}

// Subscription receives events addressed to one user.
type Subscription struct {
	UserID uint
	events chan Event
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// with a full buffer misses the event and catches up on its next poll.
type Hub struct {
	mu         sync.RWMutex
	byUser     map[uint]map[*Subscription]struct{}
	bufferSize int
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		byUser:     make(map[uint]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

func (h *Hub) Subscribe(userID uint) *Subscription {
	s := &Subscription{UserID: userID, events: make(chan Event, h.bufferSize), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Subscription]struct{})
	}
	h.byUser[userID][s] = struct{}{}
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[s.UserID]; m != nil {
		delete(m, s)
		if len(m) == 0 {
			delete(h.byUser, s.UserID)
		}
	}
	close(s.events)
}

// Publish delivers ev to every subscriber of every audience member. It
// returns the number of subscriptions the event was queued on.
func (h *Hub) Publish(ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	delivered := 0
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[uint]struct{}, len(ev.Audience))
	for _, userID := range ev.Audience {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for s := range h.byUser[userID] {
			select {
			case s.events <- ev:
				delivered++
			default:
			}
		}
	}
	return delivered
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byUser {
		n += len(m)
	}
	return n
}
