package actor

import (
	"context"
	"sync"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/poll"
	"carelink/internal/relay"
)

// MessageSource returns a conversation's full history, oldest first.
type MessageSource interface {
	List(ctx context.Context, actor domain.Actor, conversationID uint, since *time.Time) ([]models.Message, error)
}

// MessageWatcher polls one conversation and hands each message to
// OnMessages exactly once. The history is re-read on every cycle; messages
// already dispatched are filtered out by id.
type MessageWatcher struct {
	actor          domain.Actor
	conversationID uint
	messages       MessageSource
	events         EventSource
	interval       time.Duration

	// OnMessages receives messages not seen before plus the number of
	// counterpart messages still unread in the whole history.
	OnMessages func(fresh []models.Message, unread int)

	trigger chan struct{}

	mu     sync.Mutex
	seen   map[uint]struct{}
	unread int
}

func NewMessageWatcher(actor domain.Actor, conversationID uint, messages MessageSource, events EventSource, interval time.Duration) *MessageWatcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &MessageWatcher{
		actor:          actor,
		conversationID: conversationID,
		messages:       messages,
		events:         events,
		interval:       interval,
		trigger:        poll.NewTrigger(),
		seen:           make(map[uint]struct{}),
	}
}

func (w *MessageWatcher) Run(ctx context.Context) error {
	if w.events != nil {
		sub := w.events.Subscribe(w.actor.UserID)
		defer sub.Close()
		go forwardEvents(ctx, sub, w.trigger, func(ev relay.Event) bool {
			return ev.Table == relay.TableMessages && ev.ConversationID == w.conversationID
		})
	}
	loop := &poll.Loop[[]models.Message]{
		Name:     "messages",
		Interval: w.interval,
		Trigger:  w.trigger,
		Fetch: func(ctx context.Context) ([]models.Message, error) {
			return w.messages.List(ctx, w.actor, w.conversationID, nil)
		},
		Apply: w.apply,
	}
	return loop.Run(ctx)
}

func (w *MessageWatcher) Refresh() { poll.Nudge(w.trigger) }

// Unread is the unread count from the latest poll.
func (w *MessageWatcher) Unread() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unread
}

func (w *MessageWatcher) apply(history []models.Message) {
	var fresh []models.Message
	unread := 0
	w.mu.Lock()
	for _, m := range history {
		if m.SenderID != w.actor.UserID && !m.IsRead {
			unread++
		}
		if _, ok := w.seen[m.ID]; ok {
			continue
		}
		w.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	w.unread = unread
	w.mu.Unlock()

	if len(fresh) > 0 && w.OnMessages != nil {
		w.OnMessages(fresh, unread)
	}
}
