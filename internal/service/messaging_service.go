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

	"gorm.io/gorm"
)

const maxMessageLength = 4000

type SendMessageInput struct {
	Content  string `json:"content"`
	MediaURL string `json:"media_url"`
}

// MessagingService is the per-pair message log. Sending is gated on payment
// at this boundary, not only in the client.
type MessagingService struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	requests      *repository.RequestRepository
	notifier      *NotificationService
	events        EventPublisher
}

func NewMessagingService(
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	requests *repository.RequestRepository,
	notifier *NotificationService,
	events EventPublisher,
) *MessagingService {
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		requests:      requests,
		notifier:      notifier,
		events:        events,
	}
}

// StartConversation gets or creates the conversation between actor and
// counterpartID. When requestID is given it must belong to the pair.
func (s *MessagingService) StartConversation(ctx context.Context, actor domain.Actor, counterpartID uint, requestID *uint) (*models.Conversation, error) {
	if counterpartID == 0 || counterpartID == actor.UserID {
		return nil, appErrors.InvalidArg("counterpart_id must name another user")
	}
	clientID, professionalID := actor.UserID, counterpartID
	if actor.IsProfessional() {
		clientID, professionalID = counterpartID, actor.UserID
	}
	if requestID != nil {
		req, err := s.requests.GetByID(ctx, *requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrRequestNotFound
		}
		if err != nil {
			return nil, appErrors.Wrap(appErrors.CodeInternal, "load request", err)
		}
		if req.ClientID != clientID || req.ProfessionalID != professionalID {
			return nil, appErrors.ErrNotParticipant
		}
	}
	conv, err := s.conversations.GetOrCreate(ctx, clientID, professionalID, requestID)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "start conversation", err)
	}
	return conv, nil
}

func (s *MessagingService) ListConversations(ctx context.Context, actor domain.Actor) ([]models.Conversation, error) {
	list, err := s.conversations.ListByParticipant(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "list conversations", err)
	}
	return list, nil
}

// Conversation returns the conversation if actor participates in it.
func (s *MessagingService) Conversation(ctx context.Context, actor domain.Actor, id uint) (*models.Conversation, error) {
	return s.loadConversation(ctx, actor, id)
}

func (s *MessagingService) loadConversation(ctx context.Context, actor domain.Actor, id uint) (*models.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "load conversation", err)
	}
	if !conv.IsParticipant(actor.UserID) {
		return nil, appErrors.ErrNotParticipant
	}
	return conv, nil
}

// Blocked reports whether any request between the conversation's pair has
// an outstanding payment gate.
func (s *MessagingService) Blocked(ctx context.Context, conv *models.Conversation) (bool, error) {
	list, err := s.requests.ListBetween(ctx, conv.ClientID, conv.ProfessionalID)
	if err != nil {
		return false, err
	}
	for i := range list {
		if list[i].CommunicationBlocked() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MessagingService) Send(ctx context.Context, actor domain.Actor, conversationID uint, in SendMessageInput) (*models.Message, error) {
	if strings.TrimSpace(in.Content) == "" && strings.TrimSpace(in.MediaURL) == "" {
		return nil, appErrors.ErrEmptyMessage
	}
	if len([]rune(in.Content)) > maxMessageLength {
		return nil, appErrors.InvalidArg("message is too long")
	}
	conv, err := s.loadConversation(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	blocked, err := s.Blocked(ctx, conv)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "evaluate payment gate", err)
	}
	if blocked {
		return nil, appErrors.ErrPaymentRequired
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       actor.UserID,
		Content:        in.Content,
		MediaURL:       strings.TrimSpace(in.MediaURL),
		IsRead:         false,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "store message", err)
	}
	if err := s.conversations.Touch(ctx, conv.ID); err != nil {
		log.Printf("[CHAT] touch conversation=%d: %v", conv.ID, err)
	}
	recipient := conv.CounterpartOf(actor.UserID)
	if s.events != nil {
		s.events.Publish(relay.Event{
			Table:          relay.TableMessages,
			Op:             relay.OpInsert,
			RowID:          msg.ID,
			ConversationID: conv.ID,
			Audience:       []uint{recipient, actor.UserID},
		})
	}
	preview := msg.Content
	if preview == "" {
		preview = "Sent an attachment"
	}
	s.notifier.NotifyNewMessage(ctx, recipient, conv.ID, preview)
	return msg, nil
}

// List returns the conversation's history in order. since narrows the
// result to newer messages when set.
func (s *MessagingService) List(ctx context.Context, actor domain.Actor, conversationID uint, since *time.Time) ([]models.Message, error) {
	conv, err := s.loadConversation(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	list, err := s.messages.ListByConversation(ctx, conv.ID, since)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInternal, "list messages", err)
	}
	return list, nil
}

func (s *MessagingService) MarkRead(ctx context.Context, actor domain.Actor, conversationID uint) (int64, error) {
	conv, err := s.loadConversation(ctx, actor, conversationID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkReadFrom(ctx, conv.ID, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeInternal, "mark read", err)
	}
	if n > 0 && s.events != nil {
		s.events.Publish(relay.Event{
			Table:          relay.TableMessages,
			Op:             relay.OpUpdate,
			ConversationID: conv.ID,
			Audience:       []uint{conv.CounterpartOf(actor.UserID)},
		})
	}
	return n, nil
}

func (s *MessagingService) UnreadCount(ctx context.Context, actor domain.Actor) (int64, error) {
	n, err := s.messages.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeInternal, "count unread", err)
	}
	return n, nil
}
