package repository

import (
	"context"
	"time"

	"carelink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate returns the pair's conversation, inserting it when absent.
// Concurrent callers converge on the same row via the pair's unique index.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, clientID, professionalID uint, requestID *uint) (*models.Conversation, error) {
	conv := &models.Conversation{ClientID: clientID, ProfessionalID: professionalID, RequestID: requestID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}, {Name: "professional_id"}},
		DoNothing: true,
	}).Create(conv).Error
	if err != nil {
		return nil, err
	}
	return r.GetByPair(ctx, clientID, professionalID)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) GetByPair(ctx context.Context, clientID, professionalID uint) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND professional_id = ?", clientID, professionalID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var list []models.Conversation
	err := r.db.WithContext(ctx).
		Where("client_id = ? OR professional_id = ?", userID, userID).
		Order("updated_at DESC").Find(&list).Error
	return list, err
}

func (r *ConversationRepository) Touch(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListByConversation returns the history in creation order. Ties on
// created_at fall back to insertion order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uint, since *time.Time) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var list []models.Message
	err := q.Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

// MarkReadFrom marks messages the counterpart sent as read.
func (r *MessageRepository) MarkReadFrom(ctx context.Context, conversationID, readerID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CountUnread counts unread messages addressed to userID across all of the
// user's conversations.
func (r *MessageRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var c int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.client_id = ? OR conversations.professional_id = ?) AND messages.sender_id <> ? AND messages.is_read = ?",
			userID, userID, userID, false).
		Count(&c).Error
	return c, err
}
