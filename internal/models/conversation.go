package models

import "time"

// Conversation is keyed by the client/professional pair and outlives the
// request that created it.
type Conversation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ClientID       uint      `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"client_id"`
	ProfessionalID uint      `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"professional_id"`
	RequestID      *uint     `gorm:"index" json:"request_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) IsParticipant(userID uint) bool {
	return c.ClientID == userID || c.ProfessionalID == userID
}

func (c *Conversation) CounterpartOf(userID uint) uint {
	if c.ClientID == userID {
		return c.ProfessionalID
	}
	return c.ClientID
}

// Message is append-only.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_messages_conv_created" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text" json:"content"`
	MediaURL       string    `gorm:"size:512" json:"media_url,omitempty"`
	IsRead         bool      `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conv_created" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
