package models

import (
	"gorm.io/gorm"
)

// Message senders
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// Message is an immutable append-only record of one exchange leg.
// TwilioSID, when present, is unique across all messages and serves as the
// idempotency key for inbound webhook dedup.
type Message struct {
	gorm.Model

	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	Sender         string `gorm:"not null" json:"sender"` // user, agent
	Content        string `gorm:"not null" json:"content"`

	TwilioSID *string `gorm:"column:twilio_sid;uniqueIndex" json:"twilio_sid,omitempty"`
}
