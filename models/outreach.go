package models

import (
	"time"

	"gorm.io/gorm"
)

// Outreach queue statuses. "sent" doubles as the in-flight marker: the
// dispatcher flips pending -> sent in the claim statement itself and stamps
// SentAt only after the opener went out, so a claimed-but-unsent entry is
// recognizable as sent with a NULL sent_at.
const (
	OutreachStatusPending = "pending"
	OutreachStatusSent    = "sent"
	OutreachStatusPaused  = "paused"
	OutreachStatusFailed  = "failed"
)

// OutreachQueueEntry is one scheduled opening send. Produced by campaign
// launch, consumed by the outreach worker; nothing else touches it.
type OutreachQueueEntry struct {
	gorm.Model

	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	ScheduledAt    time.Time `gorm:"not null;index" json:"scheduled_at"`

	Status string     `gorm:"default:'pending'" json:"status"` // pending, sent, paused, failed
	SentAt *time.Time `json:"sent_at,omitempty"`
	Error  string     `json:"error,omitempty"`

	// Relations
	Conversation Conversation `json:"-"`
}

// TableName keeps the table aligned with the queue's historical name
func (OutreachQueueEntry) TableName() string {
	return "outreach_queue"
}
