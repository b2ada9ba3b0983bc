package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation statuses. The first five are live, the rest are terminal.
const (
	ConversationStatusPending      = "pending"
	ConversationStatusOutreachSent = "outreach_sent"
	ConversationStatusBountySent   = "bounty_sent"
	ConversationStatusActive       = "active"
	ConversationStatusCompleted    = "completed"
	ConversationStatusDeclined     = "declined"
	ConversationStatusAbandoned    = "abandoned"
	ConversationStatusFailed       = "failed"
	ConversationStatusExpired      = "expired"
)

// TerminalStatuses are the statuses from which no further transition occurs
var TerminalStatuses = []string{
	ConversationStatusCompleted,
	ConversationStatusDeclined,
	ConversationStatusAbandoned,
	ConversationStatusFailed,
	ConversationStatusExpired,
}

// IsTerminalStatus reports whether a conversation status is terminal
func IsTerminalStatus(status string) bool {
	for _, s := range TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Conversation is the unit of state-machine execution. CampaignID is nil for
// onboarding and ad hoc general threads.
type Conversation struct {
	gorm.Model

	CampaignID  *uint  `gorm:"index" json:"campaign_id,omitempty"`
	UserID      uint   `gorm:"not null;index" json:"user_id"`
	PhoneNumber string `gorm:"not null;index" json:"phone_number"`

	Status string `gorm:"default:'pending'" json:"status"`

	// Partial mapping toward the campaign's extraction schema, filled monotonically
	ExtractedData map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"extracted_data"`

	MessageCount int        `gorm:"default:0" json:"message_count"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// Relations
	Campaign *Campaign `json:"-"`
	User     User      `json:"-"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// MergeExtractedData folds newly observed values into the conversation,
// never clearing a value that is already present
func (c *Conversation) MergeExtractedData(update map[string]interface{}) {
	if len(update) == 0 {
		return
	}
	if c.ExtractedData == nil {
		c.ExtractedData = map[string]interface{}{}
	}
	for k, v := range update {
		if v == nil {
			continue
		}
		c.ExtractedData[k] = v
	}
}
