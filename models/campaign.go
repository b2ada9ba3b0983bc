package models

import (
	"gorm.io/gorm"
)

// Campaign statuses. Only draft -> active <-> paused -> completed is legal.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// ExtractionField describes one data point a campaign must collect
type ExtractionField struct {
	Type        string `json:"type"` // e.g. "string", "number", "number(1-10)"
	Description string `json:"description"`
}

// Campaign represents a research outreach campaign
type Campaign struct {
	gorm.Model

	Name          string `gorm:"not null" json:"name"`
	ResearchBrief string `gorm:"not null" json:"research_brief"`

	// What to collect, keyed by field name
	ExtractionSchema map[string]ExtractionField `gorm:"type:jsonb;serializer:json" json:"extraction_schema"`

	// Target recipients (E.164 numbers, no whatsapp: prefix)
	PhoneNumbers []string `gorm:"type:jsonb;serializer:json" json:"phone_numbers"`

	// Optional bounty reward surfaced in the invitation and prompts
	RewardText *string `json:"reward_text,omitempty"`
	RewardLink *string `json:"reward_link,omitempty"`

	SystemPromptOverride *string `json:"system_prompt_override,omitempty"`

	Status string `gorm:"default:'draft'" json:"status"` // draft, active, paused, completed

	// Counters maintained incrementally; reconciled only at completion check
	TotalConversations     int `gorm:"default:0" json:"total_conversations"`
	CompletedConversations int `gorm:"default:0" json:"completed_conversations"`

	// Relations
	Conversations []Conversation `gorm:"foreignKey:CampaignID" json:"conversations,omitempty"`
}

// HasReward reports whether the campaign is dispatched as a bounty invitation
func (c *Campaign) HasReward() bool {
	return c.RewardText != nil && *c.RewardText != ""
}
