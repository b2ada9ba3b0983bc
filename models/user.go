package models

import (
	"gorm.io/gorm"
)

// User lifecycle statuses. Transitions are forward-only:
// new -> onboarding -> onboarded.
const (
	UserStatusNew        = "new"
	UserStatusOnboarding = "onboarding"
	UserStatusOnboarded  = "onboarded"
)

// User represents a respondent in the network, keyed by WhatsApp number
type User struct {
	gorm.Model

	PhoneNumber string `gorm:"uniqueIndex;not null" json:"phone_number"`
	Status      string `gorm:"default:'new'" json:"status"` // new, onboarding, onboarded

	// Demographics, filled incrementally during onboarding.
	// City, AgeRange and Gender are required for onboarded status.
	City         *string `json:"city,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	AgeRange     *string `json:"age_range,omitempty"`
	Gender       *string `json:"gender,omitempty"`

	// Relations
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"conversations,omitempty"`
}

// DemographicUpdate is the closed set of fields an agent response may fill.
// Nil fields are ignored; updates never clear an existing value.
type DemographicUpdate struct {
	City         *string `json:"city,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	AgeRange     *string `json:"age_range,omitempty"`
	Gender       *string `json:"gender,omitempty"`
}

// ApplyDemographics merges an update into the user, additive-only, and
// reports whether the user just became onboarded. The caller must persist
// the user and the status flip in the same transaction.
func (u *User) ApplyDemographics(update DemographicUpdate) bool {
	apply := func(dst **string, src *string) {
		if src != nil && *src != "" && *dst == nil {
			*dst = src
		}
	}
	apply(&u.City, update.City)
	apply(&u.Neighborhood, update.Neighborhood)
	apply(&u.AgeRange, update.AgeRange)
	apply(&u.Gender, update.Gender)

	if u.Status != UserStatusOnboarded && u.HasRequiredDemographics() {
		u.Status = UserStatusOnboarded
		return true
	}
	return false
}

// HasRequiredDemographics reports whether city, age_range and gender are all set
func (u *User) HasRequiredDemographics() bool {
	return u.City != nil && u.AgeRange != nil && u.Gender != nil
}

// Demographics returns the known fields as a map for the agent context
func (u *User) Demographics() map[string]string {
	out := map[string]string{}
	if u.City != nil {
		out["city"] = *u.City
	}
	if u.Neighborhood != nil {
		out["neighborhood"] = *u.Neighborhood
	}
	if u.AgeRange != nil {
		out["age_range"] = *u.AgeRange
	}
	if u.Gender != nil {
		out["gender"] = *u.Gender
	}
	return out
}
