package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestApplyDemographicsIsAdditiveOnly(t *testing.T) {
	user := User{
		Status: UserStatusOnboarding,
		City:   strPtr("Nairobi"),
	}

	onboarded := user.ApplyDemographics(DemographicUpdate{
		City:         strPtr("Mombasa"),
		Neighborhood: strPtr("Westlands"),
	})

	assert.False(t, onboarded)
	assert.Equal(t, "Nairobi", *user.City, "existing value must never be overwritten")
	assert.Equal(t, "Westlands", *user.Neighborhood)
	assert.Nil(t, user.AgeRange)
}

func TestApplyDemographicsIgnoresEmptyStrings(t *testing.T) {
	user := User{Status: UserStatusOnboarding}

	user.ApplyDemographics(DemographicUpdate{City: strPtr("")})

	assert.Nil(t, user.City)
}

func TestApplyDemographicsFlipsToOnboarded(t *testing.T) {
	user := User{
		Status:   UserStatusOnboarding,
		City:     strPtr("Nairobi"),
		AgeRange: strPtr("25-34"),
	}

	onboarded := user.ApplyDemographics(DemographicUpdate{Gender: strPtr("Female")})

	assert.True(t, onboarded)
	assert.Equal(t, UserStatusOnboarded, user.Status)

	// A second apply must not report a fresh flip
	again := user.ApplyDemographics(DemographicUpdate{Neighborhood: strPtr("Kilimani")})
	assert.False(t, again)
	assert.Equal(t, UserStatusOnboarded, user.Status)
}

func TestHasRequiredDemographics(t *testing.T) {
	user := User{
		City:     strPtr("Nairobi"),
		AgeRange: strPtr("25-34"),
		Gender:   strPtr("Male"),
	}
	assert.True(t, user.HasRequiredDemographics())

	// Neighborhood is optional
	user.Neighborhood = nil
	assert.True(t, user.HasRequiredDemographics())

	user.Gender = nil
	assert.False(t, user.HasRequiredDemographics())
}

func TestDemographicsMapSkipsUnknownFields(t *testing.T) {
	user := User{
		City:   strPtr("Nairobi"),
		Gender: strPtr("Other"),
	}

	demo := user.Demographics()

	assert.Equal(t, map[string]string{
		"city":   "Nairobi",
		"gender": "Other",
	}, demo)
}
