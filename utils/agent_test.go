package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshline/models"
)

func TestDecodeAgentPayloadFull(t *testing.T) {
	raw := []byte(`{
		"message": "Thanks! What do you usually pay?",
		"extracted_data_update": {"monthly_spend": 1200},
		"user_demographics_update": {"city": "Nairobi", "favorite_color": "blue"},
		"conversation_complete": false
	}`)

	resp, err := DecodeAgentPayload(raw)
	require.NoError(t, err)

	assert.Equal(t, "Thanks! What do you usually pay?", resp.Message)
	assert.Equal(t, float64(1200), resp.ExtractedDataUpdate["monthly_spend"])
	assert.False(t, resp.ConversationComplete)

	// Unknown demographic keys are dropped at the decode boundary
	require.NotNil(t, resp.DemographicsUpdate.City)
	assert.Equal(t, "Nairobi", *resp.DemographicsUpdate.City)
	assert.Nil(t, resp.DemographicsUpdate.Gender)
}

func TestDecodeAgentPayloadBountyTriState(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want BountyDecision
	}{
		{"accepted", `{"message": "Let's go!", "bounty_accepted": true}`, BountyAccepted},
		{"declined", `{"message": "No worries, next time!", "bounty_accepted": false}`, BountyDeclined},
		{"omitted", `{"message": "Just checking, want in?"}`, BountyAmbiguous},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := DecodeAgentPayload([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Bounty)
		})
	}
}

func TestDecodeAgentPayloadRejectsEmptyMessage(t *testing.T) {
	_, err := DecodeAgentPayload([]byte(`{"message": "  "}`))
	assert.Error(t, err)

	_, err = DecodeAgentPayload([]byte(`{"conversation_complete": true}`))
	assert.Error(t, err)
}

func TestDecodeAgentPayloadRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeAgentPayload([]byte(`not json at all`))
	assert.Error(t, err)
}

func TestBuildSystemPromptSelectsModeBlock(t *testing.T) {
	onboarding := BuildSystemPrompt(AgentRequest{Mode: AgentModeOnboarding})
	assert.Contains(t, onboarding, "MODE: ONBOARDING")
	assert.Contains(t, onboarding, "single JSON object")

	bounty := BuildSystemPrompt(AgentRequest{Mode: AgentModeBounty, RewardText: "$5 voucher"})
	assert.Contains(t, bounty, "MODE: BOUNTY INTERPRETATION")
	assert.Contains(t, bounty, "$5 voucher")

	general := BuildSystemPrompt(AgentRequest{Mode: AgentModeGeneral})
	assert.Contains(t, general, "MODE: GENERAL")
}

func TestBuildSystemPromptOnboardingTracksProgress(t *testing.T) {
	prompt := BuildSystemPrompt(AgentRequest{
		Mode:         AgentModeOnboarding,
		Demographics: map[string]string{"city": "Nairobi"},
	})

	assert.Contains(t, prompt, "- city: Nairobi")
	assert.Contains(t, prompt, "age_range")
	assert.NotContains(t, prompt, "- city (required")
}

func TestBuildSystemPromptCampaignSchemaAndOverride(t *testing.T) {
	prompt := BuildSystemPrompt(AgentRequest{
		Mode:          AgentModeCampaign,
		ResearchBrief: "Understand grocery delivery habits",
		ExtractionSchema: map[string]models.ExtractionField{
			"monthly_spend":  {Type: "number", Description: "monthly grocery spend"},
			"favorite_store": {Type: "string", Description: "preferred store"},
		},
		ExtractedData:  map[string]interface{}{"favorite_store": "Naivas"},
		PromptOverride: "Always answer in Swahili.",
		RewardLink:     "https://pay.example/abc",
	})

	assert.Contains(t, prompt, "Understand grocery delivery habits")
	assert.Contains(t, prompt, "monthly_spend: monthly grocery spend (type: number)")
	assert.Contains(t, prompt, "- favorite_store: Naivas")
	assert.Contains(t, prompt, "Always answer in Swahili.")
	assert.Contains(t, prompt, "https://pay.example/abc")

	// Collected fields must not show up as still needed
	idx := strings.Index(prompt, "STILL NEEDED:")
	require.Greater(t, idx, 0)
	assert.NotContains(t, prompt[idx:], "favorite_store")
}

func TestBuildUserPromptRendersHistory(t *testing.T) {
	empty := BuildUserPrompt(nil)
	assert.Contains(t, empty, "hasn't started yet")

	prompt := BuildUserPrompt([]HistoryMessage{
		{Sender: models.SenderAgent, Content: "Hi there!"},
		{Sender: models.SenderUser, Content: "hello"},
	})

	assert.Contains(t, prompt, "You: Hi there!")
	assert.Contains(t, prompt, "Them: hello")
}
