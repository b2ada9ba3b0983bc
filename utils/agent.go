package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"meshline/models"
)

// Agent modes, matching the conversation the response is generated for
const (
	AgentModeOnboarding = "onboarding"
	AgentModeCampaign   = "campaign"
	AgentModeBounty     = "bounty"
	AgentModeGeneral    = "general"
)

// BountyDecision is the agent's reading of a bounty reply. Ambiguous means
// the agent could not tell and asked for clarification.
type BountyDecision int

const (
	BountyAmbiguous BountyDecision = iota
	BountyAccepted
	BountyDeclined
)

// HistoryMessage is one leg of the conversation passed to the agent
type HistoryMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// AgentRequest carries everything the agent needs to produce the next message
type AgentRequest struct {
	Mode         string
	History      []HistoryMessage
	Demographics map[string]string

	// Campaign/bounty context, zero-valued otherwise
	ResearchBrief    string
	ExtractionSchema map[string]models.ExtractionField
	ExtractedData    map[string]interface{}
	RewardText       string
	RewardLink       string
	PromptOverride   string
}

// AgentResponse is the structured output of one generation
type AgentResponse struct {
	Message              string
	ExtractedDataUpdate  map[string]interface{}
	DemographicsUpdate   models.DemographicUpdate
	ConversationComplete bool
	Bounty               BountyDecision
}

// AgentProvider generates the next outgoing message for a conversation
type AgentProvider interface {
	Respond(ctx context.Context, req AgentRequest) (*AgentResponse, error)
}

// GeminiAgent implements AgentProvider on top of the Gemini API
type GeminiAgent struct {
	client *genai.Client
	model  string
}

func NewGeminiAgent(apiKey, model string) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAgent{client: client, model: model}, nil
}

func (g *GeminiAgent) Respond(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	system := BuildSystemPrompt(req)
	user := BuildUserPrompt(req.History)

	result, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}

	return DecodeAgentPayload([]byte(result.Text()))
}

// DisabledAgent stands in when no Gemini API key is configured. Inbound
// handling degrades to a logged soft failure instead of crashing at boot.
type DisabledAgent struct{}

func (DisabledAgent) Respond(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	return nil, errors.New("agent provider is not configured")
}

// agentWire is the raw JSON shape the agent is instructed to return
type agentWire struct {
	Message                string                 `json:"message"`
	ExtractedDataUpdate    map[string]interface{} `json:"extracted_data_update"`
	UserDemographicsUpdate map[string]string      `json:"user_demographics_update"`
	ConversationComplete   bool                   `json:"conversation_complete"`
	BountyAccepted         *bool                  `json:"bounty_accepted"`
}

// DecodeAgentPayload parses the agent's JSON output. Unknown demographic keys
// are dropped at this boundary; an absent bounty_accepted reads as ambiguous.
func DecodeAgentPayload(raw []byte) (*AgentResponse, error) {
	var wire agentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("malformed agent payload: %w", err)
	}
	if strings.TrimSpace(wire.Message) == "" {
		return nil, errors.New("agent returned an empty message")
	}

	resp := &AgentResponse{
		Message:              wire.Message,
		ExtractedDataUpdate:  wire.ExtractedDataUpdate,
		ConversationComplete: wire.ConversationComplete,
		Bounty:               BountyAmbiguous,
	}

	if wire.BountyAccepted != nil {
		if *wire.BountyAccepted {
			resp.Bounty = BountyAccepted
		} else {
			resp.Bounty = BountyDeclined
		}
	}

	for key, value := range wire.UserDemographicsUpdate {
		if value == "" {
			continue
		}
		switch key {
		case "city":
			resp.DemographicsUpdate.City = Pointer(value)
		case "neighborhood":
			resp.DemographicsUpdate.Neighborhood = Pointer(value)
		case "age_range":
			resp.DemographicsUpdate.AgeRange = Pointer(value)
		case "gender":
			resp.DemographicsUpdate.Gender = Pointer(value)
		}
	}

	return resp, nil
}

const personalityPrompt = "You are MeshLine. You pay people for quick research chats " +
	"on WhatsApp. Your vibe: fun, warm, quick. Like texting a friend " +
	"who happens to pay you. 1-3 sentences max per message. " +
	"Emojis natural, not forced. Never corporate."

const outputContract = `Always answer with a single JSON object:
{"message": string (required, the next WhatsApp message),
 "extracted_data_update": object of schema-key -> newly observed value,
 "user_demographics_update": object with any of city/neighborhood/age_range/gender,
 "conversation_complete": boolean,
 "bounty_accepted": boolean (only in bounty mode; omit when ambiguous)}`

// BuildSystemPrompt assembles the personality, output contract and
// mode-specific context block
func BuildSystemPrompt(req AgentRequest) string {
	var block string
	switch req.Mode {
	case AgentModeOnboarding:
		block = onboardingBlock(req)
	case AgentModeCampaign:
		block = campaignBlock(req)
	case AgentModeBounty:
		block = bountyBlock(req)
	default:
		block = generalBlock()
	}
	return personalityPrompt + "\n\n" + outputContract + "\n\n" + block
}

// BuildUserPrompt renders the conversation so far for the agent
func BuildUserPrompt(history []HistoryMessage) string {
	if len(history) == 0 {
		return "The conversation hasn't started yet. Send your opening message."
	}

	var lines []string
	for _, msg := range history {
		role := "Them"
		if msg.Sender == models.SenderAgent {
			role = "You"
		}
		lines = append(lines, role+": "+msg.Content)
	}

	return "Here is the conversation so far:\n\n" +
		strings.Join(lines, "\n") +
		"\n\nRespond with your next message."
}

func onboardingBlock(req AgentRequest) string {
	type field struct {
		key   string
		label string
	}
	fields := []field{
		{"city", "city (required, ask directly)"},
		{"neighborhood", "neighborhood (probe once, accept if skipped)"},
		{"age_range", "age_range (required, offer brackets: 18-24, 25-34, 35-44, 45+)"},
		{"gender", "gender (required, Male / Female / Other)"},
	}

	var collected, missing []string
	for _, f := range fields {
		if val := req.Demographics[f.key]; val != "" {
			collected = append(collected, "- "+f.key+": "+val)
		} else {
			missing = append(missing, "- "+f.label)
		}
	}

	collectedStr := "Nothing yet."
	if len(collected) > 0 {
		collectedStr = strings.Join(collected, "\n")
	}
	missingStr := "All collected!"
	if len(missing) > 0 {
		missingStr = strings.Join(missing, "\n")
	}

	return fmt.Sprintf(`MODE: ONBOARDING
A new person just messaged. Your job:
1. Welcome them warmly. Explain MeshLine in one sentence.
2. Collect their demographics naturally:
%s

ALREADY KNOWN:
%s

3. When done (city, age_range, and gender all filled), tell them they're set
   and bounties will come their way. Set conversation_complete = true.

Return demographics in user_demographics_update as you collect them.
Keys: city, neighborhood, age_range, gender.`, missingStr, collectedStr)
}

func campaignBlock(req AgentRequest) string {
	keys := make([]string, 0, len(req.ExtractionSchema))
	for k := range req.ExtractionSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var schemaLines, remainingLines []string
	for _, key := range keys {
		f := req.ExtractionSchema[key]
		schemaLines = append(schemaLines, fmt.Sprintf("- %s: %s (type: %s)", key, f.Description, f.Type))
		if v, ok := req.ExtractedData[key]; !ok || v == nil {
			remainingLines = append(remainingLines, "- "+key+": "+f.Description)
		}
	}

	var collectedLines []string
	for _, key := range keys {
		if v, ok := req.ExtractedData[key]; ok && v != nil {
			collectedLines = append(collectedLines, fmt.Sprintf("- %s: %v", key, v))
		}
	}

	collected := "Nothing extracted yet."
	if len(collectedLines) > 0 {
		collected = strings.Join(collectedLines, "\n")
	}
	remaining := "All data points collected."
	if len(remainingLines) > 0 {
		remaining = strings.Join(remainingLines, "\n")
	}

	var demoLines []string
	for _, k := range []string{"city", "neighborhood", "age_range", "gender"} {
		val := req.Demographics[k]
		if val == "" {
			val = "unknown"
		}
		demoLines = append(demoLines, "- "+k+": "+val)
	}

	custom := ""
	if req.PromptOverride != "" {
		custom = "\nADDITIONAL INSTRUCTIONS:\n" + req.PromptOverride + "\n"
	}
	rewardLine := ""
	if req.RewardText != "" {
		rewardLine = "REWARD: " + req.RewardText
	}
	rewardLinkLine := ""
	if req.RewardLink != "" {
		rewardLinkLine = "REWARD LINK (include when conversation_complete): " + req.RewardLink
	}

	return fmt.Sprintf(`MODE: CAMPAIGN CONVERSATION
%s
RESEARCH CONTEXT:
%s
%s
KNOWN ABOUT THIS PERSON:
%s

DATA POINTS TO COLLECT:
%s

ALREADY COLLECTED:
%s

STILL NEEDED:
%s

%s

RULES:
1. Your first message after they accept should signal the start clearly.
2. If any demographics above are "unknown", weave them in naturally
   at the start before the research questions. Return them in user_demographics_update.
3. Ask ONE question at a time. 1-3 sentences max.
4. Acknowledge what the person said before changing topics.
5. Use natural transitions. Never reveal you have a checklist.
6. Probe vague answers before moving on.
7. Be warm, fun, curious. This should feel enjoyable.
8. When ALL data points are collected with concrete answers,
   send a thank-you message and include the reward link.
   Set conversation_complete = true.`,
		rewardLine,
		req.ResearchBrief,
		custom,
		strings.Join(demoLines, "\n"),
		strings.Join(schemaLines, "\n"),
		collected,
		remaining,
		rewardLinkLine)
}

func bountyBlock(req AgentRequest) string {
	brief := req.ResearchBrief
	if brief == "" {
		brief = "N/A"
	}
	reward := req.RewardText
	if reward == "" {
		reward = "N/A"
	}

	return fmt.Sprintf(`MODE: BOUNTY INTERPRETATION
The user was sent a bounty notification and has replied.
Research topic: %s
Reward: %s

Your job: interpret whether they ACCEPT or DECLINE the bounty.

Accept signals: "go", "sure", "yes", "let's do it", "ok", "start", "yeah", anything affirmative.
Decline signals: "no", "pass", "not now", "nah", "skip", anything negative.

If they ACCEPT:
- Set bounty_accepted = true
- Send an enthusiastic kickoff message and ask the first question.
- Do NOT set conversation_complete.

If they DECLINE:
- Set bounty_accepted = false
- Send a friendly "catch you next time" message.
- Set conversation_complete = true

If AMBIGUOUS (can't tell):
- Omit bounty_accepted entirely.
- Ask for clarification naturally: "Just checking, want to jump in? Reply 'go' to start!"
- Do NOT set conversation_complete.`, brief, reward)
}

func generalBlock() string {
	return `MODE: GENERAL
This person is in the MeshLine paid research network.
They've messaged outside of an active bounty. They might be:
- Asking how MeshLine works
- Asking about rewards or payments
- Just saying hi
- Asking when the next bounty is

Be friendly, brief, helpful. If they ask when the next bounty is,
tell them we'll send one when something matches their profile.
If they have a question you can't answer, tell them to reach out
to support.

Keep it to 1-2 sentences. Don't over-explain.
Never set conversation_complete to true.`
}
