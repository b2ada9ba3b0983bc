package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range TerminalStatuses {
		assert.True(t, IsTerminalStatus(status), status)
	}
	for _, status := range []string{
		ConversationStatusPending,
		ConversationStatusOutreachSent,
		ConversationStatusBountySent,
		ConversationStatusActive,
	} {
		assert.False(t, IsTerminalStatus(status), status)
	}
}

func TestMergeExtractedDataAddsAndOverwrites(t *testing.T) {
	conv := Conversation{
		ExtractedData: map[string]interface{}{
			"favorite_brand": "Acme",
		},
	}

	conv.MergeExtractedData(map[string]interface{}{
		"favorite_brand": "Globex",
		"monthly_spend":  1200,
	})

	assert.Equal(t, "Globex", conv.ExtractedData["favorite_brand"])
	assert.Equal(t, 1200, conv.ExtractedData["monthly_spend"])
}

func TestMergeExtractedDataSkipsNilValues(t *testing.T) {
	conv := Conversation{
		ExtractedData: map[string]interface{}{
			"favorite_brand": "Acme",
		},
	}

	conv.MergeExtractedData(map[string]interface{}{
		"favorite_brand": nil,
		"monthly_spend":  nil,
	})

	assert.Equal(t, "Acme", conv.ExtractedData["favorite_brand"])
	_, ok := conv.ExtractedData["monthly_spend"]
	assert.False(t, ok)
}

func TestMergeExtractedDataOnNilMap(t *testing.T) {
	var conv Conversation

	conv.MergeExtractedData(nil)
	assert.Nil(t, conv.ExtractedData)

	conv.MergeExtractedData(map[string]interface{}{"k": "v"})
	assert.Equal(t, "v", conv.ExtractedData["k"])
}
