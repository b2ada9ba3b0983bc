package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshline/models"
	"meshline/utils"
)

func TestBuildBountyOpener(t *testing.T) {
	campaign := &models.Campaign{
		Name:       "Grocery habits",
		RewardText: utils.Pointer("$5 airtime"),
	}

	opener := BuildBountyOpener(campaign)

	assert.Contains(t, opener, "Grocery habits")
	assert.Contains(t, opener, "$5 airtime")
	assert.Contains(t, opener, "'go'")
	assert.Contains(t, opener, "'pass'")
}

func TestBuildBountyOpenerWithoutRewardText(t *testing.T) {
	campaign := &models.Campaign{Name: "Grocery habits"}

	opener := BuildBountyOpener(campaign)
	assert.Contains(t, opener, "Grocery habits")
}

func TestReserveBountySlotEnforcesOneLiveThread(t *testing.T) {
	db := newTestDB(t)
	ow := NewOutreachWorker(db, nil, nil, discardLogger(), 0, 0)

	user := models.User{PhoneNumber: "+254700000001", Status: models.UserStatusOnboarded}
	require.NoError(t, db.Create(&user).Error)

	campaignA := models.Campaign{Name: "A", ResearchBrief: "a", Status: models.CampaignStatusActive}
	require.NoError(t, db.Create(&campaignA).Error)
	campaignB := models.Campaign{
		Name:          "B",
		ResearchBrief: "b",
		RewardText:    utils.Pointer("$5 airtime"),
		Status:        models.CampaignStatusActive,
	}
	require.NoError(t, db.Create(&campaignB).Error)

	convA := models.Conversation{
		CampaignID:  &campaignA.ID,
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Status:      models.ConversationStatusActive,
	}
	require.NoError(t, db.Create(&convA).Error)
	convB := models.Conversation{
		CampaignID:  &campaignB.ID,
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Status:      models.ConversationStatusPending,
	}
	require.NoError(t, db.Create(&convB).Error)

	entry := models.OutreachQueueEntry{
		ConversationID: convB.ID,
		ScheduledAt:    time.Now(),
		Status:         models.OutreachStatusSent,
	}
	require.NoError(t, db.Create(&entry).Error)

	// User already has a live thread in campaign A: the claim reverts
	reverted, err := ow.reserveBountySlot(claimedEntry{ID: entry.ID, ConversationID: convB.ID}, &convB)
	require.NoError(t, err)
	assert.True(t, reverted)

	var freshEntry models.OutreachQueueEntry
	require.NoError(t, db.First(&freshEntry, entry.ID).Error)
	assert.Equal(t, models.OutreachStatusPending, freshEntry.Status)

	var freshConvB models.Conversation
	require.NoError(t, db.First(&freshConvB, convB.ID).Error)
	assert.Equal(t, models.ConversationStatusPending, freshConvB.Status, "no publish while the user is busy")

	// The live thread finishes; the next cycle's claim goes through and the
	// conversation is published in the same transaction as the check
	require.NoError(t, db.Model(&models.Conversation{}).Where("id = ?", convA.ID).
		Update("status", models.ConversationStatusCompleted).Error)
	require.NoError(t, db.Model(&models.OutreachQueueEntry{}).Where("id = ?", entry.ID).
		Update("status", models.OutreachStatusSent).Error)

	reverted, err = ow.reserveBountySlot(claimedEntry{ID: entry.ID, ConversationID: convB.ID}, &convB)
	require.NoError(t, err)
	assert.False(t, reverted)

	require.NoError(t, db.First(&freshConvB, convB.ID).Error)
	assert.Equal(t, models.ConversationStatusBountySent, freshConvB.Status)
}
