package utils

import (
	"meshline/models"

	"gorm.io/gorm"
)

// CheckCampaignCompletion flips a campaign to completed once every one of its
// conversations has reached a terminal status. Terminal conversations arise
// from several independent paths (agent completion, stop keyword, declined
// bounty, dispatch failure), so this recounts from current data instead of
// trusting any incremental counter.
func CheckCampaignCompletion(db *gorm.DB, campaignID uint) error {
	var campaign models.Campaign
	if err := db.First(&campaign, campaignID).Error; err != nil {
		return err
	}
	if campaign.Status == models.CampaignStatusCompleted {
		return nil
	}

	var terminal int64
	if err := db.Model(&models.Conversation{}).
		Where("campaign_id = ? AND status IN ?", campaignID, models.TerminalStatuses).
		Count(&terminal).Error; err != nil {
		return err
	}

	// An empty campaign never auto-completes
	if campaign.TotalConversations <= 0 || terminal < int64(campaign.TotalConversations) {
		return nil
	}

	if err := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("status", models.CampaignStatusCompleted).Error; err != nil {
		return err
	}

	LogEvent("campaign_completed", map[string]interface{}{
		"campaign_id": campaignID,
		"terminal":    terminal,
	})
	return nil
}
