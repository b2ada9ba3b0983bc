package controller

import (
	"time"

	"meshline/config"
	"meshline/models"
	"meshline/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

// staggerDelay spreads dispatch positions across the outreach rate so
// position 0 fires immediately and at most `rate` entries land in any
// one-minute window
func staggerDelay(pos, rate int) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(pos*60/rate) * time.Second
}

// LaunchCampaign activates a draft or paused campaign: it materializes a
// conversation and a staggered outreach entry per recipient, and resumes
// any entries frozen by a pause
func (cc *CampaignController) LaunchCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	rate := config.AppConfig.OutreachRatePerMinute

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusPaused {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign must be draft or paused to launch, got: " + campaign.Status,
		})
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start transaction",
		})
	}
	defer tx.Rollback()

	now := time.Now()
	pos := 0

	// Paused entries resume first, in their original order, ahead of any
	// recipients added since
	var pausedEntries []models.OutreachQueueEntry
	if err := tx.Joins("JOIN conversations ON conversations.id = outreach_queue.conversation_id").
		Where("conversations.campaign_id = ? AND outreach_queue.status = ?", campaign.ID, models.OutreachStatusPaused).
		Order("outreach_queue.scheduled_at").
		Find(&pausedEntries).Error; err != nil {
		cc.Logger.Printf("Failed to load paused entries for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resume paused outreach",
		})
	}

	reactivated := 0
	for _, entry := range pausedEntries {
		if err := tx.Model(&models.OutreachQueueEntry{}).Where("id = ?", entry.ID).
			Updates(map[string]interface{}{
				"status":       models.OutreachStatusPending,
				"scheduled_at": now.Add(staggerDelay(pos, rate)),
			}).Error; err != nil {
			cc.Logger.Printf("Failed to reactivate outreach entry %d: %v", entry.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to resume paused outreach",
			})
		}
		pos++
		reactivated++
	}

	created := 0
	for _, phone := range campaign.PhoneNumbers {
		var user models.User
		if err := tx.Where("phone_number = ?", phone).
			Attrs(models.User{PhoneNumber: phone, Status: models.UserStatusNew}).
			FirstOrCreate(&user).Error; err != nil {
			cc.Logger.Printf("Failed to resolve user %s: %v", phone, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create conversations",
			})
		}

		// The unique index keeps one conversation per (campaign, phone)
		// across all statuses; re-launches skip every recipient already
		// contacted once, including opted-out and completed ones
		conv := models.Conversation{
			CampaignID:  &campaign.ID,
			UserID:      user.ID,
			PhoneNumber: phone,
			Status:      models.ConversationStatusPending,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv)
		if result.Error != nil {
			cc.Logger.Printf("Failed to create conversation for %s: %v", phone, result.Error)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create conversations",
			})
		}
		if result.RowsAffected == 0 {
			continue
		}

		entry := models.OutreachQueueEntry{
			ConversationID: conv.ID,
			ScheduledAt:    now.Add(staggerDelay(pos, rate)),
			Status:         models.OutreachStatusPending,
		}
		if err := tx.Create(&entry).Error; err != nil {
			cc.Logger.Printf("Failed to enqueue outreach for %s: %v", phone, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to schedule outreach",
			})
		}
		pos++
		created++
	}

	if err := tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Updates(map[string]interface{}{
			"status":              models.CampaignStatusActive,
			"total_conversations": campaign.TotalConversations + created,
		}).Error; err != nil {
		cc.Logger.Printf("Failed to activate campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate campaign",
		})
	}

	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to launch campaign",
		})
	}

	utils.LogEvent("campaign_launched", map[string]interface{}{
		"campaign_id": campaign.ID,
		"created":     created,
		"reactivated": reactivated,
	})

	estimatedMinutes := 0
	if pos > 0 {
		estimatedMinutes = (pos-1)*60/rate/60 + 1
	}

	return c.JSON(fiber.Map{
		"campaign_id":                  campaign.ID,
		"status":                       models.CampaignStatusActive,
		"conversations_created":        created,
		"reactivated":                  reactivated,
		"outreach_rate_per_minute":     rate,
		"estimated_completion_minutes": estimatedMinutes,
	})
}

// PauseCampaign freezes an active campaign. Undelivered outreach moves to
// paused so a later launch can resume it; messages already in flight and
// live conversations are untouched.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignStatusActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only active campaigns can be paused, got: " + campaign.Status,
		})
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start transaction",
		})
	}
	defer tx.Rollback()

	result := tx.Exec(`
        UPDATE outreach_queue SET status = ?, updated_at = NOW()
        WHERE status = ? AND deleted_at IS NULL AND conversation_id IN (
            SELECT id FROM conversations WHERE campaign_id = ?
        )`,
		models.OutreachStatusPaused, models.OutreachStatusPending, campaign.ID,
	)
	if result.Error != nil {
		cc.Logger.Printf("Failed to pause outreach for campaign %d: %v", campaign.ID, result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause outreach",
		})
	}

	if err := tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Update("status", models.CampaignStatusPaused).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}

	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}

	utils.LogEvent("campaign_paused", map[string]interface{}{
		"campaign_id":    campaign.ID,
		"paused_entries": result.RowsAffected,
	})

	return c.JSON(fiber.Map{
		"campaign_id":    campaign.ID,
		"status":         models.CampaignStatusPaused,
		"paused_entries": result.RowsAffected,
	})
}
