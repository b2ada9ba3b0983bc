package controller

import (
	"time"

	"meshline/models"
	"meshline/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GetCampaigns returns all campaigns, newest first
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	var campaigns []models.Campaign
	if err := cc.DB.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	type CampaignResponse struct {
		ID                     uint      `json:"id"`
		Name                   string    `json:"name"`
		Status                 string    `json:"status"`
		TotalConversations     int       `json:"total_conversations"`
		CompletedConversations int       `json:"completed_conversations"`
		CreatedAt              time.Time `json:"created_at"`
	}

	response := make([]CampaignResponse, len(campaigns))
	for i, campaign := range campaigns {
		response[i] = CampaignResponse{
			ID:                     campaign.ID,
			Name:                   campaign.Name,
			Status:                 campaign.Status,
			TotalConversations:     campaign.TotalConversations,
			CompletedConversations: campaign.CompletedConversations,
			CreatedAt:              campaign.CreatedAt,
		}
	}

	return c.JSON(response)
}

// GetCampaign returns a single campaign with its full configuration
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, utils.ParseUint(c.Params("id"))).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaign",
		})
	}

	return c.JSON(campaign)
}

// GetCampaignConversations lists the conversations of one campaign
func (cc *CampaignController) GetCampaignConversations(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))

	var conversations []models.Conversation
	if err := cc.DB.Where("campaign_id = ?", campaignID).
		Order("created_at").
		Find(&conversations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch conversations",
		})
	}

	return c.JSON(conversations)
}

// GetConversation returns one conversation with its ordered message history
func (cc *CampaignController) GetConversation(c *fiber.Ctx) error {
	var conversation models.Conversation
	err := cc.DB.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("messages.created_at")
	}).First(&conversation, utils.ParseUint(c.Params("id"))).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Conversation not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch conversation",
		})
	}

	return c.JSON(conversation)
}

// GetCampaignExtractions returns the collected data of every completed
// conversation in a campaign
func (cc *CampaignController) GetCampaignExtractions(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaign",
		})
	}

	var conversations []models.Conversation
	if err := cc.DB.Where("campaign_id = ? AND status = ?", campaignID, models.ConversationStatusCompleted).
		Order("completed_at").
		Find(&conversations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch extractions",
		})
	}

	type Extraction struct {
		PhoneNumber string                 `json:"phone_number"`
		Data        map[string]interface{} `json:"data"`
	}

	extractions := make([]Extraction, len(conversations))
	for i, conv := range conversations {
		extractions[i] = Extraction{
			PhoneNumber: conv.PhoneNumber,
			Data:        conv.ExtractedData,
		}
	}

	return c.JSON(fiber.Map{
		"campaign_id":     campaignID,
		"total_completed": len(extractions),
		"extractions":     extractions,
	})
}
