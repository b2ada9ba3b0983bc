package controller

import (
	"meshline/models"
	"meshline/utils"

	"github.com/gofiber/fiber/v2"
)

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input struct {
		Name                 string                            `json:"name" validate:"required"`
		ResearchBrief        string                            `json:"research_brief" validate:"required"`
		ExtractionSchema     map[string]models.ExtractionField `json:"extraction_schema" validate:"required,min=1"`
		PhoneNumbers         []string                          `json:"phone_numbers" validate:"required,min=1,dive,required"`
		RewardText           *string                           `json:"reward_text"`
		RewardLink           *string                           `json:"reward_link"`
		SystemPromptOverride *string                           `json:"system_prompt_override"`
	}

	if err := c.BodyParser(&input); err != nil {
		cc.Logger.Printf("Error parsing request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Recipients arrive as E.164, with or without the channel prefix
	phones := make([]string, 0, len(input.PhoneNumbers))
	for _, p := range input.PhoneNumbers {
		phones = append(phones, utils.NormalizePhone(p))
	}

	campaign := models.Campaign{
		Name:                 input.Name,
		ResearchBrief:        input.ResearchBrief,
		ExtractionSchema:     input.ExtractionSchema,
		PhoneNumbers:         phones,
		RewardText:           input.RewardText,
		RewardLink:           input.RewardLink,
		SystemPromptOverride: input.SystemPromptOverride,
		Status:               models.CampaignStatusDraft,
	}

	if err := cc.DB.Create(&campaign).Error; err != nil {
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"campaign_id": campaign.ID,
		"created_at":  campaign.CreatedAt,
	})
}
