package controller

import (
	"crypto/subtle"
	"log"

	"meshline/config"
	"meshline/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	Logger *log.Logger
}

func NewAuthController(logger *log.Logger) *AuthController {
	return &AuthController{Logger: logger}
}

// IssueToken exchanges the admin API key for a short-lived dashboard JWT
func (ac *AuthController) IssueToken(c *fiber.Ctx) error {
	var input struct {
		APIKey string `json:"api_key" validate:"required"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if subtle.ConstantTimeCompare([]byte(input.APIKey), []byte(config.AppConfig.AdminAPIKey)) != 1 {
		ac.Logger.Println("Token request with invalid API key")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}

	token, err := utils.GenerateJWTToken("dashboard")
	if err != nil {
		ac.Logger.Printf("Failed to generate token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   12 * 60 * 60,
	})
}
