package controller

import (
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"meshline/config"
	"meshline/models"
)

func TestStaggerDelaySpacing(t *testing.T) {
	// At 10/minute, consecutive positions are 6 seconds apart
	assert.Equal(t, time.Duration(0), staggerDelay(0, 10))
	assert.Equal(t, 6*time.Second, staggerDelay(1, 10))
	assert.Equal(t, 54*time.Second, staggerDelay(9, 10))
	assert.Equal(t, 60*time.Second, staggerDelay(10, 10))
	assert.Equal(t, 144*time.Second, staggerDelay(24, 10))
}

func TestStaggerDelayRespectsRateWindow(t *testing.T) {
	// No minute window may hold more than `rate` entries
	for _, rate := range []int{1, 3, 7, 10, 60} {
		buckets := map[int]int{}
		for pos := 0; pos < 200; pos++ {
			minute := int(staggerDelay(pos, rate) / time.Minute)
			buckets[minute]++
		}
		for minute, count := range buckets {
			assert.LessOrEqualf(t, count, rate, "rate=%d minute=%d", rate, minute)
		}
	}
}

func TestStaggerDelayGuardsZeroRate(t *testing.T) {
	assert.Equal(t, 60*time.Second, staggerDelay(1, 0))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Campaign{},
		&models.Conversation{},
		&models.Message{},
		&models.OutreachQueueEntry{},
	))

	// Same uniqueness the production migration creates: one conversation per
	// (campaign, phone) across all statuses
	require.NoError(t, db.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_conversation_per_campaign
        ON conversations (campaign_id, phone_number)
        WHERE campaign_id IS NOT NULL
          AND deleted_at IS NULL
    `).Error)

	return db
}

func newCampaignApp(db *gorm.DB) *fiber.App {
	cc := NewCampaignController(db, log.New(io.Discard, "", 0))
	app := fiber.New()
	app.Post("/campaigns/:id/launch", cc.LaunchCampaign)
	return app
}

func launchCampaign(t *testing.T, app *fiber.App, campaignID uint) int {
	t.Helper()
	req := httptest.NewRequest("POST", fmt.Sprintf("/campaigns/%d/launch", campaignID), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestLaunchCreatesConversationAndQueueEntry(t *testing.T) {
	db := newTestDB(t)
	config.AppConfig.OutreachRatePerMinute = 10
	app := newCampaignApp(db)

	campaign := models.Campaign{
		Name:          "Grocery habits",
		ResearchBrief: "Understand weekly grocery spending",
		ExtractionSchema: map[string]models.ExtractionField{
			"monthly_spend": {Type: "number", Description: "monthly grocery spend"},
		},
		PhoneNumbers: []string{"+254700000001", "+254700000002"},
		Status:       models.CampaignStatusDraft,
	}
	require.NoError(t, db.Create(&campaign).Error)

	require.Equal(t, fiber.StatusOK, launchCampaign(t, app, campaign.ID))

	var convs, entries int64
	require.NoError(t, db.Model(&models.Conversation{}).Where("campaign_id = ?", campaign.ID).Count(&convs).Error)
	require.NoError(t, db.Model(&models.OutreachQueueEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(2), convs)
	assert.Equal(t, int64(2), entries)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusActive, fresh.Status)
	assert.Equal(t, 2, fresh.TotalConversations)
}

func TestRelaunchSkipsFinishedRecipients(t *testing.T) {
	db := newTestDB(t)
	config.AppConfig.OutreachRatePerMinute = 10
	app := newCampaignApp(db)

	campaign := models.Campaign{
		Name:          "Grocery habits",
		ResearchBrief: "Understand weekly grocery spending",
		ExtractionSchema: map[string]models.ExtractionField{
			"monthly_spend": {Type: "number", Description: "monthly grocery spend"},
		},
		PhoneNumbers: []string{"+254700000001"},
		Status:       models.CampaignStatusDraft,
	}
	require.NoError(t, db.Create(&campaign).Error)

	require.Equal(t, fiber.StatusOK, launchCampaign(t, app, campaign.ID))

	// The recipient opts out, then the campaign is paused and relaunched
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("campaign_id = ?", campaign.ID).
		Updates(map[string]interface{}{
			"status":       models.ConversationStatusAbandoned,
			"completed_at": time.Now(),
		}).Error)
	require.NoError(t, db.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Update("status", models.CampaignStatusPaused).Error)

	require.Equal(t, fiber.StatusOK, launchCampaign(t, app, campaign.ID))

	var convs, entries int64
	require.NoError(t, db.Model(&models.Conversation{}).Where("campaign_id = ?", campaign.ID).Count(&convs).Error)
	require.NoError(t, db.Model(&models.OutreachQueueEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), convs, "an opted-out recipient is never re-contacted")
	assert.Equal(t, int64(1), entries)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, campaign.ID).Error)
	assert.Equal(t, 1, fresh.TotalConversations)
}
