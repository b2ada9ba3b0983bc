package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"meshline/models"
	"meshline/utils"
)

// OutreachWorker is the single background loop that drains the outreach
// queue at the configured rate. Multiple instances are safe: claims use
// FOR UPDATE SKIP LOCKED, so no entry is ever claimed twice.
type OutreachWorker struct {
	DB     *gorm.DB
	Agent  utils.AgentProvider
	Sender utils.MessageSender
	Logger *log.Logger

	PollInterval time.Duration
	BatchSize    int
}

func NewOutreachWorker(db *gorm.DB, agent utils.AgentProvider, sender utils.MessageSender, logger *log.Logger, pollInterval time.Duration, batchSize int) *OutreachWorker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutreachWorker{
		DB:           db,
		Agent:        agent,
		Sender:       sender,
		Logger:       logger,
		PollInterval: pollInterval,
		BatchSize:    batchSize,
	}
}

func (ow *OutreachWorker) Start(ctx context.Context) {
	ow.Logger.Println("Outreach worker started")

	for {
		select {
		case <-ctx.Done():
			ow.Logger.Println("Outreach worker shutting down...")
			return
		default:
		}

		processed := ow.processBatch()

		// Drain backlog immediately; only sleep when the queue was empty
		if processed == 0 {
			select {
			case <-ctx.Done():
				ow.Logger.Println("Outreach worker shutting down...")
				return
			case <-time.After(ow.PollInterval):
			}
		}
	}
}

type claimedEntry struct {
	ID             uint
	ConversationID uint
}

// processBatch claims a batch of due pending entries and dispatches each
// independently. A bad entry never aborts the batch or the loop.
func (ow *OutreachWorker) processBatch() int {
	var claimed []claimedEntry

	// Claim and mark-taken in a single atomic statement. Rows another
	// dispatcher holds are skipped, not waited on.
	err := ow.DB.Raw(`
        UPDATE outreach_queue
        SET status = ?, updated_at = NOW()
        WHERE id IN (
            SELECT id FROM outreach_queue
            WHERE status = ? AND scheduled_at <= NOW() AND deleted_at IS NULL
            ORDER BY scheduled_at
            LIMIT ?
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, conversation_id`,
		models.OutreachStatusSent, models.OutreachStatusPending, ow.BatchSize,
	).Scan(&claimed).Error
	if err != nil {
		ow.Logger.Printf("Failed to claim outreach batch: %v", err)
		return 0
	}

	for _, entry := range claimed {
		if err := ow.dispatch(entry); err != nil {
			ow.Logger.Printf("Failed outreach for conversation %d: %v", entry.ConversationID, err)
			ow.markFailed(entry, err)
		}
	}

	return len(claimed)
}

// dispatch sends the opening message for one claimed entry
func (ow *OutreachWorker) dispatch(entry claimedEntry) error {
	var conv models.Conversation
	if err := ow.DB.Preload("Campaign").Preload("User").First(&conv, entry.ConversationID).Error; err != nil {
		return fmt.Errorf("conversation not found: %w", err)
	}
	if conv.Campaign == nil {
		return fmt.Errorf("conversation %d has no campaign", conv.ID)
	}
	campaign := conv.Campaign

	bounty := campaign.HasReward()

	if bounty {
		// At most one live outbound thread per user, across campaigns
		reverted, err := ow.reserveBountySlot(entry, &conv)
		if err != nil {
			return err
		}
		if reverted {
			return nil
		}
	}

	var opener string
	if bounty {
		opener = BuildBountyOpener(campaign)
	} else {
		resp, err := ow.Agent.Respond(context.Background(), utils.AgentRequest{
			Mode:             utils.AgentModeCampaign,
			Demographics:     conv.User.Demographics(),
			ResearchBrief:    campaign.ResearchBrief,
			ExtractionSchema: campaign.ExtractionSchema,
			PromptOverride:   derefString(campaign.SystemPromptOverride),
		})
		if err != nil {
			return fmt.Errorf("opener generation failed: %w", err)
		}
		opener = resp.Message
	}

	sid, err := ow.Sender.Send(conv.PhoneNumber, opener)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	openedStatus := models.ConversationStatusOutreachSent
	if bounty {
		openedStatus = models.ConversationStatusBountySent
	}

	err = ow.DB.Transaction(func(tx *gorm.DB) error {
		msg := models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderAgent,
			Content:        opener,
			TwilioSID:      utils.Pointer(sid),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"status":        openedStatus,
				"message_count": 1,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.OutreachQueueEntry{}).Where("id = ?", entry.ID).
			Updates(map[string]interface{}{
				"sent_at": time.Now(),
				"error":   "",
			}).Error
	})
	if err != nil {
		return err
	}

	ow.Logger.Printf("Outreach sent to %s, sid=%s", conv.PhoneNumber, sid)
	return nil
}

// reserveBountySlot checks that the user has no other live thread and, in the
// same transaction, publishes this conversation as bounty_sent. Check and flip
// must commit together under the per-user advisory lock: a concurrent
// dispatcher working on the same user either waits on the lock and then sees
// the published thread, or publishes first and makes this one revert. When the
// user is busy the entry goes back to pending to retry on a later cycle.
func (ow *OutreachWorker) reserveBountySlot(entry claimedEntry, conv *models.Conversation) (bool, error) {
	reverted := false
	err := ow.DB.Transaction(func(tx *gorm.DB) error {
		if err := acquireAdvisoryLock(tx, lockClassUser, conv.UserID); err != nil {
			return err
		}

		var live int64
		if err := tx.Model(&models.Conversation{}).
			Where("user_id = ? AND id <> ? AND status IN ?", conv.UserID, conv.ID,
				[]string{models.ConversationStatusActive, models.ConversationStatusBountySent}).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			reverted = true
			return tx.Model(&models.OutreachQueueEntry{}).Where("id = ?", entry.ID).
				Update("status", models.OutreachStatusPending).Error
		}

		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Update("status", models.ConversationStatusBountySent).Error
	})
	if err != nil {
		return false, err
	}
	if reverted {
		ow.Logger.Printf("User %d busy, reverted outreach entry %d to pending", conv.UserID, entry.ID)
	} else {
		conv.Status = models.ConversationStatusBountySent
	}
	return reverted, nil
}

// markFailed records a dispatch failure on both the queue entry and the
// conversation; a failed conversation still counts as terminal for campaign
// completion
func (ow *OutreachWorker) markFailed(entry claimedEntry, dispatchErr error) {
	if err := ow.DB.Model(&models.OutreachQueueEntry{}).Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status": models.OutreachStatusFailed,
			"error":  dispatchErr.Error(),
		}).Error; err != nil {
		ow.Logger.Printf("Failed to mark queue entry %d failed: %v", entry.ID, err)
	}

	var conv models.Conversation
	if err := ow.DB.First(&conv, entry.ConversationID).Error; err != nil {
		ow.Logger.Printf("Failed to load conversation %d after dispatch failure: %v", entry.ConversationID, err)
		return
	}

	if err := ow.DB.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		Update("status", models.ConversationStatusFailed).Error; err != nil {
		ow.Logger.Printf("Failed to mark conversation %d failed: %v", conv.ID, err)
	}

	if conv.CampaignID != nil {
		if err := utils.CheckCampaignCompletion(ow.DB, *conv.CampaignID); err != nil {
			ow.Logger.Printf("Completion check failed for campaign %d: %v", *conv.CampaignID, err)
		}
	}
}

// BuildBountyOpener renders the deterministic bounty invitation; no agent
// call is warranted for the opener itself
func BuildBountyOpener(campaign *models.Campaign) string {
	reward := derefString(campaign.RewardText)
	opener := fmt.Sprintf("💰 New bounty for you: %s. Reward: %s.", campaign.Name, reward)
	return opener + " Want in? Reply 'go' to start or 'pass' to skip."
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
