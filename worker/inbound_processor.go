package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"meshline/models"
	"meshline/utils"
)

const abandonAckText = "Understood, thanks for your time! Take care."

// liveStatuses are the conversation states an inbound reply can land in
var liveStatuses = []string{
	models.ConversationStatusOutreachSent,
	models.ConversationStatusBountySent,
	models.ConversationStatusActive,
}

// InboundProcessor routes inbound webhook messages to the state-machine
// handlers. One goroutine per webhook; the agent semaphore is the only
// in-process shared state.
type InboundProcessor struct {
	DB     *gorm.DB
	Agent  utils.AgentProvider
	Sender utils.MessageSender
	Logger *log.Logger

	agentSlots chan struct{}
}

func NewInboundProcessor(db *gorm.DB, agent utils.AgentProvider, sender utils.MessageSender, logger *log.Logger, maxConcurrentAgentCalls int) *InboundProcessor {
	if maxConcurrentAgentCalls <= 0 {
		maxConcurrentAgentCalls = 1
	}
	return &InboundProcessor{
		DB:         db,
		Agent:      agent,
		Sender:     sender,
		Logger:     logger,
		agentSlots: make(chan struct{}, maxConcurrentAgentCalls),
	}
}

// Enqueue hands one inbound message off for asynchronous processing. The
// webhook handler must not wait on the state machine, so this returns
// immediately and failures are only logged.
func (ip *InboundProcessor) Enqueue(phone, body, twilioSID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ip.Logger.Printf("Inbound processing panicked for %s: %v", phone, r)
			}
		}()
		ip.Process(phone, body, twilioSID)
	}()
}

// Process runs the full inbound pipeline for one webhook delivery
func (ip *InboundProcessor) Process(phone, body, twilioSID string) {
	// Idempotency pre-check. The unique index on twilio_sid is the last
	// line of defense if two deliveries race past this.
	if twilioSID != "" {
		var count int64
		if err := ip.DB.Model(&models.Message{}).Where("twilio_sid = ?", twilioSID).Count(&count).Error; err != nil {
			ip.Logger.Printf("Dedup check failed for sid %s: %v", twilioSID, err)
			return
		}
		if count > 0 {
			ip.Logger.Printf("Duplicate webhook for sid %s, skipping", twilioSID)
			return
		}
	}

	user, created, err := ip.resolveUser(phone)
	if err != nil {
		ip.Logger.Printf("Failed to resolve user %s: %v", phone, err)
		return
	}

	conv, campaign, mode, err := ip.route(user, created)
	if err != nil {
		ip.Logger.Printf("Failed to route inbound from %s: %v", phone, err)
		return
	}

	ip.handle(conv, campaign, user, mode, body, twilioSID)
}

// resolveUser loads the user for a phone number, creating one in status new
// on first contact
func (ip *InboundProcessor) resolveUser(phone string) (*models.User, bool, error) {
	var user models.User
	err := ip.DB.Where("phone_number = ?", phone).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user = models.User{PhoneNumber: phone, Status: models.UserStatusNew}
	if err := ip.DB.Create(&user).Error; err != nil {
		// Lost a creation race with a concurrent webhook; reload
		if reloadErr := ip.DB.Where("phone_number = ?", phone).First(&user).Error; reloadErr != nil {
			return nil, false, err
		}
		return &user, false, nil
	}
	return &user, true, nil
}

// route picks the conversation and handler mode for an inbound message,
// following the ingestion routing policy in order
func (ip *InboundProcessor) route(user *models.User, userCreated bool) (*models.Conversation, *models.Campaign, string, error) {
	// A brand new user always goes to onboarding, whatever else exists
	if userCreated {
		conv, err := ip.resumeOrCreateThread(user)
		return conv, nil, utils.AgentModeOnboarding, err
	}

	var conv models.Conversation
	err := ip.DB.Preload("Campaign").
		Where("phone_number = ? AND status IN ?", user.PhoneNumber, liveStatuses).
		Order("created_at DESC").
		First(&conv).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, "", err
		}

		// No live conversation: resume onboarding or open an ad hoc thread
		if user.Status == models.UserStatusNew || user.Status == models.UserStatusOnboarding {
			thread, cerr := ip.resumeOrCreateThread(user)
			return thread, nil, utils.AgentModeOnboarding, cerr
		}
		thread, cerr := ip.createGeneralThread(user)
		return thread, nil, utils.AgentModeGeneral, cerr
	}

	if conv.CampaignID == nil {
		return &conv, nil, utils.AgentModeOnboarding, nil
	}

	switch conv.Status {
	case models.ConversationStatusBountySent:
		return &conv, conv.Campaign, utils.AgentModeBounty, nil
	case models.ConversationStatusOutreachSent, models.ConversationStatusActive:
		return &conv, conv.Campaign, utils.AgentModeCampaign, nil
	}

	// Unreachable by construction; degrade instead of dropping the message
	ip.Logger.Printf("⚠️ Unexpected routing state for conversation %d (status=%s), falling back to general", conv.ID, conv.Status)
	return &conv, conv.Campaign, utils.AgentModeGeneral, nil
}

// resumeOrCreateThread returns the user's live onboarding thread, creating
// one when none exists
func (ip *InboundProcessor) resumeOrCreateThread(user *models.User) (*models.Conversation, error) {
	var conv models.Conversation
	err := ip.DB.Where("user_id = ? AND campaign_id IS NULL AND status IN ?", user.ID, liveStatuses).
		Order("created_at DESC").
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.Conversation{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Status:      models.ConversationStatusActive,
	}
	if err := ip.DB.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// createGeneralThread opens a one-shot ad hoc conversation. It is closed
// after exactly one exchange.
func (ip *InboundProcessor) createGeneralThread(user *models.User) (*models.Conversation, error) {
	conv := models.Conversation{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Status:      models.ConversationStatusActive,
	}
	if err := ip.DB.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// handle runs the fixed handler skeleton: locked ingest, unlocked generation,
// locked write-back, then transport send
func (ip *InboundProcessor) handle(conv *models.Conversation, campaign *models.Campaign, user *models.User, mode, body, twilioSID string) {
	proceed, abandoned, history, err := ip.ingestInbound(conv, mode, body, twilioSID)
	if err != nil {
		ip.Logger.Printf("Failed to ingest inbound for conversation %d: %v", conv.ID, err)
		return
	}
	if abandoned {
		ip.safeSend(conv.PhoneNumber, abandonAckText)
		ip.checkCompletion(conv)
		return
	}
	if !proceed {
		return
	}

	req := ip.buildAgentRequest(conv, campaign, user, mode, history)

	// The agent call happens outside the conversation lock; generation
	// latency must not block other webhooks for the same user base.
	ip.agentSlots <- struct{}{}
	resp, err := ip.Agent.Respond(context.Background(), req)
	<-ip.agentSlots
	if err != nil {
		// Soft failure: no reply goes out and the conversation is left as
		// it was, safe to retry on the next inbound message
		utils.LogError("agent_failure", err, map[string]interface{}{
			"conversation_id": conv.ID,
			"mode":            mode,
		})
		return
	}

	terminal, err := ip.applyAgentOutcome(conv, campaign, user, mode, resp)
	if err != nil {
		ip.Logger.Printf("Failed to apply agent outcome for conversation %d: %v", conv.ID, err)
		return
	}

	ip.safeSend(conv.PhoneNumber, resp.Message)

	if terminal {
		ip.checkCompletion(conv)
	}
}

// ingestInbound is phase one of the handler skeleton: under the conversation
// lock it inserts the inbound message idempotently, short-circuits stop
// keywords, and snapshots the history for generation.
func (ip *InboundProcessor) ingestInbound(conv *models.Conversation, mode, body, twilioSID string) (proceed, abandoned bool, history []utils.HistoryMessage, err error) {
	err = ip.DB.Transaction(func(tx *gorm.DB) error {
		if lockErr := acquireAdvisoryLock(tx, lockClassConversation, conv.ID); lockErr != nil {
			return lockErr
		}

		// Re-check under the lock; a duplicate delivery may have won the race
		if twilioSID != "" {
			var count int64
			if err := tx.Model(&models.Message{}).Where("twilio_sid = ?", twilioSID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
		}

		inbound := models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderUser,
			Content:        body,
		}
		if twilioSID != "" {
			inbound.TwilioSID = utils.Pointer(twilioSID)
		}
		if err := tx.Create(&inbound).Error; err != nil {
			return err
		}

		if IsStopKeyword(body) {
			ack := models.Message{
				ConversationID: conv.ID,
				Sender:         models.SenderAgent,
				Content:        abandonAckText,
			}
			if err := tx.Create(&ack).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
				Updates(map[string]interface{}{
					"status":        models.ConversationStatusAbandoned,
					"message_count": gorm.Expr("message_count + ?", 2),
					"completed_at":  time.Now(),
				}).Error; err != nil {
				return err
			}
			abandoned = true
			return nil
		}

		// First reply to a campaign opener activates the conversation
		if mode == utils.AgentModeCampaign && conv.Status == models.ConversationStatusOutreachSent {
			if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
				Update("status", models.ConversationStatusActive).Error; err != nil {
				return err
			}
			conv.Status = models.ConversationStatusActive
		}

		var msgs []models.Message
		if err := tx.Where("conversation_id = ?", conv.ID).Order("created_at").Find(&msgs).Error; err != nil {
			return err
		}
		for _, m := range msgs {
			history = append(history, utils.HistoryMessage{Sender: m.Sender, Content: m.Content})
		}
		proceed = true
		return nil
	})
	return proceed, abandoned, history, err
}

func (ip *InboundProcessor) buildAgentRequest(conv *models.Conversation, campaign *models.Campaign, user *models.User, mode string, history []utils.HistoryMessage) utils.AgentRequest {
	req := utils.AgentRequest{
		Mode:         mode,
		History:      history,
		Demographics: user.Demographics(),
	}
	if campaign != nil {
		req.ResearchBrief = campaign.ResearchBrief
		req.ExtractionSchema = campaign.ExtractionSchema
		req.ExtractedData = conv.ExtractedData
		if campaign.RewardText != nil {
			req.RewardText = *campaign.RewardText
		}
		if campaign.RewardLink != nil {
			req.RewardLink = *campaign.RewardLink
		}
		if campaign.SystemPromptOverride != nil {
			req.PromptOverride = *campaign.SystemPromptOverride
		}
	}
	return req
}

// applyAgentOutcome is phase two of the handler skeleton: it re-acquires the
// conversation lock, appends the agent message, merges structured updates and
// applies the status transition the agent dictated. Returns whether the
// conversation reached a terminal status.
func (ip *InboundProcessor) applyAgentOutcome(conv *models.Conversation, campaign *models.Campaign, user *models.User, mode string, resp *utils.AgentResponse) (terminal bool, err error) {
	err = ip.DB.Transaction(func(tx *gorm.DB) error {
		if lockErr := acquireAdvisoryLock(tx, lockClassConversation, conv.ID); lockErr != nil {
			return lockErr
		}

		outgoing := models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderAgent,
			Content:        resp.Message,
		}
		if err := tx.Create(&outgoing).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"message_count": gorm.Expr("message_count + ?", 2),
		}

		switch mode {
		case utils.AgentModeOnboarding:
			if err := ip.mergeDemographics(tx, user, resp.DemographicsUpdate); err != nil {
				return err
			}
			if resp.ConversationComplete {
				updates["status"] = models.ConversationStatusCompleted
				updates["completed_at"] = time.Now()
				terminal = true
			}

		case utils.AgentModeCampaign:
			conv.MergeExtractedData(resp.ExtractedDataUpdate)
			// Map-valued Updates bypass the field's serializer:json, so
			// marshal explicitly to keep the write driver-independent
			raw, merr := json.Marshal(conv.ExtractedData)
			if merr != nil {
				return merr
			}
			updates["extracted_data"] = string(raw)
			if err := ip.mergeDemographics(tx, user, resp.DemographicsUpdate); err != nil {
				return err
			}
			if resp.ConversationComplete {
				updates["status"] = models.ConversationStatusCompleted
				updates["completed_at"] = time.Now()
				terminal = true
				if campaign != nil {
					if err := tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
						Update("completed_conversations", gorm.Expr("completed_conversations + ?", 1)).Error; err != nil {
						return err
					}
				}
			}

		case utils.AgentModeBounty:
			switch resp.Bounty {
			case utils.BountyAccepted:
				updates["status"] = models.ConversationStatusActive
			case utils.BountyDeclined:
				updates["status"] = models.ConversationStatusDeclined
				updates["completed_at"] = time.Now()
				terminal = true
			}
			// Ambiguous replies leave the status untouched; the agent's
			// clarification still goes out

		default: // general threads close after exactly one exchange
			updates["status"] = models.ConversationStatusCompleted
			updates["completed_at"] = time.Now()
			terminal = true
		}

		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error
	})
	if err != nil {
		terminal = false
	}
	return terminal, err
}

// mergeDemographics applies the whitelisted demographic update and persists
// the onboarded flip, if any, in the surrounding transaction
func (ip *InboundProcessor) mergeDemographics(tx *gorm.DB, user *models.User, update models.DemographicUpdate) error {
	var fresh models.User
	if err := tx.First(&fresh, user.ID).Error; err != nil {
		return err
	}

	if fresh.Status == models.UserStatusNew {
		fresh.Status = models.UserStatusOnboarding
	}

	becameOnboarded := fresh.ApplyDemographics(update)
	if err := tx.Save(&fresh).Error; err != nil {
		return err
	}
	*user = fresh

	if becameOnboarded {
		utils.LogEvent("user_onboarded", map[string]interface{}{
			"user_id": fresh.ID,
		})
	}
	return nil
}

func (ip *InboundProcessor) checkCompletion(conv *models.Conversation) {
	if conv.CampaignID == nil {
		return
	}
	if err := utils.CheckCampaignCompletion(ip.DB, *conv.CampaignID); err != nil {
		ip.Logger.Printf("Completion check failed for campaign %d: %v", *conv.CampaignID, err)
	}
}

func (ip *InboundProcessor) safeSend(phone, text string) {
	sid, err := ip.Sender.Send(phone, text)
	if err != nil {
		utils.LogError("send_failure", err, map[string]interface{}{
			"phone": phone,
		})
		return
	}
	ip.Logger.Printf("Sent WhatsApp message sid=%s to=%s", sid, phone)
}
