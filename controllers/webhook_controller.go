package controller

import (
	"log"

	"meshline/utils"

	"github.com/gofiber/fiber/v2"
)

// InboundQueue hands an inbound message off for asynchronous processing
type InboundQueue interface {
	Enqueue(phoneNumber, body, twilioSID string)
}

type WebhookController struct {
	Queue  InboundQueue
	Logger *log.Logger
}

func NewWebhookController(queue InboundQueue, logger *log.Logger) *WebhookController {
	return &WebhookController{
		Queue:  queue,
		Logger: logger,
	}
}

// HandleInbound receives Twilio's webhook POST. It acknowledges immediately
// with an empty 200 so Twilio never retries on slow agent calls; all real
// work happens off the request path.
func (wc *WebhookController) HandleInbound(c *fiber.Ctx) error {
	from := utils.NormalizePhone(c.FormValue("From"))
	body := c.FormValue("Body")
	sid := c.FormValue("MessageSid")

	if from == "" {
		wc.Logger.Printf("Inbound webhook without From, sid=%s", sid)
		return c.SendString("")
	}

	wc.Queue.Enqueue(from, body, sid)

	return c.SendString("")
}
