package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MessageSender delivers one outbound message and returns the provider's
// message identifier
type MessageSender interface {
	Send(to, body string) (string, error)
}

// TwilioClient sends WhatsApp messages through the Twilio REST API
type TwilioClient struct {
	client     *resty.Client
	accountSID string
	from       string
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilioClient(accountSID, authToken, from, baseURL string) *TwilioClient {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(accountSID, authToken).
		SetTimeout(30 * time.Second)

	return &TwilioClient{
		client:     client,
		accountSID: accountSID,
		from:       from,
	}
}

// Send delivers a WhatsApp message and returns the Twilio message SID.
// Destinations may be passed with or without the whatsapp: prefix.
func (t *TwilioClient) Send(to, body string) (string, error) {
	var result twilioMessageResponse
	var apiErr twilioErrorResponse

	resp, err := t.client.R().
		SetFormData(map[string]string{
			"From": WhatsAppAddress(t.from),
			"To":   WhatsAppAddress(to),
			"Body": body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", t.accountSID))
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("twilio returned %d: %s", resp.StatusCode(), apiErr.Message)
	}
	if result.SID == "" {
		return "", fmt.Errorf("twilio response missing message sid")
	}

	return result.SID, nil
}

// WhatsAppAddress ensures the whatsapp: channel prefix is present
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

// NormalizePhone strips the whatsapp: channel prefix from an inbound address
func NormalizePhone(address string) string {
	return strings.TrimPrefix(address, "whatsapp:")
}
