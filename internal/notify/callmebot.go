package notify

import (
	"context"
	"strings"
	"time"

	"backend-safetrack/internal/contacts"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// Channel delivers one text message. It reports success only; failures are logged by the channel.
type Channel interface {
	Send(ctx context.Context, recipient, text string) bool
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(15 * time.Second)
}

// TelegramChannel posts through the CallMeBot text API. The recipient must have authorized the bot.
type TelegramChannel struct {
	client *resty.Client
}

func NewTelegramChannel(baseURL string) *TelegramChannel {
	return &TelegramChannel{client: newClient(baseURL)}
}

func (c *TelegramChannel) Send(ctx context.Context, recipient, text string) bool {
	user := strings.TrimPrefix(recipient, "@")
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user": user,
			"text": text,
		}).
		Get("/text.php")
	if err != nil {
		log.WithError(err).Warnf("telegram: request for @%s failed", user)
		return false
	}
	if res.IsSuccess() && strings.Contains(strings.ToLower(res.String()), "sent to") {
		log.Debugf("telegram: sent to @%s", user)
		return true
	}
	log.Warnf("telegram: unexpected reply for @%s: %d %s", user, res.StatusCode(), res.String())
	return false
}

// WhatsAppChannel posts through the CallMeBot WhatsApp API using the owner's own API key.
type WhatsAppChannel struct {
	client *resty.Client
	apiKey string
}

func NewWhatsAppChannel(baseURL, apiKey string) *WhatsAppChannel {
	return &WhatsAppChannel{client: newClient(baseURL), apiKey: apiKey}
}

func (c *WhatsAppChannel) Send(ctx context.Context, recipient, text string) bool {
	phone := contacts.Digits(recipient)
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"phone":  phone,
			"text":   text,
			"apikey": c.apiKey,
		}).
		Get("/whatsapp.php")
	if err != nil {
		log.WithError(err).Warnf("whatsapp: request for %s failed", phone)
		return false
	}
	if res.IsSuccess() && !strings.Contains(strings.ToLower(res.String()), "error") {
		log.Debugf("whatsapp: sent to %s", phone)
		return true
	}
	log.Warnf("whatsapp: unexpected reply for %s: %d %s", phone, res.StatusCode(), res.String())
	return false
}
