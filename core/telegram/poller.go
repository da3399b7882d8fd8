package telegram

import (
	"fmt"
	"time"

	coreconfig "github.com/aleksashka/quiz-bot/core/config"

	tele "gopkg.in/telebot.v4"
)

// newPoller builds either a webhook or long-poller based on run mode.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen: fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{
				PublicURL: cfg.Webhook.URL,
			},
		}
	}
	timeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}
