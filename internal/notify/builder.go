package notify

import (
	"time"

	"github.com/rs/zerolog"

	"gatewatch/internal/config"
)

// FromConfig assembles the notifier chain. Console logging is always on.
// Other channels are added only when fully configured; WhatsApp and email
// are wrapped in their cooldowns.
func FromConfig(cfg config.NotifyConfig, log zerolog.Logger) *Composite {
	notifiers := []Notifier{NewConsole(log)}

	if cfg.Webhook.URL != "" {
		wh, err := NewWebhook(cfg.Webhook.URL, defaultWebhookTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("webhook notifier disabled")
		} else {
			notifiers = append(notifiers, wh)
		}
	}

	wa := cfg.WhatsApp
	if wa.AccountSID != "" && wa.AuthToken != "" && wa.From != "" && wa.To != "" {
		notifiers = append(notifiers, NewRateLimited(
			NewWhatsApp(WhatsAppConfig{
				AccountSID: wa.AccountSID,
				AuthToken:  wa.AuthToken,
				From:       wa.From,
				To:         wa.To,
				BaseURL:    wa.BaseURL,
			}),
			time.Duration(wa.CooldownSec)*time.Second,
			log,
		))
	}

	em := cfg.Email
	if em.SMTPHost != "" && em.From != "" && em.To != "" {
		notifiers = append(notifiers, NewRateLimited(
			NewEmail(EmailConfig{
				Host:     em.SMTPHost,
				Port:     em.SMTPPort,
				Username: em.SMTPUser,
				Password: em.SMTPPass,
				From:     em.From,
				To:       em.To,
			}),
			time.Duration(em.CooldownSec)*time.Second,
			log,
		))
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic != "" {
		notifiers = append(notifiers, NewMQTT(MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}))
	}

	c := NewComposite(log, notifiers...)
	log.Info().Strs("channels", c.Channels()).Msg("notifier chain configured")
	return c
}
