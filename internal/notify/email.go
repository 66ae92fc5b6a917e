package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"gatewatch/internal/domain/gate"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	Timeout  time.Duration
}

// Email sends one plain-text message per event over SMTP. STARTTLS is used
// when the server offers it.
type Email struct {
	cfg EmailConfig
}

func NewEmail(cfg EmailConfig) *Email {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRESTTimeout
	}
	return &Email{cfg: cfg}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, event gate.DetectionEvent) error {
	msg, err := e.message(event)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(e.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if e.cfg.Username != "" && e.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err = client.DialAndSendWithContext(ctx, msg)
	sendDuration.WithLabelValues(e.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", e.cfg.Host, e.cfg.Port, err)
	}
	return nil
}

func (e *Email) message(event gate.DetectionEvent) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", e.cfg.From, err)
	}
	if err := msg.To(e.cfg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", e.cfg.To, err)
	}
	msg.Subject(fmt.Sprintf("GateWatch alert: %s/%s", event.Subject, event.Arrival))

	body, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal email body: %w", err)
	}
	msg.SetBodyString(mail.TypeTextPlain, string(body))
	return msg, nil
}
