package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gatewatch/internal/domain/gate"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	defaultRESTTimeout   = 10 * time.Second
)

type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	Timeout    time.Duration
}

// WhatsApp sends a short text message through the Twilio Messages REST API.
type WhatsApp struct {
	cfg        WhatsAppConfig
	endpoint   string
	httpClient *http.Client
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRESTTimeout
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.AccountSID))
	return &WhatsApp{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Send(ctx context.Context, event gate.DetectionEvent) error {
	form := url.Values{}
	form.Set("From", w.cfg.From)
	form.Set("To", w.cfg.To)
	form.Set("Body", shortMessage(event))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.SetBasicAuth(w.cfg.AccountSID, w.cfg.AuthToken)

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	sendDuration.WithLabelValues(w.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp send failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
