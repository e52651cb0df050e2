// Package notify delivers alerts and reports to Slack via incoming webhooks.
// Webhook URLs live in Secrets Manager, never in configuration files.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
)

// Notifier delivers a rendered message, routed by severity.
type Notifier interface {
	// Send posts msg to the channel appropriate for severity. Critical goes
	// to the critical channel; everything else to the heartbeat channel.
	Send(ctx context.Context, severity models.Severity, msg *Message) error
}

// Slack is the production Notifier.
type Slack struct {
	httpClient *http.Client
	resolver   *SecretResolver
	cfg        config.SlackConfig
}

// NewSlack returns a Notifier posting through resolver-provided webhook URLs.
func NewSlack(resolver *SecretResolver, cfg config.SlackConfig) *Slack {
	return &Slack{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		resolver:   resolver,
		cfg:        cfg,
	}
}

func (s *Slack) Send(ctx context.Context, severity models.Severity, msg *Message) error {
	if !s.cfg.Enabled {
		return nil
	}

	channel := s.cfg.Heartbeat
	if severity == models.SeverityCritical {
		channel = s.cfg.Critical
	}

	url, err := s.resolver.Get(ctx, channel.WebhookSecretKey)
	if err != nil {
		return fmt.Errorf("resolve webhook for %s: %w", channel.Name, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", channel.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook for %s returned %d: %s", channel.Name, resp.StatusCode, detail)
	}
	return nil
}

var _ Notifier = (*Slack)(nil)
