// Package slack posts operator notifications. Claim/store divergence and
// other partial failures are reported here instead of being blindly retried.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kevobebop/kindmind/internal/config"
	"go.uber.org/fx"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

type webhookProvider struct {
	webhookURL string
	client     *http.Client
}

func NewWebhookProvider(webhookURL string) Provider {
	return &webhookProvider{
		webhookURL: strings.TrimSpace(webhookURL),
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *webhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	body, err := json.Marshal(map[string]string{
		"channel": channelID,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func newProvider(cfg config.Config) Provider {
	if cfg.SlackWebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhookProvider(cfg.SlackWebhookURL)
}

var Module = fx.Module("providers.slack",
	fx.Provide(newProvider),
)
