// Package notify posts trend alerts to a Slack channel.
package notify

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultURL is the Slack message-post endpoint.
	DefaultURL = "https://slack.com/api/chat.postMessage"
	// DefaultChannel receives the pressure alerts.
	DefaultChannel = "#drn"
	// DefaultTokenEnv names the environment variable holding the bot token.
	DefaultTokenEnv = "APPVIEW_SLACKBOT_TOKEN"

	defaultTimeout = 10 * time.Second
)

// Notifier is the alert dispatch boundary used by workers.
type Notifier interface {
	Notify(ctx context.Context, message string) bool
}

// Config holds the Slack client settings.
type Config struct {
	URL      string
	Channel  string
	TokenEnv string
	Timeout  time.Duration
}

// SlackClient posts messages with a form-encoded body. Stateless apart
// from the embedded HTTP client; safe for concurrent use.
type SlackClient struct {
	url      string
	channel  string
	tokenEnv string
	client   *http.Client
	logger   zerolog.Logger
}

// NewSlackClient creates a client, filling unset fields with defaults.
func NewSlackClient(cfg Config, logger zerolog.Logger) *SlackClient {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = DefaultTokenEnv
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SlackClient{
		url:      cfg.URL,
		channel:  cfg.Channel,
		tokenEnv: cfg.TokenEnv,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// Notify posts message to the configured channel and reports success.
// Without a token in the environment it fails immediately with no
// network call. Transport errors are logged and read as failure; there
// is no retry.
func (c *SlackClient) Notify(ctx context.Context, message string) bool {
	token := os.Getenv(c.tokenEnv)
	if token == "" {
		c.logger.Error().Str("env", c.tokenEnv).Msg("cannot send notification: no API token")
		return false
	}

	payload := "token=" + token + "&channel=" + c.channel + "&text=" + message

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(payload))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to build notification request")
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("notification request failed")
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to read notification response")
		return false
	}

	// The response is an involved JSON object; all we need is the value
	// of "ok". The only occurrence of ":true" in a success body comes
	// from it, so a substring check stands in for full JSON parsing.
	// Existing deployments depend on this exact heuristic.
	if strings.Contains(string(body), ":true") {
		c.logger.Debug().Msg("notification delivered")
		return true
	}

	c.logger.Warn().Str("body", string(body)).Msg("notification rejected")
	return false
}
