package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackAdapter posts the town feed to a single Slack channel via
// chat.PostMessage. Outbound-only, so no Socket Mode connection.
type SlackAdapter struct {
	client    *slack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackAdapter creates a Slack feed adapter. botToken is the Bot User
// OAuth Token (xoxb-...).
func NewSlackAdapter(botToken, channelID string, logger *zap.Logger) *SlackAdapter {
	return &SlackAdapter{
		client:    slack.New(botToken),
		channelID: channelID,
		logger:    logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// Connect verifies the token with an auth test.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.logger.Info("slack adapter connected",
		zap.String("user", resp.User),
		zap.String("channel", a.channelID))
	return nil
}

// Post sends a feed line to the configured channel.
func (a *SlackAdapter) Post(ctx context.Context, text string) error {
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the client is stateless HTTP.
func (a *SlackAdapter) Close() error {
	return nil
}
