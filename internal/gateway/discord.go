package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter posts the town feed to a single Discord channel.
type DiscordAdapter struct {
	token     string
	channelID string
	session   *discordgo.Session
	logger    *zap.Logger
}

// NewDiscordAdapter creates a Discord feed adapter.
func NewDiscordAdapter(token, channelID string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:     token,
		channelID: channelID,
		logger:    logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// Connect opens the Discord session. The feed only writes, so no intents
// beyond the default are requested.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	a.session = session

	if len(session.State.Guilds) == 0 {
		a.logger.Warn("discord bot not added to any server — invite it first")
	}
	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.String("channel", a.channelID))
	return nil
}

// Post sends a feed line to the configured channel.
func (a *DiscordAdapter) Post(_ context.Context, text string) error {
	if a.session == nil {
		return fmt.Errorf("discord not connected")
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, text); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}
