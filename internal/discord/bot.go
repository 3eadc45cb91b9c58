// Package discord renders a translation session into a Discord channel and
// lets operators control it with slash commands. It owns the
// discordgo.Session lifecycle, routes interactions to registered handlers,
// and checks the operator role.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string `yaml:"token"`

	// GuildID is the guild slash commands are registered in.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the text channel translations are posted to.
	ChannelID string `yaml:"channel_id"`

	// OperatorRoleID restricts /translate start and stop. Empty allows everyone.
	OperatorRoleID string `yaml:"operator_role_id"`
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	channelID string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord: token and channel_id are required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// Slash commands and posting need no privileged or message intents.
	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	ch, err := session.Channel(cfg.ChannelID)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("discord: channel %s: %w", cfg.ChannelID, err)
	}
	if cfg.GuildID != "" && ch.GuildID != cfg.GuildID {
		_ = session.Close()
		return nil, fmt.Errorf("discord: channel %s is not in guild %s", cfg.ChannelID, cfg.GuildID)
	}
	slog.Info("discord: connected", "channel", ch.Name, "guild_id", ch.GuildID)

	b := &Bot{
		session:   session,
		router:    NewCommandRouter(),
		perms:     NewPermissionChecker(cfg.OperatorRoleID),
		guildID:   cfg.GuildID,
		channelID: cfg.ChannelID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if !b.accepts(i) {
			return
		}
		b.router.Handle(s, i)
	})

	return b, nil
}

// accepts reports whether i comes from the configured guild. Without a
// guild every interaction is accepted.
func (b *Bot) accepts(i *discordgo.InteractionCreate) bool {
	return b.guildID == "" || i.GuildID == b.guildID
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// NewDashboard returns a Dashboard posting to the configured channel.
func (b *Bot) NewDashboard() *Dashboard {
	return NewDashboard(DashboardConfig{API: b.Session(), ChannelID: b.channelID})
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord: commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return nil
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord: bot closed")
	})
	return closeErr
}
