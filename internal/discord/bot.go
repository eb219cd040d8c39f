// Package discord hosts the chat-platform surface: the bot session, slash
// commands, and the adapters the pipeline uses to read and post messages.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"snitch/internal/config"
	"snitch/internal/core"
	"snitch/internal/logger"
	"snitch/internal/persistence"
	"snitch/internal/pipeline"
)

// Bot encapsulates the Discord session and the services commands call
// into.
type Bot struct {
	session        *discordgo.Session
	db             persistence.Database
	pipeline       *pipeline.Pipeline
	fetchLimit     int
	commandTimeout time.Duration
	commands       map[string]command
	registered     []*discordgo.ApplicationCommand
}

// NewBot creates the bot session and registers handlers. The session is
// not opened until Start.
func NewBot(cfg config.Discord, db persistence.Database, pipe *pipeline.Pipeline) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no bot token provided")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions

	bot := &Bot{
		session:        session,
		db:             db,
		pipeline:       pipe,
		fetchLimit:     cfg.FetchLimit,
		commandTimeout: config.Duration(cfg.CommandTimeout, 25*time.Second),
	}
	bot.commands = bot.commandTable()

	session.AddHandler(bot.onInteraction)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onGuildDelete)
	return bot, nil
}

// Start opens the session and registers the slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	for name, cmd := range b.commands {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd.definition)
		if err != nil {
			logger.Error("Cannot create slash command", err, "command", name)
			continue
		}
		b.registered = append(b.registered, created)
	}
	logger.Info("Bot connected", "commands", len(b.registered))
	return nil
}

// Stop closes the session.
func (b *Bot) Stop() error {
	return b.session.Close()
}

// Session exposes the underlying session for the history and posting
// adapters.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// onGuildCreate registers a default community the first time the bot sees
// a guild, and re-enables a previously disabled one.
func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	existing, err := b.db.Communities().Get(ctx, event.ID)
	if err != nil {
		logger.Error("Community lookup failed on guild join", err, "guild_id", event.ID)
		return
	}
	if existing != nil {
		if !existing.Enabled {
			if err := b.db.Communities().SetEnabled(ctx, event.ID, true); err != nil {
				logger.Error("Failed to re-enable community", err, "guild_id", event.ID)
			}
		}
		return
	}

	community := &core.Community{
		ID:             event.ID,
		Name:           event.Name,
		Persona:        core.PersonaSassyReporter,
		NewsletterTime: "09:00",
		Enabled:        true,
		AdminUserIDs:   []string{event.OwnerID},
	}
	if err := b.db.Communities().Create(ctx, community); err != nil {
		logger.Error("Failed to create community on guild join", err, "guild_id", event.ID)
		return
	}
	logger.Info("Community registered", "guild_id", event.ID, "name", event.Name)
}

// onGuildDelete soft-disables the community; its data stays.
func (b *Bot) onGuildDelete(s *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Unavailable {
		return // outage, not a removal
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	if err := b.db.Communities().SetEnabled(ctx, event.ID, false); err != nil {
		logger.Error("Failed to disable community on guild leave", err, "guild_id", event.ID)
		return
	}
	logger.Info("Community disabled", "guild_id", event.ID)
}

// community resolves the interaction's guild to its community record,
// creating a default one if the guild joined before the bot tracked joins.
func (b *Bot) community(ctx context.Context, guildID string) (*core.Community, error) {
	if guildID == "" {
		return nil, fmt.Errorf("command must be used inside a server")
	}
	community, err := b.db.Communities().Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if community == nil {
		community = &core.Community{
			ID:             guildID,
			Persona:        core.PersonaSassyReporter,
			NewsletterTime: "09:00",
			Enabled:        true,
		}
		if err := b.db.Communities().Create(ctx, community); err != nil {
			return nil, err
		}
	}
	return community, nil
}
