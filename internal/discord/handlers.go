package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"snitch/internal/core"
	"snitch/internal/logger"
	"snitch/internal/scheduler"
)

// onInteraction routes slash commands: defer first (the model is slow),
// resolve the community, enforce admin checks, then follow up with the
// handler's output.
func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	// Config commands and tips answer privately; news output is public.
	var flags discordgo.MessageFlags
	if cmd.adminOnly || name == "submit-tip" {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}); err != nil {
		logger.Error("Failed to defer interaction", err, "command", name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	community, err := b.community(ctx, i.GuildID)
	if err != nil {
		b.followUp(s, i, flags, "Something went wrong looking up this server's settings.")
		logger.Error("Community resolution failed", err, "command", name, "guild_id", i.GuildID)
		return
	}

	if cmd.adminOnly && !isAdmin(community, i) {
		b.followUp(s, i, flags, "Only server admins can use this command.")
		return
	}

	content, err := cmd.handle(ctx, community, i)
	if err != nil {
		b.followUp(s, i, flags, userMessage(err))
		logger.Warn("Command failed", "command", name, "guild_id", i.GuildID, "error", err)
		return
	}
	b.followUp(s, i, flags, content)
}

func (b *Bot) followUp(s *discordgo.Session, i *discordgo.InteractionCreate, flags discordgo.MessageFlags, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   flags,
	})
	if err != nil {
		logger.Error("Failed to send follow-up", err)
	}
}

// userMessage maps internal errors to something worth showing in chat.
func userMessage(err error) string {
	var cfgErr *core.ConfigError
	switch {
	case errors.Is(err, core.ErrInsufficientContent):
		return "Not enough has happened here yet. Give the channel some time to talk!"
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("This server still needs its %s configured.", cfgErr.Missing)
	case core.IsTransient(err):
		return "The newsroom is a bit overloaded right now. Try again in a minute."
	}
	return "The newsroom hit a snag. Try again later."
}

func (b *Bot) handleBreakingNews(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	messages, err := b.recentMessages(i.ChannelID)
	if err != nil {
		return "", err
	}
	return b.pipeline.BreakingNews(ctx, community, messages)
}

func (b *Bot) handleLeak(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	messages, err := b.recentMessages(i.ChannelID)
	if err != nil {
		return "", err
	}
	return b.pipeline.Leak(ctx, community, messages)
}

func (b *Bot) handleFactCheck(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	claim := optionString(i, "claim")
	if claim == "" {
		messages, err := b.recentMessages(i.ChannelID)
		if err != nil {
			return "", err
		}
		claim = latestHumanMessage(messages)
	}

	verdict, remark, err := b.pipeline.FactCheck(ctx, community, claim)
	if err != nil {
		return "", err
	}

	var b2 strings.Builder
	fmt.Fprintf(&b2, "🔍 **Fact check:** %s\n**Verdict: %s**", truncate(claim, 200), verdict)
	if remark != "" {
		b2.WriteString("\n" + remark)
	}
	return b2.String(), nil
}

func (b *Bot) handleSubmitTip(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	content := strings.TrimSpace(optionString(i, "tip"))
	if content == "" {
		return "", core.ErrInsufficientContent
	}

	// Author identity is deliberately not recorded.
	tip := &core.Tip{
		ID:          uuid.New().String(),
		CommunityID: community.ID,
		SubmittedAt: time.Now().UTC(),
		Content:     content,
		Anonymous:   true,
	}
	if err := b.db.Tips().Create(ctx, tip); err != nil {
		return "", err
	}
	return "🤫 Tip received. The newsroom never reveals its sources.", nil
}

func (b *Bot) handleSetPersona(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	persona := core.Persona(optionString(i, "persona"))
	if !persona.Valid() {
		return "That's not a persona I know.", nil
	}
	community.Persona = persona
	if err := b.db.Communities().Update(ctx, community); err != nil {
		return "", err
	}
	return fmt.Sprintf("The newsroom will now write as **%s**.", persona), nil
}

func (b *Bot) handleSetNewsChannel(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	channelID := optionChannelID(i, "channel")
	if channelID == "" {
		return "Pick a text channel for the newsletter.", nil
	}
	community.NewsChannelID = channelID
	if community.SourceChannelID == "" {
		community.SourceChannelID = channelID
	}
	if err := b.db.Communities().Update(ctx, community); err != nil {
		return "", err
	}
	return fmt.Sprintf("Daily newsletters will be posted in <#%s>.", channelID), nil
}

func (b *Bot) handleSetNewsTime(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error) {
	value := strings.TrimSpace(optionString(i, "time"))
	if _, _, err := scheduler.ParseNewsletterTime(value); err != nil {
		return "That doesn't look like a time. Use 24-hour HH:MM, e.g. `09:00`.", nil
	}
	community.NewsletterTime = value
	if err := b.db.Communities().Update(ctx, community); err != nil {
		return "", err
	}
	return fmt.Sprintf("The daily newsletter will go out at **%s UTC**.", value), nil
}

// recentMessages fetches the channel's latest history for the compressed
// commands, oldest first.
func (b *Bot) recentMessages(channelID string) ([]core.RawMessage, error) {
	fetched, err := b.session.ChannelMessages(channelID, b.fetchLimit, "", "", "")
	if err != nil {
		return nil, core.NewTransientError(core.FailureServiceUnavailable, err)
	}

	// Discord returns newest first.
	messages := make([]core.RawMessage, 0, len(fetched))
	for idx := len(fetched) - 1; idx >= 0; idx-- {
		messages = append(messages, toRawMessage(fetched[idx], channelID))
	}
	return messages, nil
}

// latestHumanMessage returns the newest non-bot message content.
func latestHumanMessage(messages []core.RawMessage) string {
	for idx := len(messages) - 1; idx >= 0; idx-- {
		if !messages[idx].AuthorBot && strings.TrimSpace(messages[idx].Content) != "" {
			return messages[idx].Content
		}
	}
	return ""
}

func toRawMessage(m *discordgo.Message, channelID string) core.RawMessage {
	raw := core.RawMessage{
		ID:        m.ID,
		ChannelID: channelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		raw.AuthorID = m.Author.ID
		raw.AuthorBot = m.Author.Bot
	}
	for _, reaction := range m.Reactions {
		if reaction == nil || reaction.Emoji == nil {
			continue
		}
		raw.Reactions = append(raw.Reactions, core.Reaction{
			Emoji: reaction.Emoji.Name,
			Count: reaction.Count,
		})
	}
	return raw
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// HistoryAdapter implements the run path's history fetcher over the bot
// session.
type HistoryAdapter struct {
	bot *Bot
}

// NewHistoryAdapter creates a history fetcher for the scheduler's runner.
func NewHistoryAdapter(bot *Bot) *HistoryAdapter {
	return &HistoryAdapter{bot: bot}
}

// FetchHistory reads channel history back to the since cutoff, paging
// through Discord's 100-message fetch limit.
func (h *HistoryAdapter) FetchHistory(ctx context.Context, channelID string, since time.Time) ([]core.RawMessage, error) {
	var all []core.RawMessage
	beforeID := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := h.bot.session.ChannelMessages(channelID, 100, beforeID, "", "")
		if err != nil {
			return nil, core.NewTransientError(core.FailureServiceUnavailable, err)
		}
		if len(batch) == 0 {
			break
		}

		done := false
		for _, m := range batch {
			if m.Timestamp.Before(since) {
				done = true
				break
			}
			all = append(all, toRawMessage(m, channelID))
		}
		if done || len(batch) < 100 {
			break
		}
		beforeID = batch[len(batch)-1].ID
	}

	// Oldest first for ingestion.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// PosterAdapter implements the dispatcher's ChatPoster over the bot
// session.
type PosterAdapter struct {
	bot *Bot
}

// NewPosterAdapter creates a newsletter poster for the dispatcher.
func NewPosterAdapter(bot *Bot) *PosterAdapter {
	return &PosterAdapter{bot: bot}
}

// PostNewsletter sends the rendered newsletter and returns the posted
// message ID.
func (p *PosterAdapter) PostNewsletter(ctx context.Context, channelID, content string) (string, error) {
	msg, err := p.bot.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", core.NewTransientError(core.FailureServiceUnavailable, err)
	}
	return msg.ID, nil
}

var _ scheduler.HistoryFetcher = (*HistoryAdapter)(nil)
