package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"snitch/internal/core"
)

// command pairs a slash-command definition with its handler. adminOnly
// commands require the invoker to be the guild owner or a configured
// admin.
type command struct {
	definition *discordgo.ApplicationCommand
	adminOnly  bool
	handle     func(ctx context.Context, community *core.Community, i *discordgo.InteractionCreate) (string, error)
}

func (b *Bot) commandTable() map[string]command {
	personaChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(core.Personas()))
	for _, persona := range core.Personas() {
		personaChoices = append(personaChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  string(persona),
			Value: string(persona),
		})
	}

	return map[string]command{
		"breaking-news": {
			definition: &discordgo.ApplicationCommand{
				Name:        "breaking-news",
				Description: "Generate a breaking news bulletin from recent channel activity",
			},
			handle: b.handleBreakingNews,
		},
		"leak": {
			definition: &discordgo.ApplicationCommand{
				Name:        "leak",
				Description: "Leak an insider scoop about what's brewing in the channel",
			},
			handle: b.handleLeak,
		},
		"fact-check": {
			definition: &discordgo.ApplicationCommand{
				Name:        "fact-check",
				Description: "Run a humorous fact-check on a claim or the latest message",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "claim",
						Description: "The claim to check (defaults to the most recent message)",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    false,
					},
				},
			},
			handle: b.handleFactCheck,
		},
		"submit-tip": {
			definition: &discordgo.ApplicationCommand{
				Name:        "submit-tip",
				Description: "Anonymously tip off the newsroom",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "tip",
						Description: "What should the newsroom look into?",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
			handle: b.handleSubmitTip,
		},
		"set-persona": {
			definition: &discordgo.ApplicationCommand{
				Name:        "set-persona",
				Description: "Choose the newsletter's writing persona",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "persona",
						Description: "The persona to write as",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
						Choices:     personaChoices,
					},
				},
			},
			adminOnly: true,
			handle:    b.handleSetPersona,
		},
		"set-news-channel": {
			definition: &discordgo.ApplicationCommand{
				Name:        "set-news-channel",
				Description: "Set the channel the daily newsletter is posted to",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "channel",
						Description: "The newsletter channel",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Required:    true,
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildText,
						},
					},
				},
			},
			adminOnly: true,
			handle:    b.handleSetNewsChannel,
		},
		"set-news-time": {
			definition: &discordgo.ApplicationCommand{
				Name:        "set-news-time",
				Description: "Set the daily newsletter time (HH:MM, UTC)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "time",
						Description: "Time of day in 24-hour HH:MM, UTC",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
					},
				},
			},
			adminOnly: true,
			handle:    b.handleSetNewsTime,
		},
	}
}

// isAdmin reports whether the invoking member may run admin commands:
// configured admins, the guild owner, or anyone with the Administrator
// permission.
func isAdmin(community *core.Community, i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	if community.IsAdmin(i.Member.User.ID) {
		return true
	}
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// optionString returns a named string option, or "" when absent.
func optionString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// optionChannelID returns a named channel option's ID, or "" when absent
// or when the payload carries an unexpected value type.
func optionChannelID(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionChannel {
			if id, ok := opt.Value.(string); ok {
				return id
			}
			return ""
		}
	}
	return ""
}
