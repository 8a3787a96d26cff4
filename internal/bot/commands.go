package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "status",
		Description: "Show the current security posture of this server",
	},
	{
		Name:        "violations",
		Description: "Inspect or reset a member's violation count",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "view",
				Description: "Show a member's violation count",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Member to inspect",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Reset a member's violation count to zero",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Member to reset",
						Required:    true,
					},
				},
			},
		},
	},
	{
		Name:        "unmute",
		Description: "Lift a member's mute before it expires",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Member to unmute",
				Required:    true,
			},
		},
	},
	{
		Name:        "lockdown",
		Description: "Manually lock or unlock all text channels",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "on",
				Description: "Disable sending in all text channels",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "off",
				Description: "Restore channel permissions",
			},
		},
	},
	{
		Name:        "raidconfig",
		Description: "Show the raid protection thresholds for this server",
	},
	{
		Name:        "domain",
		Description: "Manage the link filter's domain lists",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "list",
				Description: "Which list to manage",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "allow", Value: "allow"},
					{Name: "block", Value: "block"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "action",
				Description: "What to do",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "add", Value: "add"},
					{Name: "remove", Value: "remove"},
					{Name: "list", Value: "list"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "domain",
				Description: "Domain to add or remove",
			},
		},
	},
	{
		Name:        "words",
		Description: "Manage the blocked word list",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "action",
				Description: "What to do",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "add", Value: "add"},
					{Name: "remove", Value: "remove"},
					{Name: "list", Value: "list"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "word",
				Description: "Word to add or remove",
			},
		},
	},
	{
		Name:        "rules",
		Description: "Adjust this server's moderation policy",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "anti_spam",
				Description: "Enable the anti-spam policy",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "link_filter",
				Description: "Enable the link filter",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "word_filter",
				Description: "Enable the blocked word filter",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "mention_spam",
				Description: "Enable the mention flood policy",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "mention_max",
				Description: "Distinct mentions allowed per message",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "mute_at",
				Description: "Violation count that triggers a mute",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "kick_at",
				Description: "Violation count that triggers a kick",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "ban_at",
				Description: "Violation count that triggers a ban",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "mute_minutes",
				Description: "Mute duration in minutes",
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "log_channel",
				Description: "Channel for security event notifications",
			},
		},
	},
	{
		Name:        "history",
		Description: "Show recent security events",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "hours",
				Description: "How far back to look (default 24)",
			},
		},
	},
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	for _, command := range commands {
		if _, err := b.session.ApplicationCommandCreate(appID, "", command); err != nil {
			return fmt.Errorf("register command %s: %w", command.Name, err)
		}
	}
	return nil
}
