package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"vigil/internal/modules/audit"
	"vigil/internal/modules/verification"
	"vigil/internal/policy"
	"vigil/internal/storage"
)

func (b *Bot) onMessageCreate(session *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Author == nil || event.Author.Bot || event.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := policy.Message{
		GuildID:   event.GuildID,
		ActorID:   event.Author.ID,
		ChannelID: event.ChannelID,
		MessageID: event.ID,
		Content:   event.Content,
	}
	for _, user := range event.Mentions {
		msg.UserMentions = append(msg.UserMentions, user.ID)
	}
	msg.RoleMentions = append(msg.RoleMentions, event.MentionRoles...)

	cfg := b.policyFor(ctx, event.GuildID)
	if decision := b.automod.HandleMessage(ctx, msg, cfg); decision != nil {
		b.logger.Info("message violation",
			zap.String("guild_id", event.GuildID),
			zap.String("user_id", event.Author.ID),
			zap.String("kind", string(decision.Kind)),
			zap.String("action", string(decision.Action)),
			zap.Int("count", decision.Count))
	}
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.User == nil || event.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg := b.policyFor(ctx, event.GuildID)
	decision := b.antiraid.HandleJoin(ctx, event.GuildID, event.User.ID, time.Now(), cfg.Raid)
	if decision == nil {
		return
	}
	if decision.Verify {
		b.verify.Begin(ctx, event.GuildID, event.User.ID, cfg.Raid.VerifyTimeout)
	}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, event *discordgo.InteractionCreate) {
	switch event.Type {
	case discordgo.InteractionMessageComponent:
		if event.MessageComponentData().CustomID == "verify_confirm" {
			b.handleVerifyButton(event.Interaction)
		}
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(event.Interaction)
	}
}

func (b *Bot) handleVerifyButton(interaction *discordgo.Interaction) {
	userID := interactionUserID(interaction)
	if userID == "" || interaction.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var reply string
	switch b.verify.Confirm(ctx, interaction.GuildID, userID) {
	case verification.ResultVerified:
		reply = "You are verified. Welcome!"
	case verification.ResultAlreadyProcessed:
		reply = "Your verification window has already closed."
	default:
		reply = "There is no verification pending for you."
	}
	b.respondEphemeral(interaction, reply)
}

func (b *Bot) handleCommand(interaction *discordgo.Interaction) {
	if interaction.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "status":
		b.cmdStatus(ctx, interaction)
	case "violations":
		b.cmdViolations(ctx, interaction, data)
	case "unmute":
		b.cmdUnmute(ctx, interaction, data)
	case "lockdown":
		b.cmdLockdown(ctx, interaction, data)
	case "raidconfig":
		b.cmdRaidConfig(ctx, interaction)
	case "domain":
		b.cmdDomain(ctx, interaction, data)
	case "words":
		b.cmdWords(ctx, interaction, data)
	case "rules":
		b.cmdRules(ctx, interaction, data)
	case "history":
		b.cmdHistory(ctx, interaction, data)
	}
}

func (b *Bot) cmdStatus(ctx context.Context, interaction *discordgo.Interaction) {
	settings := b.guildSettings(ctx, interaction.GuildID)

	raidState := "normal"
	if b.antiraid.Active(interaction.GuildID) {
		raidState = "RAID ACTIVE"
	}

	embed := &discordgo.MessageEmbed{
		Title: "Security status",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Raid state", Value: raidState, Inline: true},
			{Name: "Anti-spam", Value: onOff(settings.AntiSpamEnabled), Inline: true},
			{Name: "Link filter", Value: onOff(settings.LinkFilterEnabled), Inline: true},
			{Name: "Word filter", Value: onOff(settings.WordFilterEnabled), Inline: true},
			{Name: "Mention limit", Value: fmt.Sprintf("%d", settings.MentionMax), Inline: true},
			{Name: "Thresholds", Value: fmt.Sprintf("mute %d / kick %d / ban %d", settings.MuteAt, settings.KickAt, settings.BanAt), Inline: true},
		},
	}
	b.respondEmbed(interaction, embed)
}

func (b *Bot) cmdViolations(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	userID := optionUserID(sub.Options)
	if userID == "" {
		b.respondEphemeral(interaction, "A user is required.")
		return
	}

	switch sub.Name {
	case "view":
		record, err := b.store.GetViolation(ctx, interaction.GuildID, userID)
		if err != nil {
			b.respondEphemeral(interaction, "Lookup failed.")
			return
		}
		live := b.automod.Count(interaction.GuildID, userID)
		embed := &discordgo.MessageEmbed{
			Title: "Violations",
			Color: colorInfo,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "User", Value: fmtUser(userID), Inline: true},
				{Name: "Count", Value: fmt.Sprintf("%d", live), Inline: true},
			},
		}
		if record.LastKind != "" {
			embed.Fields = append(embed.Fields,
				&discordgo.MessageEmbedField{Name: "Last violation", Value: record.LastKind, Inline: true},
				&discordgo.MessageEmbedField{Name: "Last action", Value: record.LastAction, Inline: true},
			)
		}
		b.respondEmbed(interaction, embed)
	case "reset":
		b.automod.Reset(interaction.GuildID, userID)
		if err := b.store.ResetViolation(ctx, interaction.GuildID, userID); err != nil {
			b.logger.Warn("violation reset failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		}
		b.respondEphemeral(interaction, fmt.Sprintf("Violation count for %s reset.", fmtUser(userID)))
	}
}

func (b *Bot) cmdUnmute(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	userID := optionUserID(data.Options)
	if userID == "" {
		b.respondEphemeral(interaction, "A user is required.")
		return
	}
	if err := b.automod.Unmute(ctx, interaction.GuildID, userID); err != nil {
		b.respondEphemeral(interaction, "Unmute failed: "+err.Error())
		return
	}
	b.respondEphemeral(interaction, fmt.Sprintf("%s has been unmuted.", fmtUser(userID)))
}

func (b *Bot) cmdLockdown(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	switch data.Options[0].Name {
	case "on":
		if err := b.SetLockdown(ctx, interaction.GuildID, true); err != nil {
			b.respondEphemeral(interaction, "Lockdown failed: "+err.Error())
			return
		}
		b.respondEphemeral(interaction, "Lockdown enabled.")
	case "off":
		// Lifting lockdown by hand also ends an active raid response.
		b.antiraid.Deactivate(ctx, interaction.GuildID)
		if err := b.SetLockdown(ctx, interaction.GuildID, false); err != nil {
			b.respondEphemeral(interaction, "Unlock failed: "+err.Error())
			return
		}
		b.respondEphemeral(interaction, "Lockdown lifted.")
	}
}

func (b *Bot) cmdRaidConfig(ctx context.Context, interaction *discordgo.Interaction) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	embed := &discordgo.MessageEmbed{
		Title: "Raid protection",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Enabled", Value: onOff(settings.RaidEnabled), Inline: true},
			{Name: "Threshold", Value: fmt.Sprintf("%d joins / %ds", settings.RaidJoins, settings.RaidWindowSeconds), Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%ds", settings.RaidDurationSeconds), Inline: true},
			{Name: "Auto-kick", Value: onOff(settings.RaidAutoKick), Inline: true},
			{Name: "Lockdown", Value: onOff(settings.RaidLockdown), Inline: true},
			{Name: "Verification", Value: onOff(settings.VerifyEnabled), Inline: true},
		},
	}
	b.respondEmbed(interaction, embed)
}

func (b *Bot) cmdDomain(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) < 2 {
		return
	}
	listType := data.Options[0].StringValue()
	action := data.Options[1].StringValue()
	domain := ""
	if len(data.Options) > 2 {
		domain = strings.ToLower(strings.TrimSpace(data.Options[2].StringValue()))
	}
	allow := listType == "allow"

	switch action {
	case "add", "remove":
		if domain == "" {
			b.respondEphemeral(interaction, "A domain is required.")
			return
		}
		var err error
		switch {
		case action == "add" && allow:
			err = b.store.AddDomainAllow(ctx, interaction.GuildID, domain)
		case action == "add":
			err = b.store.AddDomainBlock(ctx, interaction.GuildID, domain)
		case allow:
			err = b.store.RemoveDomainAllow(ctx, interaction.GuildID, domain)
		default:
			err = b.store.RemoveDomainBlock(ctx, interaction.GuildID, domain)
		}
		if err != nil {
			b.respondEphemeral(interaction, "Domain list update failed.")
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interactionUserID(interaction), "domain_list",
			fmt.Sprintf("list=%s action=%s domain=%s", listType, action, domain))
		verb := "added to"
		if action == "remove" {
			verb = "removed from"
		}
		b.respondEphemeral(interaction, fmt.Sprintf("Domain %s %s the %s list.", domain, verb, listType))
	case "list":
		var domains []string
		var err error
		if allow {
			domains, err = b.store.ListDomainAllow(ctx, interaction.GuildID)
		} else {
			domains, err = b.store.ListDomainBlock(ctx, interaction.GuildID)
		}
		if err != nil {
			b.respondEphemeral(interaction, "Domain list lookup failed.")
			return
		}
		if len(domains) == 0 {
			b.respondEphemeral(interaction, fmt.Sprintf("The %s list is empty.", listType))
			return
		}
		b.respondEmbed(interaction, &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("Domain %s list", listType),
			Description: strings.Join(domains, "\n"),
			Color:       colorInfo,
		})
	}
}

func (b *Bot) cmdWords(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	action := data.Options[0].StringValue()
	word := ""
	if len(data.Options) > 1 {
		word = strings.ToLower(strings.TrimSpace(data.Options[1].StringValue()))
	}

	switch action {
	case "add", "remove":
		if word == "" {
			b.respondEphemeral(interaction, "A word is required.")
			return
		}
		var err error
		if action == "add" {
			err = b.store.AddBlockedWord(ctx, interaction.GuildID, word)
		} else {
			err = b.store.RemoveBlockedWord(ctx, interaction.GuildID, word)
		}
		if err != nil {
			b.respondEphemeral(interaction, "Word list update failed.")
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interactionUserID(interaction), "word_list",
			fmt.Sprintf("action=%s word=%s", action, word))
		verb := "added"
		if action == "remove" {
			verb = "removed"
		}
		b.respondEphemeral(interaction, fmt.Sprintf("Word %q %s.", word, verb))
	case "list":
		words, err := b.store.ListBlockedWords(ctx, interaction.GuildID)
		if err != nil {
			b.respondEphemeral(interaction, "Word list lookup failed.")
			return
		}
		if len(words) == 0 {
			b.respondEphemeral(interaction, "No words are blocked.")
			return
		}
		b.respondEmbed(interaction, &discordgo.MessageEmbed{
			Title:       "Blocked words",
			Description: strings.Join(words, ", "),
			Color:       colorInfo,
		})
	}
}

func (b *Bot) cmdRules(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	changed := applyRuleOptions(&settings, data.Options)
	if len(changed) == 0 {
		b.respondEphemeral(interaction, "Nothing to change.")
		return
	}
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.respondEphemeral(interaction, "Settings update failed.")
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interactionUserID(interaction), "rules",
		"updated "+strings.Join(changed, ", "))
	b.respondEphemeral(interaction, "Updated: "+strings.Join(changed, ", "))
}

// applyRuleOptions maps supplied command options onto the settings row and
// reports which fields changed. Unknown options are skipped.
func applyRuleOptions(settings *storage.GuildSettings, options []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var changed []string
	for _, option := range options {
		switch option.Name {
		case "anti_spam":
			settings.AntiSpamEnabled = option.BoolValue()
		case "link_filter":
			settings.LinkFilterEnabled = option.BoolValue()
		case "word_filter":
			settings.WordFilterEnabled = option.BoolValue()
		case "mention_spam":
			settings.MentionSpamEnabled = option.BoolValue()
		case "mention_max":
			settings.MentionMax = int(option.IntValue())
		case "mute_at":
			settings.MuteAt = int(option.IntValue())
		case "kick_at":
			settings.KickAt = int(option.IntValue())
		case "ban_at":
			settings.BanAt = int(option.IntValue())
		case "mute_minutes":
			settings.MuteMinutes = int(option.IntValue())
		case "log_channel":
			settings.SecurityLogChannel = option.ChannelValue(nil).ID
		default:
			continue
		}
		changed = append(changed, option.Name)
	}
	return changed
}

func (b *Bot) cmdHistory(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	hours := 24
	if len(data.Options) > 0 && data.Options[0].Name == "hours" {
		if v := int(data.Options[0].IntValue()); v > 0 {
			hours = v
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	logs, err := b.store.ListAuditLogs(ctx, interaction.GuildID, since)
	if err != nil {
		b.respondEphemeral(interaction, "History lookup failed.")
		return
	}
	if len(logs) == 0 {
		b.respondEphemeral(interaction, fmt.Sprintf("No security events in the last %dh.", hours))
		return
	}

	// Newest first; keep the most recent page.
	const maxLines = 15
	if len(logs) > maxLines {
		logs = logs[:maxLines]
	}
	lines := make([]string, 0, len(logs))
	for _, entry := range logs {
		line := fmt.Sprintf("`%s` **%s** %s", entry.Level, entry.Event, entry.Details)
		if entry.UserID != "" {
			line += " " + fmtUser(entry.UserID)
		}
		lines = append(lines, line)
	}
	b.respondEmbed(interaction, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Security events (last %dh)", hours),
		Description: strings.Join(lines, "\n"),
		Color:       colorInfo,
	})
}

func (b *Bot) respondEmbed(interaction *discordgo.Interaction, embed *discordgo.MessageEmbed) {
	err := b.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEphemeral(interaction *discordgo.Interaction, content string) {
	err := b.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func interactionUserID(interaction *discordgo.Interaction) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func optionUserID(options []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, option := range options {
		if option.Name == "user" {
			id, _ := option.Value.(string)
			return id
		}
	}
	return ""
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
