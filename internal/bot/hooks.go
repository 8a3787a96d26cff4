package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// The Bot is the hook implementation handed to every detector engine; each
// method maps one core side effect onto the Discord REST API.

func (b *Bot) DeleteMessage(ctx context.Context, guildID, channelID, messageID string) error {
	return b.session.ChannelMessageDelete(channelID, messageID)
}

func (b *Bot) Mute(ctx context.Context, guildID, userID string) error {
	roleID, err := b.ensureMuteRole(guildID)
	if err != nil {
		return err
	}
	return b.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (b *Bot) Unmute(ctx context.Context, guildID, userID string) error {
	roleID, err := b.ensureMuteRole(guildID)
	if err != nil {
		return err
	}
	return b.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (b *Bot) Kick(ctx context.Context, guildID, userID, reason string) error {
	return b.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (b *Bot) Ban(ctx context.Context, guildID, userID, reason string) error {
	return b.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (b *Bot) SetLockdown(ctx context.Context, guildID string, enabled bool) error {
	if enabled {
		return b.applyLockdown(ctx, guildID)
	}
	return b.restoreLockdown(ctx, guildID)
}

func (b *Bot) Restrict(ctx context.Context, guildID, userID string) error {
	roleID, err := b.ensureVerifyRole(guildID)
	if err != nil {
		return err
	}
	return b.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (b *Bot) Promote(ctx context.Context, guildID, userID string) error {
	roleID, err := b.ensureVerifyRole(guildID)
	if err != nil {
		return err
	}
	return b.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (b *Bot) Prompt(ctx context.Context, guildID, userID string) error {
	channelID, err := b.ensureVerifyChannel(guildID)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Verification required",
		Description: fmt.Sprintf("%s, press the button below to unlock the server.", fmtUser(userID)),
		Color:       colorInfo,
	}
	_, err = b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Verify",
						Style:    discordgo.PrimaryButton,
						CustomID: "verify_confirm",
					},
				},
			},
		},
	})
	return err
}

// ensureMuteRole finds or lazily creates the guild's mute role.
func (b *Bot) ensureMuteRole(guildID string) (string, error) {
	return b.ensureRole(guildID, muteRoleName, b.muteRoles)
}

// ensureVerifyRole finds or lazily creates the restriction role applied to
// unverified members.
func (b *Bot) ensureVerifyRole(guildID string) (string, error) {
	return b.ensureRole(guildID, verifyRoleName, b.verifyRoles)
}

func (b *Bot) ensureRole(guildID, name string, cache map[string]string) (string, error) {
	b.roleMu.Lock()
	if roleID := cache[guildID]; roleID != "" {
		b.roleMu.Unlock()
		return roleID, nil
	}
	b.roleMu.Unlock()

	roles, err := b.session.GuildRoles(guildID)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.Name == name {
			b.roleMu.Lock()
			cache[guildID] = role.ID
			b.roleMu.Unlock()
			return role.ID, nil
		}
	}

	var perms int64
	role, err := b.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Permissions: &perms,
	})
	if err != nil {
		return "", err
	}
	b.roleMu.Lock()
	cache[guildID] = role.ID
	b.roleMu.Unlock()
	return role.ID, nil
}

// ensureVerifyChannel finds or lazily creates the verification channel: the
// restriction role may only see this channel, everyone else never sees it.
func (b *Bot) ensureVerifyChannel(guildID string) (string, error) {
	b.roleMu.Lock()
	if channelID := b.verifyChans[guildID]; channelID != "" {
		b.roleMu.Unlock()
		return channelID, nil
	}
	b.roleMu.Unlock()

	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return "", err
	}
	for _, channel := range channels {
		if channel != nil && channel.Name == verifyChannelName {
			b.roleMu.Lock()
			b.verifyChans[guildID] = channel.ID
			b.roleMu.Unlock()
			return channel.ID, nil
		}
	}

	roleID, err := b.ensureVerifyRole(guildID)
	if err != nil {
		return "", err
	}

	channel, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: verifyChannelName,
		Type: discordgo.ChannelTypeGuildText,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				ID:   guildID, // @everyone
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    roleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel,
			},
		},
	})
	if err != nil {
		return "", err
	}
	b.roleMu.Lock()
	b.verifyChans[guildID] = channel.ID
	b.roleMu.Unlock()
	return channel.ID, nil
}

// applyLockdown denies send on every text channel for the default role,
// keeping a snapshot of the prior overwrites for restore. A guild already
// locked is left as is.
func (b *Bot) applyLockdown(ctx context.Context, guildID string) error {
	b.lockdownMu.Lock()
	if _, exists := b.lockdownMap[guildID]; exists {
		b.lockdownMu.Unlock()
		return nil
	}
	b.lockdownMu.Unlock()

	channels, err := b.session.GuildChannels(guildID)
	if err != nil {
		return err
	}

	snapshot := &lockdownSnapshot{channels: make(map[string]channelSnapshot)}
	for _, channel := range channels {
		if channel == nil {
			continue
		}
		if channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews {
			continue
		}

		snap := channelSnapshot{}
		for _, overwrite := range channel.PermissionOverwrites {
			if overwrite.Type == discordgo.PermissionOverwriteTypeRole && overwrite.ID == guildID {
				snap.allow = overwrite.Allow
				snap.deny = overwrite.Deny
				snap.hasPerm = true
				break
			}
		}
		snapshot.channels[channel.ID] = snap

		deny := snap.deny | discordgo.PermissionSendMessages
		if err := b.session.ChannelPermissionSet(channel.ID, guildID, discordgo.PermissionOverwriteTypeRole, snap.allow, deny); err != nil {
			b.logger.Warn("channel lock failed", zap.String("channel_id", channel.ID), zap.Error(err))
		}
	}

	b.lockdownMu.Lock()
	b.lockdownMap[guildID] = snapshot
	b.lockdownMu.Unlock()

	b.sendSecurityEmbed(ctx, guildID, &discordgo.MessageEmbed{
		Title:       "Lockdown active",
		Description: "Sending has been disabled in all text channels.",
		Color:       colorWarning,
	})
	return nil
}

// restoreLockdown puts every channel's default-role overwrite back the way
// the snapshot recorded it. Without a snapshot there is nothing to undo.
func (b *Bot) restoreLockdown(ctx context.Context, guildID string) error {
	b.lockdownMu.Lock()
	snapshot := b.lockdownMap[guildID]
	delete(b.lockdownMap, guildID)
	b.lockdownMu.Unlock()
	if snapshot == nil {
		return nil
	}

	for channelID, snap := range snapshot.channels {
		var err error
		if snap.hasPerm {
			err = b.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, snap.allow, snap.deny)
		} else {
			err = b.session.ChannelPermissionDelete(channelID, guildID)
		}
		if err != nil {
			b.logger.Warn("channel unlock failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	b.sendSecurityEmbed(ctx, guildID, &discordgo.MessageEmbed{
		Title:       "Lockdown lifted",
		Description: "Channel permissions have been restored.",
		Color:       colorInfo,
	})
	return nil
}
