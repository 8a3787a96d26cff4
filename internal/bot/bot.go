package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/modules/antiraid"
	"vigil/internal/modules/audit"
	"vigil/internal/modules/automod"
	"vigil/internal/modules/verification"
	"vigil/internal/policy"
	"vigil/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	muteRoleName      = "Muted"
	verifyRoleName    = "Verification Pending"
	verifyChannelName = "verification"

	colorAction  = 0xF59E0B
	colorWarning = 0xEF4444
	colorInfo    = 0x3B82F6
)

type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *storage.Store
	audit   *audit.Logger
	session *discordgo.Session

	automod  *automod.Engine
	antiraid *antiraid.Engine
	verify   *verification.Gate

	roleMu      sync.Mutex
	muteRoles   map[string]string
	verifyRoles map[string]string
	verifyChans map[string]string

	lockdownMu  sync.Mutex
	lockdownMap map[string]*lockdownSnapshot

	stopSweep chan struct{}
}

type lockdownSnapshot struct {
	channels map[string]channelSnapshot
}

type channelSnapshot struct {
	allow   int64
	deny    int64
	hasPerm bool
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		audit:       auditLogger,
		session:     session,
		muteRoles:   make(map[string]string),
		verifyRoles: make(map[string]string),
		verifyChans: make(map[string]string),
		lockdownMap: make(map[string]*lockdownSnapshot),
		stopSweep:   make(chan struct{}),
	}

	b.automod = automod.New(b, auditLogger, logger)
	b.antiraid = antiraid.New(b, auditLogger, logger)
	b.verify = verification.New(b, auditLogger, logger)

	b.automod.SetPersister(func(ctx context.Context, guildID, userID string, kind policy.Kind, action automod.Action, count int, at time.Time) {
		err := store.SaveViolation(ctx, storage.UserViolation{
			GuildID:    guildID,
			UserID:     userID,
			CountTotal: count,
			LastKind:   string(kind),
			LastAction: string(action),
			LastAt:     at,
		})
		if err != nil {
			logger.Warn("violation persist failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	})

	auditLogger.SetNotifier(b.notifyAudit)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	if err := b.registerCommands(); err != nil {
		return err
	}

	go b.sweepLoop()
	return nil
}

// Close stops the sweep loop and shuts the gateway session down, giving up
// when the context expires first.
func (b *Bot) Close(ctx context.Context) {
	close(b.stopSweep)
	if b.session == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- b.session.Close() }()
	select {
	case err := <-done:
		if err != nil {
			b.logger.Warn("session close failed", zap.Error(err))
		}
	case <-ctx.Done():
		b.logger.Warn("session close abandoned", zap.Error(ctx.Err()))
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

// sweepLoop drives the detectors' window pruning and audit retention on one
// shared ticker.
func (b *Bot) sweepLoop() {
	interval := time.Duration(b.cfg.SweepMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopSweep:
			return
		case now := <-ticker.C:
			b.automod.Sweep(now)
			b.antiraid.Sweep(now)
			b.verify.Sweep(now)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays); err != nil {
				b.logger.Warn("audit cleanup failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// guildSettings merges the stored per-guild overrides over process defaults.
func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:              guildID,
		SecurityLogChannel:   b.cfg.DefaultSecurityLogChannel,
		AntiSpamEnabled:      b.cfg.AutoMod.AntiSpamEnabled,
		LinkFilterEnabled:    b.cfg.AutoMod.LinkFilterEnabled,
		WordFilterEnabled:    b.cfg.AutoMod.WordFilterEnabled,
		MentionSpamEnabled:   b.cfg.AutoMod.MentionSpamEnabled,
		MentionMax:           b.cfg.AutoMod.MentionMax,
		MuteAt:               b.cfg.AutoMod.MuteAt,
		KickAt:               b.cfg.AutoMod.KickAt,
		BanAt:                b.cfg.AutoMod.BanAt,
		MuteMinutes:          b.cfg.AutoMod.MuteMinutes,
		RaidEnabled:          b.cfg.Raid.Enabled,
		RaidJoins:            b.cfg.Raid.Joins,
		RaidWindowSeconds:    b.cfg.Raid.WindowSeconds,
		VerifyEnabled:        b.cfg.Raid.VerifyEnabled,
		VerifyTimeoutSeconds: b.cfg.Raid.VerifyTimeoutSeconds,
		RaidAutoKick:         b.cfg.Raid.AutoKick,
		RaidLockdown:         b.cfg.Raid.Lockdown,
		RaidDurationSeconds:  b.cfg.Raid.DurationSeconds,
	}

	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fetch failed", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

// policyFor builds the evaluation-time policy from settings and list tables.
// Read on every event so settings changes apply without a restart.
func (b *Bot) policyFor(ctx context.Context, guildID string) policy.Config {
	settings := b.guildSettings(ctx, guildID)

	allow, err := b.store.ListDomainAllow(ctx, guildID)
	if err != nil {
		b.logger.Warn("allowlist fetch failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	deny, err := b.store.ListDomainBlock(ctx, guildID)
	if err != nil {
		b.logger.Warn("blocklist fetch failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	words, err := b.store.ListBlockedWords(ctx, guildID)
	if err != nil {
		b.logger.Warn("word list fetch failed", zap.String("guild_id", guildID), zap.Error(err))
	}

	return policy.Config{
		AntiSpam:    policy.SpamConfig{Enabled: settings.AntiSpamEnabled},
		LinkFilter:  policy.LinkConfig{Enabled: settings.LinkFilterEnabled, Allow: allow, Deny: deny},
		WordFilter:  policy.WordConfig{Enabled: settings.WordFilterEnabled, Blocked: words},
		MentionSpam: policy.MentionConfig{Enabled: settings.MentionSpamEnabled, Max: settings.MentionMax},
		Escalation: policy.EscalationConfig{
			MuteAt:       settings.MuteAt,
			KickAt:       settings.KickAt,
			BanAt:        settings.BanAt,
			MuteDuration: time.Duration(settings.MuteMinutes) * time.Minute,
		},
		Raid: policy.RaidConfig{
			Enabled:       settings.RaidEnabled,
			JoinThreshold: settings.RaidJoins,
			Window:        time.Duration(settings.RaidWindowSeconds) * time.Second,
			VerifyEnabled: settings.VerifyEnabled,
			VerifyTimeout: time.Duration(settings.VerifyTimeoutSeconds) * time.Second,
			AutoKick:      settings.RaidAutoKick,
			Lockdown:      settings.RaidLockdown,
			RaidDuration:  time.Duration(settings.RaidDurationSeconds) * time.Second,
		},
	}
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	settings := b.guildSettings(ctx, entry.GuildID)
	if settings.SecurityLogChannel == "" {
		return
	}

	color := colorInfo
	switch audit.Level(entry.Level) {
	case audit.LevelWarn:
		color = colorAction
	case audit.LevelCrit:
		color = colorWarning
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Security event: " + entry.Event,
		Description: entry.Details,
		Color:       color,
		Timestamp:   entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.UserID != "" {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true},
		}
	}
	if _, err := b.session.ChannelMessageSendEmbed(settings.SecurityLogChannel, embed); err != nil {
		b.logger.Warn("audit notify failed", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) sendSecurityEmbed(ctx context.Context, guildID string, embed *discordgo.MessageEmbed) {
	settings := b.guildSettings(ctx, guildID)
	if settings.SecurityLogChannel == "" {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(settings.SecurityLogChannel, embed); err != nil {
		b.logger.Warn("security embed failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func fmtUser(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}
