package bot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"vigil/internal/storage"
)

func boolOption(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionBoolean,
		Value: value,
	}
}

func intOption(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	// The gateway decodes integer options as float64.
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: float64(value),
	}
}

func TestApplyRuleOptions(t *testing.T) {
	settings := storage.GuildSettings{GuildID: "g1", MuteAt: 3, KickAt: 5, BanAt: 10}

	changed := applyRuleOptions(&settings, []*discordgo.ApplicationCommandInteractionDataOption{
		boolOption("link_filter", true),
		boolOption("word_filter", true),
		intOption("kick_at", 7),
		intOption("mention_max", 4),
		{Name: "log_channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "c42"},
	})

	if len(changed) != 5 {
		t.Fatalf("expected 5 changed fields, got %v", changed)
	}
	if !settings.LinkFilterEnabled || !settings.WordFilterEnabled {
		t.Fatalf("expected filters enabled: %+v", settings)
	}
	if settings.KickAt != 7 || settings.MentionMax != 4 {
		t.Fatalf("unexpected thresholds: %+v", settings)
	}
	if settings.SecurityLogChannel != "c42" {
		t.Fatalf("unexpected log channel: %q", settings.SecurityLogChannel)
	}
	// Untouched fields keep their values.
	if settings.MuteAt != 3 || settings.BanAt != 10 {
		t.Fatalf("unrelated thresholds must not change: %+v", settings)
	}
}

func TestApplyRuleOptionsSkipsUnknown(t *testing.T) {
	settings := storage.GuildSettings{GuildID: "g1"}
	changed := applyRuleOptions(&settings, []*discordgo.ApplicationCommandInteractionDataOption{
		intOption("no_such_rule", 9),
	})
	if len(changed) != 0 {
		t.Fatalf("unknown options must be skipped, got %v", changed)
	}
}

func TestOptionUserIDToleratesUnexpectedPayload(t *testing.T) {
	got := optionUserID([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: 42},
	})
	if got != "" {
		t.Fatalf("expected empty id for a non-string payload, got %q", got)
	}

	got = optionUserID([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "u1"},
	})
	if got != "u1" {
		t.Fatalf("expected u1, got %q", got)
	}
}

func TestCloseReturnsWhenContextExpired(t *testing.T) {
	b := &Bot{
		logger:    zap.NewNop(),
		session:   &discordgo.Session{},
		stopSweep: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Close(ctx)
}
