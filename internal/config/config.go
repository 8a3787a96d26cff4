package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken              string        `yaml:"discord_token"`
	DatabasePath              string        `yaml:"database_path"`
	LogLevel                  string        `yaml:"log_level"`
	DefaultSecurityLogChannel string        `yaml:"default_security_log_channel"`
	RetentionDays             int           `yaml:"retention_days"`
	SweepMinutes              int           `yaml:"sweep_minutes"`
	Health                    HealthConfig  `yaml:"health"`
	AutoMod                   AutoModConfig `yaml:"automod"`
	Raid                      RaidConfig    `yaml:"raid"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AutoModConfig holds the process-wide escalation defaults; per-guild rows in
// the settings store override them.
type AutoModConfig struct {
	AntiSpamEnabled    bool `yaml:"anti_spam_enabled"`
	LinkFilterEnabled  bool `yaml:"link_filter_enabled"`
	WordFilterEnabled  bool `yaml:"word_filter_enabled"`
	MentionSpamEnabled bool `yaml:"mention_spam_enabled"`
	MentionMax         int  `yaml:"mention_max"`
	MuteAt             int  `yaml:"mute_at"`
	KickAt             int  `yaml:"kick_at"`
	BanAt              int  `yaml:"ban_at"`
	MuteMinutes        int  `yaml:"mute_minutes"`
}

type RaidConfig struct {
	Enabled              bool `yaml:"enabled"`
	Joins                int  `yaml:"joins"`
	WindowSeconds        int  `yaml:"window_seconds"`
	VerifyEnabled        bool `yaml:"verify_enabled"`
	VerifyTimeoutSeconds int  `yaml:"verify_timeout_seconds"`
	AutoKick             bool `yaml:"auto_kick"`
	Lockdown             bool `yaml:"lockdown"`
	DurationSeconds      int  `yaml:"duration_seconds"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:  "/data/vigil.db",
		LogLevel:      "info",
		RetentionDays: 14,
		SweepMinutes:  5,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		AutoMod: AutoModConfig{
			AntiSpamEnabled:    true,
			LinkFilterEnabled:  false,
			WordFilterEnabled:  false,
			MentionSpamEnabled: true,
			MentionMax:         6,
			MuteAt:             3,
			KickAt:             5,
			BanAt:              10,
			MuteMinutes:        10,
		},
		Raid: RaidConfig{
			Enabled:              true,
			Joins:                5,
			WindowSeconds:        10,
			VerifyEnabled:        false,
			VerifyTimeoutSeconds: 300,
			AutoKick:             false,
			Lockdown:             true,
			DurationSeconds:      600,
		},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultSecurityLogChannel = envString("DEFAULT_SECURITY_LOG_CHANNEL", cfg.DefaultSecurityLogChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.SweepMinutes = envInt("SWEEP_MINUTES", cfg.SweepMinutes)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.AutoMod.AntiSpamEnabled = envBool("ANTI_SPAM_ENABLED", cfg.AutoMod.AntiSpamEnabled)
	cfg.AutoMod.LinkFilterEnabled = envBool("LINK_FILTER_ENABLED", cfg.AutoMod.LinkFilterEnabled)
	cfg.AutoMod.WordFilterEnabled = envBool("WORD_FILTER_ENABLED", cfg.AutoMod.WordFilterEnabled)
	cfg.AutoMod.MentionSpamEnabled = envBool("MENTION_SPAM_ENABLED", cfg.AutoMod.MentionSpamEnabled)
	cfg.AutoMod.MentionMax = envInt("MENTION_MAX", cfg.AutoMod.MentionMax)
	cfg.AutoMod.MuteAt = envInt("MUTE_AT", cfg.AutoMod.MuteAt)
	cfg.AutoMod.KickAt = envInt("KICK_AT", cfg.AutoMod.KickAt)
	cfg.AutoMod.BanAt = envInt("BAN_AT", cfg.AutoMod.BanAt)
	cfg.AutoMod.MuteMinutes = envInt("MUTE_MINUTES", cfg.AutoMod.MuteMinutes)
	cfg.Raid.Enabled = envBool("RAID_ENABLED", cfg.Raid.Enabled)
	cfg.Raid.Joins = envInt("RAID_JOINS", cfg.Raid.Joins)
	cfg.Raid.WindowSeconds = envInt("RAID_WINDOW_SECONDS", cfg.Raid.WindowSeconds)
	cfg.Raid.VerifyEnabled = envBool("VERIFY_ENABLED", cfg.Raid.VerifyEnabled)
	cfg.Raid.VerifyTimeoutSeconds = envInt("VERIFY_TIMEOUT_SECONDS", cfg.Raid.VerifyTimeoutSeconds)
	cfg.Raid.AutoKick = envBool("RAID_AUTO_KICK", cfg.Raid.AutoKick)
	cfg.Raid.Lockdown = envBool("RAID_LOCKDOWN", cfg.Raid.Lockdown)
	cfg.Raid.DurationSeconds = envInt("RAID_DURATION_SECONDS", cfg.Raid.DurationSeconds)
}

func validate(cfg Config) error {
	if cfg.Raid.Joins <= 0 {
		return fmt.Errorf("raid joins threshold must be positive, got %d", cfg.Raid.Joins)
	}
	if cfg.Raid.WindowSeconds <= 0 {
		return fmt.Errorf("raid window must be positive, got %d", cfg.Raid.WindowSeconds)
	}
	if cfg.AutoMod.MuteAt <= 0 || cfg.AutoMod.KickAt <= 0 || cfg.AutoMod.BanAt <= 0 {
		return errors.New("escalation thresholds must be positive")
	}
	if cfg.SweepMinutes <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %d", cfg.SweepMinutes)
	}
	return nil
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
