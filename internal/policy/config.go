package policy

import "time"

// Config is the full per-guild policy, supplied on every evaluation so the
// host can hot-reload settings without restarting detectors.
type Config struct {
	AntiSpam    SpamConfig
	LinkFilter  LinkConfig
	WordFilter  WordConfig
	MentionSpam MentionConfig
	Escalation  EscalationConfig
	Raid        RaidConfig
}

type SpamConfig struct {
	Enabled bool
}

type LinkConfig struct {
	Enabled bool
	Allow   []string
	Deny    []string
}

type WordConfig struct {
	Enabled bool
	Blocked []string
}

type MentionConfig struct {
	Enabled bool
	Max     int
}

type EscalationConfig struct {
	MuteAt       int
	KickAt       int
	BanAt        int
	MuteDuration time.Duration
}

type RaidConfig struct {
	Enabled       bool
	JoinThreshold int
	Window        time.Duration
	VerifyEnabled bool
	VerifyTimeout time.Duration
	AutoKick      bool
	Lockdown      bool
	RaidDuration  time.Duration
}

// Message is the evaluator view of an inbound message.
type Message struct {
	GuildID      string
	ActorID      string
	ChannelID    string
	MessageID    string
	Content      string
	UserMentions []string
	RoleMentions []string
	At           time.Time
}
