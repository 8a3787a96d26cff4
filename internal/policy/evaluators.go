package policy

import (
	"regexp"
	"strings"

	"vigil/internal/utils"
)

// Kind identifies which policy a message violated.
type Kind string

const (
	KindSpam    Kind = "spam"
	KindLink    Kind = "link"
	KindWord    Kind = "word"
	KindMention Kind = "mention"
)

const (
	RapidFireCount  = 5
	RapidFireWindow = 5000 // ms
	DuplicateCount  = 3
	DuplicateWindow = 30000 // ms
)

// WindowState carries the per-actor counts the stateful evaluators need,
// computed by the caller from its sliding windows. Keeping the counts here
// keeps every evaluator a pure function.
type WindowState struct {
	RecentCount    int
	DuplicateCount int
}

// Evaluate runs the evaluators in fixed order (spam, link, word, mention)
// and stops at the first hit, so one message yields at most one violation.
func Evaluate(msg Message, state WindowState, cfg Config) (Kind, bool) {
	if cfg.AntiSpam.Enabled && (RapidFire(state) || Duplicate(state)) {
		return KindSpam, true
	}
	if cfg.LinkFilter.Enabled && LinkViolation(msg.Content, cfg.LinkFilter) {
		return KindLink, true
	}
	if cfg.WordFilter.Enabled && WordViolation(msg.Content, cfg.WordFilter) {
		return KindWord, true
	}
	if cfg.MentionSpam.Enabled && MentionFlood(msg, cfg.MentionSpam) {
		return KindMention, true
	}
	return "", false
}

func RapidFire(state WindowState) bool {
	return state.RecentCount >= RapidFireCount
}

func Duplicate(state WindowState) bool {
	return state.DuplicateCount >= DuplicateCount
}

// LinkViolation applies the allow-list first: when one is configured, any
// host outside it violates and the deny-list is never consulted.
func LinkViolation(content string, cfg LinkConfig) bool {
	urls := utils.ExtractURLs(content)
	if len(urls) == 0 {
		return false
	}

	allow := toSet(cfg.Allow)
	deny := toSet(cfg.Deny)

	for _, raw := range urls {
		host, err := utils.HostOf(raw)
		if err != nil || host == "" {
			continue
		}
		if len(allow) > 0 {
			if _, ok := allow[host]; !ok {
				return true
			}
			continue
		}
		if _, ok := deny[host]; ok {
			return true
		}
	}
	return false
}

// WordViolation matches blocked words case-insensitively on word boundaries,
// never as substrings.
func WordViolation(content string, cfg WordConfig) bool {
	for _, word := range cfg.Blocked {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			continue
		}
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}

func MentionFlood(msg Message, cfg MentionConfig) bool {
	distinct := make(map[string]struct{}, len(msg.UserMentions)+len(msg.RoleMentions))
	for _, id := range msg.UserMentions {
		distinct["u:"+id] = struct{}{}
	}
	for _, id := range msg.RoleMentions {
		distinct["r:"+id] = struct{}{}
	}
	return len(distinct) > cfg.Max
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		set[value] = struct{}{}
	}
	return set
}
