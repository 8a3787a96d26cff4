package policy

import "testing"

func TestRapidFire(t *testing.T) {
	if !RapidFire(WindowState{RecentCount: 5}) {
		t.Fatalf("expected rapid-fire at 5")
	}
	if RapidFire(WindowState{RecentCount: 4}) {
		t.Fatalf("did not expect rapid-fire at 4")
	}
}

func TestDuplicate(t *testing.T) {
	if !Duplicate(WindowState{DuplicateCount: 3}) {
		t.Fatalf("expected duplicate at 3")
	}
	if Duplicate(WindowState{DuplicateCount: 2}) {
		t.Fatalf("did not expect duplicate at 2")
	}
}

func TestLinkDenyList(t *testing.T) {
	cfg := LinkConfig{Enabled: true, Deny: []string{"badsite.com"}}
	if !LinkViolation("check https://badsite.com/free", cfg) {
		t.Fatalf("expected deny-list hit")
	}
	if LinkViolation("check https://goodsite.com/x", cfg) {
		t.Fatalf("did not expect deny-list hit")
	}
	if LinkViolation("no links here", cfg) {
		t.Fatalf("did not expect hit without links")
	}
}

func TestLinkAllowListPrecedence(t *testing.T) {
	cfg := LinkConfig{Enabled: true, Allow: []string{"trusted.com"}, Deny: []string{"trusted.com"}}
	if LinkViolation("see https://trusted.com/page", cfg) {
		t.Fatalf("allow-list must short-circuit deny-list")
	}
	if !LinkViolation("see https://other.com/page", cfg) {
		t.Fatalf("host outside allow-list must violate")
	}
}

func TestWordBoundary(t *testing.T) {
	cfg := WordConfig{Enabled: true, Blocked: []string{"scam"}}
	if !WordViolation("this is a SCAM offer", cfg) {
		t.Fatalf("expected case-insensitive whole-word match")
	}
	if WordViolation("look at this scampi recipe", cfg) {
		t.Fatalf("substring must not match")
	}
}

func TestMentionFlood(t *testing.T) {
	cfg := MentionConfig{Enabled: true, Max: 3}
	msg := Message{
		UserMentions: []string{"1", "2", "1"},
		RoleMentions: []string{"7", "8"},
	}
	if !MentionFlood(msg, cfg) {
		t.Fatalf("expected flood: 4 distinct > 3")
	}
	msg.RoleMentions = []string{"7"}
	if MentionFlood(msg, cfg) {
		t.Fatalf("did not expect flood: 3 distinct")
	}
}

func TestEvaluateOrderShortCircuits(t *testing.T) {
	cfg := Config{
		AntiSpam:    SpamConfig{Enabled: true},
		LinkFilter:  LinkConfig{Enabled: true, Deny: []string{"badsite.com"}},
		WordFilter:  WordConfig{Enabled: true, Blocked: []string{"free"}},
		MentionSpam: MentionConfig{Enabled: true, Max: 0},
	}

	msg := Message{Content: "free stuff https://badsite.com/x", UserMentions: []string{"1"}}

	kind, ok := Evaluate(msg, WindowState{RecentCount: RapidFireCount}, cfg)
	if !ok || kind != KindSpam {
		t.Fatalf("expected spam first, got %q", kind)
	}

	kind, ok = Evaluate(msg, WindowState{}, cfg)
	if !ok || kind != KindLink {
		t.Fatalf("expected link before word, got %q", kind)
	}

	msg.Content = "free stuff"
	kind, ok = Evaluate(msg, WindowState{}, cfg)
	if !ok || kind != KindWord {
		t.Fatalf("expected word before mention, got %q", kind)
	}

	msg.Content = "hi"
	kind, ok = Evaluate(msg, WindowState{}, cfg)
	if !ok || kind != KindMention {
		t.Fatalf("expected mention flood, got ok=%t kind=%q", ok, kind)
	}
}

func TestEvaluateDisabledPolicies(t *testing.T) {
	msg := Message{Content: "https://badsite.com scam", UserMentions: []string{"1", "2"}}
	if kind, ok := Evaluate(msg, WindowState{RecentCount: 10, DuplicateCount: 10}, Config{}); ok {
		t.Fatalf("expected no violation with everything disabled, got %q", kind)
	}
}
