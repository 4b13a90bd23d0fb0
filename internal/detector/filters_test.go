package detector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLengthFilter(t *testing.T) {
	t.Run("requires a bound", func(t *testing.T) {
		if _, err := newLength(testSpec("len", TypeLength, nil)); err == nil {
			t.Error("expected error when neither min nor max is set")
		}
	})

	t.Run("min exceeds max", func(t *testing.T) {
		_, err := newLength(testSpec("len", TypeLength, map[string]any{"min": 10, "max": 5}))
		if err == nil {
			t.Error("expected error for min > max")
		}
	})

	g, err := newLength(testSpec("len", TypeLength, map[string]any{"min": 3, "max": 10}))
	if err != nil {
		t.Fatalf("newLength: %v", err)
	}

	tests := []struct {
		name       string
		text       string
		wantReason string
	}{
		{"within bounds", "hello", ""},
		{"too short", "hi", "too_short"},
		{"too long", "this is far too long", "too_long"},
		{"runes not bytes", "héllo wörld", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := analyze(t, g, tt.text)
			if (tt.wantReason != "") != r.Blocked {
				t.Errorf("Blocked = %v, want %v", r.Blocked, tt.wantReason != "")
			}
			if r.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", r.Reason, tt.wantReason)
			}
		})
	}
}

func TestRegexFilter(t *testing.T) {
	t.Run("deny mode", func(t *testing.T) {
		g, err := newRegexFilter(testSpec("rx", TypeRegex, map[string]any{
			"patterns": []any{`\bdrop table\b`},
		}))
		if err != nil {
			t.Fatalf("newRegexFilter: %v", err)
		}
		if r := analyze(t, g, "please DROP TABLE users"); !r.Blocked || r.Reason != "pattern_match" {
			t.Errorf("case-insensitive deny should block: %+v", r)
		}
		if r := analyze(t, g, "select * from users"); r.Blocked {
			t.Errorf("non-matching text should pass: %+v", r)
		}
	})

	t.Run("allow mode", func(t *testing.T) {
		g, err := newRegexFilter(testSpec("rx", TypeRegex, map[string]any{
			"patterns": []any{`^ticket-\d+:`},
			"mode":     "allow",
		}))
		if err != nil {
			t.Fatalf("newRegexFilter: %v", err)
		}
		if r := analyze(t, g, "ticket-42: printer on fire"); r.Blocked {
			t.Errorf("matching text should pass in allow mode: %+v", r)
		}
		if r := analyze(t, g, "free-form rant"); !r.Blocked || r.Reason != "no_pattern_match" {
			t.Errorf("non-matching text should block in allow mode: %+v", r)
		}
	})

	t.Run("case sensitive", func(t *testing.T) {
		g, err := newRegexFilter(testSpec("rx", TypeRegex, map[string]any{
			"patterns":       []any{`SECRET`},
			"case_sensitive": true,
		}))
		if err != nil {
			t.Fatalf("newRegexFilter: %v", err)
		}
		if r := analyze(t, g, "a secret plan"); r.Blocked {
			t.Errorf("lower-case should pass with case_sensitive: %+v", r)
		}
		if r := analyze(t, g, "the SECRET plan"); !r.Blocked {
			t.Errorf("exact case should block: %+v", r)
		}
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := newRegexFilter(testSpec("rx", TypeRegex, map[string]any{
			"patterns": []any{`([`},
		}))
		if err == nil {
			t.Error("expected error for invalid pattern")
		}
	})
}

func TestKeywordBlock(t *testing.T) {
	factory := newKeywordFactory(false)
	g, err := factory(testSpec("kw", TypeKeywordBlock, map[string]any{
		"keywords": []any{"password", "api key"},
	}))
	if err != nil {
		t.Fatalf("keyword factory: %v", err)
	}

	if r := analyze(t, g, "my PASSWORD is hunter2"); !r.Blocked || r.Reason != "keyword_match" {
		t.Errorf("case-folded keyword should block: %+v", r)
	}
	if r := analyze(t, g, "nothing to see"); r.Blocked {
		t.Errorf("clean text should pass: %+v", r)
	}
}

func TestKeywordWholeWord(t *testing.T) {
	factory := newKeywordFactory(false)
	g, err := factory(testSpec("kw", TypeKeywordBlock, map[string]any{
		"keywords":   []any{"ban"},
		"whole_word": true,
	}))
	if err != nil {
		t.Fatalf("keyword factory: %v", err)
	}
	if r := analyze(t, g, "banana bread"); r.Blocked {
		t.Errorf("substring inside a word should pass with whole_word: %+v", r)
	}
	if r := analyze(t, g, "ban this user"); !r.Blocked {
		t.Errorf("standalone word should block: %+v", r)
	}
}

func TestKeywordList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocked.txt")
	content := "# comment line\nforbidden\n\ncontraband\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	factory := newKeywordFactory(true)

	t.Run("file required", func(t *testing.T) {
		_, err := factory(testSpec("kw", TypeKeywordList, map[string]any{
			"keywords": []any{"x"},
		}))
		if err == nil {
			t.Error("expected error when file is missing from config")
		}
	})

	t.Run("missing file is a config error", func(t *testing.T) {
		_, err := factory(testSpec("kw", TypeKeywordList, map[string]any{
			"file": filepath.Join(dir, "nope.txt"),
		}))
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	g, err := factory(testSpec("kw", TypeKeywordList, map[string]any{"file": path}))
	if err != nil {
		t.Fatalf("keyword factory: %v", err)
	}
	if r := analyze(t, g, "carrying contraband"); !r.Blocked {
		t.Errorf("file-backed keyword should block: %+v", r)
	}
	if r := analyze(t, g, "# comment line"); r.Blocked {
		t.Errorf("comment lines must not become keywords: %+v", r)
	}
}

func TestURLFilter(t *testing.T) {
	t.Run("config validation", func(t *testing.T) {
		if _, err := newURLFilter(testSpec("url", TypeURLFilter, nil)); err == nil {
			t.Error("expected error when no list is configured")
		}
		_, err := newURLFilter(testSpec("url", TypeURLFilter, map[string]any{
			"allowed_domains": []any{"a.com"},
			"blocked_domains": []any{"b.com"},
		}))
		if err == nil {
			t.Error("expected error when both lists are configured")
		}
	})

	t.Run("deny list", func(t *testing.T) {
		g, err := newURLFilter(testSpec("url", TypeURLFilter, map[string]any{
			"blocked_domains": []any{"evil.com"},
		}))
		if err != nil {
			t.Fatalf("newURLFilter: %v", err)
		}
		if r := analyze(t, g, "visit https://evil.com/login"); !r.Blocked || r.Reason != "blocked_domain" {
			t.Errorf("deny-listed domain should block: %+v", r)
		}
		if r := analyze(t, g, "visit phish.evil.com today"); !r.Blocked {
			t.Errorf("subdomain of deny-listed domain should block: %+v", r)
		}
		if r := analyze(t, g, "visit https://example.com"); r.Blocked {
			t.Errorf("other domains should pass: %+v", r)
		}
	})

	t.Run("allow list", func(t *testing.T) {
		g, err := newURLFilter(testSpec("url", TypeURLFilter, map[string]any{
			"allowed_domains": []any{"example.com"},
		}))
		if err != nil {
			t.Fatalf("newURLFilter: %v", err)
		}
		if r := analyze(t, g, "docs at www.example.com/guide"); r.Blocked {
			t.Errorf("allow-listed domain should pass: %+v", r)
		}
		if r := analyze(t, g, "see https://other.org"); !r.Blocked || r.Reason != "domain_not_allowed" {
			t.Errorf("unlisted domain should block: %+v", r)
		}
	})
}

func TestTopicFilter(t *testing.T) {
	t.Run("deny list", func(t *testing.T) {
		g, err := newTopicFilter(testSpec("topic", TypeTopicFilter, map[string]any{
			"denied_topics": []any{"medical_advice"},
		}))
		if err != nil {
			t.Fatalf("newTopicFilter: %v", err)
		}
		r := analyze(t, g, "what dosage should I take and what are the symptoms of flu")
		if !r.Blocked || r.Reason != "denied_topic" {
			t.Errorf("denied topic should block: %+v", r)
		}
		if r := analyze(t, g, "how do I bake bread"); r.Blocked {
			t.Errorf("unrelated text should pass: %+v", r)
		}
	})

	t.Run("custom topic keywords", func(t *testing.T) {
		g, err := newTopicFilter(testSpec("topic", TypeTopicFilter, map[string]any{
			"denied_topics": []any{"homebrew"},
			"topics": map[string]any{
				"homebrew": []any{"fermentation", "wort"},
			},
		}))
		if err != nil {
			t.Fatalf("newTopicFilter: %v", err)
		}
		if r := analyze(t, g, "my wort fermentation stalled"); !r.Blocked {
			t.Errorf("custom topic should block: %+v", r)
		}
	})

	t.Run("unknown topic reference", func(t *testing.T) {
		_, err := newTopicFilter(testSpec("topic", TypeTopicFilter, map[string]any{
			"denied_topics": []any{"astrology"},
		}))
		if err == nil {
			t.Error("expected error for unknown topic label")
		}
	})
}
