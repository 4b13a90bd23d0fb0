package detector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// maxKeywordIndicators caps how many matched keywords a result reports.
const maxKeywordIndicators = 10

// keywordFilter blocks content containing any keyword from an inline or
// file-backed set. The file is read once at construction; a missing file
// is a configuration error, never a runtime one.
type keywordFilter struct {
	base
	keywords      []string
	folded        []string
	caseSensitive bool
	wholeWord     bool
}

// newKeywordFactory builds the factory for keyword_block (inline set,
// file optional) and keyword_list (file required).
func newKeywordFactory(fileRequired bool) guardrail.Factory {
	return func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		opts := spec.Options()
		keywords, err := optStringSlice(opts, "keywords")
		if err != nil {
			return nil, err
		}

		file := optString(opts, "file", "")
		if fileRequired && file == "" {
			return nil, fmt.Errorf("keyword list requires a file")
		}
		if file != "" {
			fromFile, err := readKeywordFile(file)
			if err != nil {
				return nil, err
			}
			keywords = append(keywords, fromFile...)
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("keyword filter has no keywords")
		}

		caseSensitive := optBool(opts, "case_sensitive", false)
		folded := make([]string, len(keywords))
		for i, k := range keywords {
			folded[i] = strings.ToLower(k)
		}

		return &keywordFilter{
			base:          newBase(spec, perfForKeywords(len(keywords))),
			keywords:      keywords,
			folded:        folded,
			caseSensitive: caseSensitive,
			wholeWord:     optBool(opts, "whole_word", false),
		}, nil
	}
}

// perfForKeywords: large file-backed sets move out of the instant band.
func perfForKeywords(n int) guardrail.PerfClass {
	if n > 500 {
		return guardrail.PerfFast
	}
	return guardrail.PerfInstant
}

func readKeywordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyword file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("keyword file: %w", err)
	}
	return out, nil
}

func (d *keywordFilter) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	text := content.Text
	set := d.keywords
	if !d.caseSensitive {
		text = strings.ToLower(text)
		set = d.folded
	}

	var matched []string
	for i, k := range set {
		if k == "" {
			continue
		}
		if d.wholeWord {
			if !containsWord(text, k) {
				continue
			}
		} else if !strings.Contains(text, k) {
			continue
		}
		matched = append(matched, d.keywords[i])
		if len(matched) >= maxKeywordIndicators {
			break
		}
	}

	if len(matched) == 0 {
		return guardrail.Allow(), nil
	}
	return guardrail.Result{
		Blocked:    true,
		Confidence: 1.0,
		Risk:       guardrail.RiskMedium,
		Reason:     "keyword_match",
		Indicators: matched,
	}, nil
}

// containsWord reports whether needle occurs in text bounded by
// non-alphanumeric runes on both sides.
func containsWord(text, needle string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			return false
		}
		i += from
		before := i == 0 || !isWordRune(rune(text[i-1]))
		afterIdx := i + len(needle)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		from = i + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

var _ guardrail.Guardrail = (*keywordFilter)(nil)
