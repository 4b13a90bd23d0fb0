package detector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// toxicCategory is one severity-weighted pattern group. Serious
// categories carry a confidence floor of 0.6 no matter how weak the
// individual match.
type toxicCategory struct {
	name     string
	severity float64
	serious  bool
	patterns []*regexp.Regexp
}

const seriousFloor = 0.6

var toxicCategories = []toxicCategory{
	{
		name:     "threats",
		severity: 0.95,
		serious:  true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bi(?:'m| am| will|'ll)? (?:going to|gonna) (?:kill|hurt|harm|destroy) you\b`),
			regexp.MustCompile(`(?i)\byou (?:will|'ll|are going to) (?:die|regret|pay for)\b`),
			regexp.MustCompile(`(?i)\bwatch your back\b`),
		},
	},
	{
		name:     "hate_speech",
		severity: 0.9,
		serious:  true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\ball \w+ (?:people )?(?:are|should be) (?:subhuman|vermin|exterminated|eliminated)\b`),
			regexp.MustCompile(`(?i)\bgo back to (?:your|where you came)\b`),
		},
	},
	{
		name:     "violence",
		severity: 0.85,
		serious:  true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bhow to (?:build|make) (?:a )?(?:bomb|explosive|weapon)\b`),
			regexp.MustCompile(`(?i)\b(?:shoot|stab|strangle) (?:him|her|them|someone)\b`),
		},
	},
	{
		name:     "harassment",
		severity: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bi hate you\b`),
			regexp.MustCompile(`(?i)\byou(?:'re| are) (?:worthless|pathetic|an idiot|stupid|garbage)\b`),
			regexp.MustCompile(`(?i)\bshut up\b`),
			regexp.MustCompile(`(?i)\bnobody (?:likes|wants) you\b`),
		},
	},
	{
		name:     "sexual",
		severity: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bsend (?:me )?nudes\b`),
			regexp.MustCompile(`(?i)\bexplicit sexual\b`),
		},
	},
}

// patternToxicity flags harassment, hate speech, threats, sexual content,
// and violence using category-tagged pattern sets.
type patternToxicity struct {
	base
	categories []toxicCategory
	threshold  float64
}

func newPatternToxicity(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	names, err := optStringSlice(opts, "categories")
	if err != nil {
		return nil, err
	}

	selected := toxicCategories
	if len(names) > 0 {
		byName := make(map[string]toxicCategory, len(toxicCategories))
		for _, c := range toxicCategories {
			byName[c.name] = c
		}
		selected = selected[:0:0]
		for _, n := range names {
			c, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("unknown toxicity category %q", n)
			}
			selected = append(selected, c)
		}
	}

	return &patternToxicity{
		base:       newBase(spec, guardrail.PerfInstant),
		categories: selected,
		threshold:  spec.Threshold(),
	}, nil
}

func (d *patternToxicity) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	var (
		confidence float64
		topReason  string
		indicators []string
		hits       int
	)
	for _, cat := range d.categories {
		matched := 0
		for _, re := range cat.patterns {
			if re.MatchString(content.Text) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits += matched
		indicators = append(indicators, cat.name)

		// Confidence scales with repeated matches within a category,
		// capped at 1.0. Serious categories never score below the floor.
		c := cat.severity + 0.03*float64(matched-1)
		if c > 1.0 {
			c = 1.0
		}
		if cat.serious && c < seriousFloor {
			c = seriousFloor
		}
		if c > confidence {
			confidence = c
			topReason = cat.name + "_detected"
		}
	}

	if hits == 0 {
		return guardrail.Allow(), nil
	}
	r := finding(confidence, d.threshold, topReason, indicators)
	r.Details = map[string]any{"match_count": hits}
	return r, nil
}

var _ guardrail.Guardrail = (*patternToxicity)(nil)
