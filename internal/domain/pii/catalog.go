// Package pii holds the shared catalog of personally-identifiable
// information patterns. The pattern PII detector and the audit redactor
// use the same catalog so that anything the detector would block never
// reaches the audit sink in clear text.
package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Pattern names accepted in detector configuration.
const (
	PatternSSN        = "ssn"
	PatternCreditCard = "credit_card"
	PatternEmail      = "email"
	PatternPhone      = "phone"
	PatternIPv4       = "ipv4"
	PatternIBAN       = "iban"
)

// Pattern is one compiled PII matcher. Format-exact patterns score >= 0.8;
// ambiguous ones (bare IPs) score <= 0.6.
type Pattern struct {
	Name       string
	Confidence float64
	re         *regexp.Regexp
	// validate rejects matches that pass the regex but fail a checksum
	// (Luhn for cards, mod-97 for IBANs). Nil means format-only.
	validate func(match string) bool
}

// Match is a single hit in scanned text.
type Match struct {
	Pattern    string
	Text       string
	Confidence float64
	Position   int
}

// Catalog is an immutable, compiled set of patterns. Safe for concurrent
// use after construction.
type Catalog struct {
	patterns []Pattern
}

var builtins = []Pattern{
	{
		Name:       PatternSSN,
		Confidence: 0.92,
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		Name:       PatternCreditCard,
		Confidence: 0.95,
		re:         regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
		validate:   luhnValid,
	},
	{
		Name:       PatternEmail,
		Confidence: 0.85,
		re:         regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		Name:       PatternPhone,
		Confidence: 0.8,
		re:         regexp.MustCompile(`\b(?:\+?1[ .\-]?)?(?:\(\d{3}\)|\d{3})[ .\-]?\d{3}[ .\-]?\d{4}\b`),
	},
	{
		// Bare IPs are ambiguous (version strings, subnets).
		Name:       PatternIPv4,
		Confidence: 0.6,
		re:         regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
	},
	{
		Name:       PatternIBAN,
		Confidence: 0.9,
		re:         regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
		validate:   ibanValid,
	},
}

// DefaultCatalog returns a catalog with every built-in pattern.
func DefaultCatalog() *Catalog {
	return &Catalog{patterns: builtins}
}

// NewCatalog returns a catalog restricted to the named patterns.
// Unknown names are a configuration error.
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return DefaultCatalog(), nil
	}
	byName := make(map[string]Pattern, len(builtins))
	for _, p := range builtins {
		byName[p.Name] = p
	}
	selected := make([]Pattern, 0, len(names))
	for _, n := range names {
		p, ok := byName[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("unknown pii pattern %q", n)
		}
		selected = append(selected, p)
	}
	return &Catalog{patterns: selected}, nil
}

// Names returns the pattern names in this catalog, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// Scan returns every match in text, in pattern order then position order.
func (c *Catalog) Scan(text string) []Match {
	if text == "" {
		return nil
	}
	var matches []Match
	for _, p := range c.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			m := text[loc[0]:loc[1]]
			if p.validate != nil && !p.validate(m) {
				continue
			}
			matches = append(matches, Match{
				Pattern:    p.Name,
				Text:       m,
				Confidence: p.Confidence,
				Position:   loc[0],
			})
		}
	}
	return matches
}

// Redact replaces every match at or above minConfidence with the token
// produced by the replace callback. Used by the audit consumer; the
// callback typically embeds a one-way hash of the original for
// correlation.
func (c *Catalog) Redact(text string, minConfidence float64, replace func(match string) string) string {
	for _, p := range c.patterns {
		if p.Confidence < minConfidence {
			continue
		}
		validate := p.validate
		text = p.re.ReplaceAllStringFunc(text, func(m string) string {
			if validate != nil && !validate(m) {
				return m
			}
			return replace(m)
		})
	}
	return text
}

// luhnValid runs the Luhn checksum over the digits of a candidate card
// number, ignoring separators.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ibanValid checks the ISO 13616 mod-97 checksum.
func ibanValid(s string) bool {
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	// Move the first four characters to the end, then expand letters.
	rearranged := s[4:] + s[:4]
	rem := 0
	for _, r := range rearranged {
		var chunk int
		switch {
		case r >= '0' && r <= '9':
			chunk = int(r - '0')
			rem = (rem*10 + chunk) % 97
		case r >= 'A' && r <= 'Z':
			chunk = int(r-'A') + 10
			rem = (rem*100 + chunk) % 97
		default:
			return false
		}
	}
	return rem == 1
}
