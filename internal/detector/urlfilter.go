package detector

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// urlPattern extracts URLs with or without an explicit scheme.
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?([a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)+)(?:/[^\s<>"']*)?`)

// urlFilter extracts URLs and matches their domains against an allow- or
// deny-list. A deny entry matches the domain and any subdomain of it.
type urlFilter struct {
	base
	domains []string
	allow   bool
}

func newURLFilter(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	allowList, err := optStringSlice(opts, "allowed_domains")
	if err != nil {
		return nil, err
	}
	denyList, err := optStringSlice(opts, "blocked_domains")
	if err != nil {
		return nil, err
	}

	switch {
	case len(allowList) > 0 && len(denyList) > 0:
		return nil, fmt.Errorf("url filter: allowed_domains and blocked_domains are mutually exclusive")
	case len(allowList) == 0 && len(denyList) == 0:
		return nil, fmt.Errorf("url filter requires allowed_domains or blocked_domains")
	}

	domains := denyList
	allow := false
	if len(allowList) > 0 {
		domains = allowList
		allow = true
	}
	for i, d := range domains {
		domains[i] = strings.ToLower(strings.TrimPrefix(d, "www."))
	}

	return &urlFilter{
		base:    newBase(spec, guardrail.PerfInstant),
		domains: domains,
		allow:   allow,
	}, nil
}

func (d *urlFilter) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	seen := make(map[string]bool)
	var offending []string
	for _, m := range urlPattern.FindAllStringSubmatch(content.Text, -1) {
		domain := strings.ToLower(m[1])
		if seen[domain] {
			continue
		}
		seen[domain] = true

		listed := false
		for _, allowed := range d.domains {
			if domainMatches(domain, allowed) {
				listed = true
				break
			}
		}
		if d.allow != listed {
			offending = append(offending, domain)
		}
	}

	if len(offending) == 0 {
		return guardrail.Allow(), nil
	}
	reason := "blocked_domain"
	if d.allow {
		reason = "domain_not_allowed"
	}
	return guardrail.Result{
		Blocked:    true,
		Confidence: 1.0,
		Risk:       guardrail.RiskMedium,
		Reason:     reason,
		Indicators: offending,
	}, nil
}

// domainMatches reports whether domain equals entry or is a subdomain of it.
func domainMatches(domain, entry string) bool {
	return domain == entry || strings.HasSuffix(domain, "."+entry)
}

var _ guardrail.Guardrail = (*urlFilter)(nil)
