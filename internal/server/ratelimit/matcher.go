package ratelimit

import (
	"strings"
)

// unlimited marks routes that are never limited.
var unlimited = &Tier{Name: "unlimited"}

// MatchTier returns the tier for a request. Exact paths win over prefixes,
// and earlier tiers win among prefixes. Nil means the default limit applies.
func MatchTier(path, method string, tiers []Tier) *Tier {
	if method == "OPTIONS" {
		return unlimited
	}
	if method == "GET" && (path == "/health" || path == "/metrics") {
		return unlimited
	}

	for i := range tiers {
		t := &tiers[i]
		if t.Path == path && methodMatches(t.Method, method) {
			return t
		}
	}
	for i := range tiers {
		t := &tiers[i]
		if strings.HasSuffix(t.Path, "/") && strings.HasPrefix(path, t.Path) && methodMatches(t.Method, method) {
			return t
		}
	}
	return nil
}

func methodMatches(want, got string) bool {
	return want == "" || want == got
}
