// Package sqlguard classifies raw SQL entered in the admin console.
//
// The checks are substring heuristics, not a parser. ClassifyDangerous over-approximates
// (a column named updated_at trips it) and is a prompt for confirmation, not an
// authorization decision.
package sqlguard

import "strings"

var dangerousKeywords = []string{"drop", "delete", "truncate", "alter", "insert", "update"}

// blockedPatterns are refused by the server regardless of confirmation.
var blockedPatterns = []string{"drop database", "format c:", "rm -rf", "del /"}

// selectPrefixes mark statements that return a result set.
var selectPrefixes = []string{"select", "with"}

// passthroughPrefixes return rows but cannot be wrapped in a subquery.
var passthroughPrefixes = []string{"show", "explain"}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// ClassifyDangerous reports whether query contains any mutating keyword, case-insensitively.
func ClassifyDangerous(query string) bool {
	q := normalize(query)
	for _, kw := range dangerousKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Blocked returns the first blocked pattern found in query, or "".
func Blocked(query string) string {
	q := normalize(query)
	for _, p := range blockedPatterns {
		if strings.Contains(q, p) {
			return p
		}
	}
	return ""
}

// Kind of statement, as far as the console is concerned.
type Kind int

const (
	// Modify statements run in a transaction and report rows affected.
	Modify Kind = iota
	// Select statements are paginated by wrapping them in a subquery.
	Select
	// Passthrough statements return rows but run unwrapped as a single page.
	Passthrough
)

// Classify returns the statement kind from its leading keyword.
func Classify(query string) Kind {
	q := normalize(query)
	for _, p := range selectPrefixes {
		if hasKeywordPrefix(q, p) {
			return Select
		}
	}
	for _, p := range passthroughPrefixes {
		if hasKeywordPrefix(q, p) {
			return Passthrough
		}
	}
	return Modify
}

func hasKeywordPrefix(q, kw string) bool {
	if !strings.HasPrefix(q, kw) {
		return false
	}
	if len(q) == len(kw) {
		return true
	}
	switch q[len(kw)] {
	case ' ', '\t', '\n', '\r', '(':
		return true
	}
	return false
}

// StripTerminator removes trailing semicolons and whitespace so the statement can be nested.
func StripTerminator(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
}
