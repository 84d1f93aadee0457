package scrape

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/types"
)

// contextRadius is how many characters around a regex match are kept as context.
const contextRadius = 80

// Confidence assigned to snippets by rule type.
const (
	cssConfidence   = 0.9
	xpathConfidence = 0.9
	regexConfidence = 0.75
)

// Extraction is one value produced by an extraction rule.
type Extraction struct {
	RuleID     uuid.UUID
	RuleName   string
	Content    string
	Context    string
	Confidence float64
}

// Extract applies the active rules to a parsed page in order. Rules that fail
// to compile are logged and skipped.
func Extract(doc *fetch.Document, text string, rules []types.ExtractionRule, logger *slog.Logger) []Extraction {
	var out []Extraction
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		var (
			got []Extraction
			err error
		)
		switch rule.RuleType {
		case types.RuleCSS:
			got, err = extractCSS(doc, rule)
		case types.RuleRegex:
			got, err = extractRegex(text, rule)
		case types.RuleXPath:
			got, err = extractXPath(doc, rule)
		default:
			err = fmt.Errorf("unknown rule type %q", rule.RuleType)
		}
		if err != nil {
			logger.Warn("extraction rule failed", "rule_id", rule.ID, "rule", rule.Name, "error", err)
			continue
		}
		out = append(out, got...)
	}
	return out
}

func extractCSS(doc *fetch.Document, rule types.ExtractionRule) ([]Extraction, error) {
	values, err := doc.Select(rule.Selector, rule.Attribute, rule.Multiple)
	if err != nil {
		return nil, err
	}
	return selected(rule, values, cssConfidence), nil
}

func extractXPath(doc *fetch.Document, rule types.ExtractionRule) ([]Extraction, error) {
	values, err := doc.XPath(rule.Selector, rule.Attribute, rule.Multiple)
	if err != nil {
		return nil, err
	}
	return selected(rule, values, xpathConfidence), nil
}

func selected(rule types.ExtractionRule, values []string, confidence float64) []Extraction {
	out := make([]Extraction, 0, len(values))
	for _, v := range values {
		out = append(out, Extraction{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Content:    v,
			Confidence: confidence,
		})
	}
	return out
}

// extractRegex matches against page text. When the pattern has a capture
// group the first group is the content, otherwise the whole match.
func extractRegex(text string, rule types.ExtractionRule) ([]Extraction, error) {
	re, err := regexp.Compile(rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	n := 1
	if rule.Multiple {
		n = -1
	}
	var out []Extraction
	for _, loc := range re.FindAllStringSubmatchIndex(text, n) {
		start, end := loc[0], loc[1]
		if len(loc) >= 4 && loc[2] >= 0 {
			start, end = loc[2], loc[3]
		}
		content := strings.TrimSpace(text[start:end])
		if content == "" {
			continue
		}
		out = append(out, Extraction{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Content:    content,
			Context:    surrounding(text, loc[0], loc[1]),
			Confidence: regexConfidence,
		})
	}
	return out, nil
}

func surrounding(text string, start, end int) string {
	from := max(start-contextRadius, 0)
	to := min(end+contextRadius, len(text))
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.Join(strings.Fields(text[from:to]), " ")
}
