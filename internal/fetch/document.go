package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements that never carry page content.
const noiseSelector = "nav, footer, header, script, style, noscript, .ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup"

// Document is a parsed HTML page anchored at the URL it was fetched from.
type Document struct {
	base *url.URL
	doc  *goquery.Document
}

// Parse builds a Document from raw HTML. base resolves relative links.
func Parse(base, html string) (*Document, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{base: u, doc: doc}, nil
}

// Title returns the trimmed <title> text, falling back to the first <h1>.
func (d *Document) Title() string {
	if t := strings.TrimSpace(d.doc.Find("head title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(d.doc.Find("h1").First().Text())
}

// Links returns the absolute http(s) targets of every <a href>, deduplicated
// in document order with fragments stripped.
func (d *Document) Links() []string {
	seen := make(map[string]bool)
	var links []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := d.base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		key := abs.String()
		if !seen[key] {
			seen[key] = true
			links = append(links, key)
		}
	})
	return links
}

// MainText returns the cleaned text of the first matching content selector,
// or the body when none match. The document is not modified.
func (d *Document) MainText(contentSelectors ...string) string {
	root := d.doc.Selection.Clone()
	root.Find(noiseSelector).Remove()
	if len(contentSelectors) == 0 {
		contentSelectors = DefaultTextSelectors()
	}
	for _, selector := range contentSelectors {
		if sel := root.Find(selector); sel.Length() > 0 {
			return cleanWhitespace(sel.First().Text())
		}
	}
	return cleanWhitespace(root.Find("body").Text())
}

// Select applies a CSS selector and returns the requested attribute of the
// matched nodes. attribute "text" (or empty) yields the node text and "html"
// the inner HTML. Only the first match is returned unless multiple is set.
func (d *Document) Select(selector, attribute string, multiple bool) ([]string, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	var out []string
	d.doc.FindMatcher(m).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v string
		switch attribute {
		case "", "text":
			v = cleanWhitespace(s.Text())
		case "html":
			v, _ = s.Html()
			v = strings.TrimSpace(v)
		default:
			v, _ = s.Attr(attribute)
			v = strings.TrimSpace(v)
		}
		if v != "" {
			out = append(out, v)
		}
		return multiple
	})
	return out, nil
}

// XPath is Select for XPath expressions. Expressions that address an attribute
// directly (//a/@href) yield its value whatever attribute is requested.
func (d *Document) XPath(expr, attribute string, multiple bool) ([]string, error) {
	if len(d.doc.Nodes) == 0 {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(d.doc.Nodes[0], expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	var out []string
	for _, n := range nodes {
		var v string
		switch {
		case n.Type != html.ElementNode || n.Parent == nil:
			v = cleanWhitespace(htmlquery.InnerText(n))
		case attribute == "" || attribute == "text":
			v = cleanWhitespace(htmlquery.InnerText(n))
		case attribute == "html":
			v = strings.TrimSpace(htmlquery.OutputHTML(n, false))
		default:
			v = strings.TrimSpace(htmlquery.SelectAttr(n, attribute))
		}
		if v == "" {
			continue
		}
		out = append(out, v)
		if !multiple {
			break
		}
	}
	return out, nil
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements using noiseSelectors, then finds content using contentSelectors.
// If no content selectors match, it falls back to the body element.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(noiseSelector).Remove()
	if extra := strings.Join(noiseSelectors, ", "); extra != "" {
		doc.Find(extra).Remove()
	}

	mainContent := doc.Find("body")
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}
	return cleanWhitespace(mainContent.Text()), nil
}

// DefaultTextSelectors returns standard selectors for general web content.
func DefaultTextSelectors() []string {
	return []string{
		"main",
		"article",
		".content",
		"#content",
		".main-content",
		"#main-content",
	}
}

// cleanWhitespace trims every line and drops the empty ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
