package fetch

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Robots holds the rules of a robots.txt group that applies to this scraper.
// A nil *Robots allows everything.
type Robots struct {
	allow      []string
	disallow   []string
	CrawlDelay time.Duration
}

// robotsAgent is the product token matched against User-agent lines.
const robotsAgent = "blitzscraper"

// FetchRobots downloads and parses /robots.txt for the site of pageURL.
// A missing or unreadable file yields nil, which allows every path.
func FetchRobots(ctx context.Context, pageURL string, opts *Options) *Robots {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	res, err := URL(ctx, robotsURL, opts)
	if err != nil || res == nil || res.StatusCode != http.StatusOK {
		return nil
	}
	return ParseRobots(strings.NewReader(res.HTML))
}

// ParseRobots reads a robots.txt body. A group naming this scraper wins over
// the wildcard group.
func ParseRobots(r io.Reader) *Robots {
	var (
		specific, wildcard *Robots
		current            []*Robots
		inRules            bool
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if inRules {
				current = nil
				inRules = false
			}
			agent := strings.ToLower(value)
			switch {
			case agent == "*":
				if wildcard == nil {
					wildcard = &Robots{}
				}
				current = append(current, wildcard)
			case agent != "" && (strings.Contains(robotsAgent, agent) || strings.Contains(agent, robotsAgent)):
				if specific == nil {
					specific = &Robots{}
				}
				current = append(current, specific)
			default:
				current = append(current, nil)
			}
		case "allow", "disallow", "crawl-delay":
			inRules = true
			for _, g := range current {
				if g == nil {
					continue
				}
				switch key {
				case "allow":
					if value != "" {
						g.allow = append(g.allow, value)
					}
				case "disallow":
					if value != "" {
						g.disallow = append(g.disallow, value)
					}
				case "crawl-delay":
					if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
						g.CrawlDelay = time.Duration(secs * float64(time.Second))
					}
				}
			}
		}
	}
	if specific != nil {
		return specific
	}
	return wildcard
}

// Allowed reports whether the path of rawURL may be fetched. The longest
// matching rule wins and Allow wins ties.
func (r *Robots) Allowed(rawURL string) bool {
	if r == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	best, allowed := -1, true
	for _, p := range r.disallow {
		if strings.HasPrefix(path, p) && len(p) > best {
			best, allowed = len(p), false
		}
	}
	for _, p := range r.allow {
		if strings.HasPrefix(path, p) && len(p) >= best {
			best, allowed = len(p), true
		}
	}
	return allowed
}
