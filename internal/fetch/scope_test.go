package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("https://example.com/a", "https://example.com/b"))
	assert.True(t, SameSite("https://www.example.com", "http://blog.example.com/x"))
	assert.True(t, SameSite("https://a.example.co.uk", "https://b.example.co.uk"))
	assert.False(t, SameSite("https://example.com", "https://example.org"))
	assert.False(t, SameSite("https://foo.co.uk", "https://bar.co.uk"))
	assert.False(t, SameSite("not a url", "https://example.com"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "https://example.com/a", Normalize("https://EXAMPLE.com/a/#frag"))
	assert.Equal(t, "https://example.com/", Normalize("https://example.com/"))
	assert.Equal(t, "https://example.com/a?q=1", Normalize("https://example.com/a?q=1"))
}

func TestParseRobots(t *testing.T) {
	body := `
# comment
User-agent: *
Disallow: /private
Allow: /private/public
Crawl-delay: 2.5

User-agent: OtherBot
Disallow: /
`
	r := ParseRobots(strings.NewReader(body))
	assert.True(t, r.Allowed("https://example.com/"))
	assert.False(t, r.Allowed("https://example.com/private/data"))
	assert.True(t, r.Allowed("https://example.com/private/public/page"))
	assert.Equal(t, 2500, int(r.CrawlDelay.Milliseconds()))
}

func TestParseRobots_SpecificGroupWins(t *testing.T) {
	body := `
User-agent: *
Disallow:

User-agent: BlitzScraper
Disallow: /
`
	r := ParseRobots(strings.NewReader(body))
	assert.False(t, r.Allowed("https://example.com/anything"))
}

func TestParseRobots_Empty(t *testing.T) {
	var r *Robots = ParseRobots(strings.NewReader(""))
	assert.Nil(t, r)
	assert.True(t, r.Allowed("https://example.com/x"))
}
