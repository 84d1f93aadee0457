package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSite serves a small link graph:
//
//	/ -> /a, /b, external
//	/a -> /c
//	/b (disallowed by robots.txt)
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /b\n")
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
			<p class="price">$5</p>
			<a href="/a">A</a><a href="/b">B</a><a href="https://elsewhere.test/">X</a>
		</body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>A</title></head><body>Order #1234 shipped <a href="/c">C</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>B</title></head><body>secret</body></html>`)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>C</title></head><body>deep</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func website(url string) types.Website {
	return types.Website{
		ID:               uuid.New(),
		ProjectID:        uuid.New(),
		URL:              url,
		CrawlDepth:       1,
		RateLimitDelay:   0.5,
		RespectRobotsTxt: true,
	}
}

func TestRunner_CrawlsBreadthFirstWithinDepth(t *testing.T) {
	srv := newSite(t)
	store := &memStore{}
	rec := &sleepRecorder{}
	r := NewRunner(store, Config{Logger: quietLogger(), Sleep: rec.sleep})

	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: website(srv.URL + "/")}))
	r.Wait()

	assert.True(t, store.started)
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/a"}, store.pageURLs())
	require.NotNil(t, store.finished)
	assert.Equal(t, types.JobCompleted, store.finished.status)
	assert.Equal(t, []string{types.WebsiteRunning, types.WebsiteActive}, store.websiteStatus)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.delays)
	assert.Equal(t, [2]int{2, 2}, store.progress[len(store.progress)-1])
	assert.Equal(t, "Home", store.pages[0].Title)
	assert.False(t, r.Running(uuid.Nil))
}

func TestRunner_IgnoresRobotsWhenDisabled(t *testing.T) {
	srv := newSite(t)
	store := &memStore{}
	r := NewRunner(store, Config{Logger: quietLogger(), Sleep: (&sleepRecorder{}).sleep})

	w := website(srv.URL + "/")
	w.RespectRobotsTxt = false
	w.CrawlDepth = 2
	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: w}))
	r.Wait()

	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}, store.pageURLs())
}

func TestRunner_SinglePageAndMaxPages(t *testing.T) {
	srv := newSite(t)

	store := &memStore{}
	r := NewRunner(store, Config{Logger: quietLogger(), Sleep: (&sleepRecorder{}).sleep})
	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: website(srv.URL + "/"), SinglePage: true}))
	r.Wait()
	assert.Equal(t, []string{srv.URL + "/"}, store.pageURLs())

	store = &memStore{}
	r = NewRunner(store, Config{Logger: quietLogger(), Sleep: (&sleepRecorder{}).sleep})
	w := website(srv.URL + "/")
	w.CrawlDepth = 3
	w.RespectRobotsTxt = false
	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: w, MaxPages: 3}))
	r.Wait()
	assert.Len(t, store.pageURLs(), 3)
}

func TestRunner_AppliesExtractionRules(t *testing.T) {
	srv := newSite(t)
	store := &memStore{rules: []types.ExtractionRule{
		{ID: uuid.New(), Name: "price", RuleType: types.RuleCSS, Selector: ".price", Attribute: "text", IsActive: true},
		{ID: uuid.New(), Name: "order", RuleType: types.RuleRegex, Selector: `Order #(\d+)`, IsActive: true},
		{ID: uuid.New(), Name: "links", RuleType: types.RuleXPath, Selector: "//body/a", Attribute: "href", Multiple: true, IsActive: true},
	}}
	r := NewRunner(store, Config{Logger: quietLogger(), Sleep: (&sleepRecorder{}).sleep})

	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: website(srv.URL + "/"), ExtractContent: true}))
	r.Wait()

	contents := make([]string, 0, len(store.snippets))
	for _, s := range store.snippets {
		contents = append(contents, s.Content)
	}
	assert.Equal(t, []string{"$5", "/a", "/b", "https://elsewhere.test/", "1234", "/c"}, contents)
	assert.Equal(t, srv.URL+"/", store.snippets[0].SourceURL)
	assert.Equal(t, 0.9, store.snippets[1].ConfidenceScore)
	assert.Contains(t, store.snippets[4].Context, "Order #1234 shipped")
	assert.JSONEq(t, `{"rule":"order","depth":1,"method":"http"}`, string(store.snippets[4].Metadata))
}

func TestRunner_FailsWhenNothingFetched(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	store := &memStore{}
	r := NewRunner(store, Config{Logger: quietLogger(), Sleep: (&sleepRecorder{}).sleep})

	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: website(srv.URL + "/")}))
	r.Wait()

	require.NotNil(t, store.finished)
	assert.Equal(t, types.JobFailed, store.finished.status)
	assert.Contains(t, store.finished.msg, "404")
	assert.Equal(t, types.WebsiteError, store.websiteStatus[len(store.websiteStatus)-1])
}

// blockingFetcher parks every fetch until its context ends.
type blockingFetcher struct {
	entered chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	f.entered <- struct{}{}
	<-ctx.Done()
	return nil, &fetch.Error{URL: url, Message: "HTTP request failed", Cause: ctx.Err()}
}

func TestRunner_StopPausesJob(t *testing.T) {
	store := &memStore{}
	fetcher := &blockingFetcher{entered: make(chan struct{}, 1)}
	r := NewRunner(store, Config{HTTP: fetcher, Logger: quietLogger()})

	w := website("https://example.com/")
	w.RespectRobotsTxt = false
	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: w}))
	<-fetcher.entered

	assert.True(t, r.Running(w.ID))
	assert.ErrorIs(t, r.Start(Request{JobID: uuid.New(), Website: w}), ErrAlreadyRunning)

	assert.True(t, r.Stop(w.ID))
	r.Wait()

	require.NotNil(t, store.finished)
	assert.Equal(t, types.JobPaused, store.finished.status)
	assert.Equal(t, "stopped by user", store.finished.msg)
	assert.False(t, r.Running(w.ID))
	assert.False(t, r.Stop(w.ID))
}

func TestRunner_UsesBrowserFetcher(t *testing.T) {
	store := &memStore{}
	browser := fetcherFunc(func(_ context.Context, url string) (*fetch.Result, error) {
		return &fetch.Result{URL: url, HTML: "<title>Rendered</title>", StatusCode: 200}, nil
	})
	r := NewRunner(store, Config{Browser: browser, Logger: quietLogger()})

	w := website("https://spa.example.com/")
	w.RespectRobotsTxt = false
	require.NoError(t, r.Start(Request{JobID: uuid.New(), Website: w, UseBrowser: true}))
	r.Wait()

	require.Len(t, store.pages, 1)
	assert.Equal(t, "Rendered", store.pages[0].Title)
}

func TestRunner_ShutdownRejectsNewCrawls(t *testing.T) {
	r := NewRunner(&memStore{}, Config{Logger: quietLogger()})
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Error(t, r.Start(Request{JobID: uuid.New(), Website: website("https://example.com")}))
}

type fetcherFunc func(ctx context.Context, url string) (*fetch.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	return f(ctx, url)
}
