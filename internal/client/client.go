// Package client is the Go client for the Blitz REST API.
//
// Every call returns the decoded response envelope. Non-2xx responses are
// returned as *APIError; there is no retry. A 401 clears the session and fires
// OnUnauthorized, a 5xx fires OnServerError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/blitz/internal/types"
)

// ServerErrorMessage is the transient notice passed to OnServerError.
const ServerErrorMessage = "Server error. Please try again later."

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the bearer token for outgoing requests. An empty token sends none.
type TokenSource interface {
	Token() string
}

// SessionClearer drops the stored session after the server rejects its token.
type SessionClearer interface {
	Clear()
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Session    SessionClearer

	// OnUnauthorized runs after a 401 has cleared the session.
	OnUnauthorized func()
	// OnServerError runs on any 5xx with ServerErrorMessage.
	OnServerError func(message string)

	Logger *slog.Logger
}

// Client talks to one Blitz backend.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	session        SessionClearer
	onUnauthorized func()
	onServerError  func(string)
	logger         *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           httpClient,
		tokens:         opts.Tokens,
		session:        opts.Session,
		onUnauthorized: opts.OnUnauthorized,
		onServerError:  opts.OnServerError,
		logger:         logger,
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resource accessors.
func (c *Client) Auth() *AuthAPI         { return &AuthAPI{c} }
func (c *Client) Projects() *ProjectsAPI { return &ProjectsAPI{c} }
func (c *Client) Websites() *WebsitesAPI { return &WebsitesAPI{c} }
func (c *Client) Scraping() *ScrapingAPI { return &ScrapingAPI{c} }
func (c *Client) Content() *ContentAPI   { return &ContentAPI{c} }
func (c *Client) Reports() *ReportsAPI   { return &ReportsAPI{c} }
func (c *Client) Admin() *AdminAPI       { return &AdminAPI{c} }

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// token overrides the TokenSource, e.g. a refresh token.
	token string
}

// call sends req and decodes a successful response body into out.
func (c *Client) call(ctx context.Context, req request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// send performs req and returns the response when the status is 2xx. The caller closes the body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	token := req.token
	if token == "" && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp)}
	c.logger.Debug("api request failed",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"message", apiErr.Message,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.session != nil {
			c.session.Clear()
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		if c.onServerError != nil {
			c.onServerError(ServerErrorMessage)
		}
	}
	return nil, apiErr
}

// errorMessage extracts the envelope message from an error response.
func errorMessage(resp *http.Response) string {
	var env types.Envelope
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && json.Unmarshal(data, &env) == nil && env.Message != "" {
		return env.Message
	}
	return ""
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsServerError reports whether err is a 5xx from the API.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}

// Message returns the server's message carried by err, or fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// pageQuery encodes page and per_page when set.
func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if perPage > 0 {
		q.Set("per_page", fmt.Sprint(perPage))
	}
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
