// Package console drives the admin SQL console: risk check, confirmation,
// execution, paging and history.
//
// The risk check is a keyword heuristic meant to make an admin look twice. The
// server enforces the same rule independently.
package console

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/session"
	"github.com/jonathan/blitz/internal/sqlguard"
	"github.com/jonathan/blitz/internal/types"
)

// DefaultPerPage is the page size sent with every query.
const DefaultPerPage = 20

// FailureMessage is shown when the server gives no reason.
const FailureMessage = "Query execution failed"

// State of the console.
type State int

const (
	Idle State = iota
	RiskCheck
	ConfirmPending
	Executing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RiskCheck:
		return "risk_check"
	case ConfirmPending:
		return "confirm_pending"
	case Executing:
		return "executing"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyQuery is returned for a blank query. No request is made.
	ErrEmptyQuery = errors.New("please enter a SQL query")
	// ErrConfirmationRequired means the query looks dangerous and waits for Confirm or Cancel.
	ErrConfirmationRequired = errors.New("query is potentially dangerous; confirm to execute")
	// ErrNothingToConfirm is returned by Confirm outside ConfirmPending.
	ErrNothingToConfirm = errors.New("no query awaiting confirmation")
	// ErrNoQuery is returned by GoToPage before any query has run.
	ErrNoQuery = errors.New("no query to page through")
	// ErrBusy is returned while a query is executing.
	ErrBusy = errors.New("a query is already executing")
	// ErrNotPaginated is returned by GoToPage when the last result was a row count.
	ErrNotPaginated = errors.New("last result has no pages")
)

// ClassifyDangerous reports whether query contains a mutating keyword. It is
// case-insensitive and ignores surrounding whitespace.
func ClassifyDangerous(query string) bool {
	return sqlguard.ClassifyDangerous(query)
}

// Executor runs one statement on the server.
type Executor interface {
	ExecuteSQL(ctx context.Context, req *types.SQLRequest) (*types.SQLResponse, error)
}

// Result is a rendered server response.
type Result struct {
	Query      string
	QueryType  string
	Columns    []string
	Rows       [][]Cell
	Pagination *types.Pagination
	RowCount   int
	// Rowcount is set for statements that modify data.
	Rowcount *int64
}

// Tabular reports whether the result carries rows.
func (r *Result) Tabular() bool {
	return r.Rowcount == nil
}

// Options configures a Console.
type Options struct {
	API     Executor
	Storage session.Storage
	PerPage int
	Logger  *slog.Logger
}

// Console is one editor with its state machine.
type Console struct {
	api     Executor
	perPage int
	history *History
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	query     string
	pending   string
	lastQuery string
	lastConf  bool
	lastPaged bool
	result    *Result
	lastErr   string
}

// New creates a Console and loads its history from opts.Storage.
func New(opts Options) *Console {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Console{
		api:     opts.API,
		perPage: perPage,
		history: LoadHistory(opts.Storage, logger),
		logger:  logger,
	}
}

func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Query returns the editor text. It survives failures and cancellation.
func (c *Console) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// SetQuery replaces the editor text without executing it. A pending
// confirmation is dropped.
func (c *Console) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = q
	if c.state == ConfirmPending {
		c.state = Idle
		c.pending = ""
	}
}

// Result returns the last successful result, or nil.
func (c *Console) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// LastError returns the message of the last failed execution, or "".
func (c *Console) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Console) History() []string {
	return c.history.Entries()
}

// ClearHistory forgets every stored query.
func (c *Console) ClearHistory() {
	c.history.Clear()
}

// Load puts history entry i into the editor without executing it.
func (c *Console) Load(i int) (string, error) {
	q, err := c.history.Get(i)
	if err != nil {
		return "", err
	}
	c.SetQuery(q)
	return q, nil
}

// Execute runs query from page 1. A dangerous query is held in ConfirmPending and
// ErrConfirmationRequired is returned without contacting the server.
func (c *Console) Execute(ctx context.Context, query string) (*Result, error) {
	c.mu.Lock()
	if c.state == Executing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.query = query
	c.pending = ""
	if strings.TrimSpace(query) == "" {
		c.state = Idle
		c.lastErr = ErrEmptyQuery.Error()
		c.mu.Unlock()
		return nil, ErrEmptyQuery
	}

	c.state = RiskCheck
	if ClassifyDangerous(query) {
		c.state = ConfirmPending
		c.pending = query
		c.mu.Unlock()
		return nil, ErrConfirmationRequired
	}
	c.mu.Unlock()

	return c.run(ctx, query, 1, false, true)
}

// Confirm executes the pending dangerous query with confirm_dangerous set.
func (c *Console) Confirm(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != ConfirmPending || c.pending == "" {
		c.mu.Unlock()
		return nil, ErrNothingToConfirm
	}
	query := c.pending
	c.pending = ""
	c.mu.Unlock()

	return c.run(ctx, query, 1, true, true)
}

// Cancel abandons a pending confirmation. The query text is kept.
func (c *Console) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ConfirmPending {
		c.state = Idle
		c.pending = ""
	}
}

// GoToPage re-executes the last query for page. Pages are not cached.
func (c *Console) GoToPage(ctx context.Context, page int) (*Result, error) {
	c.mu.Lock()
	query, confirmed, paged := c.lastQuery, c.lastConf, c.lastPaged
	c.mu.Unlock()
	if query == "" {
		return nil, ErrNoQuery
	}
	if !paged {
		return nil, ErrNotPaginated
	}
	if page < 1 {
		page = 1
	}
	return c.run(ctx, query, page, confirmed, false)
}

// run issues one request. record adds the query to history.
func (c *Console) run(ctx context.Context, query string, page int, confirm, record bool) (*Result, error) {
	c.mu.Lock()
	if c.state == Executing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = Executing
	c.mu.Unlock()

	if record {
		c.history.Add(query)
	}

	resp, err := c.api.ExecuteSQL(ctx, &types.SQLRequest{
		SQL:              query,
		Page:             page,
		PerPage:          c.perPage,
		ConfirmDangerous: confirm,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	if err == nil && !resp.Success {
		err = &client.APIError{Message: resp.Message}
	}
	if err != nil {
		c.lastErr = client.Message(err, FailureMessage)
		c.logger.Debug("sql execution failed", "error", err)
		return nil, errors.New(c.lastErr)
	}

	c.lastErr = ""
	c.lastQuery = query
	c.lastConf = confirm
	c.lastPaged = resp.Rowcount == nil && resp.Pagination != nil
	c.result = &Result{
		Query:      query,
		QueryType:  resp.QueryType,
		Columns:    resp.Columns,
		Rows:       RenderRows(resp.Rows),
		Pagination: resp.Pagination,
		RowCount:   resp.RowCount,
		Rowcount:   resp.Rowcount,
	}
	return c.result, nil
}
