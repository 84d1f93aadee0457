package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jonathan/blitz/internal/console"
	"github.com/spf13/cobra"
)

const (
	promptStart = "blitz=> "
	promptMore  = "blitz-> "
)

const consoleHelp = `Statements end with ";" and may span lines.
  \g          run the buffered or loaded statement
  \n  \p      next or previous result page
  \page N     jump to result page N
  \x N        show row N of the current page in full
  \h          list query history (0 is the most recent)
  \l N        load history entry N without running it
  \clear      clear query history
  \r          discard the buffered statement
  \q          quit`

var cellReplacer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// executeOnce runs a single statement for `admin sql -e`.
func executeOnce(cmd *cobra.Command, c *console.Console, query string, page int) error {
	ctx, out := cmd.Context(), cmd.OutOrStdout()

	res, err := c.Execute(ctx, query)
	if errors.Is(err, console.ErrConfirmationRequired) {
		if !yesFlag && !confirm(cmd.InOrStdin(), out, "This statement may modify data. Execute it?") {
			c.Cancel()
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		res, err = c.Confirm(ctx)
	}
	if err != nil {
		return err
	}
	if page > 1 && res.Tabular() {
		if res, err = c.GoToPage(ctx, page); err != nil {
			return err
		}
	}
	if jsonOutput {
		return printJSON(out, res)
	}
	return printResult(out, res)
}

// repl reads statements and console commands from one scanner so confirmation
// answers come from the same input.
type repl struct {
	ctx context.Context
	c   *console.Console
	sc  *bufio.Scanner
	out io.Writer
	buf strings.Builder
}

// runConsole is the interactive SQL loop. It returns at end of input, on \q or
// when ctx is cancelled.
func runConsole(ctx context.Context, c *console.Console, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r := &repl{ctx: ctx, c: c, sc: sc, out: out}

	fmt.Fprintln(out, `Blitz SQL console. End statements with ";". Type \? for help, \q to quit.`)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.buf.Len() == 0 {
			fmt.Fprint(out, promptStart)
		} else {
			fmt.Fprint(out, promptMore)
		}
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}

		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, `\`) {
			if r.command(trimmed) {
				return nil
			}
			continue
		}
		if r.buf.Len() == 0 && trimmed == "" {
			continue
		}
		if r.buf.Len() > 0 {
			r.buf.WriteByte('\n')
		}
		r.buf.WriteString(line)
		if strings.HasSuffix(trimmed, ";") {
			query := r.buf.String()
			r.buf.Reset()
			r.execute(query)
		}
	}
}

// command handles one backslash command and reports whether to quit.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case `\q`, `\quit`:
		return true
	case `\?`, `\help`:
		fmt.Fprintln(r.out, consoleHelp)
	case `\r`:
		r.buf.Reset()
		fmt.Fprintln(r.out, "Buffer cleared.")
	case `\g`:
		query := r.buf.String()
		r.buf.Reset()
		if strings.TrimSpace(query) == "" {
			query = r.c.Query()
		}
		r.execute(query)
	case `\n`:
		r.page(1, false)
	case `\p`:
		r.page(-1, false)
	case `\page`:
		n, ok := r.number(arg)
		if ok {
			r.page(n, true)
		}
	case `\x`:
		n, ok := r.number(arg)
		if ok {
			r.expand(n)
		}
	case `\h`, `\history`:
		entries := r.c.History()
		if len(entries) == 0 {
			fmt.Fprintln(r.out, "No history.")
		}
		for i, q := range entries {
			fmt.Fprintf(r.out, "%3d  %s\n", i, truncate(q, 80))
		}
	case `\l`:
		n, ok := r.number(arg)
		if !ok {
			return false
		}
		q, err := r.c.Load(n)
		if err != nil {
			fmt.Fprintf(r.out, "ERROR: %v\n", err)
			return false
		}
		r.buf.Reset()
		fmt.Fprintf(r.out, "%s\nLoaded. Run it with \\g.\n", q)
	case `\clear`:
		r.c.ClearHistory()
		fmt.Fprintln(r.out, "History cleared.")
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type \\? for help.\n", name)
	}
	return false
}

func (r *repl) number(arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintf(r.out, "ERROR: expected a number, got %q\n", arg)
		return 0, false
	}
	return n, true
}

// ask reads a yes/no answer from the console input.
func (r *repl) ask(question string) bool {
	fmt.Fprintf(r.out, "%s [y/N]: ", question)
	if !r.sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(r.sc.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (r *repl) execute(query string) {
	res, err := r.c.Execute(r.ctx, query)
	if errors.Is(err, console.ErrConfirmationRequired) {
		if !r.ask("This statement may modify data. Execute it?") {
			r.c.Cancel()
			fmt.Fprintln(r.out, "Cancelled.")
			return
		}
		res, err = r.c.Confirm(r.ctx)
	}
	r.show(res, err)
}

// page moves to an absolute page, or relative to the current one.
func (r *repl) page(n int, absolute bool) {
	cur := r.c.Result()
	if cur == nil || cur.Pagination == nil {
		fmt.Fprintln(r.out, "No result to page through.")
		return
	}
	target := n
	if !absolute {
		target = cur.Pagination.Page + n
	}
	if target < 1 || target > cur.Pagination.Pages {
		fmt.Fprintf(r.out, "No page %d (1-%d).\n", target, cur.Pagination.Pages)
		return
	}
	res, err := r.c.GoToPage(r.ctx, target)
	r.show(res, err)
}

// expand prints row n (1-based) of the current page one column per line, untruncated.
func (r *repl) expand(n int) {
	cur := r.c.Result()
	if cur == nil || !cur.Tabular() || n < 1 || n > len(cur.Rows) {
		fmt.Fprintf(r.out, "No row %d on this page.\n", n)
		return
	}
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for i, cell := range cur.Rows[n-1] {
		name := fmt.Sprintf("col%d", i+1)
		if i < len(cur.Columns) {
			name = cur.Columns[i]
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, cell.Full)
	}
	_ = tw.Flush()
}

func (r *repl) show(res *console.Result, err error) {
	if err != nil {
		fmt.Fprintf(r.out, "ERROR: %v\n", err)
		return
	}
	if err := printResult(r.out, res); err != nil {
		fmt.Fprintf(r.out, "ERROR: %v\n", err)
	}
}

// printResult renders a result set as a table with its page line, or a mutation's row count.
func printResult(w io.Writer, res *console.Result) error {
	if !res.Tabular() {
		fmt.Fprintf(w, "%d row(s) affected\n", *res.Rowcount)
		return nil
	}
	if len(res.Columns) == 0 {
		fmt.Fprintln(w, "(no columns)")
		return nil
	}

	tw := newTable(w, res.Columns...)
	for _, cells := range res.Rows {
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = cellReplacer.Replace(c.Display)
		}
		row(tw, values...)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	p := res.Pagination
	if p == nil {
		fmt.Fprintf(w, "(%d rows)\n", res.RowCount)
		return nil
	}
	if p.Total == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	fmt.Fprintf(w, "Page %d of %d (%d rows total)\n", p.Page, p.Pages, p.Total)
	return nil
}
