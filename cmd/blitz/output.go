package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonathan/blitz/internal/types"
)

var jsonOutput bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPagination(w io.Writer, p *types.Pagination) {
	if p == nil {
		return
	}
	if p.Pages == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	fmt.Fprintf(w, "Page %d of %d (%d total)\n", p.Page, p.Pages, p.Total)
}

func printMessage(w io.Writer, env types.Envelope, fallback string) {
	if env.Message != "" {
		fmt.Fprintln(w, env.Message)
		return
	}
	fmt.Fprintln(w, fallback)
}

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// field prints one label/value line of a detail view.
func field(tw *tabwriter.Writer, label string, value any) {
	fmt.Fprintf(tw, "%s:\t%v\n", label, value)
}

// truncate shortens s to n runes for table cells.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
