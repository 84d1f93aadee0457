package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	exportType     string
	exportFilters  string
	exportFilename string
	exportPage     int
	exportPerPage  int
	downloadOutput string
)

var exportsCmd = &cobra.Command{
	Use:     "exports",
	Aliases: []string{"export", "reports"},
	Short:   "List, create and download data exports",
	RunE:    runListExports,
}

var exportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate an export",
	Example: `  blitz exports create --type csv
  blitz exports create --type json --filters '{"data_type":"snippets","status":"approved"}'`,
	RunE: runCreateExport,
}

var exportShowCmd = &cobra.Command{
	Use:   "show <export-id>",
	Short: "Show an export's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowExport,
}

var exportDownloadCmd = &cobra.Command{
	Use:   "download <export-id>",
	Short: "Download a completed export",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownloadExport,
}

func init() {
	exportsCmd.Flags().IntVar(&exportPage, "page", 1, "Page number")
	exportsCmd.Flags().IntVar(&exportPerPage, "per-page", types.DefaultPerPage, "Exports per page")

	exportCreateCmd.Flags().StringVarP(&exportType, "type", "t", types.ExportCSV, "Export type (csv, excel, json, pdf)")
	exportCreateCmd.Flags().StringVar(&exportFilters, "filters", "", "Filters as a JSON object")
	exportCreateCmd.Flags().StringVar(&exportFilename, "filename", "", "Filename stored with the export")

	exportDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Output path, - for stdout (defaults to the export's filename)")

	exportsCmd.AddCommand(exportCreateCmd, exportShowCmd, exportDownloadCmd)
	rootCmd.AddCommand(exportsCmd)
}

// parseFilters checks the --filters value against the known filter fields.
func parseFilters(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var f types.ExportFilters
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid --filters: %w", err)
	}
	return json.RawMessage(raw), nil
}

func runCreateExport(cmd *cobra.Command, _ []string) error {
	filters, err := parseFilters(exportFilters)
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Reports().CreateExport(cmd.Context(), &types.CreateExportRequest{
		ExportType: strings.ToLower(exportType),
		Filters:    filters,
		Filename:   exportFilename,
	})
	if err != nil {
		return apiError(err, "Failed to create export")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Export created.")
	return printExport(cmd, resp.Export)
}

func runListExports(cmd *cobra.Command, _ []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Reports().Exports(cmd.Context(), exportPage, exportPerPage)
	if err != nil {
		return apiError(err, "Failed to load exports")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "ID", "TYPE", "FILENAME", "STATUS", "ROWS", "SIZE", "CREATED", "EXPIRES")
	for _, e := range resp.Exports {
		row(tw, e.ID, e.ExportType, truncate(e.Filename, 40), e.Status, e.RowCount, byteSize(e.FileSize),
			fmtTime(&e.CreatedAt), fmtTime(e.ExpiresAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runShowExport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "export")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Reports().Export(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to load export")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	return printExport(cmd, resp.Export)
}

func printExport(cmd *cobra.Command, e *types.Export) error {
	if e == nil {
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	field(tw, "ID", e.ID)
	field(tw, "Type", e.ExportType)
	field(tw, "Filename", e.Filename)
	field(tw, "Status", e.Status)
	field(tw, "Rows", e.RowCount)
	field(tw, "Size", byteSize(e.FileSize))
	field(tw, "Created", fmtTime(&e.CreatedAt))
	field(tw, "Completed", fmtTime(e.CompletedAt))
	field(tw, "Expires", fmtTime(e.ExpiresAt))
	if e.ErrorMessage != "" {
		field(tw, "Error", e.ErrorMessage)
	}
	return tw.Flush()
}

func runDownloadExport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "export")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if downloadOutput == "-" {
		if _, _, err := a.client.Reports().Download(ctx, id, cmd.OutOrStdout()); err != nil {
			return apiError(err, "Failed to download export")
		}
		return nil
	}

	meta, err := a.client.Reports().Export(ctx, id)
	if err != nil {
		return apiError(err, "Failed to load export")
	}
	if meta.Export == nil {
		return fmt.Errorf("export %s not found", id)
	}
	if !meta.Export.Downloadable(time.Now()) {
		return fmt.Errorf("export %s is %s and cannot be downloaded", id, meta.Export.Status)
	}

	path := downloadOutput
	if path == "" {
		path = defaultExportPath(meta.Export.Filename, id)
	}
	n, err := downloadTo(cmd, a, id, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", path, byteSize(n))
	return nil
}

// downloadTo writes the export next to path and renames it into place once complete.
func downloadTo(cmd *cobra.Command, a *app, id uuid.UUID, path string) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".blitz-export-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	_, n, err := a.client.Reports().Download(cmd.Context(), id, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, apiError(err, "Failed to download export")
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return n, nil
}

// defaultExportPath keeps only the base name of the server's filename.
func defaultExportPath(filename string, id uuid.UUID) string {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "export-" + id.String()
	}
	return name
}

func byteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
