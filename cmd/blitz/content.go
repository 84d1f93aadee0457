package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	snippetProject string
	snippetStatus  string
	snippetSearch  string
	snippetPage    int
	snippetPerPage int
	reviewNotes    string

	ruleProject     string
	ruleName        string
	ruleDescription string
	ruleType        string
	ruleSelector    string
	ruleAttribute   string
	ruleMultiple    bool
	rulePriority    int

	extractRule   string
	searchProject string
	searchPage    int
	searchPerPage int
)

var snippetsCmd = &cobra.Command{
	Use:     "snippets",
	Aliases: []string{"snippet"},
	Short:   "List and review extracted content",
	RunE:    runListSnippets,
}

var snippetShowCmd = &cobra.Command{
	Use:   "show <snippet-id>",
	Short: "Show a snippet in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSnippet,
}

var snippetApproveCmd = &cobra.Command{
	Use:   "approve <snippet-id>",
	Short: "Approve a snippet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewSnippet(cmd, args[0], types.SnippetApproved)
	},
}

var snippetRejectCmd = &cobra.Command{
	Use:   "reject <snippet-id>",
	Short: "Reject a snippet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewSnippet(cmd, args[0], types.SnippetRejected)
	},
}

var snippetExtractCmd = &cobra.Command{
	Use:   "extract <page-id>",
	Short: "Re-run extraction rules on a scraped page",
	Long: `Applies the project's active extraction rules to a stored page and saves the
results as pending snippets. --rule runs a single rule, even an inactive one.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over scraped pages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "List and manage a project's extraction rules",
	RunE:    runListRules,
}

var ruleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add an extraction rule",
	RunE:  runCreateRule,
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete an extraction rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteRule,
}

func init() {
	f := snippetsCmd.Flags()
	f.StringVar(&snippetProject, "project", "", "Only snippets of this project")
	f.StringVar(&snippetStatus, "status", "", "Filter by status (pending, approved, rejected)")
	f.StringVarP(&snippetSearch, "search", "s", "", "Search snippet content")
	f.IntVar(&snippetPage, "page", 1, "Page number")
	f.IntVar(&snippetPerPage, "per-page", types.DefaultPerPage, "Snippets per page")

	snippetApproveCmd.Flags().StringVar(&reviewNotes, "notes", "", "Review notes")
	snippetRejectCmd.Flags().StringVar(&reviewNotes, "notes", "", "Review notes")
	snippetExtractCmd.Flags().StringVar(&extractRule, "rule", "", "Only run this rule id")
	snippetsCmd.AddCommand(snippetShowCmd, snippetApproveCmd, snippetRejectCmd, snippetExtractCmd)

	sf := searchCmd.Flags()
	sf.StringVar(&searchProject, "project", "", "Only pages of this project")
	sf.IntVar(&searchPage, "page", 1, "Page number")
	sf.IntVar(&searchPerPage, "per-page", 20, "Results per page (at most 50)")

	rulesCmd.Flags().StringVar(&ruleProject, "project", "", "Project id (required)")
	mustRequire(rulesCmd, "project")

	c := ruleCreateCmd.Flags()
	c.StringVar(&ruleProject, "project", "", "Project id (required)")
	c.StringVarP(&ruleName, "name", "n", "", "Rule name (required)")
	c.StringVarP(&ruleDescription, "description", "d", "", "Description")
	c.StringVar(&ruleType, "type", types.RuleCSS, "Rule type (css, xpath, regex)")
	c.StringVar(&ruleSelector, "selector", "", "Selector or pattern (required)")
	c.StringVar(&ruleAttribute, "attribute", "", "Attribute to read (text when empty)")
	c.BoolVar(&ruleMultiple, "multiple", false, "Keep every match instead of the first")
	c.IntVar(&rulePriority, "priority", 0, "Higher runs first")
	mustRequire(ruleCreateCmd, "project")
	mustRequire(ruleCreateCmd, "name")
	mustRequire(ruleCreateCmd, "selector")
	rulesCmd.AddCommand(ruleCreateCmd, ruleDeleteCmd)

	rootCmd.AddCommand(snippetsCmd, rulesCmd, searchCmd)
}

func runListSnippets(cmd *cobra.Command, _ []string) error {
	projectID, err := optionalID(snippetProject, "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Snippets(cmd.Context(), client.SnippetListParams{
		ProjectID: projectID,
		Status:    snippetStatus,
		Search:    snippetSearch,
		Page:      snippetPage,
		PerPage:   snippetPerPage,
	})
	if err != nil {
		return apiError(err, "Failed to load snippets")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "ID", "STATUS", "CONFIDENCE", "CONTENT", "SOURCE", "CREATED")
	for _, s := range resp.Snippets {
		row(tw, s.ID, s.Status, fmt.Sprintf("%.2f", s.ConfidenceScore), truncate(s.Content, 50),
			truncate(s.SourceURL, 40), fmtTime(&s.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runShowSnippet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "snippet")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Snippet(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to load snippet")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	return printSnippet(cmd, resp.Snippet)
}

func printSnippet(cmd *cobra.Command, s *types.Snippet) error {
	if s == nil {
		return nil
	}
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	field(tw, "ID", s.ID)
	field(tw, "Project", s.ProjectID)
	field(tw, "Source", s.SourceURL)
	field(tw, "Status", s.Status)
	field(tw, "Confidence", fmt.Sprintf("%.2f", s.ConfidenceScore))
	field(tw, "Reviewed", fmtTime(s.ReviewedAt))
	if s.ReviewNotes != "" {
		field(tw, "Notes", s.ReviewNotes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n", s.Content)
	if s.Context != "" {
		fmt.Fprintf(out, "\nContext: %s\n", truncate(s.Context, 200))
	}
	return nil
}

func reviewSnippet(cmd *cobra.Command, arg, status string) error {
	id, err := parseID(arg, "snippet")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Review(cmd.Context(), id, &types.ReviewSnippetRequest{
		Status:      status,
		ReviewNotes: strings.TrimSpace(reviewNotes),
	})
	if err != nil {
		return apiError(err, "Failed to review snippet")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Snippet "+status+".")
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	pageID, err := parseID(args[0], "page")
	if err != nil {
		return err
	}
	ruleID, err := optionalID(extractRule, "rule")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Extract(cmd.Context(), pageID, ruleID)
	if err != nil {
		return apiError(err, "Content extraction failed")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	printMessage(out, resp.Envelope, fmt.Sprintf("Extracted %d snippets", len(resp.Snippets)))
	if len(resp.Snippets) == 0 {
		return nil
	}
	tw := newTable(out, "ID", "CONFIDENCE", "CONTENT")
	for _, s := range resp.Snippets {
		row(tw, s.ID, fmt.Sprintf("%.2f", s.ConfidenceScore), truncate(s.Content, 60))
	}
	return tw.Flush()
}

// markReplacer strips the highlight tags the server wraps around matched terms.
var markReplacer = strings.NewReplacer("<mark>", "", "</mark>", "")

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("search query is required")
	}
	projectID, err := optionalID(searchProject, "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Search(cmd.Context(), client.SearchParams{
		Query:     query,
		ProjectID: projectID,
		Page:      searchPage,
		PerPage:   searchPerPage,
	})
	if err != nil {
		return apiError(err, "Search failed")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No matching pages.")
		return nil
	}
	for _, r := range resp.Results {
		fmt.Fprintf(out, "%s  %s\n  %s / %s  %s\n  %s\n\n", r.PageID, orDash(r.Title), r.ProjectName, r.WebsiteName,
			r.URL, markReplacer.Replace(r.Highlight))
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runListRules(cmd *cobra.Command, _ []string) error {
	projectID, err := parseID(ruleProject, "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().Rules(cmd.Context(), projectID)
	if err != nil {
		return apiError(err, "Failed to load extraction rules")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	if len(resp.Rules) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No extraction rules.")
		return nil
	}
	tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "TYPE", "SELECTOR", "ATTRIBUTE", "MULTIPLE", "PRIORITY", "ACTIVE")
	for _, r := range resp.Rules {
		row(tw, r.ID, truncate(r.Name, 30), r.RuleType, truncate(r.Selector, 40), orDash(r.Attribute),
			r.Multiple, r.Priority, r.IsActive)
	}
	return tw.Flush()
}

func runCreateRule(cmd *cobra.Command, _ []string) error {
	projectID, err := parseID(ruleProject, "project")
	if err != nil {
		return err
	}
	req := &types.CreateRuleRequest{
		ProjectID:   projectID,
		Name:        strings.TrimSpace(ruleName),
		Description: ruleDescription,
		RuleType:    strings.ToLower(ruleType),
		Selector:    ruleSelector,
		Attribute:   ruleAttribute,
		Multiple:    ruleMultiple,
	}
	if cmd.Flags().Changed("priority") {
		req.Priority = &rulePriority
	}

	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Content().CreateRule(cmd.Context(), req)
	if err != nil {
		return apiError(err, "Failed to create extraction rule")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", orDash(resp.Message), resp.Rule.Name, resp.Rule.ID)
	return nil
}

func runDeleteRule(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "rule")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	if !confirmDelete(cmd, "extraction rule "+id.String()) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	resp, err := a.client.Content().DeleteRule(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to delete extraction rule")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Extraction rule deleted.")
	return nil
}
