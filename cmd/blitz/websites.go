package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	websiteProject     string
	websitePage        int
	websitePerPage     int
	websiteURL         string
	websiteName        string
	websiteDescription string
	websiteDepth       int
	websiteDelay       float64
	websiteExternal    bool
	websiteRobots      bool
	websiteStatus      string
)

var websitesCmd = &cobra.Command{
	Use:     "websites",
	Aliases: []string{"website"},
	Short:   "List and manage a project's websites",
	RunE:    runListWebsites,
}

var websiteShowCmd = &cobra.Command{
	Use:   "show <website-id>",
	Short: "Show a website",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowWebsite,
}

var websiteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a website to a project",
	RunE:  runCreateWebsite,
}

var websiteUpdateCmd = &cobra.Command{
	Use:   "update <website-id>",
	Short: "Update a website's crawl settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdateWebsite,
}

var websiteDeleteCmd = &cobra.Command{
	Use:   "delete <website-id>",
	Short: "Delete a website and its pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteWebsite,
}

func init() {
	websitesCmd.Flags().StringVar(&websiteProject, "project", "", "Project id (required)")
	websitesCmd.Flags().IntVar(&websitePage, "page", 1, "Page number")
	websitesCmd.Flags().IntVar(&websitePerPage, "per-page", types.DefaultPerPage, "Websites per page")
	mustRequire(websitesCmd, "project")

	websiteCreateCmd.Flags().StringVar(&websiteProject, "project", "", "Project id (required)")
	websiteCreateCmd.Flags().StringVar(&websiteURL, "url", "", "Absolute http(s) URL (required)")
	mustRequire(websiteCreateCmd, "project")
	mustRequire(websiteCreateCmd, "url")

	for _, c := range []*cobra.Command{websiteCreateCmd, websiteUpdateCmd} {
		c.Flags().StringVarP(&websiteName, "name", "n", "", "Display name")
		c.Flags().StringVarP(&websiteDescription, "description", "d", "", "Description")
		c.Flags().IntVar(&websiteDepth, "depth", 2, "Crawl depth (0-10)")
		c.Flags().Float64Var(&websiteDelay, "delay", 1, "Seconds between requests")
		c.Flags().BoolVar(&websiteExternal, "follow-external", false, "Follow links to other sites")
		c.Flags().BoolVar(&websiteRobots, "respect-robots", true, "Honor robots.txt")
	}
	websiteUpdateCmd.Flags().StringVar(&websiteStatus, "status", "", "Status (active, inactive, paused)")

	websitesCmd.AddCommand(websiteShowCmd, websiteCreateCmd, websiteUpdateCmd, websiteDeleteCmd)
	rootCmd.AddCommand(websitesCmd)
}

func runListWebsites(cmd *cobra.Command, _ []string) error {
	projectID, err := parseID(websiteProject, "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Projects().Websites(cmd.Context(), projectID, websitePage, websitePerPage)
	if err != nil {
		return apiError(err, "Failed to load websites")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "ID", "NAME", "URL", "STATUS", "DEPTH", "PAGES", "LAST SCRAPED")
	for _, w := range resp.Websites {
		row(tw, w.ID, truncate(w.Name, 30), w.URL, w.Status, w.CrawlDepth, w.TotalPages, fmtTime(w.LastScraped))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runShowWebsite(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "website")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Websites().Get(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to load website")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	w := resp.Website
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	field(tw, "ID", w.ID)
	field(tw, "Project", w.ProjectID)
	field(tw, "Name", w.Name)
	field(tw, "URL", w.URL)
	field(tw, "Status", w.Status)
	field(tw, "Crawl depth", w.CrawlDepth)
	field(tw, "Delay", fmt.Sprintf("%.1fs", w.RateLimitDelay))
	field(tw, "External links", w.FollowExternalLinks)
	field(tw, "Robots.txt", w.RespectRobotsTxt)
	field(tw, "Pages", w.TotalPages)
	field(tw, "Last scraped", fmtTime(w.LastScraped))
	return tw.Flush()
}

func runCreateWebsite(cmd *cobra.Command, _ []string) error {
	projectID, err := parseID(websiteProject, "project")
	if err != nil {
		return err
	}
	url := strings.TrimSpace(websiteURL)
	if url == "" {
		return fmt.Errorf("url is required")
	}

	req := &types.CreateWebsiteRequest{
		ProjectID:   projectID,
		URL:         url,
		Name:        websiteName,
		Description: websiteDescription,
	}
	flags := cmd.Flags()
	if flags.Changed("depth") {
		req.CrawlDepth = &websiteDepth
	}
	if flags.Changed("delay") {
		req.RateLimitDelay = &websiteDelay
	}
	if flags.Changed("follow-external") {
		req.FollowExternalLinks = &websiteExternal
	}
	if flags.Changed("respect-robots") {
		req.RespectRobotsTxt = &websiteRobots
	}

	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Websites().Create(cmd.Context(), req)
	if err != nil {
		return apiError(err, "Failed to create website")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", orDash(resp.Message), resp.Website.URL, resp.Website.ID)
	return nil
}

func runUpdateWebsite(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "website")
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	req := &types.UpdateWebsiteRequest{}
	if flags.Changed("name") {
		req.Name = &websiteName
	}
	if flags.Changed("description") {
		req.Description = &websiteDescription
	}
	if flags.Changed("depth") {
		req.CrawlDepth = &websiteDepth
	}
	if flags.Changed("delay") {
		req.RateLimitDelay = &websiteDelay
	}
	if flags.Changed("follow-external") {
		req.FollowExternalLinks = &websiteExternal
	}
	if flags.Changed("respect-robots") {
		req.RespectRobotsTxt = &websiteRobots
	}
	if flags.Changed("status") {
		req.Status = &websiteStatus
	}

	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Websites().Update(cmd.Context(), id, req)
	if err != nil {
		return apiError(err, "Failed to update website")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Website updated.")
	return nil
}

func runDeleteWebsite(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "website")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	if !confirmDelete(cmd, "website "+id.String()+" and its scraped pages") {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	resp, err := a.client.Websites().Delete(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to delete website")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Website deleted.")
	return nil
}
