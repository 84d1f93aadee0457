package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/poller"
	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	runURL            string
	runBrowser        bool
	runSinglePage     bool
	runExtractContent bool
	runMaxPages       int
	runWatch          bool
	jobsProject       string
	jobsStatus        string
	jobsPage          int
	jobsPerPage       int
	watchInterval     time.Duration
	watchUntilIdle    bool
)

var scrapingCmd = &cobra.Command{
	Use:   "scraping",
	Short: "Start, stop and monitor scraping jobs",
}

var scrapeRunCmd = &cobra.Command{
	Use:   "run <website-id>",
	Short: "Start crawling a website",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

var scrapeStopCmd = &cobra.Command{
	Use:   "stop <website-id>",
	Short: "Stop a website's running crawl",
	Args:  cobra.ExactArgs(1),
	RunE:  runStopScrape,
}

var scrapeJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scraping jobs",
	RunE:  runListJobs,
}

var scrapeStatusCmd = &cobra.Command{
	Use:   "status [website-id]",
	Short: "Show active jobs, or the latest job of one website",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScrapeStatus,
}

var scrapeWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the job list until interrupted",
	RunE:  runWatchJobs,
}

func init() {
	f := scrapeRunCmd.Flags()
	f.StringVar(&runURL, "url", "", "Start URL (defaults to the website URL)")
	f.BoolVar(&runBrowser, "browser", false, "Render pages in headless Chrome")
	f.BoolVar(&runSinglePage, "single-page", false, "Fetch only the start URL")
	f.BoolVar(&runExtractContent, "extract", false, "Apply the project's extraction rules")
	f.IntVar(&runMaxPages, "max-pages", 0, "Page limit (server default when 0)")
	f.BoolVarP(&runWatch, "watch", "w", false, "Watch the job list after starting")

	for _, c := range []*cobra.Command{scrapeJobsCmd, scrapeWatchCmd} {
		c.Flags().StringVar(&jobsProject, "project", "", "Only jobs of this project")
		c.Flags().StringVar(&jobsStatus, "status", "", "Only jobs with this status")
	}
	scrapeJobsCmd.Flags().IntVar(&jobsPage, "page", 1, "Page number")
	scrapeJobsCmd.Flags().IntVar(&jobsPerPage, "per-page", types.DefaultPerPage, "Jobs per page")
	scrapeWatchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "Refresh interval")
	scrapeWatchCmd.Flags().BoolVar(&watchUntilIdle, "until-idle", false, "Exit once no job is pending or running")

	scrapingCmd.AddCommand(scrapeRunCmd, scrapeStopCmd, scrapeJobsCmd, scrapeStatusCmd, scrapeWatchCmd)
	rootCmd.AddCommand(scrapingCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	websiteID, err := parseID(args[0], "website")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}

	req := &types.RunScrapingRequest{
		WebsiteID:      websiteID,
		URL:            runURL,
		UseSelenium:    runBrowser,
		SinglePage:     runSinglePage,
		ExtractContent: runExtractContent,
		MaxPages:       runMaxPages,
	}
	if !runWatch {
		resp, err := a.client.Scraping().Run(cmd.Context(), req)
		if err != nil {
			return apiError(err, "Failed to start scraping")
		}
		printMessage(cmd.OutOrStdout(), resp.Envelope, "Scraping started.")
		if resp.Job != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s\n", resp.Job.ID)
		}
		return nil
	}

	p := newJobPoller(a, cmd.OutOrStdout(), client.JobListParams{}, poller.DefaultInterval)
	resp, err := p.StartJob(cmd.Context(), req)
	if err != nil {
		return apiError(err, "Failed to start scraping")
	}
	printMessage(cmd.ErrOrStderr(), resp.Envelope, "Scraping started.")
	return watch(cmd, p, true)
}

func runStopScrape(cmd *cobra.Command, args []string) error {
	websiteID, err := parseID(args[0], "website")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Scraping().Stop(cmd.Context(), websiteID)
	if err != nil {
		return apiError(err, "Failed to stop scraping")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Scraping stopped.")
	return nil
}

func jobParams() (client.JobListParams, error) {
	projectID, err := optionalID(jobsProject, "project")
	if err != nil {
		return client.JobListParams{}, err
	}
	return client.JobListParams{ProjectID: projectID, Status: jobsStatus}, nil
}

func runListJobs(cmd *cobra.Command, _ []string) error {
	params, err := jobParams()
	if err != nil {
		return err
	}
	params.Page, params.PerPage = jobsPage, jobsPerPage

	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Scraping().Jobs(cmd.Context(), params)
	if err != nil {
		return apiError(err, "Failed to load jobs")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	if err := printJobs(cmd.OutOrStdout(), resp.Jobs); err != nil {
		return err
	}
	printPagination(cmd.OutOrStdout(), resp.Pagination)
	return nil
}

func runScrapeStatus(cmd *cobra.Command, args []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		websiteID, err := parseID(args[0], "website")
		if err != nil {
			return err
		}
		resp, err := a.client.Scraping().WebsiteStatus(cmd.Context(), websiteID)
		if err != nil {
			return apiError(err, "Failed to load scraping status")
		}
		if jsonOutput {
			return printJSON(out, resp)
		}
		return printJobDetail(out, resp.Job)
	}

	resp, err := a.client.Scraping().Status(cmd.Context())
	if err != nil {
		return apiError(err, "Failed to load scraping status")
	}
	if jsonOutput {
		return printJSON(out, resp)
	}
	fmt.Fprintf(out, "%d active job(s)\n", resp.TotalActive)
	if resp.TotalActive == 0 {
		return nil
	}
	return printJobs(out, resp.ActiveJobs)
}

func runWatchJobs(cmd *cobra.Command, _ []string) error {
	params, err := jobParams()
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	return watch(cmd, newJobPoller(a, cmd.OutOrStdout(), params, watchInterval), watchUntilIdle)
}

// newJobPoller redraws the job table on every published snapshot.
func newJobPoller(a *app, out io.Writer, params client.JobListParams, interval time.Duration) *poller.Poller {
	return poller.New(poller.Options{
		API:      a.client.Scraping(),
		Interval: interval,
		Params:   params,
		Logger:   a.logger,
		OnUpdate: func(jobs []types.ScrapingJob) {
			fmt.Fprintf(out, "\n%s  %d job(s)\n", time.Now().Format("15:04:05"), len(jobs))
			if err := printJobs(out, jobs); err != nil {
				a.logger.Warn("failed to print jobs", "error", err)
			}
		},
	})
}

// watch runs p until interrupted or, with untilIdle, until no job is active.
func watch(cmd *cobra.Command, p *poller.Poller, untilIdle bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	if !untilIdle {
		<-ctx.Done()
		return nil
	}

	check := time.NewTicker(time.Second)
	defer check.Stop()
	seen := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-check.C:
			jobs := p.Jobs()
			if len(jobs) > 0 {
				seen = true
			}
			if seen && !anyActive(jobs) {
				return nil
			}
		}
	}
}

func anyActive(jobs []types.ScrapingJob) bool {
	for i := range jobs {
		if jobs[i].Active() {
			return true
		}
	}
	return false
}

func printJobs(w io.Writer, jobs []types.ScrapingJob) error {
	tw := newTable(w, "JOB ID", "WEBSITE", "STATUS", "PAGES", "PROGRESS", "STARTED", "ERROR")
	for _, j := range jobs {
		row(tw, j.ID, truncate(orDash(j.WebsiteName), 30), j.Status,
			fmt.Sprintf("%d/%d", j.PagesScraped, j.TotalPages),
			fmt.Sprintf("%.0f%%", j.ProgressPercentage),
			fmtTime(j.StartedAt), truncate(orDash(j.ErrorMessage), 40))
	}
	return tw.Flush()
}

func printJobDetail(w io.Writer, j *types.ScrapingJob) error {
	if j == nil {
		fmt.Fprintln(w, "No scraping jobs found for this website")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	field(tw, "Job", j.ID)
	field(tw, "Website", orDash(j.WebsiteName))
	field(tw, "URL", orDash(j.WebsiteURL))
	field(tw, "Status", j.Status)
	field(tw, "Pages", fmt.Sprintf("%d/%d (%.0f%%)", j.PagesScraped, j.TotalPages, j.ProgressPercentage))
	field(tw, "Started", fmtTime(j.StartedAt))
	field(tw, "Completed", fmtTime(j.CompletedAt))
	if j.ErrorMessage != "" {
		field(tw, "Error", j.ErrorMessage)
	}
	return tw.Flush()
}
