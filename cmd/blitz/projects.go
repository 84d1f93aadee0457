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
	projectPage     int
	projectPerPage  int
	projectSearch   string
	projectStatus   string
	projectIndustry string

	projectName        string
	projectDescription string
	projectPriority    string
	projectTags        []string

	collaboratorEmail string
	collaboratorRole  string
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project"},
	Short:   "List and manage projects",
	RunE:    runListProjects,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project with its statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowProject,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	RunE:  runCreateProject,
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project-id>",
	Short: "Update a project's fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdateProject,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteProject,
}

var projectCollaboratorsCmd = &cobra.Command{
	Use:   "collaborators <project-id>",
	Short: "List or add project collaborators",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollaborators,
}

func init() {
	f := projectsCmd.Flags()
	f.IntVar(&projectPage, "page", 1, "Page number")
	f.IntVar(&projectPerPage, "per-page", types.DefaultPerPage, "Projects per page")
	f.StringVarP(&projectSearch, "search", "s", "", "Search name, description and tags")
	f.StringVar(&projectStatus, "status", "", "Filter by status (active, paused, archived)")
	f.StringVar(&projectIndustry, "industry", "", "Filter by industry")

	for _, c := range []*cobra.Command{projectCreateCmd, projectUpdateCmd} {
		c.Flags().StringVarP(&projectName, "name", "n", "", "Project name")
		c.Flags().StringVarP(&projectDescription, "description", "d", "", "Description")
		c.Flags().StringVar(&projectIndustry, "industry", "", "Industry")
		c.Flags().StringVar(&projectPriority, "priority", "", "Priority (low, medium, high)")
		c.Flags().StringSliceVar(&projectTags, "tags", nil, "Comma-separated tags")
	}
	mustRequire(projectCreateCmd, "name")
	projectUpdateCmd.Flags().StringVar(&projectStatus, "status", "", "Status (active, paused, archived)")

	projectCollaboratorsCmd.Flags().StringVar(&collaboratorEmail, "add", "", "Email of a user to add")
	projectCollaboratorsCmd.Flags().StringVar(&collaboratorRole, "role", "viewer", "Role for --add (viewer, collaborator)")

	projectsCmd.AddCommand(projectShowCmd, projectCreateCmd, projectUpdateCmd, projectDeleteCmd, projectCollaboratorsCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runListProjects(cmd *cobra.Command, _ []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Projects().List(cmd.Context(), client.ProjectListParams{
		Page:     projectPage,
		PerPage:  projectPerPage,
		Search:   projectSearch,
		Status:   projectStatus,
		Industry: projectIndustry,
	})
	if err != nil {
		return apiError(err, "Failed to load projects")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "ID", "NAME", "STATUS", "PRIORITY", "WEBSITES", "PAGES", "SNIPPETS", "UPDATED")
	for _, p := range resp.Projects {
		row(tw, p.ID, truncate(p.Name, 40), p.Status, p.Priority, p.WebsiteCount, p.PageCount, p.SnippetCount, fmtTime(&p.UpdatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runShowProject(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	resp, err := a.client.Projects().Get(ctx, id)
	if err != nil {
		return apiError(err, "Failed to load project")
	}
	stats, err := a.client.Projects().Statistics(ctx, id)
	if err != nil {
		return apiError(err, "Failed to load project statistics")
	}
	websites, err := a.client.Projects().Websites(ctx, id, 1, types.MaxPerPage)
	if err != nil {
		return apiError(err, "Failed to load websites")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"project":    resp.Project,
			"statistics": stats.Statistics,
			"websites":   websites.Websites,
		})
	}

	out := cmd.OutOrStdout()
	p := resp.Project
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	field(tw, "ID", p.ID)
	field(tw, "Name", p.Name)
	field(tw, "Description", orDash(p.Description))
	field(tw, "Industry", orDash(p.Industry))
	field(tw, "Status", p.Status)
	field(tw, "Priority", p.Priority)
	field(tw, "Tags", orDash(strings.Join(p.Tags, ", ")))
	if s := stats.Statistics; s != nil {
		field(tw, "Websites", fmt.Sprintf("%d (%d active, %d inactive)", s.Websites.Total, s.Websites.Active, s.Websites.Inactive))
		field(tw, "Pages", fmt.Sprintf("%d (avg load %.2fs)", s.Pages.Total, s.Pages.AvgLoadTime))
		field(tw, "Snippets", fmt.Sprintf("%d (%d pending, %d approved, %d rejected)",
			s.Snippets.Total, s.Snippets.Pending, s.Snippets.Approved, s.Snippets.Rejected))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(websites.Websites) > 0 {
		fmt.Fprintln(out)
		wt := newTable(out, "WEBSITE ID", "NAME", "URL", "STATUS", "PAGES", "LAST SCRAPED")
		for _, w := range websites.Websites {
			row(wt, w.ID, truncate(w.Name, 30), w.URL, w.Status, w.TotalPages, fmtTime(w.LastScraped))
		}
		if err := wt.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func runCreateProject(cmd *cobra.Command, _ []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(projectName)
	if name == "" {
		return fmt.Errorf("project name is required")
	}
	resp, err := a.client.Projects().Create(cmd.Context(), &types.CreateProjectRequest{
		Name:        name,
		Description: projectDescription,
		Industry:    projectIndustry,
		Priority:    projectPriority,
		Tags:        projectTags,
	})
	if err != nil {
		return apiError(err, "Failed to create project")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", orDash(resp.Message), resp.Project.Name, resp.Project.ID)
	return nil
}

func runUpdateProject(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	req := &types.UpdateProjectRequest{}
	if flags.Changed("name") {
		if strings.TrimSpace(projectName) == "" {
			return fmt.Errorf("project name cannot be empty")
		}
		req.Name = &projectName
	}
	if flags.Changed("description") {
		req.Description = &projectDescription
	}
	if flags.Changed("industry") {
		req.Industry = &projectIndustry
	}
	if flags.Changed("priority") {
		req.Priority = &projectPriority
	}
	if flags.Changed("status") {
		req.Status = &projectStatus
	}
	if flags.Changed("tags") {
		req.Tags = projectTags
	}

	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Projects().Update(cmd.Context(), id, req)
	if err != nil {
		return apiError(err, "Failed to update project")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Project updated.")
	return nil
}

func runDeleteProject(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	if !confirmDelete(cmd, "project "+id.String()+" with all its websites, pages and snippets") {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	resp, err := a.client.Projects().Delete(cmd.Context(), id)
	if err != nil {
		return apiError(err, "Failed to delete project")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Project deleted.")
	return nil
}

func runCollaborators(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}

	var resp *types.CollaboratorListResponse
	if collaboratorEmail != "" {
		resp, err = a.client.Projects().AddCollaborator(cmd.Context(), id, &types.AddCollaboratorRequest{
			Email: strings.TrimSpace(collaboratorEmail),
			Role:  collaboratorRole,
		})
	} else {
		resp, err = a.client.Projects().Collaborators(cmd.Context(), id)
	}
	if err != nil {
		return apiError(err, "Failed to load collaborators")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	tw := newTable(cmd.OutOrStdout(), "USER ID", "NAME", "EMAIL", "ROLE", "ADDED")
	for _, c := range resp.Collaborators {
		row(tw, c.User.ID, orDash(c.User.Name()), c.User.Email, c.Role, fmtTime(&c.AddedAt))
	}
	return tw.Flush()
}
