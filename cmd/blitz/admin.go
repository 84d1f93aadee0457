package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/console"
	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	userSearch  string
	userPage    int
	userPerPage int
	userRole    string
	userActive  bool

	auditUser         string
	auditAction       string
	auditResourceType string
	auditPage         int
	auditPerPage      int

	sqlExec    string
	sqlPage    int
	sqlPerPage int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administration (admin role required)",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users",
	RunE:  runListUsers,
}

var adminUpdateUserCmd = &cobra.Command{
	Use:   "update-user <user-id>",
	Short: "Change a user's role or active flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdateUser,
}

var adminStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system counts and recent activity",
	RunE:  runSystemStatus,
}

var adminSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the server's runtime settings",
	RunE:  runSettings,
}

var adminAuditCmd = &cobra.Command{
	Use:   "audit-logs",
	Short: "List audit log entries",
	RunE:  runAuditLogs,
}

var adminSQLCmd = &cobra.Command{
	Use:   "sql",
	Short: "Run SQL against the database",
	Long: `Opens an interactive SQL console. Statements end with a semicolon.
Statements containing a data-modifying keyword ask for confirmation first.
Type \? for console commands.`,
	RunE: runSQL,
}

func init() {
	f := adminUsersCmd.Flags()
	f.StringVarP(&userSearch, "search", "s", "", "Search email and name")
	f.IntVar(&userPage, "page", 1, "Page number")
	f.IntVar(&userPerPage, "per-page", types.DefaultPerPage, "Users per page")

	adminUpdateUserCmd.Flags().StringVar(&userRole, "role", "", "New role (admin, user)")
	adminUpdateUserCmd.Flags().BoolVar(&userActive, "active", true, "Whether the account may sign in")

	a := adminAuditCmd.Flags()
	a.StringVar(&auditUser, "user", "", "Only entries by this user id")
	a.StringVar(&auditAction, "action", "", "Only this action")
	a.StringVar(&auditResourceType, "resource-type", "", "Only this resource type")
	a.IntVar(&auditPage, "page", 1, "Page number")
	a.IntVar(&auditPerPage, "per-page", types.DefaultPerPage, "Entries per page")

	adminSQLCmd.Flags().StringVarP(&sqlExec, "execute", "e", "", "Run one statement and exit")
	adminSQLCmd.Flags().IntVar(&sqlPage, "page", 1, "Result page for --execute")
	adminSQLCmd.Flags().IntVar(&sqlPerPage, "per-page", console.DefaultPerPage, "Rows per page")

	adminCmd.AddCommand(adminUsersCmd, adminUpdateUserCmd, adminStatusCmd, adminSettingsCmd, adminAuditCmd, adminSQLCmd)
	rootCmd.AddCommand(adminCmd)
}

func runListUsers(cmd *cobra.Command, _ []string) error {
	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Admin().Users(cmd.Context(), userSearch, userPage, userPerPage)
	if err != nil {
		return apiError(err, "Failed to load users")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "ID", "EMAIL", "NAME", "ROLE", "ACTIVE", "LAST LOGIN", "CREATED")
	for _, u := range resp.Users {
		row(tw, u.ID, u.Email, orDash(u.Name()), u.Role, u.IsActive, fmtTime(u.LastLogin), fmtTime(&u.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runUpdateUser(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "user")
	if err != nil {
		return err
	}
	req := &types.AdminUpdateUserRequest{}
	if cmd.Flags().Changed("role") {
		req.Role = &userRole
	}
	if cmd.Flags().Changed("active") {
		req.IsActive = &userActive
	}
	if req.Role == nil && req.IsActive == nil {
		return fmt.Errorf("nothing to update; pass --role or --active")
	}

	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Admin().UpdateUser(cmd.Context(), id, req)
	if err != nil {
		return apiError(err, "Failed to update user")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "User updated.")
	return nil
}

func runSystemStatus(cmd *cobra.Command, _ []string) error {
	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Admin().SystemStatus(cmd.Context())
	if err != nil {
		return apiError(err, "Failed to load system status")
	}
	if jsonOutput || resp.Status == nil {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	s := resp.Status
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(s.Counts) {
		field(tw, k, s.Counts[k])
	}
	field(tw, "active jobs", s.ActiveJobs)
	for _, k := range sortedKeys(s.RecentActivity) {
		field(tw, k+" (24h)", s.RecentActivity[k])
	}
	field(tw, "checked", fmtTime(&s.CheckedAt))
	return tw.Flush()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runSettings(cmd *cobra.Command, _ []string) error {
	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Admin().Settings(cmd.Context())
	if err != nil {
		return apiError(err, "Failed to load settings")
	}
	if jsonOutput || resp.Settings == nil {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	s := resp.Settings
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	field(tw, "App", s.AppName+" "+s.AppVersion)
	field(tw, "Database", s.DatabaseName)
	field(tw, "Redis", s.RedisEnabled)
	field(tw, "Rate limit", s.RateLimit)
	if s.RateLimitPolicy != "" {
		field(tw, "Rate limit policy", s.RateLimitPolicy)
	}
	field(tw, "CORS origins", orDash(s.CORSOrigins))
	return tw.Flush()
}

func runAuditLogs(cmd *cobra.Command, _ []string) error {
	userID, err := optionalID(auditUser, "user")
	if err != nil {
		return err
	}
	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Admin().AuditLogs(cmd.Context(), client.AuditLogParams{
		UserID:       userID,
		Action:       auditAction,
		ResourceType: auditResourceType,
		Page:         auditPage,
		PerPage:      auditPerPage,
	})
	if err != nil {
		return apiError(err, "Failed to load audit logs")
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, "TIME", "USER", "ACTION", "RESOURCE", "IP", "DETAILS")
	for _, l := range resp.Logs {
		user := "-"
		if l.UserID != nil {
			user = l.UserID.String()
		}
		resource := strings.TrimSpace(l.ResourceType + " " + l.ResourceID)
		row(tw, fmtTime(&l.CreatedAt), user, l.Action, orDash(resource), orDash(l.IPAddress), truncate(string(l.Details), 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPagination(out, resp.Pagination)
	return nil
}

func runSQL(cmd *cobra.Command, _ []string) error {
	a, err := adminApp(cmd)
	if err != nil {
		return err
	}
	c := console.New(console.Options{
		API:     a.client.Admin(),
		Storage: a.storage,
		PerPage: sqlPerPage,
		Logger:  a.logger,
	})

	if !cmd.Flags().Changed("execute") {
		return runConsole(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return executeOnce(cmd, c, sqlExec, sqlPage)
}
