package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jonathan/blitz/internal/types"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string

	registerEmail     string
	registerPassword  string
	registerFirstName string
	registerLastName  string

	profileFirstName string
	profileLastName  string
	profileEmail     string

	currentPassword string
	newPassword     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved session",
	RunE:  runLogout,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account (does not sign in)",
	RunE:  runRegister,
}

var profileCmd = &cobra.Command{
	Use:     "profile",
	Aliases: []string{"whoami"},
	Short:   "Show or update the signed-in user",
	RunE:    runProfile,
}

var passwordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the signed-in user's password",
	RunE:  runChangePassword,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (required)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when omitted)")
	mustRequire(loginCmd, "email")

	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Account email (required)")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password, at least 8 characters (read from stdin when omitted)")
	registerCmd.Flags().StringVar(&registerFirstName, "first-name", "", "First name (required)")
	registerCmd.Flags().StringVar(&registerLastName, "last-name", "", "Last name (required)")
	mustRequire(registerCmd, "email")
	mustRequire(registerCmd, "first-name")
	mustRequire(registerCmd, "last-name")

	profileCmd.Flags().StringVar(&profileFirstName, "first-name", "", "New first name")
	profileCmd.Flags().StringVar(&profileLastName, "last-name", "", "New last name")
	profileCmd.Flags().StringVar(&profileEmail, "email", "", "New email")

	passwordCmd.Flags().StringVar(&currentPassword, "current", "", "Current password (required)")
	passwordCmd.Flags().StringVar(&newPassword, "new", "", "New password (required)")
	mustRequire(passwordCmd, "current")
	mustRequire(passwordCmd, "new")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, profileCmd, passwordCmd)
}

// readSecret takes a flag value or the first line of stdin.
func readSecret(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	password, err := readSecret(cmd, loginPassword, "Password: ")
	if err != nil {
		return err
	}

	res := a.session.Login(cmd.Context(), loginEmail, password)
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", res.User.Email, res.User.Role)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	a.session.Logout(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	password, err := readSecret(cmd, registerPassword, "Password: ")
	if err != nil {
		return err
	}

	req := &types.RegisterRequest{
		Email:     strings.TrimSpace(registerEmail),
		Password:  password,
		FirstName: strings.TrimSpace(registerFirstName),
		LastName:  strings.TrimSpace(registerLastName),
	}
	if len(req.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	res := a.session.Register(cmd.Context(), req)
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Account created. Run `blitz login` to sign in.")
	return nil
}

func runProfile(cmd *cobra.Command, _ []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}

	user := a.session.User()
	if cmd.Flags().Changed("first-name") || cmd.Flags().Changed("last-name") || cmd.Flags().Changed("email") {
		req := &types.UpdateProfileRequest{}
		if cmd.Flags().Changed("first-name") {
			req.FirstName = &profileFirstName
		}
		if cmd.Flags().Changed("last-name") {
			req.LastName = &profileLastName
		}
		if cmd.Flags().Changed("email") {
			req.Email = &profileEmail
		}
		resp, err := a.client.Auth().UpdateProfile(cmd.Context(), req)
		if err != nil {
			return apiError(err, "Failed to update profile")
		}
		user = resp.User
		// Pick up the server copy for the saved session.
		a.session.Bootstrap(cmd.Context())
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), user)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	field(tw, "ID", user.ID)
	field(tw, "Name", user.Name())
	field(tw, "Email", user.Email)
	field(tw, "Role", user.Role)
	field(tw, "Last login", fmtTime(user.LastLogin))
	return tw.Flush()
}

func runChangePassword(cmd *cobra.Command, _ []string) error {
	a, err := authedApp(cmd)
	if err != nil {
		return err
	}
	resp, err := a.client.Auth().ChangePassword(cmd.Context(), &types.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
	if err != nil {
		return apiError(err, "Failed to change password")
	}
	printMessage(cmd.OutOrStdout(), resp.Envelope, "Password changed.")
	return nil
}
