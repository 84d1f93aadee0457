package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/logger"
	"github.com/jonathan/blitz/internal/session"
	"github.com/spf13/cobra"
)

// app is the client-side wiring shared by every API command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage session.Storage
	session *session.Store
	client  *client.Client
}

// newApp loads configuration, restores the saved session and verifies it with the server.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiURLFlag != "" {
		cfg.APIURL = strings.TrimRight(apiURLFlag, "/")
	}
	log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel, "text")

	storage, err := session.NewFileStorage(cfg.SessionPath())
	if err != nil {
		return nil, err
	}
	store := session.New(storage, log)

	errOut := cmd.ErrOrStderr()
	c := client.New(client.Options{
		BaseURL: cfg.APIURL,
		Timeout: time.Duration(cfg.APITimeout) * time.Second,
		Tokens:  store,
		Session: store,
		OnUnauthorized: func() {
			fmt.Fprintln(errOut, "Session expired or invalid. Run `blitz login` to sign in again.")
		},
		OnServerError: func(msg string) {
			fmt.Fprintln(errOut, msg)
		},
		Logger: log,
	})
	store.SetAuthAPI(c.Auth())

	return &app{cfg: cfg, logger: log, storage: storage, session: store, client: c}, nil
}

// authedApp is newApp for commands that need a signed-in user.
func authedApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	if a.session.Current() == nil {
		return nil, fmt.Errorf("not logged in; run `blitz login` first")
	}
	a.session.Bootstrap(cmd.Context())
	if !a.session.IsAuthenticated() {
		return nil, fmt.Errorf("session is no longer valid; run `blitz login` again")
	}
	return a, nil
}

// adminApp additionally requires the admin role.
func adminApp(cmd *cobra.Command) (*app, error) {
	a, err := authedApp(cmd)
	if err != nil {
		return nil, err
	}
	if !a.session.IsAdmin() {
		return nil, fmt.Errorf("admin access required")
	}
	return a, nil
}

// apiError turns a client error into the message shown to the user.
func apiError(err error, fallback string) error {
	return errors.New(client.Message(err, fallback))
}

func parseID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

// optionalID parses a flag value that may be empty.
func optionalID(value, what string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := parseID(value, what)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// confirm asks a yes/no question on in. Anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// confirmDelete guards every delete command.
func confirmDelete(cmd *cobra.Command, what string) bool {
	if yesFlag {
		return true
	}
	return confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s? This cannot be undone.", what))
}

// mustRequire marks a flag required, panicking on a misspelled name.
func mustRequire(cmd *cobra.Command, name string) {
	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}
