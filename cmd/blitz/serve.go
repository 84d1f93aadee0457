package main

import (
	"fmt"
	"os"

	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/logger"
	"github.com/jonathan/blitz/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server exposing the Blitz REST API, backed by PostgreSQL.`,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the schema before starting")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	logger.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if serveMigrate {
		if err := migrate(cmd, cfg); err != nil {
			return err
		}
	}

	srv, err := server.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()
	if err := migrate(cmd, cfg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
	return nil
}

func migrate(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	database, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
