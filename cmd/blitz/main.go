// Package main provides the Blitz command line: the API server and a terminal client for it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiURLFlag string
	yesFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "blitz",
	Short: "Blitz web scraping project manager",
	Long:  "Blitz manages scraping projects: websites to crawl, scraping jobs, extracted content, exports and administration.",

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Backend URL (overrides BLITZ_API_URL)")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation prompts")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
