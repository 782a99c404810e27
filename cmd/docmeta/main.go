// Package main provides the docmeta CLI and HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docmeta",
	Short: "Document metadata extraction service",
	Long: `docmeta downloads PDF documents from web pages, Microsoft Graph drive folders,
GCS buckets or local paths, asks a generative model for the fields a template
declares, and records the results in a database and one spreadsheet per template.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (overlays environment values)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
