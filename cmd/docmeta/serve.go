package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/docmeta/internal/config"
	"github.com/jonathan/docmeta/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes template management, document processing,
spreadsheet download and token statistics endpoints.

Bearer authentication is enabled when JWT_SECRET is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	jwtCfg, err := config.LoadJWTConfig()
	if err != nil {
		return fmt.Errorf("invalid JWT configuration: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := server.New(server.Config{
		Port:    cfg.Port,
		TempDir: cfg.TempDir,
		JWT:     jwtCfg,
		Logger:  a.logger,
	}, server.Deps{
		Templates: a.templates,
		Processor: a.processor,
		Results:   a.results,
		Sheets:    a.sheets,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if jwtCfg == nil {
		a.logger.Warn().Msg("JWT_SECRET not set, API is unauthenticated")
	}

	return srv.Start(cmd.Context())
}
