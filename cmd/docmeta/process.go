package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/docmeta/internal/observability"
)

var (
	processLocation string
	processTemplate string
	processWorkers  int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract metadata from every document at a location",
	Long: `Lists the PDF documents at --location (a web page, a Graph drive folder, a
gs:// bucket prefix, a local directory or a single file), extracts the fields of
--template from each one with a bounded worker pool, stores the results and
regenerates the template's spreadsheet.`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processLocation, "location", "l", "", "Document location (URL, gs://bucket/prefix or local path)")
	processCmd.Flags().StringVarP(&processTemplate, "template", "t", "", "Template ID")
	processCmd.Flags().IntVarP(&processWorkers, "workers", "w", 0, "Concurrent documents (defaults to WORKERS or 4)")
	_ = processCmd.MarkFlagRequired("location")
	_ = processCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if processWorkers < 0 {
		return fmt.Errorf("--workers must be positive, got %d", processWorkers)
	}
	if processWorkers > 0 {
		cfg.Workers = processWorkers
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := a.processor.Process(cmd.Context(), processLocation, processTemplate)
	printer := observability.NewPrinter(cmd.OutOrStdout())
	if report != nil {
		printer.PrintBatchReport(report)
		printer.PrintTokenStats(a.processor.Tracker().Stats())
	}
	if err != nil {
		return err
	}
	if report.Succeeded == 0 {
		return fmt.Errorf("no documents were processed successfully")
	}
	return nil
}
