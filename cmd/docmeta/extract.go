package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/docmeta/internal/observability"
	"github.com/jonathan/docmeta/internal/types"
)

var extractTemplate string

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Extract metadata from one local PDF",
	Long: `Runs a single local PDF through the pipeline, prints the extracted fields,
stores the result and regenerates the template's spreadsheet.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractTemplate, "template", "t", "", "Template ID")
	_ = extractCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", args[0], err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, use the process command", args[0])
	}

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	t, err := a.processor.Template(extractTemplate)
	if err != nil {
		return err
	}
	d := types.DocumentDescriptor{Name: info.Name(), Location: path, Kind: types.SourceLocal, Size: info.Size()}
	result, err := a.processor.ProcessDocument(cmd.Context(), d, t)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintResult(result)

	if err := a.processor.Save(cmd.Context(), result); err != nil {
		return err
	}
	excelPath, err := a.processor.Regenerate(cmd.Context(), t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Workbook: %s\n", excelPath)
	return nil
}
