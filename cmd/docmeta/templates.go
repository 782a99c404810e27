package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/docmeta/internal/observability"
	"github.com/jonathan/docmeta/internal/templates"
	"github.com/jonathan/docmeta/internal/types"
)

var importTemplate string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage extraction templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesImportCmd = &cobra.Command{
	Use:   "import-fields <file>",
	Short: "Append fields from a .csv or .xlsx file to a template",
	Long: `Reads a field list with "name" and "description" columns and appends every
field the template does not already declare.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesImport,
}

func init() {
	templatesImportCmd.Flags().StringVarP(&importTemplate, "template", "t", "", "Template ID")
	_ = templatesImportCmd.MarkFlagRequired("template")

	templatesCmd.AddCommand(templatesListCmd, templatesImportCmd)
	rootCmd.AddCommand(templatesCmd)
}

func runTemplatesList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	a, err := newTemplateApp(cfg)
	if err != nil {
		return err
	}

	list, err := a.templates.List()
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintTemplates(list)
	return nil
}

func runTemplatesImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	a, err := newTemplateApp(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	fields, err := templates.ParseFieldsFile(args[0], f)
	if err != nil {
		return err
	}

	t, err := a.templates.Get(importTemplate)
	if err != nil {
		return err
	}
	merged, added := mergeFields(t.Fields, fields)
	if added == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No new fields for template %s\n", t.ID)
		return nil
	}
	t.Fields = merged

	updated, err := a.templates.Update(t.ID, *t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d fields to template %s (%d total)\n", added, updated.ID, len(updated.Fields))
	return nil
}

// mergeFields appends the fields whose names are not yet declared and
// reports how many were added.
func mergeFields(existing, incoming []types.TemplateField) ([]types.TemplateField, int) {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]types.TemplateField, 0, len(existing)+len(incoming))
	for _, f := range existing {
		seen[f.Name] = true
		out = append(out, f)
	}
	added := 0
	for _, f := range incoming {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		out = append(out, f)
		added++
	}
	return out, added
}
