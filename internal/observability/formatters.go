package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/docmeta/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer renders human-readable summaries for the CLI.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintTemplates lists templates with their field counts.
func (p *Printer) PrintTemplates(templates []types.Template) {
	if len(templates) == 0 {
		p.printBox("TEMPLATES", "No templates found")
		return
	}

	var sb strings.Builder
	for i, t := range templates {
		sb.WriteString(fmt.Sprintf("%s  %s (%d fields)", t.ID, t.Name, len(t.Fields)))
		if i < len(templates)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox(fmt.Sprintf("TEMPLATES (%d)", len(templates)), sb.String())
}

// PrintBatchReport outputs totals and one line per document.
func (p *Printer) PrintBatchReport(report *types.BatchReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Template:  %s\n", report.TemplateID))
	sb.WriteString(fmt.Sprintf("Location:  %s\n", report.Location))
	sb.WriteString(fmt.Sprintf("Documents: %d total, %d ok, %d failed\n", report.Total, report.Succeeded, report.Failed))
	sb.WriteString(fmt.Sprintf("Duration:  %dms\n", report.DurationMS))
	if report.ExcelPath != "" {
		sb.WriteString(fmt.Sprintf("Workbook:  %s\n", report.ExcelPath))
	}

	if len(report.Results) > 0 {
		sb.WriteString("\n")
		count := min(len(report.Results), maxItemsToShow)
		for i := 0; i < count; i++ {
			r := report.Results[i]
			if r.Failed() {
				sb.WriteString(fmt.Sprintf("✗ %s: %s\n", r.FileName, r.Error))
				continue
			}
			sb.WriteString(fmt.Sprintf("✓ %s (%d tokens, %d/%d fields)\n",
				r.FileName, r.TotalTokens, foundCount(r.Fields), len(r.Fields)))
		}
		if len(report.Results) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(report.Results)-maxItemsToShow))
		}
	}

	p.printBox("BATCH REPORT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResult outputs every field of a single extraction in name order.
func (p *Printer) PrintResult(r *types.ExtractionResult) {
	if r == nil {
		return
	}
	if r.Failed() {
		p.printBox("EXTRACTION FAILED: "+r.FileName, r.Error)
		return
	}

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		sb.WriteString(fmt.Sprintf("%s: %s", name, r.Fields[name]))
		if i < len(names)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox("EXTRACTED: "+r.FileName, sb.String())
}

// PrintTokenStats outputs a tracker snapshot.
func (p *Printer) PrintTokenStats(s types.TokenStats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total tokens:        %d\n", s.TotalTokens))
	sb.WriteString(fmt.Sprintf("This minute:         %d / %d\n", s.TokensThisMinute, s.TokensPerMinuteLimit))
	sb.WriteString(fmt.Sprintf("Documents:           %d\n", s.DocumentsProcessed))
	sb.WriteString(fmt.Sprintf("Over %d tokens:   %d\n", s.DocumentTokenThreshold, s.DocumentsOverThreshold))
	sb.WriteString(fmt.Sprintf("Limit exceeded:      %d\n", s.LimitExceededCount))
	sb.WriteString(fmt.Sprintf("Avg tokens/document: %.1f", s.AverageTokensPerDoc))
	p.printBox("TOKEN USAGE", sb.String())
}

func foundCount(fields map[string]string) int {
	n := 0
	for _, v := range fields {
		if v != types.NotFound {
			n++
		}
	}
	return n
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
