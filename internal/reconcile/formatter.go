/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/reconform/internal/assets"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OutputFormat selects how a run report is rendered.
type OutputFormat string

const (
	FormatConcise  OutputFormat = "concise"
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatHTML     OutputFormat = "html"
)

// ParseOutputFormat validates a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatConcise, FormatMarkdown, FormatJSON, FormatHTML:
		return OutputFormat(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (use concise, markdown, json, or html)", s)
	}
}

// Formatter renders run reports for human or machine consumption.
type Formatter struct {
	format OutputFormat
}

func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format}
}

func (f *Formatter) FormatReport(report *RunReport) (string, error) {
	switch f.format {
	case FormatMarkdown:
		return f.formatMarkdown(report), nil
	case FormatJSON:
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal report: %w", err)
		}
		return string(out) + "\n", nil
	case FormatHTML:
		return f.formatHTML(report)
	default:
		return f.formatConcise(report), nil
	}
}

func stateGlyph(s State) string {
	switch s {
	case StateValid:
		return "✅"
	case StateReconciled:
		return "🔧"
	case StateInvalid:
		return "⚠️"
	case StateFailed:
		return "❌"
	case StateSkipped:
		return "⏭️"
	default:
		return "•"
	}
}

func (f *Formatter) formatConcise(report *RunReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reconciliation: %d artifacts in %s\n",
		report.Summary.Total, report.Metadata.ExecutionTime)
	for _, res := range report.Results {
		fmt.Fprintf(&sb, "%s %s (%s): %s", stateGlyph(res.State), res.Artifact, res.Path, res.State)
		if res.BackupPath != "" {
			fmt.Fprintf(&sb, " [backup %s]", res.BackupPath)
		}
		sb.WriteString("\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&sb, "    %s\n", e)
		}
	}
	fmt.Fprintf(&sb, "Summary: %d valid, %d repaired, %d invalid, %d failed (%d fatal), %d skipped\n",
		report.Summary.Valid, report.Summary.Reconciled, report.Summary.Invalid,
		report.Summary.Failed, report.Summary.FatalFailures, report.Summary.Skipped)
	return sb.String()
}

var titleCaser = cases.Title(language.English)

func (f *Formatter) formatMarkdown(report *RunReport) string {
	var sb strings.Builder
	sb.WriteString("# Reconciliation Report\n\n")
	fmt.Fprintf(&sb, "**Generated:** %s\n", report.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "**Tool:** %s %s\n", report.Metadata.Tool, report.Metadata.Version)
	fmt.Fprintf(&sb, "**Target:** %s\n", report.Metadata.Target)
	if report.Metadata.GitBranch != "" {
		dirty := ""
		if report.Metadata.GitDirty {
			dirty = " (dirty)"
		}
		fmt.Fprintf(&sb, "**Git:** %s@%s%s\n", report.Metadata.GitBranch, report.Metadata.GitSHA, dirty)
	}
	fmt.Fprintf(&sb, "**Execution Time:** %s\n\n", report.Metadata.ExecutionTime)

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- **Valid:** %d\n", report.Summary.Valid)
	fmt.Fprintf(&sb, "- **Repaired:** %d\n", report.Summary.Reconciled)
	fmt.Fprintf(&sb, "- **Invalid:** %d\n", report.Summary.Invalid)
	fmt.Fprintf(&sb, "- **Failed:** %d (%d fatal)\n", report.Summary.Failed, report.Summary.FatalFailures)
	fmt.Fprintf(&sb, "- **Skipped:** %d\n\n", report.Summary.Skipped)

	sb.WriteString("## Artifacts\n\n")
	for _, res := range report.Results {
		fmt.Fprintf(&sb, "### %s %s\n\n", stateGlyph(res.State), res.Artifact)
		fmt.Fprintf(&sb, "- **Path:** `%s`\n", res.Path)
		fmt.Fprintf(&sb, "- **State:** %s\n", titleCaser.String(string(res.State)))
		fmt.Fprintf(&sb, "- **Severity:** %s\n", titleCaser.String(string(res.Severity)))
		if res.BackupPath != "" {
			fmt.Fprintf(&sb, "- **Backup:** `%s`\n", res.BackupPath)
		}
		fmt.Fprintf(&sb, "- **Duration:** %s\n", res.Duration)
		if len(res.Errors) > 0 {
			sb.WriteString("- **Issues:**\n")
			for _, e := range res.Errors {
				fmt.Fprintf(&sb, "  - %s\n", e)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var registerHelpers sync.Once

func (f *Formatter) formatHTML(report *RunReport) (string, error) {
	registerHelpers.Do(func() {
		raymond.RegisterHelper("gt", func(a, b interface{}) bool {
			return toFloat(a) > toFloat(b)
		})
	})

	tpl, ok := assets.GetTemplate("report.html")
	if !ok {
		return "", fmt.Errorf("report template unavailable")
	}

	// Round-trip through JSON so the template addresses the same keys the
	// machine-readable report exposes.
	raw, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("failed to prepare report data: %w", err)
	}

	out, err := raymond.Render(string(tpl), data)
	if err != nil {
		return "", fmt.Errorf("failed to render HTML report: %w", err)
	}
	return out, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		var f float64
		_, _ = fmt.Sscanf(n, "%f", &f)
		return f
	default:
		return 0
	}
}
