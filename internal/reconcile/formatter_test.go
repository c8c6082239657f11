/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleReport() *RunReport {
	results := []Result{
		{Artifact: "ios-info-plist", Path: "ios/Runner/Info.plist", Format: FormatPlist,
			State: StateValid, Severity: SeverityFatal, Duration: HumanDuration(3 * time.Millisecond)},
		{Artifact: "launcher-icon", Path: "assets/images/logo.png", Format: FormatPNGIcon,
			State: StateReconciled, Severity: SeverityWarn, Repaired: true,
			BackupPath: "assets/images/logo.png.backup.20260826T101500",
			Errors:     []string{"acquisition: remote source unavailable, used embedded fallback"},
			Duration:   HumanDuration(120 * time.Millisecond)},
		{Artifact: "env-config", Path: "lib/config/env_config.dart", Format: FormatGeneratedSource,
			State: StateFailed, Severity: SeverityFatal,
			Errors:   []string{"requirement-unsatisfiable: no value supplied for required flag(s): WEB_URL"},
			Duration: HumanDuration(time.Millisecond)},
	}
	return &RunReport{
		Metadata: ReportMetadata{
			GeneratedAt:   time.Date(2026, 8, 26, 10, 15, 0, 0, time.UTC),
			Tool:          "reconform",
			Version:       "test",
			Target:        ".",
			ExecutionTime: "124ms",
			GitBranch:     "main",
			GitSHA:        "abc1234",
		},
		Summary: summarize(results),
		Results: results,
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, ok := range []string{"concise", "markdown", "JSON", "Html"} {
		if _, err := ParseOutputFormat(ok); err != nil {
			t.Errorf("ParseOutputFormat(%q) failed: %v", ok, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestFormatConcise(t *testing.T) {
	out, err := NewFormatter(FormatConcise).FormatReport(sampleReport())
	if err != nil {
		t.Fatalf("FormatReport failed: %v", err)
	}
	for _, want := range []string{
		"3 artifacts",
		"launcher-icon",
		"[backup assets/images/logo.png.backup.20260826T101500]",
		"1 valid, 1 repaired, 0 invalid, 1 failed (1 fatal), 0 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("concise output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatMarkdown(t *testing.T) {
	out, err := NewFormatter(FormatMarkdown).FormatReport(sampleReport())
	if err != nil {
		t.Fatalf("FormatReport failed: %v", err)
	}
	for _, want := range []string{
		"# Reconciliation Report",
		"**Git:** main@abc1234",
		"- **State:** Reconciled",
		"no value supplied for required flag(s): WEB_URL",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q", want)
		}
	}
}

func TestFormatJSONRoundTrips(t *testing.T) {
	out, err := NewFormatter(FormatJSON).FormatReport(sampleReport())
	if err != nil {
		t.Fatalf("FormatReport failed: %v", err)
	}
	var decoded RunReport
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("JSON output not parsable: %v", err)
	}
	if decoded.Summary.FatalFailures != 1 || len(decoded.Results) != 3 {
		t.Errorf("decoded report lost data: %+v", decoded.Summary)
	}
	if decoded.Results[1].BackupPath == "" {
		t.Error("backup path not serialized")
	}
}

func TestFormatHTML(t *testing.T) {
	out, err := NewFormatter(FormatHTML).FormatReport(sampleReport())
	if err != nil {
		t.Fatalf("FormatReport failed: %v", err)
	}
	for _, want := range []string{
		"<!DOCTYPE html>",
		"reconform",
		"launcher-icon",
		"main@abc1234",
		"(1 fatal)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML output missing %q", want)
		}
	}
}
