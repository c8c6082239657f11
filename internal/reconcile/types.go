/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/reconform/internal/gitctx"
	"github.com/fulmenhq/reconform/pkg/keypath"
)

// Format identifies the structural format of a configuration artifact.
type Format string

const (
	FormatPlist           Format = "plist"
	FormatAndroidManifest Format = "android-manifest"
	FormatJSONCatalog     Format = "json-catalog"
	FormatGeneratedSource Format = "generated-source"
	FormatPNGIcon         Format = "png-icon"
)

// DetectFormat infers an artifact format from its file name. ok is false
// for files no registered reconciler can parse.
func DetectFormat(path string) (Format, bool) {
	base := filepath.Base(path)
	switch {
	case base == "AndroidManifest.xml":
		return FormatAndroidManifest, true
	case strings.HasSuffix(base, ".plist"):
		return FormatPlist, true
	case base == "Contents.json":
		return FormatJSONCatalog, true
	case strings.HasSuffix(base, ".dart"):
		return FormatGeneratedSource, true
	case strings.HasSuffix(base, ".png"):
		return FormatPNGIcon, true
	}
	return "", false
}

// State is the lifecycle state of one artifact within a run:
// unchecked -> validating -> valid | invalid -> reconciling ->
// reconciled | failed. Artifacts with no active requirements are skipped.
type State string

const (
	StateUnchecked   State = "unchecked"
	StateValidating  State = "validating"
	StateValid       State = "valid"
	StateInvalid     State = "invalid"
	StateReconciling State = "reconciling"
	StateReconciled  State = "reconciled"
	StateFailed      State = "failed"
	StateSkipped     State = "skipped"
)

// Severity tags how a failed terminal state affects the build: fatal aborts,
// warn lets the pipeline continue without the artifact.
type Severity string

const (
	SeverityFatal Severity = "fatal"
	SeverityWarn  Severity = "warn"
)

// PriorityClass resolves colliding key requirements from multiple active
// flags. Identity keys always beat permission keys, which beat capability
// keys, which beat cosmetic keys; within one class the later table rule wins.
type PriorityClass string

const (
	ClassIdentity   PriorityClass = "identity"
	ClassPermission PriorityClass = "permission"
	ClassCapability PriorityClass = "capability"
	ClassCosmetic   PriorityClass = "cosmetic"
)

func (c PriorityClass) rank() int {
	switch c {
	case ClassIdentity:
		return 4
	case ClassPermission:
		return 3
	case ClassCapability:
		return 2
	case ClassCosmetic:
		return 1
	default:
		return 0
	}
}

// ValueType is the expected shape of a required value within its format.
// TypeArray means "array containing this member" (plist arrays); TypeElement
// means "repeated XML element whose name attribute equals this value".
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeBool    ValueType = "bool"
	TypeInt     ValueType = "int"
	TypeArray   ValueType = "array"
	TypeElement ValueType = "element"
)

// FailureKind classifies terminal errors.
type FailureKind string

const (
	FailureAcquisition              FailureKind = "acquisition"
	FailureSyntaxCorruption         FailureKind = "syntax-corruption"
	FailureRequirementUnsatisfiable FailureKind = "requirement-unsatisfiable"
	FailureToolchainMismatch        FailureKind = "toolchain-mismatch"
)

// Failure is an error tagged with its taxonomy kind. Failures never escape
// the engine: they are converted into per-artifact result entries.
type Failure struct {
	Kind   FailureKind
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// MissingKey describes one unmet key requirement found during validation.
type MissingKey struct {
	Key      keypath.Path `json:"key"`
	Expected string       `json:"expected,omitempty"`
	Actual   string       `json:"actual,omitempty"`
	Reason   string       `json:"reason"`
}

func (m MissingKey) String() string {
	if m.Expected == "" {
		return fmt.Sprintf("%s: %s", m.Key, m.Reason)
	}
	return fmt.Sprintf("%s: %s (expected %q)", m.Key, m.Reason, m.Expected)
}

// HumanDuration marshals as a human-readable duration string in reports.
type HumanDuration time.Duration

func (d HumanDuration) String() string {
	return time.Duration(d).Round(time.Millisecond).String()
}

func (d HumanDuration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.String())), nil
}

func (d *HumanDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = HumanDuration(parsed)
	return nil
}

// Result is the immutable per-artifact outcome of one run.
type Result struct {
	Artifact   string        `json:"artifact"`
	Path       string        `json:"path"`
	Format     Format        `json:"format"`
	State      State         `json:"state"`
	Severity   Severity      `json:"severity"`
	Repaired   bool          `json:"repaired"`
	BackupPath string        `json:"backup_path,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   HumanDuration `json:"duration"`
}

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Tool          string    `json:"tool"`
	Version       string    `json:"version"`
	Target        string    `json:"target"`
	ExecutionTime string    `json:"execution_time"`
	Flags         []string  `json:"flags,omitempty"`
	GitSHA        string    `json:"git_sha,omitempty"`
	GitBranch     string    `json:"git_branch,omitempty"`
	GitDirty      bool      `json:"git_dirty,omitempty"`
}

// ReportSummary aggregates per-artifact outcomes.
type ReportSummary struct {
	Total         int `json:"total"`
	Valid         int `json:"valid"`
	Reconciled    int `json:"reconciled"`
	Invalid       int `json:"invalid"`
	Failed        int `json:"failed"`
	FatalFailures int `json:"fatal_failures"`
	Skipped       int `json:"skipped"`
}

// RunReport is the aggregate outcome of one reconciliation run. It is the
// sole channel by which failures reach the caller.
type RunReport struct {
	Metadata ReportMetadata `json:"metadata"`
	Summary  ReportSummary  `json:"summary"`
	Results  []Result       `json:"results"`
}

// FirstFatal returns the first fatal failed result, if any.
func (r *RunReport) FirstFatal() (Result, bool) {
	for _, res := range r.Results {
		if res.State == StateFailed && res.Severity == SeverityFatal {
			return res, true
		}
	}
	return Result{}, false
}

func summarize(results []Result) ReportSummary {
	s := ReportSummary{Total: len(results)}
	for _, r := range results {
		switch r.State {
		case StateValid:
			s.Valid++
		case StateReconciled:
			s.Reconciled++
		case StateInvalid:
			s.Invalid++
		case StateFailed:
			s.Failed++
			if r.Severity == SeverityFatal {
				s.FatalFailures++
			}
		case StateSkipped:
			s.Skipped++
		}
	}
	return s
}

func metadataFor(target, version string, flagNames []string, start time.Time) ReportMetadata {
	md := ReportMetadata{
		GeneratedAt:   time.Now(),
		Tool:          "reconform",
		Version:       version,
		Target:        target,
		ExecutionTime: HumanDuration(time.Since(start)).String(),
		Flags:         flagNames,
	}
	if gc := gitctx.Collect(target); gc != nil {
		md.GitSHA = gc.SHA
		md.GitBranch = gc.Branch
		md.GitDirty = gc.Dirty
	}
	return md
}
