/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/reconform/pkg/exitcode"
	"github.com/open-policy-agent/opa/v1/rego"
)

// ExitCode maps an aggregate report to a process exit code under the default
// policy: any fatal failed artifact aborts the build, warn-severity failures
// and check-mode invalid findings only lower the code to ValidationError.
func ExitCode(report *RunReport) int {
	if report.Summary.FatalFailures > 0 {
		return exitcode.ReconcileError
	}
	if report.Summary.Invalid > 0 {
		return exitcode.ValidationError
	}
	return exitcode.Success
}

// PolicyEngine evaluates an operator-supplied policy over the run report,
// overriding the default severity table when teams need a different
// fatal/non-fatal split.
type PolicyEngine interface {
	// Evaluate returns deny reasons; a non-empty list fails the build.
	Evaluate(ctx context.Context, report *RunReport) ([]string, error)
	// LoadPolicy loads policy source from a file.
	LoadPolicy(source string) error
}

// OPAEngine implements PolicyEngine with embedded OPA. Policies are rego
// modules exposing data.reconform.policy.deny as a set/array of reason
// strings.
type OPAEngine struct {
	regoCode string
}

// NewOPAEngine creates a new engine.
func NewOPAEngine() PolicyEngine {
	return &OPAEngine{}
}

// LoadPolicy reads a rego module from disk.
func (e *OPAEngine) LoadPolicy(source string) error {
	cleanPath := filepath.Clean(source)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid policy path: directory traversal detected")
	}
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- operator-supplied policy path, cleaned above
	if err != nil {
		return fmt.Errorf("failed to read policy: %w", err)
	}
	e.regoCode = string(data)
	return nil
}

// Evaluate runs the deny query against the report.
func (e *OPAEngine) Evaluate(ctx context.Context, report *RunReport) ([]string, error) {
	if e.regoCode == "" {
		return nil, fmt.Errorf("no policy loaded")
	}

	// Round-trip through JSON so rego sees the report's wire shape.
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}

	rs, err := rego.New(
		rego.Query("data.reconform.policy.deny"),
		rego.Input(input),
		rego.Module("policy.rego", e.regoCode),
	).Eval(ctx)
	if err != nil {
		return nil, err
	}

	var reasons []string
	for _, re := range rs {
		for _, expr := range re.Expressions {
			items, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range items {
				reasons = append(reasons, fmt.Sprintf("%v", item))
			}
		}
	}
	return reasons, nil
}
