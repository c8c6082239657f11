/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/reconform/internal/reconcile"
	"github.com/fulmenhq/reconform/pkg/exitcode"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [PATTERN...]",
		Short: "Validate artifacts or a requirement table without touching anything",
		Long: `With glob patterns, validate finds matching artifacts under the target
directory, infers each file's format, and syntax-validates it. Nothing is
written.

Without patterns, validate lints the requirement table instead: structure,
value types, dependency references, an acyclic dependency graph, and, when
a flags file is given, whether every rule placeholder resolves.`,
		RunE:         runValidate,
		SilenceUsage: true,
	}

	cmd.Flags().String("target", ".", "Directory the patterns are matched under")
	cmd.Flags().String("table", "", "Requirement table path (defaults to the embedded table)")
	cmd.Flags().String("flags-file", "", "Flag values file used to resolve rule placeholders")
	cmd.Flags().StringSlice("env-flags", nil, "Flag names to read from the environment")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		target, _ := cmd.Flags().GetString("target")
		return validateArtifacts(cmd, target, args)
	}
	return validateTable(cmd)
}

func validateArtifacts(cmd *cobra.Command, target string, patterns []string) error {
	out := cmd.OutOrStdout()
	registry := reconcile.GetReconcilerRegistry()

	matched := map[string]struct{}{}
	for _, pattern := range patterns {
		paths, err := doublestar.FilepathGlob(filepath.Join(target, pattern))
		if err != nil {
			return &exitError{
				code: exitcode.ConfigError,
				msg:  fmt.Sprintf("bad pattern %q: %v", pattern, err),
			}
		}
		for _, p := range paths {
			matched[p] = struct{}{}
		}
	}
	if len(matched) == 0 {
		fmt.Fprintln(out, "No artifacts matched")
		return nil
	}

	paths := make([]string, 0, len(matched))
	for p := range matched {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	invalid := 0
	for _, path := range paths {
		format, ok := reconcile.DetectFormat(path)
		if !ok {
			fmt.Fprintf(out, "skip    %s (unrecognized format)\n", path)
			continue
		}
		rec, ok := registry.Get(format)
		if !ok {
			fmt.Fprintf(out, "skip    %s (no validator for %s)\n", path, format)
			continue
		}
		data, err := os.ReadFile(path) // #nosec G304 -- glob-matched artifact path
		if err != nil {
			return &exitError{code: exitcode.FileSystemError, msg: err.Error()}
		}
		if rec.ValidateSyntax(data) {
			fmt.Fprintf(out, "ok      %s (%s)\n", path, format)
		} else {
			invalid++
			fmt.Fprintf(out, "invalid %s (%s)\n", path, format)
		}
	}
	if invalid > 0 {
		return &exitError{
			code: exitcode.ValidationError,
			msg:  fmt.Sprintf("%d artifact(s) failed syntax validation", invalid),
		}
	}
	return nil
}

func validateTable(cmd *cobra.Command) error {
	tablePath, _ := cmd.Flags().GetString("table")
	flagsFile, _ := cmd.Flags().GetString("flags-file")
	envFlags, _ := cmd.Flags().GetStringSlice("env-flags")

	table, err := loadTable(tablePath)
	if err != nil {
		return &exitError{code: exitcode.ValidationError, msg: err.Error()}
	}

	order, err := table.Order()
	if err != nil {
		return &exitError{code: exitcode.ValidationError, msg: err.Error()}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Table OK: %d artifacts, %d rules\n", len(table.Artifacts), len(table.Rules))
	fmt.Fprintf(out, "Order: %s\n", strings.Join(order, " -> "))

	if flagsFile == "" && len(envFlags) == 0 {
		return nil
	}

	fl, err := loadFlags(flagsFile, envFlags)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}

	requirements := table.Resolve(fl)
	unresolvable := 0
	for _, id := range order {
		req := requirements[id]
		if req == nil || len(req.Unresolved) == 0 {
			continue
		}
		unresolvable++
		fmt.Fprintf(out, "artifact %s: unresolved flags %s\n", id, strings.Join(req.Unresolved, ", "))
	}
	if unresolvable > 0 {
		return &exitError{
			code: exitcode.ValidationError,
			msg:  fmt.Sprintf("%d artifact(s) carry unresolved placeholders", unresolvable),
		}
	}
	fmt.Fprintln(out, "All rule placeholders resolve against the supplied flags")
	return nil
}
