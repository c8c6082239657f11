/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/reconform/internal/reconcile"
	"github.com/fulmenhq/reconform/pkg/exitcode"
	"github.com/fulmenhq/reconform/pkg/flags"
	"github.com/fulmenhq/reconform/pkg/logger"
	"github.com/fulmenhq/reconform/pkg/safeio"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Validate and repair configuration artifacts",
		Long: `Reconcile resolves the requirement table against the active flag set,
validates every artifact it names, and repairs the ones that fall short.
Artifacts are processed in dependency order; each repaired file is backed
up beside the original before being rewritten atomically.

With --check nothing is written: invalid artifacts are reported and the
command exits with the validation exit code.`,
		RunE:         runReconcile,
		SilenceUsage: true,
	}

	cmd.Flags().String("target", ".", "Checkout root containing the artifacts")
	cmd.Flags().String("flags-file", "", "Flag values file (.toml, .yaml, or .yml)")
	cmd.Flags().StringSlice("env-flags", nil, "Flag names to read from the environment (override file values)")
	cmd.Flags().String("table", "", "Requirement table path (defaults to the embedded table)")
	cmd.Flags().String("policy", "", "Rego policy evaluated against the final report")
	cmd.Flags().Bool("check", false, "Validate only; never write")
	cmd.Flags().String("format", "concise", "Output format: concise, markdown, json, html")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().Duration("timeout", 30*time.Second, "Per-download timeout")
	cmd.Flags().Int("retries", 3, "Download attempts per remote source")
	cmd.Flags().Int("parallel-downloads", 4, "Concurrent downloads across independent artifacts")
	cmd.Flags().Int("backup-keep", 0, "Prune backups beyond this count per artifact (0 keeps all)")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	flagsFile, _ := cmd.Flags().GetString("flags-file")
	envFlags, _ := cmd.Flags().GetStringSlice("env-flags")
	tablePath, _ := cmd.Flags().GetString("table")
	policyPath, _ := cmd.Flags().GetString("policy")
	checkOnly, _ := cmd.Flags().GetBool("check")
	formatStr, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	parallel, _ := cmd.Flags().GetInt("parallel-downloads")
	backupKeep, _ := cmd.Flags().GetInt("backup-keep")

	outFormat, err := reconcile.ParseOutputFormat(formatStr)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}

	fl, err := loadFlags(flagsFile, envFlags)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}
	if fl.Len() == 0 {
		logger.Warn("No flags loaded; only unconditional requirements apply")
	}

	table, err := loadTable(tablePath)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}

	cfg := reconcile.DefaultRunConfig()
	cfg.Target = target
	cfg.CheckOnly = checkOnly
	cfg.Timeout = timeout
	cfg.DownloadRetries = retries
	cfg.ParallelDownloads = parallel
	cfg.BackupKeep = backupKeep

	engine := reconcile.NewEngine(table)
	report, err := engine.Run(cmd.Context(), fl, cfg)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}

	rendered, err := reconcile.NewFormatter(outFormat).FormatReport(report)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if outputPath != "" {
		if err := safeio.AtomicWrite(outputPath, []byte(rendered)); err != nil {
			return &exitError{code: exitcode.FileSystemError, msg: err.Error()}
		}
		logger.Info("Report written", logger.String("path", outputPath))
	} else {
		cmd.Print(rendered)
	}

	if policyPath != "" {
		if err := applyPolicy(cmd.Context(), policyPath, report); err != nil {
			return err
		}
	}

	if code := reconcile.ExitCode(report); code != exitcode.Success {
		return &exitError{code: code, msg: exitcode.String(code)}
	}
	return nil
}

func loadFlags(flagsFile string, envFlags []string) (*flags.Set, error) {
	fl := flags.New(nil)
	if flagsFile != "" {
		fileSet, err := flags.FromFile(flagsFile)
		if err != nil {
			return nil, err
		}
		fl = fileSet
	}
	if len(envFlags) > 0 {
		fl = flags.Merge(fl, flags.FromEnv(envFlags))
	}
	return fl, nil
}

func loadTable(path string) (*reconcile.Table, error) {
	if path == "" {
		return reconcile.DefaultTable()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- user-specified table path
	if err != nil {
		return nil, fmt.Errorf("failed to read requirement table: %w", err)
	}
	return reconcile.LoadTable(data)
}

func applyPolicy(ctx context.Context, policyPath string, report *reconcile.RunReport) error {
	pe := reconcile.NewOPAEngine()
	if err := pe.LoadPolicy(policyPath); err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}
	denials, err := pe.Evaluate(ctx, report)
	if err != nil {
		return &exitError{code: exitcode.ConfigError, msg: err.Error()}
	}
	if len(denials) > 0 {
		for _, d := range denials {
			logger.Error("Policy denial", logger.String("reason", d))
		}
		return &exitError{code: exitcode.PolicyDenied, msg: "report denied by policy"}
	}
	return nil
}
