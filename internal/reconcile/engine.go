/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/reconform/pkg/buildinfo"
	"github.com/fulmenhq/reconform/pkg/flags"
	"github.com/fulmenhq/reconform/pkg/logger"
	"github.com/fulmenhq/reconform/pkg/safeio"
)

// Engine orchestrates one reconciliation run: resolve requirements from the
// flag set, prefetch remote sources, then walk the artifacts in dependency
// order through the validate/reconcile/re-validate state machine. Nothing
// thrown by a reconciler escapes the engine; every failure becomes a result
// entry in the aggregate report.
type Engine struct {
	table    *Table
	registry *ReconcilerRegistry
}

// NewEngine creates an engine over a requirement table, using the global
// reconciler registry.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table, registry: GetReconcilerRegistry()}
}

// NewEngineWithRegistry creates an engine with an explicit registry, for
// tests that stub reconcilers.
func NewEngineWithRegistry(table *Table, registry *ReconcilerRegistry) *Engine {
	return &Engine{table: table, registry: registry}
}

// Run executes the pipeline and returns the aggregate report. The only
// errors returned directly are pre-flight configuration errors (a cyclic
// table); per-artifact failures are reported, never raised.
func (e *Engine) Run(ctx context.Context, fl *flags.Set, cfg RunConfig) (*RunReport, error) {
	start := time.Now()

	order, err := e.table.Order()
	if err != nil {
		return nil, err
	}
	requirements := e.table.Resolve(fl)

	acquirer := newAcquirer(cfg)
	acquired := acquirer.prefetch(ctx, e.acquisitionJobs(fl, requirements, cfg), e.table.Artifacts, cfg.ParallelDownloads)

	logger.Info(fmt.Sprintf("Starting reconciliation of %s (%d artifacts)", cfg.Target, len(order)))

	results := make([]Result, 0, len(order))
	for _, id := range order {
		req := requirements[id]
		res := e.processArtifact(ctx, req, acquired[id], cfg)
		results = append(results, res)
		logArtifact(res)
	}

	report := &RunReport{
		Metadata: metadataFor(cfg.Target, buildinfo.BinaryVersion, fl.Names(), start),
		Summary:  summarize(results),
		Results:  results,
	}
	logger.Info(fmt.Sprintf("Reconciliation completed in %s: %d valid, %d repaired, %d failed",
		report.Metadata.ExecutionTime, report.Summary.Valid, report.Summary.Reconciled, report.Summary.Failed))
	return report, nil
}

// acquisitionJobs plans which remote sources to download: artifacts with an
// active source flag whose on-disk file is absent or unparsable. A valid
// local file is never re-downloaded, so repeated runs stay idempotent and
// offline-safe.
func (e *Engine) acquisitionJobs(fl *flags.Set, requirements map[string]*Requirement, cfg RunConfig) map[string]string {
	jobs := make(map[string]string)
	if cfg.CheckOnly {
		return jobs
	}
	for id, req := range requirements {
		if len(req.Keys) == 0 || req.Spec.SourceFlag == "" {
			continue
		}
		url, ok := fl.String(req.Spec.SourceFlag)
		if !ok || url == "" {
			continue
		}
		rec, ok := e.registry.Get(req.Spec.Format)
		if !ok {
			continue
		}
		data, err := safeio.Read(filepath.Join(cfg.Target, req.Spec.Path))
		if err == nil && rec.ValidateSyntax(data) {
			continue
		}
		jobs[id] = url
	}
	return jobs
}

func (e *Engine) processArtifact(ctx context.Context, req *Requirement, acq acquisition, cfg RunConfig) Result {
	started := time.Now()
	res := Result{
		Artifact: req.Artifact,
		Path:     req.Spec.Path,
		Format:   req.Spec.Format,
		Severity: req.Spec.Severity,
		State:    StateUnchecked,
	}
	defer func() {
		res.Duration = HumanDuration(time.Since(started))
	}()

	if len(req.Keys) == 0 {
		res.State = StateSkipped
		return res
	}
	if len(req.Unresolved) > 0 {
		res.State = StateFailed
		f := &Failure{
			Kind:   FailureRequirementUnsatisfiable,
			Reason: fmt.Sprintf("no value supplied for required flag(s): %s", strings.Join(req.Unresolved, ", ")),
		}
		res.Errors = append(res.Errors, f.Error())
		return res
	}

	rec, ok := e.registry.Get(req.Spec.Format)
	if !ok {
		res.State = StateFailed
		res.Errors = append(res.Errors, fmt.Sprintf("no reconciler registered for format %s", req.Spec.Format))
		return res
	}

	path := filepath.Join(cfg.Target, req.Spec.Path)
	res.State = StateValidating

	data, readErr := safeio.Read(path)
	exists := readErr == nil
	if readErr != nil && !errors.Is(readErr, os.ErrNotExist) {
		res.State = StateFailed
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read artifact: %v", readErr))
		return res
	}

	// A syntactically invalid artifact is corrupted; missing keys are a
	// separate, milder condition. The distinction drives the repair path
	// (template regeneration vs incremental patch) inside the reconciler.
	syntaxOK := exists && rec.ValidateSyntax(data)
	var missing []MissingKey
	if syntaxOK {
		missing = rec.ValidateKeys(data, req)
		if len(missing) == 0 {
			res.State = StateValid
			return res
		}
	}

	res.State = StateInvalid
	if cfg.CheckOnly {
		if !exists {
			res.Errors = append(res.Errors, "artifact missing")
		} else if !syntaxOK {
			res.Errors = append(res.Errors, (&Failure{Kind: FailureSyntaxCorruption, Reason: "artifact is not parsable"}).Error())
		}
		for _, m := range missing {
			res.Errors = append(res.Errors, m.String())
		}
		return res
	}

	// Corrupt or missing local content is replaced by the acquired source
	// when one exists; flag values, not corrupted-file scraping, stay
	// authoritative for everything the requirement names.
	input := data
	if !syntaxOK && acq.data != nil {
		input = acq.data
	}
	if !exists && input == nil && acq.err != nil {
		res.State = StateFailed
		res.Errors = append(res.Errors, acq.err.Error())
		return res
	}

	res.State = StateReconciling
	backupPath := ""
	if exists {
		bp, err := safeio.Backup(path)
		if err != nil {
			res.State = StateFailed
			res.Errors = append(res.Errors, fmt.Sprintf("failed to back up artifact: %v", err))
			return res
		}
		backupPath = bp
		res.BackupPath = bp
	}

	output, err := reconcileGuarded(ctx, rec, input, req)
	if err == nil {
		// Exactly one re-validation pass; a failure here escalates once to
		// the template path before the artifact is declared unrepairable.
		if !rec.ValidateSyntax(output) || len(rec.ValidateKeys(output, req)) > 0 {
			output, err = reconcileGuarded(ctx, rec, nil, req)
			if err == nil && (!rec.ValidateSyntax(output) || len(rec.ValidateKeys(output, req)) > 0) {
				err = &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "regenerated artifact still fails validation"}
			}
		}
	}
	if err != nil {
		res.State = StateFailed
		res.Errors = append(res.Errors, err.Error())
		if backupPath != "" {
			if rerr := safeio.Restore(backupPath, path); rerr != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("failed to restore backup: %v", rerr))
			}
		}
		return res
	}

	if err := safeio.AtomicWrite(path, output); err != nil {
		res.State = StateFailed
		res.Errors = append(res.Errors, fmt.Sprintf("failed to write artifact: %v", err))
		return res
	}
	if cfg.BackupKeep > 0 {
		if _, err := safeio.PruneBackups(path, cfg.BackupKeep); err != nil {
			logger.Warn("backup pruning failed", logger.String("artifact", req.Artifact), logger.Err(err))
		}
	}

	res.State = StateReconciled
	res.Repaired = true
	if acq.fallback {
		res.Errors = append(res.Errors, (&Failure{
			Kind:   FailureAcquisition,
			Reason: fmt.Sprintf("remote source unavailable, used embedded fallback (%v)", acq.err),
		}).Error())
	}
	return res
}

// reconcileGuarded converts a reconciler panic into a per-artifact Failure;
// misbehaving format plugins must never take down the whole run.
func reconcileGuarded(ctx context.Context, rec Reconciler, data []byte, req *Requirement) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Failure{Kind: FailureRequirementUnsatisfiable, Reason: fmt.Sprintf("reconciler panic: %v", r)}
		}
	}()
	return rec.Reconcile(ctx, data, req)
}

func logArtifact(res Result) {
	line := fmt.Sprintf("%-20s %s", res.Artifact, res.State)
	switch res.State {
	case StateFailed:
		logger.Error(line, logger.String("path", res.Path), logger.String("reason", strings.Join(res.Errors, "; ")))
	case StateReconciled:
		fields := []logger.Field{
			logger.String("path", res.Path),
			logger.Duration("duration", time.Duration(res.Duration)),
		}
		if res.BackupPath != "" {
			fields = append(fields, logger.String("backup", res.BackupPath))
		}
		if len(res.Errors) > 0 {
			fields = append(fields, logger.String("warning", strings.Join(res.Errors, "; ")))
		}
		logger.Info(line, fields...)
	case StateInvalid:
		logger.Warn(line, logger.String("path", res.Path), logger.String("issues", strings.Join(res.Errors, "; ")))
	default:
		logger.Info(line, logger.String("path", res.Path))
	}
}
