/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"time"
)

// Reconciler is the per-format contract: syntax validation, required-key
// validation, and repair. One implementation exists per artifact format.
type Reconciler interface {
	// Format returns the artifact format this reconciler handles.
	Format() Format

	// ValidateSyntax reports whether the bytes parse as the format. Parse
	// failures map to false and never propagate as errors.
	ValidateSyntax(data []byte) bool

	// ValidateKeys resolves each required key path against the parsed
	// artifact and returns the keys that are absent or hold an unexpected
	// value or type. An empty slice means the requirement is satisfied.
	// The data must already be syntactically valid.
	ValidateKeys(data []byte, req *Requirement) []MissingKey

	// Reconcile produces bytes that satisfy req. Syntactically valid input
	// is patched incrementally, preserving unrelated content; absent or
	// corrupt input is regenerated from the format's minimal template.
	Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error)
}

// ReconcilerRegistry manages the available format reconcilers.
type ReconcilerRegistry struct {
	reconcilers map[Format]Reconciler
}

// NewReconcilerRegistry creates an empty registry.
func NewReconcilerRegistry() *ReconcilerRegistry {
	return &ReconcilerRegistry{reconcilers: make(map[Format]Reconciler)}
}

// Register adds a reconciler for its format.
func (r *ReconcilerRegistry) Register(rec Reconciler) {
	r.reconcilers[rec.Format()] = rec
}

// Get returns the reconciler for a format.
func (r *ReconcilerRegistry) Get(format Format) (Reconciler, bool) {
	rec, ok := r.reconcilers[format]
	return rec, ok
}

// Formats returns all registered formats.
func (r *ReconcilerRegistry) Formats() []Format {
	out := make([]Format, 0, len(r.reconcilers))
	for f := range r.reconcilers {
		out = append(out, f)
	}
	return out
}

// Global registry instance
var globalRegistry = NewReconcilerRegistry()

// RegisterReconciler registers a reconciler globally.
func RegisterReconciler(rec Reconciler) {
	globalRegistry.Register(rec)
}

// GetReconcilerRegistry returns the global registry.
func GetReconcilerRegistry() *ReconcilerRegistry {
	return globalRegistry
}

// ResetRegistryForTesting swaps in a fresh global registry for test
// isolation and returns the displaced registry for RestoreRegistry.
func ResetRegistryForTesting() *ReconcilerRegistry {
	saved := globalRegistry
	globalRegistry = NewReconcilerRegistry()
	return saved
}

// RestoreRegistry restores a previously saved registry during test teardown.
func RestoreRegistry(saved *ReconcilerRegistry) {
	globalRegistry = saved
}

// RunConfig configures one reconciliation run.
type RunConfig struct {
	// Target is the checkout root; artifact paths resolve against it.
	Target string
	// CheckOnly validates and reports without mutating anything.
	CheckOnly bool
	// Timeout bounds each network call, not the whole run.
	Timeout time.Duration
	// DownloadRetries is the attempt budget per remote source.
	DownloadRetries int
	// RetryBaseDelay doubles after each failed attempt.
	RetryBaseDelay time.Duration
	// ParallelDownloads bounds concurrent acquisition across artifacts with
	// no ordering dependency. Reconciliation itself stays sequential.
	ParallelDownloads int
	// BackupKeep prunes older backups per artifact after a successful
	// mutation; zero keeps everything.
	BackupKeep int
}

// DefaultRunConfig returns the defaults used by the CLI.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Target:            ".",
		Timeout:           30 * time.Second,
		DownloadRetries:   3,
		RetryBaseDelay:    500 * time.Millisecond,
		ParallelDownloads: 4,
	}
}
