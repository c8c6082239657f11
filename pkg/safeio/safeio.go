// Package safeio implements backup-guarded file mutation for the
// reconciliation engine. Every write goes through an atomic same-directory
// temp-file-plus-rename so a crashed run never leaves a partially written
// artifact behind, and every mutation of a pre-existing file can be preceded
// by a timestamped backup that Restore can roll back to.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// BackupSuffix separates the original path from the backup timestamp.
const BackupSuffix = ".backup."

// renameFile is swapped out in tests to simulate a crash between the
// temp-file write and the rename.
var renameFile = os.Rename

// nowFunc is swapped out in tests that need deterministic backup names.
var nowFunc = time.Now

// CleanUserPath cleans a user-provided path and rejects traversal attempts.
// Returns paths with forward slashes for cross-platform consistency.
func CleanUserPath(p string) (string, error) {
	c := filepath.Clean(p)
	if strings.Contains(c, "..") {
		return "", errors.New("path traversal detected")
	}
	return filepath.ToSlash(c), nil
}

// Read returns the file contents. Absence is reported via os.ErrNotExist so
// callers can distinguish a missing artifact from an unreadable one.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- artifact paths come from the requirement table
	if err != nil {
		return nil, err
	}
	return data, nil
}

// AtomicWrite replaces the file at path with data. The data is first written
// to a temp file in the same directory and then renamed over the target, so
// a reader (or a crash) never observes a partial write. Existing file mode is
// preserved; new files get 0644. Missing parent directories are created.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var mode os.FileMode = 0o644
	if st, err := os.Stat(path); err == nil {
		if m := st.Mode() & 0o777; m != 0 {
			mode = m
		}
	}

	tmp, err := os.CreateTemp(dir, ".reconform-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// Best-effort cleanup if the rename never happened.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("failed to set mode on temp file: %w", err)
	}
	if err := renameFile(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Backup copies path to path + ".backup." + timestamp and returns the backup
// path. A missing source is not an error: Backup returns "" so callers can
// record that no pre-mutation state existed. Timestamp resolution is one
// second; collisions within the same second get a -N counter suffix so an
// existing backup is never overwritten.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- artifact paths come from the requirement table
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	stamp := nowFunc().Format("20060102T150405")
	backupPath := path + BackupSuffix + stamp
	for n := 1; ; n++ {
		if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		backupPath = fmt.Sprintf("%s%s%s-%d", path, BackupSuffix, stamp, n)
	}

	if err := AtomicWrite(backupPath, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return backupPath, nil
}

// Restore copies the backup back over the target. Used when a reconciler's
// own output fails re-validation.
func Restore(backupPath, path string) error {
	data, err := os.ReadFile(backupPath) // #nosec G304 -- backupPath was produced by Backup
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}
	return AtomicWrite(path, data)
}

// ListBackups returns all backups of path in name order (old to new). Backup
// names embed a lexically sortable timestamp, so name order is age order.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	pattern := base + BackupSuffix + "*"
	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("bad backup pattern: %w", err)
		}
		if ok {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(backups)
	return backups, nil
}

// PruneBackups deletes all but the newest keep backups of path and reports
// how many were removed.
func PruneBackups(path string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := ListBackups(path)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}
	removed := 0
	for _, b := range backups[:len(backups)-keep] {
		if err := os.Remove(b); err != nil {
			return removed, fmt.Errorf("failed to prune backup %s: %w", b, err)
		}
		removed++
	}
	return removed, nil
}
