package safeio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCleanUserPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		hasError bool
	}{
		{
			name:     "simple path",
			input:    "file.txt",
			expected: "file.txt",
			hasError: false,
		},
		{
			name:     "relative path",
			input:    "./subdir/file.txt",
			expected: "subdir/file.txt",
			hasError: false,
		},
		{
			name:     "path with traversal",
			input:    "../../../etc/passwd",
			expected: "",
			hasError: true,
		},
		{
			name:     "path with traversal in middle",
			input:    "valid/../../../etc/passwd",
			expected: "",
			hasError: true,
		},
		{
			name:     "path with dots but no traversal",
			input:    "file.with.dots.txt",
			expected: "file.with.dots.txt",
			hasError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanUserPath(tt.input)
			if tt.hasError {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRead_NotFound(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.plist"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestAtomicWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Info.plist")
	content := []byte("<plist></plist>")

	if err := AtomicWrite(path, content); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestAtomicWrite_PreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("new")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode()&0o777 != 0o755 {
		t.Errorf("mode not preserved: got %v", st.Mode())
	}
}

func TestAtomicWrite_CrashLeavesTargetIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AndroidManifest.xml")
	original := []byte("<manifest/>")
	if err := AtomicWrite(path, original); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash after the temp file is written but before the rename.
	renameFile = func(oldpath, newpath string) error {
		return errors.New("injected crash")
	}
	defer func() { renameFile = os.Rename }()

	if err := AtomicWrite(path, []byte("partial rewrite")); err == nil {
		t.Fatal("expected injected failure")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("target corrupted by failed write: got %q", got)
	}

	// The aborted temp file must not linger.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".reconform-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestBackup_AbsentFile(t *testing.T) {
	backup, err := Backup(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backup != "" {
		t.Errorf("expected no backup for absent file, got %q", backup)
	}
}

func TestBackup_MatchesOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Contents.json")
	content := []byte(`{"images":[]}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	backup, err := Backup(path)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if !strings.Contains(backup, BackupSuffix) {
		t.Errorf("unexpected backup name: %s", backup)
	}
	got, err := os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("backup does not byte-match original")
	}
}

func TestBackup_CollisionGetsCounterSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Info.plist")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Freeze the clock so both backups land on the same second.
	frozen := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = time.Now }()

	first, err := Backup(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := Backup(path)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatalf("collision not resolved: both backups at %s", first)
	}
	if !strings.HasSuffix(second, "-1") {
		t.Errorf("expected counter suffix on second backup, got %s", second)
	}
	got, _ := os.ReadFile(first)
	if string(got) != "v1" {
		t.Errorf("first backup overwritten: got %q", got)
	}
}

func TestRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env_config.dart")
	if err := os.WriteFile(path, []byte("good"), 0o644); err != nil {
		t.Fatal(err)
	}
	backup, err := Backup(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("bad rewrite")); err != nil {
		t.Fatal(err)
	}
	if err := Restore(backup, path); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "good" {
		t.Errorf("restore mismatch: got %q", got)
	}
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Info.plist")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	stamps := []string{"20260101T000001", "20260101T000002", "20260101T000003"}
	for _, s := range stamps {
		if err := os.WriteFile(path+BackupSuffix+s, []byte("b"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := PruneBackups(path, 1)
	if err != nil {
		t.Fatalf("PruneBackups: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	left, err := ListBackups(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || !strings.HasSuffix(left[0], stamps[2]) {
		t.Errorf("expected only newest backup to remain, got %v", left)
	}
}
