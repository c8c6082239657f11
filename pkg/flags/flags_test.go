package flags

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("RECONFORM_TEST_BUNDLE_ID", "com.example.app")
	t.Setenv("RECONFORM_TEST_PUSH", "true")
	os.Unsetenv("RECONFORM_TEST_ABSENT")

	s := FromEnv([]string{"RECONFORM_TEST_BUNDLE_ID", "RECONFORM_TEST_PUSH", "RECONFORM_TEST_ABSENT"})

	if v, ok := s.String("RECONFORM_TEST_BUNDLE_ID"); !ok || v != "com.example.app" {
		t.Errorf("BUNDLE_ID = %q, %v", v, ok)
	}
	if !s.Bool("RECONFORM_TEST_PUSH") {
		t.Error("PUSH should be truthy")
	}
	if s.Has("RECONFORM_TEST_ABSENT") {
		t.Error("absent env var should not be in set")
	}
}

func TestFromFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.toml")
	content := `
BUNDLE_ID = "com.example.app"
PUSH_NOTIFY = true
VERSION_CODE = 42
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if v, _ := s.String("BUNDLE_ID"); v != "com.example.app" {
		t.Errorf("BUNDLE_ID = %q", v)
	}
	if !s.Bool("PUSH_NOTIFY") {
		t.Error("PUSH_NOTIFY should be true")
	}
	if n, ok := s.Int("VERSION_CODE"); !ok || n != 42 {
		t.Errorf("VERSION_CODE = %d, %v", n, ok)
	}
}

func TestFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	content := "APP_NAME: Garden Quiz\nIS_CAMERA: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if v, _ := s.String("APP_NAME"); v != "Garden Quiz" {
		t.Errorf("APP_NAME = %q", v)
	}
	if s.Bool("IS_CAMERA") {
		t.Error("IS_CAMERA should be falsy")
	}
	if !s.Has("IS_CAMERA") {
		t.Error("IS_CAMERA should still be present")
	}
}

func TestFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.ini")
	if err := os.WriteFile(path, []byte("a=b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestMerge_OverrideWins(t *testing.T) {
	base := New(map[string]string{"BUNDLE_ID": "com.old", "APP_NAME": "Old"})
	override := New(map[string]string{"BUNDLE_ID": "com.new"})

	merged := Merge(base, override)
	if v, _ := merged.String("BUNDLE_ID"); v != "com.new" {
		t.Errorf("BUNDLE_ID = %q, want com.new", v)
	}
	if v, _ := merged.String("APP_NAME"); v != "Old" {
		t.Errorf("APP_NAME = %q, want Old", v)
	}
	// Source sets are unchanged.
	if v, _ := base.String("BUNDLE_ID"); v != "com.old" {
		t.Error("merge mutated the base set")
	}
}

func TestBool_Spellings(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"banana", false},
	}
	for _, tt := range tests {
		s := New(map[string]string{"F": tt.value})
		if got := s.Bool("F"); got != tt.expected {
			t.Errorf("Bool(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}

func TestExpand(t *testing.T) {
	s := New(map[string]string{"BUNDLE_ID": "com.example.app", "APP_NAME": "Demo"})

	out, err := s.Expand("${BUNDLE_ID}.notifications")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if out != "com.example.app.notifications" {
		t.Errorf("Expand = %q", out)
	}
}

func TestExpand_MissingFlags(t *testing.T) {
	s := New(map[string]string{})

	_, err := s.Expand("${BUNDLE_ID} and ${WEB_URL} and ${BUNDLE_ID}")
	if err == nil {
		t.Fatal("expected error")
	}
	var missing *MissingFlagsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFlagsError, got %T", err)
	}
	if len(missing.Names) != 2 {
		t.Errorf("missing names = %v, want deduplicated pair", missing.Names)
	}
	if missing.Names[0] != "BUNDLE_ID" || missing.Names[1] != "WEB_URL" {
		t.Errorf("missing names not sorted: %v", missing.Names)
	}
}
