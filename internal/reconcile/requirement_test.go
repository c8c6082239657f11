/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"strings"
	"testing"

	"github.com/fulmenhq/reconform/pkg/flags"
)

const testTableYAML = `
version: 1
artifacts:
  plist:
    path: ios/Runner/Info.plist
    format: plist
    severity: fatal
  manifest:
    path: android/app/src/main/AndroidManifest.xml
    format: android-manifest
    severity: fatal
rules:
  - flag: BUNDLE_ID
    requires:
      - artifact: plist
        keys:
          - key: CFBundleIdentifier
            value: "${BUNDLE_ID}"
            class: identity
  - flag: APP_NAME
    requires:
      - artifact: plist
        keys:
          - key: CFBundleDisplayName
            value: "${APP_NAME}"
            class: cosmetic
  - flag: OVERRIDE_NAME
    requires:
      - artifact: plist
        keys:
          - key: CFBundleDisplayName
            value: "${OVERRIDE_NAME}"
            class: cosmetic
  - flag: LOCK_NAME
    requires:
      - artifact: plist
        keys:
          - key: CFBundleDisplayName
            value: "${LOCK_NAME}"
            class: identity
  - flag: PUSH_NOTIFY
    requires:
      - artifact: plist
        keys:
          - key: UIBackgroundModes
            value: remote-notification
            type: array
            class: capability
      - artifact: manifest
        keys:
          - key: manifest/uses-permission@android:name
            value: android.permission.POST_NOTIFICATIONS
            type: element
            class: permission
  - flag: IS_CAMERA
    requires:
      - artifact: manifest
        keys:
          - key: manifest/uses-permission@android:name
            value: android.permission.CAMERA
            type: element
            class: permission
`

func loadTestTable(t *testing.T) *Table {
	t.Helper()
	table, err := LoadTable([]byte(testTableYAML))
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	return table
}

func TestLoadTableRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no artifacts",
			yaml: "version: 1\nrules: []\n",
			want: "no artifacts",
		},
		{
			name: "unknown format",
			yaml: "artifacts:\n  a:\n    path: x\n    format: ini\n    severity: fatal\n",
			want: "unknown format",
		},
		{
			name: "unknown severity",
			yaml: "artifacts:\n  a:\n    path: x\n    format: plist\n    severity: panic\n",
			want: "unknown severity",
		},
		{
			name: "undeclared dependency",
			yaml: "artifacts:\n  a:\n    path: x\n    format: plist\n    severity: fatal\n    depends_on: [ghost]\n",
			want: "undeclared artifact",
		},
		{
			name: "rule references undeclared artifact",
			yaml: "artifacts:\n  a:\n    path: x\n    format: plist\n    severity: fatal\nrules:\n  - flag: F\n    requires:\n      - artifact: ghost\n        keys:\n          - key: K\n",
			want: "undeclared artifact",
		},
		{
			name: "absolute artifact path",
			yaml: "artifacts:\n  a:\n    path: /etc/passwd\n    format: plist\n    severity: fatal\n",
			want: "must be relative",
		},
		{
			name: "traversing artifact path",
			yaml: "artifacts:\n  a:\n    path: ../../outside.plist\n    format: plist\n    severity: fatal\n",
			want: "traversal",
		},
		{
			name: "unknown value type",
			yaml: "artifacts:\n  a:\n    path: x\n    format: plist\n    severity: fatal\nrules:\n  - flag: F\n    requires:\n      - artifact: a\n        keys:\n          - key: K\n            type: float\n",
			want: "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTable([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestRuleActivation(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"com.example.app", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"  ", false},
		{"", false},
	}
	for _, tt := range tests {
		fl := flags.New(map[string]string{"F": tt.value})
		if got := ruleActive(fl, "F"); got != tt.want {
			t.Errorf("ruleActive(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
	if ruleActive(flags.New(nil), "ABSENT") {
		t.Error("absent flag must not activate a rule")
	}
}

func TestResolveExpandsTemplates(t *testing.T) {
	table := loadTestTable(t)
	fl := flags.New(map[string]string{"BUNDLE_ID": "com.example.app"})

	reqs := table.Resolve(fl)
	plist := reqs["plist"]
	kr, ok := plist.Key("CFBundleIdentifier")
	if !ok {
		t.Fatal("CFBundleIdentifier requirement not resolved")
	}
	if !kr.HasValue || kr.Value != "com.example.app" {
		t.Errorf("resolved value = %q, want com.example.app", kr.Value)
	}
	if kr.Type != TypeString {
		t.Errorf("default type = %q, want string", kr.Type)
	}
	// Untouched artifact still gets an entry, with no keys.
	if manifest := reqs["manifest"]; len(manifest.Keys) != 0 {
		t.Errorf("manifest should have no keys, got %d", len(manifest.Keys))
	}
}

func TestResolveInactiveValueDoesNotActivate(t *testing.T) {
	table := loadTestTable(t)
	fl := flags.New(map[string]string{"PUSH_NOTIFY": "false"})
	reqs := table.Resolve(fl)
	if len(reqs["plist"].Keys) != 0 || len(reqs["manifest"].Keys) != 0 {
		t.Error("PUSH_NOTIFY=false must not produce requirements")
	}
}

func TestResolveCollisionLaterRuleWinsWithinClass(t *testing.T) {
	table := loadTestTable(t)
	fl := flags.New(map[string]string{
		"APP_NAME":      "First",
		"OVERRIDE_NAME": "Second",
	})
	kr, ok := table.Resolve(fl)["plist"].Key("CFBundleDisplayName")
	if !ok {
		t.Fatal("CFBundleDisplayName requirement not resolved")
	}
	if kr.Value != "Second" {
		t.Errorf("collision winner = %q, want Second (later rule, same class)", kr.Value)
	}
}

func TestResolveCollisionHigherClassWins(t *testing.T) {
	table := loadTestTable(t)
	fl := flags.New(map[string]string{
		"APP_NAME":  "Cosmetic",
		"LOCK_NAME": "Identity",
	})
	kr, _ := table.Resolve(fl)["plist"].Key("CFBundleDisplayName")
	if kr.Value != "Identity" {
		t.Errorf("collision winner = %q, want Identity", kr.Value)
	}

	// Order of activation must not matter: identity set first still wins.
	fl = flags.New(map[string]string{
		"LOCK_NAME":     "Identity",
		"OVERRIDE_NAME": "Cosmetic",
	})
	kr, _ = table.Resolve(fl)["plist"].Key("CFBundleDisplayName")
	if kr.Value != "Identity" {
		t.Errorf("identity requirement displaced by cosmetic override: got %q", kr.Value)
	}
}

func TestResolveElementKeysAccumulate(t *testing.T) {
	table := loadTestTable(t)
	fl := flags.New(map[string]string{
		"PUSH_NOTIFY": "true",
		"IS_CAMERA":   "true",
	})
	manifest := table.Resolve(fl)["manifest"]
	if len(manifest.Keys) != 2 {
		t.Fatalf("expected 2 element requirements on one key path, got %d", len(manifest.Keys))
	}
	values := map[string]bool{}
	for _, k := range manifest.Keys {
		values[k.Value] = true
	}
	if !values["android.permission.POST_NOTIFICATIONS"] || !values["android.permission.CAMERA"] {
		t.Errorf("element members lost in merge: %v", values)
	}
}

func TestResolveRecordsUnresolvedFlags(t *testing.T) {
	// A rule activated by one flag whose value template references another.
	crossYAML := `
artifacts:
  plist:
    path: Info.plist
    format: plist
    severity: fatal
rules:
  - flag: ENABLE
    requires:
      - artifact: plist
        keys:
          - key: CFBundleIdentifier
            value: "${BUNDLE_ID}"
            class: identity
`
	cross, err := LoadTable([]byte(crossYAML))
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	req := cross.Resolve(flags.New(map[string]string{"ENABLE": "true"}))["plist"]
	if len(req.Unresolved) != 1 || req.Unresolved[0] != "BUNDLE_ID" {
		t.Errorf("Unresolved = %v, want [BUNDLE_ID]", req.Unresolved)
	}
	if _, ok := req.Key("CFBundleIdentifier"); ok {
		t.Error("unresolvable key must not appear in requirements")
	}
}

func TestDefaultTableLoadsAndResolves(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable failed: %v", err)
	}
	if _, err := table.Order(); err != nil {
		t.Fatalf("embedded table has a dependency cycle: %v", err)
	}

	fl := flags.New(map[string]string{
		"BUNDLE_ID":    "com.example.app",
		"APP_NAME":     "Example",
		"VERSION_NAME": "1.2.3",
		"VERSION_CODE": "42",
		"PUSH_NOTIFY":  "true",
		"IS_CAMERA":    "true",
	})
	reqs := table.Resolve(fl)
	if kr, ok := reqs["ios-info-plist"].Key("CFBundleIdentifier"); !ok || kr.Value != "com.example.app" {
		t.Errorf("bundle id requirement missing or wrong: %+v", kr)
	}
	if _, ok := reqs["firebase-ios-config"].Key("GOOGLE_APP_ID"); !ok {
		t.Error("PUSH_NOTIFY should require firebase config keys")
	}
	for _, id := range []string{"ios-info-plist", "android-manifest", "firebase-ios-config", "env-config"} {
		if len(reqs[id].Unresolved) != 0 {
			t.Errorf("artifact %s has unresolved flags: %v", id, reqs[id].Unresolved)
		}
	}
}
