/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulmenhq/reconform/internal/assets"
	"github.com/fulmenhq/reconform/pkg/flags"
	"github.com/fulmenhq/reconform/pkg/keypath"
	"github.com/fulmenhq/reconform/pkg/safeio"
	"gopkg.in/yaml.v3"
)

// Table is the static dependency table: flag -> implied requirements,
// expressed as data so new flags and artifacts are additive. Requirements
// are pure functions of the flag set; nothing here inspects artifact content.
type Table struct {
	Version   int                     `yaml:"version"`
	Artifacts map[string]ArtifactSpec `yaml:"artifacts"`
	Rules     []Rule                  `yaml:"rules"`
}

// ArtifactSpec declares one managed artifact.
type ArtifactSpec struct {
	Path          string   `yaml:"path"`
	Format        Format   `yaml:"format"`
	Severity      Severity `yaml:"severity"`
	SourceFlag    string   `yaml:"source_flag"`
	FallbackAsset string   `yaml:"fallback_asset"`
	DependsOn     []string `yaml:"depends_on"`
}

// Rule maps one feature flag to the key requirements it implies.
type Rule struct {
	Flag     string            `yaml:"flag"`
	Requires []RuleRequirement `yaml:"requires"`
}

// RuleRequirement is one rule's contribution to one artifact.
type RuleRequirement struct {
	Artifact string    `yaml:"artifact"`
	Keys     []KeySpec `yaml:"keys"`
}

// KeySpec is a required key path with an optional value template. A nil
// Value means presence-only: the key must exist with the declared type, but
// no particular value is demanded.
type KeySpec struct {
	Key   keypath.Path  `yaml:"key"`
	Value *string       `yaml:"value"`
	Type  ValueType     `yaml:"type"`
	Class PriorityClass `yaml:"class"`
}

// KeyRequirement is a KeySpec with its value template resolved against the
// active flag set.
type KeyRequirement struct {
	Key      keypath.Path
	Value    string
	HasValue bool
	Type     ValueType
	Class    PriorityClass
}

// Requirement is the merged, collision-resolved requirement set for one
// artifact in one run.
type Requirement struct {
	Artifact string
	Spec     ArtifactSpec
	Keys     []KeyRequirement
	// Unresolved lists flags referenced by value templates that the run's
	// flag set does not supply. A non-empty list makes the requirement
	// unsatisfiable.
	Unresolved []string
}

// Key returns the resolved requirement for a key path, if present.
func (r *Requirement) Key(p keypath.Path) (KeyRequirement, bool) {
	for _, k := range r.Keys {
		if k.Key == p {
			return k, true
		}
	}
	return KeyRequirement{}, false
}

// IntKey returns the value of an int-typed key, when present and resolvable.
func (r *Requirement) IntKey(p keypath.Path) (int, bool) {
	k, ok := r.Key(p)
	if !ok || !k.HasValue {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(k.Value, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// LoadTable parses and validates a requirement table.
func LoadTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse requirement table: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultTable returns the embedded requirement table.
func DefaultTable() (*Table, error) {
	return LoadTable(assets.DefaultRequirements())
}

func (t *Table) validate() error {
	if len(t.Artifacts) == 0 {
		return errors.New("requirement table declares no artifacts")
	}
	validFormats := map[Format]bool{
		FormatPlist: true, FormatAndroidManifest: true, FormatJSONCatalog: true,
		FormatGeneratedSource: true, FormatPNGIcon: true,
	}
	for id, spec := range t.Artifacts {
		if spec.Path == "" {
			return fmt.Errorf("artifact %s: missing path", id)
		}
		// Artifact paths are joined onto the run target; confine them so an
		// operator-supplied table cannot write outside it.
		if filepath.IsAbs(spec.Path) {
			return fmt.Errorf("artifact %s: path %q must be relative to the target", id, spec.Path)
		}
		if _, err := safeio.CleanUserPath(spec.Path); err != nil {
			return fmt.Errorf("artifact %s: path %q: %w", id, spec.Path, err)
		}
		if !validFormats[spec.Format] {
			return fmt.Errorf("artifact %s: unknown format %q", id, spec.Format)
		}
		switch spec.Severity {
		case SeverityFatal, SeverityWarn:
		default:
			return fmt.Errorf("artifact %s: unknown severity %q", id, spec.Severity)
		}
		for _, dep := range spec.DependsOn {
			if _, ok := t.Artifacts[dep]; !ok {
				return fmt.Errorf("artifact %s: depends on undeclared artifact %q", id, dep)
			}
		}
	}
	for _, rule := range t.Rules {
		if rule.Flag == "" {
			return errors.New("rule with empty flag name")
		}
		for _, req := range rule.Requires {
			if _, ok := t.Artifacts[req.Artifact]; !ok {
				return fmt.Errorf("rule %s: references undeclared artifact %q", rule.Flag, req.Artifact)
			}
			for _, k := range req.Keys {
				if k.Key == "" {
					return fmt.Errorf("rule %s: artifact %s has a key with empty path", rule.Flag, req.Artifact)
				}
				switch k.Type {
				case "", TypeString, TypeBool, TypeInt, TypeArray, TypeElement:
				default:
					return fmt.Errorf("rule %s: key %s has unknown type %q", rule.Flag, k.Key, k.Type)
				}
				switch k.Class {
				case "", ClassIdentity, ClassPermission, ClassCapability, ClassCosmetic:
				default:
					return fmt.Errorf("rule %s: key %s has unknown class %q", rule.Flag, k.Key, k.Class)
				}
			}
		}
	}
	return nil
}

// ruleActive decides whether a flag activates its rule. Boolean spellings
// use their truth value; any other non-empty value counts as active.
func ruleActive(fl *flags.Set, name string) bool {
	v, ok := fl.String(name)
	if !ok || strings.TrimSpace(v) == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}

// Resolve expands the table against a flag set into per-artifact merged
// requirements. Every declared artifact gets an entry; artifacts untouched
// by any active rule have an empty key list (the runner skips them).
func (t *Table) Resolve(fl *flags.Set) map[string]*Requirement {
	out := make(map[string]*Requirement, len(t.Artifacts))
	for id, spec := range t.Artifacts {
		out[id] = &Requirement{Artifact: id, Spec: spec}
	}

	// Table order is significant: within one priority class the later rule
	// wins a key collision.
	for _, rule := range t.Rules {
		if !ruleActive(fl, rule.Flag) {
			continue
		}
		for _, rr := range rule.Requires {
			req := out[rr.Artifact]
			for _, ks := range rr.Keys {
				kr := KeyRequirement{
					Key:   ks.Key,
					Type:  ks.Type,
					Class: ks.Class,
				}
				if kr.Type == "" {
					kr.Type = TypeString
				}
				if kr.Class == "" {
					kr.Class = ClassCapability
				}
				if ks.Value != nil {
					expanded, err := fl.Expand(*ks.Value)
					if err != nil {
						var missing *flags.MissingFlagsError
						if errors.As(err, &missing) {
							req.Unresolved = mergeNames(req.Unresolved, missing.Names)
							continue
						}
						req.Unresolved = mergeNames(req.Unresolved, []string{rule.Flag})
						continue
					}
					kr.Value = expanded
					kr.HasValue = true
				}
				mergeKey(req, kr)
			}
		}
	}
	return out
}

// mergeKey applies the collision policy: a higher priority class replaces a
// lower one; an equal class means the newcomer (later rule) wins. Array and
// element requirements never collide unless both path and member value match.
func mergeKey(req *Requirement, kr KeyRequirement) {
	for i, existing := range req.Keys {
		if existing.Key != kr.Key {
			continue
		}
		if (existing.Type == TypeArray || existing.Type == TypeElement) &&
			existing.Value != kr.Value {
			continue
		}
		if kr.Class.rank() >= existing.Class.rank() {
			req.Keys[i] = kr
		}
		return
	}
	req.Keys = append(req.Keys, kr)
}

func mergeNames(existing []string, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, n := range existing {
		seen[n] = true
	}
	for _, n := range add {
		if !seen[n] {
			existing = append(existing, n)
			seen[n] = true
		}
	}
	sort.Strings(existing)
	return existing
}
