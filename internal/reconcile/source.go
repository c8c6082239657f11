/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/fulmenhq/reconform/internal/assets"
)

// sourceReconciler repairs generated Dart configuration classes. Keys name
// static const fields; repairs rewrite or insert whole field declarations,
// never partial expressions.
type sourceReconciler struct{}

func init() {
	RegisterReconciler(&sourceReconciler{})
}

func (r *sourceReconciler) Format() Format { return FormatGeneratedSource }

var (
	classOpenRe = regexp.MustCompile(`(?m)^class\s+\w+\s*\{`)
	fieldRe     = regexp.MustCompile(`^\s*static\s+const\s+(String|bool|int)\s+(\w+)\s*=\s*(.+?);\s*$`)
)

type sourceField struct {
	line     int
	dartType string
	raw      string
}

func parseSource(data []byte) (lines []string, fields map[string]sourceField, ok bool) {
	if len(data) == 0 {
		return nil, nil, false
	}
	text := string(data)
	if !classOpenRe.MatchString(text) {
		return nil, nil, false
	}
	if !strings.Contains(text, "}") {
		return nil, nil, false
	}
	lines = strings.Split(text, "\n")
	fields = make(map[string]sourceField)
	for i, line := range lines {
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields[m[2]] = sourceField{line: i, dartType: m[1], raw: m[3]}
	}
	return lines, fields, true
}

func (r *sourceReconciler) ValidateSyntax(data []byte) bool {
	_, _, ok := parseSource(data)
	return ok
}

func (r *sourceReconciler) ValidateKeys(data []byte, req *Requirement) []MissingKey {
	_, fields, ok := parseSource(data)
	if !ok {
		return []MissingKey{{Reason: "artifact is not a parsable config class"}}
	}
	var missing []MissingKey
	for _, kr := range req.Keys {
		if mk := checkSourceKey(fields, kr); mk != nil {
			missing = append(missing, *mk)
		}
	}
	return missing
}

func checkSourceKey(fields map[string]sourceField, kr KeyRequirement) *MissingKey {
	name := kr.Key.String()
	f, ok := fields[name]
	if !ok {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "absent"}
	}
	if f.dartType != dartType(kr.Type) {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: f.dartType, Reason: "wrong type"}
	}
	if !kr.HasValue {
		return nil
	}
	got, ok := dartFieldValue(f)
	if !ok {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: f.raw, Reason: "unreadable literal"}
	}
	if got != kr.Value {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: got, Reason: "value mismatch"}
	}
	return nil
}

func dartType(t ValueType) string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	default:
		return "String"
	}
}

// dartFieldValue decodes a field initializer back to its flag-table form.
// Only plain literals are readable; anything computed fails the comparison
// and gets rewritten on reconcile.
func dartFieldValue(f sourceField) (string, bool) {
	raw := strings.TrimSpace(f.raw)
	switch f.dartType {
	case "bool":
		if raw == "true" || raw == "false" {
			return raw, true
		}
		return "", false
	case "int":
		if _, err := strconv.Atoi(raw); err != nil {
			return "", false
		}
		return raw, true
	default:
		if len(raw) < 2 {
			return "", false
		}
		q := raw[0]
		if (q != '\'' && q != '"') || raw[len(raw)-1] != q {
			return "", false
		}
		return unescapeDart(raw[1 : len(raw)-1]), true
	}
}

func unescapeDart(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func escapeDart(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `$`, `\$`)
	return r.Replace(s)
}

func dartLiteral(kr KeyRequirement) string {
	switch kr.Type {
	case TypeBool, TypeInt:
		return kr.Value
	default:
		return "'" + escapeDart(kr.Value) + "'"
	}
}

func (r *sourceReconciler) Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error) {
	lines, fields, ok := parseSource(data)
	if !ok {
		tpl, found := assets.GetTemplate("env_config.dart")
		if !found {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "config class template unavailable"}
		}
		lines, fields, ok = parseSource(tpl)
		if !ok {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "config class template is invalid"}
		}
	}

	for _, kr := range req.Keys {
		if checkSourceKey(fields, kr) == nil {
			continue
		}
		decl := "  static const " + dartType(kr.Type) + " " + kr.Key.String() + " = " + dartLiteral(kr) + ";"
		if f, exists := fields[kr.Key.String()]; exists {
			lines[f.line] = decl
			continue
		}
		insert := closingBraceLine(lines)
		if insert < 0 {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "config class has no closing brace"}
		}
		lines = append(lines[:insert], append([]string{decl}, lines[insert:]...)...)
		// Reindex fields below the insertion point.
		for name, f := range fields {
			if f.line >= insert {
				f.line++
				fields[name] = f
			}
		}
		fields[kr.Key.String()] = sourceField{line: insert, dartType: dartType(kr.Type)}
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// closingBraceLine finds the last line holding only the class's closing brace.
func closingBraceLine(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "}" {
			return i
		}
	}
	return -1
}
