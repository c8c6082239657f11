/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/fulmenhq/reconform/internal/assets"
	"github.com/fulmenhq/reconform/pkg/keypath"
	"github.com/fulmenhq/reconform/pkg/schema"
)

const catalogSchemaName = "asset-catalog.schema.json"

// catalogReconciler repairs asset-catalog Contents.json files. Keys are JSON
// pointers; structural shape is additionally held to the embedded catalog
// schema so a repaired file is always loadable by the asset pipeline.
type catalogReconciler struct{}

func init() {
	RegisterReconciler(&catalogReconciler{})
}

func (r *catalogReconciler) Format() Format { return FormatJSONCatalog }

func parseCatalog(data []byte) (map[string]interface{}, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func (r *catalogReconciler) ValidateSyntax(data []byte) bool {
	_, ok := parseCatalog(data)
	return ok
}

func (r *catalogReconciler) ValidateKeys(data []byte, req *Requirement) []MissingKey {
	doc, ok := parseCatalog(data)
	if !ok {
		return []MissingKey{{Reason: "artifact is not a JSON object"}}
	}

	var missing []MissingKey
	if v, err := schema.ForEmbedded(catalogSchemaName); err == nil {
		res := v.Validate(data)
		for _, e := range res.Errors {
			missing = append(missing, MissingKey{
				Key:    keypath.Path(e.Path),
				Reason: "schema: " + e.Message,
			})
		}
	}

	for _, kr := range req.Keys {
		if mk := checkCatalogKey(doc, kr); mk != nil {
			missing = append(missing, *mk)
		}
	}
	return missing
}

func checkCatalogKey(doc map[string]interface{}, kr KeyRequirement) *MissingKey {
	val, found := resolvePointer(doc, kr.Key.Segments())
	if !found {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "absent"}
	}
	if !kr.HasValue {
		return nil
	}
	switch kr.Type {
	case TypeString:
		s, ok := val.(string)
		if !ok {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "wrong type"}
		}
		if s != kr.Value {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: s, Reason: "value mismatch"}
		}
	case TypeInt:
		n, ok := val.(float64)
		want, _ := strconv.Atoi(kr.Value)
		if !ok || n != float64(int(n)) {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "wrong type"}
		}
		if int(n) != want {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: strconv.Itoa(int(n)), Reason: "value mismatch"}
		}
	case TypeBool:
		b, ok := val.(bool)
		want, _ := strconv.ParseBool(kr.Value)
		if !ok {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "wrong type"}
		}
		if b != want {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: strconv.FormatBool(b), Reason: "value mismatch"}
		}
	default:
		return &MissingKey{Key: kr.Key, Reason: "unsupported value type for catalog"}
	}
	return nil
}

func resolvePointer(node interface{}, segs []string) (interface{}, bool) {
	cur := node
	for _, seg := range segs {
		switch v := cur.(type) {
		case map[string]interface{}:
			child, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = child
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func (r *catalogReconciler) Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error) {
	doc, ok := parseCatalog(data)
	if !ok {
		tpl, found := assets.GetTemplate("contents.json")
		if !found {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "catalog template unavailable"}
		}
		doc, ok = parseCatalog(tpl)
		if !ok {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "catalog template is invalid"}
		}
	}

	for _, kr := range req.Keys {
		if checkCatalogKey(doc, kr) == nil {
			continue
		}
		val, err := catalogValue(kr)
		if err != nil {
			return nil, err
		}
		patched, err := setPointer(doc, kr.Key.Segments(), val)
		if err != nil {
			return nil, err
		}
		doc, _ = patched.(map[string]interface{})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func catalogValue(kr KeyRequirement) (interface{}, error) {
	switch kr.Type {
	case TypeInt:
		n, err := strconv.Atoi(kr.Value)
		if err != nil {
			return nil, &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "non-integer value for " + kr.Key.String()}
		}
		return n, nil
	case TypeBool:
		b, err := strconv.ParseBool(kr.Value)
		if err != nil {
			return nil, &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "non-boolean value for " + kr.Key.String()}
		}
		return b, nil
	default:
		return kr.Value, nil
	}
}

// setPointer writes val at the pointer path, creating intermediate containers
// as needed. A numeric segment one past the end of a slice appends.
func setPointer(node interface{}, segs []string, val interface{}) (interface{}, error) {
	if len(segs) == 0 {
		return val, nil
	}
	seg := segs[0]

	if node == nil {
		if _, err := strconv.Atoi(seg); err == nil {
			node = []interface{}{}
		} else {
			node = map[string]interface{}{}
		}
	}

	switch v := node.(type) {
	case map[string]interface{}:
		child, err := setPointer(v[seg], segs[1:], val)
		if err != nil {
			return nil, err
		}
		v[seg] = child
		return v, nil
	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx > len(v) {
			return nil, &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "pointer index " + seg + " out of range"}
		}
		if idx == len(v) {
			child, err := setPointer(nil, segs[1:], val)
			if err != nil {
				return nil, err
			}
			return append(v, child), nil
		}
		child, err := setPointer(v[idx], segs[1:], val)
		if err != nil {
			return nil, err
		}
		v[idx] = child
		return v, nil
	default:
		return nil, &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "pointer segment " + seg + " addresses a scalar"}
	}
}
