/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"strconv"

	"github.com/beevik/etree"
	"github.com/fulmenhq/reconform/internal/assets"
)

// plistReconciler repairs XML property lists (Info.plist,
// GoogleService-Info.plist). Keys address entries of the top-level dict.
type plistReconciler struct{}

func init() {
	RegisterReconciler(&plistReconciler{})
}

func (r *plistReconciler) Format() Format { return FormatPlist }

func parsePlist(data []byte) (*etree.Document, *etree.Element, bool) {
	if len(data) == 0 {
		return nil, nil, false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, nil, false
	}
	root := doc.Root()
	if root == nil || root.Tag != "plist" {
		return nil, nil, false
	}
	dict := root.SelectElement("dict")
	if dict == nil {
		return nil, nil, false
	}
	return doc, dict, true
}

func (r *plistReconciler) ValidateSyntax(data []byte) bool {
	_, _, ok := parsePlist(data)
	return ok
}

// plistValue returns the value element paired with <key>name</key>. The
// first occurrence wins when a corrupt editor left duplicates.
func plistValue(dict *etree.Element, name string) *etree.Element {
	children := dict.ChildElements()
	for i, el := range children {
		if el.Tag == "key" && el.Text() == name && i+1 < len(children) {
			return children[i+1]
		}
	}
	return nil
}

func (r *plistReconciler) ValidateKeys(data []byte, req *Requirement) []MissingKey {
	_, dict, ok := parsePlist(data)
	if !ok {
		return []MissingKey{{Reason: "artifact is not a parsable plist"}}
	}
	var missing []MissingKey
	for _, kr := range req.Keys {
		if mk := checkPlistKey(dict, kr); mk != nil {
			missing = append(missing, *mk)
		}
	}
	return missing
}

func checkPlistKey(dict *etree.Element, kr KeyRequirement) *MissingKey {
	name := kr.Key.String()
	val := plistValue(dict, name)
	if val == nil {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "absent"}
	}
	switch kr.Type {
	case TypeString:
		if val.Tag != "string" {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Tag, Reason: "wrong type"}
		}
		if kr.HasValue && val.Text() != kr.Value {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Text(), Reason: "value mismatch"}
		}
	case TypeInt:
		if val.Tag != "integer" {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Tag, Reason: "wrong type"}
		}
		if kr.HasValue && val.Text() != kr.Value {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Text(), Reason: "value mismatch"}
		}
	case TypeBool:
		if val.Tag != "true" && val.Tag != "false" {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Tag, Reason: "wrong type"}
		}
		if kr.HasValue {
			want, _ := strconv.ParseBool(kr.Value)
			if val.Tag != boolTag(want) {
				return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Tag, Reason: "value mismatch"}
			}
		}
	case TypeArray:
		if val.Tag != "array" {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: val.Tag, Reason: "wrong type"}
		}
		if kr.HasValue && !plistArrayContains(val, kr.Value) {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "array missing member"}
		}
	default:
		return &MissingKey{Key: kr.Key, Reason: "unsupported value type for plist"}
	}
	return nil
}

func plistArrayContains(arr *etree.Element, member string) bool {
	for _, el := range arr.SelectElements("string") {
		if el.Text() == member {
			return true
		}
	}
	return false
}

func boolTag(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func (r *plistReconciler) Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error) {
	doc, dict, ok := parsePlist(data)
	if !ok {
		tpl, found := assets.GetTemplate("info.plist")
		if !found {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "plist template unavailable"}
		}
		doc, dict, ok = parsePlist(tpl)
		if !ok {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "plist template is invalid"}
		}
	}

	for _, kr := range req.Keys {
		if checkPlistKey(dict, kr) == nil {
			continue
		}
		setPlistKey(dict, kr)
	}

	doc.IndentTabs()
	return doc.WriteToBytes()
}

func setPlistKey(dict *etree.Element, kr KeyRequirement) {
	name := kr.Key.String()
	existing := plistValue(dict, name)

	if existing == nil {
		k := dict.CreateElement("key")
		k.SetText(name)
		dict.AddChild(newPlistValue(kr))
		return
	}

	if kr.Type == TypeArray && existing.Tag == "array" {
		if kr.HasValue && !plistArrayContains(existing, kr.Value) {
			m := existing.CreateElement("string")
			m.SetText(kr.Value)
		}
		return
	}

	// Swap the value element in place so surrounding keys keep their order.
	idx := existing.Index()
	dict.RemoveChild(existing)
	dict.InsertChildAt(idx, newPlistValue(kr))
}

func newPlistValue(kr KeyRequirement) *etree.Element {
	switch kr.Type {
	case TypeBool:
		want, _ := strconv.ParseBool(kr.Value)
		if !kr.HasValue {
			want = true
		}
		return etree.NewElement(boolTag(want))
	case TypeInt:
		el := etree.NewElement("integer")
		el.SetText(kr.Value)
		return el
	case TypeArray:
		el := etree.NewElement("array")
		if kr.HasValue {
			m := el.CreateElement("string")
			m.SetText(kr.Value)
		}
		return el
	default:
		el := etree.NewElement("string")
		el.SetText(kr.Value)
		return el
	}
}
