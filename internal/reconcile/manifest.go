/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"strings"

	"github.com/beevik/etree"
	"github.com/fulmenhq/reconform/internal/assets"
	"github.com/fulmenhq/reconform/pkg/keypath"
)

const androidNamespace = "http://schemas.android.com/apk/res/android"

// manifestReconciler repairs AndroidManifest.xml files. Attribute keys use
// the element/path@attr form; element keys assert membership of a repeated
// element identified by its android:name attribute.
type manifestReconciler struct{}

func init() {
	RegisterReconciler(&manifestReconciler{})
}

func (r *manifestReconciler) Format() Format { return FormatAndroidManifest }

func parseManifest(data []byte) (*etree.Document, *etree.Element, bool) {
	if len(data) == 0 {
		return nil, nil, false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, nil, false
	}
	root := doc.Root()
	if root == nil || root.Tag != "manifest" {
		return nil, nil, false
	}
	return doc, root, true
}

func (r *manifestReconciler) ValidateSyntax(data []byte) bool {
	_, _, ok := parseManifest(data)
	return ok
}

// findManifestElement walks an element path whose first segment names the
// document root. Returns nil when any segment is absent.
func findManifestElement(root *etree.Element, path keypath.Path) *etree.Element {
	segs := path.Segments()
	if len(segs) == 0 || segs[0] != root.Tag {
		return nil
	}
	cur := root
	for _, seg := range segs[1:] {
		cur = cur.SelectElement(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func ensureManifestElement(root *etree.Element, path keypath.Path) *etree.Element {
	segs := path.Segments()
	if len(segs) == 0 || segs[0] != root.Tag {
		return nil
	}
	cur := root
	for _, seg := range segs[1:] {
		next := cur.SelectElement(seg)
		if next == nil {
			next = cur.CreateElement(seg)
		}
		cur = next
	}
	return cur
}

func (r *manifestReconciler) ValidateKeys(data []byte, req *Requirement) []MissingKey {
	_, root, ok := parseManifest(data)
	if !ok {
		return []MissingKey{{Reason: "artifact is not a parsable manifest"}}
	}
	var missing []MissingKey
	for _, kr := range req.Keys {
		if mk := checkManifestKey(root, kr); mk != nil {
			missing = append(missing, *mk)
		}
	}
	return missing
}

func checkManifestKey(root *etree.Element, kr KeyRequirement) *MissingKey {
	elemPath, attr, ok := kr.Key.Attribute()
	if !ok {
		return &MissingKey{Key: kr.Key, Reason: "key path has no @attribute"}
	}

	if kr.Type == TypeElement {
		// Membership of a repeated element, e.g. one uses-permission per
		// granted permission.
		segs := elemPath.Segments()
		if len(segs) < 2 {
			return &MissingKey{Key: kr.Key, Reason: "element key path too short"}
		}
		parent := findManifestElement(root, keypath.Join(segs[:len(segs)-1]))
		if parent == nil {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "parent element absent"}
		}
		tag := segs[len(segs)-1]
		for _, el := range parent.SelectElements(tag) {
			if el.SelectAttrValue(attr, "") == kr.Value {
				return nil
			}
		}
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "element absent"}
	}

	el := findManifestElement(root, elemPath)
	if el == nil {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "element absent"}
	}
	got := el.SelectAttr(attr)
	if got == nil {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Reason: "attribute absent"}
	}
	if kr.HasValue && got.Value != kr.Value {
		return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: got.Value, Reason: "value mismatch"}
	}
	return nil
}

func (r *manifestReconciler) Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error) {
	doc, root, ok := parseManifest(data)
	if !ok {
		tpl, found := assets.GetTemplate("androidmanifest.xml")
		if !found {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "manifest template unavailable"}
		}
		doc, root, ok = parseManifest(tpl)
		if !ok {
			return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "manifest template is invalid"}
		}
	}

	for _, kr := range req.Keys {
		if checkManifestKey(root, kr) == nil {
			continue
		}
		if err := setManifestKey(root, kr); err != nil {
			return nil, err
		}
	}

	doc.Indent(4)
	return doc.WriteToBytes()
}

func setManifestKey(root *etree.Element, kr KeyRequirement) error {
	elemPath, attr, ok := kr.Key.Attribute()
	if !ok {
		return &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "key path " + kr.Key.String() + " has no @attribute"}
	}
	if strings.HasPrefix(attr, "android:") {
		ensureAndroidNamespace(root)
	}

	if kr.Type == TypeElement {
		segs := elemPath.Segments()
		if len(segs) < 2 {
			return &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "element key path " + kr.Key.String() + " too short"}
		}
		parent := ensureManifestElement(root, keypath.Join(segs[:len(segs)-1]))
		if parent == nil {
			return &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "key path " + kr.Key.String() + " does not start at the manifest root"}
		}
		el := parent.CreateElement(segs[len(segs)-1])
		el.CreateAttr(attr, kr.Value)
		return nil
	}

	el := ensureManifestElement(root, elemPath)
	if el == nil {
		return &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "key path " + kr.Key.String() + " does not start at the manifest root"}
	}
	el.CreateAttr(attr, kr.Value)
	return nil
}

func ensureAndroidNamespace(root *etree.Element) {
	if root.SelectAttr("xmlns:android") == nil {
		root.CreateAttr("xmlns:android", androidNamespace)
	}
}
