/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"strconv"

	"github.com/fulmenhq/reconform/pkg/imaging"
)

// iconReconciler validates and conforms PNG launcher icons. Its keys are
// derived properties of the decoded image (width, height, opaque) rather
// than structural locators.
type iconReconciler struct{}

func init() {
	RegisterReconciler(&iconReconciler{})
}

func (r *iconReconciler) Format() Format { return FormatPNGIcon }

func (r *iconReconciler) ValidateSyntax(data []byte) bool {
	_, err := imaging.Measure(data)
	return err == nil
}

func (r *iconReconciler) ValidateKeys(data []byte, req *Requirement) []MissingKey {
	info, err := imaging.Measure(data)
	if err != nil {
		return []MissingKey{{Reason: "artifact is not a decodable PNG"}}
	}
	var missing []MissingKey
	for _, kr := range req.Keys {
		if mk := checkIconKey(info, kr); mk != nil {
			missing = append(missing, *mk)
		}
	}
	return missing
}

func checkIconKey(info imaging.Info, kr KeyRequirement) *MissingKey {
	switch kr.Key.String() {
	case "width":
		want, _ := strconv.Atoi(kr.Value)
		if kr.HasValue && info.Width != want {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: strconv.Itoa(info.Width), Reason: "dimension mismatch"}
		}
	case "height":
		want, _ := strconv.Atoi(kr.Value)
		if kr.HasValue && info.Height != want {
			return &MissingKey{Key: kr.Key, Expected: kr.Value, Actual: strconv.Itoa(info.Height), Reason: "dimension mismatch"}
		}
	case "opaque":
		want, _ := strconv.ParseBool(kr.Value)
		if !kr.HasValue {
			want = true
		}
		if want && info.HasAlpha {
			return &MissingKey{Key: kr.Key, Expected: "true", Actual: "false", Reason: "image carries an alpha channel"}
		}
	default:
		return &MissingKey{Key: kr.Key, Reason: "unknown icon property"}
	}
	return nil
}

func (r *iconReconciler) Reconcile(ctx context.Context, data []byte, req *Requirement) ([]byte, error) {
	if len(data) == 0 {
		return nil, &Failure{Kind: FailureAcquisition, Reason: "no icon source available"}
	}
	info, err := imaging.Measure(data)
	if err != nil {
		return nil, &Failure{Kind: FailureSyntaxCorruption, Reason: "icon source is not a decodable PNG"}
	}

	width := info.Width
	if w, ok := req.IntKey("width"); ok {
		width = w
	}
	height := info.Height
	if h, ok := req.IntKey("height"); ok {
		height = h
	}
	opaque := false
	if k, ok := req.Key("opaque"); ok {
		opaque = true
		if k.HasValue {
			opaque, _ = strconv.ParseBool(k.Value)
		}
	}

	out, _, err := imaging.Conform(data, width, height, opaque)
	if err != nil {
		return nil, &Failure{Kind: FailureRequirementUnsatisfiable, Reason: "icon conform failed: " + err.Error()}
	}
	return out, nil
}
