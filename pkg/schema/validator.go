// Package schema wraps gojsonschema for validating JSON artifacts against
// the engine's embedded schemas. Compiled schemas are cached by name so
// repeated runs never recompile.
package schema

import (
	"fmt"
	"sync"

	"github.com/fulmenhq/reconform/internal/assets"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a single schema violation.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Result holds the outcome of one schema validation.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator wraps a compiled schema for repeated validation.
type Validator struct {
	schema *gojsonschema.Schema
}

var (
	regMu    sync.Mutex
	registry = make(map[string]*Validator)
)

// ForEmbedded returns a Validator for an embedded schema file, compiling it
// on first use.
func ForEmbedded(name string) (*Validator, error) {
	regMu.Lock()
	defer regMu.Unlock()
	if v, ok := registry[name]; ok {
		return v, nil
	}
	data, ok := assets.GetSchema(name)
	if !ok {
		return nil, fmt.Errorf("unknown embedded schema: %s", name)
	}
	v, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded schema %s: %w", name, err)
	}
	registry[name] = v
	return v, nil
}

// FromBytes compiles a schema from raw JSON.
func FromBytes(data []byte) (*Validator, error) {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, err
	}
	return &Validator{schema: sch}, nil
}

// Validate checks a JSON document against the schema. Parse failures are
// reported as an invalid Result, never as an error ascending to the caller.
func (v *Validator) Validate(document []byte) Result {
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return Result{Valid: false, Errors: []ValidationError{{Message: err.Error()}}}
	}
	if res.Valid() {
		return Result{Valid: true}
	}
	out := Result{Valid: false}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Path:    e.Field(),
			Message: e.Description(),
		})
	}
	return out
}
