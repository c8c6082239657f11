// Package assets embeds the engine's built-in resources: the default
// requirement table, the minimal per-format templates reconcilers regenerate
// from, the asset-catalog JSON schema, the HTML report template, and the
// placeholder icon used when a remote logo cannot be acquired.
package assets

import (
	"embed"
	"path"
)

//go:embed embedded_templates
var templatesFS embed.FS

//go:embed embedded_schemas
var schemasFS embed.FS

//go:embed embedded_config/requirements.yaml
var defaultRequirements []byte

// GetTemplate returns an embedded template by file name.
func GetTemplate(name string) ([]byte, bool) {
	data, err := templatesFS.ReadFile(path.Join("embedded_templates", name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// GetSchema returns an embedded JSON schema by file name.
func GetSchema(name string) ([]byte, bool) {
	data, err := schemasFS.ReadFile(path.Join("embedded_schemas", name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// DefaultRequirements returns the built-in requirement table.
func DefaultRequirements() []byte {
	return defaultRequirements
}
