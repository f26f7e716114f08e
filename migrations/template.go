package migrations

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
)

// DescriptorTemplate scaffolds a YAML descriptor with one definition
const DescriptorTemplate = `id: {{.ModuleID}}
name: {{.ModuleName}}
{{- if .DependsOn}}
depends-on: [{{join .DependsOn ", "}}]
{{- end}}
definitions:
  - name: {{.DefinitionName}}
    path: {{.Path}}
    tables: [{{join .Tables ", "}}]
    migrations: []
`

// BaselineTemplate scaffolds the baseline script the descriptor points at
const BaselineTemplate = `-- baseline for {{.ModuleID}}/{{.DefinitionName}}
{{- range .Tables}}
CREATE TABLE {{.}} (
    id BIGINT PRIMARY KEY
);
{{- end}}
`

// DescriptorData fills the scaffolding templates
type DescriptorData struct {
	ModuleID       string
	ModuleName     string
	DefinitionName string
	Path           string // baseline script path relative to schema/
	Tables         []string
	DependsOn      []string
}

var templates = template.Must(template.New("descriptor").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(DescriptorTemplate))

func init() {
	template.Must(templates.New("baseline").Parse(BaselineTemplate))
}

// NewDescriptorData derives scaffolding defaults from a module and a
// definition name
func NewDescriptorData(module, definition string) DescriptorData {
	moduleID := SanitizeID(module)
	name := SanitizeID(definition)
	return DescriptorData{
		ModuleID:       moduleID,
		ModuleName:     module,
		DefinitionName: name,
		Path:           moduleID + "/" + name + ".sql",
		Tables:         []string{name},
	}
}

// RenderDescriptor writes the YAML descriptor
func RenderDescriptor(w io.Writer, data DescriptorData) error {
	return render(w, "descriptor", data)
}

// RenderBaseline writes the baseline script skeleton
func RenderBaseline(w io.Writer, data DescriptorData) error {
	return render(w, "baseline", data)
}

func render(w io.Writer, name string, data DescriptorData) error {
	if data.ModuleID == "" || data.DefinitionName == "" || data.Path == "" {
		return fmt.Errorf("module id, definition name and path are required")
	}
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

var invalidIDChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeID lowercases name and replaces anything outside [a-z0-9_] with
// underscores
func SanitizeID(name string) string {
	result := invalidIDChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	result = strings.Trim(result, "_")
	if result == "" {
		return "module"
	}
	// Ensure it doesn't start with a number
	if result[0] >= '0' && result[0] <= '9' {
		result = "_" + result
	}
	return result
}
