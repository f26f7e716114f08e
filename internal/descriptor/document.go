package descriptor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/logger"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument marks descriptors that parse but fail validation.
var ErrInvalidDocument = errors.New("invalid descriptor document")

// Document is the decoded form of one descriptor source. The same shape is
// read from XML (attributes and repeated child elements) and YAML.
type Document struct {
	ID          string               `xml:"id,attr" yaml:"id"`
	Name        string               `xml:"name,attr" yaml:"name"`
	Order       *int                 `xml:"order,attr" yaml:"order"`
	DependsOn   []string             `xml:"depends-on" yaml:"depends-on"`
	Definitions []DefinitionDocument `xml:"definition" yaml:"definitions"`
}

// DefinitionDocument is a <definition> element.
type DefinitionDocument struct {
	Name       string              `xml:"name,attr" yaml:"name"`
	Path       string              `xml:"path,attr" yaml:"path"`
	Order      *int                `xml:"order,attr" yaml:"order"`
	Database   string              `xml:"database,attr" yaml:"database"`
	Tables     []string            `xml:"table" yaml:"tables"`
	DependsOn  []string            `xml:"depends-on" yaml:"depends-on"`
	Migrations []MigrationDocument `xml:"migration" yaml:"migrations"`
}

// MigrationDocument is a <migration> element. Condition is required but may
// be empty, so a nil pointer distinguishes "missing" from "".
type MigrationDocument struct {
	Path      string  `xml:"path,attr" yaml:"path"`
	Condition *string `xml:"condition,attr" yaml:"condition"`
}

// UnmarshalYAML decodes a migration entry. A condition key with no value
// (`condition:`) is the empty condition, not a missing one.
func (m *MigrationDocument) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Path      string  `yaml:"path"`
		Condition *string `yaml:"condition"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	m.Path, m.Condition = raw.Path, raw.Condition
	if m.Condition == nil && node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "condition" {
				empty := ""
				m.Condition = &empty
				break
			}
		}
	}
	return nil
}

// Parse decodes a descriptor, choosing the codec from the name's extension.
func Parse(name string, r io.Reader) (*Document, error) {
	var doc Document

	switch strings.ToLower(path.Ext(name)) {
	case ".xml":
		if err := xml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode XML descriptor %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode YAML descriptor %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported descriptor format: %s", name)
	}

	return &doc, nil
}

// IsDescriptor reports whether a file name has a supported descriptor extension.
func IsDescriptor(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml", ".yaml", ".yml":
		return true
	}
	return false
}

// Build turns a document into its module and definitions. sequence is the
// document's load position and becomes the module order when none is
// declared. Definitions bound to another database type are left out.
func (doc *Document) Build(source string, sequence int, databaseType string) (*Module, []*Definition, error) {
	databaseType = NormalizeDatabase(databaseType)
	moduleID := strings.TrimSpace(doc.ID)
	if moduleID == "" {
		return nil, nil, fmt.Errorf("%w: %s: module id is required", ErrInvalidDocument, source)
	}

	module := &Module{
		ID:       moduleID,
		Name:     strings.TrimSpace(doc.Name),
		Order:    sequence,
		Source:   source,
		Sequence: sequence,
	}
	if module.Name == "" {
		module.Name = moduleID
	}
	if doc.Order != nil {
		module.Order = *doc.Order
	}
	for _, dep := range doc.DependsOn {
		if dep = strings.TrimSpace(dep); dep != "" {
			module.DependsOn = append(module.DependsOn, dep)
		}
	}

	definitions := make([]*Definition, 0, len(doc.Definitions))
	for i, dd := range doc.Definitions {
		name := strings.TrimSpace(dd.Name)
		defPath := strings.TrimSpace(dd.Path)
		if name == "" {
			return nil, nil, fmt.Errorf("%w: %s: definition #%d: name is required", ErrInvalidDocument, source, i+1)
		}
		if defPath == "" {
			return nil, nil, fmt.Errorf("%w: %s: definition %s: path is required", ErrInvalidDocument, source, name)
		}

		database := NormalizeDatabase(dd.Database)
		if database != "" && databaseType != "" && database != databaseType {
			logger.Warnf("%s: skipping definition %s: bound to database %s, target is %s",
				source, name, database, databaseType)
			continue
		}
		dbType := databaseType
		if dbType == "" {
			dbType = database
		}

		def := &Definition{
			ID:           DefinitionID(moduleID, defPath, dbType),
			Name:         name,
			Path:         defPath,
			DatabaseType: dbType,
			Tables:       trimAll(dd.Tables),
			DependsOn:    trimAll(dd.DependsOn),
			LocalOrder:   i,
			Module:       module,
		}
		if dd.Order != nil {
			def.LocalOrder = *dd.Order
		}

		for j, md := range dd.Migrations {
			migPath := strings.TrimSpace(md.Path)
			if migPath == "" {
				return nil, nil, fmt.Errorf("%w: %s: definition %s: migration #%d: path is required", ErrInvalidDocument, source, name, j+1)
			}
			if md.Condition == nil {
				return nil, nil, fmt.Errorf("%w: %s: definition %s: migration %s: condition is required", ErrInvalidDocument, source, name, migPath)
			}
			def.Migrations = append(def.Migrations, &Migration{
				ID:         MigrationID(def.ID, migPath),
				Path:       migPath,
				Condition:  strings.TrimSpace(*md.Condition),
				Definition: def,
			})
		}

		definitions = append(definitions, def)
	}

	return module, definitions, nil
}

// NormalizeDatabase maps a database name or alias (pg, postgres, mariadb,
// sqlite3) to its backend name. Unknown names are lowercased.
func NormalizeDatabase(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if normalized, err := backends.Normalize(name); err == nil {
		return normalized
	}
	return strings.ToLower(name)
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
