// Package script resolves baseline and migration SQL scripts from a script
// root and splits them into statements.
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrScriptNotFound is returned when a descriptor references a script that
// does not exist under the script root.
var ErrScriptNotFound = errors.New("script not found")

const (
	baselineDir  = "schema"
	migrationDir = "migration"
)

// Script is a resolved script resource.
type Script struct {
	// Name is the path relative to the script root, e.g. "schema/core/orders.sql".
	Name    string
	Content string
	Dialect Dialect
}

// Checksum returns the hex encoded SHA-256 of the script content.
func (s *Script) Checksum() string {
	sum := sha256.Sum256([]byte(s.Content))
	return hex.EncodeToString(sum[:])
}

// Statements returns the script's statements in document order.
func (s *Script) Statements() []string {
	return Split(s.Content, s.Dialect)
}

// Source resolves scripts relative to a script root.
type Source struct {
	root    fs.FS
	dialect Dialect
}

// NewSource creates a Source over root. Scripts split with the Standard
// dialect until WithDialect picks another one.
func NewSource(root fs.FS) *Source {
	return &Source{root: root}
}

// WithDialect returns a Source over the same root whose scripts split with
// dialect.
func (s *Source) WithDialect(dialect Dialect) *Source {
	return &Source{root: s.root, dialect: dialect}
}

// Baseline resolves the baseline script of a definition path.
func (s *Source) Baseline(definitionPath string) (*Script, error) {
	return s.open(baselineDir, definitionPath)
}

// Migration resolves an incremental migration script.
func (s *Source) Migration(migrationPath string) (*Script, error) {
	return s.open(migrationDir, migrationPath)
}

func (s *Source) open(dir, p string) (*Script, error) {
	name := path.Join(dir, strings.TrimPrefix(path.Clean("/"+p), "/"))

	data, err := fs.ReadFile(s.root, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
		}
		return nil, fmt.Errorf("failed to read script %s: %w", name, err)
	}

	return &Script{Name: name, Content: string(data), Dialect: s.dialect}, nil
}
