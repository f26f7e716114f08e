package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/toolsascode/schemaflow/internal/descriptor"
)

var (
	// ErrModuleNotFound is returned when a module id is not loaded
	ErrModuleNotFound = errors.New("module not found")
	// ErrDefinitionNotFound is returned when a definition id is not loaded
	ErrDefinitionNotFound = errors.New("definition not found")
)

// Source is one descriptor document
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Discoverer enumerates descriptor sources
type Discoverer interface {
	Discover(ctx context.Context) ([]Source, error)
}

// LoadError reports a descriptor source that could not be loaded. Load
// errors are logged and the source is skipped.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load descriptor %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// DirDiscoverer finds *.xml, *.yaml and *.yml descriptors below Root in an
// fs.FS, in lexical path order.
type DirDiscoverer struct {
	FS   fs.FS
	Root string
}

// NewDirDiscoverer creates a DirDiscoverer. An empty root means the FS root.
func NewDirDiscoverer(fsys fs.FS, root string) *DirDiscoverer {
	if root == "" {
		root = "."
	}
	return &DirDiscoverer{FS: fsys, Root: root}
}

// Discover walks the descriptor tree
func (d *DirDiscoverer) Discover(ctx context.Context) ([]Source, error) {
	var sources []Source

	err := fs.WalkDir(d.FS, d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !descriptor.IsDescriptor(p) {
			return nil
		}

		name := p
		sources = append(sources, Source{
			Name: name,
			Open: func() (io.ReadCloser, error) { return d.FS.Open(name) },
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover descriptors in %s: %w", d.Root, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// StaticDiscoverer returns a fixed list of sources
type StaticDiscoverer []Source

// Discover returns the sources
func (s StaticDiscoverer) Discover(ctx context.Context) ([]Source, error) {
	return s, nil
}
