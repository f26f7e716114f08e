package registry

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/descriptor"
)

const coreDescriptor = `<module id="core" name="Core" order="0">
  <definition name="customers" path="core/customers.sql">
    <table>customers</table>
  </definition>
  <definition name="orders" path="core/orders.sql">
    <table>orders</table>
    <migration path="core/0001_orders_status.sql" condition="column orders.status exists"/>
  </definition>
</module>`

const billingDescriptor = `id: billing
name: Billing
depends-on: [core]
definitions:
  - name: invoices
    path: billing/invoices.sql
    tables: [invoices]
`

func descriptorFS() fstest.MapFS {
	return fstest.MapFS{
		"descriptors/10-billing.yaml": {Data: []byte(billingDescriptor)},
		"descriptors/20-core.xml":     {Data: []byte(coreDescriptor)},
		"descriptors/README.md":       {Data: []byte("not a descriptor")},
	}
}

func stringSource(name, content string) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func definitionNames(defs []*descriptor.Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Module.ID + "/" + d.Name
	}
	return names
}

func TestDirDiscoverer(t *testing.T) {
	sources, err := NewDirDiscoverer(descriptorFS(), "descriptors").Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "descriptors/10-billing.yaml", sources[0].Name)
	assert.Equal(t, "descriptors/20-core.xml", sources[1].Name)

	r, err := sources[1].Open()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, coreDescriptor, string(data))
}

func TestDirDiscoverer_MissingRoot(t *testing.T) {
	_, err := NewDirDiscoverer(fstest.MapFS{}, "nowhere").Discover(context.Background())
	assert.Error(t, err)
}

func TestLoad_DependenciesExecuteFirst(t *testing.T) {
	loader := NewLoader(NewDirDiscoverer(descriptorFS(), "descriptors"), "postgresql")
	require.NoError(t, loader.Load(context.Background()))

	core, err := loader.Module("core")
	require.NoError(t, err)
	billing, err := loader.Module("billing")
	require.NoError(t, err)

	// billing was discovered first, so it held order 0 before resolution
	assert.Equal(t, 0, core.Order)
	assert.GreaterOrEqual(t, billing.Order, core.Order+1)

	assert.Equal(t, []string{"core/customers", "core/orders", "billing/invoices"}, definitionNames(loader.Definitions()))
	assert.Equal(t, []string{"core", "billing"}, []string{loader.Modules()[0].ID, loader.Modules()[1].ID})
}

func TestLoad_SkipsBrokenSources(t *testing.T) {
	loader := NewLoader(StaticDiscoverer{
		stringSource("a-broken.xml", "<module id="),
		stringSource("b-invalid.xml", `<module name="no id"/>`),
		stringSource("c-core.xml", coreDescriptor),
		{Name: "d-unreadable.xml", Open: func() (io.ReadCloser, error) { return nil, errors.New("permission denied") }},
		stringSource("e-duplicate.xml", `<module id="core"/>`),
	}, "")

	require.NoError(t, loader.Load(context.Background()))

	assert.Len(t, loader.Modules(), 1)
	assert.Len(t, loader.Definitions(), 2)

	loadErrors := loader.Errors()
	require.Len(t, loadErrors, 4)
	assert.Equal(t, "a-broken.xml", loadErrors[0].Source)
	assert.True(t, errors.Is(loadErrors[1], descriptor.ErrInvalidDocument))
	assert.Contains(t, loadErrors[2].Error(), "permission denied")
	assert.Contains(t, loadErrors[3].Error(), "already defined")
}

func TestLoad_DefaultOrderFollowsLoadSequence(t *testing.T) {
	loader := NewLoader(StaticDiscoverer{
		stringSource("one.xml", `<module id="one"/>`),
		stringSource("bad.xml", `not xml at all`),
		stringSource("two.xml", `<module id="two"/>`),
		stringSource("three.yaml", "id: three\n"),
	}, "")
	require.NoError(t, loader.Load(context.Background()))

	var got []int
	for _, id := range []string{"one", "two", "three"} {
		m, err := loader.Module(id)
		require.NoError(t, err)
		got = append(got, m.Order)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestLoad_Cycle(t *testing.T) {
	loader := NewLoader(StaticDiscoverer{
		stringSource("a.yaml", "id: a\ndepends-on: [b]\n"),
		stringSource("b.yaml", "id: b\ndepends-on: [a]\n"),
	}, "")

	err := loader.Load(context.Background())
	var cycleErr *DependencyCycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "b", "a"}, cycleErr.Path)
}

func TestLoadSource_Explicit(t *testing.T) {
	loader := NewLoader(nil, "")
	require.NoError(t, loader.LoadSource(context.Background(), stringSource("core.xml", coreDescriptor)))
	require.NoError(t, loader.Resolve())

	defs := loader.Definitions()
	require.Len(t, defs, 2)

	found, err := loader.Definition(defs[1].ID)
	require.NoError(t, err)
	assert.Same(t, defs[1], found)

	assert.Error(t, loader.Load(context.Background()), "no discoverer configured")
}

func TestLookupsReturnNotFound(t *testing.T) {
	loader := NewLoader(StaticDiscoverer{}, "")
	require.NoError(t, loader.Load(context.Background()))

	_, err := loader.Module("core")
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = loader.Definition("nope")
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))
}

func TestFindDefinitions(t *testing.T) {
	loader := NewLoader(NewDirDiscoverer(descriptorFS(), "descriptors"), "")
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, []string{"core/orders"}, definitionNames(loader.FindDefinitions("ORDERS")))
	assert.Equal(t, []string{"billing/invoices"}, definitionNames(loader.FindDefinitions("billing")))
	assert.Empty(t, loader.FindDefinitions("nothing"))
}
