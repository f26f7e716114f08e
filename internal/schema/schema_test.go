package schema

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/script"
)

type tablesOnly struct {
	tables map[string]bool
	err    error
}

func (t *tablesOnly) TableExists(ctx context.Context, table string) (bool, error) {
	return t.tables[table], t.err
}
func (t *tablesOnly) ViewExists(ctx context.Context, view string) (bool, error)   { return false, nil }
func (t *tablesOnly) IndexExists(ctx context.Context, index string) (bool, error) { return false, nil }
func (t *tablesOnly) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return false, nil
}

func TestTableChecks(t *testing.T) {
	ctx := context.Background()
	s := New(&tablesOnly{tables: map[string]bool{"orders": true}}, script.NewSource(fstest.MapFS{}))

	tests := []struct {
		name   string
		tables []string
		any    bool
		all    bool
	}{
		{"none declared", nil, false, false},
		{"one present", []string{"orders"}, true, true},
		{"partially present", []string{"orders", "order_lines"}, true, false},
		{"absent", []string{"customers"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AnyTableExists(ctx, tt.tables)
			require.NoError(t, err)
			assert.Equal(t, tt.any, got)

			got, err = s.AllTablesExist(ctx, tt.tables)
			require.NoError(t, err)
			assert.Equal(t, tt.all, got)
		})
	}
}

func TestTableCheckErrors(t *testing.T) {
	s := New(&tablesOnly{err: errors.New("timeout")}, script.NewSource(fstest.MapFS{}))
	_, err := s.AnyTableExists(context.Background(), []string{"orders"})
	assert.ErrorContains(t, err, "timeout")
}

func TestScriptResolution(t *testing.T) {
	s := New(&tablesOnly{}, script.NewSource(fstest.MapFS{
		"schema/core/orders.sql":  {Data: []byte("CREATE TABLE orders (id int);")},
		"migration/core/0001.sql": {Data: []byte("ALTER TABLE orders ADD x int;")},
	}))
	def := &descriptor.Definition{Path: "core/orders.sql"}

	baseline, err := s.BaselineScript(def)
	require.NoError(t, err)
	assert.Equal(t, "schema/core/orders.sql", baseline.Name)

	migration, err := s.MigrationScript(&descriptor.Migration{Path: "core/0001.sql", Definition: def})
	require.NoError(t, err)
	assert.Equal(t, "migration/core/0001.sql", migration.Name)

	_, err = s.MigrationScript(&descriptor.Migration{Path: "core/0002.sql"})
	assert.True(t, errors.Is(err, script.ErrScriptNotFound))
}
