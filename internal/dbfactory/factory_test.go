package dbfactory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/backends/mysql"
	"github.com/toolsascode/schemaflow/internal/backends/postgresql"
	"github.com/toolsascode/schemaflow/internal/backends/sqlite"
	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/lock"
	"github.com/toolsascode/schemaflow/internal/state"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name string
		want interface{}
	}{
		{name: "postgres", want: &postgresql.Backend{}},
		{name: "MariaDB", want: &mysql.Backend{}},
		{name: "sqlite3", want: &sqlite.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.name)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}

	_, err := NewBackend("oracle")
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Backend = "sqlite"
	cfg.Database.Database = filepath.Join(t.TempDir(), "app.db")
	cfg.Registry.Table = "custom_registry"
	require.NoError(t, cfg.Validate())

	res, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = res.Close() }()

	assert.Equal(t, "sqlite", res.Backend.Name())
	assert.IsType(t, &lock.Local{}, res.Locker)

	ctx := context.Background()
	require.NoError(t, res.Tracker.Initialize(ctx))
	exists, err := res.Backend.TableExists(ctx, "custom_registry")
	require.NoError(t, err)
	assert.True(t, exists)

	status, err := res.Tracker.LastStatus(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, state.StatusNA, status)
}

func TestOpenRejectsAdvisoryLockOffPostgres(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Backend = "sqlite"
	cfg.Lock.Type = "postgresql"

	_, err := Open(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgresql lock")
}

func TestNewExecutorRunsFromDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile := func(name, content string) {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	writeFile("descriptors/core.yaml", "id: core\ndefinitions:\n  - name: notes\n    path: core/notes.sql\n    tables: [notes]\n")
	writeFile("scripts/schema/core/notes.sql", "CREATE TABLE notes (id INTEGER PRIMARY KEY, path TEXT);\n"+
		"INSERT INTO notes VALUES (1, 'C:\\');\n"+
		"INSERT INTO notes VALUES (2, 'D:');\n")

	cfg := config.Default()
	cfg.Database.Backend = "sqlite"
	cfg.Database.Database = filepath.Join(root, "app.db")
	cfg.Paths.Descriptors = filepath.Join(root, "descriptors")
	cfg.Paths.Scripts = filepath.Join(root, "scripts")
	require.NoError(t, cfg.Validate())

	res, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = res.Close() }()

	result, err := NewExecutor(cfg, res).Run(context.Background(), &executor.RunRequest{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ScriptCount)
	assert.Equal(t, 3, result.StatementCount, "a trailing backslash does not swallow the next statement on sqlite")
	assert.Zero(t, result.FailedStatementCount)

	exists, err := res.Backend.TableExists(context.Background(), "notes")
	require.NoError(t, err)
	assert.True(t, exists)
}
