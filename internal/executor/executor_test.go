package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/backends/sqlite"
	"github.com/toolsascode/schemaflow/internal/descriptor"
	"github.com/toolsascode/schemaflow/internal/queue"
	"github.com/toolsascode/schemaflow/internal/registry"
	"github.com/toolsascode/schemaflow/internal/script"
	"github.com/toolsascode/schemaflow/internal/state"
	"github.com/toolsascode/schemaflow/internal/state/sqlstore"
)

const catalogXML = `<module id="catalog" name="Catalog">
  <definition name="products" path="catalog/products.sql">
    <table>products</table>
    <migration path="catalog/0001_sku.sql" condition="column products.sku exists"/>
    <migration path="catalog/0002_price.sql" condition=""/>
  </definition>
  <definition name="tags" path="catalog/tags.sql">
    <table>tags</table>
  </definition>
</module>`

func catalogFiles() fstest.MapFS {
	return fstest.MapFS{
		"descriptors/catalog.xml":        {Data: []byte(catalogXML)},
		"schema/catalog/products.sql":    {Data: []byte("CREATE TABLE products (id INTEGER PRIMARY KEY, sku TEXT, price INTEGER);")},
		"schema/catalog/tags.sql":        {Data: []byte("CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT);")},
		"migration/catalog/0001_sku.sql": {Data: []byte("ALTER TABLE products ADD COLUMN sku TEXT;")},
		"migration/catalog/0002_price.sql": {Data: []byte(
			"ALTER TABLE products ADD COLUMN price INTEGER;\nUPDATE products SET price = 0;")},
	}
}

var (
	productsID = descriptor.DefinitionID("catalog", "catalog/products.sql", "sqlite")
	tagsID     = descriptor.DefinitionID("catalog", "catalog/tags.sql", "sqlite")
	skuID      = descriptor.MigrationID(productsID, "catalog/0001_sku.sql")
	priceID    = descriptor.MigrationID(productsID, "catalog/0002_price.sql")
)

func newTestExecutor(t *testing.T, opts Options) (*Executor, *sqlite.Backend) {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Connect(&backends.ConnectionConfig{Backend: "sqlite"}))
	t.Cleanup(func() { _ = b.Close() })

	files := catalogFiles()
	if opts.DatabaseType == "" {
		opts.DatabaseType = "sqlite"
	}
	exec := NewExecutor(b, sqlstore.NewTracker(b.DB(), sqlstore.SQLite, ""),
		script.NewSource(files), registry.NewDirDiscoverer(files, "descriptors"), opts)
	return exec, b
}

// mockQueue records published jobs
type mockQueue struct {
	mu         sync.Mutex
	published  []*queue.Job
	publishErr error
}

func (q *mockQueue) PublishJob(ctx context.Context, job *queue.Job) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.ID == "" {
		job.ID = "job-1"
	}
	q.published = append(q.published, job)
	return nil
}

func (q *mockQueue) Consume(ctx context.Context, handler queue.JobHandler) error { return nil }
func (q *mockQueue) Close() error                                                { return nil }

func TestGetExecutionContext(t *testing.T) {
	by, method, extra := GetExecutionContext(context.Background())
	assert.Equal(t, "system", by)
	assert.Equal(t, "api", method)
	assert.Empty(t, extra)

	ctx := SetExecutionContext(context.Background(), "alice", "cli", map[string]interface{}{"ticket": "OPS-7"})
	by, method, extra = GetExecutionContext(ctx)
	assert.Equal(t, "alice", by)
	assert.Equal(t, "cli", method)
	assert.JSONEq(t, `{"ticket":"OPS-7"}`, extra)
	assert.Equal(t, "alice (cli)", executedBy(ctx))
}

func TestRun_FreshDatabase(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{FailOnError: true})
	ctx := SetExecutionContext(context.Background(), "alice", "cli", nil)

	result, err := exec.Run(ctx, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, state.StatusSuccessful, result.Status)
	assert.Equal(t, "COMPLETED", result.Phase)
	assert.Equal(t, 2, result.ScriptCount)
	assert.Equal(t, 2, result.StatementCount)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Errors)

	status, err := exec.Status(context.Background(), skuID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusApplied, status.Status)
	require.NotNil(t, status.Last)
	assert.Equal(t, result.RunID, status.Last.RunID)
	assert.Equal(t, "alice (cli)", status.Last.ExecutedBy)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{FailOnError: true})
	_, err := exec.Run(context.Background(), nil)
	require.NoError(t, err)

	result, err := exec.Run(context.Background(), &RunRequest{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.ScriptCount)
	assert.Zero(t, result.StatementCount)
}

func TestRun_BestEffortOverride(t *testing.T) {
	exec, b := newTestExecutor(t, Options{FailOnError: true})
	// price already exists, so the ALTER in 0002 fails but the UPDATE runs
	require.NoError(t, b.Exec(context.Background(), "CREATE TABLE products (id INTEGER PRIMARY KEY, price INTEGER)"))

	bestEffort := false
	result, err := exec.Run(context.Background(), &RunRequest{FailOnError: &bestEffort})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, state.StatusFailed, result.Status)
	assert.Equal(t, 1, result.FailedStatementCount)
	assert.Contains(t, result.Errors, "1 statement(s) failed")

	status, err := exec.Status(context.Background(), priceID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, status.Status)
}

func TestRun_FailFastReturnsResultAndError(t *testing.T) {
	exec, b := newTestExecutor(t, Options{FailOnError: true})
	require.NoError(t, b.Exec(context.Background(), "CREATE TABLE products (id INTEGER PRIMARY KEY, price INTEGER)"))

	result, err := exec.Run(context.Background(), nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "FAILED", result.Phase)
	assert.NotEmpty(t, result.Errors)
}

func TestRun_InvalidPolicy(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	_, err := exec.Run(context.Background(), &RunRequest{AppliedPolicy: "most"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown applied policy")
}

func TestRun_LockIsHeld(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	l := &recordingLocker{}
	exec.SetLocker(l)

	_, err := exec.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire schemaflow:migrate", "release"}, l.events)

	l.err = errors.New("lock service down")
	_, err = exec.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire run lock")
}

type recordingLocker struct {
	events []string
	err    error
}

func (l *recordingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.events = append(l.events, "acquire "+key)
	return func() { l.events = append(l.events, "release") }, nil
}

func TestExecute_QueuesWhenConfigured(t *testing.T) {
	exec, b := newTestExecutor(t, Options{})
	q := &mockQueue{}
	exec.SetQueue(q)

	failOnError := true
	ctx := SetExecutionContext(context.Background(), "bob", "api", nil)
	result, err := exec.Execute(ctx, &RunRequest{FailOnError: &failOnError, AppliedPolicy: "all"})
	require.NoError(t, err)

	assert.True(t, result.Queued)
	assert.Equal(t, "job-1", result.JobID)
	require.Len(t, q.published, 1)
	job := q.published[0]
	assert.Equal(t, "bob", job.RequestedBy)
	assert.Equal(t, "all", job.AppliedPolicy)
	assert.Equal(t, "api", job.Metadata["execution_method"])

	exists, err := b.TableExists(context.Background(), "products")
	require.NoError(t, err)
	assert.False(t, exists, "nothing runs when the job is queued")

	q.publishErr = errors.New("broker unavailable")
	_, err = exec.Execute(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to queue migration job")
}

func TestExecute_RunsInlineWithoutQueue(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	result, err := exec.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Equal(t, 2, result.ScriptCount)
}

func TestPlan(t *testing.T) {
	exec, b := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, b.Exec(ctx, "CREATE TABLE products (id INTEGER PRIMARY KEY, sku TEXT)"))

	plan, err := exec.Plan(ctx, "")
	require.NoError(t, err)
	require.Len(t, plan.Definitions, 2)
	assert.Empty(t, plan.LoadErrors)

	products := plan.Definitions[0]
	assert.Equal(t, productsID, products.ID)
	assert.Equal(t, "catalog", products.Module)
	assert.True(t, products.Applied)
	assert.Equal(t, ActionMigrate, products.Action)
	require.Len(t, products.Migrations, 2)
	assert.Equal(t, ActionSkip, products.Migrations[0].Action, "sku column already exists")
	assert.Equal(t, ActionRun, products.Migrations[1].Action)
	assert.Equal(t, state.StatusNA, products.Migrations[1].Status)

	tags := plan.Definitions[1]
	assert.Equal(t, tagsID, tags.ID)
	assert.Equal(t, ActionCreate, tags.Action)
	assert.False(t, tags.Applied)

	assert.Equal(t, 2, plan.Pending())

	// planning executes nothing
	exists, err := b.TableExists(ctx, "tags")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPlan_AfterRunAndFilter(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	ctx := context.Background()
	_, err := exec.Run(ctx, nil)
	require.NoError(t, err)

	plan, err := exec.Plan(ctx, "TAGS")
	require.NoError(t, err)
	require.Len(t, plan.Definitions, 1)
	assert.Equal(t, "tags", plan.Definitions[0].Name)
	assert.Equal(t, state.StatusSuccessful, plan.Definitions[0].Status)
	assert.Zero(t, plan.Pending())

	plan, err = exec.Plan(ctx, "products")
	require.NoError(t, err)
	require.Len(t, plan.Definitions, 1)
	for _, m := range plan.Definitions[0].Migrations {
		assert.Equal(t, ActionApplied, m.Action)
		assert.Equal(t, state.StatusApplied, m.Status)
	}
}

func TestHistoryAndStatus(t *testing.T) {
	exec, _ := newTestExecutor(t, Options{})
	ctx := context.Background()

	status, err := exec.Status(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, state.StatusNA, status.Status)
	assert.Nil(t, status.Last)

	_, err = exec.Status(ctx, "")
	assert.Error(t, err)

	_, err = exec.Run(ctx, nil)
	require.NoError(t, err)

	records, err := exec.History(ctx, &state.Filters{Module: "catalog"})
	require.NoError(t, err)
	assert.Len(t, records, 4, "two baselines plus two APPLIED migrations")

	records, err = exec.History(ctx, &state.Filters{Status: state.StatusApplied})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCheckCondition(t *testing.T) {
	exec, b := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, b.Exec(ctx, "CREATE TABLE products (id INTEGER PRIMARY KEY, sku TEXT)"))

	holds, err := exec.CheckCondition(ctx, "column products.sku exists")
	require.NoError(t, err)
	assert.True(t, holds)

	holds, err = exec.CheckCondition(ctx, "table tags exists")
	require.NoError(t, err)
	assert.False(t, holds)

	_, err = exec.CheckCondition(ctx, "sequence s exists")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	exec, b := newTestExecutor(t, Options{})
	require.NoError(t, exec.HealthCheck(context.Background()))

	require.NoError(t, b.Close())
	assert.Error(t, exec.HealthCheck(context.Background()))
}
