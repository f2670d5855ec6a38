package dbintegrity_test

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/dbintegrity"
)

const fixture = `
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER,
	legacy_id INTEGER,
	CONSTRAINT fk_legacy FOREIGN KEY (legacy_id) REFERENCES customers (id)
);
INSERT INTO customers (id, name) VALUES (1, 'Ada');
INSERT INTO orders (id, customer_id, legacy_id) VALUES (10, 1, 1);
`

const definitions = `
orders:
  fk_customer:
    localColumns: customer_id
    foreignTable: customers
    foreignColumns: id
    onDelete: CASCADE
`

type env struct {
	url  string
	opts *dbintegrity.Options
}

func setup(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.db")

	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = conn.Exec(fixture)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	defPath := filepath.Join(dir, "constraints.yaml")
	require.NoError(t, os.WriteFile(defPath, []byte(definitions), 0o600))

	return env{
		url: "sqlite://" + path,
		opts: &dbintegrity.Options{
			Sources:  []dbintegrity.Source{{Key: "shop", Path: defPath}},
			LockPath: filepath.Join(dir, "dbintegrity.lock"),
		},
	}
}

func TestCheckAndUpdate(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	needed, err := dbintegrity.Check(ctx, e.url, e.opts)
	require.NoError(t, err)
	assert.True(t, needed)

	actions, err := dbintegrity.Update(ctx, e.url, e.opts)
	require.NoError(t, err)
	assert.Equal(t, 2, actions)

	needed, err = dbintegrity.Check(ctx, e.url, e.opts)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestEnginePlan(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	engine, err := dbintegrity.Open(ctx, e.url, e.opts)
	require.NoError(t, err)
	defer engine.Close(ctx)

	var buf bytes.Buffer
	needed, err := engine.Plan(ctx, &buf, "text")
	require.NoError(t, err)
	assert.True(t, needed)
	assert.Contains(t, buf.String(), "TABLE orders (2 action(s))")
	assert.Contains(t, buf.String(), "DROP   fk_legacy")
	assert.Contains(t, buf.String(), "CREATE fk_customer (customer_id) -> customers (id) ON DELETE CASCADE")

	_, err = engine.Plan(ctx, &buf, "xml")
	assert.Error(t, err)
}

func TestPlanMarkdown(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	var buf bytes.Buffer
	needed, err := dbintegrity.Plan(ctx, e.url, e.opts, &buf, "markdown")
	require.NoError(t, err)
	assert.True(t, needed)
	assert.Contains(t, buf.String(), "# Foreign Key Constraints Plan")
	assert.Contains(t, buf.String(), "fk_customer")
}

func TestEngineWrite(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	engine, err := dbintegrity.Open(ctx, e.url, e.opts)
	require.NoError(t, err)
	defer engine.Close(ctx)

	_, err = engine.Update(ctx)
	require.NoError(t, err)

	insert := func(stmt string) func(context.Context, func(context.Context, string) error) error {
		return func(ctx context.Context, exec func(context.Context, string) error) error {
			return exec(ctx, stmt)
		}
	}

	err = engine.Write(ctx, dbintegrity.WriteRequest{Table: "orders"},
		insert("INSERT INTO orders (id, customer_id) VALUES (20, 99)"))
	assert.Error(t, err)

	err = engine.Write(ctx, dbintegrity.WriteRequest{Table: "orders", DisableChecks: true},
		insert("INSERT INTO orders (id, customer_id) VALUES (21, 99)"))
	assert.NoError(t, err)

	// checks are enforced again once the write returns
	err = engine.Write(ctx, dbintegrity.WriteRequest{Table: "orders"},
		insert("INSERT INTO orders (id, customer_id) VALUES (22, 98)"))
	assert.Error(t, err)
}

func TestEngineBootstrap(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	engine, err := dbintegrity.Open(ctx, e.url, e.opts)
	require.NoError(t, err)
	defer engine.Close(ctx)

	statements, err := engine.Bootstrap(ctx, []string{"CREATE TABLE orders (id INTEGER);"})
	require.NoError(t, err)
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], "CREATE TABLE")
	assert.Contains(t, statements[0], "fk_customer")
	assert.Equal(t, "CREATE TABLE orders (id INTEGER);", statements[2])
}

func TestOpenLocked(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	engine, err := dbintegrity.Open(ctx, e.url, e.opts)
	require.NoError(t, err)

	_, err = dbintegrity.Open(ctx, e.url, e.opts)
	assert.ErrorIs(t, err, dbintegrity.ErrLocked)

	require.NoError(t, engine.Close(ctx))

	engine, err = dbintegrity.Open(ctx, e.url, e.opts)
	require.NoError(t, err)
	assert.NoError(t, engine.Close(ctx))
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := dbintegrity.Open(ctx, "oracle://db", e.opts)
	assert.ErrorContains(t, err, "invalid database URL scheme")

	opts := *e.opts
	opts.SourceKey = "missing"
	_, err = dbintegrity.Check(ctx, e.url, &opts)
	assert.ErrorIs(t, err, dbintegrity.ErrUnknownSource)
}
