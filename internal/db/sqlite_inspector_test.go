package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/dbintegrity/internal/schema"
)

const sqliteFixture = `
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE shops (id INTEGER, region TEXT, PRIMARY KEY (id, region));
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER,
	shop_id INTEGER,
	region TEXT,
	note TEXT DEFAULT 'a, (b)',
	CONSTRAINT fk_customer FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE SET NULL,
	CONSTRAINT "fk_shop" FOREIGN KEY ("shop_id", "region") REFERENCES shops
);
CREATE INDEX fk_customer ON orders (customer_id);
CREATE INDEX idx_note ON orders (note, id);
CREATE TABLE notes (order_id INTEGER REFERENCES orders (id));
INSERT INTO customers (id, name) VALUES (1, 'Ada'), (2, 'Grace');
INSERT INTO orders (id, customer_id, note) VALUES (10, 1, 'first'), (11, 2, 'second');
`

func newSQLiteInspector(t *testing.T) *SQLiteInspector {
	t.Helper()
	ctx := context.Background()

	client, err := NewSQLiteClient(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	ins := NewSQLiteInspector(client)
	t.Cleanup(func() { _ = ins.Close(ctx) })

	_, err = client.GetDB().ExecContext(ctx, sqliteFixture)
	require.NoError(t, err)
	return ins
}

func TestSQLiteListForeignKeys(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	fks, err := ins.ListForeignKeys(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, []schema.ForeignKey{
		{
			Name:           "fk_customer",
			LocalColumns:   []string{"customer_id"},
			ForeignTable:   "customers",
			ForeignColumns: []string{"id"},
			OnDelete:       "SET NULL",
		},
		{
			Name:           "fk_shop",
			LocalColumns:   []string{"shop_id", "region"},
			ForeignTable:   "shops",
			ForeignColumns: []string{"id", "region"},
		},
	}, fks)

	// unnamed foreign keys are not managed
	fks, err = ins.ListForeignKeys(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, fks)

	_, err = ins.ListForeignKeys(ctx, "missing")
	assert.ErrorContains(t, err, "table missing does not exist")
}

func TestSQLiteListIndexes(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	indexes, err := ins.ListIndexes(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []schema.Index{
		{Name: "fk_customer", Columns: []string{"customer_id"}},
		{Name: "idx_note", Columns: []string{"note", "id"}},
	}, indexes)
}

func TestSQLiteForeignKeyDDL(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	require.NoError(t, ins.DropForeignKey(ctx, "orders", "fk_shop"))
	require.NoError(t, ins.DropAndCreateForeignKey(ctx, "orders", schema.ForeignKey{
		Name:           "fk_customer",
		LocalColumns:   []string{"customer_id"},
		ForeignTable:   "customers",
		ForeignColumns: []string{"id"},
		OnDelete:       "CASCADE",
	}))
	require.NoError(t, ins.CreateIndex(ctx, "orders", "fk_order_shop", []string{"shop_id"}))
	require.NoError(t, ins.CreateForeignKey(ctx, "orders", schema.ForeignKey{
		Name:           "fk_order_shop",
		LocalColumns:   []string{"shop_id", "region"},
		ForeignTable:   "shops",
		ForeignColumns: []string{"id", "region"},
		OnUpdate:       "CASCADE",
	}))

	fks, err := ins.ListForeignKeys(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, fks, 2)
	assert.Equal(t, "fk_customer", fks[0].Name)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)
	assert.Equal(t, "fk_order_shop", fks[1].Name)
	assert.Equal(t, "CASCADE", fks[1].OnUpdate)

	// rows, indexes and enforcement survive the rebuild
	var count int
	require.NoError(t, ins.client.GetDB().QueryRowContext(ctx, "SELECT count(*) FROM orders").Scan(&count))
	assert.Equal(t, 2, count)

	indexes, err := ins.ListIndexes(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, indexes, 3)

	var enforced bool
	require.NoError(t, ins.client.GetDB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enforced))
	assert.True(t, enforced)

	_, err = ins.client.GetDB().ExecContext(ctx, "DELETE FROM customers WHERE id = 1")
	require.NoError(t, err)
	require.NoError(t, ins.client.GetDB().QueryRowContext(ctx, "SELECT count(*) FROM orders").Scan(&count))
	assert.Equal(t, 1, count, "ON DELETE CASCADE applies after the rebuild")

	err = ins.DropForeignKey(ctx, "orders", "fk_unknown")
	assert.ErrorContains(t, err, "foreign key fk_unknown not found on table orders")
}

func TestSQLiteCreateForeignKeyRejectsViolations(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	_, err := ins.client.GetDB().ExecContext(ctx, "INSERT INTO notes (order_id) VALUES (10)")
	require.NoError(t, err)
	_, err = ins.client.GetDB().ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, order_id INTEGER)")
	require.NoError(t, err)
	_, err = ins.client.GetDB().ExecContext(ctx, "INSERT INTO items (id, order_id) VALUES (1, 99)")
	require.NoError(t, err)

	err = ins.CreateForeignKey(ctx, "items", schema.ForeignKey{
		Name:           "fk_order",
		LocalColumns:   []string{"order_id"},
		ForeignTable:   "orders",
		ForeignColumns: []string{"id"},
	})
	assert.ErrorContains(t, err, "violate foreign keys")

	fks, err := ins.ListForeignKeys(ctx, "items")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestSQLiteForeignKeyChecks(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	require.NoError(t, ins.Execute(ctx, ins.ForeignKeyChecksStatement(false)))
	_, err := ins.client.GetDB().ExecContext(ctx, "INSERT INTO orders (id, customer_id) VALUES (12, 42)")
	require.NoError(t, err)

	require.NoError(t, ins.Execute(ctx, ins.ForeignKeyChecksStatement(true)))
	_, err = ins.client.GetDB().ExecContext(ctx, "INSERT INTO orders (id, customer_id) VALUES (13, 43)")
	assert.Error(t, err)
}

func TestSplitTableDefinition(t *testing.T) {
	items, tail, err := splitTableDefinition(`CREATE TABLE "a(b" (id INTEGER, note TEXT DEFAULT 'x, y', CHECK (id IN (1, 2))) WITHOUT ROWID`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id INTEGER", "note TEXT DEFAULT 'x, y'", "CHECK (id IN (1, 2))"}, items)
	assert.Equal(t, " WITHOUT ROWID", tail)

	_, _, err = splitTableDefinition("CREATE TABLE a (id INTEGER")
	assert.Error(t, err)

	items, _, err = splitTableDefinition("CREATE TABLE a (\n" +
		"\tid INTEGER PRIMARY KEY, -- the order's id\n" +
		"\t/* buyer, (optional) */ customer_id INTEGER -- buyer\n" +
		")")
	require.NoError(t, err)
	assert.Equal(t, []string{"id INTEGER PRIMARY KEY", "customer_id INTEGER"}, items)

	_, _, err = splitTableDefinition("CREATE TABLE a (id INTEGER /* open")
	assert.ErrorContains(t, err, "unterminated comment")
}

func TestSQLiteForeignKeyDDLWithComments(t *testing.T) {
	ctx := context.Background()
	ins := newSQLiteInspector(t)

	_, err := ins.client.GetDB().ExecContext(ctx, `CREATE TABLE invoices (
	id INTEGER PRIMARY KEY, -- the invoice's id
	customer_id INTEGER -- buyer
)`)
	require.NoError(t, err)

	fks, err := ins.ListForeignKeys(ctx, "invoices")
	require.NoError(t, err)
	assert.Empty(t, fks)

	fk := schema.ForeignKey{
		Name:           "fk_invoice_customer",
		LocalColumns:   []string{"customer_id"},
		ForeignTable:   "customers",
		ForeignColumns: []string{"id"},
	}
	require.NoError(t, ins.CreateForeignKey(ctx, "invoices", fk))

	fks, err = ins.ListForeignKeys(ctx, "invoices")
	require.NoError(t, err)
	assert.Equal(t, []schema.ForeignKey{fk}, fks)
}

func TestParseNamedForeignKeys(t *testing.T) {
	named := parseNamedForeignKeys([]string{
		"id INTEGER",
		"CONSTRAINT [fk one] FOREIGN KEY (`a`, \"b\") REFERENCES 'other'(x, y)",
		"FOREIGN KEY (c) REFERENCES other (z)",
		`constraint fk_two foreign key(c) references "we""ird"`,
	})

	require.Len(t, named, 2)
	assert.Equal(t, namedForeignKey{Name: "fk one", Columns: []string{"a", "b"}, ForeignTable: "other", Item: 1}, named[0])
	assert.Equal(t, namedForeignKey{Name: "fk_two", Columns: []string{"c"}, ForeignTable: `we"ird`, Item: 3}, named[1])
}
