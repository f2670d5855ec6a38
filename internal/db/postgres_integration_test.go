//go:build integration
// +build integration

package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/schema"
	"github.com/tordrt/dbintegrity/internal/testutils"
)

const postgresMigrationUp = `
CREATE TABLE customers (id INT PRIMARY KEY, name TEXT);
CREATE TABLE shops (id INT, region TEXT, PRIMARY KEY (id, region));
CREATE TABLE orders (
	id INT PRIMARY KEY,
	customer_id INT,
	shop_id INT,
	region TEXT,
	CONSTRAINT fk_customer FOREIGN KEY (customer_id) REFERENCES customers (id) ON UPDATE CASCADE,
	CONSTRAINT fk_shop FOREIGN KEY (shop_id, region) REFERENCES shops (id, region) ON DELETE RESTRICT
);
CREATE INDEX fk_shop ON orders (shop_id, region);
`

const postgresMigrationDown = `
DROP TABLE IF EXISTS orders;
DROP TABLE IF EXISTS shops;
DROP TABLE IF EXISTS customers;
`

type postgresInspectorSuite struct {
	testutils.PgContainerSuite
	inspector db.Inspector
}

func (s *postgresInspectorSuite) SetupSuite() {
	s.SetMigrationUp(postgresMigrationUp).
		SetMigrationDown(postgresMigrationDown)
	s.PgContainerSuite.SetupSuite()

	var err error
	s.inspector, err = db.Open(context.Background(), s.GetDatabaseURL(context.Background()), "")
	s.Require().NoError(err)
}

func (s *postgresInspectorSuite) TearDownSuite() {
	s.Require().NoError(s.inspector.Close(context.Background()))
	s.PgContainerSuite.TearDownSuite()
}

func (s *postgresInspectorSuite) TestListForeignKeys() {
	fks, err := s.inspector.ListForeignKeys(context.Background(), "orders")
	s.Require().NoError(err)
	s.Equal([]schema.ForeignKey{
		{
			Name:           "fk_customer",
			LocalColumns:   []string{"customer_id"},
			ForeignTable:   "customers",
			ForeignColumns: []string{"id"},
			OnUpdate:       "CASCADE",
		},
		{
			Name:           "fk_shop",
			LocalColumns:   []string{"shop_id", "region"},
			ForeignTable:   "shops",
			ForeignColumns: []string{"id", "region"},
			OnDelete:       "RESTRICT",
		},
	}, fks)
}

func (s *postgresInspectorSuite) TestListIndexes() {
	indexes, err := s.inspector.ListIndexes(context.Background(), "orders")
	s.Require().NoError(err)
	s.Contains(indexes, schema.Index{Name: "fk_shop", Columns: []string{"shop_id", "region"}})
}

func (s *postgresInspectorSuite) TestDropAndCreateForeignKey() {
	ctx := context.Background()
	s.Require().NoError(s.inspector.DropAndCreateForeignKey(ctx, "orders", schema.ForeignKey{
		Name:           "fk_customer",
		LocalColumns:   []string{"customer_id"},
		ForeignTable:   "customers",
		ForeignColumns: []string{"id"},
		OnDelete:       "SET NULL",
	}))

	fks, err := s.inspector.ListForeignKeys(ctx, "orders")
	s.Require().NoError(err)
	s.Require().NotEmpty(fks)
	s.Equal("fk_customer", fks[0].Name)
	s.Equal("SET NULL", fks[0].OnDelete)
	s.Empty(fks[0].OnUpdate)

	s.Require().NoError(s.inspector.DropAndCreateForeignKey(ctx, "orders", schema.ForeignKey{
		Name:           "fk_customer",
		LocalColumns:   []string{"customer_id"},
		ForeignTable:   "customers",
		ForeignColumns: []string{"id"},
		OnUpdate:       "CASCADE",
	}))
}

func (s *postgresInspectorSuite) TestNoForeignKeyChecksToggle() {
	s.False(s.inspector.SupportsToggleableForeignKeyChecks())
	s.Empty(s.inspector.ForeignKeyChecksStatement(false))
}

func TestPostgresInspector(t *testing.T) {
	suite.Run(t, new(postgresInspectorSuite))
}
