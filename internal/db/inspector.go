package db

import (
	"context"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// Platform identifies the database engine behind a connection
type Platform string

const (
	PlatformMySQL    Platform = "mysql"
	PlatformPostgres Platform = "postgres"
	PlatformSQLite   Platform = "sqlite"
)

// SupportsOnUpdateAction reports whether foreign keys on this platform
// accept an ON UPDATE referential action.
func (p Platform) SupportsOnUpdateAction() bool {
	switch p {
	case PlatformMySQL, PlatformPostgres, PlatformSQLite:
		return true
	}
	return false
}

// SupportsToggleableForeignKeyChecks reports whether foreign key enforcement
// can be switched off and on again for the current session.
func (p Platform) SupportsToggleableForeignKeyChecks() bool {
	switch p {
	case PlatformMySQL, PlatformSQLite:
		return true
	}
	return false
}

// Inspector reads and changes the foreign keys of a live schema.
//
// Each implementation pins a single database session, so statements issued
// through Execute (e.g. disabling foreign key checks) affect the DDL and
// queries that follow on the same inspector.
type Inspector interface {
	Platform() Platform
	ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error)
	ListIndexes(ctx context.Context, table string) ([]schema.Index, error)
	SupportsOnUpdateAction() bool
	SupportsToggleableForeignKeyChecks() bool
	// ForeignKeyChecksStatement returns the statement that switches foreign
	// key enforcement on or off, or "" when the platform has none.
	ForeignKeyChecksStatement(enabled bool) string
	DropForeignKey(ctx context.Context, table, name string) error
	CreateForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error
	CreateIndex(ctx context.Context, table, name string, columns []string) error
	DropAndCreateForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error
	Execute(ctx context.Context, statement string) error
	Close(ctx context.Context) error
}

// Resolver hands out the inspector responsible for a table
type Resolver interface {
	ForTable(ctx context.Context, table string) (Inspector, error)
	// PlatformForTable resolves the platform without opening a connection
	PlatformForTable(table string) (Platform, error)
}
