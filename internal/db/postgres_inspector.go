package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// DefaultPostgresSchema is used when no schema name is configured
const DefaultPostgresSchema = "public"

// PostgresInspector inspects and changes foreign keys in a PostgreSQL schema
type PostgresInspector struct {
	client *PostgresClient
	schema string
}

var _ Inspector = (*PostgresInspector)(nil)

// NewPostgresInspector creates a new PostgreSQL inspector
func NewPostgresInspector(client *PostgresClient, schemaName string) *PostgresInspector {
	if schemaName == "" {
		schemaName = DefaultPostgresSchema
	}
	return &PostgresInspector{
		client: client,
		schema: schemaName,
	}
}

// Platform returns PlatformPostgres
func (i *PostgresInspector) Platform() Platform {
	return PlatformPostgres
}

// SupportsOnUpdateAction reports whether ON UPDATE actions are accepted
func (i *PostgresInspector) SupportsOnUpdateAction() bool {
	return PlatformPostgres.SupportsOnUpdateAction()
}

// SupportsToggleableForeignKeyChecks is false: PostgreSQL enforces foreign
// keys through triggers and offers no session switch for them.
func (i *PostgresInspector) SupportsToggleableForeignKeyChecks() bool {
	return PlatformPostgres.SupportsToggleableForeignKeyChecks()
}

// ForeignKeyChecksStatement returns the statement switching foreign key checks
func (i *PostgresInspector) ForeignKeyChecksStatement(enabled bool) string {
	return foreignKeyChecksSQL(PlatformPostgres, enabled)
}

// ListForeignKeys returns the foreign keys defined on a table
func (i *PostgresInspector) ListForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			c.conname::text AS constraint_name,
			ft.relname::text AS foreign_table,
			ARRAY(
				SELECT a.attname::text
				FROM unnest(c.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS local_columns,
			ARRAY(
				SELECT a.attname::text
				FROM unnest(c.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = c.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS foreign_columns,
			c.confdeltype::text AS delete_type,
			c.confupdtype::text AS update_type
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class ft ON ft.oid = c.confrelid
		WHERE c.contype = 'f'
			AND n.nspname = $1
			AND t.relname = $2
		ORDER BY c.conname
	`

	rows, err := i.client.GetConnection().Query(ctx, query, i.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var deleteType, updateType string
		if err := rows.Scan(&fk.Name, &fk.ForeignTable, &fk.LocalColumns, &fk.ForeignColumns, &deleteType, &updateType); err != nil {
			return nil, err
		}
		fk.OnDelete = postgresAction(deleteType)
		fk.OnUpdate = postgresAction(updateType)
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// postgresAction decodes pg_constraint.confdeltype/confupdtype. NO ACTION is
// the default and is reported as "".
func postgresAction(code string) string {
	switch code {
	case "r":
		return schema.ActionRestrict
	case "c":
		return schema.ActionCascade
	case "n":
		return schema.ActionSetNull
	case "d":
		return schema.ActionSetDefault
	}
	return ""
}

// ListIndexes returns all non-primary indexes of a table
func (i *PostgresInspector) ListIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname::text AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname::text ORDER BY array_position(ix.indkey::int2[], a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := i.client.GetConnection().Query(ctx, query, i.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// DropForeignKey drops a named foreign key
func (i *PostgresInspector) DropForeignKey(ctx context.Context, tableName, name string) error {
	return i.exec(ctx, dropForeignKeySQL(PlatformPostgres, i.schema, tableName, name))
}

// CreateForeignKey adds a foreign key
func (i *PostgresInspector) CreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	return i.exec(ctx, addForeignKeySQL(PlatformPostgres, i.schema, tableName, fk))
}

// CreateIndex creates a plain index
func (i *PostgresInspector) CreateIndex(ctx context.Context, tableName, name string, columns []string) error {
	return i.exec(ctx, createIndexSQL(PlatformPostgres, i.schema, tableName, name, columns))
}

// DropAndCreateForeignKey replaces a foreign key inside one transaction;
// PostgreSQL DDL is transactional.
func (i *PostgresInspector) DropAndCreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	tx, err := i.client.GetConnection().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, statement := range []string{
		dropForeignKeySQL(PlatformPostgres, i.schema, tableName, fk.Name),
		addForeignKeySQL(PlatformPostgres, i.schema, tableName, fk),
	} {
		log.Ctx(ctx).Debug().Str("platform", string(PlatformPostgres)).Str("query", statement).Msg("executing statement")
		if _, err := tx.Exec(ctx, statement); err != nil {
			return fmt.Errorf("failed to execute %q: %w", statement, err)
		}
	}

	return tx.Commit(ctx)
}

// Execute runs a statement on the inspector's session
func (i *PostgresInspector) Execute(ctx context.Context, statement string) error {
	return i.exec(ctx, statement)
}

// Close closes the connection
func (i *PostgresInspector) Close(ctx context.Context) error {
	return i.client.Close(ctx)
}

func (i *PostgresInspector) exec(ctx context.Context, statement string) error {
	log.Ctx(ctx).Debug().Str("platform", string(PlatformPostgres)).Str("query", statement).Msg("executing statement")
	if _, err := i.client.GetConnection().Exec(ctx, statement); err != nil {
		return fmt.Errorf("failed to execute %q: %w", statement, err)
	}
	return nil
}
