package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// SQLiteInspector inspects and changes foreign keys in a SQLite database.
//
// SQLite cannot alter constraints in place, so DDL rebuilds the table (see
// rebuildTable). Only foreign keys declared with CONSTRAINT <name> are
// reported: PRAGMA foreign_key_list carries no names.
type SQLiteInspector struct {
	client *SQLiteClient
}

var _ Inspector = (*SQLiteInspector)(nil)

// NewSQLiteInspector creates a new SQLite inspector
func NewSQLiteInspector(client *SQLiteClient) *SQLiteInspector {
	return &SQLiteInspector{
		client: client,
	}
}

// Platform returns PlatformSQLite
func (i *SQLiteInspector) Platform() Platform {
	return PlatformSQLite
}

// SupportsOnUpdateAction reports whether ON UPDATE actions are accepted
func (i *SQLiteInspector) SupportsOnUpdateAction() bool {
	return PlatformSQLite.SupportsOnUpdateAction()
}

// SupportsToggleableForeignKeyChecks reports whether checks can be switched per session
func (i *SQLiteInspector) SupportsToggleableForeignKeyChecks() bool {
	return PlatformSQLite.SupportsToggleableForeignKeyChecks()
}

// ForeignKeyChecksStatement returns the statement switching foreign key checks
func (i *SQLiteInspector) ForeignKeyChecksStatement(enabled bool) string {
	return foreignKeyChecksSQL(PlatformSQLite, enabled)
}

// ListForeignKeys returns the named foreign keys of a table
func (i *SQLiteInspector) ListForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	createSQL, err := i.tableSQL(ctx, tableName)
	if err != nil {
		return nil, err
	}
	items, _, err := splitTableDefinition(createSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definition of %s: %w", tableName, err)
	}
	named := parseNamedForeignKeys(items)

	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", QuoteIdentifier(PlatformSQLite, tableName))
	rows, err := i.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	byID := make(map[int]*schema.ForeignKey)
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete, match string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk, ok := byID[id]
		if !ok {
			fk = &schema.ForeignKey{
				ForeignTable: targetTable,
				OnDelete:     normalizeSQLiteAction(onDelete),
				OnUpdate:     normalizeSQLiteAction(onUpdate),
			}
			byID[id] = fk
			ids = append(ids, id)
		}
		fk.LocalColumns = append(fk.LocalColumns, fromCol)
		// A NULL target column means the parent's primary key is referenced
		fk.ForeignColumns = append(fk.ForeignColumns, toCol.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	fks := make([]schema.ForeignKey, 0, len(ids))
	used := make(map[int]bool)
	for _, id := range ids {
		fk := byID[id]
		pos := matchNamedForeignKey(named, used, fk.LocalColumns, fk.ForeignTable)
		if pos < 0 {
			log.Ctx(ctx).Debug().
				Str("table", tableName).
				Strs("columns", fk.LocalColumns).
				Msg("skipping unnamed foreign key")
			continue
		}
		used[pos] = true
		fk.Name = named[pos].Name

		if hasEmpty(fk.ForeignColumns) {
			pk, err := i.primaryKey(ctx, fk.ForeignTable)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve primary key of %s: %w", fk.ForeignTable, err)
			}
			if len(pk) == len(fk.LocalColumns) {
				fk.ForeignColumns = pk
			}
		}
		fks = append(fks, *fk)
	}

	sort.Slice(fks, func(a, b int) bool { return fks[a].Name < fks[b].Name })
	return fks, nil
}

func normalizeSQLiteAction(action string) string {
	if schema.NormalizeAction(action) == schema.ActionNoAction {
		return ""
	}
	return schema.NormalizeAction(action)
}

func hasEmpty(values []string) bool {
	for _, v := range values {
		if v == "" {
			return true
		}
	}
	return false
}

// primaryKey returns the primary key columns of a table in key order
func (i *SQLiteInspector) primaryKey(ctx context.Context, tableName string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdentifier(PlatformSQLite, tableName))

	rows, err := i.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ordered := make(map[int]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pkOrder int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pkOrder); err != nil {
			return nil, err
		}

		if pkOrder > 0 {
			ordered[pkOrder] = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pk := make([]string, 0, len(ordered))
	for n := 1; n <= len(ordered); n++ {
		pk = append(pk, ordered[n])
	}
	return pk, nil
}

// ListIndexes returns the explicitly created indexes of a table
func (i *SQLiteInspector) ListIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := fmt.Sprintf("PRAGMA index_list(%s)", QuoteIdentifier(PlatformSQLite, tableName))

	rows, err := i.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	type indexHead struct {
		name   string
		unique bool
	}
	var heads []indexHead
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}

		// Skip auto-generated primary key and unique indexes
		if strings.HasPrefix(name, "sqlite_autoindex") {
			continue
		}
		heads = append(heads, indexHead{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds a single connection: release it before the next query
	rows.Close()

	var indexes []schema.Index
	for _, head := range heads {
		columns, err := i.indexColumns(ctx, head.name)
		if err != nil {
			return nil, err
		}
		if len(columns) > 0 {
			indexes = append(indexes, schema.Index{
				Name:     head.name,
				IsUnique: head.unique,
				Columns:  columns,
			})
		}
	}

	sort.Slice(indexes, func(a, b int) bool { return indexes[a].Name < indexes[b].Name })
	return indexes, nil
}

func (i *SQLiteInspector) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%s)", QuoteIdentifier(PlatformSQLite, indexName))
	rows, err := i.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString

		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}

		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}

	return columns, rows.Err()
}

// DropForeignKey rebuilds the table without the named foreign key
func (i *SQLiteInspector) DropForeignKey(ctx context.Context, tableName, name string) error {
	return i.rebuildTable(ctx, tableName, func(items []string) ([]string, error) {
		return removeNamedForeignKey(items, tableName, name)
	})
}

// CreateForeignKey rebuilds the table with fk appended to its definitions
func (i *SQLiteInspector) CreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	return i.rebuildTable(ctx, tableName, func(items []string) ([]string, error) {
		return append(items, ForeignKeyClause(PlatformSQLite, "", fk)), nil
	})
}

// CreateIndex creates a plain index
func (i *SQLiteInspector) CreateIndex(ctx context.Context, tableName, name string, columns []string) error {
	return i.exec(ctx, createIndexSQL(PlatformSQLite, "", tableName, name, columns))
}

// DropAndCreateForeignKey replaces a foreign key with a single table rebuild
func (i *SQLiteInspector) DropAndCreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	return i.rebuildTable(ctx, tableName, func(items []string) ([]string, error) {
		remaining, err := removeNamedForeignKey(items, tableName, fk.Name)
		if err != nil {
			return nil, err
		}
		return append(remaining, ForeignKeyClause(PlatformSQLite, "", fk)), nil
	})
}

// Execute runs a statement on the inspector's session
func (i *SQLiteInspector) Execute(ctx context.Context, statement string) error {
	return i.exec(ctx, statement)
}

// Close closes the connection
func (i *SQLiteInspector) Close(_ context.Context) error {
	return i.client.Close()
}

func (i *SQLiteInspector) exec(ctx context.Context, statement string) error {
	log.Ctx(ctx).Debug().Str("platform", string(PlatformSQLite)).Str("query", statement).Msg("executing statement")
	if _, err := i.client.GetDB().ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("failed to execute %q: %w", statement, err)
	}
	return nil
}

// tableSQL returns the CREATE TABLE statement SQLite stored for a table
func (i *SQLiteInspector) tableSQL(ctx context.Context, tableName string) (string, error) {
	var createSQL string
	err := i.client.GetDB().QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, tableName,
	).Scan(&createSQL)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("table %s does not exist", tableName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read definition of %s: %w", tableName, err)
	}
	return createSQL, nil
}
