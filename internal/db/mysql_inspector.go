package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// MySQLInspector inspects and changes foreign keys in a MySQL database
type MySQLInspector struct {
	client     *MySQLClient
	schemaName string
}

var _ Inspector = (*MySQLInspector)(nil)

// NewMySQLInspector creates a new MySQL inspector for the given database
func NewMySQLInspector(client *MySQLClient, schemaName string) *MySQLInspector {
	return &MySQLInspector{
		client:     client,
		schemaName: schemaName,
	}
}

// Platform returns PlatformMySQL
func (i *MySQLInspector) Platform() Platform {
	return PlatformMySQL
}

// SupportsOnUpdateAction reports whether ON UPDATE actions are accepted
func (i *MySQLInspector) SupportsOnUpdateAction() bool {
	return PlatformMySQL.SupportsOnUpdateAction()
}

// SupportsToggleableForeignKeyChecks reports whether checks can be switched per session
func (i *MySQLInspector) SupportsToggleableForeignKeyChecks() bool {
	return PlatformMySQL.SupportsToggleableForeignKeyChecks()
}

// ForeignKeyChecksStatement returns the statement switching foreign key checks
func (i *MySQLInspector) ForeignKeyChecksStatement(enabled bool) string {
	return foreignKeyChecksSQL(PlatformMySQL, enabled)
}

// ListForeignKeys returns the foreign keys defined on a table, one entry per
// constraint with columns in ordinal order.
func (i *MySQLInspector) ListForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			kcu.constraint_name,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
			AND rc.table_name = kcu.table_name
		WHERE kcu.table_schema = ?
			AND kcu.table_name = ?
			AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`

	rows, err := i.client.Session().QueryContext(ctx, query, i.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	positions := make(map[string]int)
	for rows.Next() {
		var name, column, refTable, refColumn, updateRule, deleteRule string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &updateRule, &deleteRule); err != nil {
			return nil, err
		}

		pos, ok := positions[name]
		if !ok {
			pos = len(fks)
			positions[name] = pos
			fks = append(fks, schema.ForeignKey{
				Name:         name,
				ForeignTable: refTable,
				OnDelete:     normalizeMySQLRule(deleteRule),
				OnUpdate:     normalizeMySQLRule(updateRule),
			})
		}
		fks[pos].LocalColumns = append(fks[pos].LocalColumns, column)
		fks[pos].ForeignColumns = append(fks[pos].ForeignColumns, refColumn)
	}

	return fks, rows.Err()
}

// normalizeMySQLRule maps the rules InnoDB reports for a foreign key
// declared without an action to "".
func normalizeMySQLRule(rule string) string {
	if schema.IsDefaultAction(rule) {
		return ""
	}
	return schema.NormalizeAction(rule)
}

// ListIndexes returns all secondary indexes of a table
func (i *MySQLInspector) ListIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			s.index_name,
			s.non_unique = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
			AND s.table_name = ?
			AND s.index_name != 'PRIMARY'
		GROUP BY s.index_name, s.non_unique
		ORDER BY s.index_name
	`

	rows, err := i.client.Session().QueryContext(ctx, query, i.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var isUnique int
		var columnNames string

		if err := rows.Scan(&idx.Name, &isUnique, &columnNames); err != nil {
			return nil, err
		}

		idx.IsUnique = (isUnique == 1)
		idx.Columns = strings.Split(columnNames, ",")

		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// DropForeignKey drops a named foreign key
func (i *MySQLInspector) DropForeignKey(ctx context.Context, tableName, name string) error {
	return i.exec(ctx, dropForeignKeySQL(PlatformMySQL, i.schemaName, tableName, name))
}

// CreateForeignKey adds a foreign key
func (i *MySQLInspector) CreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	return i.exec(ctx, addForeignKeySQL(PlatformMySQL, i.schemaName, tableName, fk))
}

// CreateIndex creates a plain index
func (i *MySQLInspector) CreateIndex(ctx context.Context, tableName, name string, columns []string) error {
	return i.exec(ctx, createIndexSQL(PlatformMySQL, i.schemaName, tableName, name, columns))
}

// DropAndCreateForeignKey replaces a foreign key. InnoDB rejects dropping and
// re-adding the same constraint name in one ALTER, hence two statements.
func (i *MySQLInspector) DropAndCreateForeignKey(ctx context.Context, tableName string, fk schema.ForeignKey) error {
	if err := i.DropForeignKey(ctx, tableName, fk.Name); err != nil {
		return err
	}
	return i.CreateForeignKey(ctx, tableName, fk)
}

// Execute runs a statement on the pinned session
func (i *MySQLInspector) Execute(ctx context.Context, statement string) error {
	return i.exec(ctx, statement)
}

// Close closes the connection
func (i *MySQLInspector) Close(_ context.Context) error {
	return i.client.Close()
}

func (i *MySQLInspector) exec(ctx context.Context, statement string) error {
	log.Ctx(ctx).Debug().Str("platform", string(PlatformMySQL)).Str("query", statement).Msg("executing statement")
	if _, err := i.client.Session().ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("failed to execute %q: %w", statement, err)
	}
	return nil
}
