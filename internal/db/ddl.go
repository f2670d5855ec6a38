package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/dbintegrity/internal/schema"
)

// QuoteIdentifier quotes a table, column, index or constraint name
func QuoteIdentifier(p Platform, name string) string {
	switch p {
	case PlatformMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case PlatformPostgres:
		return pgx.Identifier{name}.Sanitize()
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteTable quotes a table name, qualifying it with schemaName (the
// PostgreSQL schema or the MySQL database) when one is given. SQLite has a
// single schema per connection and is never qualified.
func QuoteTable(p Platform, schemaName, table string) string {
	if schemaName == "" {
		return QuoteIdentifier(p, table)
	}
	switch p {
	case PlatformPostgres:
		return pgx.Identifier{schemaName, table}.Sanitize()
	case PlatformMySQL:
		return QuoteIdentifier(p, schemaName) + "." + QuoteIdentifier(p, table)
	}
	return QuoteIdentifier(p, table)
}

func quoteColumns(p Platform, columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = QuoteIdentifier(p, col)
	}
	return strings.Join(quoted, ", ")
}

// ForeignKeyClause renders the table-constraint form of a foreign key:
// CONSTRAINT name FOREIGN KEY (...) REFERENCES table (...) [ON DELETE ...] [ON UPDATE ...]
func ForeignKeyClause(p Platform, schemaName string, fk schema.ForeignKey) string {
	var b strings.Builder
	if fk.Name != "" {
		fmt.Fprintf(&b, "CONSTRAINT %s ", QuoteIdentifier(p, fk.Name))
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteColumns(p, fk.LocalColumns),
		QuoteTable(p, schemaName, fk.ForeignTable),
		quoteColumns(p, fk.ForeignColumns),
	)
	if action := schema.NormalizeAction(fk.OnDelete); action != "" {
		b.WriteString(" ON DELETE " + action)
	}
	if action := schema.NormalizeAction(fk.OnUpdate); action != "" && p.SupportsOnUpdateAction() {
		b.WriteString(" ON UPDATE " + action)
	}
	return b.String()
}

func addForeignKeySQL(p Platform, schemaName, table string, fk schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", QuoteTable(p, schemaName, table), ForeignKeyClause(p, schemaName, fk))
}

func dropForeignKeySQL(p Platform, schemaName, table, name string) string {
	if p == PlatformMySQL {
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", QuoteTable(p, schemaName, table), QuoteIdentifier(p, name))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", QuoteTable(p, schemaName, table), QuoteIdentifier(p, name))
}

func createIndexSQL(p Platform, schemaName, table, name string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		QuoteIdentifier(p, name),
		QuoteTable(p, schemaName, table),
		quoteColumns(p, columns),
	)
}

func foreignKeyChecksSQL(p Platform, enabled bool) string {
	switch p {
	case PlatformMySQL:
		if enabled {
			return "SET FOREIGN_KEY_CHECKS = 1"
		}
		return "SET FOREIGN_KEY_CHECKS = 0"
	case PlatformSQLite:
		if enabled {
			return "PRAGMA foreign_keys = ON"
		}
		return "PRAGMA foreign_keys = OFF"
	}
	return ""
}

// SyntheticTableSQL returns placeholder statements that define table with
// integer local columns, a supporting index and the foreign key itself.
// Column types are irrelevant: the owner's own table definition replaces them.
func SyntheticTableSQL(p Platform, table string, fk schema.ForeignKey) []string {
	if p == PlatformMySQL {
		columns := make([]string, 0, len(fk.LocalColumns)+2)
		for _, col := range fk.LocalColumns {
			columns = append(columns, QuoteIdentifier(p, col)+" int(11)")
		}
		columns = append(columns,
			fmt.Sprintf("INDEX %s (%s)", QuoteIdentifier(p, fk.Name), quoteColumns(p, fk.LocalColumns)),
			ForeignKeyClause(p, "", fk),
		)
		return []string{
			fmt.Sprintf("CREATE TABLE %s ( %s );", QuoteIdentifier(p, table), strings.Join(columns, ", ")),
		}
	}

	columns := make([]string, 0, len(fk.LocalColumns)+1)
	for _, col := range fk.LocalColumns {
		columns = append(columns, QuoteIdentifier(p, col)+" integer")
	}
	columns = append(columns, ForeignKeyClause(p, "", fk))
	return []string{
		fmt.Sprintf("CREATE TABLE %s ( %s );", QuoteIdentifier(p, table), strings.Join(columns, ", ")),
		createIndexSQL(p, "", table, fk.Name, fk.LocalColumns) + ";",
	}
}
