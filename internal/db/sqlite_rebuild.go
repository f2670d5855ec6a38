package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

const sqliteRebuildPrefix = "_dbintegrity_rebuild_"

const sqliteIdent = `("(?:[^"]|"")+"|` + "`[^`]+`" + `|\[[^\]]+\]|'[^']+'|[^\s(,]+)`

var sqliteNamedForeignKey = regexp.MustCompile(
	`(?is)^CONSTRAINT\s+` + sqliteIdent + `\s+FOREIGN\s+KEY\s*\(([^)]*)\)\s*REFERENCES\s+` + sqliteIdent,
)

type namedForeignKey struct {
	Name         string
	Columns      []string
	ForeignTable string
	Item         int
}

// splitTableDefinition splits a CREATE TABLE statement into its top-level
// column and constraint definitions plus whatever follows the closing
// parenthesis (e.g. " WITHOUT ROWID"). SQL comments are dropped from the
// items; SQLite keeps them verbatim in sqlite_master.
func splitTableDefinition(createSQL string) (items []string, tail string, err error) {
	depth := 0
	var item strings.Builder
	for pos := 0; pos < len(createSQL); pos++ {
		c := createSQL[pos]
		switch {
		case strings.HasPrefix(createSQL[pos:], "--"):
			end := strings.IndexByte(createSQL[pos:], '\n')
			if end < 0 {
				pos = len(createSQL)
			} else {
				pos += end
			}
			item.WriteByte(' ')
		case strings.HasPrefix(createSQL[pos:], "/*"):
			end := strings.Index(createSQL[pos+2:], "*/")
			if end < 0 {
				return nil, "", errors.New("unterminated comment in table definition")
			}
			pos += 2 + end + 1
			item.WriteByte(' ')
		case c == '"' || c == '\'' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			end := strings.IndexByte(createSQL[pos+1:], closing)
			if end < 0 {
				return nil, "", errors.New("unterminated quote in table definition")
			}
			if depth > 0 {
				item.WriteString(createSQL[pos : pos+end+2])
			}
			pos += end + 1
		case c == '(':
			depth++
			if depth > 1 {
				item.WriteByte(c)
			}
		case c == ')':
			depth--
			if depth == 0 {
				items = appendItem(items, item.String())
				return items, createSQL[pos+1:], nil
			}
			item.WriteByte(c)
		case c == ',' && depth == 1:
			items = appendItem(items, item.String())
			item.Reset()
		default:
			if depth > 0 {
				item.WriteByte(c)
			}
		}
	}
	return nil, "", errors.New("unbalanced parentheses in table definition")
}

func appendItem(items []string, item string) []string {
	if item = strings.TrimSpace(item); item != "" {
		items = append(items, item)
	}
	return items
}

func unquoteIdentifier(ident string) string {
	ident = strings.TrimSpace(ident)
	if len(ident) >= 2 {
		switch first, last := ident[0], ident[len(ident)-1]; {
		case first == '"' && last == '"':
			return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
		case first == '`' && last == '`', first == '[' && last == ']', first == '\'' && last == '\'':
			return ident[1 : len(ident)-1]
		}
	}
	return ident
}

func parseNamedForeignKeys(items []string) []namedForeignKey {
	var named []namedForeignKey
	for pos, item := range items {
		m := sqliteNamedForeignKey.FindStringSubmatch(item)
		if m == nil {
			continue
		}
		var columns []string
		for _, col := range strings.Split(m[2], ",") {
			columns = append(columns, unquoteIdentifier(col))
		}
		named = append(named, namedForeignKey{
			Name:         unquoteIdentifier(m[1]),
			Columns:      columns,
			ForeignTable: unquoteIdentifier(m[3]),
			Item:         pos,
		})
	}
	return named
}

func matchNamedForeignKey(named []namedForeignKey, used map[int]bool, columns []string, foreignTable string) int {
	for pos, fk := range named {
		if used[pos] || !strings.EqualFold(fk.ForeignTable, foreignTable) || len(fk.Columns) != len(columns) {
			continue
		}
		equal := true
		for n := range columns {
			if !strings.EqualFold(fk.Columns[n], columns[n]) {
				equal = false
				break
			}
		}
		if equal {
			return pos
		}
	}
	return -1
}

func removeNamedForeignKey(items []string, tableName, name string) ([]string, error) {
	for _, fk := range parseNamedForeignKeys(items) {
		if fk.Name != name {
			continue
		}
		remaining := make([]string, 0, len(items)-1)
		remaining = append(remaining, items[:fk.Item]...)
		return append(remaining, items[fk.Item+1:]...), nil
	}
	return nil, fmt.Errorf("foreign key %s not found on table %s", name, tableName)
}

// rebuildTable applies mutate to the table's definitions following SQLite's
// documented procedure for schema changes ALTER TABLE cannot express: create
// the new table, copy the rows, drop the old table, rename, and recreate the
// table's indexes and triggers.
func (i *SQLiteInspector) rebuildTable(ctx context.Context, tableName string, mutate func(items []string) ([]string, error)) (err error) {
	createSQL, err := i.tableSQL(ctx, tableName)
	if err != nil {
		return err
	}
	items, tail, err := splitTableDefinition(createSQL)
	if err != nil {
		return fmt.Errorf("failed to parse definition of %s: %w", tableName, err)
	}
	items, err = mutate(items)
	if err != nil {
		return err
	}
	auxiliary, err := i.auxiliarySQL(ctx, tableName)
	if err != nil {
		return err
	}

	var enforced bool
	if err := i.client.GetDB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enforced); err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if enforced {
		if err := i.exec(ctx, foreignKeyChecksSQL(PlatformSQLite, false)); err != nil {
			return err
		}
		defer func() {
			if enableErr := i.exec(ctx, foreignKeyChecksSQL(PlatformSQLite, true)); enableErr != nil {
				err = errors.Join(err, enableErr)
			}
		}()
	}

	tx, err := i.client.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tmpName := sqliteRebuildPrefix + tableName
	statements := []string{
		fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)%s",
			QuoteIdentifier(PlatformSQLite, tmpName), strings.Join(items, ",\n\t"), tail),
		fmt.Sprintf("INSERT INTO %s SELECT * FROM %s",
			QuoteIdentifier(PlatformSQLite, tmpName), QuoteIdentifier(PlatformSQLite, tableName)),
		fmt.Sprintf("DROP TABLE %s", QuoteIdentifier(PlatformSQLite, tableName)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			QuoteIdentifier(PlatformSQLite, tmpName), QuoteIdentifier(PlatformSQLite, tableName)),
	}
	statements = append(statements, auxiliary...)

	for _, statement := range statements {
		log.Ctx(ctx).Debug().Str("platform", string(PlatformSQLite)).Str("query", statement).Msg("executing statement")
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to rebuild table %s: %q: %w", tableName, statement, err)
		}
	}

	if enforced {
		violations, err := countViolations(ctx, tx, tableName)
		if err != nil {
			return err
		}
		if violations > 0 {
			return fmt.Errorf("failed to rebuild table %s: %d row(s) violate foreign keys", tableName, violations)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild of %s: %w", tableName, err)
	}
	return nil
}

// auxiliarySQL returns the CREATE statements of the indexes and triggers
// that are dropped together with the table.
func (i *SQLiteInspector) auxiliarySQL(ctx context.Context, tableName string) ([]string, error) {
	rows, err := i.client.GetDB().QueryContext(ctx,
		`SELECT sql FROM sqlite_master
		WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL
		ORDER BY CASE type WHEN 'index' THEN 0 ELSE 1 END, name`,
		tableName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes and triggers of %s: %w", tableName, err)
	}
	defer rows.Close()

	var statements []string
	for rows.Next() {
		var statement string
		if err := rows.Scan(&statement); err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
	return statements, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func countViolations(ctx context.Context, q queryer, tableName string) (int, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_check(%s)", QuoteIdentifier(PlatformSQLite, tableName)))
	if err != nil {
		return 0, fmt.Errorf("failed to check foreign keys of %s: %w", tableName, err)
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		violations++
	}
	return violations, rows.Err()
}
