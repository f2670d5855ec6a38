package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultConnection names the connection used for unmapped tables
const DefaultConnection = "default"

// ParseDatabaseURL detects database type and returns connection string
func ParseDatabaseURL(url string) (Platform, string, error) {
	if url == "" {
		return "", "", fmt.Errorf("database URL is required")
	}

	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return PlatformPostgres, url, nil
	}

	if strings.HasPrefix(url, "mysql://") {
		// Strip mysql:// prefix for the Go MySQL driver
		return PlatformMySQL, strings.TrimPrefix(url, "mysql://"), nil
	}

	if strings.HasPrefix(url, "sqlite://") {
		// Strip sqlite:// prefix to get file path
		return PlatformSQLite, strings.TrimPrefix(url, "sqlite://"), nil
	}

	return "", "", fmt.Errorf("invalid database URL scheme (must start with postgres://, mysql://, or sqlite://)")
}

// Open connects to the database behind url and returns its inspector.
// schemaName selects the PostgreSQL schema (default "public") or the MySQL
// database (default: the one named in the DSN); SQLite ignores it.
func Open(ctx context.Context, url, schemaName string) (Inspector, error) {
	platform, connStr, err := ParseDatabaseURL(url)
	if err != nil {
		return nil, err
	}

	switch platform {
	case PlatformPostgres:
		client, err := NewPostgresClient(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return NewPostgresInspector(client, schemaName), nil
	case PlatformMySQL:
		if schemaName == "" {
			schemaName, err = ParseDatabaseName(connStr)
			if err != nil {
				return nil, fmt.Errorf("failed to determine database name: %w", err)
			}
		}
		client, err := NewMySQLClient(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return NewMySQLInspector(client, schemaName), nil
	default:
		client, err := NewSQLiteClient(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		return NewSQLiteInspector(client), nil
	}
}

// Pool resolves tables to inspectors. Tables are served by the default
// connection unless a table mapping routes them to a named one. Connections
// are opened lazily and kept until Close.
type Pool struct {
	schemaName   string
	urls         map[string]string
	tableMapping map[string]string
	open         map[string]Inspector
	opener       func(ctx context.Context, url, schemaName string) (Inspector, error)
}

var _ Resolver = (*Pool)(nil)

type PoolOption func(p *Pool)

// WithSchema sets the schema (PostgreSQL) or database (MySQL) to inspect
func WithSchema(name string) PoolOption {
	return func(p *Pool) {
		p.schemaName = name
	}
}

// WithConnection registers an additional named connection
func WithConnection(name, url string) PoolOption {
	return func(p *Pool) {
		p.urls[name] = url
	}
}

// WithTableMapping routes a table to a named connection
func WithTableMapping(table, connection string) PoolOption {
	return func(p *Pool) {
		p.tableMapping[table] = connection
	}
}

// WithOpener replaces the function used to open connections
func WithOpener(opener func(ctx context.Context, url, schemaName string) (Inspector, error)) PoolOption {
	return func(p *Pool) {
		p.opener = opener
	}
}

// NewPool creates a pool whose default connection points at defaultURL
func NewPool(defaultURL string, opts ...PoolOption) *Pool {
	p := &Pool{
		urls:         map[string]string{DefaultConnection: defaultURL},
		tableMapping: make(map[string]string),
		open:         make(map[string]Inspector),
		opener:       Open,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) connectionFor(table string) (string, string, error) {
	name, ok := p.tableMapping[table]
	if !ok {
		name = DefaultConnection
	}
	url, ok := p.urls[name]
	if !ok {
		return "", "", fmt.Errorf("table %s is mapped to unknown connection %s", table, name)
	}
	return name, url, nil
}

// ForTable returns the inspector of the connection serving table
func (p *Pool) ForTable(ctx context.Context, table string) (Inspector, error) {
	name, url, err := p.connectionFor(table)
	if err != nil {
		return nil, err
	}
	if ins, ok := p.open[name]; ok {
		return ins, nil
	}
	ins, err := p.opener(ctx, url, p.schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection %s: %w", name, err)
	}
	p.open[name] = ins
	return ins, nil
}

// PlatformForTable returns the platform of the connection serving table
func (p *Pool) PlatformForTable(table string) (Platform, error) {
	_, url, err := p.connectionFor(table)
	if err != nil {
		return "", err
	}
	platform, _, err := ParseDatabaseURL(url)
	return platform, err
}

// Close closes every opened connection
func (p *Pool) Close(ctx context.Context) error {
	var errs []error
	for name, ins := range p.open {
		if err := ins.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection %s: %w", name, err))
		}
		delete(p.open, name)
	}
	return errors.Join(errs...)
}
