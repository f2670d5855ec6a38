package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLClient manages the connection to MySQL.
//
// FOREIGN_KEY_CHECKS is a session variable, so every statement goes through
// one pinned connection rather than the pool.
type MySQLClient struct {
	db   *sql.DB
	conn *sql.Conn
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(ctx context.Context, connString string) (*MySQLClient, error) {
	db, err := sql.Open("mysql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}

	return &MySQLClient{db: db, conn: conn}, nil
}

// Close closes the session and the database handle
func (c *MySQLClient) Close() error {
	if err := c.conn.Close(); err != nil {
		_ = c.db.Close()
		return err
	}
	return c.db.Close()
}

// GetDB returns the underlying database handle
func (c *MySQLClient) GetDB() *sql.DB {
	return c.db
}

// Session returns the pinned connection all inspector statements use
func (c *MySQLClient) Session() *sql.Conn {
	return c.conn
}

// ParseDatabaseName extracts the database name from a MySQL DSN
func ParseDatabaseName(connString string) (string, error) {
	cfg, err := mysql.ParseDSN(connString)
	if err != nil {
		return "", fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("DSN does not select a database")
	}
	return cfg.DBName, nil
}
