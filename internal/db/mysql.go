package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLClient manages the connection to MySQL
type MySQLClient struct {
	db       *sql.DB
	database string
}

// NewMySQLClient creates a new MySQL client from a driver DSN
// (user:pass@tcp(host:port)/database). A non-empty database overrides the
// one named in the DSN.
func NewMySQLClient(ctx context.Context, dsn, database string, timeout time.Duration) (*MySQLClient, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if database != "" {
		cfg.DBName = database
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := sql.OpenDB(connector)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classifyMySQLError(err))
	}

	return &MySQLClient{db: db, database: cfg.DBName}, nil
}

// Close closes the database connection
func (c *MySQLClient) Close() error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *MySQLClient) GetDB() *sql.DB {
	return c.db
}

// Database returns the name of the connected database
func (c *MySQLClient) Database() string {
	return c.database
}

// MySQLDatabaseName returns the database named in a DSN
func MySQLDatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	return cfg.DBName, nil
}
