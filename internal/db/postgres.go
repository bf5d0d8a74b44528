package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresClient manages the connection to PostgreSQL
type PostgresClient struct {
	conn     *pgx.Conn
	database string
}

// NewPostgresClient creates a new PostgreSQL client. A non-empty database
// overrides the one named in connString.
func NewPostgresClient(ctx context.Context, connString, database string, timeout time.Duration) (*PostgresClient, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if database != "" {
		cfg.Database = database
	}
	if timeout > 0 {
		cfg.ConnectTimeout = timeout
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", classifyPostgresError(err))
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", classifyPostgresError(err))
	}

	return &PostgresClient{conn: conn, database: cfg.Database}, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (c *PostgresClient) GetConnection() *pgx.Conn {
	return c.conn
}

// Database returns the name of the connected database
func (c *PostgresClient) Database() string {
	return c.database
}

// PostgresDatabaseName returns the database named in a connection string
func PostgresDatabaseName(connString string) (string, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return "", fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	return cfg.Database, nil
}
