package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/tordrt/docschema/internal/schema"
)

// MySQL server error numbers
const (
	mysqlErrDBAccessDenied    = 1044
	mysqlErrAccessDenied      = 1045
	mysqlErrTableExists       = 1050
	mysqlErrDuplicateKeyName  = 1061
	mysqlErrDuplicateEntry    = 1062
	mysqlErrTableAccessDenied = 1142
)

// MySQLTarget stores each collection as a table with a JSON document column.
// Indexes use functional key parts over doc->>'$.field' (MySQL 8.0.13+),
// named "<collection>_<index>".
type MySQLTarget struct {
	db *sql.DB
}

// NewMySQLTarget creates a target on an open database
func NewMySQLTarget(db *sql.DB) *MySQLTarget {
	return &MySQLTarget{db: db}
}

// Engine returns "mysql"
func (t *MySQLTarget) Engine() string {
	return "mysql"
}

// ListCollections returns the base tables of the connected database
func (t *MySQLTarget) ListCollections(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
			AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifyMySQLError(err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifyMySQLError(err))
	}
	return names, nil
}

// CreateCollection creates the document table
func (t *MySQLTarget) CreateCollection(ctx context.Context, name string) error {
	query := fmt.Sprintf("CREATE TABLE %s (id VARCHAR(255) PRIMARY KEY, doc JSON NOT NULL)", quoteMySQLIdent(name))
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create collection: %w", classifyMySQLError(err))
	}
	return nil
}

// ListIndexes returns the secondary indexes of a collection table
func (t *MySQLTarget) ListIndexes(ctx context.Context, collection string) ([]schema.Index, error) {
	query := `
		SELECT
			index_name,
			non_unique,
			COALESCE(column_name, ''),
			COALESCE(` + "`expression`" + `, ''),
			COALESCE(` + "`collation`" + `, 'A')
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
			AND table_name = ?
			AND index_name <> 'PRIMARY'
		ORDER BY index_name, seq_in_index
	`

	rows, err := t.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifyMySQLError(err))
	}
	defer rows.Close()

	var indexes []schema.Index
	positions := make(map[string]int)

	for rows.Next() {
		var (
			name, column, expr, collation string
			nonUnique                     int
		)
		if err := rows.Scan(&name, &nonUnique, &column, &expr, &collation); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		pos, ok := positions[name]
		if !ok {
			pos = len(indexes)
			positions[name] = pos
			indexes = append(indexes, schema.Index{
				Name:   logicalIndexName(collection, name),
				Unique: nonUnique == 0,
			})
		}

		field := column
		if expr != "" {
			field = mysqlField(expr)
		}

		dir := schema.Ascending
		if collation == "D" {
			dir = schema.Descending
		}
		indexes[pos].Keys = append(indexes[pos].Keys, schema.Key{Field: field, Direction: dir})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifyMySQLError(err))
	}
	return indexes, nil
}

// CreateIndex creates a functional index over the document fields
func (t *MySQLTarget) CreateIndex(ctx context.Context, collection string, index schema.Index) error {
	if _, err := t.db.ExecContext(ctx, createMySQLIndexSQL(collection, index)); err != nil {
		return fmt.Errorf("failed to create index: %w", classifyMySQLError(err))
	}
	return nil
}

func createMySQLIndexSQL(collection string, index schema.Index) string {
	parts := make([]string, 0, len(index.Keys))
	for _, k := range index.Keys {
		parts = append(parts, fmt.Sprintf(
			"(CAST(doc->>%s AS CHAR(255)) COLLATE utf8mb4_bin) %s",
			quoteLiteral("$."+k.Field),
			sqlDirection(k.Direction),
		))
	}

	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		quoteMySQLIdent(physicalIndexName(collection, index.Name)),
		quoteMySQLIdent(collection),
		strings.Join(parts, ", "),
	)
}

// The server reports functional key parts rewritten, e.g.
// (cast(json_unquote(json_extract(`doc`,_utf8mb4\'$.email\')) as char(255) charset utf8mb4) collate utf8mb4_bin)
var mysqlJSONPath = regexp.MustCompile("(?i)json_extract\\(\\s*`?doc`?\\s*,\\s*(?:_[a-z0-9]+)?\\\\?'\\$\\.(.+?)\\\\?'\\s*\\)")

// mysqlField extracts the document field from a key part expression. Other
// expressions come back unchanged and never match a planned key.
func mysqlField(expr string) string {
	if m := mysqlJSONPath.FindStringSubmatch(expr); m != nil {
		return m[1]
	}
	return expr
}

func quoteMySQLIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// classifyMySQLError wraps err with the matching schema sentinel
func classifyMySQLError(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrAccessDenied, mysqlErrTableAccessDenied:
			return fmt.Errorf("%w: %w", schema.ErrAuthorization, err)
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %w", schema.ErrDataConflict, err)
		case mysqlErrTableExists:
			return fmt.Errorf("%w: %w", schema.ErrAlreadyExists, err)
		case mysqlErrDuplicateKeyName:
			return fmt.Errorf("%w: %w", schema.ErrConflict, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
	}

	return err
}
