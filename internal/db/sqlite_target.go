package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/tordrt/docschema/internal/schema"
)

// SQLiteTarget stores each collection as a table of JSON text documents.
// Indexes are expression indexes over json_extract(doc, '$.field'), named
// "<collection>_<index>".
type SQLiteTarget struct {
	db *sql.DB
}

// NewSQLiteTarget creates a target on an open database
func NewSQLiteTarget(db *sql.DB) *SQLiteTarget {
	return &SQLiteTarget{db: db}
}

// Engine returns "sqlite"
func (t *SQLiteTarget) Engine() string {
	return "sqlite"
}

// ListCollections returns all user tables
func (t *SQLiteTarget) ListCollections(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
			AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifySQLiteError(err))
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
		return nil, fmt.Errorf("failed to list collections: %w", classifySQLiteError(err))
	}
	return names, nil
}

// CreateCollection creates the document table
func (t *SQLiteTarget) CreateCollection(ctx context.Context, name string) error {
	query := fmt.Sprintf(
		"CREATE TABLE %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL DEFAULT '{}' CHECK (json_valid(doc)))",
		quoteIdent(name),
	)
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create collection: %w", classifySQLiteError(err))
	}
	return nil
}

// ListIndexes returns the explicitly created indexes of a collection.
// Automatic indexes backing PRIMARY KEY and UNIQUE constraints have no SQL
// text and are skipped.
func (t *SQLiteTarget) ListIndexes(ctx context.Context, collection string) ([]schema.Index, error) {
	query := `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'index'
			AND tbl_name = ?
			AND sql IS NOT NULL
		ORDER BY name
	`

	rows, err := t.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifySQLiteError(err))
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		index, err := parseSQLiteIndex(ddl)
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", name, err)
		}
		index.Name = logicalIndexName(collection, name)
		indexes = append(indexes, index)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifySQLiteError(err))
	}
	return indexes, nil
}

// CreateIndex creates an expression index over the document fields
func (t *SQLiteTarget) CreateIndex(ctx context.Context, collection string, index schema.Index) error {
	if _, err := t.db.ExecContext(ctx, createSQLiteIndexSQL(collection, index)); err != nil {
		return fmt.Errorf("failed to create index: %w", classifySQLiteError(err))
	}
	return nil
}

func createSQLiteIndexSQL(collection string, index schema.Index) string {
	parts := make([]string, 0, len(index.Keys))
	for _, k := range index.Keys {
		parts = append(parts, fmt.Sprintf("json_extract(doc, %s) %s", quoteLiteral("$."+k.Field), sqlDirection(k.Direction)))
	}

	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		quoteIdent(physicalIndexName(collection, index.Name)),
		quoteIdent(collection),
		strings.Join(parts, ", "),
	)
}

var (
	sqliteIndexDDL = regexp.MustCompile(`(?is)^\s*CREATE\s+(UNIQUE\s+)?INDEX\s.*?\sON\s+\S+?\s*\((.*)\)(?:\s+WHERE\s.*)?\s*$`)
	sqliteJSONKey  = regexp.MustCompile(`(?is)^json_extract\s*\(\s*"?doc"?\s*,\s*'\$\.((?:[^']|'')*)'\s*\)$`)
	sqliteKeyOrder = regexp.MustCompile(`(?i)\s+(ASC|DESC)$`)
)

// parseSQLiteIndex reads the key parts and uniqueness back from the CREATE
// INDEX statement SQLite stores. Keys that are not json_extract expressions
// keep their raw text as the field name.
func parseSQLiteIndex(ddl string) (schema.Index, error) {
	m := sqliteIndexDDL.FindStringSubmatch(ddl)
	if m == nil {
		return schema.Index{}, fmt.Errorf("unrecognized index definition %q", ddl)
	}

	index := schema.Index{Unique: m[1] != ""}
	for _, part := range splitTopLevel(m[2]) {
		part = strings.TrimSpace(part)

		dir := schema.Ascending
		if o := sqliteKeyOrder.FindStringSubmatch(part); o != nil {
			if strings.EqualFold(o[1], "DESC") {
				dir = schema.Descending
			}
			part = strings.TrimSpace(part[:len(part)-len(o[0])])
		}

		field := part
		if jm := sqliteJSONKey.FindStringSubmatch(part); jm != nil {
			field = strings.ReplaceAll(jm[1], "''", "'")
		}
		index.Keys = append(index.Keys, schema.Key{Field: field, Direction: dir})
	}

	return index, nil
}

// splitTopLevel splits s at commas outside parentheses and quotes
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)

	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	return append(parts, s[start:])
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// classifySQLiteError wraps err with the matching schema sentinel
func classifySQLiteError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %w", schema.ErrDataConflict, err)
		case sqliteErr.Code == sqlite3.ErrCantOpen, sqliteErr.Code == sqlite3.ErrBusy:
			return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
		case sqliteErr.Code == sqlite3.ErrPerm, sqliteErr.Code == sqlite3.ErrAuth, sqliteErr.Code == sqlite3.ErrReadonly:
			return fmt.Errorf("%w: %w", schema.ErrAuthorization, err)
		case strings.Contains(sqliteErr.Error(), "already exists"):
			return fmt.Errorf("%w: %w", schema.ErrAlreadyExists, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
	}

	return err
}
