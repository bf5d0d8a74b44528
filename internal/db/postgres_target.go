package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tordrt/docschema/internal/schema"
)

// PostgreSQL SQLSTATE codes
const (
	pgCodeInsufficientPrivilege = "42501"
	pgCodeInvalidAuthorization  = "28000"
	pgCodeInvalidPassword       = "28P01"
	pgCodeUniqueViolation       = "23505"
	pgCodeDuplicateTable        = "42P07"
	pgCodeDuplicateObject       = "42710"
)

// pgQuerier is the part of *pgx.Conn the target uses
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresTarget stores each collection as a table of jsonb documents in the
// current schema. Indexes are expression indexes over doc fields, named
// "<collection>_<index>".
type PostgresTarget struct {
	conn pgQuerier
}

// NewPostgresTarget creates a target on an open connection
func NewPostgresTarget(conn *pgx.Conn) *PostgresTarget {
	return &PostgresTarget{conn: conn}
}

// Engine returns "postgres"
func (t *PostgresTarget) Engine() string {
	return "postgres"
}

// ListCollections returns the base tables of the current schema
func (t *PostgresTarget) ListCollections(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
			AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := t.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", classifyPostgresError(err))
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
		return nil, fmt.Errorf("failed to list collections: %w", classifyPostgresError(err))
	}
	return names, nil
}

// CreateCollection creates the document table
func (t *PostgresTarget) CreateCollection(ctx context.Context, name string) error {
	if _, err := t.conn.Exec(ctx, createPostgresTableSQL(name)); err != nil {
		return fmt.Errorf("failed to create collection: %w", classifyPostgresError(err))
	}
	return nil
}

// ListIndexes returns the secondary indexes of a collection table. The
// primary key is not reported.
func (t *PostgresTarget) ListIndexes(ctx context.Context, collection string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname,
			ix.indisunique,
			ARRAY(
				SELECT pg_get_indexdef(ix.indexrelid, k, true)
				FROM generate_series(1, ix.indnkeyatts) AS k
				ORDER BY k
			),
			ARRAY(
				SELECT (ix.indoption[k - 1] & 1) = 1
				FROM generate_series(1, ix.indnkeyatts) AS k
				ORDER BY k
			)
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = current_schema()
			AND t.relname = $1
			AND NOT ix.indisprimary
		ORDER BY i.relname
	`

	rows, err := t.conn.Query(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifyPostgresError(err))
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var (
			name       string
			unique     bool
			exprs      []string
			descending []bool
		)
		if err := rows.Scan(&name, &unique, &exprs, &descending); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}

		keys := make([]schema.Key, 0, len(exprs))
		for i, expr := range exprs {
			dir := schema.Ascending
			if i < len(descending) && descending[i] {
				dir = schema.Descending
			}
			keys = append(keys, schema.Key{Field: postgresField(expr), Direction: dir})
		}

		indexes = append(indexes, schema.Index{
			Name:   logicalIndexName(collection, name),
			Keys:   keys,
			Unique: unique,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", classifyPostgresError(err))
	}
	return indexes, nil
}

// CreateIndex creates an expression index over the document fields
func (t *PostgresTarget) CreateIndex(ctx context.Context, collection string, index schema.Index) error {
	if _, err := t.conn.Exec(ctx, createPostgresIndexSQL(collection, index)); err != nil {
		return fmt.Errorf("failed to create index: %w", classifyPostgresError(err))
	}
	return nil
}

func createPostgresTableSQL(name string) string {
	return fmt.Sprintf(
		"CREATE TABLE %s (id text PRIMARY KEY, doc jsonb NOT NULL DEFAULT '{}'::jsonb)",
		pgx.Identifier{name}.Sanitize(),
	)
}

func createPostgresIndexSQL(collection string, index schema.Index) string {
	parts := make([]string, 0, len(index.Keys))
	for _, k := range index.Keys {
		parts = append(parts, fmt.Sprintf("(%s) %s", postgresPath(k.Field), sqlDirection(k.Direction)))
	}

	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		pgx.Identifier{physicalIndexName(collection, index.Name)}.Sanitize(),
		pgx.Identifier{collection}.Sanitize(),
		strings.Join(parts, ", "),
	)
}

// postgresPath renders a dotted field as a jsonb path: a.b -> doc->'a'->'b'
func postgresPath(field string) string {
	var b strings.Builder
	b.WriteString("doc")
	for _, seg := range strings.Split(field, ".") {
		b.WriteString("->")
		b.WriteString(quoteLiteral(seg))
	}
	return b.String()
}

var (
	pgDocExpr  = regexp.MustCompile(`^\(*\s*doc\s*->`)
	pgPathStep = regexp.MustCompile(`->\s*'((?:[^']|'')*)'`)
)

// postgresField reverses postgresPath on the text pg_get_indexdef prints,
// e.g. ((doc -> 'a'::text) -> 'b'::text). Other expressions come back
// unchanged and never match a planned key.
func postgresField(expr string) string {
	if !pgDocExpr.MatchString(expr) {
		return expr
	}

	steps := pgPathStep.FindAllStringSubmatch(expr, -1)
	if len(steps) == 0 {
		return expr
	}

	segs := make([]string, 0, len(steps))
	for _, s := range steps {
		segs = append(segs, strings.ReplaceAll(s[1], "''", "'"))
	}
	return strings.Join(segs, ".")
}

// classifyPostgresError wraps err with the matching schema sentinel
func classifyPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeInsufficientPrivilege, pgCodeInvalidAuthorization, pgCodeInvalidPassword:
			return fmt.Errorf("%w: %w", schema.ErrAuthorization, err)
		case pgCodeUniqueViolation:
			return fmt.Errorf("%w: %w", schema.ErrDataConflict, err)
		case pgCodeDuplicateTable, pgCodeDuplicateObject:
			return fmt.Errorf("%w: %w", schema.ErrAlreadyExists, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
	}

	return err
}
