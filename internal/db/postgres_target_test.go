package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/tordrt/docschema/internal/schema"
)

func TestCreatePostgresIndexSQL(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		index      schema.Index
		want       string
	}{
		{
			name:       "unique single key",
			collection: "users",
			index:      schema.Index{Name: "email_1", Keys: []schema.Key{{Field: "email", Direction: schema.Ascending}}, Unique: true},
			want:       `CREATE UNIQUE INDEX "users_email_1" ON "users" ((doc->'email') ASC)`,
		},
		{
			name:       "compound",
			collection: "chat_messages",
			index: schema.Index{Name: "conversation_id_1_timestamp_-1", Keys: []schema.Key{
				{Field: "conversation_id", Direction: schema.Ascending},
				{Field: "timestamp", Direction: schema.Descending},
			}},
			want: `CREATE INDEX "chat_messages_conversation_id_1_timestamp_-1" ON "chat_messages" ` +
				`((doc->'conversation_id') ASC, (doc->'timestamp') DESC)`,
		},
		{
			name:       "nested field",
			collection: "users",
			index:      schema.Index{Name: "profile.name_1", Keys: []schema.Key{{Field: "profile.name", Direction: schema.Ascending}}},
			want:       `CREATE INDEX "users_profile.name_1" ON "users" ((doc->'profile'->'name') ASC)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, createPostgresIndexSQL(tt.collection, tt.index))
		})
	}
}

func TestCreatePostgresTableSQL(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE "chat_messages" (id text PRIMARY KEY, doc jsonb NOT NULL DEFAULT '{}'::jsonb)`,
		createPostgresTableSQL("chat_messages"))
}

func TestPostgresField(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{expr: `(doc -> 'email'::text)`, want: "email"},
		{expr: `doc -> 'email'::text`, want: "email"},
		{expr: `((doc -> 'profile'::text) -> 'name'::text)`, want: "profile.name"},
		{expr: `(doc -> 'it''s'::text)`, want: "it's"},
		{expr: `id`, want: "id"},
		{expr: `lower(name)`, want: "lower(name)"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, postgresField(tt.expr))
		})
	}
}

func TestClassifyPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "insufficient privilege", err: &pgconn.PgError{Code: "42501"}, want: schema.ErrAuthorization},
		{name: "bad password", err: &pgconn.PgError{Code: "28P01"}, want: schema.ErrAuthorization},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: schema.ErrDataConflict},
		{name: "duplicate table", err: &pgconn.PgError{Code: "42P07"}, want: schema.ErrAlreadyExists},
		{name: "wrapped", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P07"}), want: schema.ErrAlreadyExists},
		{name: "deadline", err: context.DeadlineExceeded, want: schema.ErrConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPostgresError(tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}

	syntax := &pgconn.PgError{Code: "42601"}
	assert.Equal(t, error(syntax), classifyPostgresError(syntax))
	assert.Equal(t, errors.New("x").Error(), classifyPostgresError(errors.New("x")).Error())
}

func TestIndexNames(t *testing.T) {
	assert.Equal(t, "users_email_1", physicalIndexName("users", "email_1"))
	assert.Equal(t, "email_1", logicalIndexName("users", "users_email_1"))
	assert.Equal(t, "idx_email", logicalIndexName("users", "idx_email"))
	assert.Equal(t, "users_", logicalIndexName("users", "users_"))
}
