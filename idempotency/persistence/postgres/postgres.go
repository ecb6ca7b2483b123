// Package postgres persists idempotency records in PostgreSQL using the pgx
// driver. The conditional claim is a single INSERT ... ON CONFLICT statement
// whose DO UPDATE branch only fires when the existing row has expired, so a
// live row wins and a stale one is taken over atomically.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/julianobarbosa/lambdakit/idempotency"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "idempotency_records"

// Schema is the DDL for the records table, parameterized by table name.
// Callers that manage migrations themselves can render it with fmt.Sprintf;
// everyone else can use EnsureTable.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
	id         text PRIMARY KEY,
	status     text NOT NULL,
	data       jsonb,
	expiration bigint NOT NULL,
	validation text
)`

// Backend implements idempotency.Backend on a PostgreSQL pool.
type Backend struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

var _ idempotency.Backend = (*Backend)(nil)

// Option customizes the backend.
type Option func(*Backend)

// WithTable overrides the records table name.
func WithTable(table string) Option {
	return func(b *Backend) { b.table = table }
}

// New creates a backend on an initialized connection pool.
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	if pool == nil {
		panic("postgres: connection pool cannot be nil")
	}

	b := &Backend{
		pool:  pool,
		table: DefaultTable,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnsureTable creates the records table if it does not exist yet.
func (b *Backend) EnsureTable(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, fmt.Sprintf(Schema, b.table)); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", b.table, err)
	}
	return nil
}

// PutRecord claims the key. The ON CONFLICT branch overwrites the existing
// row only when it has expired; when the row is still live no row is touched
// and the zero rows-affected count signals the conflict.
func (b *Backend) PutRecord(ctx context.Context, record *idempotency.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, status, data, expiration, validation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    data = EXCLUDED.data,
		    expiration = EXCLUDED.expiration,
		    validation = EXCLUDED.validation
		WHERE %[1]s.expiration < $6
	`, b.table)

	tag, err := b.pool.Exec(ctx, query,
		record.IdempotencyKey,
		string(record.Status),
		nullableJSON(record.ResponseData),
		record.ExpiryTimestamp,
		nullableText(record.PayloadHash),
		b.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return idempotency.ErrItemAlreadyExists
	}
	return nil
}

// GetRecord fetches the record for key.
func (b *Backend) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	query := fmt.Sprintf(`
		SELECT status, data, expiration, validation
		FROM %s
		WHERE id = $1
	`, b.table)

	var (
		status     string
		data       []byte
		expiration int64
		validation *string
	)
	err := b.pool.QueryRow(ctx, query, key).Scan(&status, &data, &expiration, &validation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idempotency.ErrItemNotFound
		}
		return nil, fmt.Errorf("postgres: select record: %w", err)
	}

	record := &idempotency.Record{
		IdempotencyKey:  key,
		Status:          idempotency.Status(status),
		ResponseData:    json.RawMessage(data),
		ExpiryTimestamp: expiration,
	}
	if validation != nil {
		record.PayloadHash = *validation
	}
	return record, nil
}

// UpdateRecord overwrites the record for the key unconditionally.
func (b *Backend) UpdateRecord(ctx context.Context, record *idempotency.Record) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, data = $3, expiration = $4, validation = $5
		WHERE id = $1
	`, b.table)

	tag, err := b.pool.Exec(ctx, query,
		record.IdempotencyKey,
		string(record.Status),
		nullableJSON(record.ResponseData),
		record.ExpiryTimestamp,
		nullableText(record.PayloadHash),
	)
	if err != nil {
		return fmt.Errorf("postgres: update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return idempotency.ErrItemNotFound
	}
	return nil
}

// DeleteRecord removes the record for key. Deleting an absent row is a no-op.
func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, b.table)

	if _, err := b.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("postgres: delete record: %w", err)
	}
	return nil
}

// nullableJSON maps an absent response to SQL NULL instead of the empty string,
// which jsonb would reject.
func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

// nullableText maps the empty string to SQL NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
