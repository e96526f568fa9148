package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

// PostgresStore is the durable backend: one jsonb document per (namespace, key).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the cache table if it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cache_entries: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, namespace, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO cache_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, namespace, key, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Update merges with the jsonb || operator so the read-modify-write happens
// inside a single statement.
func (p *PostgresStore) Update(ctx context.Context, namespace, key string, partial map[string]any) error {
	encoded, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO cache_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET
			value = cache_entries.value || EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, namespace, key, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (p *PostgresStore) SetFieldOnce(ctx context.Context, namespace, key, field string, value any) (bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s.%s: %w", namespace, key, field, err)
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO cache_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb), now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET
			value = cache_entries.value || EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
		WHERE NOT (cache_entries.value ? $3::text)
	`, namespace, key, field, string(encoded))
	if err != nil {
		return false, fmt.Errorf("failed to set %s/%s.%s: %w", namespace, key, field, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) GetAll(ctx context.Context, namespace string) (map[string]json.RawMessage, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM cache_entries WHERE namespace = $1`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", namespace, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (p *PostgresStore) Clear(ctx context.Context, namespace string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("failed to clear %s: %w", namespace, err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
