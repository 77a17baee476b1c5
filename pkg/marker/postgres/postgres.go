// Package postgres provides a PostgreSQL implementation of marker.Store.
// It uses pgx/v5 for connection pooling and JSONB for item payloads.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bruecke-ai/bruecke/pkg/marker"
)

// Store is a PostgreSQL-backed marker store.
type Store struct {
	pool *pgxpool.Pool
}

var _ marker.Store = (*Store)(nil)

// New creates a PostgreSQL store with the given configuration. If
// MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Persist stores the given items in one batch. Re-persisting an existing id
// replaces its payload.
func (s *Store) Persist(ctx context.Context, chatID string, items []marker.StoredItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, item := range items {
		if !json.Valid(item.Payload) {
			return fmt.Errorf("item %s: payload is not valid JSON", item.ID)
		}
		batch.Queue(`
			INSERT INTO markers (id, chat_id, kind, model, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET chat_id = EXCLUDED.chat_id,
			    kind = EXCLUDED.kind,
			    model = EXCLUDED.model,
			    payload = EXCLUDED.payload
		`, item.ID, chatID, item.Kind, item.Model, []byte(item.Payload), now)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting marker: %w", err)
		}
	}
	return nil
}

// Fetch returns the payloads for the requested ids, scoped to the chat and
// optionally to the producing model. Unknown ids are absent from the result.
func (s *Store) Fetch(ctx context.Context, chatID string, ids []string, model string) (map[string]json.RawMessage, error) {
	if len(ids) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	query := `SELECT id, payload FROM markers WHERE id = ANY($1) AND chat_id = $2`
	args := []any{ids, chatID}
	if model != "" {
		query += " AND model = $3"
		args = append(args, model)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying markers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage, len(ids))
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning marker: %w", err)
		}
		out[id] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading markers: %w", err)
	}
	return out, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
