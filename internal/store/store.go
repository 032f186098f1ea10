package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id          uuid PRIMARY KEY,
	started_at  timestamptz NOT NULL,
	ended_at    timestamptz,
	end_reason  text
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          uuid PRIMARY KEY,
	session_id  uuid NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	seq         integer NOT NULL,
	author      text NOT NULL,
	content     text NOT NULL,
	created_at  timestamptz NOT NULL,
	UNIQUE (session_id, seq)
);`

// EnsureSchema creates the archive tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
