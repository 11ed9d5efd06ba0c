// Package postgres provides the PostgreSQL-backed call-turn audit log.
//
// Turns are appended to a single call_turns table. [Migrate] creates it on
// start, so an empty database is enough to get going.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	guard := audit.NewGuard(store)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/callscript/internal/audit"
)

var (
	_ audit.Recorder = (*Store)(nil)
	_ audit.Pinger   = (*Store)(nil)
)

const ddlCallTurns = `
CREATE TABLE IF NOT EXISTS call_turns (
    id            BIGSERIAL    PRIMARY KEY,
    call_id       TEXT         NOT NULL,
    node_id       TEXT         NOT NULL,
    intent        TEXT         NOT NULL DEFAULT '',
    utterance     TEXT         NOT NULL DEFAULT '',
    reply         TEXT         NOT NULL DEFAULT '',
    terminal      BOOLEAN      NOT NULL DEFAULT false,
    interventions TEXT[]       NOT NULL DEFAULT '{}',
    at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_call_turns_call_id
    ON call_turns (call_id, id);
`

// Migrate creates the call_turns table and its index if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCallTurns); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store appends call turns to PostgreSQL. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Record implements [audit.Recorder].
func (s *Store) Record(ctx context.Context, turn audit.Turn) error {
	const q = `
		INSERT INTO call_turns
		    (call_id, node_id, intent, utterance, reply, terminal, interventions, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	interventions := turn.Interventions
	if interventions == nil {
		interventions = []string{}
	}
	_, err := s.pool.Exec(ctx, q,
		turn.CallID,
		turn.NodeID,
		turn.Intent,
		turn.Utterance,
		turn.Reply,
		turn.Terminal,
		interventions,
		turn.At,
	)
	if err != nil {
		return fmt.Errorf("audit store: record: %w", err)
	}
	return nil
}

// Turns returns every turn recorded for callID in the order they were
// written.
func (s *Store) Turns(ctx context.Context, callID string) ([]audit.Turn, error) {
	const q = `
		SELECT call_id, node_id, intent, utterance, reply, terminal, interventions, at
		FROM   call_turns
		WHERE  call_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("audit store: turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Turn, error) {
		var t audit.Turn
		err := row.Scan(&t.CallID, &t.NodeID, &t.Intent, &t.Utterance, &t.Reply, &t.Terminal, &t.Interventions, &t.At)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: turns: %w", err)
	}
	return turns, nil
}

// Ping implements [audit.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}
