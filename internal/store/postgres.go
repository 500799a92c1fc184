// Package store holds the durable backends: the Redis connection helper and
// an optional Postgres audit log of dispatch attempts.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenciamidas/capi-gateway/internal/domain"
)

// PostgresStore records every per-pixel dispatch attempt so an operator can
// reconstruct what was sent where. Entirely optional; the gateway runs
// without it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dispatch_log (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			pixel_id TEXT NOT NULL,
			http_status INT,
			response_body JSONB,
			error_message TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating dispatch_log table: %w", err)
	}
	return nil
}

// RecordDispatch implements dispatch.AuditLog.
func (s *PostgresStore) RecordDispatch(ctx context.Context, eventID, eventName string, r domain.DispatchResult) error {
	var body []byte
	if r.Body != nil {
		body, _ = json.Marshal(r.Body)
	}

	var status *int
	if r.Status != 0 {
		status = &r.Status
	}
	var errMsg *string
	if r.Err != "" {
		errMsg = &r.Err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_log (event_id, event_name, pixel_id, http_status, response_body, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, eventID, eventName, r.PixelID, status, body, errMsg)
	if err != nil {
		return fmt.Errorf("recording dispatch attempt: %w", err)
	}
	return nil
}
