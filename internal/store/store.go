// Package store archives role-check records in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/results"
)

// DBPool is the subset of pgxpool.Pool the store uses, so tests can mock it.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS role_checks (
            id            UUID PRIMARY KEY,
            username      TEXT NOT NULL,
            serial_number TEXT NOT NULL DEFAULT '',
            server_url    TEXT NOT NULL DEFAULT '',
            found         BOOLEAN NOT NULL,
            roles         TEXT NOT NULL,
            checked_at    TIMESTAMPTZ NOT NULL,
            error         TEXT NOT NULL DEFAULT ''
        );
    `

const insertSQL = `
        INSERT INTO role_checks (id, username, serial_number, server_url, found, roles, checked_at, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `

var columns = []string{"id", "username", "serial_number", "server_url", "found", "roles", "checked_at", "error"}

// Store writes records to the role_checks table. It is safe for concurrent use.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ results.Sink = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for url and returns a store over it.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the role_checks table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create role_checks table: %w", err)
	}
	return nil
}

func recordArgs(rec schemas.Record) []interface{} {
	return []interface{}{
		uuid.New(),
		rec.Username,
		rec.SerialNumber,
		rec.ServerURL,
		rec.Found,
		rec.Roles,
		rec.CheckedAt.UTC(),
		rec.Error,
	}
}

// Save inserts one record. It implements results.Sink.
func (s *Store) Save(ctx context.Context, rec schemas.Record) error {
	if _, err := s.pool.Exec(ctx, insertSQL, recordArgs(rec)...); err != nil {
		return fmt.Errorf("failed to insert role check for %s: %w", rec.Username, err)
	}
	return nil
}

// SaveBatch copies records in one round trip.
func (s *Store) SaveBatch(ctx context.Context, recs []schemas.Record) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(recs))
	for i, rec := range recs {
		rows[i] = recordArgs(rec)
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"role_checks"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy role checks: %w", err)
	}
	if int(n) != len(recs) {
		return fmt.Errorf("mismatch in copied role checks count: expected %d, got %d", len(recs), n)
	}
	s.log.Debug("Role checks archived.", zap.Int("count", len(recs)))
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
