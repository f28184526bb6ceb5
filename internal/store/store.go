// Package store persists decoded transfers and serves the read API.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Transfer is one persisted Transfer log row.
type Transfer struct {
	ID          int64  `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	BlockNumber int64  `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

// NewTransfer is the value handed to Insert; it has no identity of its own.
type NewTransfer struct {
	Sender      string
	Recipient   string
	Amount      string
	BlockNumber uint64
	TxHash      string
}

// Store is the persistence contract the indexing core and the read API
// depend on.
type Store interface {
	Insert(ctx context.Context, t NewTransfer) error
	Query(ctx context.Context, sender, recipient *string) ([]Transfer, error)
	Close() error
}

// PostgresStore is the production Store backed by Postgres via lib/pq.
// Every exported method issues its SQL through database/sql, which already
// schedules the blocking driver round trip off the calling goroutine onto
// an OS thread managed by the Go runtime — there is no separate
// blocking-pool boundary to wire up by hand.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool against dsn and verifies it
// with a Ping before returning.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	logger.Info("connected to postgres")

	return &PostgresStore{db: db, logger: logger}, nil
}

// EnsureSchema creates the transfers table if it does not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS transfers (
			id            BIGSERIAL PRIMARY KEY,
			sender        TEXT NOT NULL,
			recipient     TEXT NOT NULL,
			amount        TEXT NOT NULL,
			block_number  BIGINT NOT NULL,
			tx_hash       TEXT NOT NULL,
			CONSTRAINT transfers_tx_hash_key UNIQUE (tx_hash)
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Insert persists t, silently succeeding if a row with the same tx_hash
// already exists. Replaying any block range is therefore always safe.
func (s *PostgresStore) Insert(ctx context.Context, t NewTransfer) error {
	const q = `
		INSERT INTO transfers (sender, recipient, amount, block_number, tx_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, q, t.Sender, t.Recipient, t.Amount, int64(t.BlockNumber), t.TxHash)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Query returns stored transfers, optionally filtered by equality on
// sender and/or recipient, ordered by block_number descending.
func (s *PostgresStore) Query(ctx context.Context, sender, recipient *string) ([]Transfer, error) {
	q, args := buildQuery(sender, recipient)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.Sender, &t.Recipient, &t.Amount, &t.BlockNumber, &t.TxHash); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return transfers, nil
}

// buildQuery assembles the filtered, ordered SELECT for Query. Split out
// so the filter composition can be unit tested without a database.
func buildQuery(sender, recipient *string) (string, []any) {
	q := `SELECT id, sender, recipient, amount, block_number, tx_hash FROM transfers`

	var (
		clauses []string
		args    []any
	)
	if sender != nil {
		args = append(args, *sender)
		clauses = append(clauses, fmt.Sprintf("sender = $%d", len(args)))
	}
	if recipient != nil {
		args = append(args, *recipient)
		clauses = append(clauses, fmt.Sprintf("recipient = $%d", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY block_number DESC"
	return q, args
}
