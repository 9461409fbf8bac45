package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresShareStore implements ShareStore using a Postgres table, keyed by
// share path rather than the teacher's keyset id, and encrypting the same
// way FileShareStore does (AES-256-GCM over a PBKDF2-derived key).
type PostgresShareStore struct {
	db       *sql.DB
	password []byte
}

// NewPostgresShareStore connects to databaseURL and ensures its backing
// table exists.
func NewPostgresShareStore(ctx context.Context, databaseURL, password string) (*PostgresShareStore, error) {
	if !strings.Contains(databaseURL, "sslmode=") {
		if strings.Contains(databaseURL, "?") {
			databaseURL += "&sslmode=disable"
		} else {
			databaseURL += "?sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signer_shares (
			share_path VARCHAR(255) PRIMARY KEY,
			encrypted_data BYTEA NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("storage: create signer_shares table: %w", err)
	}

	return &PostgresShareStore{db: db, password: []byte(password)}, nil
}

// GetShare implements ShareStore.
func (ps *PostgresShareStore) GetShare(ctx context.Context, path string) ([]byte, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var encrypted []byte
	err := ps.db.QueryRowContext(queryCtx,
		"SELECT encrypted_data FROM signer_shares WHERE share_path = $1", path,
	).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: share not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query share: %w", err)
	}

	return decryptEnvelope(ps.password, encrypted)
}

// SaveShare implements ShareStore.
func (ps *PostgresShareStore) SaveShare(ctx context.Context, path string, raw []byte) error {
	envelope, err := encryptEnvelope(ps.password, raw)
	if err != nil {
		return err
	}

	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = ps.db.ExecContext(execCtx, `
		INSERT INTO signer_shares (share_path, encrypted_data, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (share_path) DO UPDATE SET
			encrypted_data = EXCLUDED.encrypted_data,
			updated_at = NOW()
	`, path, envelope)
	if err != nil {
		return fmt.Errorf("storage: save share: %w", err)
	}
	return nil
}

// DeleteShare implements ShareStore.
func (ps *PostgresShareStore) DeleteShare(ctx context.Context, path string) error {
	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := ps.db.ExecContext(execCtx, "DELETE FROM signer_shares WHERE share_path = $1", path); err != nil {
		return fmt.Errorf("storage: delete share: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (ps *PostgresShareStore) Close() error {
	return ps.db.Close()
}
