package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SignerStatus is a Signer's lifecycle state.
type SignerStatus string

const (
	SignerActive  SignerStatus = "active"
	SignerPaused  SignerStatus = "paused"
	SignerRevoked SignerStatus = "revoked"
)

// Signer is the read-only record the coordinator resolves by id.
type Signer struct {
	ID           string
	EthAddress   string
	OwnerAddress string
	Status       SignerStatus
	SharePath    string
	Scheme       string
}

// SignerRepo is the outbound contract spec.md §6 names: findById.
type SignerRepo interface {
	FindByID(ctx context.Context, id string) (*Signer, error)
}

// ErrSignerNotFound is returned when no signer matches the requested id.
var ErrSignerNotFound = fmt.Errorf("storage: signer not found")

// PostgresSignerRepo implements SignerRepo against a Postgres `signers`
// table, following the teacher's lib/pq + database/sql idiom.
type PostgresSignerRepo struct {
	db *sql.DB
}

// NewPostgresSignerRepo wraps an already-open *sql.DB and ensures its
// backing table exists.
func NewPostgresSignerRepo(ctx context.Context, db *sql.DB) (*PostgresSignerRepo, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signers (
			id VARCHAR(64) PRIMARY KEY,
			eth_address VARCHAR(42) NOT NULL,
			owner_address VARCHAR(42) NOT NULL,
			status VARCHAR(16) NOT NULL,
			share_path VARCHAR(255) NOT NULL,
			scheme VARCHAR(32) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("storage: create signers table: %w", err)
	}
	return &PostgresSignerRepo{db: db}, nil
}

// FindByID implements SignerRepo.
func (r *PostgresSignerRepo) FindByID(ctx context.Context, id string) (*Signer, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var s Signer
	var status string
	err := r.db.QueryRowContext(queryCtx,
		"SELECT id, eth_address, owner_address, status, share_path, scheme FROM signers WHERE id = $1",
		id,
	).Scan(&s.ID, &s.EthAddress, &s.OwnerAddress, &status, &s.SharePath, &s.Scheme)
	if err == sql.ErrNoRows {
		return nil, ErrSignerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query signer: %w", err)
	}
	s.Status = SignerStatus(status)
	return &s, nil
}
