package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// AuditStatus is the terminal disposition of a signing attempt.
type AuditStatus string

const (
	AuditApproved AuditStatus = "APPROVED"
	AuditBlocked  AuditStatus = "BLOCKED"
	AuditFailed   AuditStatus = "FAILED"
)

// RequestType distinguishes transaction signing from message signing for
// audit and reporting purposes.
type RequestType string

const (
	RequestSignTx      RequestType = "SIGN_TX"
	RequestSignMessage RequestType = "SIGN_MESSAGE"
)

// AuditEntry is one row of the audit trail spec.md §4.5 describes writing
// on every terminal transition of a signing session.
type AuditEntry struct {
	SignerID             string
	OwnerAddress         string
	RequestType          RequestType
	Status               AuditStatus
	SigningPath          string
	ToAddress            string
	ValueWei             *big.Int
	ChainID              uint64
	TxHash               string
	DecodedFunctionName  string
	PoliciesEvaluated    int
	EvaluationTimeMs     int64
	Violations           []string
	CreatedAt            time.Time
}

// AuditRepo is the outbound contract spec.md §6 names: create,
// countBySignerInWindow, sumValueBySignerInWindow. It also satisfies
// internal/policy.AuditWindowQuerier so the Policy Gate can query it
// directly.
type AuditRepo interface {
	Create(ctx context.Context, entry AuditEntry) error
	CountBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (int, error)
	SumValueBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (*big.Int, error)
}

// PostgresAuditRepo implements AuditRepo against a Postgres `audit_entries`
// table, in the teacher's lib/pq + database/sql idiom.
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo wraps an already-open *sql.DB and ensures its
// backing table exists.
func NewPostgresAuditRepo(ctx context.Context, db *sql.DB) (*PostgresAuditRepo, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id BIGSERIAL PRIMARY KEY,
			signer_id VARCHAR(64) NOT NULL,
			owner_address VARCHAR(42) NOT NULL,
			request_type VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			signing_path VARCHAR(16) NOT NULL,
			to_address VARCHAR(42) NOT NULL DEFAULT '',
			value_wei NUMERIC(78,0) NOT NULL DEFAULT 0,
			chain_id BIGINT NOT NULL DEFAULT 0,
			tx_hash VARCHAR(66) NOT NULL DEFAULT '',
			decoded_function_name VARCHAR(128) NOT NULL DEFAULT '',
			policies_evaluated INT NOT NULL DEFAULT 0,
			evaluation_time_ms BIGINT NOT NULL DEFAULT 0,
			violations JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("storage: create audit_entries table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_audit_entries_signer_created
		ON audit_entries (signer_id, created_at)
	`); err != nil {
		return nil, fmt.Errorf("storage: create audit_entries index: %w", err)
	}
	return &PostgresAuditRepo{db: db}, nil
}

// Create implements AuditRepo.
func (r *PostgresAuditRepo) Create(ctx context.Context, entry AuditEntry) error {
	execCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	value := entry.ValueWei
	if value == nil {
		value = big.NewInt(0)
	}

	violations, err := json.Marshal(entry.Violations)
	if err != nil {
		return fmt.Errorf("storage: marshal audit violations: %w", err)
	}

	_, err = r.db.ExecContext(execCtx, `
		INSERT INTO audit_entries (
			signer_id, owner_address, request_type, status, signing_path,
			to_address, value_wei, chain_id, tx_hash, decoded_function_name,
			policies_evaluated, evaluation_time_ms, violations, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
	`, entry.SignerID, entry.OwnerAddress, entry.RequestType, entry.Status, entry.SigningPath,
		entry.ToAddress, value.String(), entry.ChainID, entry.TxHash, entry.DecodedFunctionName,
		entry.PoliciesEvaluated, entry.EvaluationTimeMs, violations)
	if err != nil {
		return fmt.Errorf("storage: insert audit entry: %w", err)
	}
	return nil
}

// CountBySignerInWindow implements AuditRepo and policy.AuditWindowQuerier.
func (r *PostgresAuditRepo) CountBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(queryCtx, `
		SELECT COUNT(*) FROM audit_entries
		WHERE signer_id = $1 AND status = $2 AND created_at >= NOW() - $3::interval
	`, signerID, AuditApproved, fmt.Sprintf("%d seconds", int64(window.Seconds()))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count audit entries: %w", err)
	}
	return count, nil
}

// SumValueBySignerInWindow implements AuditRepo and
// policy.AuditWindowQuerier.
func (r *PostgresAuditRepo) SumValueBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (*big.Int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var sum sql.NullString
	err := r.db.QueryRowContext(queryCtx, `
		SELECT SUM(value_wei)::text FROM audit_entries
		WHERE signer_id = $1 AND status = $2 AND created_at >= NOW() - $3::interval
	`, signerID, AuditApproved, fmt.Sprintf("%d seconds", int64(window.Seconds()))).Scan(&sum)
	if err != nil {
		return nil, fmt.Errorf("storage: sum audit entries: %w", err)
	}
	if !sum.Valid {
		return big.NewInt(0), nil
	}
	total, ok := new(big.Int).SetString(sum.String, 10)
	if !ok {
		return nil, fmt.Errorf("storage: parse summed value %q", sum.String)
	}
	return total, nil
}
