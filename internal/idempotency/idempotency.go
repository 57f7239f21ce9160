// Package idempotency is the Idempotency Registry (spec.md §4.2):
// lookup prior results before work begins, and persist new results
// atomically with the ledger write.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/coinvault/internal/domain"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/store"
)

// CanonicalPayload is the fixed-field-order tuple the request hash is
// computed over (spec.md §4.2).
type CanonicalPayload struct {
	UserID    string `json:"userId"`
	AssetCode string `json:"assetCode"`
	Amount    string `json:"amount"`
}

// Hash computes the SHA-256 hex digest of the canonical JSON encoding
// of p.
func Hash(p CanonicalPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("canonicalize idempotency payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Registry reads and writes idempotency_log rows.
type Registry struct {
	TTL time.Duration
}

// New builds a Registry with the given idempotency TTL.
func New(ttl time.Duration) *Registry {
	return &Registry{TTL: ttl}
}

// Lookup reads a single row by key, outside of any transaction. It
// returns (nil, nil) when absent or expired. When a row exists but its
// stored request hash does not match requestHash, it returns the
// stricter conflict classification resolved in SPEC_FULL.md §9.
func (r *Registry) Lookup(ctx context.Context, q store.Querier, key, requestHash string) (*domain.IdempotencyRecord, error) {
	row := q.QueryRow(ctx,
		`SELECT request_hash, response_body, status, created_at, expires_at
		   FROM idempotency_log WHERE key = $1`,
		key,
	)

	var rec domain.IdempotencyRecord
	rec.Key = key
	err := row.Scan(&rec.RequestHash, &rec.ResponseBody, &rec.Status, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if store.Classify(err) == store.KindNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	if rec.Status != "completed" || !rec.ExpiresAt.After(time.Now()) {
		return nil, nil
	}

	if rec.RequestHash != requestHash {
		return nil, ledgerr.New("idempotency.Lookup", ledgerr.KindConflict, ledgerr.ErrIdempotencyConflict)
	}

	return &rec, nil
}

// Record writes a row inside the caller's transaction. The key column
// is the primary key: a concurrent insert of the same key surfaces as
// store.KindUniqueViolation, which the orchestrator translates into a
// "another worker won the insert" re-lookup.
func (r *Registry) Record(ctx context.Context, q store.Querier, key, requestHash string, responseBody []byte, now time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO idempotency_log (key, request_hash, response_body, status, created_at, expires_at)
		   VALUES ($1, $2, $3, 'completed', $4, $5)`,
		key, requestHash, responseBody, now, now.Add(r.TTL),
	)
	if err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}
