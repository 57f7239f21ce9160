// Package ledger is the Ledger Writer (spec.md §4.3): the double-entry
// primitive. Given a fully-resolved movement it appends exactly one
// transaction header and exactly two ledger entries of equal magnitude,
// updates the balance cache for both accounts, and records the result
// in the Idempotency Registry — all inside the caller's transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/coinvault/internal/domain"
	"github.com/warp/coinvault/internal/idempotency"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/money"
	"github.com/warp/coinvault/internal/store"
)

// ErrIdempotencyKeyRace is returned when the transaction header insert
// hits a unique violation on the idempotency key: a concurrent worker
// already committed this movement. The caller must abort and re-run
// its idempotency fast-path lookup (spec.md §4.3 step 4).
var ErrIdempotencyKeyRace = errors.New("idempotency key committed by a concurrent writer")

// Movement is a fully-resolved double-entry instruction: every account
// and asset reference has already been looked up by the orchestrator.
type Movement struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	AssetTypeID          uuid.UUID
	Amount               money.Amount
	Type                 domain.TransactionType
	Description          string
	Metadata             json.RawMessage
	IdempotencyKey       string
	RequestHash          string

	// Actor identifies who initiated the movement, recorded on the
	// audit log entry when the caller has one (spec.md §4.3 step 7).
	// Empty when there is none, e.g. a system-initiated movement.
	Actor string
}

// Result summarizes a committed movement for response assembly.
type Result struct {
	TransactionID       uuid.UUID
	SourceBalance       money.Amount
	DestinationBalance  money.Amount
	CompletedAt         time.Time
}

// ResponseFn builds the client-facing response body for a movement once
// its balances are known. The Ledger Writer persists the returned bytes
// in the same transaction via the Idempotency Registry.
type ResponseFn func(Result) (json.RawMessage, error)

// Writer appends movements to the ledger.
type Writer struct {
	Registry *idempotency.Registry
}

// New builds a Writer backed by reg.
func New(reg *idempotency.Registry) *Writer {
	return &Writer{Registry: reg}
}

// Append executes the eight steps of spec.md §4.3 inside tx, which the
// caller has already opened at serializable isolation. It returns the
// response body built by buildResponse, ready to hand back to the
// client.
func (w *Writer) Append(ctx context.Context, tx store.Querier, m Movement, buildResponse ResponseFn) (json.RawMessage, error) {
	a1, a2 := m.SourceAccountID, m.DestinationAccountID
	if lessUUID(a2, a1) {
		a1, a2 = a2, a1
	}

	if err := lockAccount(ctx, tx, a1); err != nil {
		return nil, err
	}
	if a2 != a1 {
		if err := lockAccount(ctx, tx, a2); err != nil {
			return nil, err
		}
	}

	sourceBalance, err := readBalance(ctx, tx, m.SourceAccountID, m.AssetTypeID)
	if err != nil {
		return nil, fmt.Errorf("read source balance: %w", err)
	}
	destBalance, err := readBalance(ctx, tx, m.DestinationAccountID, m.AssetTypeID)
	if err != nil {
		return nil, fmt.Errorf("read destination balance: %w", err)
	}

	if sourceBalance.LessThan(m.Amount) {
		return nil, ledgerr.New("ledger.Append", ledgerr.KindInsufficientFunds, ledgerr.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	txnID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions
		   (id, idempotency_key, type, asset_type_id, amount, description, metadata, status, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'completed', $8, $8)`,
		txnID, m.IdempotencyKey, string(m.Type), m.AssetTypeID, m.Amount.Decimal(), m.Description, nullableJSON(m.Metadata), now,
	)
	if err != nil {
		if store.Classify(err) == store.KindUniqueViolation {
			return nil, ErrIdempotencyKeyRace
		}
		return nil, fmt.Errorf("insert transaction header: %w", err)
	}

	newSourceBalance := sourceBalance.Sub(m.Amount)
	newDestBalance := destBalance.Add(m.Amount)

	if err := insertEntry(ctx, tx, txnID, m.SourceAccountID, m.AssetTypeID, domain.EntryTypeDebit, m.Amount, newSourceBalance, m.Description, now); err != nil {
		return nil, err
	}
	if err := insertEntry(ctx, tx, txnID, m.DestinationAccountID, m.AssetTypeID, domain.EntryTypeCredit, m.Amount, newDestBalance, m.Description, now); err != nil {
		return nil, err
	}

	if err := upsertBalance(ctx, tx, m.SourceAccountID, m.AssetTypeID, newSourceBalance, txnID, now); err != nil {
		return nil, err
	}
	if err := upsertBalance(ctx, tx, m.DestinationAccountID, m.AssetTypeID, newDestBalance, txnID, now); err != nil {
		return nil, err
	}

	if err := insertAudit(ctx, tx, txnID, m, now); err != nil {
		return nil, err
	}

	result := Result{
		TransactionID:      txnID,
		SourceBalance:      newSourceBalance,
		DestinationBalance: newDestBalance,
		CompletedAt:        now,
	}
	responseBody, err := buildResponse(result)
	if err != nil {
		return nil, fmt.Errorf("build response: %w", err)
	}

	if err := w.Registry.Record(ctx, tx, m.IdempotencyKey, m.RequestHash, responseBody, now); err != nil {
		if store.Classify(err) == store.KindUniqueViolation {
			return nil, ErrIdempotencyKeyRace
		}
		return nil, err
	}

	return responseBody, nil
}

func lessUUID(a, b uuid.UUID) bool {
	return a.String() < b.String()
}

func lockAccount(ctx context.Context, tx store.Querier, accountID uuid.UUID) error {
	row := tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE NOWAIT`, accountID)
	var discard int
	if err := row.Scan(&discard); err != nil {
		switch store.Classify(err) {
		case store.KindLockNotAvailable:
			return ledgerr.New("ledger.lockAccount", ledgerr.KindTransientConflict, ledgerr.ErrLockNotAvailable)
		case store.KindNotFound:
			return ledgerr.New("ledger.lockAccount", ledgerr.KindNotFound, ledgerr.ErrAccountNotFound)
		default:
			return fmt.Errorf("lock account %s: %w", accountID, err)
		}
	}
	return nil
}

func readBalance(ctx context.Context, tx store.Querier, accountID, assetTypeID uuid.UUID) (money.Amount, error) {
	row := tx.QueryRow(ctx,
		`SELECT balance FROM balance_cache WHERE account_id = $1 AND asset_type_id = $2`,
		accountID, assetTypeID,
	)
	var d decimal.Decimal
	if err := row.Scan(&d); err != nil {
		if store.Classify(err) == store.KindNotFound {
			return money.Zero, nil
		}
		return money.Amount{}, err
	}
	return money.New(d), nil
}

func insertEntry(ctx context.Context, tx store.Querier, txnID, accountID, assetTypeID uuid.UUID, entryType domain.EntryType, amount, runningBalance money.Amount, description string, now time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries
		   (id, transaction_id, account_id, asset_type_id, entry_type, amount, running_balance, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), txnID, accountID, assetTypeID, string(entryType), amount.Decimal(), runningBalance.Decimal(), description, now,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry (%s): %w", entryType, err)
	}
	return nil
}

func upsertBalance(ctx context.Context, tx store.Querier, accountID, assetTypeID uuid.UUID, balance money.Amount, txnID uuid.UUID, now time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO balance_cache (account_id, asset_type_id, balance, last_transaction_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account_id, asset_type_id)
		 DO UPDATE SET balance = EXCLUDED.balance,
		               last_transaction_id = EXCLUDED.last_transaction_id,
		               updated_at = EXCLUDED.updated_at`,
		accountID, assetTypeID, balance.Decimal(), txnID, now,
	)
	if err != nil {
		return fmt.Errorf("upsert balance cache: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx store.Querier, txnID uuid.UUID, m Movement, now time.Time) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	var actor *string
	if m.Actor != "" {
		actor = &m.Actor
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (id, transaction_id, actor, action, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), txnID, actor, string(m.Type), payload, now,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func nullableJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}
