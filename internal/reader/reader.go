// Package reader implements the two read-only auxiliaries of spec.md
// §4.6: the Balance Reader and the History Reader. Neither participates
// in the locking protocol — both read committed state only.
package reader

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/coinvault/internal/domain"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/money"
	"github.com/warp/coinvault/internal/store"
)

// Balance is one asset's balance for a user.
type Balance struct {
	AssetCode   string      `json:"assetCode"`
	AssetName   string      `json:"assetName"`
	Balance     money.Amount `json:"balance"`
}

// HistoryEntry is one ledger entry joined with its parent transaction
// header, as returned by GetTransactionHistory.
type HistoryEntry struct {
	TransactionID  uuid.UUID `json:"transactionId"`
	Type           string    `json:"type"`
	EntryType      string    `json:"entryType"`
	AssetCode      string    `json:"assetCode"`
	Amount         money.Amount `json:"amount"`
	RunningBalance money.Amount `json:"runningBalance"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Reader answers balance and history queries against the store.
type Reader struct {
	store        store.Querier
	defaultLimit int
	maxLimit     int
}

// New builds a Reader. defaultLimit and maxLimit come from
// config.HistoryConfig.
func New(s store.Querier, defaultLimit, maxLimit int) *Reader {
	return &Reader{store: s, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// GetBalance returns a user's balance in a single asset. A missing
// balance-cache row reads as zero (spec.md §4.6).
func (r *Reader) GetBalance(ctx context.Context, userID, assetCode string) (Balance, error) {
	row := r.store.QueryRow(ctx,
		`SELECT at.code, at.display_name, COALESCE(bc.balance, 0)
		   FROM asset_types at
		   LEFT JOIN accounts a ON a.type = 'USER' AND a.user_id = $1
		   LEFT JOIN balance_cache bc ON bc.account_id = a.id AND bc.asset_type_id = at.id
		  WHERE at.code = $2 AND at.is_active`,
		userID, assetCode,
	)

	var code, name string
	var bal decimal.Decimal
	if err := row.Scan(&code, &name, &bal); err != nil {
		if store.Classify(err) == store.KindNotFound {
			return Balance{}, ledgerr.New("reader.GetBalance", ledgerr.KindNotFound, ledgerr.ErrAssetNotFound)
		}
		return Balance{}, err
	}
	return Balance{AssetCode: code, AssetName: name, Balance: money.New(bal)}, nil
}

// GetAllBalances returns every active asset's balance for a user, zero
// for assets the user has never touched (spec.md §4.6).
func (r *Reader) GetAllBalances(ctx context.Context, userID string) ([]Balance, error) {
	rows, err := r.store.Query(ctx,
		`SELECT at.code, at.display_name, COALESCE(bc.balance, 0)
		   FROM asset_types at
		   LEFT JOIN accounts a ON a.type = 'USER' AND a.user_id = $1
		   LEFT JOIN balance_cache bc ON bc.account_id = a.id AND bc.asset_type_id = at.id
		  WHERE at.is_active
		  ORDER BY at.code`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		var b Balance
		var bal decimal.Decimal
		if err := rows.Scan(&b.AssetCode, &b.AssetName, &bal); err != nil {
			return nil, err
		}
		b.Balance = money.New(bal)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetTransactionHistory returns paginated ledger entries on the user's
// accounts, newest transaction first. limit is clamped to
// [1, maxLimit]; zero or negative values fall back to defaultLimit.
func (r *Reader) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > r.maxLimit {
		limit = r.maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.store.Query(ctx,
		`SELECT t.id, t.type, le.entry_type, at.code, le.amount, le.running_balance, le.description, t.created_at
		   FROM ledger_entries le
		   JOIN accounts a ON a.id = le.account_id
		   JOIN transactions t ON t.id = le.transaction_id
		   JOIN asset_types at ON at.id = le.asset_type_id
		  WHERE a.type = 'USER' AND a.user_id = $1
		  ORDER BY t.created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var amount, running decimal.Decimal
		if err := rows.Scan(&e.TransactionID, &e.Type, &e.EntryType, &e.AssetCode, &amount, &running, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = money.New(amount)
		e.RunningBalance = money.New(running)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTransaction looks up one transaction header by id. It gives a
// future reversal operation (or an admin tool) something to read
// against; this package writes nothing back.
func (r *Reader) GetTransaction(ctx context.Context, id uuid.UUID) (domain.TransactionHeader, error) {
	row := r.store.QueryRow(ctx,
		`SELECT id, idempotency_key, type, asset_type_id, amount, description, metadata, status, created_at, completed_at
		   FROM transactions
		  WHERE id = $1`,
		id,
	)

	var (
		h        domain.TransactionHeader
		amount   decimal.Decimal
		metadata json.RawMessage
	)
	if err := row.Scan(&h.ID, &h.IdempotencyKey, &h.Type, &h.AssetTypeID, &amount, &h.Description, &metadata, &h.Status, &h.CreatedAt, &h.CompletedAt); err != nil {
		if store.Classify(err) == store.KindNotFound {
			return domain.TransactionHeader{}, ledgerr.New("reader.GetTransaction", ledgerr.KindNotFound, ledgerr.ErrTransactionNotFound)
		}
		return domain.TransactionHeader{}, err
	}
	h.Amount = money.New(amount)
	h.Metadata = metadata
	return h, nil
}
