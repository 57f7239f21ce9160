// Package domain holds the value types of the ledger engine: assets,
// accounts, transaction headers, ledger entries, balance cache rows,
// and idempotency records. Relationships between them are database
// foreign keys, not in-memory pointers — the engine never walks a
// graph, it looks values up by id under a transaction.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/warp/coinvault/internal/money"
)

// AccountType is a closed set of roles an account can play.
type AccountType string

const (
	AccountTypeUser           AccountType = "USER"
	AccountTypeSystemTreasury AccountType = "SYSTEM_TREASURY"
	AccountTypeSystemRevenue  AccountType = "SYSTEM_REVENUE"
	AccountTypeSystemBonus    AccountType = "SYSTEM_BONUS"
	AccountTypeSystemReserve  AccountType = "SYSTEM_RESERVE"
)

// TransactionType is a closed set of movement kinds.
type TransactionType string

const (
	TransactionTypeTopUp    TransactionType = "TOP_UP"
	TransactionTypeBonus    TransactionType = "BONUS"
	TransactionTypePurchase TransactionType = "PURCHASE"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// TransactionStatus tracks the lifecycle of a transaction header.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// EntryType is debit or credit, never anything else.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Asset is an immutable virtual currency definition.
type Asset struct {
	ID          uuid.UUID
	Code        string
	DisplayName string
	Decimals    int32
	IsActive    bool
}

// Account is a named bucket of asset holdings: a user wallet or a
// system pool.
type Account struct {
	ID       uuid.UUID
	Type     AccountType
	UserID   string // only set when Type == AccountTypeUser
	Name     string
	Metadata json.RawMessage
	IsActive bool
}

// TransactionHeader is the immutable master record of one committed
// movement.
type TransactionHeader struct {
	ID              uuid.UUID
	IdempotencyKey  string
	Type            TransactionType
	AssetTypeID     uuid.UUID
	Amount          money.Amount
	Description     string
	Metadata        json.RawMessage
	Status          TransactionStatus
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// LedgerEntry is one signed side of a movement on a single account.
type LedgerEntry struct {
	ID             uuid.UUID
	TransactionID  uuid.UUID
	AccountID      uuid.UUID
	AssetTypeID    uuid.UUID
	EntryType      EntryType
	Amount         money.Amount
	RunningBalance money.Amount
	Description    string
	CreatedAt      time.Time
}

// BalanceCache is the materialized current balance per (account, asset).
type BalanceCache struct {
	AccountID         uuid.UUID
	AssetTypeID       uuid.UUID
	Balance           money.Amount
	LastTransactionID uuid.UUID
	UpdatedAt         time.Time
}

// IdempotencyRecord is the stored outcome of a previously accepted
// logical request, keyed by the client-supplied idempotency key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody json.RawMessage
	Status       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
