// Package orchestrator is the Movement Orchestrator (spec.md §4.4): it
// encodes top-up, bonus issuance, and purchase as parameterizations of
// the Ledger Writer, validating the request and resolving counterparty
// system accounts before the write opens. The source-balance
// precondition is checked by the Ledger Writer inside the transaction.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/warp/coinvault/internal/domain"
	"github.com/warp/coinvault/internal/idempotency"
	"github.com/warp/coinvault/internal/ledger"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/logging"
	"github.com/warp/coinvault/internal/money"
	"github.com/warp/coinvault/internal/store"
)

// Request is the common shape of the three business operations.
type Request struct {
	UserID         string
	AssetCode      string
	Amount         money.Amount
	IdempotencyKey string
	Metadata       json.RawMessage

	// Reason annotates bonus issuance; Item annotates purchases. Both are
	// optional and echoed back in the response, per spec.md §4.4 step 5.
	Reason string
	Item   string
}

// Response is the client-facing result of any of the three operations.
type Response struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        string          `json:"userId"`
	AssetCode     string          `json:"assetCode"`
	Amount        string          `json:"amount"`
	NewBalance    string          `json:"newBalance"`
	Timestamp     time.Time       `json:"timestamp"`
	Reason        string          `json:"reason,omitempty"`
	Item          string          `json:"item,omitempty"`
}

// Store is the slice of the Store Adapter the orchestrator depends on:
// direct pooled queries plus a scoped transaction. *store.Store
// satisfies this structurally, and tests substitute a fake instead of
// a live database.
type Store interface {
	store.Querier
	RunInTx(ctx context.Context, isoLevel pgx.TxIsoLevel, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Orchestrator wires the Store Adapter, Ledger Writer, and Idempotency
// Registry together into the three named operations.
type Orchestrator struct {
	store    Store
	writer   *ledger.Writer
	registry *idempotency.Registry
	log      *logging.Logger
}

// New builds an Orchestrator.
func New(s Store, w *ledger.Writer, reg *idempotency.Registry, log *logging.Logger) *Orchestrator {
	return &Orchestrator{store: s, writer: w, registry: reg, log: log}
}

// TopUp credits a user account from SYSTEM_TREASURY.
func (o *Orchestrator) TopUp(ctx context.Context, req Request) (*Response, error) {
	return o.execute(ctx, domain.TransactionTypeTopUp, req, domain.AccountTypeSystemTreasury, counterpartyIsSource, fmt.Sprintf("top-up of %s %s", req.Amount.String(), req.AssetCode))
}

// IssueBonus credits a user account from SYSTEM_BONUS.
func (o *Orchestrator) IssueBonus(ctx context.Context, req Request) (*Response, error) {
	desc := fmt.Sprintf("bonus of %s %s", req.Amount.String(), req.AssetCode)
	if req.Reason != "" {
		desc = fmt.Sprintf("%s (%s)", desc, req.Reason)
	}
	return o.execute(ctx, domain.TransactionTypeBonus, req, domain.AccountTypeSystemBonus, counterpartyIsSource, desc)
}

// Purchase debits a user account into SYSTEM_REVENUE.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Response, error) {
	desc := fmt.Sprintf("purchase of %s %s", req.Amount.String(), req.AssetCode)
	if req.Item != "" {
		desc = fmt.Sprintf("%s (%s)", desc, req.Item)
	}
	return o.execute(ctx, domain.TransactionTypePurchase, req, domain.AccountTypeSystemRevenue, counterpartyIsDestination, desc)
}

type counterpartyRole int

const (
	counterpartyIsSource      counterpartyRole = iota // system account funds the user
	counterpartyIsDestination                         // user funds the system account
)

// execute implements the common flow of spec.md §4.4: validate, fast-path
// idempotency lookup, resolve accounts, run the write inside a
// serializable transaction, assemble the response.
func (o *Orchestrator) execute(ctx context.Context, txType domain.TransactionType, req Request, counterpartyType domain.AccountType, role counterpartyRole, description string) (*Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	requestHash, err := idempotency.Hash(idempotency.CanonicalPayload{
		UserID:    req.UserID,
		AssetCode: req.AssetCode,
		Amount:    req.Amount.String(),
	})
	if err != nil {
		return nil, ledgerr.New("orchestrator.execute", ledgerr.KindInternal, err)
	}

	if cached, err := o.fastPathLookup(ctx, req.IdempotencyKey, requestHash); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	asset, userAccount, counterpartyAccount, err := o.resolveAccounts(ctx, req.UserID, req.AssetCode, counterpartyType)
	if err != nil {
		return nil, err
	}

	if req.Amount.DecimalPlaces() > asset.Decimals {
		return nil, ledgerr.New("orchestrator.execute", ledgerr.KindValidation,
			fmt.Errorf("%w: amount has more decimal places than %s allows (%d)", ledgerr.ErrValidation, asset.Code, asset.Decimals))
	}

	sourceAccountID, destAccountID := userAccount.ID, counterpartyAccount.ID
	if role == counterpartyIsSource {
		sourceAccountID, destAccountID = counterpartyAccount.ID, userAccount.ID
	}

	movement := ledger.Movement{
		SourceAccountID:      sourceAccountID,
		DestinationAccountID: destAccountID,
		AssetTypeID:          asset.ID,
		Amount:               req.Amount,
		Type:                 txType,
		Description:          description,
		Metadata:             req.Metadata,
		IdempotencyKey:       req.IdempotencyKey,
		RequestHash:          requestHash,
		Actor:                req.UserID,
	}

	var response *Response
	txErr := o.store.RunInTx(ctx, store.Serializable, func(ctx context.Context, tx pgx.Tx) error {
		_, err := o.writer.Append(ctx, tx, movement, func(result ledger.Result) (json.RawMessage, error) {
			userBalance := result.SourceBalance
			if role == counterpartyIsSource {
				userBalance = result.DestinationBalance
			}
			response = &Response{
				TransactionID: result.TransactionID,
				UserID:        req.UserID,
				AssetCode:     req.AssetCode,
				Amount:        req.Amount.String(),
				NewBalance:    userBalance.String(),
				Timestamp:     result.CompletedAt,
				Reason:        req.Reason,
				Item:          req.Item,
			}
			return json.Marshal(response)
		})
		return err
	})

	if txErr != nil {
		if errors.Is(txErr, ledger.ErrIdempotencyKeyRace) {
			cached, lookupErr := o.fastPathLookup(ctx, req.IdempotencyKey, requestHash)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if cached != nil {
				return cached, nil
			}
			return nil, ledgerr.New("orchestrator.execute", ledgerr.KindInternal, ledgerr.ErrInternal)
		}
		return nil, translateTxError(txErr)
	}

	return response, nil
}

func (o *Orchestrator) fastPathLookup(ctx context.Context, key, requestHash string) (*Response, error) {
	rec, err := o.registry.Lookup(ctx, o.store, key, requestHash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	var resp Response
	if err := json.Unmarshal(rec.ResponseBody, &resp); err != nil {
		return nil, ledgerr.New("orchestrator.fastPathLookup", ledgerr.KindInternal, err)
	}
	return &resp, nil
}

func (o *Orchestrator) resolveAccounts(ctx context.Context, userID, assetCode string, counterpartyType domain.AccountType) (domain.Asset, domain.Account, domain.Account, error) {
	var asset domain.Asset
	err := o.store.QueryRow(ctx,
		`SELECT id, code, display_name, decimals, is_active FROM asset_types WHERE code = $1`,
		assetCode,
	).Scan(&asset.ID, &asset.Code, &asset.DisplayName, &asset.Decimals, &asset.IsActive)
	if err != nil || !asset.IsActive {
		return domain.Asset{}, domain.Account{}, domain.Account{}, ledgerr.New("orchestrator.resolveAccounts", ledgerr.KindNotFound, ledgerr.ErrAssetNotFound)
	}

	const accountCols = `id, type, COALESCE(user_id, ''), name, metadata, is_active`

	userAccount, err := o.lookupAccount(ctx, `SELECT `+accountCols+` FROM accounts WHERE type = 'USER' AND user_id = $1`, userID)
	if err != nil {
		return domain.Asset{}, domain.Account{}, domain.Account{}, err
	}

	counterpartyAccount, err := o.lookupAccount(ctx, `SELECT `+accountCols+` FROM accounts WHERE type = $1 LIMIT 1`, string(counterpartyType))
	if err != nil {
		return domain.Asset{}, domain.Account{}, domain.Account{}, err
	}

	return asset, userAccount, counterpartyAccount, nil
}

func (o *Orchestrator) lookupAccount(ctx context.Context, sql string, arg any) (domain.Account, error) {
	var acc domain.Account
	err := o.store.QueryRow(ctx, sql, arg).
		Scan(&acc.ID, &acc.Type, &acc.UserID, &acc.Name, &acc.Metadata, &acc.IsActive)
	if err != nil || !acc.IsActive {
		return domain.Account{}, ledgerr.New("orchestrator.lookupAccount", ledgerr.KindNotFound, ledgerr.ErrAccountNotFound)
	}
	return acc, nil
}

func validate(req Request) error {
	if req.UserID == "" {
		return ledgerr.New("orchestrator.validate", ledgerr.KindValidation, fmt.Errorf("%w: userId is required", ledgerr.ErrValidation))
	}
	if req.AssetCode == "" {
		return ledgerr.New("orchestrator.validate", ledgerr.KindValidation, fmt.Errorf("%w: assetCode is required", ledgerr.ErrValidation))
	}
	if req.IdempotencyKey == "" {
		return ledgerr.New("orchestrator.validate", ledgerr.KindValidation, fmt.Errorf("%w: idempotencyKey is required", ledgerr.ErrValidation))
	}
	if !req.Amount.IsPositive() {
		return ledgerr.New("orchestrator.validate", ledgerr.KindValidation, fmt.Errorf("%w: amount must be positive", ledgerr.ErrValidation))
	}
	return nil
}

// translateTxError maps a driver-level error surfaced from inside
// RunInTx to the engine's error taxonomy when the ledger writer itself
// did not already wrap it as a *ledgerr.Error.
func translateTxError(err error) error {
	var le *ledgerr.Error
	if errors.As(err, &le) {
		return le
	}
	switch store.Classify(err) {
	case store.KindSerializationFailure:
		return ledgerr.New("orchestrator.execute", ledgerr.KindTransientConflict, ledgerr.ErrSerializationFailure)
	case store.KindDeadlockDetected:
		return ledgerr.New("orchestrator.execute", ledgerr.KindTransientConflict, ledgerr.ErrDeadlockDetected)
	case store.KindLockNotAvailable:
		return ledgerr.New("orchestrator.execute", ledgerr.KindTransientConflict, ledgerr.ErrLockNotAvailable)
	default:
		return ledgerr.New("orchestrator.execute", ledgerr.KindInternal, err)
	}
}
