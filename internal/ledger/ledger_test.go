package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coinvault/internal/domain"
	"github.com/warp/coinvault/internal/idempotency"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/money"
)

// fakeRow scans a single decimal balance, or a placeholder lock
// result, or fails with a scripted error.
type fakeRow struct {
	balance decimal.Decimal
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch ptr := dest[0].(type) {
	case *decimal.Decimal:
		*ptr = r.balance
	case *int:
		*ptr = 1
	}
	return nil
}

// fakeQuerier is a minimal store.Querier double that lets tests drive
// the Ledger Writer without a live database.
type fakeQuerier struct {
	balances  map[uuid.UUID]decimal.Decimal
	lockErr   error
	execErr   error
	inserts   []string
	lockedIDs []uuid.UUID
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.inserts = append(f.inserts, sql)
	if strings.Contains(sql, "INTO transactions") && f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "FOR UPDATE NOWAIT") {
		if id, ok := args[0].(uuid.UUID); ok {
			f.lockedIDs = append(f.lockedIDs, id)
		}
		if f.lockErr != nil {
			return fakeRow{err: f.lockErr}
		}
		return fakeRow{}
	}
	accountID, _ := args[0].(uuid.UUID)
	bal, ok := f.balances[accountID]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{balance: bal}
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not used by the ledger writer")
}

func newMovement(source, dest uuid.UUID) Movement {
	return Movement{
		SourceAccountID:      source,
		DestinationAccountID: dest,
		AssetTypeID:          uuid.New(),
		Amount:               money.FromInt(25),
		Type:                 domain.TransactionTypePurchase,
		Description:          "test movement",
		IdempotencyKey:       "k1",
		RequestHash:          "hash",
	}
}

func TestAppendSucceedsAndComputesBalances(t *testing.T) {
	source := uuid.New()
	dest := uuid.New()
	m := newMovement(source, dest)

	q := &fakeQuerier{balances: map[uuid.UUID]decimal.Decimal{
		source: decimal.NewFromInt(100),
		dest:   decimal.NewFromInt(0),
	}}

	w := New(idempotency.New(0))

	var captured Result
	body, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		captured = r
		return json.Marshal(map[string]string{"ok": "true"})
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"true"}`, string(body))
	assert.Equal(t, "75.00000000", captured.SourceBalance.String())
	assert.Equal(t, "25.00000000", captured.DestinationBalance.String())
}

func TestAppendLocksBothAccountsInSortedOrder(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	m := newMovement(a, b)
	if a.String() < b.String() {
		a, b = b, a
		m = newMovement(a, b)
	}

	q := &fakeQuerier{balances: map[uuid.UUID]decimal.Decimal{
		a: decimal.NewFromInt(100),
		b: decimal.NewFromInt(0),
	}}
	w := New(idempotency.New(0))

	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		return json.Marshal(map[string]string{})
	})
	require.NoError(t, err)

	require.Len(t, q.lockedIDs, 2)
	assert.True(t, q.lockedIDs[0].String() < q.lockedIDs[1].String(), "locks must be acquired in sorted order regardless of source/destination roles")
}

func TestAppendSkipsSecondLockWhenAccountsAreTheSame(t *testing.T) {
	acct := uuid.New()
	m := newMovement(acct, acct)

	q := &fakeQuerier{balances: map[uuid.UUID]decimal.Decimal{
		acct: decimal.NewFromInt(100),
	}}
	w := New(idempotency.New(0))

	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		return json.Marshal(map[string]string{})
	})
	require.NoError(t, err)
	assert.Len(t, q.lockedIDs, 1)
}

func TestAppendRejectsInsufficientFunds(t *testing.T) {
	source := uuid.New()
	dest := uuid.New()
	m := newMovement(source, dest)
	m.Amount = money.FromInt(1000)

	q := &fakeQuerier{balances: map[uuid.UUID]decimal.Decimal{
		source: decimal.NewFromInt(10),
	}}

	w := New(idempotency.New(0))
	called := false
	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		called = true
		return nil, nil
	})

	require.Error(t, err)
	assert.False(t, called, "buildResponse must not run when the precondition fails")
}

func TestAppendTreatsLockNotAvailableAsTransient(t *testing.T) {
	source := uuid.New()
	dest := uuid.New()
	m := newMovement(source, dest)

	q := &fakeQuerier{
		balances: map[uuid.UUID]decimal.Decimal{source: decimal.NewFromInt(100)},
		lockErr:  &pgconn.PgError{Code: "55P03"},
	}

	w := New(idempotency.New(0))
	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		return json.Marshal(map[string]string{})
	})

	require.Error(t, err)
	assert.Equal(t, ledgerr.KindTransientConflict, ledgerr.KindOf(err))
}

func TestAppendReturnsIdempotencyKeyRaceOnUniqueViolation(t *testing.T) {
	source := uuid.New()
	dest := uuid.New()
	m := newMovement(source, dest)

	q := &fakeQuerier{
		balances: map[uuid.UUID]decimal.Decimal{
			source: decimal.NewFromInt(100),
			dest:   decimal.NewFromInt(0),
		},
		execErr: &pgconn.PgError{Code: "23505"},
	}

	w := New(idempotency.New(0))
	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		return json.Marshal(map[string]string{})
	})

	assert.ErrorIs(t, err, ErrIdempotencyKeyRace)
}

func TestAppendTreatsMissingBalanceRowAsZero(t *testing.T) {
	source := uuid.New()
	dest := uuid.New()
	m := newMovement(source, dest)
	m.Amount = money.FromInt(5)

	q := &fakeQuerier{balances: map[uuid.UUID]decimal.Decimal{
		source: decimal.NewFromInt(10),
	}}

	w := New(idempotency.New(0))
	var captured Result
	_, err := w.Append(context.Background(), q, m, func(r Result) (json.RawMessage, error) {
		captured = r
		return json.Marshal(map[string]string{})
	})

	require.NoError(t, err)
	assert.Equal(t, "5.00000000", captured.DestinationBalance.String())
}
