package ledgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := New("ledger.Append", KindInsufficientFunds, ErrInsufficientFunds)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestKindOfSentinelFallback(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{ErrValidation, KindValidation},
		{ErrAccountNotFound, KindNotFound},
		{ErrAssetNotFound, KindNotFound},
		{ErrTransactionNotFound, KindNotFound},
		{ErrInsufficientFunds, KindInsufficientFunds},
		{ErrIdempotencyConflict, KindConflict},
		{ErrDuplicateKey, KindConflict},
		{ErrSerializationFailure, KindTransientConflict},
		{ErrDeadlockDetected, KindTransientConflict},
		{ErrLockNotAvailable, KindTransientConflict},
		{errors.New("mystery"), KindInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, KindOf(c.err), c.err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New("op", KindTransientConflict, ErrLockNotAvailable)))
	assert.False(t, IsRetryable(New("op", KindInsufficientFunds, ErrInsufficientFunds)))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(New("op", KindValidation, ErrValidation)))
	assert.True(t, IsClientError(New("op", KindNotFound, ErrAccountNotFound)))
	assert.True(t, IsClientError(New("op", KindInsufficientFunds, ErrInsufficientFunds)))
	assert.True(t, IsClientError(New("op", KindConflict, ErrIdempotencyConflict)))
	assert.False(t, IsClientError(New("op", KindTransientConflict, ErrLockNotAvailable)))
	assert.False(t, IsClientError(New("op", KindInternal, ErrInternal)))
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	err := New("orchestrator.execute", KindInternal, ErrInternal).WithCorrID("corr-123")
	assert.ErrorIs(t, err, ErrInternal)
	assert.Contains(t, err.Error(), "corr-123")
	assert.Contains(t, err.Error(), "orchestrator.execute")
}
