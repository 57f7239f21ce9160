// Package store is the Store Adapter (spec.md §4.1): a thin
// transactional wrapper over the relational database providing pooled
// connections, a scoped transaction with configurable isolation, and
// classification of driver errors into retriable vs fatal categories.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/coinvault/internal/config"
)

// Querier is the minimal surface the engine needs from either a pool
// connection or an open transaction. Both *pgxpool.Pool and pgx.Tx
// satisfy it structurally, which lets unit tests substitute a small
// fake instead of a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store wraps a pgxpool.Pool with the transaction and error-classification
// helpers the rest of the engine depends on.
type Store struct {
	Pool *pgxpool.Pool
}

// Open creates the pool according to cfg and verifies connectivity, the
// way ledgerops's store.NewStore does, generalized to the pool-sizing
// and timeout options of spec.md §6.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.Source)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolCfg.MinConns = cfg.Pool.MinConnections
	poolCfg.MaxConns = cfg.Pool.MaxConnections
	poolCfg.MaxConnIdleTime = cfg.DB.IdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = cfg.DB.ConnectionTimeout
	if cfg.DB.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = statementTimeoutMs(cfg.DB.StatementTimeout)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DB.ConnectionTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func statementTimeoutMs(d time.Duration) string {
	return fmt.Sprintf("%d", d.Milliseconds())
}

// Close drains the pool. Callers invoke this on graceful shutdown after
// in-flight transactions have finished (spec.md §5: "Graceful shutdown").
func (s *Store) Close() {
	s.Pool.Close()
}

// Exec, QueryRow, and Query forward to the pool, making *Store itself a
// Querier so callers can depend on a narrow interface instead of the
// concrete pool type.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.Pool.Exec(ctx, sql, args...)
}

func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.Pool.QueryRow(ctx, sql, args...)
}

func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.Pool.Query(ctx, sql, args...)
}

// RunInTx opens a transaction at the requested isolation level, runs fn,
// and commits on success — mirroring ledgerops's ProcessTransfer's
// defer tx.Rollback(ctx) pattern, but factored out so every caller gets
// the guarantee for free. On failure it rolls back explicitly; if the
// rollback itself errors (connection already gone, say), both errors
// are returned together instead of the rollback failure swallowing fn's,
// the same "rollback after fn error" shape as EntainHW's
// pgutils.WithTx, generalized with a real multi-error type.
func (s *Store) RunInTx(ctx context.Context, isoLevel pgx.TxIsoLevel, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return multierror.Append(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Serializable is the isolation level the Ledger Writer always uses.
const Serializable = pgx.Serializable

// ErrorKind classifies a driver error into the categories the Retry
// Driver and orchestrator react to.
type ErrorKind string

const (
	KindSerializationFailure ErrorKind = "serialization_failure"
	KindDeadlockDetected     ErrorKind = "deadlock_detected"
	KindLockNotAvailable     ErrorKind = "lock_not_available"
	KindUniqueViolation      ErrorKind = "unique_violation"
	KindCheckViolation       ErrorKind = "check_violation"
	KindNotFound             ErrorKind = "not_found"
	KindOther                ErrorKind = "other"
)

// postgres SQLSTATE codes this engine distinguishes. See
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
	sqlstateUniqueViolation      = "23505"
	sqlstateCheckViolation       = "23514"
)

// Classify maps a driver error to an ErrorKind. The adapter does not
// generate SQL (NOWAIT is a query-building convention used by callers),
// but it must preserve the distinct lock-unavailable code so retry logic
// downstream can react to it.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return KindNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure:
			return KindSerializationFailure
		case sqlstateDeadlockDetected:
			return KindDeadlockDetected
		case sqlstateLockNotAvailable:
			return KindLockNotAvailable
		case sqlstateUniqueViolation:
			return KindUniqueViolation
		case sqlstateCheckViolation:
			return KindCheckViolation
		}
	}
	return KindOther
}
