package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registra/internal/core/apperror"
	"registra/internal/core/tx"
	"registra/pkg/logger"
)

var tracer = otel.Tracer("registra/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// Timeout is the unit-of-work deadline. Exceeding it rolls back and
	// fails with TRANSACTION_TIMEOUT, which is never retried.
	Timeout time.Duration

	// MaxRetries caps total attempts for transient failures
	// (deadlock, serialization failure, lock wait timeout).
	MaxRetries int

	// RetryBackoff is the base delay; attempt n waits
	// base * 2^n + random(0, RetryJitterMax).
	RetryBackoff   time.Duration
	RetryJitterMax time.Duration

	// UseSavepoint creates a savepoint for nested transactions
	// WARNING: Savepoints are expensive, use only when needed
	UseSavepoint bool
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   50 * time.Millisecond,
		RetryJitterMax: 50 * time.Millisecond,
		UseSavepoint:   false,
	}
}

// SerializableTxOptions for critical operations requiring serializable isolation.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// beginQuerier is the pool surface the manager needs: ad-hoc statements
// plus transaction begin. *pgxpool.Pool satisfies it.
type beginQuerier interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager manages database transactions with support for:
// - Deadlock/serialization-failure retry with exponential backoff + jitter
// - Nested transactions (with optional savepoints) and explicit named savepoints
// - Unit-of-work deadline enforcement
// - Outcome/timing metrics and distributed tracing
type TxManager struct {
	pool    beginQuerier
	metrics tx.Metrics
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool, metrics tx.Metrics) *TxManager {
	if metrics == nil {
		metrics = tx.NopMetrics{}
	}
	return &TxManager{pool: pool.Pool, metrics: metrics}
}

// NewTxManagerFromRawPool creates a new transaction manager from raw pgxpool.Pool.
func NewTxManagerFromRawPool(pool *pgxpool.Pool, metrics tx.Metrics) *TxManager {
	if metrics == nil {
		metrics = tx.NopMetrics{}
	}
	return &TxManager{pool: pool, metrics: metrics}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps pgx.Tx with metadata.
type Tx struct {
	pgx.Tx
	nested bool
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused (nested transaction).
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
// Transient store errors are retried by re-executing fn from scratch, so
// fn must not carry side effects outside the transactional session.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	// Nested call: reuse the outer transaction, optionally via savepoint.
	if existing := m.GetTx(ctx); existing != nil {
		return m.handleNestedTransaction(ctx, existing, opts, fn)
	}

	return m.runWithRetry(ctx, span, opts, fn)
}

// runWithRetry owns the attempt loop. Only transient failures re-enter;
// timeouts and business errors propagate immediately.
func (m *TxManager) runWithRetry(ctx context.Context, span trace.Span, opts TxOptions, fn func(ctx context.Context) error) error {
	maxAttempts := opts.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	attempts := 0

	record := func(outcome tx.Outcome) {
		span.SetAttributes(
			attribute.Int("tx.attempts", attempts),
			attribute.String("tx.outcome", string(outcome)),
		)
		m.metrics.RecordUnitOfWork(outcome, attempts, time.Since(start))
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++

		err := m.runOnce(ctx, opts, fn)
		if err == nil {
			if attempts > 1 {
				record(tx.OutcomeDeadlockRetry)
			} else {
				record(tx.OutcomeSuccess)
			}
			return nil
		}

		if apperror.IsTransactionTimeout(err) {
			record(tx.OutcomeTimeout)
			return err
		}

		if !IsTransientError(err) {
			record(tx.OutcomeFailure)
			return err
		}

		lastErr = err
		if attempt+1 < maxAttempts {
			delay := retryDelay(attempt, opts.RetryBackoff, opts.RetryJitterMax)
			logger.Warn(ctx, "transient store error, retrying transaction",
				"attempt", attempts, "delay", delay.String(), "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				record(tx.OutcomeFailure)
				return fmt.Errorf("transaction retry aborted: %w", ctx.Err())
			}
		}
	}

	record(tx.OutcomeFailure)
	return apperror.NewTransientStore(attempts, lastErr)
}

// runOnce executes fn in a single fresh transaction attempt.
func (m *TxManager) runOnce(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	workCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		workCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pgxTx, err := m.pool.BeginTx(workCtx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		if workCtx.Err() == context.DeadlineExceeded {
			return apperror.NewTransactionTimeout(opts.Timeout.String()).WithCause(err)
		}
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Server-side guard against runaway statements within the deadline.
	if opts.Timeout > 0 {
		_, err = pgxTx.Exec(workCtx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.Timeout.Milliseconds()))
		if err != nil {
			m.rollback(ctx, pgxTx, err)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	txCtx := context.WithValue(workCtx, txKey{}, &Tx{Tx: pgxTx, nested: false})

	if err := fn(txCtx); err != nil {
		// The connection is returned to the pool only after rollback
		// completes, so its transaction state is never unknown.
		m.rollback(ctx, pgxTx, err)
		if workCtx.Err() == context.DeadlineExceeded || isStatementTimeout(err) {
			return apperror.NewTransactionTimeout(opts.Timeout.String()).WithCause(err)
		}
		return err
	}

	if err := pgxTx.Commit(workCtx); err != nil {
		m.rollback(ctx, pgxTx, err)
		if workCtx.Err() == context.DeadlineExceeded {
			return apperror.NewTransactionTimeout(opts.Timeout.String()).WithCause(err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// rollback runs on a background context so it completes even when the
// unit-of-work context was cancelled.
func (m *TxManager) rollback(ctx context.Context, pgxTx pgx.Tx, cause error) {
	if rbErr := pgxTx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", cause)
	}
}

// handleNestedTransaction manages nested transaction (reuses or creates savepoint).
func (m *TxManager) handleNestedTransaction(ctx context.Context, existing *Tx, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		// Reuse existing transaction without savepoint
		return fn(ctx)
	}
	return m.WithSavepoint(ctx, fmt.Sprintf("sp_%d", time.Now().UnixNano()), fn)
}

// WithSavepoint executes fn inside a named savepoint of the current
// transaction. The savepoint is released on success; on failure the
// transaction is rolled back to it (without aborting the outer
// transaction) and fn's error is re-thrown.
func (m *TxManager) WithSavepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	existing := m.GetTx(ctx)
	if existing == nil {
		return apperror.NewInternal(fmt.Errorf("savepoint %q requires an open transaction", name))
	}

	ident, err := savepointIdent(name)
	if err != nil {
		return err
	}

	if _, err := existing.Exec(ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", ident, "error", rbErr)
		}
		return err
	}

	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}

	return nil
}

// savepointIdent validates a savepoint name as a safe SQL identifier.
func savepointIdent(name string) (string, error) {
	if name == "" {
		return "", apperror.NewValidation("savepoint name is required")
	}
	for i, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !(isDigit && i > 0) {
			return "", apperror.NewValidation("savepoint name must be a plain identifier").
				WithDetail("name", name)
		}
	}
	return name, nil
}

// isStatementTimeout detects the server-side statement_timeout cancel.
func isStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57014 query_canceled is what statement_timeout raises.
		return pgErr.Code == "57014" && strings.Contains(pgErr.Message, "statement timeout")
	}
	return false
}

// ContextWithTx returns ctx carrying t as the active transaction.
// For adapters and tests that manage the transaction lifecycle themselves.
func ContextWithTx(ctx context.Context, t pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, &Tx{Tx: t})
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is the statement surface shared by pgx.Tx and pgxpool.Pool.
// Repositories target this so they work both inside and outside
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns appropriate querier for context.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := DefaultTxOptions()
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}
