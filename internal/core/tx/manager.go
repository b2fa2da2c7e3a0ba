// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations, following the Dependency Inversion Principle.
package tx

import (
	"context"
	"time"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, savepoints and retry of
// transient serialization/deadlock failures.
//
// Domain services depend on this interface, not concrete implementations.
// The actual implementation lives in infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Deadlock and serialization failures are retried by re-executing fn
	// from scratch, so fn must be free of side effects outside the
	// transactional session. Nested calls reuse the existing transaction
	// from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// WithSavepoint executes fn inside a named savepoint within the
	// current transaction. On success the savepoint is released; on
	// failure the transaction is rolled back to the savepoint (without
	// aborting the outer transaction) and fn's error is returned.
	WithSavepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Use for queries that don't modify data (better performance, no locks).
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	// Attempts to modify data will fail.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outcome classifies how a unit of work finished.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeDeadlockRetry Outcome = "deadlock_retry" // succeeded after at least one retry
	OutcomeFailure       Outcome = "failure"
	OutcomeTimeout       Outcome = "timeout"
)

// Metrics receives timing and outcome events for each unit of work.
// Implementations must be fire-and-forget: never block and never fail
// the transaction.
type Metrics interface {
	RecordUnitOfWork(outcome Outcome, attempts int, duration time.Duration)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordUnitOfWork(Outcome, int, time.Duration) {}
