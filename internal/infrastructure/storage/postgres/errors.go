package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"registra/internal/core/apperror"
)

// PostgreSQL error codes the core cares about.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsTransientError classifies contention failures the transaction
// manager may retry: deadlock detected, serialization failure, lock
// wait timeout. Everything else is permanent and propagates immediately.
func IsTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}

// IsUniqueViolation detects a unique constraint conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsForeignKeyViolation detects a referential integrity conflict.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// TranslateError maps low-level store errors into the platform error
// taxonomy so callers never see backend-specific shapes. Transient
// errors pass through untranslated: the transaction manager needs the
// raw code to classify them for retry.
func TranslateError(err error, entityName string, entityID any) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) || IsTransientError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return apperror.NewConflict("unique constraint violated").
			WithDetail("entity", entityName).
			WithDetail("id", entityID).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewConflict("entity is referenced by other records").
			WithDetail("entity", entityName).
			WithDetail("id", entityID).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}

	return err
}
