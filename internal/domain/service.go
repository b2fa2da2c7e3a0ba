package domain

import (
	"context"
	"fmt"

	"registra/internal/core/apperror"
	"registra/internal/core/entity"
	"registra/internal/core/id"
	"registra/internal/core/tx"
	"registra/internal/domain/scope"
	"registra/pkg/logger"
)

// EntityService provides transactional business logic over a Repository.
// It owns the transactional boundary: every mutation runs inside a unit
// of work obtained from the transaction manager, visible in the call
// graph rather than hidden in annotations.
type EntityService[T entity.Persistable] struct {
	repo      Repository[T]
	txManager tx.Manager
	audit     AuditSink
	hooks     *HookRegistry[T]

	// entityName for error messages and audit entries
	entityName string
}

// EntityServiceConfig configures the entity service.
type EntityServiceConfig[T entity.Persistable] struct {
	Repo       Repository[T]
	TxManager  tx.Manager
	Audit      AuditSink // optional; defaults to NopAuditSink
	EntityName string
}

// NewEntityService creates a new entity service.
func NewEntityService[T entity.Persistable](cfg EntityServiceConfig[T]) *EntityService[T] {
	audit := cfg.Audit
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &EntityService[T]{
		repo:       cfg.Repo,
		txManager:  cfg.TxManager,
		audit:      audit,
		hooks:      NewHookRegistry[T](),
		entityName: cfg.EntityName,
	}
}

// Hooks returns the hook registry for external registration.
func (s *EntityService[T]) Hooks() *HookRegistry[T] {
	return s.hooks
}

func (s *EntityService[T]) normalizeValidationErr(err error) error {
	if err == nil {
		return nil
	}
	// If entity already returns structured AppError, keep it.
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}

func (s *EntityService[T]) normalizeGetErr(err error, entityID any) error {
	if err == nil {
		return nil
	}
	// Preserve existing AppError, but ensure not-found carries the entity name.
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(s.entityName, entityID)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", s.entityName).WithDetail("id", entityID)
}

// Create validates and inserts a new entity inside a transaction.
func (s *EntityService[T]) Create(ctx context.Context, e T) error {
	if err := e.Validate(ctx); err != nil {
		return s.normalizeValidationErr(err)
	}

	if err := s.hooks.Run(ctx, BeforeCreate, e); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, e); err != nil {
			return fmt.Errorf("create %s: %w", s.entityName, err)
		}
		// Recorded inside the unit of work so the audit row commits and
		// rolls back together with the mutation.
		s.audit.Record(ctx, AuditCreate, s.entityName, e.EntityBase().ID, e)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, AfterCreate, e); err != nil {
		// Entity is already created; surface in logs only.
		logger.Warn(ctx, "after-create hook failed", "entity", s.entityName, "error", err)
	}

	return nil
}

// Get retrieves an entity by ID under the given scope mode.
func (s *EntityService[T]) Get(ctx context.Context, entityID id.ID, mode scope.Mode) (T, error) {
	e, err := s.repo.FindByID(ctx, entityID, mode)
	if err != nil {
		return e, s.normalizeGetErr(err, entityID.String())
	}
	return e, nil
}

// Update validates and persists changes with optimistic locking.
func (s *EntityService[T]) Update(ctx context.Context, e T) error {
	if err := e.Validate(ctx); err != nil {
		return s.normalizeValidationErr(err)
	}

	if err := s.hooks.Run(ctx, BeforeUpdate, e); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, e); err != nil {
			return fmt.Errorf("update %s: %w", s.entityName, err)
		}
		s.audit.Record(ctx, AuditUpdate, s.entityName, e.EntityBase().ID, e)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, AfterUpdate, e); err != nil {
		logger.Warn(ctx, "after-update hook failed", "entity", s.entityName, "error", err)
	}

	return nil
}

// SoftDelete marks an entity deleted inside a transaction.
func (s *EntityService[T]) SoftDelete(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error {
	e, err := s.repo.FindByID(ctx, entityID, scope.All)
	if err != nil {
		return s.normalizeGetErr(err, entityID.String())
	}

	if err := s.hooks.Run(ctx, BeforeDelete, e); err != nil {
		return err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.SoftDelete(ctx, entityID, actingUser, reason); err != nil {
			return fmt.Errorf("soft delete %s: %w", s.entityName, err)
		}
		s.audit.Record(ctx, AuditSoftDelete, s.entityName, entityID, map[string]any{"reason": reason})
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, AfterDelete, e); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "entity", s.entityName, "error", err)
	}

	return nil
}

// Restore reverses a soft delete inside a transaction.
func (s *EntityService[T]) Restore(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Restore(ctx, entityID, actingUser, reason); err != nil {
			return fmt.Errorf("restore %s: %w", s.entityName, err)
		}
		s.audit.Record(ctx, AuditRestore, s.entityName, entityID, map[string]any{"reason": reason})
		return nil
	})
}

// List retrieves entities with filtering and pagination.
// Elevated scopes are reserved for administrative callers.
func (s *EntityService[T]) List(ctx context.Context, q Query) (Page[T], error) {
	return s.repo.List(ctx, q)
}

// Exists checks if entity exists under the given scope.
func (s *EntityService[T]) Exists(ctx context.Context, entityID id.ID, mode scope.Mode) (bool, error) {
	return s.repo.Exists(ctx, entityID, mode)
}
