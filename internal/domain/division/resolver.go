package division

import (
	"context"
	"errors"
	"fmt"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
	"registra/internal/core/security"
	"registra/internal/core/tx"
	"registra/pkg/logger"
)

// DefaultFallbackName is used when no fallback name is configured.
const DefaultFallbackName = "Main division"

// DefaultFallbackCode is the code of the lazily created default division.
const DefaultFallbackCode = "MAIN"

// Resolver assigns and validates the division an entity belongs to.
// When no division is supplied, it falls back to the system default,
// creating it lazily on first use.
type Resolver struct {
	repo         Repository
	txManager    tx.Manager
	policy       security.AccessPolicy
	fallbackName string
	fallbackCode string
}

// ResolverConfig configures the resolver.
type ResolverConfig struct {
	Repo         Repository
	TxManager    tx.Manager
	Policy       security.AccessPolicy // optional; defaults to AllowAll
	FallbackName string                // optional
	FallbackCode string                // optional
}

// NewResolver creates a division resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	policy := cfg.Policy
	if policy == nil {
		policy = security.AllowAll{}
	}
	name := cfg.FallbackName
	if name == "" {
		name = DefaultFallbackName
	}
	code := cfg.FallbackCode
	if code == "" {
		code = DefaultFallbackCode
	}
	return &Resolver{
		repo:         cfg.Repo,
		txManager:    cfg.TxManager,
		policy:       policy,
		fallbackName: name,
		fallbackCode: code,
	}
}

// GetOrCreateDefault returns the default division, creating it if no
// division carries the default flag yet. Idempotent under concurrency:
// the insert runs in its own short transaction, and when a concurrent
// caller won the race the unique index over is_default rejects our
// insert and we re-read the now-existing default.
func (r *Resolver) GetOrCreateDefault(ctx context.Context) (*Division, error) {
	d, err := r.repo.GetDefault(ctx)
	if err == nil {
		return d, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("get default division: %w", err)
	}

	created := New(r.fallbackCode, r.fallbackName)
	created.IsDefault = true

	txErr := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.repo.Create(ctx, created)
	})
	if txErr == nil {
		logger.Info(ctx, "created default division", "division_id", created.ID.String())
		return created, nil
	}

	// Lost the race: another caller inserted the default first.
	var appErr *apperror.AppError
	if errors.As(txErr, &appErr) && (appErr.Code == apperror.CodeConflict || appErr.Code == apperror.CodeDuplicate) {
		existing, readErr := r.repo.GetDefault(ctx)
		if readErr != nil {
			return nil, fmt.Errorf("re-read default division after conflict: %w", readErr)
		}
		return existing, nil
	}

	return nil, fmt.Errorf("create default division: %w", txErr)
}

// Assign returns the explicit division when given and existing,
// otherwise the (possibly lazily created) default.
func (r *Resolver) Assign(ctx context.Context, explicit *id.ID) (*Division, error) {
	if explicit == nil || id.IsNil(*explicit) {
		return r.GetOrCreateDefault(ctx)
	}

	d, err := r.repo.GetByID(ctx, *explicit)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, apperror.NewValidation("division is deleted").
			WithDetail("division_id", explicit.String())
	}
	return d, nil
}

// ValidateAccess delegates to the injected access policy.
func (r *Resolver) ValidateAccess(ctx context.Context, userID, divisionID id.ID) (bool, error) {
	return r.policy.ValidateAccess(ctx, userID, divisionID)
}
