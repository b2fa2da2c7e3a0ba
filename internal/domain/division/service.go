package division

import (
	"context"
	"fmt"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
	"registra/internal/core/tx"
)

// maxTreeDepth bounds the ancestor walk so a corrupted tree cannot
// loop forever.
const maxTreeDepth = 64

// Service provides division tree and lifecycle operations.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a division service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

// Create validates and inserts a new division.
func (s *Service) Create(ctx context.Context, d *Division) error {
	if err := d.Validate(ctx); err != nil {
		return err
	}
	if d.ParentID != nil {
		if _, err := s.repo.GetByID(ctx, *d.ParentID); err != nil {
			return fmt.Errorf("resolve parent division: %w", err)
		}
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, d)
	})
}

// SetDefault moves the default flag to divisionID, atomically clearing
// the previous holder within one transaction.
func (s *Service) SetDefault(ctx context.Context, divisionID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.Exists(ctx, divisionID)
		if err != nil {
			return err
		}
		if !exists {
			return apperror.NewNotFound("division", divisionID.String())
		}
		return s.repo.SetDefault(ctx, divisionID)
	})
}

// Reparent moves a division under newParent (nil makes it a root).
// Rejected when newParent is the division itself or one of its
// descendants: the ancestor chain of newParent is walked and must not
// contain the division being moved.
func (s *Service) Reparent(ctx context.Context, divisionID id.ID, newParent *id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, divisionID)
		if err != nil {
			return err
		}

		if newParent != nil {
			if *newParent == divisionID {
				return apperror.NewValidation("division cannot be its own parent").
					WithDetail("division_id", divisionID.String())
			}
			if err := s.ensureNotDescendant(ctx, divisionID, *newParent); err != nil {
				return err
			}
		}

		d.ParentID = newParent
		return s.repo.Update(ctx, d)
	})
}

// ensureNotDescendant walks the ancestor chain of candidate and fails
// when root appears in it.
func (s *Service) ensureNotDescendant(ctx context.Context, root, candidate id.ID) error {
	current := &candidate
	for depth := 0; current != nil; depth++ {
		if depth >= maxTreeDepth {
			return apperror.NewValidation("division tree too deep").
				WithDetail("max_depth", maxTreeDepth)
		}

		node, err := s.repo.GetByID(ctx, *current)
		if err != nil {
			return fmt.Errorf("walk division ancestors: %w", err)
		}
		if node.ParentID != nil && *node.ParentID == root {
			return apperror.NewValidation("new parent is a descendant of the division being moved").
				WithDetail("division_id", root.String()).
				WithDetail("parent_id", candidate.String())
		}
		current = node.ParentID
	}
	return nil
}

// SoftDelete marks a division deleted after verifying no active entity
// still references it.
func (s *Service) SoftDelete(ctx context.Context, divisionID id.ID, actingUser id.ID, reason string) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		refs, err := s.repo.CountEntityReferences(ctx, divisionID)
		if err != nil {
			return fmt.Errorf("count division references: %w", err)
		}
		if refs > 0 {
			return apperror.NewConflict("division is still referenced by entities").
				WithDetail("division_id", divisionID.String()).
				WithDetail("references", refs)
		}
		return s.repo.SoftDelete(ctx, divisionID, actingUser, reason)
	})
}
