package budget

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Budget writes reassign the owner's receipts in the same transaction so an
// unassigned receipt always means no window contains it.

// CreateBudget normalizes, validates and stores a budget.
func (s *Service) CreateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var created *domain.Budget
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateBudget(ctx, b); err != nil {
			return fmt.Errorf("CreateBudget: %w", err)
		}
		if _, err := s.ReassignAllInTx(ctx, tx, b.OwnerID); err != nil {
			return err
		}
		got, err := tx.GetBudget(ctx, b.OwnerID, b.ID)
		if err != nil {
			return err
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateBudget rewrites the caller-editable fields of an existing budget.
func (s *Service) UpdateBudget(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Budget
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetBudget(ctx, b.OwnerID, b.ID); err != nil {
			return err
		}
		if err := tx.UpdateBudget(ctx, b); err != nil {
			return fmt.Errorf("UpdateBudget: %w", err)
		}
		if _, err := s.ReassignAllInTx(ctx, tx, b.OwnerID); err != nil {
			return err
		}
		got, err := tx.GetBudget(ctx, b.OwnerID, b.ID)
		if err != nil {
			return err
		}
		updated = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBudget removes a budget; its receipts fall through to any other
// matching window.
func (s *Service) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.DeleteBudget(ctx, ownerID, id); err != nil {
			return err
		}
		_, err := s.ReassignAllInTx(ctx, tx, ownerID)
		return err
	})
}

// GetBudget returns one budget of the owner.
func (s *Service) GetBudget(ctx context.Context, ownerID, id int64) (*domain.Budget, error) {
	var b *domain.Budget
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		b, err = tx.GetBudget(ctx, ownerID, id)
		return err
	})
	return b, err
}

// ListBudgets returns the owner's budgets ordered by id.
func (s *Service) ListBudgets(ctx context.Context, ownerID int64) ([]*domain.Budget, error) {
	var list []*domain.Budget
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		list, err = tx.ListBudgets(ctx, ownerID)
		return err
	})
	return list, err
}

// DeleteReceipt removes a receipt and recomputes the budget it belonged to.
func (s *Service) DeleteReceipt(ctx context.Context, ownerID, receiptID int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.GetReceipt(ctx, ownerID, receiptID)
		if err != nil {
			return err
		}
		if err := tx.DeleteReceipt(ctx, ownerID, receiptID); err != nil {
			return err
		}
		if r.BudgetID == nil {
			return nil
		}
		_, err = s.RecomputeInTx(ctx, tx, ownerID, *r.BudgetID)
		return err
	})
}

// GetReceipt returns one receipt of the owner.
func (s *Service) GetReceipt(ctx context.Context, ownerID, id int64) (*domain.Receipt, error) {
	var r *domain.Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		r, err = tx.GetReceipt(ctx, ownerID, id)
		return err
	})
	return r, err
}

// ListReceipts returns the owner's receipts ordered by id.
func (s *Service) ListReceipts(ctx context.Context, ownerID int64, filter storage.ReceiptFilter) ([]*domain.Receipt, error) {
	var list []*domain.Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		list, err = tx.ListReceipts(ctx, ownerID, filter)
		return err
	})
	return list, err
}
