// Package transactions manages the owner's incomes and expenses. Expenses
// extracted from receipts are listed here too but never feed budget
// aggregates.
package transactions

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Service validates and persists incomes and expenses.
type Service struct {
	store storage.Store
}

// NewService creates a transactions service.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// ParseOrigin accepts "", "manual" and "receipt".
func ParseOrigin(s string) (domain.Origin, error) {
	switch o := domain.Origin(s); o {
	case "", domain.OriginManual, domain.OriginReceipt:
		return o, nil
	default:
		return "", domain.Invalid("origin", "must be %q or %q", domain.OriginManual, domain.OriginReceipt)
	}
}

// CreateExpense stores a manually entered expense.
func (s *Service) CreateExpense(ctx context.Context, e *domain.Expense) (*domain.Expense, error) {
	e.ID = 0
	e.Origin = domain.OriginManual
	e.ReceiptID = nil
	e.Normalize()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateExpense(ctx, e); err != nil {
			return fmt.Errorf("CreateExpense: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetExpense returns one expense of the owner.
func (s *Service) GetExpense(ctx context.Context, ownerID, id int64) (*domain.Expense, error) {
	var e *domain.Expense
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		e, err = tx.GetExpense(ctx, ownerID, id)
		return err
	})
	return e, err
}

// ListExpenses returns the owner's expenses, optionally narrowed to one origin.
func (s *Service) ListExpenses(ctx context.Context, ownerID int64, origin domain.Origin) ([]*domain.Expense, error) {
	var list []*domain.Expense
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		list, err = tx.ListExpenses(ctx, ownerID, storage.ExpenseFilter{Origin: origin})
		return err
	})
	return list, err
}

// UpdateExpense rewrites the editable fields. Origin and the receipt link are
// kept from the stored expense.
func (s *Service) UpdateExpense(ctx context.Context, e *domain.Expense) (*domain.Expense, error) {
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.GetExpense(ctx, e.OwnerID, e.ID)
		if err != nil {
			return err
		}
		e.Origin = existing.Origin
		e.ReceiptID = existing.ReceiptID
		e.Normalize()
		if err := e.Validate(); err != nil {
			return err
		}
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteExpense removes one expense of the owner.
func (s *Service) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteExpense(ctx, ownerID, id)
	})
}

// CreateIncome stores a manually entered income.
func (s *Service) CreateIncome(ctx context.Context, i *domain.Income) (*domain.Income, error) {
	i.ID = 0
	i.Origin = domain.OriginManual
	i.Normalize()
	if err := i.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateIncome(ctx, i); err != nil {
			return fmt.Errorf("CreateIncome: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return i, nil
}

// GetIncome returns one income of the owner.
func (s *Service) GetIncome(ctx context.Context, ownerID, id int64) (*domain.Income, error) {
	var i *domain.Income
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		i, err = tx.GetIncome(ctx, ownerID, id)
		return err
	})
	return i, err
}

// ListIncomes returns the owner's incomes, optionally narrowed to one origin.
func (s *Service) ListIncomes(ctx context.Context, ownerID int64, origin domain.Origin) ([]*domain.Income, error) {
	var list []*domain.Income
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.ListIncomes(ctx, ownerID)
		if err != nil {
			return err
		}
		list = all[:0]
		for _, i := range all {
			if origin == "" || i.Origin == origin {
				list = append(list, i)
			}
		}
		return nil
	})
	return list, err
}

// UpdateIncome rewrites the editable fields of an income.
func (s *Service) UpdateIncome(ctx context.Context, i *domain.Income) (*domain.Income, error) {
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.GetIncome(ctx, i.OwnerID, i.ID)
		if err != nil {
			return err
		}
		i.Origin = existing.Origin
		i.Normalize()
		if err := i.Validate(); err != nil {
			return err
		}
		return tx.UpdateIncome(ctx, i)
	})
	if err != nil {
		return nil, err
	}
	return i, nil
}

// DeleteIncome removes one income of the owner.
func (s *Service) DeleteIncome(ctx context.Context, ownerID, id int64) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteIncome(ctx, ownerID, id)
	})
}
