package export

import (
	"context"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Service loads the data behind exports and reports and checks that every
// receipt it returns belongs to the caller.
type Service struct {
	store storage.Store
}

// NewService creates an export service.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Receipts returns the receipts to export. With a budget id the budget must
// exist for the owner and hold at least one receipt.
func (s *Service) Receipts(ctx context.Context, ownerID int64, budgetID *int64) ([]*domain.Receipt, error) {
	var receipts []*domain.Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		filter := storage.ReceiptFilter{}
		if budgetID != nil {
			if _, err := tx.GetBudget(ctx, ownerID, *budgetID); err != nil {
				return err
			}
			filter.BudgetID = budgetID
		}

		list, err := tx.ListReceipts(ctx, ownerID, filter)
		if err != nil {
			return err
		}
		if budgetID != nil && len(list) == 0 {
			return domain.NotFound("receipts for budget", *budgetID)
		}
		receipts = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ownerID, receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

// BudgetReport builds the report for one of the owner's budgets.
func (s *Service) BudgetReport(ctx context.Context, ownerID, budgetID int64) (*Report, error) {
	var (
		b        *domain.Budget
		receipts []*domain.Receipt
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if b, err = tx.GetBudget(ctx, ownerID, budgetID); err != nil {
			return err
		}
		receipts, err = tx.ReceiptsByBudget(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ownerID, receipts); err != nil {
		return nil, err
	}
	return BuildBudgetReport(b, receipts), nil
}

func checkOwner(ownerID int64, receipts []*domain.Receipt) error {
	for _, r := range receipts {
		if r.OwnerID != ownerID {
			return domain.Inconsistent(nil, "receipt %d does not belong to owner %d", r.ID, ownerID)
		}
	}
	return nil
}
