// Package budget matches receipts to the budget whose date window contains
// them and keeps each budget's current spending equal to the sum of its
// receipts' totals.
package budget

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Service runs assignment and aggregation. The *InTx methods join a
// transaction owned by the caller; the rest open their own.
type Service struct {
	store storage.Store
}

// NewService creates a budget service over the given store.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// ReassignResult summarizes a bulk reassignment.
type ReassignResult struct {
	Receipts   int `json:"receipts"`
	Moved      int `json:"moved"`
	Recomputed int `json:"recomputed"`
}

// SelectBudget picks the winner among candidate budgets: the lowest id.
// Returns nil when there are no candidates.
func SelectBudget(candidates []*domain.Budget) *domain.Budget {
	var winner *domain.Budget
	for _, b := range candidates {
		if winner == nil || b.ID < winner.ID {
			winner = b
		}
	}
	return winner
}

// SumTotals adds the receipts' totals, counting a missing total as zero.
func SumTotals(receipts []*domain.Receipt) domain.Money {
	total := domain.Zero
	for _, r := range receipts {
		total = total.Add(r.Total())
	}
	return total
}

// AssignInTx associates the receipt with the matching budget (or none) and
// recomputes every budget whose membership changed. receipt.BudgetID is
// updated in place.
func (s *Service) AssignInTx(ctx context.Context, tx storage.Tx, ownerID int64, receipt *domain.Receipt) error {
	if receipt.OwnerID != ownerID {
		return domain.Inconsistent(nil, "receipt %d is not owned by %d", receipt.ID, ownerID)
	}

	candidates, err := tx.FindBudgetsContaining(ctx, ownerID, receipt.EffectiveDate())
	if err != nil {
		return fmt.Errorf("AssignInTx: find budgets: %w", err)
	}

	var newID *int64
	if winner := SelectBudget(candidates); winner != nil {
		id := winner.ID
		newID = &id
	}
	oldID := receipt.BudgetID

	if !sameBudget(oldID, newID) {
		if err := tx.SetReceiptBudget(ctx, ownerID, receipt.ID, newID); err != nil {
			return fmt.Errorf("AssignInTx: set receipt budget: %w", err)
		}
		receipt.BudgetID = newID
	}

	touched := budgetSet{}
	touched.add(oldID)
	touched.add(newID)
	for _, id := range touched.sorted() {
		if _, err := s.RecomputeInTx(ctx, tx, ownerID, id); err != nil {
			return err
		}
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int64("receipt_id", receipt.ID).
		Interface("budget_id", newID).
		Int("candidates", len(candidates)).
		Msg("Receipt assigned")
	return nil
}

// RecomputeInTx locks the budget row and rewrites its current spending from
// the receipts that reference it. Idempotent.
func (s *Service) RecomputeInTx(ctx context.Context, tx storage.Tx, ownerID, budgetID int64) (*domain.Budget, error) {
	b, err := tx.LockBudget(ctx, budgetID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.Inconsistent(err, "budget %d vanished before recompute", budgetID)
		}
		return nil, fmt.Errorf("RecomputeInTx: lock budget: %w", err)
	}
	if b.OwnerID != ownerID {
		return nil, domain.Inconsistent(nil, "budget %d is not owned by %d", budgetID, ownerID)
	}

	receipts, err := tx.ReceiptsByBudget(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("RecomputeInTx: list receipts: %w", err)
	}
	for _, r := range receipts {
		if r.OwnerID != ownerID {
			return nil, domain.Inconsistent(nil, "receipt %d in budget %d belongs to another owner", r.ID, budgetID)
		}
	}

	total := SumTotals(receipts)
	if err := tx.SetBudgetSpending(ctx, budgetID, total); err != nil {
		return nil, fmt.Errorf("RecomputeInTx: write spending: %w", err)
	}
	b.CurrentSpending = total

	log := logger.FromContext(ctx)
	log.Debug().
		Int64("budget_id", budgetID).
		Int("receipts", len(receipts)).
		Str("current_spending", total.String()).
		Msg("Budget recomputed")
	return b, nil
}

// ReassignAllInTx re-runs matching for every receipt of the owner and then
// recomputes each of the owner's budgets once, in ascending id order.
func (s *Service) ReassignAllInTx(ctx context.Context, tx storage.Tx, ownerID int64) (ReassignResult, error) {
	var result ReassignResult

	budgets, err := tx.ListBudgets(ctx, ownerID)
	if err != nil {
		return result, fmt.Errorf("ReassignAllInTx: list budgets: %w", err)
	}
	receipts, err := tx.ListReceipts(ctx, ownerID, storage.ReceiptFilter{})
	if err != nil {
		return result, fmt.Errorf("ReassignAllInTx: list receipts: %w", err)
	}
	result.Receipts = len(receipts)

	touched := budgetSet{}
	for _, b := range budgets {
		touched.add(&b.ID)
	}

	for _, r := range receipts {
		date := r.EffectiveDate()
		var candidates []*domain.Budget
		for _, b := range budgets {
			if b.Contains(date) {
				candidates = append(candidates, b)
			}
		}
		var newID *int64
		if winner := SelectBudget(candidates); winner != nil {
			id := winner.ID
			newID = &id
		}
		if sameBudget(r.BudgetID, newID) {
			continue
		}
		if err := tx.SetReceiptBudget(ctx, ownerID, r.ID, newID); err != nil {
			return result, fmt.Errorf("ReassignAllInTx: set receipt %d budget: %w", r.ID, err)
		}
		result.Moved++
	}

	for _, id := range touched.sorted() {
		if _, err := s.RecomputeInTx(ctx, tx, ownerID, id); err != nil {
			return result, err
		}
		result.Recomputed++
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int64("owner_id", ownerID).
		Int("receipts", result.Receipts).
		Int("moved", result.Moved).
		Int("recomputed", result.Recomputed).
		Msg("Receipts reassigned")
	return result, nil
}

// Assign re-runs matching for one receipt.
func (s *Service) Assign(ctx context.Context, ownerID, receiptID int64) (*domain.Receipt, error) {
	var receipt *domain.Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.GetReceipt(ctx, ownerID, receiptID)
		if err != nil {
			return err
		}
		if err := s.AssignInTx(ctx, tx, ownerID, r); err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Recompute refreshes one budget's current spending.
func (s *Service) Recompute(ctx context.Context, ownerID, budgetID int64) (*domain.Budget, error) {
	var budget *domain.Budget
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetBudget(ctx, ownerID, budgetID); err != nil {
			return err
		}
		b, err := s.RecomputeInTx(ctx, tx, ownerID, budgetID)
		if err != nil {
			return err
		}
		budget = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// ReassignAll re-runs matching for all of the owner's receipts.
func (s *Service) ReassignAll(ctx context.Context, ownerID int64) (ReassignResult, error) {
	var result ReassignResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		result, err = s.ReassignAllInTx(ctx, tx, ownerID)
		return err
	})
	return result, err
}

type budgetSet map[int64]struct{}

func (s budgetSet) add(id *int64) {
	if id != nil {
		s[*id] = struct{}{}
	}
}

// sorted returns ids ascending; locks are always taken in this order.
func (s budgetSet) sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sameBudget(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
