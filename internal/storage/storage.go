// Package storage defines the persistence contract shared by the Postgres and
// in-memory stores. Every read and write is scoped to an owner except the
// row-lock and aggregate writes, which the budget service guards itself.
package storage

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// Store opens transactions. All writes happen inside InTx; a non-nil error
// from fn rolls every change back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of repositories bound to one transaction.
type Tx interface {
	ReceiptRepository
	BudgetRepository
	ExpenseRepository
	IncomeRepository
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	BudgetID   *int64
	Unassigned bool
}

// ReceiptRepository persists receipts. Lists are ordered by id.
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, r *domain.Receipt) error
	GetReceipt(ctx context.Context, ownerID, id int64) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, ownerID int64, filter ReceiptFilter) ([]*domain.Receipt, error)
	// ReceiptsByBudget returns every receipt pointing at the budget regardless
	// of owner so the aggregator can detect cross-owner associations.
	ReceiptsByBudget(ctx context.Context, budgetID int64) ([]*domain.Receipt, error)
	SetReceiptBudget(ctx context.Context, ownerID, receiptID int64, budgetID *int64) error
	DeleteReceipt(ctx context.Context, ownerID, id int64) error
	// ListOwners returns every owner holding a receipt or a budget.
	ListOwners(ctx context.Context) ([]int64, error)
}

// BudgetRepository persists budgets. Lists are ordered by id ascending.
type BudgetRepository interface {
	CreateBudget(ctx context.Context, b *domain.Budget) error
	GetBudget(ctx context.Context, ownerID, id int64) (*domain.Budget, error)
	// LockBudget reads the budget row and holds it until the transaction ends.
	LockBudget(ctx context.Context, id int64) (*domain.Budget, error)
	ListBudgets(ctx context.Context, ownerID int64) ([]*domain.Budget, error)
	FindBudgetsContaining(ctx context.Context, ownerID int64, d civil.Date) ([]*domain.Budget, error)
	// UpdateBudget writes the caller-editable fields; CurrentSpending is ignored.
	UpdateBudget(ctx context.Context, b *domain.Budget) error
	SetBudgetSpending(ctx context.Context, id int64, spending domain.Money) error
	DeleteBudget(ctx context.Context, ownerID, id int64) error
}

// ExpenseFilter narrows ListExpenses.
type ExpenseFilter struct {
	Origin    domain.Origin
	ReceiptID *int64
}

type ExpenseRepository interface {
	CreateExpense(ctx context.Context, e *domain.Expense) error
	GetExpense(ctx context.Context, ownerID, id int64) (*domain.Expense, error)
	ListExpenses(ctx context.Context, ownerID int64, filter ExpenseFilter) ([]*domain.Expense, error)
	UpdateExpense(ctx context.Context, e *domain.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id int64) error
}

type IncomeRepository interface {
	CreateIncome(ctx context.Context, i *domain.Income) error
	GetIncome(ctx context.Context, ownerID, id int64) (*domain.Income, error)
	ListIncomes(ctx context.Context, ownerID int64) ([]*domain.Income, error)
	UpdateIncome(ctx context.Context, i *domain.Income) error
	DeleteIncome(ctx context.Context, ownerID, id int64) error
}
