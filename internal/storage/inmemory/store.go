package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Transactions are serialized behind one mutex and work on a private copy of
// the data that replaces the committed state only when fn succeeds.
// Data is lost on service restart - for persistence, use the postgres store.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type state struct {
	nextID   int64
	receipts map[int64]domain.Receipt
	budgets  map[int64]domain.Budget
	expenses map[int64]domain.Expense
	incomes  map[int64]domain.Income
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: &state{
			receipts: make(map[int64]domain.Receipt),
			budgets:  make(map[int64]domain.Budget),
			expenses: make(map[int64]domain.Expense),
			incomes:  make(map[int64]domain.Income),
		},
		now: time.Now,
	}
}

// InTx implements storage.Store. Calling InTx from inside fn deadlocks.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{state: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
}

func (st *state) clone() *state {
	c := &state{
		nextID:   st.nextID,
		receipts: make(map[int64]domain.Receipt, len(st.receipts)),
		budgets:  make(map[int64]domain.Budget, len(st.budgets)),
		expenses: make(map[int64]domain.Expense, len(st.expenses)),
		incomes:  make(map[int64]domain.Income, len(st.incomes)),
	}
	for id, r := range st.receipts {
		c.receipts[id] = *cloneReceipt(&r)
	}
	for id, b := range st.budgets {
		c.budgets[id] = b
	}
	for id, e := range st.expenses {
		c.expenses[id] = *cloneExpense(&e)
	}
	for id, i := range st.incomes {
		c.incomes[id] = *cloneIncome(&i)
	}
	return c
}

type tx struct {
	state *state
	now   func() time.Time
}

func (t *tx) nextID() int64 {
	t.state.nextID++
	return t.state.nextID
}

// --- receipts ---

func (t *tx) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	r.ID = t.nextID()
	t.state.receipts[r.ID] = *cloneReceipt(r)
	return nil
}

func (t *tx) GetReceipt(ctx context.Context, ownerID, id int64) (*domain.Receipt, error) {
	r, ok := t.state.receipts[id]
	if !ok || r.OwnerID != ownerID {
		return nil, domain.NotFound("receipt", id)
	}
	return cloneReceipt(&r), nil
}

func (t *tx) ListReceipts(ctx context.Context, ownerID int64, filter storage.ReceiptFilter) ([]*domain.Receipt, error) {
	result := []*domain.Receipt{}
	for _, r := range t.state.receipts {
		if r.OwnerID != ownerID {
			continue
		}
		if filter.BudgetID != nil && (r.BudgetID == nil || *r.BudgetID != *filter.BudgetID) {
			continue
		}
		if filter.Unassigned && r.BudgetID != nil {
			continue
		}
		result = append(result, cloneReceipt(&r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) ReceiptsByBudget(ctx context.Context, budgetID int64) ([]*domain.Receipt, error) {
	result := []*domain.Receipt{}
	for _, r := range t.state.receipts {
		if r.BudgetID != nil && *r.BudgetID == budgetID {
			result = append(result, cloneReceipt(&r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) SetReceiptBudget(ctx context.Context, ownerID, receiptID int64, budgetID *int64) error {
	r, ok := t.state.receipts[receiptID]
	if !ok || r.OwnerID != ownerID {
		return domain.NotFound("receipt", receiptID)
	}
	if budgetID != nil {
		if _, ok := t.state.budgets[*budgetID]; !ok {
			return fmt.Errorf("set receipt %d budget: budget %d does not exist", receiptID, *budgetID)
		}
	}
	r.BudgetID = cloneInt64(budgetID)
	t.state.receipts[receiptID] = r
	return nil
}

func (t *tx) DeleteReceipt(ctx context.Context, ownerID, id int64) error {
	r, ok := t.state.receipts[id]
	if !ok || r.OwnerID != ownerID {
		return domain.NotFound("receipt", id)
	}
	delete(t.state.receipts, id)
	for eid, e := range t.state.expenses {
		if e.ReceiptID != nil && *e.ReceiptID == id {
			delete(t.state.expenses, eid)
		}
	}
	return nil
}

func (t *tx) ListOwners(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, r := range t.state.receipts {
		seen[r.OwnerID] = struct{}{}
	}
	for _, b := range t.state.budgets {
		seen[b.OwnerID] = struct{}{}
	}
	owners := make([]int64, 0, len(seen))
	for id := range seen {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

// --- budgets ---

func (t *tx) CreateBudget(ctx context.Context, b *domain.Budget) error {
	b.ID = t.nextID()
	b.CurrentSpending = domain.Zero
	if b.CreatedAt.IsZero() {
		b.CreatedAt = t.now().UTC()
	}
	t.state.budgets[b.ID] = *b
	return nil
}

func (t *tx) GetBudget(ctx context.Context, ownerID, id int64) (*domain.Budget, error) {
	b, ok := t.state.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return nil, domain.NotFound("budget", id)
	}
	return &b, nil
}

// LockBudget is a plain read here; InTx already holds the store-wide lock.
func (t *tx) LockBudget(ctx context.Context, id int64) (*domain.Budget, error) {
	b, ok := t.state.budgets[id]
	if !ok {
		return nil, domain.NotFound("budget", id)
	}
	return &b, nil
}

func (t *tx) ListBudgets(ctx context.Context, ownerID int64) ([]*domain.Budget, error) {
	result := []*domain.Budget{}
	for _, b := range t.state.budgets {
		if b.OwnerID == ownerID {
			b := b
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) FindBudgetsContaining(ctx context.Context, ownerID int64, d civil.Date) ([]*domain.Budget, error) {
	all, _ := t.ListBudgets(ctx, ownerID)
	result := []*domain.Budget{}
	for _, b := range all {
		if b.Contains(d) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (t *tx) UpdateBudget(ctx context.Context, b *domain.Budget) error {
	existing, ok := t.state.budgets[b.ID]
	if !ok || existing.OwnerID != b.OwnerID {
		return domain.NotFound("budget", b.ID)
	}
	existing.Name = b.Name
	existing.Category = b.Category
	existing.LimitAmount = b.LimitAmount
	existing.StartDate = b.StartDate
	existing.EndDate = b.EndDate
	t.state.budgets[b.ID] = existing
	*b = existing
	return nil
}

func (t *tx) SetBudgetSpending(ctx context.Context, id int64, spending domain.Money) error {
	b, ok := t.state.budgets[id]
	if !ok {
		return domain.NotFound("budget", id)
	}
	b.CurrentSpending = spending
	t.state.budgets[id] = b
	return nil
}

func (t *tx) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	b, ok := t.state.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return domain.NotFound("budget", id)
	}
	delete(t.state.budgets, id)
	for rid, r := range t.state.receipts {
		if r.BudgetID != nil && *r.BudgetID == id {
			r.BudgetID = nil
			t.state.receipts[rid] = r
		}
	}
	return nil
}

// --- expenses ---

func (t *tx) CreateExpense(ctx context.Context, e *domain.Expense) error {
	if e.ReceiptID != nil {
		if _, ok := t.state.receipts[*e.ReceiptID]; !ok {
			return fmt.Errorf("create expense: receipt %d does not exist", *e.ReceiptID)
		}
	}
	e.ID = t.nextID()
	stampCreated(&e.Transaction, t.now())
	t.state.expenses[e.ID] = *cloneExpense(e)
	return nil
}

func (t *tx) GetExpense(ctx context.Context, ownerID, id int64) (*domain.Expense, error) {
	e, ok := t.state.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return nil, domain.NotFound("expense", id)
	}
	return cloneExpense(&e), nil
}

func (t *tx) ListExpenses(ctx context.Context, ownerID int64, filter storage.ExpenseFilter) ([]*domain.Expense, error) {
	result := []*domain.Expense{}
	for _, e := range t.state.expenses {
		if e.OwnerID != ownerID {
			continue
		}
		if filter.Origin != "" && e.Origin != filter.Origin {
			continue
		}
		if filter.ReceiptID != nil && (e.ReceiptID == nil || *e.ReceiptID != *filter.ReceiptID) {
			continue
		}
		result = append(result, cloneExpense(&e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tx) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	existing, ok := t.state.expenses[e.ID]
	if !ok || existing.OwnerID != e.OwnerID {
		return domain.NotFound("expense", e.ID)
	}
	e.CreatedAt = existing.CreatedAt
	e.Origin = existing.Origin
	e.ReceiptID = cloneInt64(existing.ReceiptID)
	e.UpdatedAt = t.now().UTC()
	t.state.expenses[e.ID] = *cloneExpense(e)
	return nil
}

func (t *tx) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	e, ok := t.state.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return domain.NotFound("expense", id)
	}
	delete(t.state.expenses, id)
	return nil
}

// --- incomes ---

func (t *tx) CreateIncome(ctx context.Context, i *domain.Income) error {
	i.ID = t.nextID()
	stampCreated(&i.Transaction, t.now())
	t.state.incomes[i.ID] = *cloneIncome(i)
	return nil
}

func (t *tx) GetIncome(ctx context.Context, ownerID, id int64) (*domain.Income, error) {
	i, ok := t.state.incomes[id]
	if !ok || i.OwnerID != ownerID {
		return nil, domain.NotFound("income", id)
	}
	return cloneIncome(&i), nil
}

func (t *tx) ListIncomes(ctx context.Context, ownerID int64) ([]*domain.Income, error) {
	result := []*domain.Income{}
	for _, i := range t.state.incomes {
		if i.OwnerID == ownerID {
			result = append(result, cloneIncome(&i))
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}

func (t *tx) UpdateIncome(ctx context.Context, i *domain.Income) error {
	existing, ok := t.state.incomes[i.ID]
	if !ok || existing.OwnerID != i.OwnerID {
		return domain.NotFound("income", i.ID)
	}
	i.CreatedAt = existing.CreatedAt
	i.Origin = existing.Origin
	i.UpdatedAt = t.now().UTC()
	t.state.incomes[i.ID] = *cloneIncome(i)
	return nil
}

func (t *tx) DeleteIncome(ctx context.Context, ownerID, id int64) error {
	i, ok := t.state.incomes[id]
	if !ok || i.OwnerID != ownerID {
		return domain.NotFound("income", id)
	}
	delete(t.state.incomes, id)
	return nil
}

func stampCreated(tr *domain.Transaction, now time.Time) {
	now = now.UTC()
	tr.CreatedAt = now
	tr.UpdatedAt = now
}

// Ensure Store implements the storage interfaces.
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
