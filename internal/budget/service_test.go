package budget

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
	"github.com/dvloznov/receipt-tracker/internal/storage/inmemory"
)

const owner int64 = 1

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func february(name string) *domain.Budget {
	return &domain.Budget{
		OwnerID:     owner,
		Name:        name,
		Category:    domain.CategoryMeal,
		LimitAmount: domain.MustMoney("100.00"),
		StartDate:   date(2024, 2, 1),
		EndDate:     date(2024, 2, 28),
	}
}

// addReceipt stores a receipt and runs assignment the way ingestion does.
func addReceipt(t *testing.T, store storage.Store, svc *Service, ownerID int64, total string, d *civil.Date) *domain.Receipt {
	t.Helper()
	m := domain.MustMoney(total)
	r := &domain.Receipt{
		OwnerID:         ownerID,
		TotalAmount:     &m,
		UploadedAt:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		TransactionDate: d,
		Category:        domain.CategoryMeal,
	}
	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateReceipt(ctx, r); err != nil {
			return err
		}
		return svc.AssignInTx(ctx, tx, ownerID, r)
	})
	if err != nil {
		t.Fatalf("addReceipt: %v", err)
	}
	return r
}

func ptr(d civil.Date) *civil.Date { return &d }

func TestSelectBudget(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*domain.Budget
		wantID     int64
	}{
		{"no candidates", nil, 0},
		{"single", []*domain.Budget{{ID: 7}}, 7},
		{"lowest id wins regardless of order", []*domain.Budget{{ID: 9}, {ID: 3}, {ID: 5}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBudget(tt.candidates)
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("expected nil, got %d", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("SelectBudget() = %v, want id %d", got, tt.wantID)
			}
		})
	}
}

func TestSumTotals_NilTotalIsZero(t *testing.T) {
	a := domain.MustMoney("20.00")
	got := SumTotals([]*domain.Receipt{{TotalAmount: &a}, {}})
	if got.String() != "20.00" {
		t.Errorf("SumTotals = %s, want 20.00", got)
	}
}

func TestAssign_AggregatesMatchingReceipts(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, err := svc.CreateBudget(ctx, february("Feb"))
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	r1 := addReceipt(t, store, svc, owner, "20.00", ptr(date(2024, 2, 10)))
	r2 := addReceipt(t, store, svc, owner, "30.00", ptr(date(2024, 2, 15)))

	for _, r := range []*domain.Receipt{r1, r2} {
		if r.BudgetID == nil || *r.BudgetID != b.ID {
			t.Errorf("receipt %d not assigned to budget %d", r.ID, b.ID)
		}
	}

	got, err := svc.GetBudget(ctx, owner, b.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.CurrentSpending.String() != "50.00" {
		t.Errorf("current spending = %s, want 50.00", got.CurrentSpending)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, _ := svc.CreateBudget(ctx, february("Feb"))
	addReceipt(t, store, svc, owner, "20.00", ptr(date(2024, 2, 10)))
	addReceipt(t, store, svc, owner, "30.00", ptr(date(2024, 2, 15)))

	first, err := svc.Recompute(ctx, owner, b.ID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	second, err := svc.Recompute(ctx, owner, b.ID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !first.CurrentSpending.Equal(second.CurrentSpending) || first.CurrentSpending.String() != "50.00" {
		t.Errorf("recompute not idempotent: %s then %s", first.CurrentSpending, second.CurrentSpending)
	}
}

func TestAssign_ReceiptOutsideEveryWindowStaysUnassigned(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, _ := svc.CreateBudget(ctx, february("Feb"))
	r := addReceipt(t, store, svc, owner, "40.00", ptr(date(2024, 3, 2)))

	if r.BudgetID != nil {
		t.Errorf("expected unassigned receipt, got budget %d", *r.BudgetID)
	}
	got, _ := svc.GetBudget(ctx, owner, b.ID)
	if !got.CurrentSpending.Equal(domain.Zero) {
		t.Errorf("budget spending changed by unassigned receipt: %s", got.CurrentSpending)
	}
}

func TestAssign_FallsBackToUploadDate(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	june := &domain.Budget{
		OwnerID: owner, Name: "June", Category: domain.CategoryOther,
		LimitAmount: domain.MustMoney("10"), StartDate: date(2024, 6, 1), EndDate: date(2024, 6, 30),
	}
	b, _ := svc.CreateBudget(ctx, june)

	r := addReceipt(t, store, svc, owner, "5.00", nil)
	if r.BudgetID == nil || *r.BudgetID != b.ID {
		t.Errorf("expected receipt without transaction date to match by upload date")
	}
}

func TestAssign_OverlappingBudgetsLowestIDWins(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	first, _ := svc.CreateBudget(ctx, february("first"))
	second, _ := svc.CreateBudget(ctx, february("second"))

	r := addReceipt(t, store, svc, owner, "12.00", ptr(date(2024, 2, 20)))
	if r.BudgetID == nil || *r.BudgetID != first.ID {
		t.Fatalf("expected lowest id budget %d to win", first.ID)
	}

	got, _ := svc.GetBudget(ctx, owner, second.ID)
	if !got.CurrentSpending.Equal(domain.Zero) {
		t.Errorf("losing budget should not be charged, got %s", got.CurrentSpending)
	}
}

func TestAssign_OtherOwnersBudgetsIgnored(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	_, _ = svc.CreateBudget(ctx, february("mine"))
	r := addReceipt(t, store, svc, 2, "12.00", ptr(date(2024, 2, 20)))
	if r.BudgetID != nil {
		t.Errorf("receipt of owner 2 matched a budget of owner 1")
	}
}

func TestUpdateBudget_MovesReceiptsBetweenBudgets(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	first, _ := svc.CreateBudget(ctx, february("first"))
	second, _ := svc.CreateBudget(ctx, february("second"))
	r := addReceipt(t, store, svc, owner, "25.00", ptr(date(2024, 2, 20)))

	// Shrink the winning window so the receipt falls through to the next one.
	first.EndDate = date(2024, 2, 10)
	if _, err := svc.UpdateBudget(ctx, first); err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}

	moved, err := svc.Assign(ctx, owner, r.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if moved.BudgetID == nil || *moved.BudgetID != second.ID {
		t.Fatalf("expected receipt in budget %d, got %v", second.ID, moved.BudgetID)
	}

	gotFirst, _ := svc.GetBudget(ctx, owner, first.ID)
	gotSecond, _ := svc.GetBudget(ctx, owner, second.ID)
	if !gotFirst.CurrentSpending.Equal(domain.Zero) {
		t.Errorf("first budget spending = %s, want 0.00", gotFirst.CurrentSpending)
	}
	if gotSecond.CurrentSpending.String() != "25.00" {
		t.Errorf("second budget spending = %s, want 25.00", gotSecond.CurrentSpending)
	}
}

func TestCreateBudget_PicksUpExistingReceipts(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	r := addReceipt(t, store, svc, owner, "9.99", ptr(date(2024, 2, 3)))
	if r.BudgetID != nil {
		t.Fatalf("no budget exists yet")
	}

	b, err := svc.CreateBudget(ctx, february("late"))
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	if b.CurrentSpending.String() != "9.99" {
		t.Errorf("new budget spending = %s, want 9.99", b.CurrentSpending)
	}
}

func TestDeleteBudget_ReceiptsFallThrough(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	first, _ := svc.CreateBudget(ctx, february("first"))
	second, _ := svc.CreateBudget(ctx, february("second"))
	addReceipt(t, store, svc, owner, "10.00", ptr(date(2024, 2, 5)))

	if err := svc.DeleteBudget(ctx, owner, first.ID); err != nil {
		t.Fatalf("DeleteBudget: %v", err)
	}
	got, _ := svc.GetBudget(ctx, owner, second.ID)
	if got.CurrentSpending.String() != "10.00" {
		t.Errorf("second budget spending = %s, want 10.00", got.CurrentSpending)
	}
}

func TestDeleteReceipt_RecomputesBudget(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, _ := svc.CreateBudget(ctx, february("Feb"))
	r1 := addReceipt(t, store, svc, owner, "20.00", ptr(date(2024, 2, 10)))
	addReceipt(t, store, svc, owner, "30.00", ptr(date(2024, 2, 15)))

	if err := svc.DeleteReceipt(ctx, owner, r1.ID); err != nil {
		t.Fatalf("DeleteReceipt: %v", err)
	}
	got, _ := svc.GetBudget(ctx, owner, b.ID)
	if got.CurrentSpending.String() != "30.00" {
		t.Errorf("current spending = %s, want 30.00", got.CurrentSpending)
	}
}

func TestReassignAll_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, _ := svc.CreateBudget(ctx, february("Feb"))
	r := addReceipt(t, store, svc, owner, "15.00", ptr(date(2024, 2, 10)))

	// Detach the receipt behind the service's back.
	_ = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetReceiptBudget(ctx, owner, r.ID, nil)
	})

	res, err := svc.ReassignAll(ctx, owner)
	if err != nil {
		t.Fatalf("ReassignAll: %v", err)
	}
	if res.Moved != 1 || res.Recomputed != 1 || res.Receipts != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	got, _ := svc.GetBudget(ctx, owner, b.ID)
	if got.CurrentSpending.String() != "15.00" {
		t.Errorf("current spending = %s, want 15.00", got.CurrentSpending)
	}
}

func TestRecompute_CrossOwnerReceiptIsInconsistent(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := NewService(store)

	b, _ := svc.CreateBudget(ctx, february("Feb"))
	foreign := addReceipt(t, store, svc, 2, "5.00", ptr(date(2024, 2, 10)))
	_ = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetReceiptBudget(ctx, 2, foreign.ID, &b.ID)
	})

	_, err := svc.Recompute(ctx, owner, b.ID)
	if !domain.IsConsistency(err) {
		t.Errorf("expected ConsistencyError, got %v", err)
	}
}

func TestRecompute_MissingBudget(t *testing.T) {
	ctx := context.Background()
	svc := NewService(inmemory.NewStore())

	if _, err := svc.Recompute(ctx, owner, 404); !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	// Inside a transaction a vanished budget is a consistency failure.
	err := inmemory.NewStore().InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := svc.RecomputeInTx(ctx, tx, owner, 404)
		return err
	})
	if !domain.IsConsistency(err) {
		t.Errorf("expected ConsistencyError, got %v", err)
	}
}

func TestCreateBudget_Validation(t *testing.T) {
	svc := NewService(inmemory.NewStore())
	b := february("")
	if _, err := svc.CreateBudget(context.Background(), b); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestCreateBudget_NormalizesCategory(t *testing.T) {
	svc := NewService(inmemory.NewStore())
	b := february("Trip")
	b.Category = "hotel.luxury"
	got, err := svc.CreateBudget(context.Background(), b)
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	if got.Category != domain.CategoryHotel {
		t.Errorf("category = %q, want Hotel", got.Category)
	}
}
