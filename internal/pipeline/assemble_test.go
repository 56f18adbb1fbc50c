package pipeline

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/domain"
)

func strPtr(s string) *string { return &s }

func moneyPtr(s string) *domain.Money {
	m := domain.MustMoney(s)
	return &m
}

func TestAssembleReceipt_Defaults(t *testing.T) {
	uploaded := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	r := AssembleReceipt(&docai.ParsedDocument{}, "gs://b/receipts/1/x.jpg", 1, uploaded)

	if r.Merchant == nil || *r.Merchant != "Unknown Merchant" {
		t.Errorf("Merchant = %v, want Unknown Merchant", r.Merchant)
	}
	if r.TotalAmount == nil || r.TotalAmount.String() != "0.00" {
		t.Errorf("TotalAmount = %v, want 0.00", r.TotalAmount)
	}
	if r.Category != domain.CategoryOther {
		t.Errorf("Category = %q, want Other", r.Category)
	}
	if r.TransactionDate != nil {
		t.Errorf("TransactionDate = %v, want nil", r.TransactionDate)
	}
	if r.BudgetID != nil {
		t.Errorf("BudgetID = %v, want nil", r.BudgetID)
	}
	if r.ParsedItems == nil || len(r.ParsedItems) != 0 {
		t.Errorf("ParsedItems = %v, want empty", r.ParsedItems)
	}
	if !r.UploadedAt.Equal(uploaded) || r.OwnerID != 1 || r.ImageRef != "gs://b/receipts/1/x.jpg" {
		t.Errorf("unexpected receipt: %+v", r)
	}
}

func TestAssembleReceipt_FromDocument(t *testing.T) {
	d := civil.Date{Year: 2024, Month: 2, Day: 10}
	items := []domain.LineItem{
		{Description: strPtr("Coffee"), TotalPrice: moneyPtr("3.50")},
		{Description: strPtr("Muffin")},
	}
	doc := &docai.ParsedDocument{
		Merchant:        strPtr("Cafe"),
		Total:           moneyPtr("3.50"),
		TransactionDate: &d,
		ReceiptType:     strPtr("meal.sub-category"),
		Items:           items,
	}

	r := AssembleReceipt(doc, "", 1, time.Now())
	if *r.Merchant != "Cafe" || r.TotalAmount.String() != "3.50" || *r.TransactionDate != d {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if r.Category != domain.CategoryMeal {
		t.Errorf("Category = %q, want Meal", r.Category)
	}
	if diff := cmp.Diff(items, r.ParsedItems, cmp.Comparer(func(a, b domain.Money) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("items not kept verbatim (-want +got):\n%s", diff)
	}
}

func TestAssembleReceipt_UnknownLabel(t *testing.T) {
	r := AssembleReceipt(&docai.ParsedDocument{ReceiptType: strPtr("Groceries")}, "", 1, time.Now())
	if r.Category != domain.CategoryOther {
		t.Errorf("Category = %q, want Other", r.Category)
	}
}

func TestExtractExpenses(t *testing.T) {
	d := civil.Date{Year: 2024, Month: 2, Day: 10}
	tests := []struct {
		name       string
		doc        *docai.ParsedDocument
		wantAmount []string
		wantVendor string
		wantDate   *civil.Date
		wantCat    domain.Category
	}{
		{
			name: "one expense per priced item",
			doc: &docai.ParsedDocument{
				Merchant:        strPtr("Fuel Stop"),
				ReceiptType:     strPtr("fuel & energy"),
				TransactionDate: &d,
				Items: []domain.LineItem{
					{Description: strPtr("Diesel"), TotalPrice: moneyPtr("40.00")},
					{Description: strPtr("Snack"), TotalPrice: moneyPtr("2.10")},
				},
			},
			wantAmount: []string{"40.00", "2.10"},
			wantVendor: "Fuel Stop",
			wantDate:   &d,
			wantCat:    domain.CategoryFuelEnergy,
		},
		{
			name: "items without price or with negative price are skipped",
			doc: &docai.ParsedDocument{
				Items: []domain.LineItem{
					{Description: strPtr("Bag")},
					{Description: strPtr("Discount"), TotalPrice: moneyPtr("-1.00")},
					{Description: strPtr("Bread"), TotalPrice: moneyPtr("1.20")},
				},
			},
			wantAmount: []string{"1.20"},
			wantVendor: "Unknown Merchant",
			wantCat:    domain.CategoryOther,
		},
		{
			name:       "no items",
			doc:        &docai.ParsedDocument{Merchant: strPtr("Shop")},
			wantAmount: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractExpenses(tt.doc, 5)

			amounts := []string{}
			for _, e := range got {
				amounts = append(amounts, e.Amount.String())
				if e.OwnerID != 5 || e.Origin != domain.OriginReceipt || e.PaymentMethod != nil {
					t.Errorf("unexpected expense: %+v", e)
				}
				if e.Vendor == nil || *e.Vendor != tt.wantVendor {
					t.Errorf("Vendor = %v, want %q", e.Vendor, tt.wantVendor)
				}
				if e.Category != tt.wantCat {
					t.Errorf("Category = %q, want %q", e.Category, tt.wantCat)
				}
				if (e.Date == nil) != (tt.wantDate == nil) || (e.Date != nil && *e.Date != *tt.wantDate) {
					t.Errorf("Date = %v, want %v", e.Date, tt.wantDate)
				}
			}
			if diff := cmp.Diff(tt.wantAmount, amounts); diff != "" {
				t.Errorf("amounts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
