package warehouse

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

const (
	receiptsTable  = "receipts"
	lineItemsTable = "receipt_line_items"
	budgetsTable   = "budgets"
)

type ReceiptRow struct {
	ReceiptID int64 `bigquery:"receipt_id"` // REQUIRED
	OwnerID   int64 `bigquery:"owner_id"`   // REQUIRED

	ImageURL     string `bigquery:"image_url"`     // NULLABLE
	MerchantName string `bigquery:"merchant_name"` // NULLABLE

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // DATE, NULLABLE
	EffectiveDate   civil.Date        `bigquery:"effective_date"`   // DATE, REQUIRED

	TotalAmount float64            `bigquery:"total_amount"`     // REQUIRED
	Category    string             `bigquery:"receipt_category"` // REQUIRED
	BudgetID    bigquery.NullInt64 `bigquery:"budget_id"`        // NULLABLE
	ItemCount   int64              `bigquery:"item_count"`       // REQUIRED

	UploadedTS time.Time `bigquery:"uploaded_ts"` // REQUIRED
	SyncedTS   time.Time `bigquery:"synced_ts"`   // REQUIRED
}

type ReceiptLineItemRow struct {
	LineItemID string `bigquery:"line_item_id"` // REQUIRED
	ReceiptID  int64  `bigquery:"receipt_id"`   // REQUIRED
	OwnerID    int64  `bigquery:"owner_id"`     // REQUIRED

	LineIndex int64 `bigquery:"line_index"`

	Description bigquery.NullString  `bigquery:"description"` // NULLABLE
	Quantity    bigquery.NullFloat64 `bigquery:"quantity"`    // NULLABLE
	TotalPrice  bigquery.NullFloat64 `bigquery:"total_price"` // NULLABLE

	CategoryName string    `bigquery:"category_name"` // receipt category
	SyncedTS     time.Time `bigquery:"synced_ts"`
}

type BudgetRow struct {
	BudgetID int64  `bigquery:"budget_id"` // REQUIRED
	OwnerID  int64  `bigquery:"owner_id"`  // REQUIRED
	Name     string `bigquery:"name"`
	Category string `bigquery:"category"`

	LimitAmount     float64 `bigquery:"limit_amount"`
	CurrentSpending float64 `bigquery:"current_spending"`

	StartDate civil.Date `bigquery:"start_date"`
	EndDate   civil.Date `bigquery:"end_date"`

	CreatedTS time.Time `bigquery:"created_ts"`
	SyncedTS  time.Time `bigquery:"synced_ts"`
}

// NewReceiptRow flattens a receipt into its warehouse row.
func NewReceiptRow(r *domain.Receipt, syncedAt time.Time) *ReceiptRow {
	row := &ReceiptRow{
		ReceiptID:     r.ID,
		OwnerID:       r.OwnerID,
		ImageURL:      r.ImageRef,
		MerchantName:  domain.DefaultMerchant,
		EffectiveDate: r.EffectiveDate(),
		TotalAmount:   r.Total().Float64(),
		Category:      string(r.Category),
		ItemCount:     int64(r.ItemCount()),
		UploadedTS:    r.UploadedAt.UTC(),
		SyncedTS:      syncedAt.UTC(),
	}
	if r.Merchant != nil {
		row.MerchantName = *r.Merchant
	}
	if r.TransactionDate != nil {
		row.TransactionDate = bigquery.NullDate{Date: *r.TransactionDate, Valid: true}
	}
	if r.BudgetID != nil {
		row.BudgetID = bigquery.NullInt64{Int64: *r.BudgetID, Valid: true}
	}
	return row
}

// NewLineItemRows returns one row per parsed item, in receipt order.
func NewLineItemRows(r *domain.Receipt, syncedAt time.Time) []*ReceiptLineItemRow {
	rows := make([]*ReceiptLineItemRow, 0, len(r.ParsedItems))
	for i, item := range r.ParsedItems {
		row := &ReceiptLineItemRow{
			LineItemID:   fmt.Sprintf("%d-%d", r.ID, i),
			ReceiptID:    r.ID,
			OwnerID:      r.OwnerID,
			LineIndex:    int64(i),
			CategoryName: string(r.Category),
			SyncedTS:     syncedAt.UTC(),
		}
		if item.Description != nil {
			row.Description = bigquery.NullString{StringVal: *item.Description, Valid: true}
		}
		if item.Quantity != nil {
			row.Quantity = bigquery.NullFloat64{Float64: *item.Quantity, Valid: true}
		}
		if item.TotalPrice != nil {
			row.TotalPrice = bigquery.NullFloat64{Float64: item.TotalPrice.Float64(), Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// NewBudgetRow flattens a budget into its warehouse row.
func NewBudgetRow(b *domain.Budget, syncedAt time.Time) *BudgetRow {
	return &BudgetRow{
		BudgetID:        b.ID,
		OwnerID:         b.OwnerID,
		Name:            b.Name,
		Category:        string(b.Category),
		LimitAmount:     b.LimitAmount.Float64(),
		CurrentSpending: b.CurrentSpending.Float64(),
		StartDate:       b.StartDate,
		EndDate:         b.EndDate,
		CreatedTS:       b.CreatedAt.UTC(),
		SyncedTS:        syncedAt.UTC(),
	}
}
