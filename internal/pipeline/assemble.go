package pipeline

import (
	"time"

	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// AssembleReceipt builds an unsaved, unassigned receipt from an analysis
// result. Missing merchant and total get their defaults, as does a negative
// total; items are kept verbatim.
func AssembleReceipt(doc *docai.ParsedDocument, imageRef string, ownerID int64, uploadedAt time.Time) *domain.Receipt {
	merchant := domain.DefaultMerchant
	if doc.Merchant != nil {
		merchant = domain.Truncate(*doc.Merchant, domain.MaxMerchantLen)
	}

	total := domain.Zero
	if doc.Total != nil && !doc.Total.IsNegative() {
		total = *doc.Total
	}

	var category domain.Category = domain.CategoryOther
	if doc.ReceiptType != nil {
		category = domain.NormalizeCategory(*doc.ReceiptType)
	}

	items := doc.Items
	if items == nil {
		items = []domain.LineItem{}
	}

	r := &domain.Receipt{
		OwnerID:     ownerID,
		ImageRef:    imageRef,
		Merchant:    &merchant,
		TotalAmount: &total,
		UploadedAt:  uploadedAt,
		ParsedItems: items,
		Category:    category,
	}
	if doc.TransactionDate != nil {
		d := *doc.TransactionDate
		r.TransactionDate = &d
	}
	return r
}

// ExtractExpenses derives one expense per line item that carries a usable
// price. The expenses are informational: origin is receipt and they are not
// counted toward budgets. ReceiptID is set by the caller once the receipt
// has an id. The vendor column is narrower than the merchant one, so long
// merchant names are cut to fit.
func ExtractExpenses(doc *docai.ParsedDocument, ownerID int64) []*domain.Expense {
	vendor := domain.DefaultMerchant
	if doc.Merchant != nil {
		vendor = domain.Truncate(*doc.Merchant, domain.MaxVendorLen)
	}

	var category domain.Category = domain.CategoryOther
	if doc.ReceiptType != nil {
		category = domain.NormalizeCategory(*doc.ReceiptType)
	}

	expenses := make([]*domain.Expense, 0, len(doc.Items))
	for _, item := range doc.Items {
		if item.TotalPrice == nil || item.TotalPrice.IsNegative() {
			continue
		}

		v := vendor
		e := &domain.Expense{
			OwnerID: ownerID,
			Transaction: domain.Transaction{
				Amount:   *item.TotalPrice,
				Category: category,
				Origin:   domain.OriginReceipt,
			},
			Vendor: &v,
		}
		if doc.TransactionDate != nil {
			d := *doc.TransactionDate
			e.Date = &d
		}
		expenses = append(expenses, e)
	}
	return expenses
}
