package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// LineItem is one detected purchase entry of a receipt. Every field is
// optional because OCR may miss any of them; items are kept verbatim.
type LineItem struct {
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	TotalPrice  *Money   `json:"total_price"`
}

// Receipt is a scanned or manually entered purchase.
type Receipt struct {
	ID              int64       `json:"id"`
	OwnerID         int64       `json:"-"`
	ImageRef        string      `json:"image_url,omitempty"`
	Merchant        *string     `json:"merchant"`
	TotalAmount     *Money      `json:"total_amount"`
	UploadedAt      time.Time   `json:"uploaded_at"`
	TransactionDate *civil.Date `json:"transaction_date"`
	ParsedItems     []LineItem  `json:"parsed_items"`
	Category        Category    `json:"receipt_category"`
	BudgetID        *int64      `json:"budget_id"`
}

// EffectiveDate is the transaction date when known, otherwise the UTC
// calendar day of the upload.
func (r *Receipt) EffectiveDate() civil.Date {
	if r.TransactionDate != nil {
		return *r.TransactionDate
	}
	return civil.DateOf(r.UploadedAt.UTC())
}

// Total treats a missing total as zero.
func (r *Receipt) Total() Money {
	if r.TotalAmount == nil {
		return Zero
	}
	return *r.TotalAmount
}

// ItemCount counts a receipt without line-item detail as one purchase.
func (r *Receipt) ItemCount() int {
	if len(r.ParsedItems) == 0 {
		return 1
	}
	return len(r.ParsedItems)
}

// Assigned reports whether the receipt belongs to a budget.
func (r *Receipt) Assigned() bool {
	return r.BudgetID != nil
}

// Normalize applies the write-path rules shared by the OCR and manual paths.
func (r *Receipt) Normalize() {
	r.Category = NormalizeCategory(string(r.Category))
	if r.TotalAmount != nil {
		m := NewMoney(r.TotalAmount.Decimal())
		r.TotalAmount = &m
	}
	if r.ParsedItems == nil {
		r.ParsedItems = []LineItem{}
	}
}

// Validate checks the receipt before it is written.
func (r *Receipt) Validate() error {
	if r.OwnerID == 0 {
		return Invalid("owner", "is required")
	}
	if r.TotalAmount != nil && r.TotalAmount.IsNegative() {
		return Invalid("total_amount", "must not be negative")
	}
	if !r.Category.IsValid() {
		return Invalid("receipt_category", "unknown category %q", r.Category)
	}
	if r.TransactionDate != nil && !r.TransactionDate.IsValid() {
		return Invalid("transaction_date", "invalid date")
	}
	if r.UploadedAt.IsZero() {
		return Invalid("uploaded_at", "is required")
	}
	if r.Merchant != nil && tooLong(*r.Merchant, MaxMerchantLen) {
		return Invalid("merchant", "must be at most %d characters", MaxMerchantLen)
	}
	return nil
}
