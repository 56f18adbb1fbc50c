package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Origin records how a transaction entered the system.
type Origin string

const (
	OriginManual  Origin = "manual"
	OriginReceipt Origin = "receipt"
)

// DefaultMerchant is used wherever the document carries no merchant name.
const DefaultMerchant = "Unknown Merchant"

// Transaction holds the fields shared by Income and Expense.
// Date is nil only for expenses extracted from a receipt without a date.
type Transaction struct {
	Amount    Money       `json:"amount"`
	Category  Category    `json:"category"`
	Date      *civil.Date `json:"date"`
	Origin    Origin      `json:"origin"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Normalize applies the write-path rules: taxonomy category, two decimals.
func (t *Transaction) Normalize() {
	t.Category = NormalizeCategory(string(t.Category))
	t.Amount = NewMoney(t.Amount.Decimal())
	if t.Origin == "" {
		t.Origin = OriginManual
	}
}

// Validate checks the invariants every transaction must hold at rest.
func (t *Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return Invalid("amount", "must not be negative")
	}
	if !t.Category.IsValid() {
		return Invalid("category", "unknown category %q", t.Category)
	}
	if t.Date != nil && !t.Date.IsValid() {
		return Invalid("date", "invalid date")
	}
	switch t.Origin {
	case OriginManual, OriginReceipt:
	default:
		return Invalid("origin", "unknown origin %q", t.Origin)
	}
	return nil
}

// Income is money received.
type Income struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"-"`
	Transaction
	Source string `json:"source"`
}

// Validate checks the income before it is written.
func (i *Income) Validate() error {
	if err := i.Transaction.Validate(); err != nil {
		return err
	}
	if i.Date == nil {
		return Invalid("date", "is required")
	}
	if tooLong(i.Source, MaxSourceLen) {
		return Invalid("source", "must be at most %d characters", MaxSourceLen)
	}
	return nil
}

// Expense is money spent. ReceiptID is set when it was extracted from a
// receipt line item; such expenses are informational and never summed into
// budget aggregates.
type Expense struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"-"`
	Transaction
	Vendor        *string `json:"vendor"`
	PaymentMethod *string `json:"payment_method"`
	ReceiptID     *int64  `json:"receipt_id,omitempty"`
}

// Validate checks the expense before it is written.
func (e *Expense) Validate() error {
	if err := e.Transaction.Validate(); err != nil {
		return err
	}
	if e.Origin == OriginManual && e.Date == nil {
		return Invalid("date", "is required")
	}
	if e.Vendor != nil && tooLong(*e.Vendor, MaxVendorLen) {
		return Invalid("vendor", "must be at most %d characters", MaxVendorLen)
	}
	if e.PaymentMethod != nil && tooLong(*e.PaymentMethod, MaxPaymentMethodLen) {
		return Invalid("payment_method", "must be at most %d characters", MaxPaymentMethodLen)
	}
	return nil
}
