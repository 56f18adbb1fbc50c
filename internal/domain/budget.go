package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Budget is a spending limit over an inclusive date window.
// CurrentSpending is derived and only written by the aggregator.
type Budget struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"-"`
	Name            string     `json:"name"`
	Category        Category   `json:"category"`
	LimitAmount     Money      `json:"limit_amount"`
	CurrentSpending Money      `json:"current_spending"`
	StartDate       civil.Date `json:"start_date"`
	EndDate         civil.Date `json:"end_date"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Contains reports whether d lies inside [StartDate, EndDate].
func (b *Budget) Contains(d civil.Date) bool {
	return !d.Before(b.StartDate) && !d.After(b.EndDate)
}

// Remaining may be negative once the limit is exceeded.
func (b *Budget) Remaining() Money {
	return b.LimitAmount.Sub(b.CurrentSpending)
}

// Normalize applies the write-path rules.
func (b *Budget) Normalize() {
	b.Name = strings.TrimSpace(b.Name)
	b.Category = NormalizeCategory(string(b.Category))
	b.LimitAmount = NewMoney(b.LimitAmount.Decimal())
}

// Validate checks the budget before it is written.
func (b *Budget) Validate() error {
	if b.OwnerID == 0 {
		return Invalid("owner", "is required")
	}
	if b.Name == "" {
		return Invalid("name", "is required")
	}
	if tooLong(b.Name, MaxBudgetNameLen) {
		return Invalid("name", "must be at most %d characters", MaxBudgetNameLen)
	}
	if !b.Category.IsValid() {
		return Invalid("category", "unknown category %q", b.Category)
	}
	if b.LimitAmount.IsNegative() {
		return Invalid("limit_amount", "must not be negative")
	}
	if !b.StartDate.IsValid() {
		return Invalid("start_date", "invalid date")
	}
	if !b.EndDate.IsValid() {
		return Invalid("end_date", "invalid date")
	}
	if b.EndDate.Before(b.StartDate) {
		return Invalid("end_date", "must not be before start_date")
	}
	return nil
}
