package inmemory

import (
	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// Copies keep callers from mutating stored values through shared pointers.

func cloneReceipt(r *domain.Receipt) *domain.Receipt {
	c := *r
	c.Merchant = cloneString(r.Merchant)
	c.TotalAmount = cloneMoney(r.TotalAmount)
	c.BudgetID = cloneInt64(r.BudgetID)
	c.TransactionDate = cloneDate(r.TransactionDate)
	if r.ParsedItems != nil {
		c.ParsedItems = make([]domain.LineItem, len(r.ParsedItems))
		for i, item := range r.ParsedItems {
			c.ParsedItems[i] = domain.LineItem{
				Description: cloneString(item.Description),
				TotalPrice:  cloneMoney(item.TotalPrice),
			}
			if item.Quantity != nil {
				q := *item.Quantity
				c.ParsedItems[i].Quantity = &q
			}
		}
	}
	return &c
}

func cloneExpense(e *domain.Expense) *domain.Expense {
	c := *e
	c.Date = cloneDate(e.Date)
	c.Vendor = cloneString(e.Vendor)
	c.PaymentMethod = cloneString(e.PaymentMethod)
	c.ReceiptID = cloneInt64(e.ReceiptID)
	return &c
}

func cloneIncome(i *domain.Income) *domain.Income {
	c := *i
	c.Date = cloneDate(i.Date)
	return &c
}

func cloneDate(d *civil.Date) *civil.Date {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMoney(m *domain.Money) *domain.Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
