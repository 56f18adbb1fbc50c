package export

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/phpdave11/gofpdf"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// Report summarizes the receipts associated with one budget.
type Report struct {
	BudgetID        int64           `json:"budget_id"`
	BudgetName      string          `json:"budget_name"`
	Category        domain.Category `json:"category"`
	LimitAmount     domain.Money    `json:"limit_amount"`
	CurrentSpending domain.Money    `json:"current_spending"`
	StartDate       civil.Date      `json:"start_date"`
	EndDate         civil.Date      `json:"end_date"`

	TotalSpent       domain.Money                     `json:"total_spent"`
	CategorySpending map[domain.Category]domain.Money `json:"category_spending"`
	TotalItems       int                              `json:"total_items"`
	CategoryItems    map[domain.Category]int          `json:"category_items"`
	ReceiptCount     int                              `json:"receipt_count"`
	Remaining        domain.Money                     `json:"remaining"`
	OverLimit        bool                             `json:"over_limit"`
}

// BuildBudgetReport aggregates the given receipts, which must be the ones
// associated with b. A receipt without line items counts as one item.
func BuildBudgetReport(b *domain.Budget, receipts []*domain.Receipt) *Report {
	rep := &Report{
		BudgetID:         b.ID,
		BudgetName:       b.Name,
		Category:         b.Category,
		LimitAmount:      b.LimitAmount,
		CurrentSpending:  b.CurrentSpending,
		StartDate:        b.StartDate,
		EndDate:          b.EndDate,
		TotalSpent:       domain.Zero,
		CategorySpending: make(map[domain.Category]domain.Money),
		CategoryItems:    make(map[domain.Category]int),
		ReceiptCount:     len(receipts),
	}

	for _, r := range receipts {
		total := r.Total()
		rep.TotalSpent = rep.TotalSpent.Add(total)
		rep.CategorySpending[r.Category] = rep.CategorySpending[r.Category].Add(total)

		n := r.ItemCount()
		rep.TotalItems += n
		rep.CategoryItems[r.Category] += n
	}

	rep.Remaining = b.LimitAmount.Sub(rep.TotalSpent)
	rep.OverLimit = rep.TotalSpent.GreaterThan(b.LimitAmount)
	return rep
}

// sortedCategories returns the report's categories in taxonomy order.
func (r *Report) sortedCategories() []domain.Category {
	order := make(map[domain.Category]int, len(domain.Categories))
	for i, c := range domain.Categories {
		order[c] = i
	}
	cats := make([]domain.Category, 0, len(r.CategorySpending))
	for c := range r.CategorySpending {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return order[cats[i]] < order[cats[j]] })
	return cats
}

// WriteReportPDF renders the report as a one-page PDF into w.
func WriteReportPDF(w io.Writer, rep *Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Budget Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, fmt.Sprintf("Budget Report: %s", rep.BudgetName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s - %s",
		rep.StartDate.In(time.UTC).Format(DateLayout), rep.EndDate.In(time.UTC).Format(DateLayout)))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Category: %s", rep.Category))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("Total Spent: %s of %s", rep.TotalSpent, rep.LimitAmount))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	status := fmt.Sprintf("Remaining: %s", rep.Remaining)
	if rep.OverLimit {
		status = fmt.Sprintf("Over limit by %s", rep.TotalSpent.Sub(rep.LimitAmount))
	}
	pdf.Cell(0, 8, status)
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Receipts: %d    Items: %d", rep.ReceiptCount, rep.TotalItems))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Category Breakdown")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(80, 7, "Category")
	pdf.Cell(50, 7, "Amount")
	pdf.Cell(30, 7, "Items")
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	for _, c := range rep.sortedCategories() {
		pdf.Cell(80, 7, string(c))
		pdf.Cell(50, 7, rep.CategorySpending[c].String())
		pdf.Cell(30, 7, fmt.Sprintf("%d", rep.CategoryItems[c]))
		pdf.Ln(7)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("WriteReportPDF: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
