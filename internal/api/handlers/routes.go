package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
)

// Router bundles the handlers served under /api.
type Router struct {
	Receipts     *ReceiptsHandler
	Budgets      *BudgetsHandler
	Transactions *TransactionsHandler
	Tokens       middleware.TokenParser
	Log          zerolog.Logger
}

// Handler builds the full HTTP handler including middleware. Every /api
// route requires a bearer token; /health does not.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/receipts/ingest", rt.Receipts.Ingest)
	api.HandleFunc("POST /api/receipts/reassign", rt.Receipts.ReassignAll)
	api.HandleFunc("GET /api/receipts/export", rt.Receipts.ExportAll)
	api.HandleFunc("GET /api/receipts/export/{budgetID}", rt.Receipts.ExportBudget)
	api.HandleFunc("POST /api/receipts", rt.Receipts.CreateReceipt)
	api.HandleFunc("GET /api/receipts", rt.Receipts.ListReceipts)
	api.HandleFunc("GET /api/receipts/{id}", rt.Receipts.GetReceipt)
	api.HandleFunc("DELETE /api/receipts/{id}", rt.Receipts.DeleteReceipt)
	api.HandleFunc("POST /api/receipts/{id}/assign", rt.Receipts.AssignReceipt)

	api.HandleFunc("POST /api/budgets", rt.Budgets.CreateBudget)
	api.HandleFunc("GET /api/budgets", rt.Budgets.ListBudgets)
	api.HandleFunc("GET /api/budgets/{id}", rt.Budgets.GetBudget)
	api.HandleFunc("PUT /api/budgets/{id}", rt.Budgets.UpdateBudget)
	api.HandleFunc("DELETE /api/budgets/{id}", rt.Budgets.DeleteBudget)
	api.HandleFunc("POST /api/budgets/{id}/recompute", rt.Budgets.Recompute)
	api.HandleFunc("GET /api/budgets/{id}/report", rt.Budgets.Report)
	api.HandleFunc("GET /api/budgets/{id}/report.pdf", rt.Budgets.ReportPDF)

	api.HandleFunc("POST /api/expenses", rt.Transactions.CreateExpense)
	api.HandleFunc("GET /api/expenses", rt.Transactions.ListExpenses)
	api.HandleFunc("GET /api/expenses/{id}", rt.Transactions.GetExpense)
	api.HandleFunc("PUT /api/expenses/{id}", rt.Transactions.UpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", rt.Transactions.DeleteExpense)

	api.HandleFunc("POST /api/incomes", rt.Transactions.CreateIncome)
	api.HandleFunc("GET /api/incomes", rt.Transactions.ListIncomes)
	api.HandleFunc("GET /api/incomes/{id}", rt.Transactions.GetIncome)
	api.HandleFunc("PUT /api/incomes/{id}", rt.Transactions.UpdateIncome)
	api.HandleFunc("DELETE /api/incomes/{id}", rt.Transactions.DeleteIncome)

	api.HandleFunc("GET /api/categories", ListCategories)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Auth(rt.Tokens)(api))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(rt.Log)(
		middleware.Logger(rt.Log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)
}
