package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/budget"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/export"
)

// BudgetsHandler handles budget-related endpoints.
type BudgetsHandler struct {
	budgets *budget.Service
	exports *export.Service
	log     zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(budgets *budget.Service, exports *export.Service, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{
		budgets: budgets,
		exports: exports,
		log:     log,
	}
}

type budgetRequest struct {
	Name        string       `json:"name" validate:"required,max=100"`
	Category    string       `json:"category" validate:"category"`
	LimitAmount domain.Money `json:"limit_amount"`
	StartDate   string       `json:"start_date" validate:"required,isodate"`
	EndDate     string       `json:"end_date" validate:"required,isodate"`
}

func (req *budgetRequest) toBudget(owner int64) (*domain.Budget, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	return &domain.Budget{
		OwnerID:     owner,
		Name:        req.Name,
		Category:    domain.Category(req.Category),
		LimitAmount: req.LimitAmount,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func (h *BudgetsHandler) decodeBudget(r *http.Request) (*domain.Budget, error) {
	owner, err := ownerID(r)
	if err != nil {
		return nil, err
	}
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req.toBudget(owner)
}

// CreateBudget handles POST /api/budgets
func (h *BudgetsHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.decodeBudget(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	created, err := h.budgets.CreateBudget(r.Context(), b)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// ListBudgets handles GET /api/budgets
func (h *BudgetsHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	list, err := h.budgets.ListBudgets(r.Context(), owner)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Budget{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

// GetBudget handles GET /api/budgets/{id}
func (h *BudgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	b, err := h.budgets.GetBudget(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// UpdateBudget handles PUT /api/budgets/{id}
func (h *BudgetsHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	b, err := h.decodeBudget(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	b.ID = id

	updated, err := h.budgets.UpdateBudget(r.Context(), b)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteBudget handles DELETE /api/budgets/{id}
func (h *BudgetsHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if err := h.budgets.DeleteBudget(r.Context(), owner, id); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recompute handles POST /api/budgets/{id}/recompute
func (h *BudgetsHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	b, err := h.budgets.Recompute(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// Report handles GET /api/budgets/{id}/report
func (h *BudgetsHandler) Report(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	rep, err := h.exports.BudgetReport(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rep)
}

// ReportPDF handles GET /api/budgets/{id}/report.pdf
func (h *BudgetsHandler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	rep, err := h.exports.BudgetReport(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReportPDF(&buf, rep); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	attachment(w, "application/pdf", fmt.Sprintf("budget-%d-report.pdf", id))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn().Err(err).Int64("budget_id", id).Msg("Failed to write report")
	}
}
