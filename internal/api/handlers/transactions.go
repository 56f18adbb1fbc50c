package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/transactions"
)

// TransactionsHandler handles income and expense endpoints.
type TransactionsHandler struct {
	svc *transactions.Service
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc *transactions.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		svc: svc,
		log: log,
	}
}

type transactionRequest struct {
	Amount   domain.Money `json:"amount"`
	Category string       `json:"category" validate:"category"`
	Date     string       `json:"date" validate:"required,isodate"`
}

func (req transactionRequest) toTransaction() (domain.Transaction, error) {
	d, err := parseDate(req.Date)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		Amount:   req.Amount,
		Category: domain.Category(req.Category),
		Date:     &d,
	}, nil
}

type expenseRequest struct {
	transactionRequest
	Vendor        *string `json:"vendor" validate:"omitempty,max=100"`
	PaymentMethod *string `json:"payment_method" validate:"omitempty,max=50"`
}

type incomeRequest struct {
	transactionRequest
	Source string `json:"source" validate:"max=100"`
}

func (h *TransactionsHandler) decodeExpense(r *http.Request) (*domain.Expense, error) {
	owner, err := ownerID(r)
	if err != nil {
		return nil, err
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	t, err := req.toTransaction()
	if err != nil {
		return nil, err
	}
	return &domain.Expense{OwnerID: owner, Transaction: t, Vendor: req.Vendor, PaymentMethod: req.PaymentMethod}, nil
}

func (h *TransactionsHandler) decodeIncome(r *http.Request) (*domain.Income, error) {
	owner, err := ownerID(r)
	if err != nil {
		return nil, err
	}
	var req incomeRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	t, err := req.toTransaction()
	if err != nil {
		return nil, err
	}
	return &domain.Income{OwnerID: owner, Transaction: t, Source: req.Source}, nil
}

func originParam(r *http.Request) (domain.Origin, error) {
	return transactions.ParseOrigin(r.URL.Query().Get("origin"))
}

// CreateExpense handles POST /api/expenses
func (h *TransactionsHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.decodeExpense(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	created, err := h.svc.CreateExpense(r.Context(), e)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// ListExpenses handles GET /api/expenses
func (h *TransactionsHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	origin, err := originParam(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	list, err := h.svc.ListExpenses(r.Context(), owner, origin)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

// GetExpense handles GET /api/expenses/{id}
func (h *TransactionsHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	e, err := h.svc.GetExpense(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, e)
}

// UpdateExpense handles PUT /api/expenses/{id}
func (h *TransactionsHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	e, err := h.decodeExpense(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	e.ID = id
	updated, err := h.svc.UpdateExpense(r.Context(), e)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *TransactionsHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if err := h.svc.DeleteExpense(r.Context(), owner, id); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateIncome handles POST /api/incomes
func (h *TransactionsHandler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeIncome(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	created, err := h.svc.CreateIncome(r.Context(), in)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// ListIncomes handles GET /api/incomes
func (h *TransactionsHandler) ListIncomes(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	origin, err := originParam(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	list, err := h.svc.ListIncomes(r.Context(), owner, origin)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Income{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

// GetIncome handles GET /api/incomes/{id}
func (h *TransactionsHandler) GetIncome(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	in, err := h.svc.GetIncome(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, in)
}

// UpdateIncome handles PUT /api/incomes/{id}
func (h *TransactionsHandler) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	in, err := h.decodeIncome(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	in.ID = id
	updated, err := h.svc.UpdateIncome(r.Context(), in)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteIncome handles DELETE /api/incomes/{id}
func (h *TransactionsHandler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if err := h.svc.DeleteIncome(r.Context(), owner, id); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
