package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/budget"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/export"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReceiptsHandler handles receipt-related endpoints.
type ReceiptsHandler struct {
	ingestor  *pipeline.Ingestor
	budgets   *budget.Service
	exports   *export.Service
	maxUpload int64
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(ingestor *pipeline.Ingestor, budgets *budget.Service, exports *export.Service, maxUpload int64, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		ingestor:  ingestor,
		budgets:   budgets,
		exports:   exports,
		maxUpload: maxUpload,
		log:       log,
	}
}

type ingestJSONRequest struct {
	ImageURL string `json:"image_url" validate:"omitempty,url"`
	ImageRef string `json:"image_ref" validate:"omitempty,startswith=gs://"`
}

// Ingest handles POST /api/receipts/ingest
func (h *ReceiptsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	req, err := h.ingestRequest(w, r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	req.OwnerID = owner

	receipt, err := h.ingestor.Ingest(r.Context(), req)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, receipt)
}

// ingestRequest reads the image source from a multipart form, a urlencoded
// form or a JSON body.
func (h *ReceiptsHandler) ingestRequest(w http.ResponseWriter, r *http.Request) (pipeline.IngestRequest, error) {
	var req pipeline.IngestRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body ingestJSONRequest
		if err := decodeJSON(r, &body); err != nil {
			return req, err
		}
		req.ImageURL, req.ImageRef = body.ImageURL, body.ImageRef
		return req, nil

	case "multipart/form-data", "application/x-www-form-urlencoded":
		// Leave headroom for the other form fields.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
		if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, domain.Invalid("image", "upload is larger than %d bytes", h.maxUpload)
			}
			return req, domain.Invalid("image", "invalid form: %v", err)
		}
		req.ImageURL = strings.TrimSpace(r.FormValue("image_url"))
		req.ImageRef = strings.TrimSpace(r.FormValue("image_ref"))

		file, header, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return req, nil
		}
		if err != nil {
			return req, domain.Invalid("image", "unreadable upload: %v", err)
		}
		defer file.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(file, h.maxUpload+1)); err != nil {
			return req, domain.Invalid("image", "unreadable upload: %v", err)
		}
		req.Image = buf.Bytes()
		req.ContentType = header.Header.Get("Content-Type")
		req.Filename = header.Filename
		return req, nil

	default:
		return req, domain.Invalid("image", "send multipart/form-data with an image file, or JSON with image_url or image_ref")
	}
}

type lineItemRequest struct {
	Description *string       `json:"description" validate:"omitempty,max=255"`
	Quantity    *float64      `json:"quantity" validate:"omitempty,gte=0"`
	TotalPrice  *domain.Money `json:"total_price"`
}

type receiptRequest struct {
	Merchant        *string           `json:"merchant" validate:"omitempty,max=255"`
	TotalAmount     *domain.Money     `json:"total_amount"`
	TransactionDate *string           `json:"transaction_date" validate:"omitempty,isodate"`
	Category        string            `json:"receipt_category" validate:"category"`
	ParsedItems     []lineItemRequest `json:"parsed_items" validate:"omitempty,dive"`
	ImageURL        string            `json:"image_url" validate:"omitempty,url"`
}

func (req *receiptRequest) toReceipt(owner int64) (*domain.Receipt, error) {
	date, err := parseOptionalDate(req.TransactionDate)
	if err != nil {
		return nil, err
	}
	items := make([]domain.LineItem, 0, len(req.ParsedItems))
	for _, it := range req.ParsedItems {
		items = append(items, domain.LineItem{Description: it.Description, Quantity: it.Quantity, TotalPrice: it.TotalPrice})
	}
	return &domain.Receipt{
		OwnerID:         owner,
		ImageRef:        req.ImageURL,
		Merchant:        req.Merchant,
		TotalAmount:     req.TotalAmount,
		TransactionDate: date,
		ParsedItems:     items,
		Category:        domain.Category(req.Category),
	}, nil
}

// CreateReceipt handles POST /api/receipts
func (h *ReceiptsHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	var req receiptRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	receipt, err := req.toReceipt(owner)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	created, err := h.ingestor.CreateReceipt(r.Context(), receipt)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// ListReceipts handles GET /api/receipts
func (h *ReceiptsHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	budgetID, err := queryID(r, "budget_id")
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	receipts, err := h.budgets.ListReceipts(r.Context(), owner, storage.ReceiptFilter{BudgetID: budgetID})
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	// Return array directly for frontend compatibility
	if receipts == nil {
		receipts = []*domain.Receipt{}
	}
	middleware.WriteJSON(w, http.StatusOK, receipts)
}

// GetReceipt handles GET /api/receipts/{id}
func (h *ReceiptsHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	receipt, err := h.budgets.GetReceipt(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, receipt)
}

// DeleteReceipt handles DELETE /api/receipts/{id}
func (h *ReceiptsHandler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if err := h.budgets.DeleteReceipt(r.Context(), owner, id); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignReceipt handles POST /api/receipts/{id}/assign
func (h *ReceiptsHandler) AssignReceipt(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	receipt, err := h.budgets.Assign(r.Context(), owner, id)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, receipt)
}

// ReassignAll handles POST /api/receipts/reassign
func (h *ReceiptsHandler) ReassignAll(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	res, err := h.budgets.ReassignAll(r.Context(), owner)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ExportAll handles GET /api/receipts/export
func (h *ReceiptsHandler) ExportAll(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, nil, "receipts.xlsx")
}

// ExportBudget handles GET /api/receipts/export/{budgetID}
func (h *ReceiptsHandler) ExportBudget(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathID(r, "budgetID")
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	h.export(w, r, &budgetID, fmt.Sprintf("budget-%d-receipts.xlsx", budgetID))
}

func (h *ReceiptsHandler) export(w http.ResponseWriter, r *http.Request, budgetID *int64, filename string) {
	owner, err := ownerID(r)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	receipts, err := h.exports.Receipts(r.Context(), owner, budgetID)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	// Render fully before writing headers so a failure can still answer 500.
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, receipts); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	attachment(w, xlsxContentType, filename)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn().Err(err).Msg("Failed to write export")
	}
}

func ownerAndID(r *http.Request) (int64, int64, error) {
	owner, err := ownerID(r)
	if err != nil {
		return 0, 0, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	return owner, id, nil
}
