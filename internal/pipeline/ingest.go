// Package pipeline turns receipt images into stored receipts: load the image,
// analyze it, keep it, assemble the records and persist them together with
// the budget assignment.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/gcs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Assigner matches a freshly stored receipt to its budget inside the
// caller's transaction.
type Assigner interface {
	AssignInTx(ctx context.Context, tx storage.Tx, ownerID int64, receipt *domain.Receipt) error
}

// IngestRequest carries exactly one image source.
type IngestRequest struct {
	OwnerID int64

	// Image holds uploaded bytes; ContentType and Filename describe them.
	Image       []byte
	ContentType string
	Filename    string

	// ImageURL is a remote http(s) image.
	ImageURL string

	// ImageRef re-ingests an image already in object storage (gs://).
	ImageRef string
}

// Ingestor wires the pipeline steps to their collaborators.
type Ingestor struct {
	store    storage.Store
	images   gcs.ObjectStore
	fetcher  RemoteFetcher
	analyzer docai.Analyzer
	assigner Assigner
	maxBytes int64
	now      func() time.Time
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithObjectStore keeps uploaded images and enables gs:// re-ingestion.
func WithObjectStore(images gcs.ObjectStore) Option {
	return func(i *Ingestor) { i.images = images }
}

// WithFetcher enables ingestion from remote URLs.
func WithFetcher(f RemoteFetcher) Option {
	return func(i *Ingestor) { i.fetcher = f }
}

// WithMaxBytes caps the image size.
func WithMaxBytes(n int64) Option {
	return func(i *Ingestor) { i.maxBytes = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// NewIngestor creates an Ingestor.
func NewIngestor(store storage.Store, analyzer docai.Analyzer, assigner Assigner, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:    store,
		analyzer: analyzer,
		assigner: assigner,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// newReceiptIngestionPipeline creates the standard five-step ingestion pipeline.
func (i *Ingestor) newReceiptIngestionPipeline() *Pipeline {
	return NewPipeline(
		&LoadImageStep{Images: i.images, Fetcher: i.fetcher, MaxBytes: i.maxBytes},
		&AnalyzeDocumentStep{Analyzer: i.analyzer},
		&StoreImageStep{Images: i.images},
		&AssembleStep{},
		&PersistStep{Store: i.store, Assigner: i.assigner, Images: i.images},
	)
}

// Ingest runs the OCR path and returns the stored, assigned receipt.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*domain.Receipt, error) {
	if req.OwnerID == 0 {
		return nil, domain.Invalid("owner", "is required")
	}

	state := &PipelineState{
		Request:    req,
		UploadedAt: i.now().UTC(),
	}

	log := logger.FromContext(ctx)
	start := time.Now()

	if err := i.newReceiptIngestionPipeline().Execute(ctx, state); err != nil {
		log.Error().
			Err(err).
			Int64("owner_id", req.OwnerID).
			Str("image_ref", state.ImageRef).
			Msg("Receipt ingestion failed")
		return nil, err
	}

	log.Info().
		Int64("owner_id", req.OwnerID).
		Int64("receipt_id", state.Receipt.ID).
		Interface("budget_id", state.Receipt.BudgetID).
		Int("expenses", len(state.Expenses)).
		Dur("elapsed", time.Since(start)).
		Msg("Receipt ingested")
	return state.Receipt, nil
}

// CreateReceipt is the manual path: the caller supplies the fields the
// analyzer would have produced.
func (i *Ingestor) CreateReceipt(ctx context.Context, r *domain.Receipt) (*domain.Receipt, error) {
	r.ID = 0
	r.BudgetID = nil
	r.UploadedAt = i.now().UTC()
	if r.Merchant == nil {
		m := domain.DefaultMerchant
		r.Merchant = &m
	}
	if r.TotalAmount == nil {
		z := domain.Zero
		r.TotalAmount = &z
	}
	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	err := i.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateReceipt(ctx, r); err != nil {
			return fmt.Errorf("CreateReceipt: %w", err)
		}
		return i.assigner.AssignInTx(ctx, tx, r.OwnerID, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
