package pipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/gcs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request    IngestRequest
	UploadedAt time.Time

	Image    docai.Image
	ImageRef string
	// Upload is set when the bytes came from the caller and still need storing.
	Upload bool

	Document *docai.ParsedDocument
	Receipt  *domain.Receipt
	Expenses []*domain.Expense
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Step 1: LoadImageStep resolves the request into image bytes.
type LoadImageStep struct {
	Images   gcs.ObjectStore
	Fetcher  RemoteFetcher
	MaxBytes int64
}

func (s *LoadImageStep) Execute(ctx context.Context, state *PipelineState) error {
	req := state.Request

	given := 0
	for _, set := range []bool{len(req.Image) > 0, req.ImageURL != "", req.ImageRef != ""} {
		if set {
			given++
		}
	}
	switch {
	case given == 0:
		return domain.Invalid("image", "one of image, image_url or image_ref is required")
	case given > 1:
		return domain.Invalid("image", "only one of image, image_url or image_ref may be given")
	}

	var (
		data     []byte
		declared string
		err      error
	)
	switch {
	case len(req.Image) > 0:
		data, declared = req.Image, req.ContentType
		state.Upload = true
	case req.ImageURL != "":
		if s.Fetcher == nil {
			return domain.Invalid("image_url", "remote images are not supported")
		}
		data, declared, err = s.Fetcher.Fetch(ctx, req.ImageURL)
		if err != nil {
			return err
		}
		state.ImageRef = req.ImageURL
	default:
		if s.Images == nil {
			return domain.Invalid("image_ref", "object storage is not configured")
		}
		if !gcs.OwnedBy(req.ImageRef, s.Images.Bucket(), req.OwnerID) {
			return domain.Invalid("image_ref", "must reference one of your stored images")
		}
		data, err = s.Images.FetchObject(ctx, req.ImageRef)
		if err != nil {
			return err
		}
		state.ImageRef = req.ImageRef
	}

	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return domain.Invalid("image", "image is larger than %d bytes", s.MaxBytes)
	}

	mediaType, err := detectImageType(data, declared, req.Filename)
	if err != nil {
		return err
	}

	state.Image = docai.Image{Data: data, MIMEType: mediaType, Ref: state.ImageRef}
	return nil
}

// Step 2: AnalyzeDocumentStep calls the document analyzer.
type AnalyzeDocumentStep struct {
	Analyzer docai.Analyzer
}

func (s *AnalyzeDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	doc, err := s.Analyzer.Analyze(ctx, state.Image)
	if err != nil {
		return err
	}
	state.Document = doc
	return nil
}

// Step 3: StoreImageStep uploads caller-supplied bytes once analysis
// succeeded, so failed analyses leave no orphaned objects.
type StoreImageStep struct {
	Images gcs.ObjectStore
}

func (s *StoreImageStep) Execute(ctx context.Context, state *PipelineState) error {
	if !state.Upload {
		return nil
	}
	if s.Images == nil {
		log := logger.FromContext(ctx)
		log.Warn().Msg("No object storage configured - receipt image not kept")
		return nil
	}

	day := civil.DateOf(state.UploadedAt.UTC())
	name := gcs.ReceiptObjectName(state.Request.OwnerID, day, extensionFor(state.Image.MIMEType, state.Request.Filename))
	uri, err := s.Images.UploadObject(ctx, name, state.Image.MIMEType, state.Image.Data)
	if err != nil {
		return err
	}
	state.ImageRef = uri
	return nil
}

// Step 4: AssembleStep turns the analysis result into a receipt and its
// informational expenses.
type AssembleStep struct{}

func (s *AssembleStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Receipt = AssembleReceipt(state.Document, state.ImageRef, state.Request.OwnerID, state.UploadedAt)
	state.Expenses = ExtractExpenses(state.Document, state.Request.OwnerID)
	return nil
}

// Step 5: PersistStep writes the receipt and expenses and assigns the
// receipt to its budget in one transaction. When that fails, an image
// uploaded by StoreImageStep is deleted again.
type PersistStep struct {
	Store    storage.Store
	Assigner Assigner
	Images   gcs.ObjectStore
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.persist(ctx, state); err != nil {
		s.discardUpload(ctx, state)
		return err
	}
	return nil
}

func (s *PersistStep) persist(ctx context.Context, state *PipelineState) error {
	receipt := state.Receipt
	receipt.Normalize()
	if err := receipt.Validate(); err != nil {
		return err
	}

	err := s.Store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateReceipt(ctx, receipt); err != nil {
			return fmt.Errorf("persist receipt: %w", err)
		}
		for i, e := range state.Expenses {
			e.ReceiptID = &receipt.ID
			e.Normalize()
			if err := e.Validate(); err != nil {
				return err
			}
			if err := tx.CreateExpense(ctx, e); err != nil {
				return fmt.Errorf("persist expense %d: %w", i, err)
			}
		}
		return s.Assigner.AssignInTx(ctx, tx, receipt.OwnerID, receipt)
	})
	if err != nil {
		receipt.ID = 0
		receipt.BudgetID = nil
		return err
	}
	return nil
}

func (s *PersistStep) discardUpload(ctx context.Context, state *PipelineState) {
	if !state.Upload || s.Images == nil || state.ImageRef == "" {
		return
	}
	// The request context may already be done; the cleanup still has to run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.Images.DeleteObject(ctx, state.ImageRef); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("image_ref", state.ImageRef).Msg("Failed to delete image of unsaved receipt")
	}
}
