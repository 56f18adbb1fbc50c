package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/receipt-tracker/internal/budget"
	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/storage"
	"github.com/dvloznov/receipt-tracker/internal/storage/inmemory"
)

// MockAnalyzer is a mock implementation of docai.Analyzer for testing.
type MockAnalyzer struct {
	AnalyzeFunc func(ctx context.Context, img docai.Image) (*docai.ParsedDocument, error)
}

func (m *MockAnalyzer) Analyze(ctx context.Context, img docai.Image) (*docai.ParsedDocument, error) {
	return m.AnalyzeFunc(ctx, img)
}

// MockObjectStore is a mock implementation of gcs.ObjectStore for testing.
type MockObjectStore struct {
	UploadObjectFunc func(ctx context.Context, objectName, contentType string, data []byte) (string, error)
	FetchObjectFunc  func(ctx context.Context, gcsURI string) ([]byte, error)
	uploads          []string
	deleted          []string
}

func (m *MockObjectStore) UploadObject(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	m.uploads = append(m.uploads, objectName)
	if m.UploadObjectFunc != nil {
		return m.UploadObjectFunc(ctx, objectName, contentType, data)
	}
	return "gs://receipts-bucket/" + objectName, nil
}

func (m *MockObjectStore) FetchObject(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchObjectFunc != nil {
		return m.FetchObjectFunc(ctx, gcsURI)
	}
	return jpegBytes, nil
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, gcsURI string) error {
	m.deleted = append(m.deleted, gcsURI)
	return nil
}

func (m *MockObjectStore) Bucket() string { return "receipts-bucket" }

// MockFetcher is a mock implementation of pipeline.RemoteFetcher for testing.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, rawURL string) ([]byte, string, error)
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return m.FetchFunc(ctx, rawURL)
}

// failingStore wraps a store so CreateExpense fails, to exercise rollback.
type failingStore struct {
	storage.Store
}

type failingTx struct {
	storage.Tx
}

func (f *failingTx) CreateExpense(ctx context.Context, e *domain.Expense) error {
	return errors.New("disk full")
}

func (s *failingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &failingTx{Tx: tx})
	})
}

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

const owner int64 = 7

func cafeDocument() *docai.ParsedDocument {
	d := civil.Date{Year: 2024, Month: 2, Day: 10}
	merchant, label := "Corner Cafe", "Meal"
	total, coffee, cake := domain.MustMoney("20.00"), domain.MustMoney("12.00"), domain.MustMoney("8.00")
	desc1, desc2 := "Coffee", "Cake"
	return &docai.ParsedDocument{
		Merchant:        &merchant,
		Total:           &total,
		TransactionDate: &d,
		ReceiptType:     &label,
		Items: []domain.LineItem{
			{Description: &desc1, TotalPrice: &coffee},
			{Description: &desc2, TotalPrice: &cake},
		},
	}
}

func analyzerReturning(doc *docai.ParsedDocument) *MockAnalyzer {
	return &MockAnalyzer{
		AnalyzeFunc: func(ctx context.Context, img docai.Image) (*docai.ParsedDocument, error) {
			return doc, nil
		},
	}
}

func seedFebruaryBudget(t *testing.T, svc *budget.Service) *domain.Budget {
	t.Helper()
	b, err := svc.CreateBudget(context.Background(), &domain.Budget{
		OwnerID:     owner,
		Name:        "February",
		Category:    domain.CategoryMeal,
		LimitAmount: domain.MustMoney("100"),
		StartDate:   civil.Date{Year: 2024, Month: 2, Day: 1},
		EndDate:     civil.Date{Year: 2024, Month: 2, Day: 28},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	return b
}

func countRows(t *testing.T, store storage.Store) (receipts, expenses int) {
	t.Helper()
	_ = store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		rs, _ := tx.ListReceipts(ctx, owner, storage.ReceiptFilter{})
		es, _ := tx.ListExpenses(ctx, owner, storage.ExpenseFilter{})
		receipts, expenses = len(rs), len(es)
		return nil
	})
	return receipts, expenses
}

func TestIngest_UploadStoresAssignsAndAggregates(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	b := seedFebruaryBudget(t, svc)
	images := &MockObjectStore{}

	var analyzed docai.Image
	analyzer := &MockAnalyzer{
		AnalyzeFunc: func(ctx context.Context, img docai.Image) (*docai.ParsedDocument, error) {
			analyzed = img
			return cafeDocument(), nil
		},
	}
	ing := pipeline.NewIngestor(store, analyzer, svc,
		pipeline.WithObjectStore(images),
		pipeline.WithClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }),
	)

	r, err := ing.Ingest(ctx, pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes, Filename: "r.jpg"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if analyzed.MIMEType != "image/jpeg" {
		t.Errorf("analyzer got MIME %q, want image/jpeg", analyzed.MIMEType)
	}
	if len(images.uploads) != 1 || !strings.HasPrefix(images.uploads[0], "receipts/7/2024-03-01/") {
		t.Errorf("unexpected uploads: %v", images.uploads)
	}
	if !strings.HasPrefix(r.ImageRef, "gs://receipts-bucket/receipts/7/") {
		t.Errorf("ImageRef = %q", r.ImageRef)
	}
	if r.ID == 0 || r.BudgetID == nil || *r.BudgetID != b.ID {
		t.Fatalf("receipt not stored and assigned: %+v", r)
	}

	got, _ := svc.GetBudget(ctx, owner, b.ID)
	if got.CurrentSpending.String() != "20.00" {
		t.Errorf("current spending = %s, want 20.00 (item expenses must not be counted)", got.CurrentSpending)
	}

	receipts, expenses := countRows(t, store)
	if receipts != 1 || expenses != 2 {
		t.Errorf("got %d receipts and %d expenses, want 1 and 2", receipts, expenses)
	}
	_ = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		es, _ := tx.ListExpenses(ctx, owner, storage.ExpenseFilter{ReceiptID: &r.ID})
		for _, e := range es {
			if e.Origin != domain.OriginReceipt {
				t.Errorf("extracted expense origin = %q", e.Origin)
			}
		}
		if len(es) != 2 {
			t.Errorf("expected 2 expenses linked to receipt, got %d", len(es))
		}
		return nil
	})
}

func TestIngest_RemoteURL(t *testing.T) {
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	images := &MockObjectStore{}
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context, rawURL string) ([]byte, string, error) {
			return jpegBytes, "image/jpeg", nil
		},
	}

	ing := pipeline.NewIngestor(store, analyzerReturning(cafeDocument()), svc,
		pipeline.WithObjectStore(images), pipeline.WithFetcher(fetcher))

	r, err := ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, ImageURL: "https://example.com/r.jpg"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if r.ImageRef != "https://example.com/r.jpg" {
		t.Errorf("ImageRef = %q, want the remote URL", r.ImageRef)
	}
	if len(images.uploads) != 0 {
		t.Errorf("remote images must not be re-uploaded, got %v", images.uploads)
	}
	if r.BudgetID != nil {
		t.Errorf("no budget exists, got %v", r.BudgetID)
	}
}

func TestIngest_ImageRef(t *testing.T) {
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	ing := pipeline.NewIngestor(store, analyzerReturning(cafeDocument()), svc, pipeline.WithObjectStore(&MockObjectStore{}))

	ref := "gs://receipts-bucket/receipts/7/2024-02-10/abc.jpg"
	r, err := ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, ImageRef: ref})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if r.ImageRef != ref {
		t.Errorf("ImageRef = %q, want %q", r.ImageRef, ref)
	}

	_, err = ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, ImageRef: "gs://receipts-bucket/receipts/8/x.jpg"})
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for another owner's object, got %v", err)
	}
}

func TestIngest_InputValidation(t *testing.T) {
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context, rawURL string) ([]byte, string, error) {
			return nil, "", domain.Invalid("image_url", "fetch returned status 404")
		},
	}
	ing := pipeline.NewIngestor(store, analyzerReturning(cafeDocument()), svc,
		pipeline.WithFetcher(fetcher), pipeline.WithMaxBytes(8))

	tests := []struct {
		name string
		req  pipeline.IngestRequest
	}{
		{"no image", pipeline.IngestRequest{OwnerID: owner}},
		{"two sources", pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes, ImageURL: "https://x/y.jpg"}},
		{"url fetch fails", pipeline.IngestRequest{OwnerID: owner, ImageURL: "https://x/y.jpg"}},
		{"too large", pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes}},
		{"not an image", pipeline.IngestRequest{OwnerID: owner, Image: []byte("hello")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ing.Ingest(context.Background(), tt.req)
			if !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestIngest_AnalyzerFailurePersistsNothing(t *testing.T) {
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	images := &MockObjectStore{}
	analyzer := &MockAnalyzer{
		AnalyzeFunc: func(ctx context.Context, img docai.Image) (*docai.ParsedDocument, error) {
			return nil, domain.ExternalFailure(docai.ServiceName, context.DeadlineExceeded)
		},
	}
	ing := pipeline.NewIngestor(store, analyzer, svc, pipeline.WithObjectStore(images))

	_, err := ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes})
	if !domain.IsExternal(err) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if len(images.uploads) != 0 {
		t.Errorf("image uploaded despite failed analysis: %v", images.uploads)
	}
	if receipts, expenses := countRows(t, store); receipts != 0 || expenses != 0 {
		t.Errorf("got %d receipts and %d expenses after failure", receipts, expenses)
	}
}

func TestIngest_PersistFailureRollsBack(t *testing.T) {
	inner := inmemory.NewStore()
	store := &failingStore{Store: inner}
	svc := budget.NewService(store)
	b := seedFebruaryBudget(t, budget.NewService(inner))
	images := &MockObjectStore{}

	ing := pipeline.NewIngestor(store, analyzerReturning(cafeDocument()), svc, pipeline.WithObjectStore(images))

	if _, err := ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes}); err == nil {
		t.Fatal("expected error")
	}

	if len(images.uploads) != 1 || len(images.deleted) != 1 || images.deleted[0] != "gs://receipts-bucket/"+images.uploads[0] {
		t.Errorf("uploaded image not deleted after failed persist: uploads %v, deleted %v", images.uploads, images.deleted)
	}

	if receipts, expenses := countRows(t, inner); receipts != 0 || expenses != 0 {
		t.Errorf("got %d receipts and %d expenses after rollback", receipts, expenses)
	}
	got, _ := budget.NewService(inner).GetBudget(context.Background(), owner, b.ID)
	if !got.CurrentSpending.Equal(domain.Zero) {
		t.Errorf("budget spending changed despite rollback: %s", got.CurrentSpending)
	}
}

func TestIngest_LongMerchantAndNegativeTotal(t *testing.T) {
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	images := &MockObjectStore{}

	doc := cafeDocument()
	merchant := strings.Repeat("Long Merchant Name ", 8)[:150]
	negative := domain.MustMoney("-3.10")
	doc.Merchant = &merchant
	doc.Total = &negative

	ing := pipeline.NewIngestor(store, analyzerReturning(doc), svc, pipeline.WithObjectStore(images))

	r, err := ing.Ingest(context.Background(), pipeline.IngestRequest{OwnerID: owner, Image: jpegBytes})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if *r.Merchant != merchant {
		t.Errorf("merchant = %q, want the full %d characters", *r.Merchant, len(merchant))
	}
	if r.TotalAmount.String() != "0.00" {
		t.Errorf("total = %s, want 0.00 for a negative analysis total", r.TotalAmount)
	}
	if len(images.deleted) != 0 {
		t.Errorf("stored image deleted: %v", images.deleted)
	}

	_ = store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		es, _ := tx.ListExpenses(ctx, owner, storage.ExpenseFilter{ReceiptID: &r.ID})
		if len(es) != 2 {
			t.Fatalf("expected 2 expenses, got %d", len(es))
		}
		for _, e := range es {
			if *e.Vendor != merchant[:domain.MaxVendorLen] {
				t.Errorf("vendor = %q, want the first %d characters of the merchant", *e.Vendor, domain.MaxVendorLen)
			}
		}
		return nil
	})
}

func TestCreateReceipt_ManualPath(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc := budget.NewService(store)
	b := seedFebruaryBudget(t, svc)
	ing := pipeline.NewIngestor(store, nil, svc)

	d := civil.Date{Year: 2024, Month: 2, Day: 15}
	total := domain.MustMoney("30")
	r, err := ing.CreateReceipt(ctx, &domain.Receipt{
		OwnerID:         owner,
		TotalAmount:     &total,
		TransactionDate: &d,
		Category:        "healthcare.dentist",
	})
	if err != nil {
		t.Fatalf("CreateReceipt() error = %v", err)
	}
	if r.Category != domain.CategoryHealthcare || *r.Merchant != domain.DefaultMerchant {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if r.BudgetID == nil || *r.BudgetID != b.ID {
		t.Errorf("manual receipt not assigned")
	}
	got, _ := svc.GetBudget(ctx, owner, b.ID)
	if got.CurrentSpending.String() != "30.00" {
		t.Errorf("current spending = %s, want 30.00", got.CurrentSpending)
	}

	negative := domain.MustMoney("-5")
	if _, err := ing.CreateReceipt(ctx, &domain.Receipt{OwnerID: owner, TotalAmount: &negative}); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError for negative total, got %v", err)
	}
}
