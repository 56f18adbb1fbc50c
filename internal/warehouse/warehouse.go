// Package warehouse mirrors receipts, their line items and budgets into
// BigQuery for ad-hoc analytics. The relational store stays authoritative;
// every sync appends a snapshot stamped with synced_ts.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// ServiceName identifies the warehouse in ExternalServiceErrors.
const ServiceName = "warehouse"

const defaultBatchSize = 500

// Writer is the BigQuery surface the syncer needs.
type Writer interface {
	EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error
	Put(ctx context.Context, table string, rows []*bigquery.StructSaver) error
}

// BigQueryWriter writes to tables of one dataset.
type BigQueryWriter struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryWriter creates a BigQuery client for project.
func NewBigQueryWriter(ctx context.Context, project, dataset string) (*BigQueryWriter, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWriter: creating client: %w", err)
	}
	return &BigQueryWriter{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (w *BigQueryWriter) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// EnsureTable creates the table when it does not exist yet.
func (w *BigQueryWriter) EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error {
	t := w.client.Dataset(w.dataset).Table(table)
	_, err := t.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable %s: reading metadata: %w", table, err)
	}
	if err := t.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("EnsureTable %s: creating table: %w", table, err)
	}
	return nil
}

// Put streams rows into the table.
func (w *BigQueryWriter) Put(ctx context.Context, table string, rows []*bigquery.StructSaver) error {
	if len(rows) == 0 {
		return nil
	}
	if err := w.client.Dataset(w.dataset).Table(table).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("Put %s: inserting rows: %w", table, err)
	}
	return nil
}

// SyncResult counts the rows written by one Sync.
type SyncResult struct {
	Owners    int `json:"owners"`
	Receipts  int `json:"receipts"`
	LineItems int `json:"line_items"`
	Budgets   int `json:"budgets"`
}

// Syncer copies the store's contents into the warehouse.
type Syncer struct {
	store     storage.Store
	writer    Writer
	now       func() time.Time
	batchSize int
}

// NewSyncer creates a syncer writing through w.
func NewSyncer(store storage.Store, w Writer) *Syncer {
	return &Syncer{store: store, writer: w, now: time.Now, batchSize: defaultBatchSize}
}

type snapshot struct {
	owners   int
	receipts []*domain.Receipt
	budgets  []*domain.Budget
}

func (s *Syncer) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		owners, err := tx.ListOwners(ctx)
		if err != nil {
			return err
		}
		snap.owners = len(owners)
		for _, owner := range owners {
			receipts, err := tx.ListReceipts(ctx, owner, storage.ReceiptFilter{})
			if err != nil {
				return err
			}
			budgets, err := tx.ListBudgets(ctx, owner)
			if err != nil {
				return err
			}
			snap.receipts = append(snap.receipts, receipts...)
			snap.budgets = append(snap.budgets, budgets...)
		}
		return nil
	})
	return snap, err
}

// Sync writes one snapshot of every owner's receipts and budgets.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	log := logger.FromContext(ctx)

	tables := []struct {
		name string
		row  interface{}
	}{
		{receiptsTable, ReceiptRow{}},
		{lineItemsTable, ReceiptLineItemRow{}},
		{budgetsTable, BudgetRow{}},
	}
	for _, t := range tables {
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return SyncResult{}, fmt.Errorf("Sync: infer %s schema: %w", t.name, err)
		}
		if err := s.writer.EnsureTable(ctx, t.name, schema); err != nil {
			return SyncResult{}, domain.ExternalFailure(ServiceName, err)
		}
	}

	snap, err := s.load(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("Sync: load snapshot: %w", err)
	}

	syncedAt := s.now().UTC()
	stamp := syncedAt.Format("20060102T150405")

	var receipts, items, budgets []*bigquery.StructSaver
	for _, r := range snap.receipts {
		receipts = append(receipts, &bigquery.StructSaver{
			Struct:   NewReceiptRow(r, syncedAt),
			InsertID: fmt.Sprintf("receipt-%d-%s", r.ID, stamp),
		})
		for _, item := range NewLineItemRows(r, syncedAt) {
			items = append(items, &bigquery.StructSaver{
				Struct:   item,
				InsertID: fmt.Sprintf("item-%s-%s", item.LineItemID, stamp),
			})
		}
	}
	for _, b := range snap.budgets {
		budgets = append(budgets, &bigquery.StructSaver{
			Struct:   NewBudgetRow(b, syncedAt),
			InsertID: fmt.Sprintf("budget-%d-%s", b.ID, stamp),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	s.putBatches(gctx, g, receiptsTable, receipts)
	s.putBatches(gctx, g, lineItemsTable, items)
	s.putBatches(gctx, g, budgetsTable, budgets)
	if err := g.Wait(); err != nil {
		return SyncResult{}, domain.ExternalFailure(ServiceName, err)
	}

	res := SyncResult{Owners: snap.owners, Receipts: len(receipts), LineItems: len(items), Budgets: len(budgets)}
	log.Info().
		Int("owners", res.Owners).
		Int("receipts", res.Receipts).
		Int("line_items", res.LineItems).
		Int("budgets", res.Budgets).
		Msg("Warehouse sync completed")
	return res, nil
}

func (s *Syncer) putBatches(ctx context.Context, g *errgroup.Group, table string, rows []*bigquery.StructSaver) {
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		g.Go(func() error {
			return s.writer.Put(ctx, table, batch)
		})
	}
}
