// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// Store is a pgxpool-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool, e.g. for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InTx implements storage.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapError turns serialization failures and deadlocks into consistency
// errors so callers can answer 409 and the client can retry.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return domain.Inconsistent(err, "%s: concurrent modification", op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func dateArg(d *civil.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.In(time.UTC)
}

func moneyArg(m *domain.Money) interface{} {
	if m == nil {
		return nil
	}
	return m.String()
}

func fromPgDate(d pgtype.Date) *civil.Date {
	if !d.Valid {
		return nil
	}
	cd := civil.DateOf(d.Time)
	return &cd
}

type tx struct {
	q pgx.Tx
}

// --- receipts ---

const receiptColumns = `id, owner_id, image_url, merchant, total_amount, uploaded_at,
	transaction_date, parsed_items, receipt_category, budget_id`

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	var (
		r    domain.Receipt
		date pgtype.Date
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ImageRef, &r.Merchant, &r.TotalAmount, &r.UploadedAt,
		&date, &r.ParsedItems, &r.Category, &r.BudgetID)
	if err != nil {
		return nil, err
	}
	r.TransactionDate = fromPgDate(date)
	r.UploadedAt = r.UploadedAt.UTC()
	if r.ParsedItems == nil {
		r.ParsedItems = []domain.LineItem{}
	}
	return &r, nil
}

func (t *tx) queryReceipts(ctx context.Context, op, sql string, args ...interface{}) ([]*domain.Receipt, error) {
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	result := []*domain.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return result, nil
}

func (t *tx) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	items := r.ParsedItems
	if items == nil {
		items = []domain.LineItem{}
	}
	err := t.q.QueryRow(ctx, `
		INSERT INTO receipts (owner_id, image_url, merchant, total_amount, uploaded_at,
			transaction_date, parsed_items, receipt_category, budget_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.OwnerID, r.ImageRef, r.Merchant, moneyArg(r.TotalAmount), r.UploadedAt.UTC(),
		dateArg(r.TransactionDate), items, string(r.Category), r.BudgetID,
	).Scan(&r.ID)
	if err != nil {
		return mapError("create receipt", err)
	}
	return nil
}

func (t *tx) GetReceipt(ctx context.Context, ownerID, id int64) (*domain.Receipt, error) {
	r, err := scanReceipt(t.q.QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("receipt", id)
	}
	if err != nil {
		return nil, mapError("get receipt", err)
	}
	return r, nil
}

func (t *tx) ListReceipts(ctx context.Context, ownerID int64, filter storage.ReceiptFilter) ([]*domain.Receipt, error) {
	sql := `SELECT ` + receiptColumns + ` FROM receipts WHERE owner_id = $1`
	args := []interface{}{ownerID}
	if filter.BudgetID != nil {
		args = append(args, *filter.BudgetID)
		sql += fmt.Sprintf(" AND budget_id = $%d", len(args))
	}
	if filter.Unassigned {
		sql += " AND budget_id IS NULL"
	}
	sql += " ORDER BY id"
	return t.queryReceipts(ctx, "list receipts", sql, args...)
}

func (t *tx) ReceiptsByBudget(ctx context.Context, budgetID int64) ([]*domain.Receipt, error) {
	return t.queryReceipts(ctx, "receipts by budget",
		`SELECT `+receiptColumns+` FROM receipts WHERE budget_id = $1 ORDER BY id`, budgetID)
}

func (t *tx) SetReceiptBudget(ctx context.Context, ownerID, receiptID int64, budgetID *int64) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE receipts SET budget_id = $1 WHERE id = $2 AND owner_id = $3`, budgetID, receiptID, ownerID)
	if err != nil {
		return mapError("set receipt budget", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("receipt", receiptID)
	}
	return nil
}

func (t *tx) DeleteReceipt(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM receipts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return mapError("delete receipt", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("receipt", id)
	}
	return nil
}

func (t *tx) ListOwners(ctx context.Context) ([]int64, error) {
	rows, err := t.q.Query(ctx, `SELECT owner_id FROM receipts UNION SELECT owner_id FROM budgets ORDER BY owner_id`)
	if err != nil {
		return nil, mapError("list owners", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, mapError("list owners", err)
	}
	return owners, nil
}

// --- budgets ---

const budgetColumns = `id, owner_id, name, category, limit_amount, current_spending,
	start_date, end_date, created_at`

func scanBudget(row pgx.Row) (*domain.Budget, error) {
	var (
		b          domain.Budget
		start, end pgtype.Date
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Category, &b.LimitAmount, &b.CurrentSpending,
		&start, &end, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.StartDate = civil.DateOf(start.Time)
	b.EndDate = civil.DateOf(end.Time)
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (t *tx) queryBudgets(ctx context.Context, op, sql string, args ...interface{}) ([]*domain.Budget, error) {
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	result := []*domain.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return result, nil
}

func (t *tx) CreateBudget(ctx context.Context, b *domain.Budget) error {
	created, err := scanBudget(t.q.QueryRow(ctx, `
		INSERT INTO budgets (owner_id, name, category, limit_amount, current_spending, start_date, end_date)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING `+budgetColumns,
		b.OwnerID, b.Name, string(b.Category), b.LimitAmount.String(),
		b.StartDate.In(time.UTC), b.EndDate.In(time.UTC)))
	if err != nil {
		return mapError("create budget", err)
	}
	*b = *created
	return nil
}

func (t *tx) GetBudget(ctx context.Context, ownerID, id int64) (*domain.Budget, error) {
	b, err := scanBudget(t.q.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("budget", id)
	}
	if err != nil {
		return nil, mapError("get budget", err)
	}
	return b, nil
}

func (t *tx) LockBudget(ctx context.Context, id int64) (*domain.Budget, error) {
	b, err := scanBudget(t.q.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("budget", id)
	}
	if err != nil {
		return nil, mapError("lock budget", err)
	}
	return b, nil
}

func (t *tx) ListBudgets(ctx context.Context, ownerID int64) ([]*domain.Budget, error) {
	return t.queryBudgets(ctx, "list budgets",
		`SELECT `+budgetColumns+` FROM budgets WHERE owner_id = $1 ORDER BY id`, ownerID)
}

func (t *tx) FindBudgetsContaining(ctx context.Context, ownerID int64, d civil.Date) ([]*domain.Budget, error) {
	return t.queryBudgets(ctx, "find budgets containing date", `
		SELECT `+budgetColumns+` FROM budgets
		WHERE owner_id = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY id`, ownerID, d.In(time.UTC))
}

func (t *tx) UpdateBudget(ctx context.Context, b *domain.Budget) error {
	updated, err := scanBudget(t.q.QueryRow(ctx, `
		UPDATE budgets
		SET name = $1, category = $2, limit_amount = $3, start_date = $4, end_date = $5
		WHERE id = $6 AND owner_id = $7
		RETURNING `+budgetColumns,
		b.Name, string(b.Category), b.LimitAmount.String(),
		b.StartDate.In(time.UTC), b.EndDate.In(time.UTC), b.ID, b.OwnerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("budget", b.ID)
	}
	if err != nil {
		return mapError("update budget", err)
	}
	*b = *updated
	return nil
}

func (t *tx) SetBudgetSpending(ctx context.Context, id int64, spending domain.Money) error {
	tag, err := t.q.Exec(ctx, `UPDATE budgets SET current_spending = $1 WHERE id = $2`, spending.String(), id)
	if err != nil {
		return mapError("set budget spending", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("budget", id)
	}
	return nil
}

func (t *tx) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM budgets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return mapError("delete budget", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("budget", id)
	}
	return nil
}

// Ensure Store implements the storage interfaces.
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
