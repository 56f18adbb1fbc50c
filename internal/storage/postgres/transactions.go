package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// --- expenses ---

const expenseColumns = `id, owner_id, amount, category, date, origin, vendor, payment_method,
	receipt_id, created_at, updated_at`

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var (
		e    domain.Expense
		date pgtype.Date
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Amount, &e.Category, &date, &e.Origin, &e.Vendor,
		&e.PaymentMethod, &e.ReceiptID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Date = fromPgDate(date)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (t *tx) CreateExpense(ctx context.Context, e *domain.Expense) error {
	created, err := scanExpense(t.q.QueryRow(ctx, `
		INSERT INTO expenses (owner_id, amount, category, date, origin, vendor, payment_method, receipt_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+expenseColumns,
		e.OwnerID, e.Amount.String(), string(e.Category), dateArg(e.Date), string(e.Origin),
		e.Vendor, e.PaymentMethod, e.ReceiptID))
	if err != nil {
		return mapError("create expense", err)
	}
	*e = *created
	return nil
}

func (t *tx) GetExpense(ctx context.Context, ownerID, id int64) (*domain.Expense, error) {
	e, err := scanExpense(t.q.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("expense", id)
	}
	if err != nil {
		return nil, mapError("get expense", err)
	}
	return e, nil
}

func (t *tx) ListExpenses(ctx context.Context, ownerID int64, filter storage.ExpenseFilter) ([]*domain.Expense, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE owner_id = $1
		  AND ($2 = '' OR origin = $2)
		  AND ($3::BIGINT IS NULL OR receipt_id = $3)
		ORDER BY id`, ownerID, string(filter.Origin), filter.ReceiptID)
	if err != nil {
		return nil, mapError("list expenses", err)
	}
	defer rows.Close()

	result := []*domain.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, mapError("list expenses", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list expenses", err)
	}
	return result, nil
}

// UpdateExpense keeps origin, receipt link and creation time.
func (t *tx) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	updated, err := scanExpense(t.q.QueryRow(ctx, `
		UPDATE expenses
		SET amount = $1, category = $2, date = $3, vendor = $4, payment_method = $5, updated_at = now()
		WHERE id = $6 AND owner_id = $7
		RETURNING `+expenseColumns,
		e.Amount.String(), string(e.Category), dateArg(e.Date), e.Vendor, e.PaymentMethod, e.ID, e.OwnerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("expense", e.ID)
	}
	if err != nil {
		return mapError("update expense", err)
	}
	*e = *updated
	return nil
}

func (t *tx) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return mapError("delete expense", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("expense", id)
	}
	return nil
}

// --- incomes ---

const incomeColumns = `id, owner_id, amount, category, date, origin, source, created_at, updated_at`

func scanIncome(row pgx.Row) (*domain.Income, error) {
	var (
		i    domain.Income
		date pgtype.Date
	)
	err := row.Scan(&i.ID, &i.OwnerID, &i.Amount, &i.Category, &date, &i.Origin, &i.Source,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.Date = fromPgDate(date)
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	return &i, nil
}

func (t *tx) CreateIncome(ctx context.Context, i *domain.Income) error {
	created, err := scanIncome(t.q.QueryRow(ctx, `
		INSERT INTO incomes (owner_id, amount, category, date, origin, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+incomeColumns,
		i.OwnerID, i.Amount.String(), string(i.Category), dateArg(i.Date), string(i.Origin), i.Source))
	if err != nil {
		return mapError("create income", err)
	}
	*i = *created
	return nil
}

func (t *tx) GetIncome(ctx context.Context, ownerID, id int64) (*domain.Income, error) {
	i, err := scanIncome(t.q.QueryRow(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("income", id)
	}
	if err != nil {
		return nil, mapError("get income", err)
	}
	return i, nil
}

func (t *tx) ListIncomes(ctx context.Context, ownerID int64) ([]*domain.Income, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, mapError("list incomes", err)
	}
	defer rows.Close()

	result := []*domain.Income{}
	for rows.Next() {
		i, err := scanIncome(rows)
		if err != nil {
			return nil, mapError("list incomes", err)
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list incomes", err)
	}
	return result, nil
}

func (t *tx) UpdateIncome(ctx context.Context, i *domain.Income) error {
	updated, err := scanIncome(t.q.QueryRow(ctx, `
		UPDATE incomes
		SET amount = $1, category = $2, date = $3, source = $4, updated_at = now()
		WHERE id = $5 AND owner_id = $6
		RETURNING `+incomeColumns,
		i.Amount.String(), string(i.Category), dateArg(i.Date), i.Source, i.ID, i.OwnerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("income", i.ID)
	}
	if err != nil {
		return mapError("update income", err)
	}
	*i = *updated
	return nil
}

func (t *tx) DeleteIncome(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM incomes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return mapError("delete income", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("income", id)
	}
	return nil
}
