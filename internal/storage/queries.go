package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

const createExpense = `
INSERT INTO expenses(date, amount, category, subcategory, note)
VALUES (?, ?, ?, ?, ?)
`

type CreateExpenseParams struct {
	Date        string
	Amount      float64
	Category    string
	Subcategory string
	Note        string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpense,
		arg.Date,
		arg.Amount,
		arg.Category,
		arg.Subcategory,
		arg.Note,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getExpensesInRange = `
SELECT id, date, amount, category, COALESCE(subcategory, ''), COALESCE(note, '')
FROM expenses
WHERE date BETWEEN ? AND ?
ORDER BY date DESC
`

type ExpenseRow struct {
	ID          int64
	Date        string
	Amount      float64
	Category    string
	Subcategory string
	Note        string
}

func (q *Queries) GetExpensesInRange(ctx context.Context, startDate, endDate string) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, getExpensesInRange, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ExpenseRow{}
	for rows.Next() {
		var i ExpenseRow
		if err := rows.Scan(
			&i.ID,
			&i.Date,
			&i.Amount,
			&i.Category,
			&i.Subcategory,
			&i.Note,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCategorySums = `
SELECT category, SUM(amount) AS total, COUNT(*) AS count
FROM expenses
WHERE date BETWEEN ? AND ?
`

const categoryFilter = ` AND category = ?`

const groupByCategory = `
GROUP BY category
ORDER BY total DESC
`

type GetCategorySumsParams struct {
	StartDate string
	EndDate   string
	// Category restricts the aggregate to one category when non-empty.
	Category string
}

type CategorySumRow struct {
	Category string
	Total    float64
	Count    int64
}

func (q *Queries) GetCategorySums(ctx context.Context, arg GetCategorySumsParams) ([]CategorySumRow, error) {
	query := getCategorySums
	args := []any{arg.StartDate, arg.EndDate}
	if arg.Category != "" {
		query += categoryFilter
		args = append(args, arg.Category)
	}
	query += groupByCategory

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []CategorySumRow{}
	for rows.Next() {
		var i CategorySumRow
		if err := rows.Scan(&i.Category, &i.Total, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
