package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"expensemcp/internal/core"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn keeps the rollback journal (WAL breaks on some network filesystems)
// and lets concurrent writers wait for the lock instead of failing at once.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)"
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	path    string
}

// NewSQLiteRepository initializes the store at dbPath and returns a repository
// whose operations each acquire and release their own connection.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := Init(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// No idle connections: every operation opens a connection and closes it on release.
	db.SetMaxIdleConns(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		path:    dbPath,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// Ping checks that a connection to the store can be opened.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Insert appends one expense and returns its assigned id.
func (r *SQLiteRepository) Insert(ctx context.Context, e core.NewExpense) (int64, error) {
	id, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		Date:        e.Date,
		Amount:      e.Amount,
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Note:        e.Note,
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", id,
		"date", e.Date,
		"amount", e.Amount,
		"category", e.Category)

	return id, nil
}

// ListInRange returns the expenses whose date lies in the inclusive range,
// newest date first. Dates are compared as strings.
func (r *SQLiteRepository) ListInRange(ctx context.Context, rng core.DateRange) ([]core.Expense, error) {
	rows, err := r.queries.GetExpensesInRange(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("get expenses in range: %w", err)
	}

	expenses := make([]core.Expense, len(rows))
	for i, e := range rows {
		expenses[i] = core.Expense{
			ID:          e.ID,
			Date:        e.Date,
			Amount:      e.Amount,
			Category:    e.Category,
			Subcategory: e.Subcategory,
			Note:        e.Note,
		}
	}

	return expenses, nil
}

// SummarizeByCategory groups the expenses of the range by category, largest total first.
// An empty category means every category.
func (r *SQLiteRepository) SummarizeByCategory(ctx context.Context, rng core.DateRange, category string) ([]core.CategorySummary, error) {
	rows, err := r.queries.GetCategorySums(ctx, GetCategorySumsParams{
		StartDate: rng.Start,
		EndDate:   rng.End,
		Category:  category,
	})
	if err != nil {
		return nil, fmt.Errorf("get category sums: %w", err)
	}

	summaries := make([]core.CategorySummary, len(rows))
	for i, cs := range rows {
		summaries[i] = core.CategorySummary{
			Category: cs.Category,
			Total:    cs.Total,
			Count:    cs.Count,
		}
	}

	return summaries, nil
}
