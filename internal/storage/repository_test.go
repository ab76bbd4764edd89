package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"expensemcp/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "expenses.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustInsert(t *testing.T, repo *SQLiteRepository, e core.NewExpense) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("insert %+v: %v", e, err)
	}
	return id
}

var january = core.DateRange{Start: "2024-01-01", End: "2024-01-31"}

func TestInsertThenListPreservesFields(t *testing.T) {
	repo := newTestRepo(t)
	in := core.NewExpense{
		Date:        "2024-01-05",
		Amount:      12.50,
		Category:    "Food",
		Subcategory: "Groceries",
		Note:        "weekly shop",
	}
	id := mustInsert(t, repo, in)

	got, err := repo.ListInRange(context.Background(), january)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	want := core.Expense{
		ID:          id,
		Date:        in.Date,
		Amount:      in.Amount,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Note:        in.Note,
	}
	if got[0] != want {
		t.Fatalf("row = %+v, want %+v", got[0], want)
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	repo := newTestRepo(t)
	first := mustInsert(t, repo, core.NewExpense{Date: "2024-01-05", Amount: 1, Category: "Food"})
	second := mustInsert(t, repo, core.NewExpense{Date: "2024-01-05", Amount: 2, Category: "Food"})
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}
}

func TestOptionalFieldsDefaultToEmpty(t *testing.T) {
	repo := newTestRepo(t)
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-05", Amount: 3, Category: "Other"})

	got, err := repo.ListInRange(context.Background(), january)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Subcategory != "" || got[0].Note != "" {
		t.Fatalf("expected empty optional fields, got %+v", got[0])
	}
}

func TestListOutsideRangeIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-05", Amount: 12.5, Category: "Food"})

	got, err := repo.ListInRange(context.Background(), core.DateRange{Start: "2024-02-01", End: "2024-02-29"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListBoundsAreInclusiveAndOrderedDescending(t *testing.T) {
	repo := newTestRepo(t)
	for _, d := range []string{"2024-01-01", "2024-01-15", "2024-01-31", "2024-02-01"} {
		mustInsert(t, repo, core.NewExpense{Date: d, Amount: 1, Category: "Food"})
	}

	got, err := repo.ListInRange(context.Background(), january)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2024-01-31", "2024-01-15", "2024-01-01"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, d := range want {
		if got[i].Date != d {
			t.Fatalf("row %d date = %s, want %s", i, got[i].Date, d)
		}
	}
}

func TestMalformedDateComparesLexically(t *testing.T) {
	repo := newTestRepo(t)
	// Not a calendar date, but it still sorts inside January.
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-99", Amount: 1, Category: "Food"})
	mustInsert(t, repo, core.NewExpense{Date: "05/01/2024", Amount: 1, Category: "Food"})

	got, err := repo.ListInRange(context.Background(), core.DateRange{Start: "2024-01-01", End: "2024-01-99"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2024-01-99" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestSummarizeGroupsAcrossCategories(t *testing.T) {
	repo := newTestRepo(t)
	inserts := []core.NewExpense{
		{Date: "2024-01-02", Amount: 10, Category: "Food"},
		{Date: "2024-01-03", Amount: 5.25, Category: "Food"},
		{Date: "2024-01-04", Amount: 40, Category: "Transport"},
		{Date: "2024-01-20", Amount: 2.75, Category: "Food"},
		{Date: "2024-03-01", Amount: 100, Category: "Food"}, // outside the range
	}
	for _, e := range inserts {
		mustInsert(t, repo, e)
	}

	got, err := repo.SummarizeByCategory(context.Background(), january, "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %+v", got)
	}
	if got[0].Category != "Transport" || got[0].Total != 40 || got[0].Count != 1 {
		t.Fatalf("unexpected first group: %+v", got[0])
	}
	if got[1].Category != "Food" || got[1].Total != 18 || got[1].Count != 3 {
		t.Fatalf("unexpected second group: %+v", got[1])
	}
	if got[0].Count+got[1].Count != 4 {
		t.Fatalf("counts do not add up to the 4 in-range inserts: %+v", got)
	}
}

func TestSummarizeWithCategoryFilter(t *testing.T) {
	repo := newTestRepo(t)
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-02", Amount: 10, Category: "Food"})
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-04", Amount: 40, Category: "Transport"})

	got, err := repo.SummarizeByCategory(context.Background(), january, "Food")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(got) != 1 || got[0].Category != "Food" {
		t.Fatalf("expected only Food, got %+v", got)
	}

	got, err = repo.SummarizeByCategory(context.Background(), january, "Health")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no groups for unused category, got %+v", got)
	}
}

func TestWorkedExample(t *testing.T) {
	repo := newTestRepo(t)
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-05", Amount: 12.50, Category: "Food"})
	mustInsert(t, repo, core.NewExpense{Date: "2024-01-06", Amount: 30.00, Category: "Transport"})

	list, err := repo.ListInRange(context.Background(), january)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Date != "2024-01-06" || list[1].Date != "2024-01-05" {
		t.Fatalf("unexpected list order: %+v", list)
	}

	summary, err := repo.SummarizeByCategory(context.Background(), january, "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := []core.CategorySummary{
		{Category: "Transport", Total: 30.00, Count: 1},
		{Category: "Food", Total: 12.50, Count: 1},
	}
	if len(summary) != len(want) {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
	for i := range want {
		if summary[i] != want[i] {
			t.Fatalf("summary[%d] = %+v, want %+v", i, summary[i], want[i])
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "expenses.db")
	for i := 0; i < 3; i++ {
		if err := Init(dbPath); err != nil {
			t.Fatalf("init #%d: %v", i+1, err)
		}
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'expenses'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 1 {
		t.Fatalf("expected exactly one expenses table, got %d", tables)
	}
}

func TestInitAdoptsExistingTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "expenses.db")
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE expenses(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT NOT NULL,
		subcategory TEXT DEFAULT '',
		note TEXT DEFAULT ''
	)`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO expenses(date, amount, category) VALUES ('2024-01-10', 9.99, 'Other')`); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}
	db.Close()

	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("new repository over existing file: %v", err)
	}
	defer repo.Close()

	got, err := repo.ListInRange(context.Background(), january)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Category != "Other" {
		t.Fatalf("legacy row not visible: %+v", got)
	}
}

func TestInitFailsOnUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	// A regular file where a directory is expected makes MkdirAll fail regardless of privileges.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	if err := Init(filepath.Join(blocker, "sub", "expenses.db")); err == nil {
		t.Fatal("expected init to fail when the directory cannot be created")
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	repo := newTestRepo(t)
	repo.Close()

	if _, err := repo.Insert(context.Background(), core.NewExpense{Date: "2024-01-01", Amount: 1, Category: "Food"}); err == nil {
		t.Fatal("expected insert on closed repository to fail")
	}
	if _, err := repo.ListInRange(context.Background(), january); err == nil {
		t.Fatal("expected list on closed repository to fail")
	}
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on closed repository to fail")
	}
}
