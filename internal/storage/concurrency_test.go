package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"expensemcp/internal/core"
)

var concurrentRange = core.DateRange{Start: "2024-01-01", End: "2024-12-31"}

// insertConcurrently runs one Insert per goroutine, spreading them over repos,
// and returns every assigned ID and error.
func insertConcurrently(repos []*SQLiteRepository, n int) ([]int64, []error) {
	ids := make([]int64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i], errs[i] = repos[i%len(repos)].Insert(context.Background(), core.NewExpense{
				Date:     "2024-06-15",
				Amount:   1,
				Category: "Food",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	return ids, errs
}

func assertAllCommitted(t *testing.T, repo *SQLiteRepository, ids []int64, errs []error) {
	t.Helper()

	seen := make(map[int64]bool, len(ids))
	for i, err := range errs {
		if err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
		if seen[ids[i]] {
			t.Fatalf("id %d assigned twice", ids[i])
		}
		seen[ids[i]] = true
	}

	sums, err := repo.SummarizeByCategory(context.Background(), concurrentRange, "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("summary = %+v, want one category", sums)
	}
	if sums[0].Count != int64(len(ids)) || sums[0].Total != float64(len(ids)) {
		t.Errorf("summary = %+v, want count and total %d", sums[0], len(ids))
	}
}

func TestConcurrentInsertsAllCommit(t *testing.T) {
	repo := newTestRepo(t)

	ids, errs := insertConcurrently([]*SQLiteRepository{repo}, 50)

	assertAllCommitted(t, repo, ids, errs)
}

func TestConcurrentInsertsAcrossRepositories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")

	repos := make([]*SQLiteRepository, 2)
	for i := range repos {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("new repository %d: %v", i, err)
		}
		t.Cleanup(func() { repo.Close() })
		repos[i] = repo
	}

	ids, errs := insertConcurrently(repos, 50)

	assertAllCommitted(t, repos[0], ids, errs)
}

func TestConnectionsWaitForLocks(t *testing.T) {
	repo := newTestRepo(t)

	var timeout int
	if err := repo.db.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}

	var mode string
	if err := repo.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "delete" {
		t.Errorf("journal_mode = %q, want delete", mode)
	}
}
