package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fluxa/utils"
)

func testConfig(t *testing.T) utils.DatabaseConfig {
	t.Helper()
	return utils.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "fluxa.db"),
		EnableWAL: true,
		Timeout:   5,
	}
}

// newTestRepository opens a fresh database file and a repository whose clock
// advances one second per call, so ordering never depends on wall time.
func newTestRepository(t *testing.T, logger *utils.Logger) (*Repository, *DB) {
	t.Helper()

	store, err := Open(testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo, err := NewRepository(context.Background(), store, logger)
	require.NoError(t, err)
	repo.now = steppingClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), time.Second)

	return repo, store
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var (
		mu  sync.Mutex
		now = start
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func rowCount(t *testing.T, store *DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.queryRow(context.Background(), "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n))
	return n
}
