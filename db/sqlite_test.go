package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxa/utils"
)

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	cfg := utils.DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "dir", "fluxa.db"), Timeout: 1}

	store, err := Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, cfg.Path, store.Path())
	for _, table := range Tables() {
		assert.Equal(t, int64(0), rowCount(t, store, table), table)
	}

	var fk int
	require.NoError(t, store.queryRow(context.Background(), "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpen_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := Open(cfg, nil)
	require.NoError(t, err)
	repo, err := NewRepository(ctx, first, nil)
	require.NoError(t, err)
	_, err = repo.CreateConversation(ctx, "kept", nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	repo, err = NewRepository(ctx, second, nil)
	require.NoError(t, err)
	n, err := repo.CountConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(utils.DatabaseConfig{Path: ":memory:", EnableWAL: true, Timeout: 1}, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRepository(context.Background(), store, nil)
	require.NoError(t, err)
}

func TestNewRepository_RejectsDriftedSchema(t *testing.T) {
	ctx := context.Background()
	store, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Exec(ctx, "DROP TABLE context")
	require.NoError(t, err)
	_, err = store.Exec(ctx, "CREATE TABLE context (key TEXT PRIMARY KEY, value TEXT NOT NULL)")
	require.NoError(t, err)

	_, err = NewRepository(ctx, store, nil)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "context is missing column category")
}

func TestClose_IsIdempotent(t *testing.T) {
	store, err := Open(testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = store.Begin(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRepository(t, nil)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO conversations (title) VALUES (?)", "lost"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), rowCount(t, store, "conversations"))
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRepository(t, nil)

	assert.PanicsWithValue(t, "boom", func() {
		_ = store.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO conversations (title) VALUES (?)", "lost"); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Equal(t, int64(0), rowCount(t, store, "conversations"))

	// The connection is usable again after the rollback
	_, err := store.Exec(ctx, "INSERT INTO conversations (title) VALUES (?)", "kept")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowCount(t, store, "conversations"))
}

func TestTx_ExplicitCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRepository(t, nil)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO conversations (title) VALUES (?)", "committed")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO conversations (title) VALUES (?)", "discarded")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, int64(1), rowCount(t, store, "conversations"))
}

func TestExecMany(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRepository(t, nil)

	n, err := store.ExecMany(ctx, "INSERT INTO conversations (title) VALUES (?)", [][]interface{}{{"a"}, {"b"}, {"c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// A failing set undoes the whole batch
	_, err = store.ExecMany(ctx, "INSERT INTO conversations (title) VALUES (?)", [][]interface{}{{"d"}, {nil}})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "conversations.title", se.Constraint)
	assert.Equal(t, int64(3), rowCount(t, store, "conversations"))
}

func TestExec_SyntaxError(t *testing.T) {
	_, store := newTestRepository(t, nil)

	_, err := store.Exec(context.Background(), "INSERT INTO nowhere VALUES (1)")
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Empty(t, se.Constraint)
}

func TestGetStatsAndVacuum(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t, nil)

	conv, err := repo.CreateConversation(ctx, "stats", nil)
	require.NoError(t, err)
	_, err = repo.AddMessage(ctx, conv.ID, RoleUser, "hi", 0, "", nil)
	require.NoError(t, err)

	require.NoError(t, store.Vacuum(ctx))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats.RowCounts, len(Tables()))
	assert.Equal(t, int64(1), stats.RowCounts["conversations"])
	assert.Equal(t, int64(1), stats.RowCounts["messages"])
	assert.Equal(t, int64(0), stats.RowCounts["images"])
	assert.Greater(t, stats.DBSizeBytes, int64(0))
}
