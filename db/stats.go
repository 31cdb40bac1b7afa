package db

import (
	"context"
	"fmt"
	"time"
)

// DBStats represents database statistics
type DBStats struct {
	RowCounts   map[string]int64
	DBSizeBytes int64
}

// GetStats returns row counts for every table and the database size
func (db *DB) GetStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{RowCounts: make(map[string]int64, len(tables))}

	for _, table := range tables {
		var count int64
		if err := db.queryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&count); err != nil {
			return nil, storeErr("stats", fmt.Errorf("failed to count %s: %w", table, err))
		}
		stats.RowCounts[table] = count
	}

	// Get database size (page_count * page_size)
	var pageCount, pageSize int64
	if err := db.queryRow(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, storeErr("stats", fmt.Errorf("failed to get page count: %w", err))
	}
	if err := db.queryRow(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, storeErr("stats", fmt.Errorf("failed to get page size: %w", err))
	}
	stats.DBSizeBytes = pageCount * pageSize

	return stats, nil
}

// Vacuum optimizes the database file
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.Exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// ModelUsageStats represents usage statistics for a specific model
type ModelUsageStats struct {
	Model        string
	TotalTokens  int64
	MessageCount int64
}

// DailyUsageStats represents daily usage statistics
type DailyUsageStats struct {
	Date         time.Time
	TotalTokens  int64
	MessageCount int64
}

// UsageStats summarizes assistant output between two instants
type UsageStats struct {
	TotalTokens   int64
	TotalMessages int64
	ModelStats    []*ModelUsageStats
	DailyStats    []*DailyUsageStats
}

// GetUsageStats aggregates assistant messages written in [start, end]
func (r *Repository) GetUsageStats(ctx context.Context, start, end time.Time) (*UsageStats, error) {
	start, end = start.UTC(), end.UTC()
	stats := &UsageStats{}

	err := r.db.queryRow(ctx, `
		SELECT COALESCE(SUM(tokens), 0), COUNT(*)
		FROM messages
		WHERE role = 'assistant' AND created_at >= ? AND created_at <= ?`,
		start, end,
	).Scan(&stats.TotalTokens, &stats.TotalMessages)
	if err != nil {
		return nil, storeErr("usage stats", fmt.Errorf("failed to get total stats: %w", err))
	}

	rows, err := r.db.query(ctx, `
		SELECT COALESCE(model, ''), COALESCE(SUM(tokens), 0), COUNT(*)
		FROM messages
		WHERE role = 'assistant' AND created_at >= ? AND created_at <= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC`,
		start, end,
	)
	if err != nil {
		return nil, storeErr("usage stats", fmt.Errorf("failed to get model stats: %w", err))
	}
	for rows.Next() {
		m := &ModelUsageStats{}
		if err := rows.Scan(&m.Model, &m.TotalTokens, &m.MessageCount); err != nil {
			rows.Close()
			return nil, storeErr("usage stats", fmt.Errorf("failed to scan model stats: %w", err))
		}
		stats.ModelStats = append(stats.ModelStats, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storeErr("usage stats", fmt.Errorf("failed to read model stats: %w", err))
	}

	rows, err = r.db.query(ctx, `
		SELECT substr(created_at, 1, 10) AS day, COALESCE(SUM(tokens), 0), COUNT(*)
		FROM messages
		WHERE role = 'assistant' AND created_at >= ? AND created_at <= ?
		GROUP BY day
		ORDER BY day ASC`,
		start, end,
	)
	if err != nil {
		return nil, storeErr("usage stats", fmt.Errorf("failed to get daily stats: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day string
			d   DailyUsageStats
		)
		if err := rows.Scan(&day, &d.TotalTokens, &d.MessageCount); err != nil {
			return nil, storeErr("usage stats", fmt.Errorf("failed to scan daily stats: %w", err))
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		d.Date = date
		stats.DailyStats = append(stats.DailyStats, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("usage stats", fmt.Errorf("failed to read daily stats: %w", err))
	}
	return stats, nil
}
