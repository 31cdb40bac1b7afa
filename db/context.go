package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const upsertContext = `
	INSERT INTO context (key, value, category, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		category = excluded.category,
		updated_at = excluded.updated_at`

// SetContext stores value under key, replacing any previous value and
// category. created_at is kept from the first write; updated_at is refreshed.
func (r *Repository) SetContext(ctx context.Context, key string, value interface{}, category string) (*ContextItem, error) {
	if key == "" {
		return nil, &ValidationError{Field: "key", Reason: "is required"}
	}
	encoded, err := encodeJSON(value)
	if err != nil {
		return nil, err
	}
	if encoded == nil {
		encoded = "null"
	}

	now := r.now()
	var createdAt sql.NullTime
	err = r.db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, upsertContext, key, encoded, nullString(category), now, now); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, "SELECT created_at FROM context WHERE key = ?", key).Scan(&createdAt)
		return storeErr("read context", err)
	})
	r.logger.DatabaseOperation("UPSERT", "context", err)
	if err != nil {
		return nil, fmt.Errorf("failed to set context: %w", err)
	}

	return &ContextItem{
		Key:       key,
		Value:     value,
		Category:  category,
		CreatedAt: createdAt.Time,
		UpdatedAt: now,
	}, nil
}

// SetContextMany upserts several keys under one category in a single transaction
func (r *Repository) SetContextMany(ctx context.Context, values map[string]interface{}, category string) error {
	now := r.now()
	argSets := make([][]interface{}, 0, len(values))
	for key, value := range values {
		if key == "" {
			return &ValidationError{Field: "key", Reason: "is required"}
		}
		encoded, err := encodeJSON(value)
		if err != nil {
			return err
		}
		if encoded == nil {
			encoded = "null"
		}
		argSets = append(argSets, []interface{}{key, encoded, nullString(category), now, now})
	}

	_, err := r.db.ExecMany(ctx, upsertContext, argSets)
	r.logger.DatabaseOperation("UPSERT", "context", err)
	if err != nil {
		return fmt.Errorf("failed to set context: %w", err)
	}
	return nil
}

func (r *Repository) scanContext(row interface{ Scan(...interface{}) error }) (*ContextItem, error) {
	var (
		item             ContextItem
		value            sql.NullString
		category         sql.NullString
		created, updated sql.NullTime
	)
	if err := row.Scan(&item.Key, &value, &category, &created, &updated); err != nil {
		return nil, err
	}
	item.CreatedAt, item.UpdatedAt = created.Time, updated.Time
	item.Value = decodeField[interface{}](r, "context", "value", item.Key, value)
	item.Category = category.String
	return &item, nil
}

// GetContext retrieves the entry stored under key
func (r *Repository) GetContext(ctx context.Context, key string) (*ContextItem, error) {
	item, err := r.scanContext(r.db.queryRow(ctx,
		"SELECT "+contextColumns.String()+" FROM context WHERE key = ?", key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get context", err)
	}
	return item, nil
}

// ListContext lists entries ordered by key, optionally restricted to a category
func (r *Repository) ListContext(ctx context.Context, category string) ([]*ContextItem, error) {
	query := "SELECT " + contextColumns.String() + " FROM context"
	var args []interface{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY key ASC"

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list context", err)
	}
	defer rows.Close()

	items := []*ContextItem{}
	for rows.Next() {
		item, err := r.scanContext(rows)
		if err != nil {
			return nil, storeErr("scan context", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list context", err)
	}
	return items, nil
}

// DeleteContext removes key and reports whether it existed
func (r *Repository) DeleteContext(ctx context.Context, key string) (bool, error) {
	res, err := r.db.Exec(ctx, "DELETE FROM context WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("failed to delete context: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("delete context", err)
	}
	return n > 0, nil
}
