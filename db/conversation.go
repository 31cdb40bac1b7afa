package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateConversation creates a new conversation
func (r *Repository) CreateConversation(ctx context.Context, title string, metadata Metadata) (*Conversation, error) {
	if metadata == nil {
		metadata = Metadata{}
	}
	meta, err := encodeJSON(metadata)
	if err != nil {
		return nil, err
	}

	now := r.now()
	id, err := r.insert(ctx, "conversations",
		"INSERT INTO conversations (title, created_at, updated_at, metadata) VALUES (?, ?, ?, ?)",
		title, now, now, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}, nil
}

func (r *Repository) scanConversation(row interface{ Scan(...interface{}) error }) (*Conversation, error) {
	var (
		conv             Conversation
		created, updated sql.NullTime
		meta             sql.NullString
	)
	if err := row.Scan(&conv.ID, &conv.Title, &created, &updated, &meta); err != nil {
		return nil, err
	}
	conv.CreatedAt, conv.UpdatedAt = created.Time, updated.Time
	conv.Metadata = r.decodeMetadata("conversations", conv.ID, meta)
	return &conv, nil
}

// GetConversation retrieves a conversation by ID
func (r *Repository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	conv, err := r.scanConversation(r.db.queryRow(ctx,
		"SELECT "+conversationColumns.String()+" FROM conversations WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return conv, nil
}

// ListConversations retrieves conversations, most recently active first
func (r *Repository) ListConversations(ctx context.Context, limit, offset int) ([]*Conversation, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+conversationColumns.String()+" FROM conversations ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		conv, err := r.scanConversation(rows)
		if err != nil {
			return nil, storeErr("scan conversation", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conversations", err)
	}

	return conversations, nil
}

// UpdateConversationTitle renames a conversation and bumps updated_at
func (r *Repository) UpdateConversationTitle(ctx context.Context, id int64, title string) error {
	res, err := r.db.Exec(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, r.now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteConversation deletes a conversation; messages, images, analyses and
// tool executions go with it through ON DELETE CASCADE. It reports whether a
// row was removed.
func (r *Repository) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.Exec(ctx, "DELETE FROM conversations WHERE id = ?", id)
	r.logger.DatabaseOperation("DELETE", "conversations", err)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("delete conversation", err)
	}
	return n > 0, nil
}

// CountConversations returns the total number of conversations
func (r *Repository) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.queryRow(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return 0, storeErr("count conversations", err)
	}
	return count, nil
}
