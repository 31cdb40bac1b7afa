package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddMessage appends a message to a conversation and bumps the
// conversation's updated_at in the same transaction.
func (r *Repository) AddMessage(ctx context.Context, conversationID int64, role Role, content string, tokens int, model string, metadata Metadata) (*Message, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if tokens < 0 {
		return nil, &ValidationError{Field: "tokens", Reason: "must not be negative"}
	}
	if metadata == nil {
		metadata = Metadata{}
	}
	meta, err := encodeJSON(metadata)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var id int64
	err = r.db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.Exec(ctx,
			"INSERT INTO messages (conversation_id, role, content, tokens, model, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)",
			conversationID, string(role), content, tokens, nullString(model), now, meta,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, conversationID)
		return err
	})
	r.logger.DatabaseOperation("INSERT", "messages", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Model:          model,
		CreatedAt:      now,
		Metadata:       metadata,
	}, nil
}

func (r *Repository) scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	var (
		msg       Message
		role      string
		tokens    sql.NullInt64
		model     sql.NullString
		createdAt sql.NullTime
		meta      sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &tokens, &model, &createdAt, &meta); err != nil {
		return nil, err
	}
	msg.Role = Role(role)
	msg.Tokens = int(tokens.Int64)
	msg.CreatedAt = createdAt.Time
	msg.Model = model.String
	msg.Metadata = r.decodeMetadata("messages", msg.ID, meta)
	return &msg, nil
}

// GetMessage retrieves a message by ID
func (r *Repository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	msg, err := r.scanMessage(r.db.queryRow(ctx,
		"SELECT "+messageColumns.String()+" FROM messages WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get message", err)
	}
	return msg, nil
}

// GetMessages retrieves every message of a conversation in the order they
// were written. Callers rebuild the model context from this order.
func (r *Repository) GetMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+messageColumns.String()+" FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC",
		conversationID,
	)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := r.scanMessage(rows)
		if err != nil {
			return nil, storeErr("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list messages", err)
	}

	return messages, nil
}

// CountMessages returns the number of messages in a conversation
func (r *Repository) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	var count int64
	err := r.db.queryRow(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&count)
	if err != nil {
		return 0, storeErr("count messages", err)
	}
	return count, nil
}
