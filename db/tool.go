package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StartToolExecution records a tool invocation in the started state
func (r *Repository) StartToolExecution(ctx context.Context, messageID *int64, toolName string, parameters map[string]interface{}) (*ToolExecution, error) {
	if toolName == "" {
		return nil, &ValidationError{Field: "tool_name", Reason: "is required"}
	}
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	params, err := encodeJSON(parameters)
	if err != nil {
		return nil, err
	}

	now := r.now()
	id, err := r.insert(ctx, "tool_executions",
		"INSERT INTO tool_executions (message_id, tool_name, parameters, status, created_at) VALUES (?, ?, ?, ?, ?)",
		nullInt64Ptr(messageID), toolName, params, string(ToolStarted), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record tool execution: %w", err)
	}

	return &ToolExecution{
		ID:         id,
		MessageID:  messageID,
		ToolName:   toolName,
		Parameters: parameters,
		Status:     ToolStarted,
		CreatedAt:  now,
	}, nil
}

// FinishToolExecution moves a started execution to success, or to error when
// runErr is non-nil.
func (r *Repository) FinishToolExecution(ctx context.Context, id int64, result string, duration time.Duration, runErr error) error {
	status := ToolSuccess
	var errMsg string
	if runErr != nil {
		status = ToolError
		errMsg = runErr.Error()
	}
	ms := float64(duration) / float64(time.Millisecond)

	res, err := r.db.Exec(ctx,
		"UPDATE tool_executions SET status = ?, result = ?, duration_ms = ?, error_message = ? WHERE id = ?",
		string(status), nullString(result), ms, nullString(errMsg), id,
	)
	r.logger.DatabaseOperation("UPDATE", "tool_executions", err)
	if err != nil {
		return fmt.Errorf("failed to finish tool execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tool execution %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) scanToolExecution(row interface{ Scan(...interface{}) error }) (*ToolExecution, error) {
	var (
		t                           ToolExecution
		messageID                   sql.NullInt64
		params, result, status, msg sql.NullString
		duration                    sql.NullFloat64
		createdAt                   sql.NullTime
	)
	err := row.Scan(&t.ID, &messageID, &t.ToolName, &params, &result, &status, &duration, &msg, &createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt.Time
	t.MessageID = int64Ptr(messageID)
	t.Parameters = decodeField[map[string]interface{}](r, "tool_executions", "parameters", t.ID, params)
	if t.Parameters == nil {
		t.Parameters = map[string]interface{}{}
	}
	t.Result = result.String
	t.Status = ToolStatus(status.String)
	t.DurationMs = floatPtr(duration)
	t.ErrorMessage = msg.String
	return &t, nil
}

// GetToolExecution retrieves a tool execution by ID
func (r *Repository) GetToolExecution(ctx context.Context, id int64) (*ToolExecution, error) {
	t, err := r.scanToolExecution(r.db.queryRow(ctx,
		"SELECT "+toolColumns.String()+" FROM tool_executions WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tool execution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get tool execution", err)
	}
	return t, nil
}

// ListToolExecutions retrieves the executions triggered by a message, oldest first
func (r *Repository) ListToolExecutions(ctx context.Context, messageID int64) ([]*ToolExecution, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+toolColumns.String()+" FROM tool_executions WHERE message_id = ? ORDER BY created_at ASC, id ASC",
		messageID,
	)
	if err != nil {
		return nil, storeErr("list tool executions", err)
	}
	defer rows.Close()

	executions := []*ToolExecution{}
	for rows.Next() {
		t, err := r.scanToolExecution(rows)
		if err != nil {
			return nil, storeErr("scan tool execution", err)
		}
		executions = append(executions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tool executions", err)
	}
	return executions, nil
}
