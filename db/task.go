package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateTask creates a pending task. Priority must be within 0-10.
func (r *Repository) CreateTask(ctx context.Context, title, description string, priority int, metadata Metadata) (*Task, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if priority < 0 || priority > 10 {
		return nil, &ValidationError{Field: "priority", Reason: fmt.Sprintf("%d is outside [0, 10]", priority)}
	}
	if metadata == nil {
		metadata = Metadata{}
	}
	meta, err := encodeJSON(metadata)
	if err != nil {
		return nil, err
	}

	now := r.now()
	id, err := r.insert(ctx, "tasks",
		"INSERT INTO tasks (title, description, status, priority, created_at, updated_at, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)",
		title, nullString(description), string(TaskPending), priority, now, now, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return &Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      TaskPending,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    metadata,
	}, nil
}

// UpdateTaskStatus moves a task to a new status. completed_at is set when the
// task becomes completed and cleared otherwise.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown task status %q", status)}
	}

	now := r.now()
	var completedAt sql.NullTime
	if status == TaskCompleted {
		completedAt = sql.NullTime{Time: now, Valid: true}
	}

	res, err := r.db.Exec(ctx,
		"UPDATE tasks SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?",
		string(status), now, completedAt, id,
	)
	r.logger.DatabaseOperation("UPDATE", "tasks", err)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	var (
		t           Task
		description sql.NullString
		status      string
		priority    sql.NullInt64
		created     sql.NullTime
		updated     sql.NullTime
		completedAt sql.NullTime
		meta        sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &description, &status, &priority, &created, &updated, &completedAt, &meta)
	if err != nil {
		return nil, err
	}
	t.Priority = int(priority.Int64)
	t.CreatedAt, t.UpdatedAt = created.Time, updated.Time
	t.Description = description.String
	t.Status = TaskStatus(status)
	t.CompletedAt = timePtr(completedAt)
	t.Metadata = r.decodeMetadata("tasks", t.ID, meta)
	return &t, nil
}

// GetTask retrieves a task by ID
func (r *Repository) GetTask(ctx context.Context, id int64) (*Task, error) {
	t, err := r.scanTask(r.db.queryRow(ctx,
		"SELECT "+taskColumns.String()+" FROM tasks WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return t, nil
}

// ListTasks lists tasks, optionally filtered by status, highest priority
// first and newest first among equal priorities. An empty status lists all.
func (r *Repository) ListTasks(ctx context.Context, status TaskStatus) ([]*Task, error) {
	query := "SELECT " + taskColumns.String() + " FROM tasks"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY priority DESC, created_at DESC, id DESC"

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}
