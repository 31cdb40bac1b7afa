package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fluxa/utils"
)

// columns is the ordered column list an entity is decoded from. Every SELECT
// names these columns explicitly, and NewRepository checks them against the
// live schema so a drifted table fails at startup instead of mis-scanning.
type columns []string

func (c columns) String() string {
	return strings.Join(c, ", ")
}

var (
	conversationColumns = columns{"id", "title", "created_at", "updated_at", "metadata"}
	messageColumns      = columns{"id", "conversation_id", "role", "content", "tokens", "model", "created_at", "metadata"}
	imageColumns        = columns{"id", "message_id", "file_path", "file_name", "file_size", "mime_type", "width", "height", "hash", "created_at", "metadata"}
	visionColumns       = columns{"id", "image_id", "message_id", "model", "description", "detected_objects", "extracted_text", "tags", "confidence", "processing_time", "created_at", "metadata"}
	toolColumns         = columns{"id", "message_id", "tool_name", "parameters", "result", "status", "duration_ms", "error_message", "created_at"}
	taskColumns         = columns{"id", "title", "description", "status", "priority", "created_at", "updated_at", "completed_at", "metadata"}
	contextColumns      = columns{"key", "value", "category", "created_at", "updated_at"}
)

var entityColumns = map[string]columns{
	"conversations":   conversationColumns,
	"messages":        messageColumns,
	"images":          imageColumns,
	"vision_analyses": visionColumns,
	"tool_executions": toolColumns,
	"tasks":           taskColumns,
	"context":         contextColumns,
}

// Repository maps domain entities to and from the store's rows
type Repository struct {
	db     *DB
	logger *utils.Logger
	now    func() time.Time
}

// NewRepository binds a repository to an open store after verifying that
// every table carries the columns the repository decodes.
func NewRepository(ctx context.Context, db *DB, logger *utils.Logger) (*Repository, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	r := &Repository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := r.validateSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) validateSchema(ctx context.Context) error {
	for _, table := range tables {
		want := entityColumns[table]

		rows, err := r.db.query(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
		if err != nil {
			return storeErr("validate schema", err)
		}
		have := make(map[string]bool)
		for rows.Next() {
			var (
				cid        int
				name, kind string
				notNull    int
				dflt       sql.NullString
				pk         int
			)
			if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
				rows.Close()
				return storeErr("validate schema", err)
			}
			have[name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return storeErr("validate schema", err)
		}

		if len(have) == 0 {
			return storeErr("validate schema", fmt.Errorf("table %s does not exist", table))
		}
		for _, col := range want {
			if !have[col] {
				return storeErr("validate schema", fmt.Errorf("table %s is missing column %s", table, col))
			}
		}
	}
	return nil
}

// decodeState tells how a stored JSON field was turned back into a value
type decodeState int

const (
	decodeEmpty    decodeState = iota // NULL or blank column
	decoded                           // parsed successfully
	decodeFallback                    // corrupt; the zero value was substituted
)

// encodeJSON renders v for a TEXT column; nil stays NULL
func encodeJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Field: "json", Reason: err.Error()}
	}
	return string(data), nil
}

// decodeJSON parses a stored JSON field keeping numbers as json.Number so
// integers survive the round trip exactly.
func decodeJSON[T any](raw sql.NullString) (T, decodeState) {
	var v T
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return v, decodeEmpty
	}

	dec := json.NewDecoder(strings.NewReader(raw.String))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		var zero T
		return zero, decodeFallback
	}
	return v, decoded
}

// decodeField decodes a JSON column and logs a warning when the stored value
// is corrupt. It never fails.
func decodeField[T any](r *Repository, table, column string, key interface{}, raw sql.NullString) T {
	v, state := decodeJSON[T](raw)
	if state == decodeFallback {
		r.logger.With("table", table, "column", column, "key", key).
			Warn("Unable to decode stored JSON, using empty value: %s", utils.Truncate(raw.String, 200))
	}
	return v
}

func (r *Repository) decodeMetadata(table string, key interface{}, raw sql.NullString) Metadata {
	m := decodeField[Metadata](r, table, "metadata", key, raw)
	if m == nil {
		m = Metadata{}
	}
	return m
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// insert runs a single INSERT in its own transaction and returns the new row id
func (r *Repository) insert(ctx context.Context, table, query string, args ...interface{}) (int64, error) {
	var id int64
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	r.logger.DatabaseOperation("INSERT", table, err)
	if err != nil {
		return 0, storeErr("insert into "+table, err)
	}
	return id, nil
}
