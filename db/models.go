package db

import "time"

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is accepted by the messages.role CHECK constraint
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Valid reports whether s is accepted by the tasks.status CHECK constraint
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// ToolStatus is the lifecycle state of a tool execution
type ToolStatus string

const (
	ToolStarted ToolStatus = "started"
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// Metadata is an opaque JSON object attached to most entities
type Metadata map[string]interface{}

// Conversation represents a chat conversation
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Metadata  Metadata  `json:"metadata"`
}

// Message represents a single message in a conversation
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	Model          string    `json:"model,omitempty"` // empty is stored as NULL
	CreatedAt      time.Time `json:"created_at"`
	Metadata       Metadata  `json:"metadata"`
}

// Image represents an image uploaded with or generated for a message
type Image struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	FilePath  string    `json:"file_path"`
	FileName  string    `json:"file_name"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	Hash      string    `json:"hash,omitempty"` // unique when set; empty is stored as NULL
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
}

// VisionAnalysis is the result of running a vision model over an image
type VisionAnalysis struct {
	ID              int64                    `json:"id"`
	ImageID         int64                    `json:"image_id"`
	MessageID       *int64                   `json:"message_id,omitempty"`
	Model           string                   `json:"model"`
	Description     string                   `json:"description,omitempty"`
	DetectedObjects []map[string]interface{} `json:"detected_objects"`
	ExtractedText   string                   `json:"extracted_text,omitempty"`
	Tags            []string                 `json:"tags"`
	Confidence      *float64                 `json:"confidence,omitempty"`      // within [0, 1]
	ProcessingTime  *float64                 `json:"processing_time,omitempty"` // ms
	CreatedAt       time.Time                `json:"created_at"`
	Metadata        Metadata                 `json:"metadata"`
}

// ToolExecution records one invocation of a tool
type ToolExecution struct {
	ID           int64                  `json:"id"`
	MessageID    *int64                 `json:"message_id,omitempty"`
	ToolName     string                 `json:"tool_name"`
	Parameters   map[string]interface{} `json:"parameters"`
	Result       string                 `json:"result,omitempty"`
	Status       ToolStatus             `json:"status"`
	DurationMs   *float64               `json:"duration_ms,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Task represents an agent to-do item
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"` // 0-10
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Metadata    Metadata   `json:"metadata"`
}

// ContextItem is one entry of the long-lived key-value store
type ContextItem struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	Category  string      `json:"category,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
