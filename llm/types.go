package llm

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// FallbackModel is sent when neither the caller nor the configuration names a
// model; LM Studio answers with whatever model is loaded.
const FallbackModel = "local-model"

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system" or "tool"
	Content string `json:"content"`
}

// ChatOptions overrides the configured request defaults. Nil fields and an
// empty Model fall back to the configuration.
type ChatOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
	Stream      *bool
	Tools       []openai.Tool
}

// Ptr returns a pointer to v, for filling ChatOptions
func Ptr[T any](v T) *T {
	return &v
}

// ResponseKind tags which variant a Response carries
type ResponseKind int

const (
	KindUnary ResponseKind = iota + 1
	KindStream
)

func (k ResponseKind) String() string {
	switch k {
	case KindUnary:
		return "unary"
	case KindStream:
		return "stream"
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// Response is either a complete Result or a Stream of fragments, as told by Kind
type Response struct {
	Kind   ResponseKind
	Model  string // model name that was requested
	Result *Result
	Stream *Stream
}

// Result is a complete, non-streamed reply
type Result struct {
	Content   string
	ToolCalls []openai.ToolCall
	Usage     openai.Usage
	Model     string // model name reported by the server
}

// GatewayError reports a failed exchange with the inference server
type GatewayError struct {
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// cleanTitle cleans up a generated title by removing quotes and extra whitespace
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)

	if r := []rune(title); len(r) > 100 {
		title = string(r[:100]) + "..."
	}

	if title == "" {
		title = "New Chat"
	}

	return title
}
