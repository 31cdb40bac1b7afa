package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// ConversationExport represents a conversation export structure
type ConversationExport struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  Metadata          `json:"metadata"`
	Messages  []*Message        `json:"messages"`
	Export    map[string]string `json:"export"`
}

// ExportConversation writes one conversation with its messages to w
func (r *Repository) ExportConversation(ctx context.Context, conversationID int64, format ExportFormat, appName string, w io.Writer) error {
	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}

	messages, err := r.GetMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	switch format {
	case FormatJSON:
		return exportJSON(conv, messages, appName, w)
	case FormatMarkdown:
		return exportMarkdown(conv, messages, appName, w)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func exportJSON(conv *Conversation, messages []*Message, appName string, w io.Writer) error {
	export := ConversationExport{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Metadata:  conv.Metadata,
		Messages:  messages,
		Export: map[string]string{
			"export_version": "1.0",
			"export_date":    time.Now().Format(time.RFC3339),
			"app_name":       appName,
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func exportMarkdown(conv *Conversation, messages []*Message, appName string, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))
	sb.WriteString(fmt.Sprintf("**Created**: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Updated**: %s\n\n", conv.UpdatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString("---\n\n")

	for i, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			sb.WriteString("## Assistant\n\n")
		case RoleSystem:
			sb.WriteString("## System\n\n")
		case RoleTool:
			sb.WriteString("## Tool\n\n")
		default:
			sb.WriteString("## User\n\n")
		}

		if msg.Model != "" {
			sb.WriteString(fmt.Sprintf("*%s*\n\n", msg.Model))
		}

		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported: %s by %s*\n", time.Now().Format("2006-01-02 15:04:05"), appName))

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
