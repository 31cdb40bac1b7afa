package llm

import (
	"context"
	"fmt"
)

const titlePrompt = "You are a helpful assistant that generates short, concise titles for conversations. " +
	"Generate a title in the same language as the conversation. The title should be 3-8 words, " +
	"descriptive, and capture the main topic. Only output the title, nothing else."

// GenerateTitle asks the model for a short title summarizing the first few messages
func (c *Client) GenerateTitle(ctx context.Context, messages []Message) (string, error) {
	prompt := []Message{{Role: "system", Content: titlePrompt}}

	// Only the opening of the conversation is needed
	maxMessages := 4
	for i, msg := range messages {
		if i >= maxMessages {
			break
		}
		prompt = append(prompt, msg)
	}

	prompt = append(prompt, Message{
		Role:    "user",
		Content: "Based on the above conversation, generate a short title (3-8 words):",
	})

	resp, err := c.Chat(ctx, prompt, ChatOptions{Stream: Ptr(false), MaxTokens: Ptr(32)})
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	return cleanTitle(resp.Result.Content), nil
}
