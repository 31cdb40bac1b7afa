package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"fluxa/utils"
)

// probeTimeout bounds the health check and model listing requests
const probeTimeout = 2 * time.Second

// Client talks to an OpenAI-compatible inference server such as LM Studio
type Client struct {
	client     *openai.Client
	probe      *openai.Client
	httpClient *http.Client
	probeHTTP  *http.Client
	config     utils.LMStudioConfig
	logger     *utils.Logger
}

// NewClient creates a client for the server at cfg.BaseURL. The configured
// timeout covers a whole exchange, including reading a streamed body.
func NewClient(cfg utils.LMStudioConfig, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	probeHTTP := &http.Client{Timeout: probeTimeout}

	// LM Studio does not check the API key
	clientConfig := openai.DefaultConfig("")
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = httpClient

	probeConfig := openai.DefaultConfig("")
	probeConfig.BaseURL = cfg.BaseURL
	probeConfig.HTTPClient = probeHTTP

	logger.Info("LLM client initialized: %s", cfg.BaseURL)

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		probe:      openai.NewClientWithConfig(probeConfig),
		httpClient: httpClient,
		probeHTTP:  probeHTTP,
		config:     cfg,
		logger:     logger,
	}
}

// CheckConnection reports whether the server answers GET /models with 200.
// It never returns an error.
func (c *Client) CheckConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		c.logger.Error("Cannot build connection check request: %v", err)
		return false
	}

	resp, err := c.probeHTTP.Do(req)
	if err != nil {
		c.logger.Error("Cannot connect to LM Studio: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// ListModels returns the model identifiers the server advertises, or an
// empty list when they cannot be retrieved.
func (c *Client) ListModels(ctx context.Context) []string {
	list, err := c.probe.ListModels(ctx)
	if err != nil {
		c.logger.Error("Failed to get models: %v", err)
		return []string{}
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	return models
}

// Chat sends messages to the server. Depending on the effective stream flag
// the Response carries either a complete Result or an open Stream that the
// caller must drain or Close.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	req := c.buildRequest(messages, opts)

	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	c.logger.LLMInteraction("request", last,
		"model", req.Model, "temperature", req.Temperature, "max_tokens", req.MaxTokens,
		"stream", req.Stream, "tools_count", len(req.Tools))

	if req.Stream {
		stream, err := c.openStream(ctx, req)
		if err != nil {
			c.logger.Error("Chat request error: %v", err)
			return nil, err
		}
		return &Response{Kind: KindStream, Model: req.Model, Stream: stream}, nil
	}

	result, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Error("Chat request error: %v", err)
		return nil, err
	}
	return &Response{Kind: KindUnary, Model: req.Model, Result: result}, nil
}

// buildRequest merges opts over the configured defaults
func (c *Client) buildRequest(messages []Message, opts ChatOptions) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.config.ModelName
	}
	if model == "" {
		model = FallbackModel
	}

	temperature := c.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.config.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	stream := c.config.Stream
	if opts.Stream != nil {
		stream = *opts.Stream
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if len(opts.Tools) > 0 {
		req.Tools = opts.Tools
		req.ToolChoice = "auto"
	}
	return req
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &GatewayError{Op: "chat", StatusCode: statusCode(err), Err: err}
	}

	result := &Result{Usage: resp.Usage, Model: resp.Model}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.ToolCalls = resp.Choices[0].Message.ToolCalls
	}

	logged := result.Content
	if n := len(result.ToolCalls); n > 0 {
		logged += fmt.Sprintf(" [Tool Calls: %d]", n)
	}
	c.logger.LLMInteraction("response", logged,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens)

	return result, nil
}

// openStream posts a streaming request and hands the event stream body to a
// Stream. Frames are read line by line so one malformed frame does not end
// the reply.
func (c *Client) openStream(ctx context.Context, req openai.ChatCompletionRequest) (*Stream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &GatewayError{Op: "chat", Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &GatewayError{Op: "chat", Err: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Op: "chat", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &GatewayError{Op: "chat", StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	return NewStream(resp.Body, c.logger), nil
}

// statusCode extracts the HTTP status from go-openai errors
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
