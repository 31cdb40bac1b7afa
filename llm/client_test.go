package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fluxa/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLMStudioConfig(baseURL string) utils.LMStudioConfig {
	cfg := utils.DefaultConfig().LMStudio
	cfg.BaseURL = baseURL
	cfg.ModelName = ""
	return cfg
}

// fakeServer serves an OpenAI-compatible API and records the last chat request body
type fakeServer struct {
	*httptest.Server
	lastRequest map[string]interface{}
}

func newFakeServer(t *testing.T, chat http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		fs.lastRequest = map[string]interface{}{}
		require.NoError(t, json.Unmarshal(body, &fs.lastRequest))
		chat(w, r)
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen2.5-7b","object":"model"},{"id":"llava","object":"model"}]}`)
	})
	fs.Server = httptest.NewServer(mux)
	return fs
}

func (fs *fakeServer) baseURL() string {
	return fs.URL + "/v1"
}

func unaryReply(content string, toolCalls int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg := map[string]interface{}{"role": "assistant", "content": content}
		if toolCalls > 0 {
			calls := make([]map[string]interface{}, 0, toolCalls)
			for i := 0; i < toolCalls; i++ {
				calls = append(calls, map[string]interface{}{
					"id":       fmt.Sprintf("call_%d", i),
					"type":     "function",
					"function": map[string]interface{}{"name": "lookup", "arguments": "{}"},
				})
			}
			msg["tool_calls"] = calls
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "qwen2.5-7b",
			"choices": []map[string]interface{}{{"index": 0, "message": msg, "finish_reason": "stop"}},
			"usage":   map[string]interface{}{"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13},
		})
	}
}

func streamReply(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

var ping = []Message{{Role: "user", Content: "Ping"}}

func TestChat_Unary(t *testing.T) {
	srv := newFakeServer(t, unaryReply("Pong", 0))
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	resp, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(false)})
	require.NoError(t, err)

	require.Equal(t, KindUnary, resp.Kind)
	assert.Nil(t, resp.Stream)
	assert.Equal(t, "Pong", resp.Result.Content)
	assert.Empty(t, resp.Result.ToolCalls)
	assert.Equal(t, 1, resp.Result.Usage.CompletionTokens)
	assert.Equal(t, "qwen2.5-7b", resp.Result.Model)
	assert.Equal(t, FallbackModel, resp.Model)

	req := srv.lastRequest
	assert.Equal(t, FallbackModel, req["model"])
	assert.NotEqual(t, true, req["stream"])
	assert.InDelta(t, 0.7, req["temperature"], 1e-6)
	assert.Equal(t, float64(2048), req["max_tokens"])
	assert.Equal(t, []interface{}{map[string]interface{}{"role": "user", "content": "Ping"}}, req["messages"])
	assert.NotContains(t, req, "tools")
	assert.NotContains(t, req, "tool_choice")
}

func TestChat_UnaryCountsToolCalls(t *testing.T) {
	srv := newFakeServer(t, unaryReply("", 2))
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	tools := []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:       "lookup",
			Parameters: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}}
	resp, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(false), Tools: tools})
	require.NoError(t, err)

	assert.Len(t, resp.Result.ToolCalls, 2)
	assert.Equal(t, "lookup", resp.Result.ToolCalls[0].Function.Name)
	assert.Equal(t, "auto", srv.lastRequest["tool_choice"])
	assert.Len(t, srv.lastRequest["tools"], 1)
}

func TestChat_OptionsOverrideConfig(t *testing.T) {
	srv := newFakeServer(t, unaryReply("ok", 0))
	defer srv.Close()

	cfg := testLMStudioConfig(srv.baseURL())
	cfg.ModelName = "configured"

	client := NewClient(cfg, nil)
	_, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "configured", srv.lastRequest["model"])

	_, err = client.Chat(context.Background(), ping, ChatOptions{
		Model:       "explicit",
		Temperature: Ptr(0.25),
		MaxTokens:   Ptr(64),
		Stream:      Ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit", srv.lastRequest["model"])
	assert.InDelta(t, 0.25, srv.lastRequest["temperature"], 1e-6)
	assert.Equal(t, float64(64), srv.lastRequest["max_tokens"])
}

func TestChat_UnaryHTTPError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"no model loaded","type":"server_error"}}`)
	})
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	_, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(false)})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusInternalServerError, gwErr.StatusCode)
	assert.Contains(t, err.Error(), "no model loaded")
}

func TestChat_Stream(t *testing.T) {
	srv := newFakeServer(t, streamReply(
		deltaFrame("Hel"),
		"data: {malformed\n\n",
		"\n",
		deltaFrame("lo"),
		doneFrame,
	))
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	resp, err := client.Chat(context.Background(), ping, ChatOptions{})
	require.NoError(t, err)
	require.Equal(t, KindStream, resp.Kind, "configured default is streaming")
	defer resp.Stream.Close()

	fragments, err := drain(t, resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hello", resp.Stream.Content())
	assert.Equal(t, true, srv.lastRequest["stream"])
}

func TestChat_StreamHTTPError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	_, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(true)})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusServiceUnavailable, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "model is loading")
}

func TestChat_ConnectionRefused(t *testing.T) {
	srv := newFakeServer(t, unaryReply("unused", 0))
	base := srv.baseURL()
	srv.Close()

	client := NewClient(testLMStudioConfig(base), nil)
	for _, stream := range []bool{false, true} {
		_, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(stream)})
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr, "stream=%v", stream)
		assert.Zero(t, gwErr.StatusCode)
	}
}

func TestChat_StreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaFrame("Hel"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer srv.Close()
	defer close(release)

	cfg := testLMStudioConfig(srv.baseURL())
	cfg.Timeout = 1

	client := NewClient(cfg, nil)
	resp, err := client.Chat(context.Background(), ping, ChatOptions{Stream: Ptr(true)})
	require.NoError(t, err)
	defer resp.Stream.Close()

	f, err := resp.Stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hel", f)

	start := time.Now()
	_, err = resp.Stream.Recv()
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestChat_StreamCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaFrame("Hel"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	resp, err := client.Chat(ctx, ping, ChatOptions{Stream: Ptr(true)})
	require.NoError(t, err)
	defer resp.Stream.Close()

	_, err = resp.Stream.Recv()
	require.NoError(t, err)

	cancel()
	_, err = resp.Stream.Recv()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestChat_LogsTruncatedRequest(t *testing.T) {
	srv := newFakeServer(t, unaryReply("ok", 0))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	client := NewClient(testLMStudioConfig(srv.baseURL()), utils.NewLoggerFromZap(zap.New(core)))

	long := strings.Repeat("q", 250)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: long}}, ChatOptions{Stream: Ptr(false)})
	require.NoError(t, err)

	requests := logs.FilterMessageSnippet("LLM REQUEST").All()
	require.Len(t, requests, 1)
	assert.Equal(t, "LLM REQUEST: "+strings.Repeat("q", 200)+"...", requests[0].Message)
	assert.Equal(t, FallbackModel, requests[0].ContextMap()["model"])
	assert.Equal(t, false, requests[0].ContextMap()["stream"])

	responses := logs.FilterMessageSnippet("LLM RESPONSE").All()
	require.Len(t, responses, 1)
	assert.Equal(t, int64(13), responses[0].ContextMap()["total_tokens"])
}

func TestCheckConnection(t *testing.T) {
	srv := newFakeServer(t, unaryReply("", 0))
	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	assert.True(t, client.CheckConnection(context.Background()))

	srv.Close()
	assert.False(t, client.CheckConnection(context.Background()))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	client = NewClient(testLMStudioConfig(failing.URL+"/v1/"), nil)
	assert.False(t, client.CheckConnection(context.Background()))
}

func TestListModels(t *testing.T) {
	srv := newFakeServer(t, unaryReply("", 0))
	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	assert.Equal(t, []string{"qwen2.5-7b", "llava"}, client.ListModels(context.Background()))

	srv.Close()
	models := client.ListModels(context.Background())
	assert.NotNil(t, models)
	assert.Empty(t, models)
}

func TestGenerateTitle(t *testing.T) {
	srv := newFakeServer(t, unaryReply(`  "Weekend in Lisbon"  `, 0))
	defer srv.Close()

	client := NewClient(testLMStudioConfig(srv.baseURL()), nil)
	title, err := client.GenerateTitle(context.Background(), []Message{
		{Role: "user", Content: "Plan a weekend in Lisbon"},
		{Role: "assistant", Content: "Sure"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Weekend in Lisbon", title)

	msgs := srv.lastRequest["messages"].([]interface{})
	assert.Len(t, msgs, 4)
	assert.NotEqual(t, true, srv.lastRequest["stream"])
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "New Chat", cleanTitle(`  ""  `))
	assert.Equal(t, "Hello", cleanTitle(`'Hello'`))
	assert.Equal(t, strings.Repeat("t", 100)+"...", cleanTitle(strings.Repeat("t", 150)))
}
