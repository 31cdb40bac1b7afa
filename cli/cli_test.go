package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxa/utils"
)

// writeTestConfig points the binary at a fresh database and the given server
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := utils.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "fluxa.db")
	cfg.LMStudio.BaseURL = baseURL
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, utils.SaveConfig(path, cfg))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen2.5-7b","object":"model"}]}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{"Hel", "lo"} {
				fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"t","object":"chat.completion","model":"qwen2.5-7b",
			"choices":[{"index":0,"message":{"role":"assistant","content":"\"Greeting exchange\""},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "Fluxa v"+version+"\n", out)
}

func TestChatSession(t *testing.T) {
	srv := newModelServer(t)
	cfg := writeTestConfig(t, srv.URL+"/v1")

	out, err := run(t, "Hi there\n/exit\n", "--config", cfg, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "conversation 1")
	assert.Contains(t, out, "Hello")

	out, err = run(t, "", "--config", cfg, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Greeting exchange")

	out, err = run(t, "", "--config", cfg, "history", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "user: Hi there")
	assert.Contains(t, out, "assistant (local-model): Hello")

	out, err = run(t, "", "--config", cfg, "history", "search", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Greeting exchange")

	out, err = run(t, "", "--config", cfg, "export", "1", "-f", "md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Greeting exchange\n"))

	out, err = run(t, "", "--config", cfg, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "qwen2.5-7b")
}

func TestTasksAndContext(t *testing.T) {
	cfg := writeTestConfig(t, "http://127.0.0.1:1/v1")

	_, err := run(t, "", "--config", cfg, "tasks", "add", "Write release notes", "-p", "7")
	require.NoError(t, err)
	_, err = run(t, "", "--config", cfg, "tasks", "set", "1", "completed")
	require.NoError(t, err)
	out, err := run(t, "", "--config", cfg, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Write release notes")

	_, err = run(t, "", "--config", cfg, "tasks", "set", "1", "archived")
	assert.Error(t, err)

	_, err = run(t, "", "--config", cfg, "context", "set", "user.prefs", `{"units":"metric"}`)
	require.NoError(t, err)
	out, err = run(t, "", "--config", cfg, "context", "get", "user.prefs")
	require.NoError(t, err)
	assert.Contains(t, out, `"units": "metric"`)

	_, err = run(t, "", "--config", cfg, "context", "delete", "user.prefs")
	require.NoError(t, err)
	_, err = run(t, "", "--config", cfg, "context", "get", "user.prefs")
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}
