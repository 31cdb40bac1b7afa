package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fluxa/utils"
)

func deltaFrame(content string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion.chunk",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]interface{}{"content": content}},
		},
	})
	return "data: " + string(payload) + "\n\n"
}

const doneFrame = "data: [DONE]\n\n"

// trackingBody records whether the stream released it
type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func drain(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	var fragments []string
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return fragments, nil
		}
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, f)
	}
}

func TestStream_ReassemblesFragments(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(deltaFrame("Hel") + deltaFrame("lo") + doneFrame)}
	s := NewStream(body, nil)

	fragments, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hello", s.Content())
	assert.Equal(t, 2, s.Fragments())
	assert.Equal(t, 1, body.closed)

	// Exhausted streams keep reporting EOF
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closed)
}

func TestStream_SkipsNoise(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive comment\n",
		"\n",
		"   \n",
		"event: message\n",
		"data: {this is not json\n",
		deltaFrame("A"),
		`data: {"id":"x","choices":[]}` + "\n",
		deltaFrame(""),
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"}}]}` + "\r\n",
		deltaFrame("B"),
		doneFrame,
		deltaFrame("after done"),
	}, "")
	s := NewStream(io.NopCloser(strings.NewReader(input)), nil)

	fragments, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, fragments)
}

func TestStream_EndsWithoutSentinel(t *testing.T) {
	// Final line lacks a trailing newline
	input := deltaFrame("one") + strings.TrimSuffix(deltaFrame("two"), "\n\n")
	s := NewStream(io.NopCloser(strings.NewReader(input)), nil)

	fragments, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, fragments)
}

func TestStream_EmptyBody(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("")), nil)

	fragments, err := drain(t, s)
	require.NoError(t, err)
	assert.Empty(t, fragments)
	assert.Equal(t, "", s.Content())
}

func TestStream_ErrorFrame(t *testing.T) {
	input := deltaFrame("partial") + `data: {"error":{"message":"model crashed","type":"server_error"}}` + "\n\n" + deltaFrame("never")
	s := NewStream(io.NopCloser(strings.NewReader(input)), nil)

	fragments, err := drain(t, s)
	assert.Equal(t, []string{"partial"}, fragments)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Contains(t, gwErr.Error(), "model crashed")
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestStream_ReadErrorIsGatewayError(t *testing.T) {
	reset := errors.New("connection reset by peer")
	s := NewStream(io.NopCloser(&failingReader{data: []byte(deltaFrame("Hel")), err: reset}), nil)

	fragments, err := drain(t, s)
	assert.Equal(t, []string{"Hel"}, fragments)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, reset)

	// The failure is sticky
	_, again := s.Recv()
	assert.ErrorIs(t, again, reset)
}

func TestStream_CloseBeforeDone(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(deltaFrame("a") + deltaFrame("b") + doneFrame)}
	s := NewStream(body, nil)

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", f)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closed)

	_, err = s.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestStream_LogsTruncatedReply(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	long := strings.Repeat("z", 300)
	s := NewStream(io.NopCloser(strings.NewReader(deltaFrame(long)+doneFrame)), utils.NewLoggerFromZap(zap.New(core)))

	_, err := drain(t, s)
	require.NoError(t, err)

	entries := logs.FilterMessageSnippet("LLM RESPONSE").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "LLM RESPONSE: "+strings.Repeat("z", 200)+"...", entries[0].Message)
	assert.Equal(t, int64(1), entries[0].ContextMap()["fragments"])
}
