package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"fluxa/utils"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// streamFrame is one decoded server-sent event. Servers report mid-stream
// failures as an "error" object instead of choices.
type streamFrame struct {
	openai.ChatCompletionStreamResponse
	Error *openai.APIError `json:"error,omitempty"`
}

// Stream is a single-pass reader of text fragments from a chat completion
// event stream. Recv blocks until the next fragment arrives and returns
// io.EOF once the [DONE] frame or the end of the body is reached. Close
// releases the connection and may be called at any time.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger *utils.Logger

	content   strings.Builder
	fragments int
	skipped   int
	err       error
	finished  bool
	closeOnce sync.Once
}

// NewStream reads frames from body; the stream owns body and closes it
func NewStream(body io.ReadCloser, logger *utils.Logger) *Stream {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Stream{
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

// Recv returns the next non-empty text fragment
func (s *Stream) Recv() (string, error) {
	for {
		if s.finished {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}

		line, readErr := s.reader.ReadString('\n')
		if line != "" {
			fragment, done, err := s.parseLine(line)
			if err != nil {
				s.finish(err)
				continue
			}
			if done {
				s.finish(nil)
				continue
			}
			if fragment != "" {
				s.fragments++
				s.content.WriteString(fragment)
				return fragment, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.finish(nil)
			} else {
				s.finish(&GatewayError{Op: "stream read", Err: readErr})
			}
		}
	}
}

// parseLine decodes one line of the event stream. Blank lines, non-data
// fields and malformed frames yield no fragment and no error.
func (s *Stream) parseLine(line string) (fragment string, done bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", false, nil
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == doneSentinel {
		return "", true, nil
	}

	var frame streamFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		s.skipped++
		s.logger.Debug("Skipping malformed stream frame: %v", err)
		return "", false, nil
	}
	if frame.Error != nil {
		return "", false, &GatewayError{Op: "stream", StatusCode: frame.Error.HTTPStatusCode, Err: frame.Error}
	}
	if len(frame.Choices) == 0 {
		return "", false, nil
	}
	return frame.Choices[0].Delta.Content, false, nil
}

// Content returns everything received so far
func (s *Stream) Content() string {
	return s.content.String()
}

// Fragments returns how many fragments Recv has produced
func (s *Stream) Fragments() int {
	return s.fragments
}

func (s *Stream) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.release()

	if err != nil {
		s.logger.Error("Streaming error: %v", err)
	}
	s.logger.LLMInteraction("response", s.content.String(),
		"stream", true, "fragments", s.fragments, "skipped_frames", s.skipped, "complete", err == nil)
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		if err := s.body.Close(); err != nil {
			s.logger.Debug("Closing stream body: %v", err)
		}
	})
}

// Close abandons the stream and releases the underlying connection.
// Subsequent Recv calls report an error.
func (s *Stream) Close() error {
	if !s.finished {
		s.finish(fmt.Errorf("stream closed before completion"))
	}
	s.release()
	return nil
}
