package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"fluxa/db"
	"fluxa/llm"
	"fluxa/utils"
)

// DefaultTitle is given to conversations created without one
const DefaultTitle = "New Chat"

// Gateway sends a chat request to the inference server
type Gateway interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.Response, error)
}

// titleGenerator is implemented by gateways that can summarize a conversation
type titleGenerator interface {
	GenerateTitle(ctx context.Context, messages []llm.Message) (string, error)
}

// Fragment is one piece of a turn's output. A turn that fails ends with a
// single Fragment whose Err is set and whose Text describes the failure.
type Fragment struct {
	Text string
	Err  error
}

// Agent runs conversational turns against the model and records them
type Agent struct {
	repo    *db.Repository
	gateway Gateway
	config  *utils.Config
	logger  *utils.Logger
}

// New creates an agent
func New(repo *db.Repository, gateway Gateway, config *utils.Config, logger *utils.Logger) *Agent {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if config == nil {
		config = utils.DefaultConfig()
	}
	return &Agent{
		repo:    repo,
		gateway: gateway,
		config:  config,
		logger:  logger,
	}
}

// Repository returns the store the agent writes to
func (a *Agent) Repository() *db.Repository {
	return a.repo
}

// NewConversation starts an empty conversation
func (a *Agent) NewConversation(ctx context.Context, title string) (*db.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	conv, err := a.repo.CreateConversation(ctx, title, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	a.logger.Info("Created conversation %d: %s", conv.ID, conv.Title)
	return conv, nil
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf("You are %s, an intelligent and helpful AI assistant. Answer clearly and concisely.", a.config.AppName)
}

// Chat runs one turn: the user's input is stored before Chat returns, and
// the reply is delivered on the returned channel, which is closed when the
// turn ends. The complete reply is stored as one assistant message once the
// model has finished, unless it is empty or ctx was cancelled first.
//
// An error is returned only when the user's input could not be stored.
// Later failures arrive as a final Fragment with Err set.
func (a *Agent) Chat(ctx context.Context, conversationID int64, input string, stream bool) (<-chan Fragment, error) {
	logger := a.logger.With("turn", uuid.NewString(), "conversation_id", conversationID)

	if _, err := a.repo.AddMessage(ctx, conversationID, db.RoleUser, input, 0, "", nil); err != nil {
		logger.Error("Failed to save user message: %v", err)
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	out := make(chan Fragment)
	utils.SafeGo(logger, "chat turn", func() {
		defer close(out)

		err := a.runTurn(ctx, logger, conversationID, stream, out)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			logger.Info("Turn abandoned: %v", ctx.Err())
		default:
			logger.Error("Chat error: %v", err)
			send(ctx, out, Fragment{Text: "\nError: " + err.Error(), Err: err})
		}
	})

	return out, nil
}

func (a *Agent) runTurn(ctx context.Context, logger *utils.Logger, conversationID int64, stream bool, out chan<- Fragment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error("Panic recovered in chat turn: %v\nStack trace:\n%s", r, string(stack))
			err = &utils.PanicError{Value: r, Stack: stack}
		}
	}()

	history, err := a.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: string(db.RoleSystem), Content: a.systemPrompt()})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	resp, err := a.gateway.Chat(ctx, messages, llm.ChatOptions{Stream: llm.Ptr(stream)})
	if err != nil {
		return err
	}

	var (
		reply  string
		tokens int
	)
	switch resp.Kind {
	case llm.KindStream:
		reply, err = relay(ctx, resp.Stream, out)
		if err != nil {
			return err
		}
	case llm.KindUnary:
		reply = resp.Result.Content
		tokens = resp.Result.Usage.CompletionTokens
		if reply != "" && !send(ctx, out, Fragment{Text: reply}) {
			return ctx.Err()
		}
	default:
		return fmt.Errorf("unexpected response kind %v", resp.Kind)
	}

	// An abandoned turn is never stored, even if the reply was complete
	if err := ctx.Err(); err != nil {
		return err
	}
	if reply == "" {
		logger.Warn("Model returned an empty reply; nothing stored")
		return nil
	}

	model := resp.Model
	if model == "" {
		model = llm.FallbackModel
	}
	msg, err := a.repo.AddMessage(ctx, conversationID, db.RoleAssistant, reply, tokens, model, nil)
	if err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}
	logger.Debug("Stored assistant message %d (%d chars)", msg.ID, len(reply))
	return nil
}

// relay forwards stream fragments to out and returns the assembled text.
// The stream is always closed on return.
func relay(ctx context.Context, stream *llm.Stream, out chan<- Fragment) (string, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(fragment)
		if !send(ctx, out, Fragment{Text: fragment}) {
			return "", ctx.Err()
		}
	}
}

// send delivers f unless ctx is done first
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a turn's fragments into one string. The returned error is
// the turn's failure, if any.
func Collect(fragments <-chan Fragment) (string, error) {
	var (
		sb  strings.Builder
		err error
	)
	for f := range fragments {
		if f.Err != nil {
			err = f.Err
			continue
		}
		sb.WriteString(f.Text)
	}
	return sb.String(), err
}

// SuggestTitle asks the model to name the conversation and stores the
// result. Gateways that cannot generate titles leave it unchanged.
func (a *Agent) SuggestTitle(ctx context.Context, conversationID int64) (string, error) {
	gen, ok := a.gateway.(titleGenerator)
	if !ok {
		return "", nil
	}

	history, err := a.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) == 0 {
		return "", nil
	}

	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	title, err := gen.GenerateTitle(ctx, messages)
	if err != nil {
		return "", err
	}
	if err := a.repo.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		return "", fmt.Errorf("failed to update title: %w", err)
	}
	return title, nil
}
