package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatConversation int64
	chatTitle        string
	chatNoStream     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the local model",
	Long: `Start a line-oriented chat. Each line you type is one turn; the reply
is printed as it arrives. Type /new to start a fresh conversation and
/exit (or end the input) to quit.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Int64VarP(&chatConversation, "conversation", "c", 0, "Continue an existing conversation")
	chatCmd.Flags().StringVarP(&chatTitle, "title", "t", "", "Title for a new conversation")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the full reply instead of streaming it")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.client.CheckConnection(ctx) {
		fmt.Fprintf(os.Stderr, "Warning: no server answering at %s\n", a.config.LMStudio.BaseURL)
	}

	convID := chatConversation
	fresh := false
	if convID == 0 {
		conv, err := a.agent.NewConversation(ctx, chatTitle)
		if err != nil {
			return err
		}
		convID, fresh = conv.ID, true
	} else if _, err := a.repo.GetConversation(ctx, convID); err != nil {
		return err
	}

	stream := a.config.LMStudio.Stream && !chatNoStream
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s - conversation %d (/exit to quit)\n", a.config.AppName, convID)

	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(out, "\n> ")
		}
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			conv, err := a.agent.NewConversation(ctx, "")
			if err != nil {
				return err
			}
			convID, fresh = conv.ID, true
			fmt.Fprintf(out, "Started conversation %d\n", convID)
			continue
		}

		fragments, err := a.agent.Chat(ctx, convID, input, stream)
		if err != nil {
			return err
		}
		failed := false
		for f := range fragments {
			if f.Err != nil {
				failed = true
			}
			fmt.Fprint(out, f.Text)
		}
		fmt.Fprintln(out)

		if ctx.Err() != nil {
			return nil
		}
		if fresh && chatTitle == "" && !failed {
			fresh = false
			if title, err := a.agent.SuggestTitle(ctx, convID); err != nil {
				a.logger.Warn("Failed to generate title: %v", err)
			} else if title != "" {
				a.logger.Info("Conversation %d titled %q", convID, title)
			}
		}
	}
}

// isTerminal reports whether r is an interactive terminal; piped input gets no prompt
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
