package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fluxa/db"
	"fluxa/utils"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List conversations, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		convs, err := a.repo.ListConversations(ctx, historyLimit, historyOffset)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations yet; start one with: fluxa chat")
			return nil
		}
		for _, c := range convs {
			fmt.Fprintf(out, "  %-6d  %s  %s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Title)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		conv, err := a.repo.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		messages, err := a.repo.GetMessages(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d messages)\n\n", conv.Title, len(messages))
		for _, m := range messages {
			fmt.Fprintf(out, "[%d] %s", m.ID, m.Role)
			if m.Model != "" {
				fmt.Fprintf(out, " (%s)", m.Model)
			}
			fmt.Fprintf(out, ": %s\n", m.Content)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and everything attached to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.repo.DeleteConversation(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("conversation %d not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %d\n", id)
		return nil
	},
}

var (
	searchRole string
	searchDays int
)

var historySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find messages containing text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.repo.SearchMessages(ctx, args[0], db.SearchFilter{
			Role:    db.Role(searchRole),
			DaysAgo: searchDays,
			Limit:   historyLimit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No matches")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "  #%-5d %-9s %s\n          %s\n", r.ConversationID, r.Message.Role, r.ConversationTitle, r.Snippet)
		}
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "Number of conversations to list")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of conversations to skip")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historySearchCmd)

	historySearchCmd.Flags().StringVar(&searchRole, "role", "", "Only match messages with this role")
	historySearchCmd.Flags().IntVar(&searchDays, "days", 0, "Only match messages from the last N days")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", utils.Truncate(s, 20))
	}
	return id, nil
}
