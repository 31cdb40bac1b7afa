package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var contextCategory string

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "List stored context entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		items, err := a.repo.ListContext(ctx, contextCategory)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range items {
			value, _ := json.Marshal(item.Value)
			fmt.Fprintf(out, "  %-20s  %-10s  %s\n", item.Key, item.Category, value)
		}
		return nil
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value; JSON is parsed, anything else is kept as a string",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value interface{}
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			value = args[1]
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.repo.SetContext(ctx, args[0], value, contextCategory); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", args[0])
		return nil
	},
}

var contextGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		item, err := a.repo.GetContext(ctx, args[0])
		if err != nil {
			return err
		}
		value, err := json.MarshalIndent(item.Value, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(value))
		return nil
	},
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.repo.DeleteContext(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("context key %q not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	contextCmd.PersistentFlags().StringVar(&contextCategory, "category", "", "Context category")

	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextGetCmd)
	contextCmd.AddCommand(contextDeleteCmd)
}
