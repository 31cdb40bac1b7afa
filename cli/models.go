package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server advertises",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if !a.client.CheckConnection(ctx) {
			fmt.Fprintf(out, "Server at %s is not reachable\n", a.config.LMStudio.BaseURL)
			return nil
		}

		models := a.client.ListModels(ctx)
		if len(models) == 0 {
			fmt.Fprintln(out, "Server did not report any models")
			return nil
		}
		for _, m := range models {
			marker := " "
			if m == a.config.LMStudio.ModelName {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, m)
		}
		return nil
	},
}
