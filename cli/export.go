package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fluxa/db"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation as JSON or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		format := db.ExportFormat(exportFormat)
		if format == "md" {
			format = db.FormatMarkdown
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := a.repo.ExportConversation(ctx, id, format, a.config.AppName, w); err != nil {
			return err
		}
		if exportOutput != "" && exportOutput != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported conversation %d to %s\n", id, exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(db.FormatMarkdown), "Export format: json or markdown")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}
