package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fluxa/db"
)

var attachCmd = &cobra.Command{
	Use:   "attach <message-id> <image-path>",
	Short: "Record an image against a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		img, err := a.agent.AttachImage(ctx, messageID, args[1])
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("this image is already stored")
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Stored image %d (%s, %d bytes", img.ID, img.MimeType, img.FileSize)
		if img.Width != nil && img.Height != nil {
			fmt.Fprintf(out, ", %dx%d", *img.Width, *img.Height)
		}
		fmt.Fprintln(out, ")")
		return nil
	},
}
