package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanderlist/imagebackfill/internal/app"
	"github.com/wanderlist/imagebackfill/internal/notification"
)

// Command returns a cobra command that sends a test message to the configured notification URLs
func Command(ctx *app.Context) *cobra.Command {
	var (
		subject string
		message string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification",
		Long: `Send a test message to every configured notification URL.

Examples:
  # Use notification.urls from config
  imagebackfill notify

  # Try a URL without editing the config
  imagebackfill notify --notify-urls="telegram://token@telegram?chats=@ops" --message="Hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := notification.New(ctx.Settings.Notification.URLs, ctx.Settings.Notification.Title, ctx.Module("notification"))
			if err != nil {
				return err
			}
			if n == nil {
				return fmt.Errorf("no notification URLs configured (notification.urls)")
			}
			if err := n.Send(cmd.Context(), subject, message); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "notification sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "title", "test", "Notification subject")
	cmd.Flags().StringVar(&message, "message", "Test notification from imagebackfill", "Notification body")
	cmd.Flags().StringSlice("notify-urls", nil, "Notification URLs (overrides notification.urls)")

	return cmd
}
