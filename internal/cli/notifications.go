package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotificationsCmd() *cobra.Command {
	var unread, markRead bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			out := cmd.OutOrStdout()

			list, err := c.Notifications(unread)
			if err != nil {
				return err
			}
			if isJSON() {
				if err := printJSON(out, list); err != nil {
					return err
				}
			} else {
				printNotifications(out, list)
			}

			if !markRead {
				return nil
			}
			n, err := c.MarkNotificationsRead()
			if err != nil {
				return err
			}
			if !isJSON() {
				fmt.Fprintf(out, "\n✓ %d marked as read.\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark every notification as read afterwards")

	return cmd
}
