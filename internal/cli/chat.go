package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/client"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and send chat messages",
	}
	cmd.AddCommand(newChatListCmd(), newChatSendCmd(), newChatWatchCmd())
	return cmd
}

func newChatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newAPIClient().Conversations()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, list)
			}
			return printConversations(out, list)
		},
	}
}

func newChatSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <text...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := newAPIClient().SendMessage(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, msg)
			}
			printMessage(out, *msg, msg.SenderID)
			return nil
		},
	}
}

func newChatWatchCmd() *cobra.Command {
	var (
		after    int64
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <conversation-id>",
		Short: "Follow a conversation live",
		Long:  "Prints new messages as they arrive. Uses the live socket when the server confirms the subscription and polls otherwise. Stop with Ctrl-C.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChatWatch(ctx, cmd.OutOrStdout(), newAPIClient(), args[0], after, interval)
		},
	}

	cmd.Flags().Int64Var(&after, "after", 0, "only messages with an id above this one")
	cmd.Flags().DurationVar(&interval, "poll-interval", client.DefaultPollInterval, "polling interval when live delivery is unavailable")

	return cmd
}

// runChatWatch prints messages of a conversation until ctx is done.
func runChatWatch(ctx context.Context, out io.Writer, c *client.Client, conversationID string, after int64, interval time.Duration) error {
	me, err := c.Me()
	if err != nil {
		return err
	}

	w := client.NewWatcher(c)
	if interval > 0 {
		w.PollInterval = interval
	}

	var mu sync.Mutex
	onMessage := func(m chat.Message) {
		mu.Lock()
		defer mu.Unlock()
		if isJSON() {
			_ = printJSON(out, m)
			return
		}
		printMessage(out, m, me.ID)
	}

	if err := w.Watch(ctx, conversationID, after, onMessage); err != nil {
		return err
	}
	if !isJSON() {
		fmt.Fprintf(out, "Watching conversation %s. Press Ctrl-C to stop.\n", conversationID)
	}

	<-ctx.Done()
	return w.Close()
}
