package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInquireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inquire <id> <text...>",
		Short: "Ask the owner of a listing a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")

			q, err := newAPIClient().Inquire(id, text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, q)
			}
			fmt.Fprintf(out, "✓ Inquiry #%d sent to the owner of listing #%d.\n", q.ID, id)
			return nil
		},
	}
}

func newInquiriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inquiries <id>",
		Short: "List the inquiries received on one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			list, err := newAPIClient().Inquiries(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, list)
			}
			printInquiries(out, list)
			return nil
		},
	}
}
