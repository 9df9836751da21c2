package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove one of your listings",
		Long:  "Remove a listing together with its images, inquiries and favorites.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := newAPIClient().DeleteProperty(id); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if isJSON() {
		return printJSON(out, map[string]any{
			"id":      id,
			"removed": true,
		})
	}

	fmt.Fprintf(out, "Listing #%d removed.\n", id)
	return nil
}
