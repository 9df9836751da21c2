package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List saved listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newAPIClient().Favorites()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, list)
			}
			return printPropertyTable(out, list, len(list))
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <id>",
			Short: "Save a listing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := newAPIClient().AddFavorite(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Listing #%d saved.\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Forget a saved listing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := newAPIClient().RemoveFavorite(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Listing #%d removed from favorites.\n", id)
				return nil
			},
		},
	)

	return cmd
}
