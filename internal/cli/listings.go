package cli

import (
	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/client"
)

func newListingsCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:     "listings",
		Aliases: []string{"ls"},
		Short:   "Search published listings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newAPIClient().ListProperties(opts)
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), page)
			}
			return printPropertyTable(cmd.OutOrStdout(), page.Items, page.Total)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "free-text search")
	cmd.Flags().StringVar(&opts.City, "city", "", "filter by city")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "filter by operation (rent|sale)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter by property type")
	cmd.Flags().Int64Var(&opts.MaxPrice, "max-price", 0, "maximum price")
	cmd.Flags().BoolVar(&opts.Featured, "featured", false, "only featured listings")
	cmd.Flags().BoolVar(&opts.Mine, "mine", false, "only my listings, in any status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of listings to skip")

	return cmd
}
