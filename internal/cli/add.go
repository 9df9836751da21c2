package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/property"
)

func newAddCmd() *cobra.Command {
	var (
		title, city, address, description, phone, operation, propertyType string
		price, bedrooms                                                   int64
		furnished, pets                                                   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Publish a listing",
		Long:  "Publish a listing as the signed-in user. Images are uploaded from the web site.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := property.Input{
				Title: &title,
				City:  &city,
				Price: &price,
			}
			op := property.Operation(operation)
			in.Operation = &op
			pt := property.Type(propertyType)
			in.PropertyType = &pt

			flags := cmd.Flags()
			if flags.Changed("address") {
				in.Address = &address
			}
			if flags.Changed("description") {
				in.Description = &description
			}
			if flags.Changed("phone") {
				in.ContactPhone = &phone
			}
			if flags.Changed("bedrooms") {
				in.Bedrooms = &bedrooms
			}
			if flags.Changed("furnished") {
				in.Furnished = &furnished
			}
			if flags.Changed("pets") {
				in.PetsAllowed = &pets
			}

			p, err := newAPIClient().CreateProperty(in)
			if err != nil {
				return fmt.Errorf("publishing listing: %w", err)
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, p)
			}
			fmt.Fprintln(out, "Listing published!")
			printPropertySummary(out, p)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&title, "title", "", "listing title (required)")
	f.StringVar(&city, "city", "", "city (required)")
	f.Int64Var(&price, "price", 0, "price in pesos, 0 for \"Consultar\"")
	f.StringVar(&operation, "operation", string(property.OperationRent), "rent or sale")
	f.StringVar(&propertyType, "type", string(property.TypeApartment), "house, apartment, room, land, commercial or office")
	f.StringVar(&address, "address", "", "street address")
	f.StringVar(&description, "description", "", "description")
	f.StringVar(&phone, "phone", "", "contact phone (default: your account phone)")
	f.Int64Var(&bedrooms, "bedrooms", 0, "number of bedrooms")
	f.BoolVar(&furnished, "furnished", false, "furnished")
	f.BoolVar(&pets, "pets", false, "pets allowed")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("city")

	return cmd
}
