package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample users, listings and roommate profiles",
		Long:  "Fill the database with sample data for development. Users that already exist are left alone, so seeding twice is safe.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, password)
		},
	}

	cmd.Flags().StringVar(&password, "password", seed.DefaultPassword, "password for every sample user")

	return cmd
}

func runSeed(cmd *cobra.Command, password string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	rep, err := seed.Run(cmd.Context(), database, seed.Options{
		Password:   password,
		AdminEmail: cfg.AdminEmail,
		ListingTTL: cfg.ListingTTL,
	})
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	out := cmd.OutOrStdout()
	if isJSON() {
		return printJSON(out, rep)
	}

	fmt.Fprintf(out, "Seeded %d users, %d listings, %d profiles, %d matches, %d messages.\n",
		rep.Users, rep.Listings, rep.Profiles, rep.Matches, rep.Messages)
	if rep.Users > 0 {
		fmt.Fprintf(out, "Sample users sign in with password %q.\n", password)
	}
	return nil
}
