package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/app"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run the cleanup job once",
		Long:  "Expire overdue listings, end finished promotions, delete expired login tokens and sessions, and purge old read notifications.",
		Args:  cobra.NoArgs,
		RunE:  runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	a, err := app.New(cmd.Context(), cfg, database)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, runErr := a.Cleanup.Run(cmd.Context(), time.Now())

	out := cmd.OutOrStdout()
	if isJSON() {
		if err := printJSON(out, rep); err != nil {
			return err
		}
	} else if rep != nil {
		fmt.Fprintf(out, "Listings expired:      %d\n", rep.ListingsExpired)
		fmt.Fprintf(out, "Promotions ended:      %d\n", rep.PromotionsEnded)
		fmt.Fprintf(out, "Tokens deleted:        %d\n", rep.TokensDeleted)
		fmt.Fprintf(out, "Sessions deleted:      %d\n", rep.SessionsDeleted)
		fmt.Fprintf(out, "Notifications purged:  %d\n", rep.NotificationsPurged)
	}

	if runErr != nil {
		return fmt.Errorf("cleanup: %w", runErr)
	}
	return nil
}
