// Package cli defines the cobra command tree for arrienda.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/client"
	"github.com/misiones-arrienda/arrienda/internal/config"
	"github.com/misiones-arrienda/arrienda/internal/db"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arrienda",
		Short:         "Misiones Arrienda: rentals, sales and roommates in Misiones",
		Long:          "Run the Misiones Arrienda server and its maintenance tasks, or browse listings, favorites, notifications and chats from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: $ARRIENDA_DB or ~/.misiones-arrienda/arrienda.db)")

	root.AddCommand(
		// server side
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newDiagnoseCmd(),
		newCleanupCmd(),
		newUserCmd(),
		// API client
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newListingsCmd(),
		newShowCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newInquireCmd(),
		newInquiriesCmd(),
		newFavoritesCmd(),
		newNotificationsCmd(),
		newChatCmd(),
		newVersionCmd(),
	)

	return root
}

// dbPath resolves the database path from --db, the server config or the
// default location.
func dbPath(cfg config.Config) (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return db.DefaultPath()
}

// openDB opens the SQLite database and runs migrations.
func openDB(cfg config.Config) (*sql.DB, error) {
	path, err := dbPath(cfg)
	if err != nil {
		return nil, err
	}
	return db.Open(path)
}

// loadServerConfig reads the server configuration. Maintenance commands
// use the same environment as serve.
func loadServerConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newAPIClient creates an HTTP client for the arrienda API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getToken())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}
