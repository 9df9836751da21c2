package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/diagnose"
)

// errChecksFailed makes diagnose exit non-zero.
var errChecksFailed = errors.New("some checks failed")

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check the database for integrity problems",
		Long:  "Run read-only checks on the schema and data: missing tables, orphaned rows, overdue listings and the admin account.",
		Args:  cobra.NoArgs,
		RunE:  runDiagnose,
	}
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	rep, err := diagnose.Run(cmd.Context(), database, diagnose.Options{AdminEmail: cfg.AdminEmail})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if isJSON() {
		if err := printJSON(out, rep); err != nil {
			return err
		}
	} else {
		for _, c := range rep.Checks {
			mark := "✓"
			if !c.OK {
				mark = "✗"
			}
			if c.Detail != "" {
				fmt.Fprintf(out, "%s %s: %s\n", mark, c.Name, c.Detail)
			} else {
				fmt.Fprintf(out, "%s %s\n", mark, c.Name)
			}
		}
	}

	if !rep.OK {
		return fmt.Errorf("%w: %d of %d", errChecksFailed, len(rep.Failed()), len(rep.Checks))
	}
	return nil
}
