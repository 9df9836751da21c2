package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/auth"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts directly in the database",
	}
	cmd.AddCommand(newUserAddCmd(), newUserListCmd(), newUserPromoteCmd())
	return cmd
}

// openUserStore opens the database and returns a user store over it.
func openUserStore() (*auth.UserStore, func(), error) {
	cfg, err := loadServerConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewUserStore(database, cfg.AdminEmail), func() { closeDB(database) }, nil
}

func newUserAddCmd() *cobra.Command {
	var name, phone, password string

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an account",
		Long:  "Create an account. Without --password the user signs in with a magic link or a passkey.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, done, err := openUserStore()
			if err != nil {
				return err
			}
			defer done()

			var u *auth.User
			if password != "" {
				u, err = users.Register(args[0], password, name, phone)
			} else {
				u, err = users.Add(args[0], name)
				if err == nil && phone != "" {
					u, err = users.Update(u.ID, auth.UserUpdate{Phone: &phone})
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, u)
			}
			fmt.Fprintf(out, "✓ Created user #%d %s (%s)\n", u.ID, u.Email, u.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&password, "password", "", "password (at least 8 characters)")

	return cmd
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, done, err := openUserStore()
			if err != nil {
				return err
			}
			defer done()

			list, err := users.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No users.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tCREATED"); err != nil {
				return fmt.Errorf("writing table header: %w", err)
			}
			for _, u := range list {
				role := u.Role
				if users.IsAdmin(u) && role != auth.RoleAdmin {
					role = "admin (configured)"
				}
				if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					u.ID, u.Email, u.Name, role, u.CreatedAt.Format("2006-01-02")); err != nil {
					return fmt.Errorf("writing table row: %w", err)
				}
			}
			return w.Flush()
		},
	}
}

func newUserPromoteCmd() *cobra.Command {
	var demote bool

	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant or revoke the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, done, err := openUserStore()
			if err != nil {
				return err
			}
			defer done()

			u, err := users.GetByEmail(args[0])
			if err != nil {
				return err
			}
			role := auth.RoleAdmin
			if demote {
				role = auth.RoleUser
			}
			u, err = users.ChangeRole(u.ID, role)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, u)
			}
			fmt.Fprintf(out, "✓ %s is now %s\n", u.Email, u.Role)
			return nil
		},
	}

	cmd.Flags().BoolVar(&demote, "demote", false, "revoke the admin role instead")

	return cmd
}
