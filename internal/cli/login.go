package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/client"
)

func newLoginCmd() *cobra.Command {
	var server, email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a session token",
		Long:  "Signs in with email and password. The password is read from standard input and the returned token is stored in the config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.InOrStdin(), cmd.OutOrStdout(), server, email)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default: from config or http://localhost:8080)")
	cmd.Flags().StringVar(&email, "email", "", "account email (default: the last one used)")

	return cmd
}

func runLogin(in io.Reader, out io.Writer, serverFlag, emailFlag string) error {
	// Load existing config to preserve other fields
	cfg, err := loadConfig()
	if err != nil {
		cfg = CLIConfig{}
	}

	serverURL := serverFlag
	if serverURL == "" {
		serverURL = getServerURL()
	}

	reader := bufio.NewReader(in)
	email := emailFlag
	if email == "" {
		email = cfg.Email
	}
	if email == "" {
		fmt.Fprint(out, "Email: ")
		if email, err = readLine(reader); err != nil {
			return err
		}
	}

	fmt.Fprint(out, "Password: ")
	password, err := readLine(reader)
	if err != nil {
		return err
	}
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	res, err := client.New(serverURL, "").Login(email, password)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	cfg.Token = res.Token
	cfg.Email = email
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Signed in as %s.\n", res.User.DisplayName())
	if !res.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "  Session valid until %s.\n", res.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// validateCredentials rejects input the server would refuse anyway.
func validateCredentials(email, password string) error {
	if email == "" {
		return fmt.Errorf("no email provided")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}
	if password == "" {
		return fmt.Errorf("no password provided")
	}
	return nil
}
