package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection and auth status",
		Long:  "Tests the connection to the server and checks if the stored session token is still valid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func runStatus(out io.Writer) error {
	serverURL := getServerURL()
	token := getToken()

	fmt.Fprintf(out, "Server:  %s\n", serverURL)

	if token == "" {
		fmt.Fprintln(out, "Session: not signed in")
		fmt.Fprintln(out, "\nRun 'arrienda login' to sign in.")
		return nil
	}

	u, err := client.New(serverURL, token).Me()
	var apiErr *client.APIError
	switch {
	case err == nil:
		fmt.Fprintf(out, "Session: ✓ signed in as %s (%s)\n", u.DisplayName(), u.Role)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		fmt.Fprintln(out, "Session: ✗ token expired or revoked")
		fmt.Fprintln(out, "\nRun 'arrienda login' to sign in again.")
	case errors.As(err, &apiErr):
		fmt.Fprintf(out, "Session: ✗ unexpected response (%d)\n", apiErr.StatusCode)
	default:
		fmt.Fprintf(out, "Session: ✗ cannot reach server (%v)\n", err)
	}

	return nil
}
