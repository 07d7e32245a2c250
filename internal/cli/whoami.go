package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/visium/pkg/model"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sess := sessions.Session()
			if sess == nil {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}

			name := sess.Username
			if name == "" {
				name = "(unknown user)"
			}
			fmt.Fprintf(out, "User:     %s\n", name)
			if sess.Email != "" {
				fmt.Fprintf(out, "Email:    %s\n", sess.Email)
			}
			fmt.Fprintf(out, "Session:  expires %s\n", sessions.ExpiresAt().Format(time.RFC1123))

			claims, err := sessions.Claims()
			if err != nil {
				logger.Debug("token claims unavailable", "error", err)
				return nil
			}
			if claims.Subject != "" {
				fmt.Fprintf(out, "Subject:  %s\n", claims.Subject)
			}
			if !claims.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Token:    expires %s\n", claims.ExpiresAt.Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored bearer token",
	}
	cmd.AddCommand(newTokenImportCmd())
	return cmd
}

func newTokenImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [token]",
		Short: "Store a bearer token obtained from another login flow",
		Long: "Store a bare bearer token, for example one issued by an OAuth login. " +
			"It becomes a seven day session the next time visium starts. " +
			"The token is read from stdin when not given as an argument.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessions.Authenticated() {
				return fmt.Errorf("already logged in: run 'visium logout' first")
			}

			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				var err error
				if token, err = newPrompter(cmd).secret("", "Token"); err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("token cannot be empty")
			}

			if err := state.Set(cmd.Context(), model.KeyLegacyToken, token); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token imported.")
			return nil
		},
	}
}
