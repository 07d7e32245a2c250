package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/visium/internal/session"
)

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Log in and store a session",
		Long:        "Exchange a username and password for a token. The session is kept for seven days.",
		Annotations: map[string]string{viewAnnotation: session.PathLogin},
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if username, err = p.value(username, "Username"); err != nil {
				return err
			}
			if password, err = p.secret(password, "Password"); err != nil {
				return err
			}
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}

			if err := sessions.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (session expires %s)\n",
				username, sessions.ExpiresAt().Format(time.RFC1123))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:         "register",
		Short:       "Create an account",
		Annotations: map[string]string{viewAnnotation: "/auth/register"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if username, err = p.value(username, "Username"); err != nil {
				return err
			}
			if email, err = p.value(email, "Email"); err != nil {
				return err
			}
			if password, err = p.secret(password, "Password"); err != nil {
				return err
			}
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("username, email and password are required")
			}

			if err := sessions.Register(cmd.Context(), username, email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created. Run 'visium login' to sign in.\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessions.Logout(cmd.Context())
		},
	}
}
