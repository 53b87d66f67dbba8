package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// EnvPassword lets scripts pass the password without a prompt.
const EnvPassword = "STAR_PASSWORD"

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password.

The password is read from the ` + EnvPassword + ` environment variable when
set, otherwise from a prompt on standard input.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email address")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	s, err := a.auth.SignInWithPassword(cmd.Context(), email, password)
	if err != nil {
		return err
	}

	statusf("Signed in as %s (session expires %s)\n",
		email, time.Unix(s.ExpiresAt, 0).Format(time.RFC3339))

	return nil
}

func newSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE:  runSignup,
	}

	cmd.Flags().String("email", "", "account email address")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runSignup(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	s, err := a.auth.SignUp(cmd.Context(), email, password)
	if err != nil {
		return err
	}

	if s == nil {
		statusf("Account created. Check your email to confirm before signing in.\n")
		return nil
	}

	statusf("Signed up and signed in as %s\n", email)

	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if err := a.auth.SignOut(cmd.Context()); err != nil {
				return err
			}

			statusf("Signed out.\n")

			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	s, err := a.refresher.Ensure(cmd.Context())
	if err != nil {
		return err
	}

	if !s.Authenticated() {
		return fmt.Errorf("not signed in (run 'star login')")
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"user":       s.User,
			"expires_at": s.ExpiresAt,
		})
	}

	out := cmd.OutOrStdout()

	if s.User != nil {
		fmt.Fprintf(out, "User:    %s\n", s.User.Email)
		fmt.Fprintf(out, "ID:      %s\n", s.User.ID)

		if name, ok := s.User.Metadata["full_name"].(string); ok {
			fmt.Fprintf(out, "Name:    %s\n", name)
		}
	}

	if s.ExpiresAt > 0 {
		fmt.Fprintf(out, "Expires: %s\n", time.Unix(s.ExpiresAt, 0).Format(time.RFC3339))
	}

	return nil
}

func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Send a password recovery email",
		Args:  cobra.NoArgs,
		RunE:  runRecover,
	}

	cmd.Flags().String("email", "", "account email address")
	cmd.Flags().String("redirect-to", "", "where the recovery link lands")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runRecover(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	redirectTo, err := cmd.Flags().GetString("redirect-to")
	if err != nil {
		return err
	}

	if err := a.auth.RequestPasswordRecovery(cmd.Context(), email, redirectTo); err != nil {
		return err
	}

	statusf("Recovery email sent to %s\n", email)

	return nil
}

// readPassword reads the password from the environment or, interactively,
// from the first line of standard input.
func readPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("empty password")
	}

	return pw, nil
}
