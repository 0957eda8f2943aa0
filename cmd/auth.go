package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/session"
)

var (
	loginUser     string
	loginPassword string
	loginRegister bool
)

// promptCredentials fills in whatever the flags left empty.
func promptCredentials(cmd *cobra.Command, user, password *string) error {
	if *user != "" && *password != "" {
		return nil
	}
	if !interactive() {
		return errors.New("--user and --password are required without a terminal")
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(user).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password),
	))
	if err := form.RunWithContext(cmd.Context()); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("login cancelled")
		}
		return err
	}
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the playground server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := promptCredentials(cmd, &loginUser, &loginPassword); err != nil {
			return err
		}
		client, err := api.New(cfg.BaseURL, api.WithLogger(logger))
		if err != nil {
			return err
		}
		auth := client.Login
		if loginRegister {
			auth = client.Register
		}
		res, err := auth(cmd.Context(), strings.TrimSpace(loginUser), loginPassword)
		if err != nil {
			return err
		}

		store, err := sessionStore()
		if err != nil {
			return err
		}
		s := &session.Session{User: res.User, Token: res.Token, BaseURL: cfg.BaseURL, CreatedAt: time.Now()}
		if err := store.Save(s); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", res.User)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		if err := store.Delete(); err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := currentSession()
		if err != nil {
			return err
		}
		if s == nil {
			return describe(session.ErrNoSession)
		}
		line := fmt.Sprintf("%s on %s", s.User, cfg.BaseURL)
		if exp, ok := s.ExpiresAt(); ok {
			line += fmt.Sprintf(" (token valid until %s)", exp.Local().Format(time.RFC1123))
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password")
	loginCmd.Flags().BoolVar(&loginRegister, "register", false, "create the account first")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
