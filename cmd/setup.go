package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the global config file (re-run anytime to edit settings)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive() {
			return errors.New("setup needs a terminal; edit the config file or use PLAYGROUND_* variables")
		}
		global, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		next, err := runSetup(cmd, config.Merge(global, nil))
		if err != nil {
			return err
		}
		path, err := config.SaveGlobal(next)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Saved %s.\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'playground login' to sign in.")
		return nil
	},
}

// runSetup asks for the settings people change most, starting from c.
func runSetup(cmd *cobra.Command, c config.Config) (config.Config, error) {
	autosave := strconv.Itoa(c.AutosaveSeconds)
	reconnect := c.ReconnectEnabled()
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Playground server URL").
			Value(&c.BaseURL).
			Validate(func(s string) error {
				u, err := url.Parse(s)
				if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
					return errors.New("enter an http:// or https:// URL")
				}
				return nil
			}),
		huh.NewInput().
			Title("Autosave period (seconds)").
			Value(&autosave).
			Validate(func(s string) error {
				n, err := strconv.Atoi(s)
				if err != nil || n < 1 || n > 300 {
					return errors.New("enter a number from 1 to 300")
				}
				return nil
			}),
		huh.NewConfirm().
			Title("Reconnect automatically when the collaboration channel drops?").
			Value(&reconnect),
		huh.NewSelect[string]().
			Title("Log level").
			Options(huh.NewOptions("warn", "info", "debug", "error")...).
			Value(&c.LogLevel),
	))
	if err := form.RunWithContext(cmd.Context()); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return c, errors.New("setup cancelled")
		}
		return c, err
	}
	c.AutosaveSeconds, _ = strconv.Atoi(autosave)
	c.Collab.Reconnect = &reconnect
	return c, nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
