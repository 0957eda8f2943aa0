package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/localstore"
	"github.com/fakeyudi/playground/internal/prefs"
)

// withState runs fn against the local store and closes it afterwards.
func withState(fn func(kv *localstore.Badger) error) error {
	kv, err := openState()
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Debug("closing state", "error", err)
		}
	}()
	return fn(kv)
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change editor preferences",
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every preference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			p, err := loadPrefs(kv)
			if err != nil {
				return err
			}
			for _, k := range prefs.Keys() {
				v, _ := p.Get(k)
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", k, v)
			}
			return nil
		})
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			p, err := loadPrefs(kv)
			if err != nil {
				return err
			}
			v, err := p.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			p, err := loadPrefs(kv)
			if err != nil {
				return err
			}
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			return prefs.Save(kv, p)
		})
	},
}

func init() {
	prefsCmd.AddCommand(prefsListCmd, prefsGetCmd, prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}
