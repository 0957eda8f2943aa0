package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/explorer"
	"github.com/fakeyudi/playground/internal/identity"
	"github.com/fakeyudi/playground/internal/localstore"
)

var (
	leaderboardLimit int
	termCwd          string
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			for _, p := range explorer.New(nil, kv, logger).Recent() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		})
	},
}

var favCmd = &cobra.Command{
	Use:   "fav [path]",
	Short: "List favorites, or toggle a file's favorite mark",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			exp := explorer.New(nil, kv, logger)
			if len(args) == 0 {
				for _, p := range exp.Favorites() {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}
			on, err := exp.ToggleFavorite(args[0])
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as a favorite.\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites.\n", args[0])
			}
			return nil
		})
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the top users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		entries, err := client.Leaderboard(cmd.Context(), leaderboardLimit)
		if err != nil {
			return describe(err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nobody has scored yet")
			return nil
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("#", "USER", "SCORE", "RUNS")
		for _, e := range entries {
			t.Row(strconv.Itoa(e.Rank), e.User, strconv.Itoa(e.Score), strconv.Itoa(e.Runs))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}

var termCmd = &cobra.Command{
	Use:   "term <command...>",
	Short: "Run a command on the server's terminal backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		res, err := client.Terminal(cmd.Context(), strings.Join(args, " "), termCwd)
		if err != nil {
			return describe(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Output)
		if res.ExitCode != 0 {
			return fmt.Errorf("exit status %d", res.ExitCode)
		}
		return nil
	},
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Print this profile's collaboration client id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(func(kv *localstore.Badger) error {
			fmt.Fprintln(cmd.OutOrStdout(), identity.GetOrCreate(kv, logger).ClientID())
			return nil
		})
	},
}

func init() {
	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "n", 0, "number of entries (server default when 0)")
	termCmd.Flags().StringVar(&termCwd, "cwd", "", "working directory on the server")
	termCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(recentCmd, favCmd, leaderboardCmd, termCmd, idCmd)
}
