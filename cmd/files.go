package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/languages"
)

var (
	lsFlat      bool
	newFromFile string
	rmYes       bool
	searchMax   int
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the project tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()

		if lsFlat {
			files, err := o.explorer.Files(cmd.Context())
			if err != nil {
				return describe(err)
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		}
		tree, err := o.explorer.Tree(cmd.Context())
		if err != nil {
			return describe(err)
		}
		favs := map[string]bool{}
		for _, f := range o.explorer.Favorites() {
			favs[f] = true
		}
		printTree(cmd, tree, "", favs)
		return nil
	},
}

func printTree(cmd *cobra.Command, nodes []api.Node, indent string, favs map[string]bool) {
	for _, n := range nodes {
		mark := ""
		if favs[n.Path] {
			mark = " ★"
		}
		if n.IsFolder() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s/%s\n", indent, n.Name, mark)
			printTree(cmd, n.Children, indent+"  ", favs)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s%s\n", indent, n.Name, mark)
	}
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		content, err := client.ReadFile(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <path> [local-file|-]",
	Short: "Overwrite a project file with a local file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := "-"
		if len(args) == 2 {
			src = args[1]
		}
		content, err := readSource(cmd, src)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.SaveFile(cmd.Context(), args[0], content); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes).\n", args[0], len(content))
		return nil
	},
}

func readSource(cmd *cobra.Command, src string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return string(data), nil
}

var newCmd = &cobra.Command{
	Use:   "new <path>",
	Short: "Create a project file, starting from the language template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := ""
		if l, ok := languages.ForFile(path.Base(args[0])); ok {
			content = l.Template
		}
		if newFromFile != "" {
			c, err := readSource(cmd, newFromFile)
			if err != nil {
				return err
			}
			content = c
		}
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()
		if _, err := o.life.CreateFile(cmd.Context(), args[0], content, false); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s.\n", args[0])
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a project folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()
		if err := o.life.CreateFolder(cmd.Context(), args[0]); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder %s.\n", args[0])
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <path> <new-name>",
	Short: "Rename a project file within its folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()
		t, err := o.life.Open(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		renamed, err := o.life.Rename(cmd.Context(), t.ID, args[1])
		if err != nil {
			return describe(err)
		}
		if err := o.explorer.Move(t.Path, renamed.Path); err != nil {
			logger.Debug("explorer lists not updated", "error", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s.\n", t.Path, renamed.Path)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOneShot(cmd, rmYes)
		if err != nil {
			return err
		}
		defer o.Close()
		t, err := o.life.Open(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		if err := o.life.Delete(cmd.Context(), t.ID); err != nil {
			return describe(err)
		}
		if err := o.explorer.Forget(t.Path); err != nil {
			logger.Debug("explorer lists not updated", "error", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", t.Path)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search project files for a line of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		hits, err := client.Search(cmd.Context(), strings.Join(args, " "), searchMax)
		if err != nil {
			return describe(err)
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%d: %s\n", h.File, h.LineNum, strings.TrimSpace(h.Line))
		}
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsFlat, "flat", false, "print one file path per line")
	newCmd.Flags().StringVar(&newFromFile, "from", "", "initial content from a local file, or - for stdin")
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "delete without asking")
	searchCmd.Flags().IntVar(&searchMax, "max", 0, "maximum number of matches (server default when 0)")

	rootCmd.AddCommand(lsCmd, catCmd, saveCmd, newCmd, mkdirCmd, mvCmd, rmCmd, searchCmd)
}
