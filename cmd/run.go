package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/ai"
	"github.com/fakeyudi/playground/internal/languages"
	"github.com/fakeyudi/playground/internal/runner"
	"github.com/fakeyudi/playground/internal/tabs"
)

var (
	runStdin      string
	suggestMode   string
	suggestPrompt string
)

// remoteTab reads a project file into a detached tab.
func remoteTab(cmd *cobra.Command, o *oneShot, filePath string) (tabs.Tab, error) {
	content, err := o.client.ReadFile(cmd.Context(), filePath)
	if err != nil {
		return tabs.Tab{}, describe(err)
	}
	lang := languages.Default()
	if l, ok := languages.ForFile(path.Base(filePath)); ok {
		lang = l
	}
	return tabs.Tab{
		Name:       path.Base(filePath),
		Path:       filePath,
		LanguageID: lang.ID,
		Content:    content,
	}, nil
}

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Execute a project file in the sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()

		p, err := loadPrefs(o.kv)
		if err != nil {
			return err
		}
		tab, err := remoteTab(cmd, o, args[0])
		if err != nil {
			return err
		}
		stdin := ""
		if runStdin != "" {
			if stdin, err = readSource(cmd, runStdin); err != nil {
				return err
			}
		}

		r := runner.New(o.client, o.kv, p.RunLimit, logger)
		res, err := r.Run(cmd.Context(), tab, stdin)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.CompileOutput != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), res.CompileOutput)
		}
		fmt.Fprint(out, res.Stdout)
		if res.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		}
		summary := fmt.Sprintf("%s in %ss", res.Status, res.Time)
		if p.RunLimit > 0 {
			summary += fmt.Sprintf(", %d runs left today", r.Remaining())
		}
		fmt.Fprintln(cmd.ErrOrStderr(), summary)
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <path>",
	Short: "Ask the assistant about a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := ai.Mode(strings.ToLower(suggestMode))
		known := false
		for _, m := range ai.Modes() {
			known = known || m == mode
		}
		if !known {
			return fmt.Errorf("unknown mode %q", suggestMode)
		}
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()
		tab, err := remoteTab(cmd, o, args[0])
		if err != nil {
			return err
		}

		s := ai.New(cfg.BaseURL, o.client.Token(), cfg.AIModel, nil, logger)
		reply, err := s.Suggest(cmd.Context(), ai.Request{
			Mode:       mode,
			LanguageID: tab.LanguageID,
			Code:       tab.Content,
			Question:   suggestPrompt,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "program input from a local file, or - for stdin")

	names := make([]string, 0, len(ai.Modes()))
	for _, m := range ai.Modes() {
		names = append(names, string(m))
	}
	suggestCmd.Flags().StringVarP(&suggestMode, "mode", "m", string(ai.ModeExplain), strings.Join(names, " | "))
	suggestCmd.Flags().StringVarP(&suggestPrompt, "question", "q", "", "question for the assistant (required with --mode ask)")

	rootCmd.AddCommand(runCmd, suggestCmd)
}
