package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/bundle"
)

var (
	exportFormat    string
	exportOut       string
	importOverwrite bool
)

// exportPaths resolves what to export when no paths are named: every
// project file for the "all" scope, else the most recently opened file.
func exportPaths(cmd *cobra.Command, o *oneShot, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	p, err := loadPrefs(o.kv)
	if err != nil {
		return nil, err
	}
	if p.ExportScope == "all" {
		files, err := o.explorer.Files(cmd.Context())
		if err != nil {
			return nil, describe(err)
		}
		return files, nil
	}
	recent := o.explorer.Recent()
	if len(recent) == 0 {
		return nil, errors.New("no recently opened file; name the files to export")
	}
	return recent[:1], nil
}

var exportCmd = &cobra.Command{
	Use:   "export [path...]",
	Short: "Bundle project files into a Markdown or JSON export",
	Long: `export writes the named files into one document. Without paths it follows
the export_scope preference: "active" exports the most recently opened file,
"all" exports the whole project.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := bundle.RendererFor(exportFormat)
		if err != nil {
			return err
		}
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()

		paths, err := exportPaths(cmd, o, args)
		if err != nil {
			return err
		}
		b := &bundle.Bundle{Version: bundle.Version, Origin: cfg.BaseURL, ExportedAt: time.Now().UTC()}
		if s, err := currentSession(); err == nil && s != nil {
			b.Author = s.User
		}
		for _, p := range paths {
			content, err := o.client.ReadFile(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("export %s: %w", p, describe(err))
			}
			b.Files = append(b.Files, bundle.NewFile(p, content))
		}

		data, err := r.Render(b)
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d file(s) to %s.\n", len(b.Files), exportOut)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <export-file>",
	Short: "Create project files from an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		b, err := bundle.ParserFor(args[0]).Parse(data)
		if err != nil {
			return err
		}
		o, err := newOneShot(cmd, false)
		if err != nil {
			return err
		}
		defer o.Close()

		out := cmd.OutOrStdout()
		created, skipped := 0, 0
		for _, f := range b.Files {
			_, err := o.life.CreateFile(cmd.Context(), f.Path, f.Content, false)
			switch {
			case err == nil:
				created++
				fmt.Fprintf(out, "created %s\n", f.Path)
			case errors.Is(err, api.ErrConflict) && importOverwrite:
				if err := o.client.SaveFile(cmd.Context(), f.Path, f.Content); err != nil {
					return fmt.Errorf("import %s: %w", f.Path, describe(err))
				}
				created++
				fmt.Fprintf(out, "overwrote %s\n", f.Path)
			case errors.Is(err, api.ErrConflict):
				skipped++
				fmt.Fprintf(out, "skipped %s (exists)\n", f.Path)
			default:
				return fmt.Errorf("import %s: %w", f.Path, describe(err))
			}
		}
		fmt.Fprintf(out, "%d written, %d skipped.\n", created, skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "markdown | json")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (stdout when empty)")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace files that already exist")

	rootCmd.AddCommand(exportCmd, importCmd)
}
