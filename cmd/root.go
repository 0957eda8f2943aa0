package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/config"
	"github.com/fakeyudi/playground/internal/logging"
	"github.com/fakeyudi/playground/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the process logger, populated in PersistentPreRunE.
var logger = logging.Discard()

var logCloser io.Closer

var (
	baseURLFlag string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:           "playground",
	Short:         "Edit, run and share code on a playground server from the terminal",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		// Flags win over files and environment.
		if baseURLFlag != "" {
			cfg.BaseURL = baseURLFlag
		}
		if verboseFlag {
			cfg.LogLevel = "debug"
		}

		setupLogging(cmd.ErrOrStderr())
		logger.Debug("config loaded", "base_url", cfg.BaseURL, "reconnect", cfg.ReconnectEnabled())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

// setupLogging (re)builds the process logger writing to stderr and the
// daily log file.
func setupLogging(stderr io.Writer) {
	closeLog()
	logDir := ""
	if dir, err := dataDir(); err == nil {
		logDir = filepath.Join(dir, "logs")
	}
	logger, logCloser = logging.New(logging.Config{
		Level:   cfg.LogLevel,
		JSON:    cfg.JSONLogs(),
		LogDir:  logDir,
		Service: "playground",
		Stderr:  stderr,
	})
	slog.SetDefault(logger)
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "playground server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging on stderr")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// dataDir is the configured data directory or the XDG default.
func dataDir() (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return session.DataDir()
}
