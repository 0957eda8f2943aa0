package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/playground/internal/devserver"
)

var (
	serveRoot   string
	serveAddr   string
	serveAuth   bool
	serveSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a local directory over the playground file API and relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := devserver.New(devserver.Options{
			Root:        serveRoot,
			Logger:      logger,
			Secret:      []byte(serveSecret),
			RequireAuth: serveAuth,
		})
		if err != nil {
			return err
		}
		cmd.PrintErrf("Serving %s on %s\n", serveRoot, serveAddr)
		return srv.Run(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", ".", "project directory")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:3000", "listen address")
	serveCmd.Flags().BoolVar(&serveAuth, "auth", false, "require a signed-in token for the file API")
	serveCmd.Flags().StringVar(&serveSecret, "secret", os.Getenv("PLAYGROUND_SERVER_SECRET"), "token signing key (random when empty)")

	rootCmd.AddCommand(serveCmd)
}
