// Command girandola drops and lists markers on a Girandola server from the
// terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/girandola/internal/client"
	"github.com/mmynk/girandola/pkg/logging"
)

type globalOptions struct {
	server   string
	token    string
	logLevel string
	timeout  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "girandola",
		Short:         "Drop geotagged markers on a shared map",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupWithLevel(logging.ParseLevel(opts.logLevel))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("GIRANDOLA_SERVER", "http://localhost:8080"), "server base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("GIRANDOLA_TOKEN"), "session token")
	flags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "debug, info, warn or error")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newListCmd(opts),
		newDropCmd(opts),
		newExportCmd(opts),
		newTopCmd(opts),
		newLoginCmd(opts),
		newWhoamiCmd(opts),
	)
	return root
}

func (o *globalOptions) client() (*client.Client, error) {
	c, err := client.New(o.server, client.WithToken(o.token))
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return c, nil
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
