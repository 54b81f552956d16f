package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/property-sync/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start an HTTP server exposing sync and property lookup endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = cfg.Server.Port
			}
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on (default: server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	if cfg.Server.APIToken == "" {
		return errors.New("server.api_token is required (set it with psync config init or PSYNC_SERVER_API_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(cmd.Context(), st)

	svc, err := newService(st)
	if err != nil {
		logger.Warn().Err(err).Msg("sync endpoint disabled")
	}

	return web.NewServer(svc, st, cfg.Server.APIToken, logger).ListenAndServe(ctx, port)
}
