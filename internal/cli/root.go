// Package cli defines the cobra command tree for psync.
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/evcraddock/property-sync/internal/client"
	"github.com/evcraddock/property-sync/internal/config"
	"github.com/evcraddock/property-sync/internal/logging"
	"github.com/evcraddock/property-sync/internal/lookup"
	"github.com/evcraddock/property-sync/internal/store"
	"github.com/evcraddock/property-sync/internal/syncer"
)

var (
	flagFormat string
	flagConfig string
	flagStore  string
	flagServer string

	// cfg and logger are set by the root command before any subcommand runs.
	cfg    *config.Config
	logger = zerolog.Nop()
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "psync",
		Short: "Sync property valuation data into a document store",
		Long: "Look up property details from the valuation service by address or id " +
			"and synchronize them into a document store, once per property.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ~/.config/psync/config.yaml)")
	root.PersistentFlags().StringVar(&flagStore, "store", "", "store URI, overrides store.uri (mongodb://... or sqlite://path)")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "psync API URL; sync and show go through it (overrides server.url)")

	root.AddCommand(
		newSyncCmd(),
		newShowCmd(),
		newEstimateCmd(),
		newServeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves configuration and logging for every subcommand.
func loadConfig(cmd *cobra.Command, args []string) error {
	return setup(cmd, flagConfig)
}

func setup(cmd *cobra.Command, configFile string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if flagStore != "" {
		c.Store.URI = flagStore
	}
	if flagServer != "" {
		c.Server.URL = flagServer
	}
	cfg = c

	logger = logging.Setup(logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// openStore opens the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.StoreOptions())
}

// closeStore closes the store, logging any error.
func closeStore(ctx context.Context, s store.Store) {
	if err := s.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("closing store")
	}
}

// newLookupClient creates a valuation service client from config.
func newLookupClient() (*lookup.Client, error) {
	c, err := lookup.NewClient(cfg.Lookup.APIKey, cfg.LookupOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w (set lookup.api_key or PSYNC_LOOKUP_API_KEY)", err)
	}
	return c, nil
}

// newService wires the lookup client and an engine over st. st may be nil
// for commands that never write.
func newService(st store.Store) (*syncer.Service, error) {
	client, err := newLookupClient()
	if err != nil {
		return nil, err
	}
	var engine *syncer.Engine
	if st != nil {
		engine = syncer.NewEngine(st, syncer.WithLogger(logger))
	}
	return syncer.NewService(client, engine, logger), nil
}

// newAPIClient returns a client for the configured server, or nil when
// commands should work against the local store.
func newAPIClient() *client.Client {
	if cfg.Server.URL == "" {
		return nil
	}
	return client.New(cfg.Server.URL, cfg.Server.APIToken)
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}
