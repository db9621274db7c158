package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/traits/bootstrap"
	"github.com/artpar/traits/config"
)

var serveWatch bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [manifest]",
		Short: "Serve the introspection API for a role manifest",
		Long: `Start the HTTP introspection server.

The server will:
  - Load configuration from traits.yaml (or --config), if present
  - Otherwise serve the manifest given as argument with default settings
  - Record every role application in the audit store
  - Rebuild the manifest on SIGHUP, and on file changes with --watch

Environment variables:
  TRAITS_SERVER_HOST       - Listen host (default: 127.0.0.1)
  TRAITS_SERVER_PORT       - Listen port (default: 8080)
  TRAITS_MANIFEST_PATH     - Manifest to serve
  TRAITS_AUDIT_DRIVER      - memory, sqlite or none
  TRAITS_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  traits serve --config /etc/traits/traits.yaml
  traits serve roles.yaml --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}

	cmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild when the config or manifest file changes")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, holder, err := prepareServe(args)
	if err != nil {
		return err
	}
	defer holder.Stop()

	return a.Run()
}

// prepareServe builds the application and wires its reload triggers
// without starting the listener. Without a config file the manifest
// argument is served with default settings.
func prepareServe(args []string) (*bootstrap.App, *config.Holder, error) {
	var (
		manifestPath string
		opts         []config.HolderOption
	)
	if len(args) == 1 {
		manifestPath = args[0]
		opts = append(opts, config.WithManifestPath(manifestPath))
	}

	bootLogger := bootstrap.NewLogger(config.LoggingConfig{Level: "info", Format: "json"})

	var holder *config.Holder
	if _, err := os.Stat(cfgFile); err == nil {
		holder, err = config.NewHolder(cfgFile, bootLogger, opts...)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg, err := config.Default(manifestPath)
		if err != nil {
			return nil, nil, fmt.Errorf("no config file at %s and %w", cfgFile, err)
		}
		holder = config.NewStaticHolder(cfg, bootLogger)
	}

	cfg := holder.Get()
	logger := bootstrap.NewLogger(cfg.Logging)

	a, err := bootstrap.New(cfg, logger)
	if err != nil {
		holder.Stop()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	holder.OnChange(func(next *config.Config) {
		if err := a.Reload(next); err != nil {
			logger.Error().Err(err).Msg("reload failed")
		}
	})
	holder.WatchSignals()

	if serveWatch || cfg.Manifest.Watch {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("file watching disabled")
		}
	}

	return a, holder, nil
}
