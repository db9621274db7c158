package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traits",
		Short: "Compose roles and check role manifests",
		Long: `traits composes roles (bundles of methods, requirements and method
modifiers) onto classes declared in a YAML manifest.

Quick start:
  traits check roles.yaml                 # Build a manifest and report problems
  traits trace roles.yaml Counter run     # Call a method and print the advice order
  traits serve --config traits.yaml       # Serve the introspection API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "traits.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log role applications to stderr")

	cmd.AddCommand(newCheckCmd(), newTraceCmd(), newServeCmd(), newVersionCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliLogger returns a console logger on stderr with --verbose, a no-op
// logger otherwise, so command output stays machine-readable.
func cliLogger(cmd *cobra.Command) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}
