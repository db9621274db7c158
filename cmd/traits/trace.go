package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/traits/core/manifest"
	"github.com/artpar/traits/core/registry"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <manifest> <class> <method> [args...]",
		Short: "Call a method and print the order its advice ran in",
		Long: `Build a manifest, call a method on a fresh instance of a class or
application, and print every implementation and advice step in the order
they ran.

Example:
  traits trace roles.yaml AuditedCounter increment`,
		Args: cobra.MinimumNArgs(3),
		RunE: runTrace,
	}
}

func runTrace(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	world, buildErr := m.Build(registry.New(registry.WithLogger(cliLogger(cmd))))
	if _, ok := world.Class(args[1]); !ok && buildErr != nil {
		return buildErr
	}

	callArgs := make([]any, 0, len(args)-3)
	for _, a := range args[3:] {
		callArgs = append(callArgs, a)
	}

	result, trace, err := world.Invoke(args[1], args[2], callArgs...)

	out := cmd.OutOrStdout()
	for i, step := range trace {
		fmt.Fprintf(out, "%3d  %s\n", i+1, step)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "=> %v\n", result)
	return nil
}
