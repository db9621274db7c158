package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/traits/core/formatter"
	"github.com/artpar/traits/core/manifest"
	"github.com/artpar/traits/core/registry"
)

var (
	checkFormat   string
	checkNoHeader bool
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <manifest>",
		Short: "Build a role manifest and report every problem",
		Long: `Build every class, role and application in a manifest and report the
outcome of each entry. Conflicts, missing requirements, unknown names and
composition cycles are all reported; the command fails if any entry failed.

Examples:
  traits check roles.yaml
  traits check roles.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}

	cmd.Flags().StringVarP(&checkFormat, "format", "f", "table", "output format: "+strings.Join(formatter.List(), ", "))
	cmd.Flags().BoolVar(&checkNoHeader, "no-header", false, "omit the table header")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	f, ok := formatter.Get(checkFormat)
	if !ok {
		return fmt.Errorf("unknown format %q (available: %s)", checkFormat, strings.Join(formatter.List(), ", "))
	}

	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	world, buildErr := m.Build(registry.New(registry.WithLogger(cliLogger(cmd))))

	report := checkReport(args[0], world)
	if err := f.Format(cmd.OutOrStdout(), report, formatter.FormatOptions{NoHeader: checkNoHeader}); err != nil {
		return fmt.Errorf("format report: %w", err)
	}

	var be *manifest.BuildError
	if errors.As(buildErr, &be) {
		return fmt.Errorf("%s: %d problem(s)", args[0], len(be.Problems))
	}
	return buildErr
}

func checkReport(path string, world *manifest.World) formatter.Report {
	report := formatter.Report{
		Title:   path,
		Columns: []string{"kind", "name", "status", "detail"},
	}
	for _, res := range world.Results {
		status, detail := "ok", res.Detail
		if !res.OK() {
			status, detail = "error", res.Err.Error()
		}
		report.Rows = append(report.Rows, map[string]any{
			"kind":   res.Kind,
			"name":   res.Name,
			"status": status,
			"detail": detail,
		})
	}
	return report
}
