// Package main provides the CLI entry point for brcplan.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/brcplan/internal/capability"
)

const (
	appName    = "brcplan"
	appVersion = "0.3.0"
)

// errReported marks failures the reporter has already shown.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Plan wavefront partitions and bitrate decisions for parallel encoders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSimulateCmd(),
		newPlanCmd(),
		newInspectCmd(),
		newProfilesCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List capability profiles and the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			host := capability.Host()
			fmt.Fprintf(w, "Host: %s (%d workers)\n\n", host.String(), host.Workers())
			for _, name := range capability.Names() {
				p, err := capability.Lookup(name)
				if err != nil {
					return err
				}
				marker := " "
				if p.Name == capability.Default.Name {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %-6s lcu=%d colors=%d slices<=%d %s\n",
					marker, p.Name, p.LCUSize, p.MaxColors, p.MaxSlices, features(p))
			}
			return nil
		},
	}
}

func features(p capability.Profile) string {
	var f []string
	if p.Zigzag {
		f = append(f, "zigzag")
	}
	if p.ParallelBRC {
		f = append(f, "parallel-brc")
	}
	if p.RegionControl {
		f = append(f, "region-control")
	}
	if len(f) == 0 {
		return "diagonal only"
	}
	return strings.Join(f, ", ")
}
