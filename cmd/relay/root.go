package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OCAP2/relay/internal/config"
)

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Telemetry relay and snapshot fan-out",
		Version:       fmt.Sprintf("%s (built %s)", CurrentVersion, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configDir); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".",
		"directory holding "+config.FileName)

	serve := newServeCmd()
	root.AddCommand(serve, newProbeCmd())

	// bare "relay" serves
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}
