package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load the model and report its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		svc, source, err := newService(cfg)
		if err != nil {
			return err
		}
		defer svc.Unload()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		// A failed load is part of the status, not a command error.
		_ = svc.Load(ctx)
		return output(cli.StatusReport{Status: svc.Status(), Variant: cfg.Model.Variant, Source: source})
	},
}
