package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var labelsCmd = &cobra.Command{
	Use:   "labels [query]",
	Short: "List or search the labels of the loaded model",
	Long: `List every label of the model, or up to 20 whose ID, common name or
scientific name contains the query (case-insensitive).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		svc, _, err := newService(cfg)
		if err != nil {
			return err
		}
		defer svc.Unload()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		if err := svc.Load(ctx); err != nil {
			return err
		}
		labels := svc.Classes()
		if len(args) == 1 {
			labels = svc.SearchLabels(args[0])
		}
		return output(cli.LabelsReport{Labels: labels})
	},
}
