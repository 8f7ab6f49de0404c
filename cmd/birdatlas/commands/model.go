package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect or delete the stored model",
}

var modelSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the layer table of the stored model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		store, source, err := openModelStore(cfg)
		if err != nil {
			return err
		}
		b, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		m, err := b.Artifact.Build()
		if err != nil {
			return err
		}
		trainable, frozen := m.CountParams()
		return output(cli.ModelReport{
			Source:      source,
			Classes:     len(b.Classes),
			Spectrogram: b.Artifact.Spectrogram,
			Trainable:   trainable,
			Frozen:      frozen,
			WeightBytes: int64(trainable+frozen) * 4,
			Summary:     m.Summary(),
		})
	},
}

var modelDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		store, source, err := openModelStore(cfg)
		if err != nil {
			return err
		}
		if err := store.Delete(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("deleted model at %s", source)
		return nil
	},
}

func init() {
	modelCmd.AddCommand(modelSummaryCmd, modelDeleteCmd)
}
