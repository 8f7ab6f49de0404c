package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/dataset"
)

var datasetData datasetFlags

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Index a dataset and show split statistics",
	Long: `Index the dataset exactly as train would and report how many samples
each class has and how they split into training, validation and test.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		datasetData.apply(cfg)
		classes, split, err := loadDataset(cfg)
		if err != nil {
			return err
		}
		return output(cli.DatasetReport{Stats: dataset.StatsOf(split), Classes: classes})
	},
}

func init() {
	bindDatasetFlags(datasetCmd, &datasetData)
}
