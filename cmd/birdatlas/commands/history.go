package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/training"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded training runs",
	Long: `Without arguments, list training runs newest first. With a run ID, or
"latest", show that run's epochs. "history delete <run-id>" removes a run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		history, db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		if len(args) == 0 {
			runs, err := history.Runs(ctx)
			if err != nil {
				return err
			}
			return output(cli.RunsReport{Runs: runs})
		}

		var run training.RunSummary
		if args[0] == "latest" {
			run, err = history.Latest(ctx)
		} else {
			run, err = history.Run(ctx, args[0])
		}
		if err != nil {
			return err
		}
		epochs, err := history.Epochs(ctx, run.ID)
		if err != nil {
			return err
		}
		return output(cli.RunReport{RunSummary: run, EpochMetrics: epochs})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded training run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		history, db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := history.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("deleted run %s", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyDeleteCmd)
}
