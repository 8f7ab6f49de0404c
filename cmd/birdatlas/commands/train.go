package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/dataset"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/training"
)

var (
	trainData     datasetFlags
	trainEpochs   int
	trainBatch    int
	trainLR       float64
	trainPatience int
	trainWorkers  int
	trainPCMRate  int
	trainNoAug    bool
	trainHQ       bool
	trainNoBars   bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier",
	Long: `Train the spectrogram classifier on a labeled dataset.

The dataset directory holds one subdirectory per class ID listed in the
manifest, each with .wav, .flac or .pcm recordings. The best model by
validation accuracy is checkpointed to the model store, and every epoch
is recorded in the training history.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	bindDatasetFlags(trainCmd, &trainData)
	f := trainCmd.Flags()
	f.IntVar(&trainEpochs, "epochs", 0, "maximum epochs")
	f.IntVar(&trainBatch, "batch-size", 0, "batch size")
	f.Float64Var(&trainLR, "lr", 0, "learning rate")
	f.IntVar(&trainPatience, "patience", -1, "early stopping patience in epochs")
	f.IntVar(&trainWorkers, "workers", 0, "feature extraction workers (default: dataset.workers or GOMAXPROCS)")
	f.IntVar(&trainPCMRate, "pcm-rate", 22050, "sample rate of headerless .pcm files")
	f.BoolVar(&trainNoAug, "no-augment", false, "disable spectrogram augmentation")
	f.BoolVar(&trainHQ, "hq-resample", false, "use the high quality resampler")
	f.BoolVar(&trainNoBars, "no-progress", false, "disable progress bars")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	trainData.apply(cfg)
	tc := cfg.Training
	if trainEpochs > 0 {
		tc.Epochs = trainEpochs
	}
	if trainBatch > 0 {
		tc.BatchSize = trainBatch
	}
	if trainLR > 0 {
		tc.LearningRate = trainLR
	}
	if trainPatience >= 0 {
		tc.Patience = trainPatience
	}
	if trainNoAug {
		tc.Augment = false
	}
	if trainHQ {
		tc.HighQuality = true
	}
	workers := cfg.Dataset.Workers
	if trainWorkers > 0 {
		workers = trainWorkers
	}

	classes, split, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	stats := dataset.StatsOf(split)
	slog.Info("dataset split", "train", stats.TrainCount, "validation", stats.ValidationCount, "test", stats.TestCount)

	store, source, err := openModelStore(cfg)
	if err != nil {
		return err
	}
	history, db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := training.Options{
		Config:      tc,
		Spectrogram: cfg.Spectrogram,
		Method:      cfg.Method(),
		Checkpoints: store,
		History:     history,
		Loader:      dataset.FileLoader(trainPCMRate),
		Workers:     workers,
		Logger:      slog.Default(),
	}
	if !trainNoBars {
		opts.Progress = os.Stderr
	}
	trainer, err := training.New(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	res, err := trainer.Run(ctx, split, classes)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	cli.PrintSuccess("model saved to %s", source)
	return output(cli.TrainReport{Result: *res, ClassNames: classes.Names()})
}
