package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	outputFile   string
	verbose      bool

	// Global configuration
	globalConfig  *cli.Config
	configLoadErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "birdatlas",
	Short: "Bird sound identification",
	Long: `birdatlas - train and serve a bird species classifier.

Recordings are turned into normalized log-mel spectrograms and classified
by a small convolutional network trained here, or by a pretrained ONNX
model with an optional location prior.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/birdatlas/
  Linux:   ~/.config/birdatlas/
  Windows: %AppData%/birdatlas/

Examples:
  # Train on data/<class id>/*.wav with the classes listed in birds.yaml
  birdatlas train --dataset data --manifest birds.yaml

  # Identify a recording
  birdatlas identify dawn-chorus.wav --top-k 3

  # Serve /api/identify, /api/status, /api/labels and /api/live
  birdatlas serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <config dir>/birdatlas/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&outputFile, "out-file", "", "write output to a file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		trainCmd,
		identifyCmd,
		serveCmd,
		statusCmd,
		labelsCmd,
		spectrogramCmd,
		datasetCmd,
		historyCmd,
		modelCmd,
		configCmd,
	)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	// Errors are reported by the commands that need the config.
	globalConfig, configLoadErr = cli.LoadConfig(cfgFile)
}

// getConfig returns the loaded configuration.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// output writes v in the --output format.
func output(v any) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: format, File: outputFile})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
