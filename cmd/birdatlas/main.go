// Package main is the entry point for the birdatlas CLI.
//
// Usage:
//
//	birdatlas [flags] <command> [args]
//
// Commands:
//
//	train        - Train the classifier on a labeled recording directory
//	identify     - Identify species in audio files
//	serve        - Serve the HTTP and live spectrogram API
//	status       - Load the model and report its state
//	labels       - List or search model labels
//	spectrogram  - Render the mel spectrogram of a file
//	dataset      - Index a dataset and show split statistics
//	history      - Show recorded training runs
//	model        - Inspect or delete the stored model
//	config       - Show the configuration
package main

import (
	"fmt"
	"os"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/cmd/birdatlas/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
