// Package cli provides the configuration file, directory layout and
// terminal output shared by the birdatlas commands.
//
// Configuration is stored in <UserConfigDir>/birdatlas/config.yaml and
// covers the spectrogram parameters, training defaults, the model store
// (local directory or S3), the history database, the HTTP server and the
// model variant (custom network or pretrained ONNX).
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("")
//	paths, err := cli.NewPaths()
//	fs, err := cfg.Store.Open(paths.DataDir())
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
