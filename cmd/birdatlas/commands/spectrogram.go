package commands

import (
	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/audiofile"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var spectrogramPCMRate int

var spectrogramCmd = &cobra.Command{
	Use:   "spectrogram <file>",
	Short: "Compute the model's mel spectrogram of a file",
	Long: `Compute the normalized log-mel spectrogram the classifier sees for a
file after resampling, peak normalization and fitting to the target
duration. The table output is a coarse heat map; -o json includes the
full matrix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		buf, err := audiofile.Decode(args[0], spectrogramPCMRate)
		if err != nil {
			return err
		}
		ex, err := fbank.New(cfg.Spectrogram, cfg.Method())
		if err != nil {
			return err
		}
		spec, err := ex.FromWaveform(buf.Samples, buf.SampleRate)
		if err != nil {
			return err
		}
		r := cli.SpectrogramReport{
			File:        args[0],
			SampleRate:  buf.SampleRate,
			Duration:    float64(len(buf.Samples)) / float64(buf.SampleRate),
			Frames:      spec.Frames(),
			Bins:        spec.Bins(),
			Spectrogram: spec,
		}
		return output(r)
	},
}

func init() {
	spectrogramCmd.Flags().IntVar(&spectrogramPCMRate, "pcm-rate", 22050, "sample rate of headerless .pcm files")
}
