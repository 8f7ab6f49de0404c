package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/audiofile"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/inference"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/server"
)

var (
	identifyTopK    int
	identifyLat     float64
	identifyLon     float64
	identifyWeek    int
	identifyPCMRate int
	identifyRequest string
)

var identifyCmd = &cobra.Command{
	Use:   "identify [file...]",
	Short: "Identify species in audio files",
	Long: `Identify the most likely species in each file.

With --request, a saved /api/identify body (JSON or YAML, "-" for stdin)
is identified instead of files. --lat, --lon and --week feed the location
prior of ONNX models that ship a metadata model.`,
	RunE: runIdentify,
}

func init() {
	f := identifyCmd.Flags()
	f.IntVarP(&identifyTopK, "top-k", "k", inference.DefaultTopK, "number of predictions")
	f.Float64Var(&identifyLat, "lat", 0, "recording latitude")
	f.Float64Var(&identifyLon, "lon", 0, "recording longitude")
	f.IntVar(&identifyWeek, "week", 0, "week of year, 1-48")
	f.IntVar(&identifyPCMRate, "pcm-rate", 22050, "sample rate of headerless .pcm files")
	f.StringVarP(&identifyRequest, "request", "f", "", "identify a saved request body")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && identifyRequest == "" {
		return fmt.Errorf("no input: pass audio files or --request")
	}
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

	var geo *birdid.Geo
	if cmd.Flags().Changed("week") {
		geo = &birdid.Geo{Lat: identifyLat, Lon: identifyLon, Week: identifyWeek}
	}

	if identifyRequest != "" {
		var req server.IdentifyRequest
		if err := cli.LoadRequest(identifyRequest, &req); err != nil {
			return err
		}
		if req.TopK <= 0 {
			req.TopK = identifyTopK
		}
		if req.Geo == nil {
			req.Geo = geo
		}
		res := svc.Identify(ctx, req.Samples, req.SampleRate, req.TopK, req.Geo)
		return output(cli.IdentifyReport{File: identifyRequest, IdentifyResult: res})
	}

	for _, path := range args {
		buf, err := audiofile.Decode(path, identifyPCMRate)
		if err != nil {
			return err
		}
		slog.Debug("decoded", "file", path, "samples", len(buf.Samples), "rate", buf.SampleRate)
		res := svc.Identify(ctx, buf.Samples, buf.SampleRate, identifyTopK, geo)
		if err := output(cli.IdentifyReport{File: path, IdentifyResult: res}); err != nil {
			return err
		}
	}
	return nil
}
