package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/inference"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/server"
)

var (
	serveAddr    string
	servePreload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the identification API",
	Long: `Serve the HTTP API:

  POST /api/identify   {"samples": [...], "sampleRate": 22050, "topK": 5, "geo": {...}}
  GET  /api/status
  POST /api/reload     retry a failed load or pick up a new model
  GET  /api/labels?q=robin
  GET  /api/live       websocket, binary float32 (or ?format=pcm16) chunks in,
                       JSON spectrogram frames out

The model is loaded on the first request unless --preload is set. A
failed load is reported until POST /api/reload or SIGHUP starts a new
attempt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&servePreload, "preload", false, "load the model before accepting requests")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	svc, source, err := newService(cfg)
	if err != nil {
		return err
	}
	defer svc.Unload()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if servePreload {
		if err := svc.Load(ctx); err != nil {
			slog.Warn("preload failed, requests will report it", "source", source, "error", err)
		}
	}

	go reloadOnHangup(ctx, svc)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv, err := server.New(server.Options{
		Service: svc,
		Addr:    addr,
		Live:    cfg.Server.Live,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}
	slog.Info("serving model", "variant", cfg.Model.Variant, "source", source)
	return srv.ListenAndServe(ctx)
}

// reloadOnHangup reloads the model on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, svc *inference.Service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			slog.Info("SIGHUP received, reloading model")
			if err := svc.Reload(ctx); err != nil {
				slog.Warn("model reload failed", "error", err)
				continue
			}
			slog.Info("model reloaded", "classes", svc.Status().NumClasses)
		}
	}
}
