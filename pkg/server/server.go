// Package server exposes the inference service over HTTP.
//
// Routes:
//
//	POST /api/identify   JSON clip in, birdid.IdentifyResult out
//	GET  /api/status     model lifecycle
//	POST /api/reload     discard the model or a failed load and load again
//	GET  /api/labels?q=  label search (all labels when q is empty)
//	GET  /api/live       websocket: PCM chunks in, live spectrogram frames out
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/inference"
)

// MaxRequestBytes bounds the body of an identify request.
const MaxRequestBytes = 64 << 20

// Options configures a Server.
type Options struct {
	// Service answers identification requests. Required.
	Service *inference.Service

	// Addr is the listen address for ListenAndServe.
	Addr string

	// Live configures the /api/live stream.
	Live LiveConfig

	Logger *slog.Logger
}

// Server is the HTTP front end of an inference.Service.
type Server struct {
	svc      *inference.Service
	addr     string
	live     LiveConfig
	log      *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("server: service is required: %w", birdid.ErrPrecondition)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:  opts.Service,
		addr: opts.Addr,
		live: opts.Live.withDefaults(),
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/identify", s.handleIdentify)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
	s.mux.HandleFunc("GET /api/labels", s.handleLabels)
	s.mux.HandleFunc("GET /api/live", s.handleLive)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", ln.Addr().String())
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdown); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// IdentifyRequest is the body of POST /api/identify.
type IdentifyRequest struct {
	Samples    []float32   `json:"samples"`
	SampleRate int         `json:"sampleRate"`
	TopK       int         `json:"topK,omitempty"`
	Geo        *birdid.Geo `json:"geo,omitempty"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	log := s.log.With("request", reqID)

	var req IdentifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		log.Warn("bad identify request", "error", err)
		writeJSON(w, http.StatusBadRequest, birdid.IdentifyResult{
			Predictions: []birdid.Prediction{},
			Error:       fmt.Sprintf("decode request: %v", err),
		})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = inference.DefaultTopK
	}

	res := s.svc.Identify(r.Context(), req.Samples, req.SampleRate, topK, req.Geo)
	log.Debug("identify", "samples", len(req.Samples), "rate", req.SampleRate,
		"success", res.Success, "demo", res.Demo, "ms", res.ProcessingTimeMs)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handleReload answers with the resulting status: 200 when the model is
// loaded, 503 when the new attempt failed too.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reload(r.Context()); err != nil {
		s.log.Warn("model reload failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, s.svc.Status())
		return
	}
	s.log.Info("model reloaded")
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// LabelsResponse is the body of GET /api/labels.
type LabelsResponse struct {
	Labels birdid.ClassList `json:"labels"`
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	var labels birdid.ClassList
	if q := r.URL.Query().Get("q"); q != "" {
		labels = s.svc.SearchLabels(q)
	} else {
		labels = s.svc.Classes()
	}
	if labels == nil {
		labels = birdid.ClassList{}
	}
	writeJSON(w, http.StatusOK, LabelsResponse{Labels: labels})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
