// Package inference serves bird species predictions from a loaded
// model.
//
// A [Service] owns the model lifecycle:
//
//	Unloaded ──Load──▶ Loading ──▶ Loaded
//	                       └─────▶ Error (retained until Reload)
//	Loaded ──Unload──▶ Unloaded
//
// Only one load runs at a time; concurrent callers join it. A failed
// load is not retried per request. When no model is available and demo
// classes are configured, [Service.Identify] answers with clearly marked
// synthetic predictions.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// State is the model lifecycle state.
type State string

const (
	Unloaded State = "unloaded"
	Loading  State = "loading"
	Loaded   State = "loaded"
	Error    State = "error"
)

// MaxLabelResults bounds SearchLabels.
const MaxLabelResults = 20

// Options configures a Service.
type Options struct {
	// Loader reads the model. Required.
	Loader Loader

	// DemoClasses enables the demo fallback when the model is
	// unavailable.
	DemoClasses birdid.ClassList
	DemoSeed    int64

	Logger *slog.Logger
}

// Service is the inference entry point. It is safe for concurrent use.
type Service struct {
	loader Loader
	demo   birdid.ClassList
	seed   int64
	log    *slog.Logger

	sf singleflight.Group

	// mu guards the fields below. Predictions hold a read lock for the
	// duration of the forward pass so Unload cannot close a backend in
	// use.
	mu    sync.RWMutex
	state State
	model *Model
	err   error
}

// New returns an unloaded service.
func New(opts Options) (*Service, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("inference: loader is required: %w", birdid.ErrPrecondition)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		loader: opts.Loader,
		demo:   opts.DemoClasses,
		seed:   opts.DemoSeed,
		log:    log,
		state:  Unloaded,
	}, nil
}

// settled returns the outcome of a finished load, if any.
func (s *Service) settled() (done bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case Loaded:
		return true, nil
	case Error:
		return true, s.err
	}
	return false, nil
}

// Load loads the model unless it is already loaded or a previous load
// failed, in which case the retained error is returned. Callers arriving
// during a load wait for it. Cancelling ctx stops the wait, not the load.
func (s *Service) Load(ctx context.Context) error {
	if done, err := s.settled(); done {
		return err
	}
	lctx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan("load", func() (any, error) {
		return nil, s.load(lctx)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadNoWait is Load, except that it returns birdid.ErrLoadInProgress
// instead of waiting for another caller's load.
func (s *Service) LoadNoWait(ctx context.Context) error {
	s.mu.RLock()
	loading := s.state == Loading
	s.mu.RUnlock()
	if loading {
		return birdid.ErrLoadInProgress
	}
	return s.Load(ctx)
}

func (s *Service) load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Loaded:
		s.mu.Unlock()
		return nil
	case Error:
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.state = Loading
	s.mu.Unlock()

	start := time.Now()
	m, err := s.loader.Load(ctx)
	if err == nil {
		err = validate(m)
		if err != nil {
			m.Close()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state, s.err, s.model = Error, err, nil
		s.log.Error("model load failed", "error", err)
		return err
	}
	s.state, s.err, s.model = Loaded, nil, m
	s.log.Info("model loaded", "classes", len(m.Classes), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func validate(m *Model) error {
	if m == nil || m.Backend == nil || m.Features == nil {
		return fmt.Errorf("inference: loader returned an incomplete model: %w", birdid.ErrResourceUnavailable)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("inference: model has no classes: %w", birdid.ErrResourceUnavailable)
	}
	if err := m.Classes.Validate(); err != nil {
		return fmt.Errorf("inference: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	return nil
}

// Unload releases a loaded model, or clears a retained load error. It
// returns birdid.ErrLoadInProgress while a load is running.
func (s *Service) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Loading {
		return birdid.ErrLoadInProgress
	}
	m := s.model
	s.state, s.model, s.err = Unloaded, nil, nil
	if m != nil {
		s.log.Info("model unloaded")
		return m.Close()
	}
	return nil
}

// Reload discards the current model or error and loads again.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.Unload(); err != nil && !errors.Is(err, birdid.ErrLoadInProgress) {
		s.log.Warn("close previous model", "error", err)
	}
	return s.Load(ctx)
}

// Status reports the lifecycle state.
func (s *Service) Status() birdid.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := birdid.Status{Loaded: s.state == Loaded, State: string(s.state)}
	if s.model != nil {
		st.NumClasses = len(s.model.Classes)
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Classes returns the loaded class list, or nil.
func (s *Service) Classes() birdid.ClassList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil
	}
	return s.model.Classes
}

// SearchLabels returns up to MaxLabelResults loaded classes matching q.
func (s *Service) SearchLabels(q string) birdid.ClassList {
	return s.Classes().Search(q, MaxLabelResults)
}

// Predict loads the model if needed, extracts features from samples at
// sampleRate and returns the topK ranked predictions. When geo is set
// and the backend has a metadata model, its prior is fused in before
// ranking. The returned spectrogram may be nil.
func (s *Service) Predict(ctx context.Context, samples []float32, sampleRate, topK int, geo *birdid.Geo) ([]birdid.Prediction, fbank.Spectrogram, error) {
	if err := s.Load(ctx); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.model
	if m == nil {
		return nil, nil, fmt.Errorf("inference: model unloaded: %w", birdid.ErrResourceUnavailable)
	}

	x, spec, err := m.Features.Features(samples, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	probs, err := m.Backend.Predict(ctx, x)
	if err != nil {
		return nil, nil, wrapInference(err)
	}
	if len(probs) != len(m.Classes) {
		return nil, nil, fmt.Errorf("inference: %d outputs for %d classes: %w", len(probs), len(m.Classes), birdid.ErrInference)
	}
	if geo != nil {
		if gs, ok := m.Backend.(GeoScorer); ok && gs.HasGeo() {
			meta, err := gs.PredictGeo(ctx, *geo)
			if err != nil {
				return nil, nil, wrapInference(err)
			}
			probs = Fuse(probs, meta)
		}
	}
	return Rank(probs, m.Classes, topK), spec, nil
}

func wrapInference(err error) error {
	for _, e := range []error{birdid.ErrInference, birdid.ErrPrecondition, birdid.ErrResourceUnavailable} {
		if errors.Is(err, e) {
			return err
		}
	}
	return fmt.Errorf("inference: %w: %w", birdid.ErrInference, err)
}

// Identify is Predict shaped as a response. It never fails: errors are
// reported with Success false, and an unavailable model with demo
// classes configured yields a Demo result.
func (s *Service) Identify(ctx context.Context, samples []float32, sampleRate, topK int, geo *birdid.Geo) birdid.IdentifyResult {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	preds, spec, err := s.Predict(ctx, samples, sampleRate, topK, geo)
	if err != nil {
		if errors.Is(err, birdid.ErrResourceUnavailable) && len(s.demo) > 0 {
			preds, demoSpec := Demo(s.demo, topK, rand.New(rand.NewSource(s.seed)))
			return birdid.IdentifyResult{
				Success:          true,
				Predictions:      preds,
				Spectrogram:      demoSpec,
				ProcessingTimeMs: elapsed(),
				Demo:             true,
			}
		}
		s.log.Warn("identify failed", "error", err)
		return birdid.IdentifyResult{
			Success:          false,
			Predictions:      []birdid.Prediction{},
			ProcessingTimeMs: elapsed(),
			Error:            err.Error(),
		}
	}
	return birdid.IdentifyResult{
		Success:          true,
		Predictions:      preds,
		Spectrogram:      spec,
		ProcessingTimeMs: elapsed(),
	}
}
