// Package modelstore persists a trained classifier as two files under a
// prefix of a [storage.FileStore]:
//
//	<prefix>/model.msgpack   classifier.Artifact (config + weights)
//	<prefix>/labels.json     ordered class list
//
// Save writes the weights first and the labels last, so a reader that
// finds labels.json also finds the matching weights. Load reads both and
// fails with birdid.ErrResourceUnavailable if either is missing.
package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/classifier"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/storage"
)

// File names inside a model prefix.
const (
	WeightsFile = "model.msgpack"
	LabelsFile  = "labels.json"
)

// Bundle is a loaded model: its classes and its artifact.
type Bundle struct {
	Classes  birdid.ClassList
	Artifact *classifier.Artifact
}

// Store reads and writes models under one prefix.
type Store struct {
	fs     storage.FileStore
	prefix string
}

// New returns a Store rooted at prefix within fs. An empty prefix means
// the store root.
func New(fs storage.FileStore, prefix string) *Store {
	return &Store{fs: fs, prefix: prefix}
}

// Prefix returns the configured prefix.
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) path(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save persists the artifact and its classes.
func (s *Store) Save(ctx context.Context, classes birdid.ClassList, a *classifier.Artifact) error {
	if err := classes.Validate(); err != nil {
		return fmt.Errorf("modelstore: save: %w", err)
	}
	if len(classes) != a.Model.NumClasses {
		return fmt.Errorf("modelstore: save: %d classes for a %d-way model: %w",
			len(classes), a.Model.NumClasses, birdid.ErrPrecondition)
	}
	weights, err := a.Marshal()
	if err != nil {
		return fmt.Errorf("modelstore: save: %w", err)
	}
	labels, err := json.MarshalIndent(classes, "", "  ")
	if err != nil {
		return fmt.Errorf("modelstore: encode labels: %w", err)
	}
	if err := storage.WriteFile(ctx, s.fs, s.path(WeightsFile), weights); err != nil {
		return fmt.Errorf("modelstore: write weights: %w", err)
	}
	if err := storage.WriteFile(ctx, s.fs, s.path(LabelsFile), labels); err != nil {
		return fmt.Errorf("modelstore: write labels: %w", err)
	}
	return nil
}

// Exists reports whether a complete model is present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	for _, name := range []string{LabelsFile, WeightsFile} {
		ok, err := s.fs.Exists(ctx, s.path(name))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// LoadLabels reads only the class list.
func (s *Store) LoadLabels(ctx context.Context) (birdid.ClassList, error) {
	data, err := s.read(ctx, LabelsFile)
	if err != nil {
		return nil, err
	}
	var classes birdid.ClassList
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("modelstore: decode labels: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	if err := classes.Validate(); err != nil {
		return nil, fmt.Errorf("modelstore: labels: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	return classes, nil
}

// Load reads labels and weights together and checks they agree.
func (s *Store) Load(ctx context.Context) (*Bundle, error) {
	classes, err := s.LoadLabels(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.read(ctx, WeightsFile)
	if err != nil {
		return nil, err
	}
	a, err := classifier.UnmarshalArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("modelstore: %w", err)
	}
	if a.Model.NumClasses != len(classes) {
		return nil, fmt.Errorf("modelstore: model has %d outputs but %d labels: %w",
			a.Model.NumClasses, len(classes), birdid.ErrResourceUnavailable)
	}
	return &Bundle{Classes: classes, Artifact: a}, nil
}

// Delete removes both files. Labels go first so a concurrent reader
// never sees labels without weights.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.fs.Delete(ctx, s.path(LabelsFile)); err != nil {
		return fmt.Errorf("modelstore: delete labels: %w", err)
	}
	if err := s.fs.Delete(ctx, s.path(WeightsFile)); err != nil {
		return fmt.Errorf("modelstore: delete weights: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	data, err := storage.ReadFile(ctx, s.fs, s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("modelstore: %s missing: %w", s.path(name), birdid.ErrResourceUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("modelstore: read %s: %w: %w", s.path(name), birdid.ErrResourceUnavailable, err)
	}
	return data, nil
}
