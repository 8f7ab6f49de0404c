// Package dataset turns a directory of labelled recordings into batches
// of spectrogram tensors for training.
//
// Recordings are indexed per class ([Index]), partitioned into train,
// validation and test sets ([StratifiedSplit] or [RandomSplit]) and then
// streamed through a [Generator], which decodes, extracts features,
// optionally augments and one-hot encodes them.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Sample is one labelled recording.
type Sample struct {
	BirdID     string `json:"birdId" yaml:"bird_id" msgpack:"bird_id"`
	Path       string `json:"audioPath" yaml:"audio_path" msgpack:"audio_path"`
	ClassIndex int    `json:"classIndex" yaml:"class_index" msgpack:"class_index"`
}

// Split partitions samples into disjoint train, validation and test sets.
type Split struct {
	Train      []Sample `json:"train" yaml:"train"`
	Validation []Sample `json:"validation" yaml:"validation"`
	Test       []Sample `json:"test" yaml:"test"`
}

// Len returns the total number of samples.
func (s Split) Len() int { return len(s.Train) + len(s.Validation) + len(s.Test) }

func checkRatios(train, val float64) error {
	if train < 0 || val < 0 || train+val > 1 || math.IsNaN(train+val) {
		return fmt.Errorf("dataset: ratios train=%g validation=%g: %w", train, val, birdid.ErrPrecondition)
	}
	return nil
}

// partition shuffles a copy of s and cuts it at floor(n*train) and
// floor(n*val) further on; the remainder goes to test.
func partition(s []Sample, train, val float64, rng *rand.Rand) (tr, va, te []Sample) {
	s = slices.Clone(s)
	rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	n := float64(len(s))
	trainEnd := int(math.Floor(n * train))
	valEnd := trainEnd + int(math.Floor(n*val))
	return s[:trainEnd], s[trainEnd:valEnd], s[valEnd:]
}

// StratifiedSplit splits each class independently with the given ratios
// and concatenates the per-class parts in ascending class order. Every
// class with enough samples therefore appears in every set.
func StratifiedSplit(samples []Sample, trainRatio, valRatio float64, rng *rand.Rand) (Split, error) {
	if err := checkRatios(trainRatio, valRatio); err != nil {
		return Split{}, err
	}
	byClass := make(map[int][]Sample)
	for _, s := range samples {
		byClass[s.ClassIndex] = append(byClass[s.ClassIndex], s)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	var out Split
	for _, c := range classes {
		tr, va, te := partition(byClass[c], trainRatio, valRatio, rng)
		out.Train = append(out.Train, tr...)
		out.Validation = append(out.Validation, va...)
		out.Test = append(out.Test, te...)
	}
	return out, nil
}

// RandomSplit shuffles all samples together and cuts once, ignoring
// class balance.
func RandomSplit(samples []Sample, trainRatio, valRatio float64, rng *rand.Rand) (Split, error) {
	if err := checkRatios(trainRatio, valRatio); err != nil {
		return Split{}, err
	}
	tr, va, te := partition(samples, trainRatio, valRatio, rng)
	return Split{Train: tr, Validation: va, Test: te}, nil
}

// Stats summarizes a split.
type Stats struct {
	Total           int         `json:"totalSamples" yaml:"total_samples"`
	PerClass        map[int]int `json:"samplesPerClass" yaml:"samples_per_class"`
	TrainCount      int         `json:"trainSamples" yaml:"train_samples"`
	ValidationCount int         `json:"validationSamples" yaml:"validation_samples"`
	TestCount       int         `json:"testSamples" yaml:"test_samples"`
}

// StatsOf counts samples per set and per class.
func StatsOf(s Split) Stats {
	st := Stats{
		Total:           s.Len(),
		PerClass:        make(map[int]int),
		TrainCount:      len(s.Train),
		ValidationCount: len(s.Validation),
		TestCount:       len(s.Test),
	}
	for _, set := range [][]Sample{s.Train, s.Validation, s.Test} {
		for _, x := range set {
			st.PerClass[x.ClassIndex]++
		}
	}
	return st
}
