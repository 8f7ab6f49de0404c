package inference

import (
	"math"
	"math/rand"
	"slices"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Size of the synthetic demo spectrogram.
const (
	demoFrames = 128
	demoMels   = 128
)

// Demo fabricates a plausible identification: topK random classes with
// random confidences normalized to sum to 1 and sorted descending, and a
// 128x128 spectrogram with a sinusoidal ridge. Output depends only on
// classes, topK and the state of rng.
func Demo(classes birdid.ClassList, topK int, rng *rand.Rand) ([]birdid.Prediction, [][]float32) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	picked := slices.Clone(classes)
	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	picked = picked[:min(topK, len(picked))]

	conf := make([]float64, len(picked))
	var sum float64
	for i := range conf {
		conf[i] = rng.Float64() + 1e-9
		sum += conf[i]
	}
	for i := range conf {
		conf[i] /= sum
	}
	slices.Sort(conf)
	slices.Reverse(conf)

	preds := make([]birdid.Prediction, len(picked))
	for i, c := range picked {
		preds[i] = birdid.Prediction{
			BirdID:         c.ID,
			BirdName:       c.Name,
			ScientificName: c.ScientificName,
			Confidence:     conf[i],
			Rank:           i + 1,
		}
	}

	spec := make([][]float32, demoFrames)
	for t := range spec {
		ridge := (math.Sin(float64(t)*0.1)*0.3 + 0.5) * demoMels
		frame := make([]float32, demoMels)
		for f := range frame {
			d := math.Abs(float64(f) - ridge)
			frame[f] = float32(math.Exp(-d*0.1) * (0.8 + rng.Float64()*0.2))
		}
		spec[t] = frame
	}
	return preds, spec
}
