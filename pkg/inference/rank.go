package inference

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// DefaultTopK is used when a caller asks for zero or fewer predictions.
const DefaultTopK = 5

// Rank sorts class indices by probability, highest first, keeping class
// index order among equal probabilities, and returns the first topK as
// predictions with 1-based ranks.
func Rank(probs []float32, classes birdid.ClassList, topK int) []birdid.Prediction {
	if topK <= 0 {
		topK = DefaultTopK
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(probs[b], probs[a]) })
	idx = idx[:min(topK, len(idx))]

	out := make([]birdid.Prediction, len(idx))
	for r, i := range idx {
		c, ok := classes.ByIndex(i)
		if !ok {
			c = birdid.Class{ID: fmt.Sprintf("class_%d", i), Name: "Unknown", ScientificName: "Unknown"}
		}
		out[r] = birdid.Prediction{
			BirdID:         c.ID,
			BirdName:       c.Name,
			ScientificName: c.ScientificName,
			Confidence:     float64(probs[i]),
			Rank:           r + 1,
		}
	}
	return out
}

// Fuse multiplies acoustic probabilities by a metadata prior. Classes
// missing from meta keep their acoustic value.
func Fuse(acoustic, meta []float32) []float32 {
	out := make([]float32, len(acoustic))
	for i, p := range acoustic {
		w := float32(1)
		if i < len(meta) {
			w = meta[i]
		}
		out[i] = p * w
	}
	return out
}
