package training

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// EvalMetrics summarizes a pass over an evaluation set.
type EvalMetrics struct {
	Loss         float64 `json:"loss" yaml:"loss" msgpack:"loss"`
	Accuracy     float64 `json:"accuracy" yaml:"accuracy" msgpack:"accuracy"`
	TopKAccuracy float64 `json:"topKAccuracy" yaml:"top_k_accuracy" msgpack:"top_k_accuracy"`
	Samples      int     `json:"samples" yaml:"samples" msgpack:"samples"`
}

// TopK returns the indices of the k largest values in p, highest first.
// Ties keep the lower index first.
func TopK(p []float32, k int) []int {
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(p[b], p[a]) })
	return idx[:min(k, len(idx))]
}

// TopKAccuracy is the fraction of rows of probs ([N, C]) whose true
// label is among the k highest probabilities. It returns 0 for N = 0.
func TopKAccuracy(probs *tensor.Tensor, labels []int, k int) float64 {
	if len(labels) == 0 {
		return 0
	}
	correct := 0
	for i, y := range labels {
		if slices.Contains(TopK(probs.Row(i), k), y) {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// ConfusionMatrix counts predictions as m[label][predicted].
func ConfusionMatrix(predicted, labels []int, numClasses int) ([][]int, error) {
	if len(predicted) != len(labels) {
		return nil, fmt.Errorf("training: %d predictions for %d labels", len(predicted), len(labels))
	}
	m := make([][]int, numClasses)
	for i := range m {
		m[i] = make([]int, numClasses)
	}
	for i, p := range predicted {
		y := labels[i]
		if y < 0 || y >= numClasses || p < 0 || p >= numClasses {
			return nil, fmt.Errorf("training: class pair (%d, %d) outside [0,%d)", y, p, numClasses)
		}
		m[y][p]++
	}
	return m, nil
}

// ClassMetric is precision, recall and F1 for one class.
type ClassMetric struct {
	Class     string  `json:"className" yaml:"class_name"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
}

// ClassMetrics derives per-class metrics from a confusion matrix.
// Undefined ratios are 0. Classes without a name are called "Class i".
func ClassMetrics(matrix [][]int, names []string) []ClassMetric {
	out := make([]ClassMetric, len(matrix))
	for i := range matrix {
		tp := matrix[i][i]
		var fp, fn int
		for j := range matrix {
			if j == i {
				continue
			}
			fp += matrix[j][i]
			fn += matrix[i][j]
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		name := fmt.Sprintf("Class %d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		out[i] = ClassMetric{Class: name, Precision: precision, Recall: recall, F1: f1}
	}
	return out
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
