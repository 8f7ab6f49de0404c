package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/dataset"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/training"
)

// IdentifyReport is the output of `birdatlas identify`.
type IdentifyReport struct {
	File                  string `json:"file,omitempty" yaml:"file,omitempty"`
	birdid.IdentifyResult `yaml:",inline"`
}

// Table implements [Tabler].
func (r IdentifyReport) Table(s Styles) string {
	title := "Identification"
	if r.File != "" {
		title += " " + r.File
	}
	if !r.Success {
		return s.Section(title, s.Warn.Render("failed: "+r.Error))
	}
	rows := make([][]string, len(r.Predictions))
	for i, p := range r.Predictions {
		rows[i] = []string{
			strconv.Itoa(p.Rank),
			p.BirdName,
			p.ScientificName,
			FormatPercent(p.Confidence),
			Bar(p.Confidence, 20),
		}
	}
	body := s.Table([]string{"#", "Species", "Scientific name", "Confidence", ""}, rows, 40)
	foot := s.Help.Render(fmt.Sprintf("%d ms", r.ProcessingTimeMs))
	if r.Demo {
		foot = s.Warn.Render("demo predictions, no model loaded") + "  " + foot
	}
	return s.Section(title, body+"\n"+foot)
}

// TrainReport is the output of `birdatlas train`.
type TrainReport struct {
	training.Result `yaml:",inline"`
	ClassNames      []string `json:"-" yaml:"-"`
}

// Table implements [Tabler].
func (r TrainReport) Table(s Styles) string {
	var b strings.Builder
	b.WriteString(s.Section("Run "+r.RunID, EpochTable(s, r.Epochs)))
	fmt.Fprintf(&b, "\n%s best epoch %d, validation accuracy %s\n",
		s.Label.Render(string(r.State)), r.BestEpoch, FormatPercent(r.BestValAccuracy))
	if r.Test != nil {
		fmt.Fprintf(&b, "test: loss %.4f, accuracy %s, top-k %s over %d samples\n",
			r.Test.Loss, FormatPercent(r.Test.Accuracy), FormatPercent(r.Test.TopKAccuracy), r.Test.Samples)
	}
	if len(r.PerClass) > 0 {
		b.WriteString(s.Section("Per class", ClassMetricTable(s, r.PerClass)))
		b.WriteString("\n")
	}
	if len(r.Confusion) > 0 {
		b.WriteString(s.Section("Confusion (rows: label, columns: prediction)", ConfusionTable(s, r.Confusion, r.ClassNames)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// EpochTable renders per-epoch metrics.
func EpochTable(s Styles, epochs []training.EpochMetrics) string {
	rows := make([][]string, len(epochs))
	for i, e := range epochs {
		rows[i] = []string{
			strconv.Itoa(e.Epoch),
			fmt.Sprintf("%.4f", e.TrainLoss),
			FormatPercent(e.TrainAccuracy),
			fmt.Sprintf("%.4f", e.ValLoss),
			FormatPercent(e.ValAccuracy),
			FormatPercent(e.ValTopKAccuracy),
			strconv.Itoa(e.Skipped),
			FormatDuration(e.Duration.Duration()),
		}
	}
	return s.Table([]string{"Epoch", "Loss", "Acc", "Val loss", "Val acc", "Val top-k", "Skipped", "Time"}, rows, 0)
}

// ClassMetricTable renders precision, recall and F1 per class.
func ClassMetricTable(s Styles, metrics []training.ClassMetric) string {
	rows := make([][]string, len(metrics))
	for i, m := range metrics {
		rows[i] = []string{m.Class, fmt.Sprintf("%.3f", m.Precision), fmt.Sprintf("%.3f", m.Recall), fmt.Sprintf("%.3f", m.F1)}
	}
	return s.Table([]string{"Class", "Precision", "Recall", "F1"}, rows, 32)
}

// ConfusionTable renders a [label][prediction] count matrix. Column
// headers are class indices to keep the table narrow.
func ConfusionTable(s Styles, matrix [][]int, names []string) string {
	headers := make([]string, len(matrix)+1)
	headers[0] = "label \\ pred"
	for j := range matrix {
		headers[j+1] = strconv.Itoa(j)
	}
	rows := make([][]string, len(matrix))
	for i, row := range matrix {
		name := strconv.Itoa(i)
		if i < len(names) {
			name += " " + names[i]
		}
		cells := make([]string, len(row)+1)
		cells[0] = name
		for j, n := range row {
			cells[j+1] = strconv.Itoa(n)
		}
		rows[i] = cells
	}
	return s.Table(headers, rows, 24)
}

// RunsReport is the output of `birdatlas history`.
type RunsReport struct {
	Runs []training.RunSummary `json:"runs" yaml:"runs"`
}

// Table implements [Tabler].
func (r RunsReport) Table(s Styles) string {
	if len(r.Runs) == 0 {
		return s.Help.Render("no training runs")
	}
	rows := make([][]string, len(r.Runs))
	for i, run := range r.Runs {
		test := "-"
		if run.Test != nil {
			test = FormatPercent(run.Test.Accuracy)
		}
		rows[i] = []string{
			run.ID,
			string(run.State),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(run.NumClasses),
			strconv.Itoa(run.Epochs),
			FormatPercent(run.BestValAccuracy),
			test,
		}
	}
	return s.Table([]string{"Run", "State", "Started", "Classes", "Epochs", "Best val", "Test"}, rows, 0)
}

// RunReport is the output of `birdatlas history <run>`.
type RunReport struct {
	training.RunSummary `yaml:",inline"`
	EpochMetrics        []training.EpochMetrics `json:"epochMetrics" yaml:"epoch_metrics"`
}

// Table implements [Tabler].
func (r RunReport) Table(s Styles) string {
	head := fmt.Sprintf("%s, %d classes, %d/%d/%d samples",
		r.State, r.NumClasses, r.TrainSamples, r.ValSamples, r.TestSamples)
	if r.Error != "" {
		head += "\n" + s.Warn.Render(r.Error)
	}
	return s.Section("Run "+r.ID, head+"\n"+EpochTable(s, r.EpochMetrics))
}

// StatusReport is the output of `birdatlas status`.
type StatusReport struct {
	birdid.Status `yaml:",inline"`
	Variant       string `json:"variant" yaml:"variant"`
	Source        string `json:"source" yaml:"source"`
}

// Table implements [Tabler].
func (r StatusReport) Table(s Styles) string {
	rows := [][]string{
		{"variant", r.Variant},
		{"source", r.Source},
		{"state", r.State},
		{"classes", strconv.Itoa(r.NumClasses)},
	}
	if r.Error != "" {
		rows = append(rows, []string{"error", r.Error})
	}
	return s.Table([]string{"Model", ""}, rows, 0)
}

// LabelsReport is the output of `birdatlas labels`.
type LabelsReport struct {
	Labels birdid.ClassList `json:"labels" yaml:"labels"`
}

// Table implements [Tabler].
func (r LabelsReport) Table(s Styles) string {
	rows := make([][]string, len(r.Labels))
	for i, c := range r.Labels {
		rows[i] = []string{strconv.Itoa(c.Index), c.ID, c.Name, c.ScientificName}
	}
	return s.Table([]string{"Index", "ID", "Name", "Scientific name"}, rows, 40)
}

// DatasetReport is the output of `birdatlas dataset`.
type DatasetReport struct {
	dataset.Stats `yaml:",inline"`
	Classes       birdid.ClassList `json:"-" yaml:"-"`
}

// Table implements [Tabler].
func (r DatasetReport) Table(s Styles) string {
	idx := make([]int, 0, len(r.PerClass))
	for i := range r.PerClass {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	rows := make([][]string, 0, len(idx))
	for _, i := range idx {
		name := fmt.Sprintf("Class %d", i)
		if c, ok := r.Classes.ByIndex(i); ok {
			name = c.Name
			if name == "" {
				name = c.ID
			}
		}
		rows = append(rows, []string{strconv.Itoa(i), name, strconv.Itoa(r.PerClass[i])})
	}
	head := fmt.Sprintf("%d samples: %d train, %d validation, %d test",
		r.Total, r.TrainCount, r.ValidationCount, r.TestCount)
	return s.Section("Dataset", head+"\n"+s.Table([]string{"Index", "Class", "Samples"}, rows, 40))
}

// SpectrogramReport is the output of `birdatlas spectrogram`.
type SpectrogramReport struct {
	File        string            `json:"file" yaml:"file"`
	SampleRate  int               `json:"sampleRate" yaml:"sample_rate"`
	Duration    float64           `json:"duration" yaml:"duration"`
	Frames      int               `json:"frames" yaml:"frames"`
	Bins        int               `json:"bins" yaml:"bins"`
	Spectrogram fbank.Spectrogram `json:"spectrogram,omitempty" yaml:"-"`
}

// Table implements [Tabler]: a summary line and a coarse heat map with
// low frequencies at the bottom.
func (r SpectrogramReport) Table(s Styles) string {
	head := fmt.Sprintf("%.2f s at %d Hz, %d frames x %d mel bins", r.Duration, r.SampleRate, r.Frames, r.Bins)
	return s.Section(r.File, head+"\n"+Heatmap(r.Spectrogram, 64, 16))
}

// heatRamp orders glyphs from quiet to loud.
const heatRamp = " .:-=+*#%@"

// Heatmap renders a [frame][bin] matrix with values in [0, 1] as at most
// width columns (time) by height rows (frequency, highest first). Each
// cell shows the mean of the values it covers.
func Heatmap(spec [][]float32, width, height int) string {
	frames := len(spec)
	if frames == 0 || len(spec[0]) == 0 || width <= 0 || height <= 0 {
		return ""
	}
	bins := len(spec[0])
	width, height = min(width, frames), min(height, bins)
	ramp := []rune(heatRamp)

	var b strings.Builder
	for row := height - 1; row >= 0; row-- {
		b0, b1 := row*bins/height, (row+1)*bins/height
		for col := range width {
			f0, f1 := col*frames/width, (col+1)*frames/width
			var sum float64
			for f := f0; f < f1; f++ {
				for k := b0; k < b1; k++ {
					sum += float64(spec[f][k])
				}
			}
			v := sum / float64((f1-f0)*(b1-b0))
			i := int(v * float64(len(ramp)-1))
			b.WriteRune(ramp[min(max(i, 0), len(ramp)-1)])
		}
		if row > 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ModelReport is the output of `birdatlas model`.
type ModelReport struct {
	Source      string       `json:"source" yaml:"source"`
	Classes     int          `json:"numClasses" yaml:"num_classes"`
	Spectrogram fbank.Config `json:"spectrogram" yaml:"spectrogram"`
	Trainable   int          `json:"trainableParams" yaml:"trainable_params"`
	Frozen      int          `json:"nonTrainableParams" yaml:"non_trainable_params"`
	WeightBytes int64        `json:"weightBytes" yaml:"weight_bytes"`
	Summary     string       `json:"summary" yaml:"summary"`
}

// Table implements [Tabler].
func (r ModelReport) Table(s Styles) string {
	head := fmt.Sprintf("%s: %d classes, %d x %d input, %s of weights",
		r.Source, r.Classes, r.Spectrogram.NumMels, dims(r.Spectrogram), FormatBytes(r.WeightBytes))
	return s.Section("Model", head+"\n"+strings.TrimRight(r.Summary, "\n"))
}

func dims(c fbank.Config) int {
	_, w := c.Dimensions()
	return w
}
