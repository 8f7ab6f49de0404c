package training

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/jsontime"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/kv"
)

// EpochMetrics is the record kept for each training epoch.
type EpochMetrics struct {
	Epoch           int               `json:"epoch" yaml:"epoch" msgpack:"epoch"`
	TrainLoss       float64           `json:"trainLoss" yaml:"train_loss" msgpack:"train_loss"`
	TrainAccuracy   float64           `json:"trainAccuracy" yaml:"train_accuracy" msgpack:"train_accuracy"`
	ValLoss         float64           `json:"valLoss" yaml:"val_loss" msgpack:"val_loss"`
	ValAccuracy     float64           `json:"valAccuracy" yaml:"val_accuracy" msgpack:"val_accuracy"`
	ValTopKAccuracy float64           `json:"valTopKAccuracy" yaml:"val_top_k_accuracy" msgpack:"val_top_k_accuracy"`
	Skipped         int               `json:"skipped" yaml:"skipped" msgpack:"skipped"`
	Duration        jsontime.Duration `json:"duration" yaml:"duration" msgpack:"duration"`
}

// RunSummary describes one training run.
type RunSummary struct {
	ID              string       `json:"id" yaml:"id" msgpack:"id"`
	State           State        `json:"state" yaml:"state" msgpack:"state"`
	Config          Config       `json:"config" yaml:"config" msgpack:"config"`
	NumClasses      int          `json:"numClasses" yaml:"num_classes" msgpack:"num_classes"`
	TrainSamples    int          `json:"trainSamples" yaml:"train_samples" msgpack:"train_samples"`
	ValSamples      int          `json:"validationSamples" yaml:"validation_samples" msgpack:"validation_samples"`
	TestSamples     int          `json:"testSamples" yaml:"test_samples" msgpack:"test_samples"`
	Epochs          int          `json:"epochs" yaml:"epochs" msgpack:"epochs"`
	BestEpoch       int          `json:"bestEpoch" yaml:"best_epoch" msgpack:"best_epoch"`
	BestValAccuracy float64      `json:"bestValAccuracy" yaml:"best_val_accuracy" msgpack:"best_val_accuracy"`
	Test            *EvalMetrics `json:"testMetrics,omitempty" yaml:"test_metrics,omitempty" msgpack:"test_metrics,omitempty"`
	Error           string       `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
	StartedAt       time.Time    `json:"startedAt" yaml:"started_at" msgpack:"started_at"`
	FinishedAt      time.Time    `json:"finishedAt,omitzero" yaml:"finished_at,omitempty" msgpack:"finished_at"`
}

// History persists run summaries and epoch records in a kv.Store:
//
//	runs:<id>:summary
//	runs:<id>:epochs:<0001>
type History struct {
	store kv.Store
}

// NewHistory wraps store.
func NewHistory(store kv.Store) *History {
	return &History{store: store}
}

var runsPrefix = kv.Key{"runs"}

func summaryKey(id string) kv.Key { return runsPrefix.Append(id, "summary") }

func epochsPrefix(id string) kv.Key { return runsPrefix.Append(id, "epochs") }

func epochKey(id string, epoch int) kv.Key {
	return epochsPrefix(id).Append(fmt.Sprintf("%04d", epoch))
}

// SaveRun writes or replaces a run summary.
func (h *History) SaveRun(ctx context.Context, s RunSummary) error {
	if err := kv.SetMsgpack(ctx, h.store, summaryKey(s.ID), s); err != nil {
		return fmt.Errorf("training: save run %s: %w", s.ID, err)
	}
	return nil
}

// RecordEpoch appends an epoch record to run id. If the run has a
// summary, its epoch count is advanced in the same batch, so an
// interrupted run still shows how far it got.
func (h *History) RecordEpoch(ctx context.Context, id string, m EpochMetrics) error {
	e, err := kv.MsgpackEntry(epochKey(id, m.Epoch), m)
	if err != nil {
		return fmt.Errorf("training: record epoch %d: %w", m.Epoch, err)
	}
	entries := []kv.Entry{e}

	s, err := h.Run(ctx, id)
	switch {
	case err == nil:
		s.Epochs = m.Epoch
		se, err := kv.MsgpackEntry(summaryKey(id), s)
		if err != nil {
			return fmt.Errorf("training: record epoch %d: %w", m.Epoch, err)
		}
		entries = append(entries, se)
	case !errors.Is(err, kv.ErrNotFound):
		return fmt.Errorf("training: record epoch %d: %w", m.Epoch, err)
	}

	if err := h.store.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("training: record epoch %d: %w", m.Epoch, err)
	}
	return nil
}

// DeleteRun removes run id with all its epoch records. Unknown runs
// yield kv.ErrNotFound.
func (h *History) DeleteRun(ctx context.Context, id string) error {
	var keys []kv.Key
	for e, err := range h.store.List(ctx, runsPrefix.Append(id)) {
		if err != nil {
			return fmt.Errorf("training: delete run %s: %w", id, err)
		}
		keys = append(keys, e.Key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("training: delete run %s: %w", id, kv.ErrNotFound)
	}
	if err := h.store.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("training: delete run %s: %w", id, err)
	}
	return nil
}

// Run returns the summary of run id. Unknown runs yield kv.ErrNotFound.
func (h *History) Run(ctx context.Context, id string) (RunSummary, error) {
	return kv.GetMsgpack[RunSummary](ctx, h.store, summaryKey(id))
}

// Epochs returns the epoch records of run id in epoch order.
func (h *History) Epochs(ctx context.Context, id string) ([]EpochMetrics, error) {
	var out []EpochMetrics
	for m, err := range kv.ListMsgpack[EpochMetrics](ctx, h.store, epochsPrefix(id)) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Runs returns every run summary, newest first.
func (h *History) Runs(ctx context.Context) ([]RunSummary, error) {
	var ids []string
	for e, err := range h.store.List(ctx, runsPrefix) {
		if err != nil {
			return nil, err
		}
		if len(e.Key) == 3 && e.Key[2] == "summary" {
			ids = append(ids, e.Key[1])
		}
	}
	out := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		s, err := h.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b RunSummary) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

// Latest returns the most recently started run.
func (h *History) Latest(ctx context.Context) (RunSummary, error) {
	runs, err := h.Runs(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	if len(runs) == 0 {
		return RunSummary{}, kv.ErrNotFound
	}
	return runs[0], nil
}
