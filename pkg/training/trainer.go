// Package training runs the epoch loop for the bird sound classifier:
// batched training with augmentation, validation with top-K accuracy,
// checkpointing on every new best validation accuracy, early stopping
// with best-weight restoration, and a final test-set evaluation.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/classifier"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/dataset"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/jsontime"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/modelstore"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/nn"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// State is the trainer lifecycle.
type State string

const (
	Idle         State = "idle"
	Running      State = "running"
	Completed    State = "completed"
	EarlyStopped State = "early_stopped"
	Failed       State = "failed"
)

// Config holds the training hyperparameters.
type Config struct {
	Epochs       int     `json:"epochs" yaml:"epochs" msgpack:"epochs"`
	BatchSize    int     `json:"batchSize" yaml:"batch_size" msgpack:"batch_size"`
	LearningRate float64 `json:"learningRate" yaml:"learning_rate" msgpack:"learning_rate"`
	DropoutRate  float64 `json:"dropoutRate" yaml:"dropout_rate" msgpack:"dropout_rate"`
	Patience     int     `json:"patience" yaml:"patience" msgpack:"patience"`
	TopK         int     `json:"topK" yaml:"top_k" msgpack:"top_k"`
	Augment      bool    `json:"augment" yaml:"augment" msgpack:"augment"`
	HighQuality  bool    `json:"highQualityResample" yaml:"high_quality_resample" msgpack:"high_quality_resample"`
	Seed         int64   `json:"seed" yaml:"seed" msgpack:"seed"`
}

// DefaultConfig returns 50 epochs of batch 32 at learning rate 0.001,
// dropout 0.3, patience 10, top-3 accuracy and augmentation on.
func DefaultConfig() Config {
	return Config{
		Epochs:       50,
		BatchSize:    32,
		LearningRate: 0.001,
		DropoutRate:  0.3,
		Patience:     10,
		TopK:         3,
		Augment:      true,
		Seed:         42,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	switch {
	case c.Epochs < 1:
		return fmt.Errorf("training: epochs %d: %w", c.Epochs, birdid.ErrPrecondition)
	case c.BatchSize < 1:
		return fmt.Errorf("training: batch size %d: %w", c.BatchSize, birdid.ErrPrecondition)
	case c.LearningRate <= 0:
		return fmt.Errorf("training: learning rate %g: %w", c.LearningRate, birdid.ErrPrecondition)
	case c.Patience < 0:
		return fmt.Errorf("training: patience %d: %w", c.Patience, birdid.ErrPrecondition)
	case c.TopK < 1:
		return fmt.Errorf("training: top-k %d: %w", c.TopK, birdid.ErrPrecondition)
	}
	return nil
}

// Options configures a Trainer.
type Options struct {
	Config      Config
	Spectrogram fbank.Config
	Method      stft.Method

	// Checkpoints receives the model on every new best validation
	// accuracy and after the final evaluation. Optional.
	Checkpoints *modelstore.Store

	// History records epochs and run summaries. Optional.
	History *History

	// Loader overrides how samples are read. See dataset.GeneratorOptions.
	Loader  dataset.Loader
	Workers int

	// Progress receives progress bars. Nil disables them.
	Progress io.Writer

	Logger *slog.Logger
}

// Result is the outcome of a run. BestEpoch and BestValAccuracy mirror
// the early-stopping tracker and stay zero until the first epoch ends.
type Result struct {
	RunID           string           `json:"runId" yaml:"run_id"`
	State           State            `json:"state" yaml:"state"`
	Epochs          []EpochMetrics   `json:"epochs" yaml:"epochs"`
	BestEpoch       int              `json:"bestEpoch" yaml:"best_epoch"`
	BestValAccuracy float64          `json:"bestValAccuracy" yaml:"best_val_accuracy"`
	Test            *EvalMetrics     `json:"testMetrics,omitempty" yaml:"test_metrics,omitempty"`
	Confusion       [][]int          `json:"confusionMatrix,omitempty" yaml:"confusion_matrix,omitempty"`
	PerClass        []ClassMetric    `json:"classMetrics,omitempty" yaml:"class_metrics,omitempty"`
	Model           *nn.Model        `json:"-" yaml:"-"`
	Classes         birdid.ClassList `json:"-" yaml:"-"`
}

// Trainer runs one training job at a time.
type Trainer struct {
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	state State
	err   error
	runID string
}

// New validates opts and returns an idle trainer.
func New(opts Options) (*Trainer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Spectrogram.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{opts: opts, log: log, state: Idle}, nil
}

// State returns the current state, the failure if any and the run ID.
func (t *Trainer) State() (State, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.runID, t.err
}

func (t *Trainer) setState(s State, err error) {
	t.mu.Lock()
	t.state, t.err = s, err
	t.mu.Unlock()
}

// ErrBusy is returned when Run is called while another run is active.
var ErrBusy = errors.New("training: run already in progress")

// Run trains a new model on split. It returns the result even on
// failure, with State set to Failed.
func (t *Trainer) Run(ctx context.Context, split dataset.Split, classes birdid.ClassList) (*Result, error) {
	t.mu.Lock()
	if t.state == Running {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	t.state, t.err, t.runID = Running, nil, uuid.NewString()
	id := t.runID
	t.mu.Unlock()

	log := t.log.With("run", id)
	cfg := t.opts.Config
	summary := RunSummary{
		ID:           id,
		State:        Running,
		Config:       cfg,
		NumClasses:   len(classes),
		TrainSamples: len(split.Train),
		ValSamples:   len(split.Validation),
		TestSamples:  len(split.Test),
		StartedAt:    time.Now(),
	}
	t.saveRun(ctx, summary)

	res := &Result{RunID: id, Classes: classes}
	err := t.run(ctx, log, split, classes, res)
	if err != nil {
		res.State = Failed
		summary.Error = err.Error()
		log.Error("training failed", "error", err)
	}
	t.setState(res.State, err)

	summary.State = res.State
	summary.Epochs = len(res.Epochs)
	summary.BestEpoch = res.BestEpoch
	summary.BestValAccuracy = res.BestValAccuracy
	summary.Test = res.Test
	summary.FinishedAt = time.Now()
	t.saveRun(context.WithoutCancel(ctx), summary)
	return res, err
}

func (t *Trainer) saveRun(ctx context.Context, s RunSummary) {
	if t.opts.History == nil {
		return
	}
	if err := t.opts.History.SaveRun(ctx, s); err != nil {
		t.log.Warn("save run summary", "run", s.ID, "error", err)
	}
}

func (t *Trainer) generator(samples []dataset.Sample, numClasses int, ex *fbank.Extractor, augment bool, seed int64) (*dataset.Generator, error) {
	return dataset.NewGenerator(dataset.GeneratorOptions{
		Samples:     samples,
		NumClasses:  numClasses,
		BatchSize:   t.opts.Config.BatchSize,
		Extractor:   ex,
		Augment:     augment,
		Seed:        seed,
		Loader:      t.opts.Loader,
		HighQuality: t.opts.Config.HighQuality,
		Workers:     t.opts.Workers,
		Logger:      t.log,
	})
}

func (t *Trainer) run(ctx context.Context, log *slog.Logger, split dataset.Split, classes birdid.ClassList, res *Result) error {
	cfg := t.opts.Config
	if err := classes.Validate(); err != nil {
		return err
	}
	if len(split.Train) == 0 {
		return fmt.Errorf("training: empty training set: %w", birdid.ErrPrecondition)
	}
	ex, err := fbank.New(t.opts.Spectrogram, t.opts.Method)
	if err != nil {
		return err
	}
	mcfg := classifier.DefaultConfig(len(classes), t.opts.Spectrogram)
	mcfg.LearningRate = cfg.LearningRate
	mcfg.DropoutRate = cfg.DropoutRate
	mcfg.Seed = cfg.Seed
	model, err := classifier.New(mcfg)
	if err != nil {
		return err
	}
	res.Model = model
	log.Debug("model built", "summary", model.Summary())

	n := len(classes)
	train, err := t.generator(split.Train, n, ex, cfg.Augment, cfg.Seed)
	if err != nil {
		return err
	}
	val, err := t.generator(split.Validation, n, ex, false, cfg.Seed+1)
	if err != nil {
		return err
	}
	test, err := t.generator(split.Test, n, ex, false, cfg.Seed+2)
	if err != nil {
		return err
	}

	log.Info("training started",
		"train", len(split.Train), "validation", len(split.Validation), "test", len(split.Test),
		"classes", n, "epochs", cfg.Epochs)

	prog := newProgress(t.opts.Progress)
	defer prog.wait()

	stop := NewEarlyStopping(cfg.Patience)
	res.State = Completed
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		trainLoss, trainAcc, skipped, err := t.trainEpoch(ctx, model, train, prog.bar(epochLabel("train", epoch, cfg.Epochs), train.NumBatches()))
		if err != nil {
			return fmt.Errorf("training: epoch %d: %w", epoch, err)
		}
		vm, _, _, err := t.evaluate(ctx, model, val, prog.bar(epochLabel("valid", epoch, cfg.Epochs), val.NumBatches()))
		if err != nil {
			return fmt.Errorf("training: epoch %d validation: %w", epoch, err)
		}
		em := EpochMetrics{
			Epoch:           epoch,
			TrainLoss:       trainLoss,
			TrainAccuracy:   trainAcc,
			ValLoss:         vm.Loss,
			ValAccuracy:     vm.Accuracy,
			ValTopKAccuracy: vm.TopKAccuracy,
			Skipped:         skipped,
			Duration:        jsontime.Duration(time.Since(start)),
		}
		res.Epochs = append(res.Epochs, em)
		log.Info("epoch",
			"epoch", epoch,
			"train_loss", fmt.Sprintf("%.4f", em.TrainLoss),
			"train_acc", fmt.Sprintf("%.4f", em.TrainAccuracy),
			"val_loss", fmt.Sprintf("%.4f", em.ValLoss),
			"val_acc", fmt.Sprintf("%.4f", em.ValAccuracy),
			fmt.Sprintf("val_top%d_acc", cfg.TopK), fmt.Sprintf("%.4f", em.ValTopKAccuracy),
			"duration", em.Duration.String())
		if t.opts.History != nil {
			if err := t.opts.History.RecordEpoch(ctx, res.RunID, em); err != nil {
				log.Warn("record epoch", "error", err)
			}
		}

		halt := stop.Check(model, vm.Accuracy)
		if best, at := stop.Best(); at == epoch {
			res.BestValAccuracy, res.BestEpoch = best, at
			if err := t.checkpoint(ctx, mcfg, classes, model); err != nil {
				return err
			}
			log.Info("new best model saved", "epoch", epoch)
		}
		if halt {
			log.Info("early stopping", "epoch", epoch)
			res.State = EarlyStopped
			break
		}
	}

	if err := stop.Restore(model); err != nil {
		return fmt.Errorf("training: restore best weights: %w", err)
	}

	tm, pred, labels, err := t.evaluate(ctx, model, test, prog.bar("test", test.NumBatches()))
	if err != nil {
		return fmt.Errorf("training: test evaluation: %w", err)
	}
	res.Test = &tm
	if res.Confusion, err = ConfusionMatrix(pred, labels, n); err != nil {
		return err
	}
	res.PerClass = ClassMetrics(res.Confusion, classes.Names())
	log.Info("test results",
		"loss", fmt.Sprintf("%.4f", tm.Loss),
		"accuracy", fmt.Sprintf("%.4f", tm.Accuracy),
		fmt.Sprintf("top%d_accuracy", cfg.TopK), fmt.Sprintf("%.4f", tm.TopKAccuracy))

	return t.checkpoint(ctx, mcfg, classes, model)
}

func (t *Trainer) checkpoint(ctx context.Context, mcfg classifier.Config, classes birdid.ClassList, m *nn.Model) error {
	if t.opts.Checkpoints == nil {
		return nil
	}
	a := classifier.NewArtifact(mcfg, t.opts.Spectrogram, m)
	if err := t.opts.Checkpoints.Save(ctx, classes, a); err != nil {
		return fmt.Errorf("training: checkpoint: %w", err)
	}
	return nil
}

// trainEpoch averages per-batch loss and accuracy over one pass.
func (t *Trainer) trainEpoch(ctx context.Context, m *nn.Model, g *dataset.Generator, b *bar) (loss, acc float64, skipped int, err error) {
	defer func() { b.done(err) }()
	g.Reset()
	batches := 0
	for {
		batch, err := g.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, skipped, err
		}
		met, err := m.TrainBatch(batch.X, batch.Y)
		if err != nil {
			return 0, 0, skipped, err
		}
		loss += met.Loss
		acc += met.Accuracy
		skipped += batch.Skipped
		batches++
		b.inc()
	}
	if batches == 0 {
		return 0, 0, skipped, fmt.Errorf("no training sample could be loaded: %w", birdid.ErrPrecondition)
	}
	return loss / float64(batches), acc / float64(batches), skipped, nil
}

// evaluate averages per-batch loss and accuracy and computes top-K
// accuracy over all rows. It also returns the argmax prediction and the
// label of every row. An empty set yields zero metrics.
func (t *Trainer) evaluate(ctx context.Context, m *nn.Model, g *dataset.Generator, b *bar) (met EvalMetrics, pred, labels []int, err error) {
	defer func() { b.done(err) }()
	g.Reset()
	batches := 0
	var probs []float32
	numClasses := 0
	for {
		batch, err := g.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return EvalMetrics{}, nil, nil, err
		}
		bm, p, err := m.Evaluate(batch.X, batch.Y)
		if err != nil {
			return EvalMetrics{}, nil, nil, err
		}
		met.Loss += bm.Loss
		met.Accuracy += bm.Accuracy
		numClasses = p.Dim(1)
		probs = append(probs, p.Data...)
		for i, y := range batch.Labels() {
			labels = append(labels, y)
			pred = append(pred, tensor.ArgMax(p.Row(i)))
		}
		batches++
		b.inc()
	}
	if batches == 0 {
		return EvalMetrics{}, nil, nil, nil
	}
	met.Loss /= float64(batches)
	met.Accuracy /= float64(batches)
	met.Samples = len(labels)
	all := tensor.New([]int{len(labels), numClasses}, probs)
	met.TopKAccuracy = TopKAccuracy(all, labels, t.opts.Config.TopK)
	return met, pred, labels, nil
}
