package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/dataset"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/inference"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/kv"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/modelstore"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/storage"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/training"
)

// openModelStore opens the configured artifact store and describes it.
func openModelStore(cfg *cli.Config) (*modelstore.Store, string, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, "", err
	}
	fs, err := cfg.Store.Open(paths.DataDir())
	if err != nil {
		return nil, "", err
	}
	store := modelstore.New(fs, cfg.Store.Prefix)

	var source string
	switch v := fs.(type) {
	case *storage.Local:
		source = filepath.Join(v.Root(), cfg.Store.Prefix)
	default:
		source = fmt.Sprintf("s3://%s/%s", cfg.Store.S3.Bucket, filepath.ToSlash(filepath.Join(cfg.Store.S3.Prefix, cfg.Store.Prefix)))
	}
	return store, source, nil
}

// openHistory opens the Badger-backed training history. The caller
// closes the returned store.
func openHistory(cfg *cli.Config) (*training.History, *kv.Badger, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, nil, err
	}
	db, err := kv.NewBadger(kv.BadgerOptions{
		Dir:    paths.HistoryDir(cfg.HistoryDir),
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	return training.NewHistory(db), db, nil
}

// newService builds the inference service for the configured variant.
func newService(cfg *cli.Config) (*inference.Service, string, error) {
	var (
		loader inference.Loader
		source string
	)
	switch cfg.Model.Variant {
	case cli.VariantONNX:
		loader = inference.ONNXLoader{Config: cfg.Model.ONNX, Logger: slog.Default()}
		source = cfg.Model.ONNX.ModelPath
	default:
		store, src, err := openModelStore(cfg)
		if err != nil {
			return nil, "", err
		}
		loader = inference.StoreLoader{Store: store, Method: cfg.Method()}
		source = src
	}

	base := loader
	loader = inference.LoaderFunc(func(ctx context.Context) (*inference.Model, error) {
		slog.Info("loading model", "variant", cfg.Model.Variant, "source", source)
		return base.Load(ctx)
	})

	opts := inference.Options{Loader: loader, Logger: slog.Default()}
	if cfg.Model.Demo {
		if cfg.Dataset.Manifest == "" {
			return nil, "", fmt.Errorf("model.demo needs dataset.manifest for its class list")
		}
		classes, err := dataset.LoadManifest(cfg.Dataset.Manifest)
		if err != nil {
			return nil, "", err
		}
		opts.DemoClasses = classes
		opts.DemoSeed = cfg.Model.Seed
	}
	svc, err := inference.New(opts)
	if err != nil {
		return nil, "", err
	}
	return svc, source, nil
}

// loadDataset reads the manifest, indexes the recordings and splits
// them as configured.
func loadDataset(cfg *cli.Config) (birdid.ClassList, dataset.Split, error) {
	d := cfg.Dataset
	if d.Manifest == "" || d.Dir == "" {
		return nil, dataset.Split{}, fmt.Errorf("dataset manifest and directory are required (--manifest, --dataset)")
	}
	classes, err := dataset.LoadManifest(d.Manifest)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	samples, err := dataset.Index(d.Dir, classes)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	slog.Info("dataset indexed", "classes", len(classes), "samples", len(samples))

	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	split := dataset.RandomSplit
	if d.Stratified {
		split = dataset.StratifiedSplit
	}
	s, err := split(samples, d.TrainRatio, d.ValidationRatio, rng)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	return classes, s, nil
}

// bindDatasetFlags registers the dataset overrides shared by train and
// dataset.
func bindDatasetFlags(cmd *cobra.Command, o *datasetFlags) {
	f := cmd.Flags()
	f.StringVar(&o.dir, "dataset", "", "directory with one subdirectory of recordings per class ID")
	f.StringVar(&o.manifest, "manifest", "", "YAML class manifest")
	f.Float64Var(&o.train, "train-ratio", 0, "fraction of samples used for training")
	f.Float64Var(&o.val, "val-ratio", 0, "fraction of samples used for validation")
	f.BoolVar(&o.random, "random-split", false, "split without stratifying by class")
}

type datasetFlags struct {
	dir, manifest string
	train, val    float64
	random        bool
}

func (o datasetFlags) apply(cfg *cli.Config) {
	if o.dir != "" {
		cfg.Dataset.Dir = o.dir
	}
	if o.manifest != "" {
		cfg.Dataset.Manifest = o.manifest
	}
	if o.train > 0 {
		cfg.Dataset.TrainRatio = o.train
	}
	if o.val > 0 {
		cfg.Dataset.ValidationRatio = o.val
	}
	if o.random {
		cfg.Dataset.Stratified = false
	}
}
