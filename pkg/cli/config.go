package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/inference"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/server"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/storage"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/training"
)

const (
	// AppName names the configuration directory.
	AppName = "birdatlas"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Model variants.
const (
	VariantCustom = "custom"
	VariantONNX   = "onnx"
)

// Store kinds.
const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

// Config is the birdatlas configuration file.
type Config struct {
	// Spectrogram is the feature extraction used for training and the
	// custom model.
	Spectrogram fbank.Config `yaml:"spectrogram"`

	// FFT selects the spectral transform: "fast" or "direct".
	FFT string `yaml:"fft,omitempty"`

	Training training.Config `yaml:"training"`
	Dataset  DatasetConfig   `yaml:"dataset"`
	Store    StoreConfig     `yaml:"store"`
	Model    ModelConfig     `yaml:"model"`
	Server   ServerConfig    `yaml:"server"`

	// HistoryDir holds the training history database. Empty means
	// <data dir>/history.
	HistoryDir string `yaml:"history_dir,omitempty"`

	path string
}

// DatasetConfig locates training data.
type DatasetConfig struct {
	// Manifest is the YAML class list.
	Manifest string `yaml:"manifest,omitempty"`
	// Dir holds one subdirectory of recordings per class ID.
	Dir             string  `yaml:"dir,omitempty"`
	TrainRatio      float64 `yaml:"train_ratio"`
	ValidationRatio float64 `yaml:"validation_ratio"`
	Stratified      bool    `yaml:"stratified"`
	Workers         int     `yaml:"workers,omitempty"`
}

// StoreConfig selects where model artifacts live.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	// Dir is the root for the local store. Empty means <data dir>/models.
	Dir    string           `yaml:"dir,omitempty"`
	Prefix string           `yaml:"prefix,omitempty"`
	S3     storage.S3Config `yaml:"s3,omitempty"`
}

// ModelConfig selects the inference model.
type ModelConfig struct {
	Variant string               `yaml:"variant"`
	ONNX    inference.ONNXConfig `yaml:"onnx,omitempty"`
	// Demo serves synthetic predictions from the dataset manifest when no
	// model is available.
	Demo bool  `yaml:"demo,omitempty"`
	Seed int64 `yaml:"seed,omitempty"`
}

// ServerConfig configures `birdatlas serve`.
type ServerConfig struct {
	Addr string            `yaml:"addr"`
	Live server.LiveConfig `yaml:"live,omitempty"`
}

// DefaultConfig returns a configuration with every section filled.
func DefaultConfig() *Config {
	return &Config{
		Spectrogram: fbank.DefaultConfig(),
		FFT:         stft.Fast.String(),
		Training:    training.DefaultConfig(),
		Dataset: DatasetConfig{
			TrainRatio:      0.7,
			ValidationRatio: 0.15,
			Stratified:      true,
		},
		Store:  StoreConfig{Kind: StoreLocal, Prefix: "model"},
		Model:  ModelConfig{Variant: VariantCustom},
		Server: ServerConfig{Addr: "127.0.0.1:8080", Live: server.DefaultLiveConfig()},
	}
}

// LoadConfig reads the configuration at customPath, or at the default
// location when customPath is empty. A missing file is created with
// defaults.
func LoadConfig(customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		p, err := NewPaths()
		if err != nil {
			return nil, err
		}
		configPath = p.ConfigFile()
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := DefaultConfig()
	cfg.path = configPath

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = configPath
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// fillDefaults restores zero values a partial file may leave behind.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.Spectrogram == (fbank.Config{}) {
		c.Spectrogram = d.Spectrogram
	}
	if c.FFT == "" {
		c.FFT = d.FFT
	}
	if c.Training.Epochs == 0 {
		c.Training.Epochs = d.Training.Epochs
	}
	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = d.Training.BatchSize
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = d.Training.LearningRate
	}
	if c.Training.TopK == 0 {
		c.Training.TopK = d.Training.TopK
	}
	if c.Dataset.TrainRatio == 0 && c.Dataset.ValidationRatio == 0 {
		c.Dataset.TrainRatio, c.Dataset.ValidationRatio = d.Dataset.TrainRatio, d.Dataset.ValidationRatio
	}
	if c.Store.Kind == "" {
		c.Store.Kind = d.Store.Kind
	}
	if c.Model.Variant == "" {
		c.Model.Variant = d.Model.Variant
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}

// Validate checks the enumerated fields and the spectrogram.
func (c *Config) Validate() error {
	if _, err := stft.ParseMethod(c.FFT); err != nil {
		return err
	}
	if err := c.Spectrogram.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	switch c.Store.Kind {
	case StoreLocal:
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store: s3 bucket is required")
		}
	default:
		return fmt.Errorf("store: unknown kind %q", c.Store.Kind)
	}
	switch c.Model.Variant {
	case VariantCustom, VariantONNX:
	default:
		return fmt.Errorf("model: unknown variant %q", c.Model.Variant)
	}
	return nil
}

// Method returns the configured spectral transform.
func (c *Config) Method() stft.Method {
	m, err := stft.ParseMethod(c.FFT)
	if err != nil {
		return stft.Fast
	}
	return m
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.path
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

// Open returns the configured model file store. The local store
// defaults to dataDir/models.
func (s StoreConfig) Open(dataDir string) (storage.FileStore, error) {
	switch s.Kind {
	case StoreS3:
		client, err := storage.NewS3Client(s.S3)
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, s.S3.Bucket, s.S3.Prefix), nil
	case StoreLocal, "":
		dir := s.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "models")
		}
		return storage.NewLocal(dir)
	}
	return nil, fmt.Errorf("store: unknown kind %q", s.Kind)
}

// MaskSecret masks a credential for display
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
