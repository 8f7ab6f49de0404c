package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/storage"
)

func TestLoadConfig_NewConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "birdatlas", "config.yaml")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Path() != configPath {
		t.Errorf("Path = %q, want %q", cfg.Path(), configPath)
	}
	if cfg.Spectrogram != fbank.DefaultConfig() {
		t.Errorf("Spectrogram = %+v", cfg.Spectrogram)
	}
	if cfg.Training.Epochs != 50 || cfg.Store.Kind != StoreLocal || cfg.Model.Variant != VariantCustom {
		t.Errorf("defaults = %+v", cfg)
	}

	// Verify config file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file should be created")
	}

	again, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Server.Addr != cfg.Server.Addr || again.Training != cfg.Training || again.Spectrogram != cfg.Spectrogram {
		t.Errorf("reloaded = %+v, want %+v", again, cfg)
	}
}

func TestLoadConfig_Partial(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := `
training:
  epochs: 5
store:
  kind: s3
  s3:
    bucket: birds
fft: direct
`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Training.Epochs != 5 || cfg.Training.BatchSize != 32 {
		t.Errorf("Training = %+v", cfg.Training)
	}
	if cfg.Store.Kind != StoreS3 || cfg.Store.S3.Bucket != "birds" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Method() != stft.Direct {
		t.Errorf("Method = %v", cfg.Method())
	}
	if cfg.Spectrogram != fbank.DefaultConfig() {
		t.Errorf("Spectrogram = %+v", cfg.Spectrogram)
	}
	if cfg.Server.Addr == "" {
		t.Error("Server.Addr not filled")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"variant", "model:\n  variant: tflite\n", "unknown variant"},
		{"store", "store:\n  kind: ftp\n", "unknown kind"},
		{"bucket", "store:\n  kind: s3\n", "bucket"},
		{"fft", "fft: wavelet\n", "unknown method"},
		{"syntax", "training: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(configPath)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Persistence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Model.Variant = VariantONNX
	cfg.Model.ONNX.ModelPath = "/models/birdnet.onnx"
	cfg.Dataset.Dir = "/data/birds"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model.Variant != VariantONNX || got.Model.ONNX.ModelPath != "/models/birdnet.onnx" || got.Dataset.Dir != "/data/birds" {
		t.Errorf("reloaded = %+v", got)
	}
	if got.Dir() != filepath.Dir(configPath) {
		t.Errorf("Dir = %q", got.Dir())
	}
}

func TestStoreConfig_Open(t *testing.T) {
	dataDir := t.TempDir()
	fs, err := StoreConfig{Kind: StoreLocal}.Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	local, ok := fs.(*storage.Local)
	if !ok {
		t.Fatalf("store is %T", fs)
	}
	if local.Root() != filepath.Join(dataDir, "models") {
		t.Errorf("Root = %q", local.Root())
	}

	if _, err := (StoreConfig{Kind: StoreS3}).Open(dataDir); err == nil {
		t.Error("s3 store without bucket should fail")
	}
	if _, err := (StoreConfig{Kind: "ftp"}).Open(dataDir); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"12345678", "********"},
		{"AKIA1234567890XY", "AKIA********90XY"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.key); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
