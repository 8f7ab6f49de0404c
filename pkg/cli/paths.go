package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths provides access to the birdatlas directory structure.
type Paths struct {
	// ConfigRoot is the user configuration directory, usually
	// ~/.config on Linux.
	ConfigRoot string
}

// NewPaths resolves the user configuration directory.
func NewPaths() (*Paths, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return &Paths{ConfigRoot: root}, nil
}

// AppDir returns <config root>/birdatlas.
func (p *Paths) AppDir() string {
	return filepath.Join(p.ConfigRoot, AppName)
}

// ConfigFile returns the default config file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// DataDir holds the local model store and the history database.
func (p *Paths) DataDir() string {
	return filepath.Join(p.AppDir(), "data")
}

// HistoryDir returns dir if set, else <data dir>/history.
func (p *Paths) HistoryDir(dir string) string {
	if dir != "" {
		return dir
	}
	return filepath.Join(p.DataDir(), "history")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0755)
}
