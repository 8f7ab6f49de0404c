package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", root)
	t.Setenv("HOME", root)

	paths, err := NewPaths()
	if err != nil {
		t.Fatalf("NewPaths error: %v", err)
	}
	if paths.ConfigRoot == "" {
		t.Fatal("ConfigRoot should not be empty")
	}
	app := filepath.Join(paths.ConfigRoot, "birdatlas")
	if paths.AppDir() != app {
		t.Errorf("AppDir = %q, want %q", paths.AppDir(), app)
	}
	if paths.ConfigFile() != filepath.Join(app, "config.yaml") {
		t.Errorf("ConfigFile = %q", paths.ConfigFile())
	}
	if paths.HistoryDir("") != filepath.Join(app, "data", "history") {
		t.Errorf("HistoryDir = %q", paths.HistoryDir(""))
	}
	if paths.HistoryDir("/var/lib/birds") != "/var/lib/birds" {
		t.Errorf("HistoryDir override = %q", paths.HistoryDir("/var/lib/birds"))
	}
}

func TestPaths_EnsureDataDir(t *testing.T) {
	paths := &Paths{ConfigRoot: t.TempDir()}
	if err := paths.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir error: %v", err)
	}
	info, err := os.Stat(paths.DataDir())
	if err != nil || !info.IsDir() {
		t.Fatalf("data dir: %v", err)
	}
}
