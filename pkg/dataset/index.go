package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/audiofile"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Manifest lists the species of a dataset in class-index order.
//
//	classes:
//	  - id: blackbird
//	    name: Common Blackbird
//	    scientific_name: Turdus merula
type Manifest struct {
	Classes []birdid.Class `yaml:"classes"`
}

// LoadManifest reads a YAML manifest and assigns dense class indices in
// file order. Any class_index in the file is ignored.
func LoadManifest(path string) (birdid.ClassList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest is LoadManifest on in-memory data.
func ParseManifest(data []byte) (birdid.ClassList, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dataset: parse manifest: %w", err)
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("dataset: manifest has no classes: %w", birdid.ErrPrecondition)
	}
	seen := make(map[string]bool, len(m.Classes))
	for _, c := range m.Classes {
		if c.ID == "" {
			return nil, fmt.Errorf("dataset: manifest class without id: %w", birdid.ErrPrecondition)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("dataset: duplicate class id %q: %w", c.ID, birdid.ErrPrecondition)
		}
		seen[c.ID] = true
	}
	return birdid.NewClassList(m.Classes), nil
}

// Index lists the recordings under dir/<class id>/ for every class, in
// class order and then file name order. Unsupported files are ignored; a
// class without a directory contributes no samples.
func Index(dir string, classes birdid.ClassList) ([]Sample, error) {
	var out []Sample
	for _, c := range classes {
		entries, err := os.ReadDir(filepath.Join(dir, c.ID))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: index %s: %w", c.ID, err)
		}
		for _, e := range entries {
			if e.IsDir() || !audiofile.Supported(e.Name()) {
				continue
			}
			out = append(out, Sample{
				BirdID:     c.ID,
				Path:       filepath.Join(dir, c.ID, e.Name()),
				ClassIndex: c.Index,
			})
		}
	}
	return out, nil
}
