package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadRequest decodes a request body saved to a file, such as a captured
// /api/identify payload, into v. A path of "-" reads stdin.
func LoadRequest(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by file extension: .json as JSON, .yaml and
// .yml as YAML. Anything else is tried as JSON, then YAML.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			if err2 := yaml.Unmarshal(data, v); err2 != nil {
				return fmt.Errorf("failed to parse request (tried JSON and YAML)")
			}
		}
	}
	return nil
}
