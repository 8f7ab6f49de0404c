package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatTable renders a styled table (default for terminal)
	FormatTable OutputFormat = "table"
	// FormatYAML outputs as YAML
	FormatYAML OutputFormat = "yaml"
	// FormatJSON outputs as JSON
	FormatJSON OutputFormat = "json"
)

// ParseFormat parses a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatYAML, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// Tabler is implemented by results with a table rendering. Results
// that are not Tablers fall back to YAML under FormatTable.
type Tabler interface {
	Table(s Styles) string
}

// OutputOptions configures output behavior
type OutputOptions struct {
	Format OutputFormat

	// File is the output file path (empty for stdout)
	File string

	// Writer is an optional custom writer (overrides File)
	Writer io.Writer

	// Styles for FormatTable. Zero means NewStyles(DefaultTheme).
	Styles *Styles
}

// Output writes the result to the configured destination
func Output(result any, opts OutputOptions) error {
	var w io.Writer = os.Stdout

	if opts.Writer != nil {
		w = opts.Writer
	} else if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case FormatJSON:
		return outputJSON(w, result)
	case FormatYAML:
		return outputYAML(w, result)
	case FormatTable, "":
		t, ok := result.(Tabler)
		if !ok {
			return outputYAML(w, result)
		}
		styles := NewStyles(DefaultTheme)
		if opts.Styles != nil {
			styles = *opts.Styles
		}
		_, err := fmt.Fprintln(w, t.Table(styles))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

func outputJSON(w io.Writer, result any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintSuccess prints a success message with checkmark to stderr
func PrintSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "✓ "+format+"\n", args...)
}

// PrintWarning prints a warning to stderr
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "⚠ "+format+"\n", args...)
}
