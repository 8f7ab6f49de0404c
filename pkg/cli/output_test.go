package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type tabled struct {
	Name string `json:"name" yaml:"name"`
}

func (t tabled) Table(s Styles) string { return "TABLE " + t.Name }

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(tabled{Name: "robin"}, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result["name"] != "robin" {
		t.Errorf("name = %v, want %q", result["name"], "robin")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(tabled{Name: "robin"}, OutputOptions{Format: FormatYAML, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "name: robin") {
		t.Errorf("Output should contain 'name: robin', got: %s", buf.String())
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(tabled{Name: "robin"}, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if buf.String() != "TABLE robin\n" {
		t.Errorf("got %q", buf.String())
	}

	// Non-tablers fall back to YAML.
	buf.Reset()
	if err := Output(map[string]int{"count": 3}, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "count: 3") {
		t.Errorf("got %q", buf.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("x", OutputOptions{Format: "xml", Writer: &buf}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Output(tabled{Name: "wren"}, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"name": "wren"`) {
		t.Errorf("file = %s", data)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseRequest(t *testing.T) {
	var req struct {
		Samples    []float32 `json:"samples" yaml:"samples"`
		SampleRate int       `json:"sampleRate" yaml:"sampleRate"`
	}
	if err := ParseRequest([]byte(`{"samples":[0.5,-0.5],"sampleRate":22050}`), "body.json", &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Samples) != 2 || req.SampleRate != 22050 {
		t.Fatalf("json = %+v", req)
	}
	if err := ParseRequest([]byte("samples: [1]\nsampleRate: 8000\n"), "body.yaml", &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Samples) != 1 || req.SampleRate != 8000 {
		t.Fatalf("yaml = %+v", req)
	}
	if err := ParseRequest([]byte("sampleRate: 16000\n"), "body", &req); err != nil || req.SampleRate != 16000 {
		t.Fatalf("sniffed = %+v, %v", req, err)
	}
	if err := ParseRequest([]byte("{"), "body.json", &req); err == nil {
		t.Fatal("expected parse error")
	}
}
