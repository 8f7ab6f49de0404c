package audiofile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
)

// writeWAV writes a minimal 16-bit PCM RIFF file.
func writeWAV(t *testing.T, path string, rate, channels int, samples []int16) {
	t.Helper()
	var buf bytes.Buffer
	dataLen := len(samples) * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeWAVMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(16000 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	writeWAV(t, path, 8000, 1, samples)

	buf, err := Decode(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if buf.SampleRate != 8000 {
		t.Fatalf("rate = %d, want 8000", buf.SampleRate)
	}
	if len(buf.Samples) != 800 {
		t.Fatalf("len = %d, want 800", len(buf.Samples))
	}
	if p := preprocess.Peak(buf.Samples); p < 0.45 || p > 0.5 {
		t.Fatalf("peak = %v, want ~0.49", p)
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeWAV(t, path, 16000, 2, []int16{16384, 0, 16384, 0})
	buf, err := Decode(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != 2 {
		t.Fatalf("len = %d, want 2 frames", len(buf.Samples))
	}
	if math.Abs(float64(buf.Samples[0])-0.25) > 1e-3 {
		t.Fatalf("downmix = %v, want 0.25", buf.Samples[0])
	}
}

func TestDecodePCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.pcm")
	if err := os.WriteFile(path, []byte{0x00, 0x40, 0x00, 0xc0}, 0o644); err != nil {
		t.Fatal(err)
	}
	buf, err := Decode(path, 44100)
	if err != nil {
		t.Fatal(err)
	}
	if buf.SampleRate != 44100 || len(buf.Samples) != 2 {
		t.Fatalf("Decode = %+v", buf)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(path, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.WAV": true, "b.flac": true, "c.pcm": true, "d.mp3": false, "e": false,
	} {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}
