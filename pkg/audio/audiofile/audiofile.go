// Package audiofile decodes recordings on disk into mono float waveforms.
//
// Supported formats are chosen by extension:
//
//	.wav   RIFF WAVE (PCM)
//	.flac  FLAC
//	.pcm   headerless little-endian int16 mono at a caller-supplied rate
//
// Multi-channel input is averaged down to one channel.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep/wav"
	"github.com/mewkiz/flac"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// ErrUnsupported is returned for extensions Decode does not handle.
var ErrUnsupported = errors.New("audiofile: unsupported format")

// Extensions lists the file extensions Decode understands.
var Extensions = []string{".wav", ".flac", ".pcm"}

// Supported reports whether path has a decodable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Decode reads the file at path. pcmRate is the sample rate assumed for
// headerless .pcm files and is ignored for other formats.
func Decode(path string, pcmRate int) (preprocess.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: open %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return DecodeWAV(f)
	case ".flac":
		return DecodeFLAC(f)
	case ".pcm":
		return DecodePCM(f, pcmRate)
	default:
		return preprocess.Buffer{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// DecodeWAV decodes a WAVE stream.
func DecodeWAV(r io.Reader) (preprocess.Buffer, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: decode wav: %w", err)
	}
	defer stream.Close()

	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	out := make([]float32, 0, max(stream.Len(), 0))
	buf := make([][2]float64, 4096)
	for {
		n, ok := stream.Stream(buf)
		for _, s := range buf[:n] {
			if channels == 1 {
				out = append(out, float32(s[0]))
			} else {
				out = append(out, float32((s[0]+s[1])/2))
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: read wav: %w", err)
	}
	return preprocess.Buffer{Samples: out, SampleRate: int(format.SampleRate)}, nil
}

// DecodeFLAC decodes a FLAC stream.
func DecodeFLAC(r io.Reader) (preprocess.Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: decode flac: %w", err)
	}
	defer stream.Close()

	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))
	out := make([]float32, 0, stream.Info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return preprocess.Buffer{}, fmt.Errorf("audiofile: read flac frame: %w", err)
		}
		channels := len(frame.Subframes)
		if channels == 0 {
			continue
		}
		for i := range frame.Subframes[0].Samples {
			var sum float32
			for _, sf := range frame.Subframes {
				sum += float32(sf.Samples[i])
			}
			out = append(out, sum/float32(channels)/scale)
		}
	}
	return preprocess.Buffer{Samples: out, SampleRate: int(stream.Info.SampleRate)}, nil
}

// DecodePCM decodes headerless little-endian int16 mono audio.
func DecodePCM(r io.Reader, sampleRate int) (preprocess.Buffer, error) {
	if sampleRate <= 0 {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: pcm needs a sample rate: %w", birdid.ErrPrecondition)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return preprocess.Buffer{}, fmt.Errorf("audiofile: read pcm: %w", err)
	}
	return preprocess.Buffer{Samples: preprocess.DecodePCM16(b), SampleRate: sampleRate}, nil
}
