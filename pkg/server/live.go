package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
)

// LiveConfig controls the live spectrogram stream.
type LiveConfig struct {
	SampleRate int     `yaml:"sample_rate" json:"sampleRate"` // default when the client omits ?rate=
	WindowSize int     `yaml:"window_size" json:"windowSize"`
	HopSize    int     `yaml:"hop_size" json:"hopSize"`
	History    float64 `yaml:"history" json:"history"`        // seconds kept per connection
	MaxMessage int64   `yaml:"max_message" json:"maxMessage"` // bytes
}

// DefaultLiveConfig matches the visualizer defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		SampleRate: 22050,
		WindowSize: 2048,
		HopSize:    512,
		History:    3,
		MaxMessage: 4 << 20,
	}
}

func (c LiveConfig) withDefaults() LiveConfig {
	d := DefaultLiveConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.HopSize <= 0 {
		c.HopSize = d.HopSize
	}
	if c.History <= 0 {
		c.History = d.History
	}
	if c.MaxMessage <= 0 {
		c.MaxMessage = d.MaxMessage
	}
	return c
}

// LiveFrame is one message sent to a live client.
type LiveFrame struct {
	Seq        int `json:"seq"`
	SampleRate int `json:"sampleRate"`
	Buffered   int `json:"buffered"`
	stft.LiveSpectrogram
}

// Sample encodings accepted on /api/live via ?format=.
const (
	FormatFloat32 = "f32"
	FormatPCM16   = "pcm16"
)

// DecodeFloat32 converts little-endian IEEE 754 float32 samples. A
// trailing partial sample is ignored.
func DecodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// handleLive upgrades to a websocket. Each binary message is a chunk of
// audio appended to a rolling buffer; the server answers every chunk
// with a LiveFrame over the buffer. The text message "reset" clears it.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rate := s.live.SampleRate
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid rate %q", v), http.StatusBadRequest)
			return
		}
		rate = n
	}
	decode := DecodeFloat32
	switch f := q.Get("format"); f {
	case "", FormatFloat32:
	case FormatPCM16:
		decode = preprocess.DecodePCM16
	default:
		http.Error(w, fmt.Sprintf("invalid format %q", f), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("live upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.live.MaxMessage)

	log := s.log.With("remote", r.RemoteAddr, "rate", rate)
	log.Debug("live stream opened")

	keep := max(int(s.live.History*float64(rate)), s.live.WindowSize)
	var buf []float32
	for seq := 0; ; {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Debug("live read", "error", err)
			}
			log.Debug("live stream closed", "frames", seq)
			return
		}
		switch mt {
		case websocket.TextMessage:
			if string(data) == "reset" {
				buf = buf[:0]
			}
			continue
		case websocket.BinaryMessage:
		default:
			continue
		}

		buf = append(buf, decode(data)...)
		if len(buf) > keep {
			buf = append(buf[:0], buf[len(buf)-keep:]...)
		}
		frame := LiveFrame{
			Seq:             seq,
			SampleRate:      rate,
			Buffered:        len(buf),
			LiveSpectrogram: stft.Live(buf, rate, s.live.WindowSize, s.live.HopSize),
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Debug("live write", "error", err)
			return
		}
		seq++
	}
}
