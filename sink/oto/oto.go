// Package oto plays output through the system default device using oto.
package oto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hajimehoshi/oto/v2"

	"github.com/cwbudde/algo-modular/sink"
)

// DeviceName is the only device an oto host exposes.
const DeviceName = "default"

// Host plays through oto. oto allows one context per process, so the host
// keeps it for its lifetime.
type Host struct {
	mu     sync.Mutex
	ctx    *oto.Context
	format sink.Format
}

// NewHost returns a host; the oto context is created on first Open.
func NewHost() *Host {
	return &Host{}
}

func (h *Host) Name() string {
	return "oto"
}

func (h *Host) Devices() ([]sink.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rates := []int{44100, 48000}
	if h.ctx != nil {
		rates = []int{h.format.SampleRate}
	}
	return []sink.Device{{Name: DeviceName, SampleRates: rates, Default: true}}, nil
}

func (h *Host) Open(device string, format sink.Format, cb sink.Callback) (sink.Sink, error) {
	if device != "" && device != DeviceName {
		return nil, fmt.Errorf("%w: %q", sink.ErrUnknownDevice, device)
	}
	if format.Channels < 1 {
		format.Channels = 2
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 48000
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		ctx, ready, err := oto.NewContext(format.SampleRate, format.Channels, oto.FormatFloat32LE)
		if err != nil {
			return nil, err
		}
		<-ready
		h.ctx = ctx
		h.format = format
	} else if h.format.SampleRate != format.SampleRate || h.format.Channels != format.Channels {
		return nil, errors.New("oto: stream format is fixed once the context exists")
	}

	r := &reader{cb: cb, channels: format.Channels}
	p := h.ctx.NewPlayer(r)
	p.Play()
	return &Sink{player: p, format: format}, nil
}

// Sink is a playing oto player.
type Sink struct {
	player oto.Player
	format sink.Format
}

func (s *Sink) Device() string { return DeviceName }

func (s *Sink) Format() sink.Format { return s.format }

func (s *Sink) Close() error {
	s.player.Pause()
	return s.player.Close()
}

// reader adapts a pull callback to the byte stream oto consumes.
type reader struct {
	cb       sink.Callback
	channels int
	buf      []float32
}

func (r *reader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	n := frames * r.channels
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	buf := r.buf[:n]
	r.cb(buf)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return frames * frameBytes, nil
}
