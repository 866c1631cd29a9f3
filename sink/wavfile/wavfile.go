// Package wavfile records output to WAV files in real time.
package wavfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-modular/sink"
)

// ErrPathInUse is returned when a path is already being recorded.
var ErrPathInUse = errors.New("path already recording")

// Host treats every device name as an output path. The empty name maps to
// DefaultPath.
type Host struct {
	DefaultPath string

	mu        sync.Mutex
	recording map[string]bool
}

// NewHost returns a host writing to defaultPath unless a device names another file.
func NewHost(defaultPath string) *Host {
	return &Host{DefaultPath: defaultPath}
}

func (h *Host) Name() string {
	return "wavfile"
}

func (h *Host) Devices() ([]sink.Device, error) {
	return []sink.Device{{Name: h.DefaultPath, SampleRates: []int{44100, 48000, 96000}, Default: true}}, nil
}

func (h *Host) Open(device string, format sink.Format, cb sink.Callback) (sink.Sink, error) {
	path := device
	if path == "" {
		path = h.DefaultPath
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no output path", sink.ErrUnknownDevice)
	}
	if format.Channels < 1 {
		format.Channels = 2
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 48000
	}
	if format.BlockSize <= 0 {
		format.BlockSize = 512
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// Creating the file would truncate it under the running encoder.
	if !h.claim(key) {
		return nil, fmt.Errorf("%w: %s", ErrPathInUse, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.release(key)
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		h.release(key)
		return nil, err
	}
	s := &Sink{
		host:   h,
		key:    key,
		path:   path,
		format: format,
		file:   f,
		enc:    wav.NewEncoder(f, format.SampleRate, 16, format.Channels, 1),
		cb:     cb,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (h *Host) claim(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recording[key] {
		return false
	}
	if h.recording == nil {
		h.recording = map[string]bool{}
	}
	h.recording[key] = true
	return true
}

func (h *Host) release(key string) {
	h.mu.Lock()
	delete(h.recording, key)
	h.mu.Unlock()
}

// Sink pulls one block per block period and appends it to the file.
type Sink struct {
	host   *Host
	key    string
	path   string
	format sink.Format
	file   *os.File
	enc    *wav.Encoder
	cb     sink.Callback

	once   sync.Once
	done   chan struct{}
	exited chan struct{}
	err    error
}

func (s *Sink) Device() string { return s.path }

func (s *Sink) Format() sink.Format { return s.format }

func (s *Sink) run() {
	defer close(s.exited)
	period := time.Duration(float64(time.Second) * float64(s.format.BlockSize) / float64(s.format.SampleRate))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	block := make([]float32, s.format.BlockSize*s.format.Channels)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  s.format.SampleRate,
			NumChannels: s.format.Channels,
		},
		SourceBitDepth: 16,
	}
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cb(block)
			buf.Data = block
			if err := s.enc.Write(buf); err != nil {
				s.err = err
				return
			}
		}
	}
}

func (s *Sink) Close() error {
	s.once.Do(func() {
		close(s.done)
		<-s.exited
		if err := s.enc.Close(); err != nil && s.err == nil {
			s.err = err
		}
		if err := s.file.Close(); err != nil && s.err == nil {
			s.err = err
		}
		s.host.release(s.key)
	})
	return s.err
}
