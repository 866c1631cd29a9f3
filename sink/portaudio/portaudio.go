// Package portaudio opens output streams through PortAudio.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/cwbudde/algo-modular/sink"
)

var commonRates = []int{22050, 44100, 48000, 88200, 96000}

// Host is a PortAudio output host. Init must be called before use and
// Terminate once at shutdown.
type Host struct {
	mu sync.Mutex
}

// Init initializes PortAudio.
func Init() (*Host, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to setup portaudio: %w", err)
	}
	return &Host{}, nil
}

// Terminate shuts PortAudio down.
func (h *Host) Terminate() error {
	return pa.Terminate()
}

func (h *Host) Name() string {
	return "portaudio"
}

func (h *Host) Devices() ([]sink.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	infos, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := pa.DefaultOutputDevice()
	var out []sink.Device
	for _, d := range infos {
		if d.MaxOutputChannels < 1 {
			continue
		}
		out = append(out, sink.Device{
			Name:        d.Name,
			SampleRates: supportedRates(d),
			Default:     def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

func supportedRates(d *pa.DeviceInfo) []int {
	var rates []int
	for _, r := range commonRates {
		p := pa.HighLatencyParameters(nil, d)
		p.Output.Channels = 2
		p.SampleRate = float64(r)
		if pa.IsFormatSupported(p, []float32{}) == nil {
			rates = append(rates, r)
		}
	}
	if len(rates) == 0 {
		rates = append(rates, int(d.DefaultSampleRate))
	}
	return rates
}

func (h *Host) lookup(name string) (*pa.DeviceInfo, error) {
	if name == "" {
		return pa.DefaultOutputDevice()
	}
	infos, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range infos {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", sink.ErrUnknownDevice, name)
}

func (h *Host) Open(device string, format sink.Format, cb sink.Callback) (sink.Sink, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, err := h.lookup(device)
	if err != nil {
		return nil, err
	}
	if format.Channels < 1 {
		format.Channels = 2
	}
	if format.Channels > d.MaxOutputChannels {
		format.Channels = d.MaxOutputChannels
	}
	if format.SampleRate <= 0 {
		format.SampleRate = int(d.DefaultSampleRate)
	}

	p := pa.HighLatencyParameters(nil, d)
	p.Output.Channels = format.Channels
	p.SampleRate = float64(format.SampleRate)
	p.FramesPerBuffer = format.BlockSize

	stream, err := pa.OpenStream(p, func(out []float32) {
		cb(out)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start %s: %w", d.Name, err)
	}
	return &Sink{stream: stream, device: d.Name, format: format}, nil
}

// Sink is a running PortAudio stream.
type Sink struct {
	stream *pa.Stream
	device string
	format sink.Format
}

func (s *Sink) Device() string { return s.device }

func (s *Sink) Format() sink.Format { return s.format }

func (s *Sink) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}
