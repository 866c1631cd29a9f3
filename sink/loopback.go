package sink

import (
	"fmt"
	"sync"
)

// Loopback is an in-process host whose sinks are driven by Pull.
// It backs offline rendering and tests.
type Loopback struct {
	mu      sync.Mutex
	devices []Device
	failing map[string]error
	active  *LoopbackSink
	opened  int
}

// NewLoopback creates a host exposing the named devices; the first is the default.
func NewLoopback(names ...string) *Loopback {
	if len(names) == 0 {
		names = []string{"loopback"}
	}
	l := &Loopback{failing: map[string]error{}}
	for i, n := range names {
		l.devices = append(l.devices, Device{Name: n, SampleRates: []int{44100, 48000}, Default: i == 0})
	}
	return l
}

// Fail makes Open on device return err. A nil err clears the failure.
func (l *Loopback) Fail(device string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failing, device)
		return
	}
	l.failing[device] = err
}

// AddDevice makes another device available.
func (l *Loopback) AddDevice(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.devices = append(l.devices, Device{Name: name, SampleRates: []int{44100, 48000}})
}

func (l *Loopback) Name() string { return "loopback" }

func (l *Loopback) Devices() ([]Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Device(nil), l.devices...), nil
}

func (l *Loopback) Open(device string, format Format, cb Callback) (Sink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := Find(l.devices, device)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, device)
	}
	if err, bad := l.failing[d.Name]; bad {
		return nil, err
	}
	if format.Channels < 1 {
		format.Channels = 2
	}
	s := &LoopbackSink{host: l, device: d.Name, format: format, cb: cb}
	l.active = s
	l.opened++
	return s, nil
}

// Active returns the most recently opened sink that is still open.
func (l *Loopback) Active() *LoopbackSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Opened returns how many sinks were opened successfully.
func (l *Loopback) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

// Pull renders frames through the active sink. It returns nil when no sink is open.
func (l *Loopback) Pull(frames int) []float32 {
	s := l.Active()
	if s == nil {
		return nil
	}
	return s.Pull(frames)
}

// LoopbackSink is a sink opened on a Loopback host.
type LoopbackSink struct {
	host   *Loopback
	device string
	format Format
	cb     Callback

	mu     sync.Mutex
	closed bool
}

func (s *LoopbackSink) Device() string { return s.device }

func (s *LoopbackSink) Format() Format { return s.format }

// Closed reports whether Close was called.
func (s *LoopbackSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pull invokes the callback for frames frames and returns the interleaved result.
func (s *LoopbackSink) Pull(frames int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	out := make([]float32, frames*s.format.Channels)
	s.cb(out)
	return out
}

func (s *LoopbackSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.host.mu.Lock()
	if s.host.active == s {
		s.host.active = nil
	}
	s.host.mu.Unlock()
	return nil
}
