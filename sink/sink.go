// Package sink abstracts the audio output device.
package sink

import (
	"errors"
)

// ErrUnknownDevice is returned when a host has no device of the requested name.
var ErrUnknownDevice = errors.New("unknown output device")

// Format describes the stream a sink pulls.
type Format struct {
	SampleRate int
	Channels   int
	// BlockSize is the preferred number of frames per callback.
	BlockSize int
}

// Callback fills interleaved out with the next frames.
type Callback func(out []float32)

// Device is an output device a host can open.
type Device struct {
	Name        string
	SampleRates []int
	Default     bool
}

// Host enumerates and opens output devices. An empty device name selects
// the host's default device.
type Host interface {
	Name() string
	Devices() ([]Device, error)
	Open(device string, format Format, cb Callback) (Sink, error)
}

// Sink is a running output stream pulling from its Callback.
type Sink interface {
	Device() string
	Format() Format
	Close() error
}

// DeviceNames returns the names of devs.
func DeviceNames(devs []Device) []string {
	out := make([]string, len(devs))
	for i, d := range devs {
		out[i] = d.Name
	}
	return out
}

// SampleRates returns the distinct sample rates of devs in first-seen order.
func SampleRates(devs []Device) []int {
	seen := map[int]bool{}
	var out []int
	for _, d := range devs {
		for _, r := range d.SampleRates {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// Find returns the device named name, or the default device when name is empty.
func Find(devs []Device, name string) (Device, bool) {
	for _, d := range devs {
		if (name == "" && d.Default) || (name != "" && d.Name == name) {
			return d, true
		}
	}
	if name == "" && len(devs) > 0 {
		return devs[0], true
	}
	return Device{}, false
}
