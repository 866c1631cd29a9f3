// Package wavio reads and writes the WAV files used by the render tools.
package wavio

import (
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// WriteInterleaved writes 16-bit PCM frames, creating parent directories.
func WriteInterleaved(path string, samples []float32, sampleRate, channels int) error {
	if channels < 1 {
		return fmt.Errorf("invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("%d samples do not fill %d-channel frames", len(samples), channels)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Take is a decoded recording folded to one channel.
type Take struct {
	SampleRate int
	Samples    []float64
}

// Load decodes the WAV file at path. Multichannel frames are averaged.
func Load(path string) (*Take, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a wav file", path)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	format := pcm.Format
	if format == nil || format.NumChannels < 1 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: missing format", path)
	}

	take := &Take{
		SampleRate: format.SampleRate,
		Samples:    make([]float64, len(pcm.Data)/format.NumChannels),
	}
	gain := 1 / float64(format.NumChannels)
	for i, v := range pcm.Data[:len(take.Samples)*format.NumChannels] {
		take.Samples[i/format.NumChannels] += float64(v) * gain
	}
	return take, nil
}

// At returns the take converted to sampleRate. The receiver is returned
// as is when the rates already agree.
func (t *Take) At(sampleRate int) (*Take, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if sampleRate == t.SampleRate {
		return t, nil
	}
	r, err := dspresample.NewForRates(float64(t.SampleRate), float64(sampleRate),
		dspresample.WithQuality(dspresample.QualityBest))
	if err != nil {
		return nil, fmt.Errorf("resample %d Hz to %d Hz: %w", t.SampleRate, sampleRate, err)
	}
	return &Take{SampleRate: sampleRate, Samples: r.Process(t.Samples)}, nil
}
