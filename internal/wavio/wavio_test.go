package wavio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWriteThenLoadFoldsChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "take.wav")
	frames := 480
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*float64(i)/48))
		samples[2*i] = v
		samples[2*i+1] = -v
	}
	samples[2*12] = 0.5
	samples[2*12+1] = 0.5
	if err := WriteInterleaved(path, samples, 48000, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	take, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if take.SampleRate != 48000 {
		t.Fatalf("expected 48000 Hz, got %d", take.SampleRate)
	}
	if len(take.Samples) != frames {
		t.Fatalf("expected %d frames, got %d", frames, len(take.Samples))
	}
	// Opposite channels cancel; the in-phase frame keeps its level.
	if math.Abs(take.Samples[1]) > 1e-3 {
		t.Fatalf("expected cancelled frame, got %f", take.Samples[1])
	}
	if math.Abs(take.Samples[12]-0.5) > 1e-3 {
		t.Fatalf("expected 0.5 at frame 12, got %f", take.Samples[12])
	}
}

func TestLoadRejectsNonWAV(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteRejectsPartialFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := WriteInterleaved(path, []float32{0, 0, 0}, 48000, 2); err == nil {
		t.Fatalf("expected partial frame error")
	}
	if err := WriteInterleaved(path, nil, 48000, 0); err == nil {
		t.Fatalf("expected channel count error")
	}
}

func TestTakeAt(t *testing.T) {
	take := &Take{SampleRate: 48000, Samples: make([]float64, 4800)}
	for i := range take.Samples {
		take.Samples[i] = math.Sin(2 * math.Pi * 100 * float64(i) / 48000)
	}
	same, err := take.At(48000)
	if err != nil || same != take {
		t.Fatalf("expected the same take back, got err %v", err)
	}
	half, err := take.At(24000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if half.SampleRate != 24000 || math.Abs(float64(len(half.Samples))-2400) > 64 {
		t.Fatalf("expected about 2400 samples at 24000 Hz, got %d at %d", len(half.Samples), half.SampleRate)
	}
	if _, err := take.At(0); err == nil {
		t.Fatalf("expected invalid rate error")
	}
}
