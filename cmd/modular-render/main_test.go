package main

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-modular/analysis"
	"github.com/cwbudde/algo-modular/internal/wavio"
	"github.com/cwbudde/algo-modular/patch"
)

func testOptions() renderOptions {
	return renderOptions{
		SampleRate:  48000,
		Channels:    2,
		BlockSize:   128,
		Duration:    0.25,
		DecayDBFS:   math.Inf(1),
		HoldBlocks:  4,
		MinDuration: 0.05,
		MaxDuration: 1,
		Inputs:      inputFlags{},
	}
}

func loadPatch(t *testing.T, body string) *patch.Patch {
	t.Helper()
	p, err := patch.Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

const quietPatch = `{
  "nodes": [
    {"id": 0, "uid": "osc.sin", "offset": {"x": 0, "y": 0}},
    {"id": 1, "uid": "util.amp", "offset": {"x": 100, "y": 0}, "parameters": {"db": "%s"}},
    {"id": 2, "uid": "_synthetic_output", "offset": {"x": 200, "y": 0}}
  ],
  "cables": [
    {"from": {"node_id": 0, "socket_name": "output"}, "to": {"node_id": 1, "socket_name": "input"}},
    {"from": {"node_id": 1, "socket_name": "output"}, "to": {"node_id": 2, "socket_name": "input"}}
  ]
}`

func TestRenderFixedDuration(t *testing.T) {
	opts := testOptions()
	g, err := buildGraph(loadPatch(t, strings.Replace(quietPatch, "%s", "-6.0", 1)), "patch.tone", opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	samples := render(g, opts)
	if want := 12000 * 2; len(samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(samples))
	}
	m := analysis.Measure(analysis.Mono(samples, 2), opts.SampleRate)
	if math.Abs(m.PeakDBFS-(-6)) > 0.5 {
		t.Fatalf("expected peak near -6 dBFS, got %f", m.PeakDBFS)
	}
	if math.Abs(m.DominantHz-440) > 3 {
		t.Fatalf("expected 440 Hz, got %f", m.DominantHz)
	}
}

func TestRenderAutoStopsOnSilence(t *testing.T) {
	opts := testOptions()
	opts.DecayDBFS = -90
	g, err := buildGraph(loadPatch(t, strings.Replace(quietPatch, "%s", "-120.0", 1)), "patch.quiet", opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	frames := len(render(g, opts)) / opts.Channels
	minFrames := int(opts.MinDuration * float64(opts.SampleRate))
	if frames < minFrames || frames > minFrames+opts.HoldBlocks*opts.BlockSize {
		t.Fatalf("expected auto-stop shortly after %d frames, got %d", minFrames, frames)
	}
}

func TestBuildGraphDrivesInputs(t *testing.T) {
	p, err := patch.Load("../../patch/testdata/fm.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := testOptions()
	opts.Inputs["freq"] = 330
	g, err := buildGraph(p, "patch.fm", opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if analysis.RMS32(render(g, opts)) == 0 {
		t.Fatalf("expected audio from driven fm patch")
	}

	opts.Inputs = inputFlags{"nope": 1}
	if _, err := buildGraph(p, "patch.fm", opts); err == nil {
		t.Fatalf("expected unknown input error")
	}
}

const irPatch = `{
  "nodes": [
    {"id": 0, "uid": "osc.sin", "offset": {"x": 0, "y": 0}},
    {"id": 1, "uid": "fx.ir", "offset": {"x": 100, "y": 0}, "parameters": {"mix": "1.0"}},
    {"id": 2, "uid": "_synthetic_output", "offset": {"x": 200, "y": 0}}
  ],
  "cables": [
    {"from": {"node_id": 0, "socket_name": "output"}, "to": {"node_id": 1, "socket_name": "input"}},
    {"from": {"node_id": 1, "socket_name": "output"}, "to": {"node_id": 2, "socket_name": "input"}}
  ]
}`

func TestBuildGraphRegistersIR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.wav")
	ir := make([]float32, 4410)
	ir[0], ir[441] = 0.7, 0.3
	if err := wavio.WriteInterleaved(path, ir, 44100, 1); err != nil {
		t.Fatalf("write ir: %v", err)
	}
	opts := testOptions()
	if _, err := buildGraph(loadPatch(t, irPatch), "patch.ir", opts); err == nil {
		t.Fatalf("expected unknown node without -ir")
	}
	opts.IRPath = path
	g, err := buildGraph(loadPatch(t, irPatch), "patch.ir", opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if analysis.RMS32(render(g, opts)) == 0 {
		t.Fatalf("expected convolved audio")
	}
}

func TestInputFlags(t *testing.T) {
	f := inputFlags{}
	if err := f.Set(" freq = 220 "); err != nil {
		t.Fatalf("set: %v", err)
	}
	if f["freq"] != 220 {
		t.Fatalf("expected 220, got %v", f["freq"])
	}
	for _, bad := range []string{"freq", "=1", "freq=abc"} {
		if err := f.Set(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
