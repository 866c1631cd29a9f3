package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-modular/analysis"
	"github.com/cwbudde/algo-modular/bridge"
	"github.com/cwbudde/algo-modular/engine"
	"github.com/cwbudde/algo-modular/internal/wavio"
	"github.com/cwbudde/algo-modular/patch"
)

type report struct {
	Output   string             `json:"output"`
	Metrics  analysis.Metrics   `json:"metrics"`
	Distance *analysis.Distance `json:"distance,omitempty"`
}

func main() {
	opts := renderOptions{Inputs: inputFlags{}}
	patchPath := flag.String("patch", "patch.json", "Patch JSON file path")
	uid := flag.String("uid", "", "Node uid for the compiled patch (default patch.<file name>)")
	flag.IntVar(&opts.SampleRate, "sample-rate", 48000, "Render sample rate in Hz")
	flag.IntVar(&opts.Channels, "channels", 2, "Output channel count")
	flag.IntVar(&opts.BlockSize, "block-size", engine.DefaultBlockSize, "Frames rendered per block")
	flag.Float64Var(&opts.Duration, "duration", 2.0, "Duration in seconds")
	flag.Float64Var(&opts.DecayDBFS, "decay-dbfs", math.Inf(1), "Auto-stop when block RMS falls below this dBFS (e.g. -90). Disabled by default")
	flag.IntVar(&opts.HoldBlocks, "decay-hold-blocks", 6, "Consecutive below-threshold blocks required to stop in auto-decay mode")
	flag.Float64Var(&opts.MinDuration, "min-duration", 0.5, "Minimum render duration in seconds when using -decay-dbfs")
	flag.Float64Var(&opts.MaxDuration, "max-duration", 20.0, "Maximum render duration in seconds when using -decay-dbfs")
	flag.Var(opts.Inputs, "input", "Drive a patch input with a constant, name=value (repeatable)")
	flag.StringVar(&opts.IRPath, "ir", "", "Impulse response WAV made available to the patch as node "+irUID)
	reference := flag.String("reference", "", "Optional reference WAV to compare the render against")
	output := flag.String("output", "output.wav", "Output WAV file path")
	jsonOut := flag.Bool("json", false, "Print metrics as JSON")
	flag.Parse()

	if opts.SampleRate <= 0 || opts.Channels < 1 {
		die("invalid format: %d Hz, %d channels", opts.SampleRate, opts.Channels)
	}
	p, err := patch.Load(*patchPath)
	if err != nil {
		die("Error loading patch %q: %v", *patchPath, err)
	}
	if *uid == "" {
		*uid = bridge.PatchUID(*patchPath)
	}
	g, err := buildGraph(p, *uid, opts)
	if err != nil {
		die("Error compiling patch: %v", err)
	}

	if !*jsonOut {
		fmt.Printf("Rendering %s at %d Hz...\n", *uid, opts.SampleRate)
	}
	samples := render(g, opts)
	frames := len(samples) / opts.Channels
	if err := wavio.WriteInterleaved(*output, samples, opts.SampleRate, opts.Channels); err != nil {
		die("Error writing WAV file: %v", err)
	}

	mono := analysis.Mono(samples, opts.Channels)
	rep := report{Output: *output, Metrics: analysis.Measure(mono, opts.SampleRate)}
	if *reference != "" {
		ref, err := wavio.Load(*reference)
		if err != nil {
			die("failed to read reference: %v", err)
		}
		if ref, err = ref.At(opts.SampleRate); err != nil {
			die("failed to resample reference: %v", err)
		}
		d := analysis.Compare(ref.Samples, mono, opts.SampleRate)
		rep.Distance = &d
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jsonSafe(rep)); err != nil {
			die("encode metrics: %v", err)
		}
		return
	}
	m := rep.Metrics
	fmt.Printf("Successfully wrote %s (%d frames, %.3fs)\n", *output, frames, float64(frames)/float64(opts.SampleRate))
	fmt.Printf("peak %.2f dBFS, rms %.2f dBFS, dc %.5f, dominant %.2f Hz", m.PeakDBFS, m.RMSDBFS, m.DCOffset, m.DominantHz)
	if !math.IsNaN(m.DecayDBPerS) {
		fmt.Printf(", decay %.2f dB/s", m.DecayDBPerS)
	}
	fmt.Println()
	if d := rep.Distance; d != nil {
		fmt.Printf("reference: score %.4f, lag %d, time %.4f, envelope %.2f dB, spectral %.2f dB\n",
			d.Score, d.LagSamples, d.TimeRMSE, d.EnvelopeRMSEDB, d.SpectralRMSEDB)
	}
}

// jsonSafe replaces the NaN decay slope, which encoding/json rejects.
func jsonSafe(r report) report {
	if math.IsNaN(r.Metrics.DecayDBPerS) {
		r.Metrics.DecayDBPerS = 0
	}
	return r
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
