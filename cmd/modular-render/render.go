package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-modular/analysis"
	"github.com/cwbudde/algo-modular/engine"
	"github.com/cwbudde/algo-modular/graph"
	"github.com/cwbudde/algo-modular/nodes"
	"github.com/cwbudde/algo-modular/param"
	"github.com/cwbudde/algo-modular/patch"
)

// inputFlags collects repeated -input name=value flags.
type inputFlags map[string]float32

func (f inputFlags) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	return strings.Join(parts, ",")
}

func (f inputFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return fmt.Errorf("input %s: %w", name, err)
	}
	f[name] = float32(v)
	return nil
}

type renderOptions struct {
	SampleRate  int
	Channels    int
	BlockSize   int
	Duration    float64
	DecayDBFS   float64
	HoldBlocks  int
	MinDuration float64
	MaxDuration float64
	Inputs      inputFlags
	// IRPath, when set, registers a convolver under irUID.
	IRPath string
}

// irUID names the convolver backed by the -ir file.
const irUID = "fx.ir"

// buildGraph compiles p and places it in front of the engine destination.
// Boundary inputs named in opts.Inputs are driven by constants.
func buildGraph(p *patch.Patch, uid string, opts renderOptions) (*engine.Graph, error) {
	catalog := nodes.NewCatalog()
	if opts.IRPath != "" {
		if err := nodes.RegisterConvolver(catalog, irUID, opts.IRPath, nil); err != nil {
			return nil, err
		}
	}
	plan, err := patch.Compile(p, catalog, uid)
	if err != nil {
		return nil, err
	}
	if len(plan.Outputs) == 0 {
		return nil, fmt.Errorf("patch %s has no output", uid)
	}
	comp, err := graph.NewComposite(plan, catalog)
	if err != nil {
		return nil, err
	}
	def := plan.Definition()

	g := engine.New(float64(opts.SampleRate), opts.BlockSize)
	h := g.Add(comp, def)
	if err := g.Connect(h, 0, g.Destination(), 0); err != nil {
		return nil, err
	}
	for name, v := range opts.Inputs {
		port, ok := def.Port(name)
		if !ok {
			return nil, fmt.Errorf("patch %s has no input %q (inputs: %s)", uid, name, strings.Join(plan.Inputs, ", "))
		}
		constDef, _ := catalog.Lookup(nodes.ConstUID)
		c := g.Add(nodes.NewConst(v), constDef)
		if err := g.Connect(c, 0, h, port); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// render pulls interleaved frames from g. With a finite DecayDBFS it stops
// once HoldBlocks consecutive blocks fall below the threshold.
func render(g *engine.Graph, opts renderOptions) []float32 {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = engine.DefaultBlockSize
	}
	sr := float64(opts.SampleRate)
	autoStop := !math.IsInf(opts.DecayDBFS, 1)

	maxFrames := max(int(sr*opts.Duration), 1)
	minFrames := 0
	if autoStop {
		minFrames = int(sr * opts.MinDuration)
		maxFrames = max(int(sr*opts.MaxDuration), minFrames, blockSize)
	}
	threshold := param.ToAmp(opts.DecayDBFS)
	hold := max(opts.HoldBlocks, 1)

	samples := make([]float32, 0, maxFrames*opts.Channels)
	block := make([]float32, blockSize*opts.Channels)
	below := 0
	for frames := 0; frames < maxFrames; {
		n := min(blockSize, maxFrames-frames)
		out := block[:n*opts.Channels]
		g.Render(out, opts.Channels)
		samples = append(samples, out...)
		frames += n

		if !autoStop || frames < minFrames {
			continue
		}
		if analysis.RMS32(out) < threshold {
			below++
			if below >= hold {
				break
			}
		} else {
			below = 0
		}
	}
	return samples
}
