package nodes

import (
	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-modular/node"
)

// LP12 is a two-pole lowpass. Ports: input, cutoff (Hz), q.
// Coefficients are recomputed once per block when cutoff or q change.
type LP12 struct {
	sampleRate float64
	section    *biquad.Section
	cutoff, q  float64
}

func (f *LP12) Init(sampleRate float64) {
	f.sampleRate = sampleRate
	f.section = nil
}

func (f *LP12) Process(n int, in []node.Signal, out [][]float32) {
	f.update(float64(in[1].Value()), float64(in[2].Value()))
	src, dst := in[0], out[0]
	for i := 0; i < n; i++ {
		dst[i] = float32(f.section.ProcessSample(float64(src.At(i))))
	}
}

func (f *LP12) update(cutoff, q float64) {
	if f.sampleRate <= 0 {
		f.sampleRate = 48000
	}
	cutoff = core.Clamp(cutoff, 10, 0.49*f.sampleRate)
	q = core.Clamp(q, 0.1, 20)
	if f.section != nil && cutoff == f.cutoff && q == f.q {
		return
	}
	c := design.Lowpass(cutoff, q, f.sampleRate)
	if f.section == nil {
		f.section = biquad.NewSection(c)
	} else {
		f.section.Coefficients = c
	}
	f.cutoff, f.q = cutoff, q
}

func (f *LP12) Receive(msg node.Message) {
	if msg.Kind == node.Reset && f.section != nil {
		f.section.Reset()
	}
}
