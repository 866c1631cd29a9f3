package nodes

import (
	"math"

	"github.com/cwbudde/algo-approx"
	"github.com/cwbudde/algo-modular/node"
)

// Sin is a sine oscillator. Ports: phase_mod, tune (octaves), freq.
type Sin struct {
	sampleRate float64
	phase      float64
}

func (s *Sin) Init(sampleRate float64) {
	s.sampleRate = sampleRate
	s.phase = 0
}

func (s *Sin) Process(n int, in []node.Signal, out [][]float32) {
	phaseMod, tune, freq := in[0], in[1], in[2]
	dst := out[0]
	for i := 0; i < n; i++ {
		f := float64(freq.At(i) * pow2Approx(tune.At(i)))
		dst[i] = float32(math.Sin(2 * math.Pi * (s.phase + float64(phaseMod.At(i)))))
		s.phase = wrapPhase(s.phase + f/s.sampleRate)
	}
}

func (s *Sin) Receive(msg node.Message) {
	if msg.Kind == node.Reset {
		s.phase = 0
	}
}

// Saw is a naive rising sawtooth in [-1, 1]. Ports: tune (octaves), freq.
type Saw struct {
	sampleRate float64
	phase      float64
}

func (s *Saw) Init(sampleRate float64) {
	s.sampleRate = sampleRate
	s.phase = 0
}

func (s *Saw) Process(n int, in []node.Signal, out [][]float32) {
	tune, freq := in[0], in[1]
	dst := out[0]
	for i := 0; i < n; i++ {
		f := float64(freq.At(i) * pow2Approx(tune.At(i)))
		dst[i] = float32(2*s.phase - 1)
		s.phase = wrapPhase(s.phase + f/s.sampleRate)
	}
}

func (s *Saw) Receive(msg node.Message) {
	if msg.Kind == node.Reset {
		s.phase = 0
	}
}

func wrapPhase(p float64) float64 {
	return p - math.Floor(p)
}

func pow2Approx(x float32) float32 {
	if x == 0 {
		return 1
	}
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}
