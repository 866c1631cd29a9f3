package nodes

import (
	"fmt"
	"log/slog"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-modular/internal/wavio"
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/param"
)

// ConvolverPartition is the FFT block size, and the latency in frames, of
// every convolver.
const ConvolverPartition = 128

// IRSource yields an impulse response for a sample rate.
type IRSource func(sampleRate float64) ([]float32, error)

// Convolver mixes its input with the input convolved by an impulse
// response. Ports: input, mix (0 dry .. 1 wet).
type Convolver struct {
	source IRSource
	log    *slog.Logger
	ola    *dspconv.StreamingOverlapAddT[float32, complex64]
	in     []float32
	wet    []float32
	fill   int
}

// NewConvolver returns a convolver whose IR is built by source at Init.
// A nil log means slog.Default.
func NewConvolver(source IRSource, log *slog.Logger) *Convolver {
	if log == nil {
		log = slog.Default()
	}
	return &Convolver{source: source, log: log}
}

func (c *Convolver) Init(sampleRate float64) {
	c.ola = nil
	c.in = make([]float32, ConvolverPartition)
	c.wet = make([]float32, ConvolverPartition)
	c.fill = 0
	if c.source == nil {
		return
	}
	ir, err := c.source(sampleRate)
	if err == nil {
		c.ola, err = dspconv.NewStreamingOverlapAdd32(ir, ConvolverPartition)
	}
	if err != nil {
		// Falls back to the dry signal.
		c.log.Warn("convolver disabled", "sample_rate", sampleRate, "err", err)
		c.ola = nil
	}
}

func (c *Convolver) Process(n int, in []node.Signal, out [][]float32) {
	src, mix, dst := in[0], in[1], out[0]
	if c.ola == nil {
		for i := 0; i < n; i++ {
			dst[i] = src.At(i)
		}
		return
	}
	for i := 0; i < n; i++ {
		x := src.At(i)
		m := float32(core.Clamp(float64(mix.At(i)), 0, 1))
		dst[i] = (1-m)*x + m*c.wet[c.fill]
		c.in[c.fill] = x
		c.fill++
		if c.fill == ConvolverPartition {
			if err := c.ola.ProcessBlockTo(c.wet, c.in); err != nil {
				clear(c.wet)
			}
			c.fill = 0
		}
	}
}

func (c *Convolver) Receive(msg node.Message) {
	if msg.Kind != node.Reset || c.ola == nil {
		return
	}
	c.ola.Reset()
	clear(c.in)
	clear(c.wet)
	c.fill = 0
}

func convolverDefinition(uid, name, summary string) node.Definition {
	return node.Definition{
		UID:     uid,
		Name:    name,
		Summary: summary,
		Inputs:  node.Sockets("input"),
		Outputs: node.Sockets("output"),
		Parameters: []node.Parameter{
			{Number: 0, Name: "mix", Kind: param.Number, Default: "0.3"},
		},
	}
}

// RegisterConvolver adds a convolver node type to c whose impulse response
// is read from a WAV file. The file is decoded once and resampled to the
// rate of each instance.
func RegisterConvolver(c *node.Catalog, uid, irPath string, log *slog.Logger) error {
	take, err := wavio.Load(irPath)
	if err != nil {
		return fmt.Errorf("impulse response: %w", err)
	}
	if len(take.Samples) == 0 {
		return fmt.Errorf("impulse response %s is empty", irPath)
	}
	source := func(sampleRate float64) ([]float32, error) {
		rs, err := take.At(int(sampleRate))
		if err != nil {
			return nil, err
		}
		return normalizePeak(rs.Samples, 0.9), nil
	}
	def := convolverDefinition(uid, "Convolver", "Convolution with "+irPath+".")
	return c.Register(&def, func() node.Node { return NewConvolver(source, log) })
}
