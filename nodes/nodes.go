// Package nodes provides the built-in node library.
package nodes

import (
	"log/slog"

	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/param"
)

// Built-in node uids.
const (
	SinUID      = "osc.sin"
	SawUID      = "osc.saw"
	AddUID      = "util.add"
	MulUID      = "util.mul"
	AmpUID      = "util.amp"
	ConstUID    = "util.const"
	NoiseUID    = "util.noise"
	HardClipUID = "util.hardclip"
	LP12UID     = "filter.lp12"
	ReverbUID   = "fx.reverb"
	OutputUID   = "io.output"
)

type builtin struct {
	def     node.Definition
	factory node.Factory
	// logged replaces factory for nodes that report runtime problems.
	logged func(*slog.Logger) node.Node
}

var builtins = []builtin{
	{
		def: node.Definition{
			UID:     SinUID,
			Name:    "Sine",
			Summary: "Sine oscillator with phase modulation and octave tuning.",
			Inputs:  node.Sockets("phase_mod", "tune"),
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "freq", Kind: param.HzWide, Default: "440.0"},
			},
		},
		factory: func() node.Node { return &Sin{} },
	},
	{
		def: node.Definition{
			UID:     SawUID,
			Name:    "Saw",
			Summary: "Naive sawtooth, mostly useful as an LFO.",
			Inputs:  node.Sockets("tune"),
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "freq", Kind: param.HzSlow, Default: "0.5"},
			},
		},
		factory: func() node.Node { return &Saw{} },
	},
	{
		def: node.Definition{
			UID:     AddUID,
			Name:    "Add",
			Summary: "a + b",
			Inputs:  node.Sockets("a"),
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "b", Kind: param.Number, Default: "0.0"},
			},
		},
		factory: func() node.Node { return Add{} },
	},
	{
		def: node.Definition{
			UID:     MulUID,
			Name:    "Multiply",
			Summary: "a * b",
			Inputs:  []node.Socket{{Number: 0, Name: "a", Default: 1}},
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "b", Kind: param.Number, Default: "1.0"},
			},
		},
		factory: func() node.Node { return Mul{} },
	},
	{
		def: node.Definition{
			UID:     AmpUID,
			Name:    "Amplifier",
			Summary: "Gain stage in decibels.",
			Inputs:  node.Sockets("input"),
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "db", Kind: param.Db, Default: "-6.0"},
			},
		},
		factory: func() node.Node { return Amp{} },
	},
	{
		def: node.Definition{
			UID:     ConstUID,
			Name:    "Constant",
			Summary: "Constant signal.",
			Outputs: node.Sockets("output"),
		},
		factory: func() node.Node { return &Const{} },
	},
	{
		def: node.Definition{
			UID:     NoiseUID,
			Name:    "Noise",
			Summary: "Uniform white noise between low and high.",
			Inputs:  []node.Socket{{Number: 0, Name: "low", Default: -1}, {Number: 1, Name: "high", Default: 1}},
			Outputs: node.Sockets("output"),
		},
		factory: func() node.Node { return &Noise{} },
	},
	{
		def: node.Definition{
			UID:     HardClipUID,
			Name:    "Hard clip",
			Summary: "Clamp the input between low and high.",
			Inputs:  []node.Socket{{Number: 0, Name: "input"}, {Number: 1, Name: "low", Default: -1}, {Number: 2, Name: "high", Default: 1}},
			Outputs: node.Sockets("output"),
		},
		factory: func() node.Node { return HardClip{} },
	},
	{
		def: node.Definition{
			UID:     LP12UID,
			Name:    "Lowpass 12 dB",
			Summary: "Two-pole resonant lowpass.",
			Inputs:  node.Sockets("input"),
			Outputs: node.Sockets("output"),
			Parameters: []node.Parameter{
				{Number: 0, Name: "cutoff", Kind: param.HzFast, Default: "20000.0"},
				{Number: 1, Name: "q", Kind: param.Number, Default: "0.71"},
			},
		},
		factory: func() node.Node { return &LP12{} },
	},
	{
		def:    convolverDefinition(ReverbUID, "Reverb", "Convolution with a synthetic room response."),
		logged: func(log *slog.Logger) node.Node { return NewConvolver(DefaultRoom().IR, log) },
	},
	{
		def: node.Definition{
			UID:     OutputUID,
			Name:    "Output",
			Summary: "Sends its input to the audio device.",
			Inputs:  node.Sockets("input"),
			Outputs: node.Sockets("output"),
		},
		factory: func() node.Node { return Output{} },
	},
}

// Register adds every built-in node to c. Nodes that can fail at Init
// report through log.
func Register(c *node.Catalog, log *slog.Logger) error {
	for i := range builtins {
		b := &builtins[i]
		factory := b.factory
		if b.logged != nil {
			factory = func() node.Node { return b.logged(log) }
		}
		if err := c.Register(&b.def, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewCatalog returns a catalog holding the built-in nodes, logging to
// slog.Default.
func NewCatalog() *node.Catalog {
	return NewCatalogWithLogger(slog.Default())
}

// NewCatalogWithLogger returns a catalog holding the built-in nodes.
func NewCatalogWithLogger(log *slog.Logger) *node.Catalog {
	c := node.NewCatalog()
	if err := Register(c, log); err != nil {
		panic("nodes: " + err.Error())
	}
	return c
}
