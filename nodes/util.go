package nodes

import (
	"math/rand/v2"

	"github.com/cwbudde/algo-approx"
	"github.com/cwbudde/algo-modular/node"
)

// Add sums a and b.
type Add struct{}

func (Add) Init(float64) {}

func (Add) Process(n int, in []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		out[0][i] = in[0].At(i) + in[1].At(i)
	}
}

// Mul multiplies a and b.
type Mul struct{}

func (Mul) Init(float64) {}

func (Mul) Process(n int, in []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		out[0][i] = in[0].At(i) * in[1].At(i)
	}
}

// Amp applies a gain given in decibels.
type Amp struct{}

func (Amp) Init(float64) {}

func (Amp) Process(n int, in []node.Signal, out [][]float32) {
	src, db := in[0], in[1]
	if db.IsConst() {
		g := dbToGain(db.Value())
		for i := 0; i < n; i++ {
			out[0][i] = src.At(i) * g
		}
		return
	}
	for i := 0; i < n; i++ {
		out[0][i] = src.At(i) * dbToGain(db.At(i))
	}
}

func dbToGain(db float32) float32 {
	const ln10over20 = 0.11512925464970229
	if db <= -120 {
		return 0
	}
	return approx.FastExp(db * ln10over20)
}

// Const outputs a fixed value. SetParameter with index 0 replaces it.
type Const struct {
	Value float32
}

// NewConst returns a constant source.
func NewConst(v float32) *Const {
	return &Const{Value: v}
}

func (c *Const) Init(float64) {}

func (c *Const) Process(n int, _ []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		out[0][i] = c.Value
	}
}

func (c *Const) Receive(msg node.Message) {
	if msg.Kind == node.SetParameter && msg.Index == 0 {
		c.Value = float32(msg.Value)
	}
}

// Noise emits uniform white noise between low and high.
type Noise struct {
	rng *rand.Rand
}

func (w *Noise) Init(float64) {
	w.rng = rand.New(rand.NewPCG(0x6d6f64, 0x756c6172))
}

func (w *Noise) Process(n int, in []node.Signal, out [][]float32) {
	if w.rng == nil {
		w.Init(0)
	}
	low, high := in[0], in[1]
	for i := 0; i < n; i++ {
		lo := low.At(i)
		out[0][i] = lo + w.rng.Float32()*(high.At(i)-lo)
	}
}

func (w *Noise) Receive(msg node.Message) {
	if msg.Kind == node.Reset {
		w.Init(0)
	}
}

// HardClip clamps the input between low and high.
type HardClip struct{}

func (HardClip) Init(float64) {}

func (HardClip) Process(n int, in []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		x, lo, hi := in[0].At(i), in[1].At(i), in[2].At(i)
		switch {
		case x < lo:
			x = lo
		case x > hi:
			x = hi
		}
		out[0][i] = x
	}
}

// Output passes its input through; the runtime routes it to the device.
type Output struct{}

func (Output) Init(float64) {}

func (Output) Process(n int, in []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		out[0][i] = in[0].At(i)
	}
}
