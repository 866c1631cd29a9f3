// Package node defines the contract shared by every signal-processing unit.
package node

// Signal is a read-only view of one input port for the current block.
// It is either a block of samples or a constant.
type Signal struct {
	buf   []float32
	value float32
}

// Block wraps a sample block.
func Block(buf []float32) Signal {
	return Signal{buf: buf}
}

// Const returns a signal holding v for every sample.
func Const(v float32) Signal {
	return Signal{value: v}
}

// At returns the sample at index i.
func (s Signal) At(i int) float32 {
	if s.buf == nil {
		return s.value
	}
	return s.buf[i]
}

// IsConst reports whether the signal has no per-sample data.
func (s Signal) IsConst() bool {
	return s.buf == nil
}

// Value returns the constant of a constant signal, or the first sample of a block.
func (s Signal) Value() float32 {
	if s.buf == nil || len(s.buf) == 0 {
		return s.value
	}
	return s.buf[0]
}

// Node is a unit of signal processing.
//
// in is indexed by port: the declared inputs first, then the declared
// parameters. out is indexed by output number and each slice holds n samples.
type Node interface {
	Init(sampleRate float64)
	Process(n int, in []Signal, out [][]float32)
}

// MessageKind identifies an out-of-band control message.
type MessageKind uint8

const (
	// SetParameter carries an absolute engineering value for a parameter.
	SetParameter MessageKind = iota
	// Reset returns the node to its initial state.
	Reset
)

// Message is delivered to a Receiver outside the audio block.
type Message struct {
	Kind  MessageKind
	Index int
	Value float64
}

// Receiver is implemented by nodes that react to control messages.
type Receiver interface {
	Receive(msg Message)
}

// Grow returns buf resized to n samples, reallocating only when needed.
func Grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// Clear zeroes buf.
func Clear(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
