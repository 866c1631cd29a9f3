// Package engine runs a connected set of node instances block by block.
package engine

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-modular/node"
)

var (
	// ErrCycle is returned when a connection would close a feedback loop.
	ErrCycle = errors.New("connection would create a cycle")
	// ErrInvalidPort is returned for an unknown handle, output or port.
	ErrInvalidPort = errors.New("invalid port")
)

// DefaultBlockSize is the largest block handed to a node.
const DefaultBlockSize = 128

// Handle identifies a node inside a Graph.
type Handle int

type conn struct {
	from   Handle
	output int
}

type slot struct {
	node      node.Node
	def       *node.Definition
	constants []float32
	conns     [][]conn
	ins       []node.Signal
	sums      [][]float32
	outs      [][]float32
}

// Graph is an executable audio graph. It is not safe for concurrent use;
// callers serialize access.
type Graph struct {
	sampleRate float64
	blockSize  int
	slots      []*slot
	order      []Handle
	dest       Handle
}

var terminalDef = &node.Definition{
	UID:     "engine.destination",
	Name:    "Destination",
	Inputs:  node.Sockets("input"),
	Outputs: node.Sockets("output"),
}

type terminal struct{}

func (terminal) Init(float64) {}

func (terminal) Process(n int, in []node.Signal, out [][]float32) {
	for i := 0; i < n; i++ {
		out[0][i] = in[0].At(i)
	}
}

// New creates a graph holding only the permanent destination terminal.
func New(sampleRate float64, blockSize int) *Graph {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	g := &Graph{sampleRate: sampleRate, blockSize: blockSize}
	g.dest = g.Add(terminal{}, terminalDef)
	return g
}

// SampleRate returns the rate nodes were initialized with.
func (g *Graph) SampleRate() float64 {
	return g.sampleRate
}

// Destination returns the terminal whose input reaches the output sink.
func (g *Graph) Destination() Handle {
	return g.dest
}

// Len returns the number of nodes including the destination.
func (g *Graph) Len() int {
	return len(g.slots)
}

// Add initializes n and places it in the graph.
func (g *Graph) Add(n node.Node, def *node.Definition) Handle {
	n.Init(g.sampleRate)
	s := &slot{
		node:      n,
		def:       def,
		constants: def.PortDefaults(),
		conns:     make([][]conn, def.NumPorts()),
		ins:       make([]node.Signal, def.NumPorts()),
		sums:      make([][]float32, def.NumPorts()),
		outs:      make([][]float32, len(def.Outputs)),
	}
	for i := range s.outs {
		s.outs[i] = make([]float32, g.blockSize)
	}
	h := Handle(len(g.slots))
	g.slots = append(g.slots, s)
	g.order = append(g.order, h)
	return h
}

func (g *Graph) slot(h Handle) (*slot, error) {
	if h < 0 || int(h) >= len(g.slots) {
		return nil, fmt.Errorf("%w: handle %d", ErrInvalidPort, h)
	}
	return g.slots[h], nil
}

// Definition returns the node type behind h.
func (g *Graph) Definition(h Handle) (*node.Definition, error) {
	s, err := g.slot(h)
	if err != nil {
		return nil, err
	}
	return s.def, nil
}

// Connect feeds output of from into port of to. Connections into the same
// port are summed in the order they were made.
func (g *Graph) Connect(from Handle, output int, to Handle, port int) error {
	src, err := g.slot(from)
	if err != nil {
		return err
	}
	dst, err := g.slot(to)
	if err != nil {
		return err
	}
	if output < 0 || output >= len(src.outs) {
		return fmt.Errorf("%w: %s has no output %d", ErrInvalidPort, src.def.UID, output)
	}
	if port < 0 || port >= len(dst.conns) {
		return fmt.Errorf("%w: %s has no port %d", ErrInvalidPort, dst.def.UID, port)
	}
	if from == to || g.reaches(to, from) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, src.def.UID, dst.def.UID)
	}
	dst.conns[port] = append(dst.conns[port], conn{from: from, output: output})
	g.order = g.sortedOrder()
	return nil
}

// reaches reports whether to is downstream of from.
func (g *Graph) reaches(from, to Handle) bool {
	seen := make([]bool, len(g.slots))
	stack := []Handle{from}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == to {
			return true
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		for d, s := range g.slots {
			for _, cs := range s.conns {
				for _, c := range cs {
					if c.from == h {
						stack = append(stack, Handle(d))
					}
				}
			}
		}
	}
	return false
}

func (g *Graph) sortedOrder() []Handle {
	indegree := make([]int, len(g.slots))
	outgoing := make([][]Handle, len(g.slots))
	for d, s := range g.slots {
		for _, cs := range s.conns {
			for _, c := range cs {
				outgoing[c.from] = append(outgoing[c.from], Handle(d))
				indegree[d]++
			}
		}
	}
	queue := make([]Handle, 0, len(g.slots))
	for h, d := range indegree {
		if d == 0 {
			queue = append(queue, Handle(h))
		}
	}
	order := make([]Handle, 0, len(g.slots))
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		order = append(order, h)
		for _, d := range outgoing[h] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(order) != len(g.slots) {
		panic("engine: graph order lost nodes")
	}
	return order
}

// Send delivers a control message to h. SetParameter updates the constant
// the parameter port holds while unconnected.
func (g *Graph) Send(h Handle, msg node.Message) error {
	s, err := g.slot(h)
	if err != nil {
		return err
	}
	if msg.Kind == node.SetParameter {
		port, ok := s.def.ParameterPort(msg.Index)
		if !ok {
			return fmt.Errorf("%w: %s has no parameter %d", ErrInvalidPort, s.def.UID, msg.Index)
		}
		s.constants[port] = float32(msg.Value)
	}
	if r, ok := s.node.(node.Receiver); ok {
		r.Receive(msg)
	}
	return nil
}

// PortValue returns the constant held by an unconnected port.
func (g *Graph) PortValue(h Handle, port int) (float32, error) {
	s, err := g.slot(h)
	if err != nil {
		return 0, err
	}
	if port < 0 || port >= len(s.constants) {
		return 0, fmt.Errorf("%w: %s has no port %d", ErrInvalidPort, s.def.UID, port)
	}
	return s.constants[port], nil
}

// Render fills interleaved out with frames of the destination signal,
// duplicated to every channel.
func (g *Graph) Render(out []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	frames := len(out) / channels
	dest := g.slots[g.dest]
	for done := 0; done < frames; {
		n := frames - done
		if n > g.blockSize {
			n = g.blockSize
		}
		g.process(n)
		mono := dest.outs[0]
		base := done * channels
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				out[base+i*channels+c] = mono[i]
			}
		}
		done += n
	}
}

func (g *Graph) process(n int) {
	for _, h := range g.order {
		s := g.slots[h]
		for p, cs := range s.conns {
			switch len(cs) {
			case 0:
				s.ins[p] = node.Const(s.constants[p])
			case 1:
				s.ins[p] = node.Block(g.slots[cs[0].from].outs[cs[0].output][:n])
			default:
				buf := node.Grow(s.sums[p], n)
				s.sums[p] = buf
				node.Clear(buf)
				for _, c := range cs {
					src := g.slots[c.from].outs[c.output]
					for i := 0; i < n; i++ {
						buf[i] += src[i]
					}
				}
				s.ins[p] = node.Block(buf)
			}
		}
		outs := s.outs
		for i := range outs {
			outs[i] = outs[i][:n]
		}
		s.node.Process(n, s.ins, outs)
		for i := range outs {
			outs[i] = outs[i][:cap(outs[i])]
		}
	}
}
