package graph

import (
	"fmt"

	"github.com/cwbudde/algo-modular/node"
)

// Composite executes a compiled Plan as a single node.
type Composite struct {
	plan     *Plan
	nodes    []node.Node
	defaults [][]float32

	buffers [][]float32
	discard []float32
	sums    [][][]float32
	ins     [][]node.Signal
	outs    [][][]float32
}

// NewComposite instantiates every sub-node of plan from catalog.
func NewComposite(plan *Plan, catalog *node.Catalog) (*Composite, error) {
	c := &Composite{
		plan:     plan,
		nodes:    make([]node.Node, len(plan.Steps)),
		defaults: make([][]float32, len(plan.Steps)),
		buffers:  make([][]float32, plan.Buffers),
		sums:     make([][][]float32, len(plan.Steps)),
		ins:      make([][]node.Signal, len(plan.Steps)),
		outs:     make([][][]float32, len(plan.Steps)),
	}
	for i, s := range plan.Steps {
		nd, _, err := catalog.New(s.UID)
		if err != nil {
			return nil, fmt.Errorf("composite %s: field %s: %w", plan.UID, s.Field, err)
		}
		if s.Value != nil {
			r, ok := nd.(node.Receiver)
			if !ok {
				return nil, fmt.Errorf("composite %s: field %s: %s cannot hold a constant", plan.UID, s.Field, s.UID)
			}
			r.Receive(node.Message{Kind: node.SetParameter, Index: 0, Value: *s.Value})
		}
		c.nodes[i] = nd
		c.defaults[i] = s.Def.PortDefaults()
		c.sums[i] = make([][]float32, len(s.Ports))
		c.ins[i] = make([]node.Signal, len(s.Ports))
		c.outs[i] = make([][]float32, len(s.Outputs))
	}
	return c, nil
}

// Plan returns the compiled plan.
func (c *Composite) Plan() *Plan {
	return c.plan
}

func (c *Composite) Init(sampleRate float64) {
	for _, nd := range c.nodes {
		nd.Init(sampleRate)
	}
}

// Receive forwards Reset to every sub-node.
func (c *Composite) Receive(msg node.Message) {
	if msg.Kind != node.Reset {
		return
	}
	for _, nd := range c.nodes {
		if r, ok := nd.(node.Receiver); ok {
			r.Receive(msg)
		}
	}
}

func (c *Composite) Process(n int, in []node.Signal, out [][]float32) {
	for i := range c.buffers {
		c.buffers[i] = node.Grow(c.buffers[i], n)
	}
	c.discard = node.Grow(c.discard, n)

	for si, s := range c.plan.Steps {
		for p, srcs := range s.Ports {
			switch len(srcs) {
			case 0:
				c.ins[si][p] = node.Const(c.defaults[si][p])
			case 1:
				c.ins[si][p] = c.signal(srcs[0], in)
			default:
				buf := node.Grow(c.sums[si][p], n)
				c.sums[si][p] = buf
				c.mix(buf, n, srcs, in)
				c.ins[si][p] = node.Block(buf)
			}
		}
		for o, b := range s.Outputs {
			if b < 0 {
				c.outs[si][o] = c.discard
			} else {
				c.outs[si][o] = c.buffers[b]
			}
		}
		c.nodes[si].Process(n, c.ins[si], c.outs[si])
	}

	for o, srcs := range c.plan.Results {
		if o < len(out) {
			c.mix(out[o][:n], n, srcs, in)
		}
	}
}

func (c *Composite) signal(s Source, in []node.Signal) node.Signal {
	if s.Kind == FromBuffer {
		return node.Block(c.buffers[s.Index])
	}
	if s.Index < len(in) {
		return in[s.Index]
	}
	return node.Const(0)
}

func (c *Composite) mix(dst []float32, n int, srcs []Source, in []node.Signal) {
	node.Clear(dst[:n])
	for _, s := range srcs {
		sig := c.signal(s, in)
		for i := 0; i < n; i++ {
			dst[i] += sig.At(i)
		}
	}
}

// Register makes plan available in catalog as a node type named plan.UID.
func Register(catalog *node.Catalog, plan *Plan) error {
	if _, err := NewComposite(plan, catalog); err != nil {
		return err
	}
	return catalog.Register(plan.Definition(), func() node.Node {
		c, err := NewComposite(plan, catalog)
		if err != nil {
			// Catalogs only grow, so a plan that built once always builds.
			panic(err)
		}
		return c
	})
}
