package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/algo-modular/node"
)

var (
	// ErrCyclicGraph is returned when routing forms a cycle among sub-nodes.
	ErrCyclicGraph = errors.New("cyclic graph")
	// ErrUnknownField is returned for a route naming an undeclared sub-node.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownSocket is returned for a socket the sub-node type does not declare.
	ErrUnknownSocket = errors.New("unknown socket")
	// ErrAmbiguousOutput is returned when a boundary output has more than one source.
	ErrAmbiguousOutput = errors.New("ambiguous output")
	// ErrInvalidRouting covers the remaining structural routing errors.
	ErrInvalidRouting = errors.New("invalid routing")
)

// Declaration declares one sub-node field of a composite. A non-nil Value
// marks a constant source whose value is set at construction.
type Declaration struct {
	Field string
	UID   string
	Value *float64
}

// SourceKind tells where a port reads its signal from.
type SourceKind uint8

const (
	// FromInput reads a boundary input of the composite.
	FromInput SourceKind = iota
	// FromBuffer reads a scratch buffer written by an earlier step.
	FromBuffer
)

// Source is one signal feeding a port. Multiple sources are summed.
type Source struct {
	Kind  SourceKind
	Index int
}

// Step is one sub-node invocation in execution order.
type Step struct {
	Field string
	UID   string
	Value *float64
	Def   *node.Definition
	// Ports lists the sources of each input port; empty means the declared default.
	Ports [][]Source
	// Outputs maps each output to a scratch buffer, or -1 when nothing reads it.
	Outputs []int
}

// Plan is a compiled composite: ordered steps plus boundary wiring.
type Plan struct {
	UID     string
	Inputs  []string
	Outputs []string
	// Results lists the sources of each boundary output.
	Results [][]Source
	Steps   []Step
	Buffers int
}

// Order returns the field names in execution order.
func (p *Plan) Order() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Field
	}
	return out
}

// Definition returns the node type a compiled plan presents to the outside.
// Every boundary port defaults to zero.
func (p *Plan) Definition() *node.Definition {
	return &node.Definition{
		UID:     p.UID,
		Name:    p.UID,
		Summary: "Compiled patch.",
		Inputs:  node.Sockets(p.Inputs...),
		Outputs: node.Sockets(p.Outputs...),
	}
}

type outRef struct {
	field int
	out   int
}

// Compile orders the declared sub-nodes and resolves every route against
// the catalog. A cycle among sub-nodes fails with ErrCyclicGraph.
func Compile(uid string, catalog *node.Catalog, decls []Declaration, routing Routing) (*Plan, error) {
	index := make(map[string]int, len(decls))
	defs := make([]*node.Definition, len(decls))
	for i, d := range decls {
		if !isIdent(d.Field) {
			return nil, fmt.Errorf("%w: bad field name %q", ErrInvalidRouting, d.Field)
		}
		if _, dup := index[d.Field]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidRouting, d.Field)
		}
		def, ok := catalog.Lookup(d.UID)
		if !ok {
			return nil, fmt.Errorf("%w: %q (field %s)", node.ErrUnknownNode, d.UID, d.Field)
		}
		index[d.Field] = i
		defs[i] = def
	}

	// Vertices 0..n-1 are fields, n is the composite input, n+1 the composite output.
	n := len(decls)
	vIn, vOut := n, n+1
	outgoing := make([][]int, n+2)
	indegree := make([]int, n+2)

	inputs := map[string]int{}
	outputs := map[string]int{}
	var inputNames, outputNames []string
	var results [][]Source
	ports := make([][][]Source, n)
	for i, def := range defs {
		ports[i] = make([][]Source, def.NumPorts())
	}
	buffers := map[outRef]int{}

	for _, r := range routing {
		var from int
		var src Source
		if r.From.IsParam() {
			if _, clash := outputs[r.From.Socket]; clash {
				return nil, fmt.Errorf("%w: %q is both input and output", ErrInvalidRouting, r.From.Socket)
			}
			idx, seen := inputs[r.From.Socket]
			if !seen {
				idx = len(inputNames)
				inputs[r.From.Socket] = idx
				inputNames = append(inputNames, r.From.Socket)
			}
			from = vIn
			src = Source{Kind: FromInput, Index: idx}
		} else {
			fi, ok := index[r.From.Field]
			if !ok {
				return nil, fmt.Errorf("%w: %q in %s", ErrUnknownField, r.From.Field, r)
			}
			oi, ok := defs[fi].Output(r.From.Socket)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no output %q", ErrUnknownSocket, defs[fi].UID, r.From.Socket)
			}
			ref := outRef{field: fi, out: oi}
			b, seen := buffers[ref]
			if !seen {
				b = len(buffers)
				buffers[ref] = b
			}
			from = fi
			src = Source{Kind: FromBuffer, Index: b}
		}

		var to int
		if r.To.IsParam() {
			if _, clash := inputs[r.To.Socket]; clash {
				return nil, fmt.Errorf("%w: %q is both input and output", ErrInvalidRouting, r.To.Socket)
			}
			if _, dup := outputs[r.To.Socket]; dup {
				return nil, fmt.Errorf("%w: %q", ErrAmbiguousOutput, r.To.Socket)
			}
			outputs[r.To.Socket] = len(outputNames)
			outputNames = append(outputNames, r.To.Socket)
			results = append(results, []Source{src})
			to = vOut
		} else {
			ti, ok := index[r.To.Field]
			if !ok {
				return nil, fmt.Errorf("%w: %q in %s", ErrUnknownField, r.To.Field, r)
			}
			pi, ok := defs[ti].Port(r.To.Socket)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no input %q", ErrUnknownSocket, defs[ti].UID, r.To.Socket)
			}
			ports[ti][pi] = append(ports[ti][pi], src)
			to = ti
		}

		outgoing[from] = append(outgoing[from], to)
		indegree[to]++
	}

	order, err := topoSort(outgoing, indegree)
	if err != nil {
		var stuck []string
		for i := 0; i < n; i++ {
			if indegree[i] > 0 {
				stuck = append(stuck, decls[i].Field)
			}
		}
		return nil, fmt.Errorf("%w: %s", err, strings.Join(stuck, ", "))
	}

	plan := &Plan{
		UID:     uid,
		Inputs:  inputNames,
		Outputs: outputNames,
		Results: results,
		Buffers: len(buffers),
	}
	for _, v := range order {
		if v >= n {
			continue
		}
		outs := make([]int, len(defs[v].Outputs))
		for i := range outs {
			outs[i] = -1
			if b, ok := buffers[outRef{field: v, out: i}]; ok {
				outs[i] = b
			}
		}
		plan.Steps = append(plan.Steps, Step{
			Field:   decls[v].Field,
			UID:     decls[v].UID,
			Value:   decls[v].Value,
			Def:     defs[v],
			Ports:   ports[v],
			Outputs: outs,
		})
	}
	return plan, nil
}

// topoSort runs Kahn's algorithm. Ready vertices are taken in index order so
// the result is deterministic. On a cycle, indegree is left non-zero for
// every vertex that could not be ordered.
func topoSort(outgoing [][]int, indegree []int) ([]int, error) {
	queue := make([]int, 0, len(indegree))
	for v, d := range indegree {
		if d == 0 {
			queue = append(queue, v)
		}
	}

	order := make([]int, 0, len(indegree))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		order = append(order, v)
		for _, w := range outgoing[v] {
			indegree[w]--
			if indegree[w] == 0 {
				queue = append(queue, w)
			}
		}
	}

	if len(order) != len(indegree) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}
