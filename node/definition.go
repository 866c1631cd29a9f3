package node

import (
	"github.com/cwbudde/algo-modular/param"
)

// Socket is a named input or output of a node type.
type Socket struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	Default float32 `json:"default"`
}

// Parameter is a named, curve-mapped control of a node type.
type Parameter struct {
	Number  int        `json:"number"`
	Name    string     `json:"name"`
	Kind    param.Kind `json:"kind"`
	Default string     `json:"default"`
}

// Definition is the immutable description of a node type.
type Definition struct {
	UID        string      `json:"uid"`
	Name       string      `json:"name"`
	Summary    string      `json:"summary,omitempty"`
	Inputs     []Socket    `json:"inputs"`
	Outputs    []Socket    `json:"outputs"`
	Parameters []Parameter `json:"parameters"`
}

// NumPorts returns the number of connectable input ports.
func (d *Definition) NumPorts() int {
	return len(d.Inputs) + len(d.Parameters)
}

// Port resolves an input or parameter name to its port index.
func (d *Definition) Port(name string) (int, bool) {
	for i, s := range d.Inputs {
		if s.Name == name {
			return i, true
		}
	}
	for i, p := range d.Parameters {
		if p.Name == name {
			return len(d.Inputs) + i, true
		}
	}
	return -1, false
}

// Output resolves an output name to its index.
func (d *Definition) Output(name string) (int, bool) {
	for i, s := range d.Outputs {
		if s.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Parameter resolves a parameter by name.
func (d *Definition) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ParameterPort maps a parameter index to its port index.
func (d *Definition) ParameterPort(index int) (int, bool) {
	if index < 0 || index >= len(d.Parameters) {
		return -1, false
	}
	return len(d.Inputs) + index, true
}

// PortDefaults returns the value each port holds while unconnected.
// Parameter defaults that do not parse fall back to the kind's minimum.
func (d *Definition) PortDefaults() []float32 {
	out := make([]float32, 0, d.NumPorts())
	for _, s := range d.Inputs {
		out = append(out, s.Default)
	}
	for _, p := range d.Parameters {
		v, err := p.Kind.Parse(p.Default)
		if err != nil {
			v, _ = p.Kind.Range()
		}
		out = append(out, float32(v))
	}
	return out
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Inputs = append([]Socket(nil), d.Inputs...)
	c.Outputs = append([]Socket(nil), d.Outputs...)
	c.Parameters = append([]Parameter(nil), d.Parameters...)
	return &c
}

// Sockets builds a numbered socket list from names.
func Sockets(names ...string) []Socket {
	out := make([]Socket, len(names))
	for i, n := range names {
		out[i] = Socket{Number: i, Name: n}
	}
	return out
}
