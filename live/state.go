package live

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/param"
	"github.com/cwbudde/algo-modular/patch"
)

type instance struct {
	ID  uint
	UID string
	Def *node.Definition
}

// ParamKey addresses one parameter of one node instance.
type ParamKey struct {
	ID    uint
	Index int
}

// MarshalText encodes the key as "id:index" so snapshots encode as JSON.
func (k ParamKey) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%d:%d", k.ID, k.Index)), nil
}

// state is the authoritative patch. Nodes and cables keep insertion order.
type state struct {
	nodes  []instance
	cables []patch.Cable
	params map[ParamKey]float32
}

func newState() state {
	return state{params: map[ParamKey]float32{}}
}

func (s state) clone() state {
	return state{
		nodes:  slices.Clone(s.nodes),
		cables: slices.Clone(s.cables),
		params: maps.Clone(s.params),
	}
}

func (s state) node(id uint) (instance, bool) {
	for _, n := range s.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return instance{}, false
}

func (s state) hasCable(c patch.Cable) bool {
	return slices.Contains(s.cables, c)
}

// checkCable verifies both ends exist and name sockets of the right direction.
func (s state) checkCable(c patch.Cable) error {
	from, ok := s.node(c.From.NodeID)
	if !ok {
		return fmt.Errorf("cable %s: unknown node %d", c, c.From.NodeID)
	}
	to, ok := s.node(c.To.NodeID)
	if !ok {
		return fmt.Errorf("cable %s: unknown node %d", c, c.To.NodeID)
	}
	if _, ok := from.Def.Output(c.From.SocketName); !ok {
		return fmt.Errorf("cable %s: %s has no output %q", c, from.UID, c.From.SocketName)
	}
	if _, ok := to.Def.Port(c.To.SocketName); !ok {
		return fmt.Errorf("cable %s: %s has no input %q", c, to.UID, c.To.SocketName)
	}
	return nil
}

func (s state) withoutNode(id uint) state {
	next := s.clone()
	next.nodes = slices.DeleteFunc(next.nodes, func(n instance) bool { return n.ID == id })
	next.cables = slices.DeleteFunc(next.cables, func(c patch.Cable) bool {
		return c.From.NodeID == id || c.To.NodeID == id
	})
	maps.DeleteFunc(next.params, func(k ParamKey, _ float32) bool { return k.ID == id })
	return next
}

func (s state) withoutCable(c patch.Cable) state {
	next := s.clone()
	next.cables = slices.DeleteFunc(next.cables, func(x patch.Cable) bool { return x == c })
	return next
}

func (s state) parameterKeys() []ParamKey {
	keys := slices.Collect(maps.Keys(s.params))
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].Index < keys[j].Index
	})
	return keys
}

// NodeState is a node instance as seen in a Snapshot.
type NodeState struct {
	ID  uint
	UID string
}

// Snapshot is a deep copy of the authoritative patch.
type Snapshot struct {
	Nodes      []NodeState
	Cables     []patch.Cable
	Parameters map[ParamKey]float32
}

func (s state) snapshot() Snapshot {
	out := Snapshot{
		Cables:     slices.Clone(s.cables),
		Parameters: maps.Clone(s.params),
	}
	for _, n := range s.nodes {
		out.Nodes = append(out.Nodes, NodeState{ID: n.ID, UID: n.UID})
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })
	return out
}

// Snapshot returns a copy of the authoritative patch.
func (r *Runtime) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.Do(ctx, inspect(func(r *Runtime) error {
		snap = r.state.snapshot()
		return nil
	}))
	return snap, err
}

// ParameterValue returns the engineering value a parameter currently holds
// in the executable graph.
func (r *Runtime) ParameterValue(ctx context.Context, id uint, index int) (float64, error) {
	var v float32
	err := r.Do(ctx, inspect(func(r *Runtime) error {
		inst, ok := r.state.node(id)
		if !ok {
			return fmt.Errorf("unknown node %d", id)
		}
		port, ok := inst.Def.ParameterPort(index)
		if !ok {
			return fmt.Errorf("%s has no parameter %d", inst.UID, index)
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		var err error
		v, err = r.graph.PortValue(r.handles[id], port)
		return err
	}))
	return float64(v), err
}

// Configuration returns the current output configuration.
func (r *Runtime) Configuration() OutputConfiguration {
	return r.config.Get()
}

// Export returns the live patch in file form. Cached parameters are written
// as display literals.
func (r *Runtime) Export(ctx context.Context) (*patch.Patch, error) {
	p := &patch.Patch{}
	err := r.Do(ctx, inspect(func(r *Runtime) error {
		for _, n := range r.state.nodes {
			pn := patch.Node{ID: n.ID, UID: n.UID}
			for k, v := range r.state.params {
				if k.ID != n.ID {
					continue
				}
				prm := n.Def.Parameters[k.Index]
				if pn.Parameters == nil {
					pn.Parameters = map[string]string{}
				}
				pn.Parameters[prm.Name] = param.Format(prm.Kind.Denormalize(float64(v)))
			}
			p.Nodes = append(p.Nodes, pn)
		}
		p.Cables = slices.Clone(r.state.cables)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return p, nil
}
