// Package patch reads serialized patches and turns them into routing.
package patch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/algo-modular/node"
)

// Reserved uids for the boundary of a compiled patch.
const (
	SyntheticInput  = "_synthetic_input"
	SyntheticOutput = "_synthetic_output"
)

// Offset is the editor placement of a node.
type Offset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is one node instance in a patch.
type Node struct {
	ID         uint              `json:"id"`
	UID        string            `json:"uid"`
	Offset     Offset            `json:"offset"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// CableEnd references a socket of a node instance.
type CableEnd struct {
	NodeID     uint   `json:"node_id"`
	SocketName string `json:"socket_name"`
}

// Cable connects an output socket to an input socket.
type Cable struct {
	From CableEnd `json:"from"`
	To   CableEnd `json:"to"`
}

func (c Cable) String() string {
	return fmt.Sprintf("%d.%s -> %d.%s", c.From.NodeID, c.From.SocketName, c.To.NodeID, c.To.SocketName)
}

// Patch is the serialized node and cable graph.
type Patch struct {
	Nodes  []Node  `json:"nodes"`
	Cables []Cable `json:"cables"`
}

// Load reads a patch JSON file.
func Load(path string) (*Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", path, err)
	}
	return p, nil
}

// Decode reads a patch from r.
func Decode(r io.Reader) (*Patch, error) {
	var p Patch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode writes p as indented JSON.
func (p *Patch) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// Node returns the instance with the given id.
func (p *Patch) Node(id uint) (*Node, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// IsSynthetic reports whether uid names the patch boundary.
func IsSynthetic(uid string) bool {
	return uid == SyntheticInput || uid == SyntheticOutput
}

// Validate checks node ids are unique and every cable references an
// existing node and a socket its type declares. Synthetic nodes accept any
// socket name.
func (p *Patch) Validate(catalog *node.Catalog) error {
	seen := make(map[uint]string, len(p.Nodes))
	for _, n := range p.Nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = n.UID
		if IsSynthetic(n.UID) {
			continue
		}
		if _, ok := catalog.Lookup(n.UID); !ok {
			return fmt.Errorf("%w: %q (node %d)", ErrInvalidNodeUID, n.UID, n.ID)
		}
	}
	for _, c := range p.Cables {
		fromUID, ok := seen[c.From.NodeID]
		if !ok {
			return fmt.Errorf("cable %s: unknown node %d", c, c.From.NodeID)
		}
		toUID, ok := seen[c.To.NodeID]
		if !ok {
			return fmt.Errorf("cable %s: unknown node %d", c, c.To.NodeID)
		}
		if !IsSynthetic(fromUID) {
			def, _ := catalog.Lookup(fromUID)
			if _, ok := def.Output(c.From.SocketName); !ok {
				return fmt.Errorf("cable %s: %s has no output %q", c, fromUID, c.From.SocketName)
			}
		}
		if !IsSynthetic(toUID) {
			def, _ := catalog.Lookup(toUID)
			if _, ok := def.Port(c.To.SocketName); !ok {
				return fmt.Errorf("cable %s: %s has no input %q", c, toUID, c.To.SocketName)
			}
		}
	}
	return nil
}
