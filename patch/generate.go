package patch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-modular/graph"
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/nodes"
)

var (
	// ErrInvalidNodeUID is returned for a node type missing from the catalog.
	ErrInvalidNodeUID = errors.New("invalid node uid")
	// ErrUnknownParameterName is returned for a parameter the node type does not declare.
	ErrUnknownParameterName = errors.New("unknown parameter name")
	// ErrInvalidParameterValue is returned for a literal that is not a number.
	ErrInvalidParameterValue = errors.New("invalid parameter value")
)

// Unit is the routing form of a patch: sub-node declarations plus routes.
type Unit struct {
	Declarations []graph.Declaration
	Routing      graph.Routing
}

// FieldName returns the composite field that holds node id.
func FieldName(id uint) string {
	return fmt.Sprintf("v%d", id)
}

func constField(id uint, param string) string {
	return fmt.Sprintf("v%d_%s", id, param)
}

// Generate translates p into declarations and routing. Every declared
// parameter that no cable drives gets a constant source holding its
// literal (or the type's default) mapped through the parameter's kind.
func Generate(p *Patch, catalog *node.Catalog) (*Unit, error) {
	instances := append([]Node(nil), p.Nodes...)
	sort.SliceStable(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })

	uids := make(map[uint]string, len(instances))
	defs := make(map[uint]*node.Definition, len(instances))
	for _, n := range instances {
		if _, dup := uids[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", n.ID)
		}
		uids[n.ID] = n.UID
		if IsSynthetic(n.UID) {
			continue
		}
		def, ok := catalog.Lookup(n.UID)
		if !ok {
			return nil, fmt.Errorf("%w: %q (node %d)", ErrInvalidNodeUID, n.UID, n.ID)
		}
		for name := range n.Parameters {
			if _, ok := def.Parameter(name); !ok {
				return nil, fmt.Errorf("%w: %q for %s (node %d)", ErrUnknownParameterName, name, n.UID, n.ID)
			}
		}
		defs[n.ID] = def
	}

	unit := &Unit{}
	driven := map[CableEnd]bool{}
	for _, c := range p.Cables {
		from, err := sourceEndpoint(c.From, uids)
		if err != nil {
			return nil, fmt.Errorf("cable %s: %w", c, err)
		}
		to, err := destEndpoint(c.To, uids)
		if err != nil {
			return nil, fmt.Errorf("cable %s: %w", c, err)
		}
		unit.Routing = append(unit.Routing, graph.Route{From: from, To: to})
		driven[c.To] = true
	}

	for _, n := range instances {
		def, ok := defs[n.ID]
		if !ok {
			continue
		}
		unit.Declarations = append(unit.Declarations, graph.Declaration{Field: FieldName(n.ID), UID: n.UID})
		for _, prm := range def.Parameters {
			if driven[CableEnd{NodeID: n.ID, SocketName: prm.Name}] {
				continue
			}
			literal, ok := n.Parameters[prm.Name]
			if !ok {
				literal = prm.Default
			}
			v, err := prm.Kind.Parse(literal)
			if err != nil {
				return nil, fmt.Errorf("%w: %q for %s.%s (node %d)", ErrInvalidParameterValue, literal, n.UID, prm.Name, n.ID)
			}
			field := constField(n.ID, prm.Name)
			unit.Declarations = append(unit.Declarations, graph.Declaration{Field: field, UID: nodes.ConstUID, Value: &v})
			unit.Routing = append(unit.Routing, graph.Route{
				From: graph.Field(field, "output"),
				To:   graph.Field(FieldName(n.ID), prm.Name),
			})
		}
	}
	return unit, nil
}

func sourceEndpoint(end CableEnd, uids map[uint]string) (graph.Endpoint, error) {
	uid, ok := uids[end.NodeID]
	if !ok {
		return graph.Endpoint{}, fmt.Errorf("unknown node %d", end.NodeID)
	}
	switch uid {
	case SyntheticInput:
		if end.SocketName == "output" {
			return graph.Param("input"), nil
		}
		return graph.Param(end.SocketName), nil
	case SyntheticOutput:
		return graph.Endpoint{}, fmt.Errorf("%s cannot be a cable source", SyntheticOutput)
	}
	return graph.Field(FieldName(end.NodeID), end.SocketName), nil
}

func destEndpoint(end CableEnd, uids map[uint]string) (graph.Endpoint, error) {
	uid, ok := uids[end.NodeID]
	if !ok {
		return graph.Endpoint{}, fmt.Errorf("unknown node %d", end.NodeID)
	}
	switch uid {
	case SyntheticOutput:
		if end.SocketName == "input" {
			return graph.Param("output"), nil
		}
		return graph.Param(end.SocketName), nil
	case SyntheticInput:
		return graph.Endpoint{}, fmt.Errorf("%s cannot be a cable destination", SyntheticInput)
	}
	return graph.Field(FieldName(end.NodeID), end.SocketName), nil
}

// Compile generates and compiles p into a plan named uid.
func Compile(p *Patch, catalog *node.Catalog, uid string) (*graph.Plan, error) {
	unit, err := Generate(p, catalog)
	if err != nil {
		return nil, err
	}
	return graph.Compile(uid, catalog, unit.Declarations, unit.Routing)
}
