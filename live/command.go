package live

import (
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/patch"
)

// Command is one mutation or query applied on the control goroutine.
type Command interface {
	apply(r *Runtime) error
}

// Reset drops every node, cable and cached parameter.
type Reset struct{}

// AddNode instantiates a node of type UID under ID.
type AddNode struct {
	UID string
	ID  uint
}

// RemoveNode drops a node and every cable touching it.
type RemoveNode struct {
	ID uint
}

// AddCable connects two sockets.
type AddCable struct {
	Cable patch.Cable
}

// RemoveCable disconnects two sockets.
type RemoveCable struct {
	Cable patch.Cable
}

// SetParameter sets a parameter from a normalized value in [0,1].
type SetParameter struct {
	ID    uint
	Index int
	Value float32
}

// ChangeOutput moves playback to Device, or to the default device when nil.
type ChangeOutput struct {
	Device *string
}

// RefreshConfiguration re-enumerates devices and notifies configuration listeners.
type RefreshConfiguration struct{}

// RegisterCatalogListener subscribes Fn to the node catalog.
type RegisterCatalogListener struct {
	Fn func([]node.Definition)
}

// RegisterConfigurationListener subscribes Fn to the output configuration.
type RegisterConfigurationListener struct {
	Fn func(OutputConfiguration)
}

// RegisterNode adds a node type, typically a compiled patch, to the catalog.
type RegisterNode struct {
	Definition *node.Definition
	Factory    node.Factory
}

// inspect runs fn on the control goroutine.
type inspect func(r *Runtime) error

func (c inspect) apply(r *Runtime) error { return c(r) }

func (c Reset) apply(r *Runtime) error { return r.reset() }
func (c AddNode) apply(r *Runtime) error { return r.addNode(c.UID, c.ID) }
func (c RemoveNode) apply(r *Runtime) error { return r.removeNode(c.ID) }
func (c AddCable) apply(r *Runtime) error { return r.addCable(c.Cable) }
func (c RemoveCable) apply(r *Runtime) error { return r.removeCable(c.Cable) }
func (c SetParameter) apply(r *Runtime) error { return r.setParameter(c.ID, c.Index, c.Value) }
func (c ChangeOutput) apply(r *Runtime) error { return r.changeOutput(c.Device) }
func (c RefreshConfiguration) apply(r *Runtime) error { return r.refreshConfiguration() }
func (c RegisterNode) apply(r *Runtime) error { return r.registerNode(c.Definition, c.Factory) }
func (c RegisterCatalogListener) apply(r *Runtime) error { return r.subscribeCatalog(c.Fn) }
func (c RegisterConfigurationListener) apply(r *Runtime) error { return r.subscribeConfiguration(c.Fn) }
