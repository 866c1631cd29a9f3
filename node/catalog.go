package node

import (
	"errors"
	"fmt"
	"sync"
)

// Factory creates a fresh node instance.
type Factory func() Node

// ErrUnknownNode is returned when a uid is not registered.
var ErrUnknownNode = errors.New("unknown node uid")

var errDuplicateNode = errors.New("duplicate node uid")

type entry struct {
	def     *Definition
	factory Factory
}

// Catalog maps node uids to their definitions and factories.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds a node type.
func (c *Catalog) Register(def *Definition, factory Factory) error {
	if def == nil || def.UID == "" {
		return errors.New("empty node uid")
	}
	if factory == nil {
		return errors.New("nil factory")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[def.UID]; exists {
		return fmt.Errorf("%w: %s", errDuplicateNode, def.UID)
	}
	c.entries[def.UID] = entry{def: def.Clone(), factory: factory}
	c.order = append(c.order, def.UID)
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(def *Definition, factory Factory) {
	if err := c.Register(def, factory); err != nil {
		panic("node catalog: " + err.Error())
	}
}

// Lookup returns the definition for uid.
func (c *Catalog) Lookup(uid string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[uid]
	if !ok {
		return nil, false
	}
	return e.def, true
}

// New instantiates a node of type uid.
func (c *Catalog) New(uid string) (Node, *Definition, error) {
	c.mu.RLock()
	e, ok := c.entries[uid]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownNode, uid)
	}
	return e.factory(), e.def, nil
}

// Definitions returns all definitions in registration order.
func (c *Catalog) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, 0, len(c.order))
	for _, uid := range c.order {
		out = append(out, *c.entries[uid].def.Clone())
	}
	return out
}

// Clone returns an independent copy sharing the same factories.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewCatalog()
	for _, uid := range c.order {
		out.entries[uid] = c.entries[uid]
	}
	out.order = append(out.order, c.order...)
	return out
}
