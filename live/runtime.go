// Package live runs a patch that is edited while it plays.
//
// All structural edits go through one control goroutine. Each edit updates
// the authoritative state (nodes, cables, parameter cache) and then rebuilds
// the executable graph from it; the audio callback only ever renders the
// graph it finds under the shared lock.
package live

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-modular/engine"
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/nodes"
	"github.com/cwbudde/algo-modular/patch"
	"github.com/cwbudde/algo-modular/sink"
)

// ErrClosed is returned for commands sent after Close.
var ErrClosed = errors.New("runtime closed")

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the operator log.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithCatalog sets the node catalog. The runtime may register further types in it.
func WithCatalog(c *node.Catalog) Option {
	return func(r *Runtime) { r.catalog = c }
}

// WithHost sets the output host used by ChangeOutput.
func WithHost(h sink.Host) Option {
	return func(r *Runtime) { r.host = h }
}

// WithFormat sets the requested stream format.
func WithFormat(f sink.Format) Option {
	return func(r *Runtime) { r.format = f }
}

// WithQueueSize sets the command queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Runtime) { r.queueSize = n }
}

type request struct {
	cmd   Command
	reply chan error
}

// Runtime owns a live patch and the executable graph built from it.
type Runtime struct {
	log       *slog.Logger
	catalog   *node.Catalog
	host      sink.Host
	format    sink.Format
	queueSize int

	queue     chan request
	done      chan struct{}
	exited    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	// Owned by the control goroutine.
	state  state
	out    sink.Sink
	device *string
	cat    *Observable[[]node.Definition]
	config *Observable[OutputConfiguration]

	// Shared with the audio callback.
	mu      sync.Mutex
	graph   *engine.Graph
	handles map[uint]engine.Handle
}

// New creates a stopped runtime holding an empty patch.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		log:       slog.Default(),
		format:    sink.Format{SampleRate: 48000, Channels: 2, BlockSize: engine.DefaultBlockSize},
		queueSize: 64,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil {
		r.catalog = nodes.NewCatalogWithLogger(r.log)
	}
	r.queue = make(chan request, r.queueSize)
	r.state = newState()
	r.cat = NewObservable(r.catalog.Definitions())
	r.config = NewObservable(OutputConfiguration{
		SampleRate: &SampleRateConfiguration{Current: r.format.SampleRate},
	})
	g, handles, err := r.build(r.state)
	if err != nil {
		panic("live: empty patch failed to build: " + err.Error())
	}
	r.graph, r.handles = g, handles
	return r
}

// Catalog returns the node catalog in use.
func (r *Runtime) Catalog() *node.Catalog {
	return r.catalog
}

// Start launches the control goroutine and publishes the initial output
// configuration.
func (r *Runtime) Start() {
	r.startOnce.Do(func() {
		go r.loop()
		r.Send(RefreshConfiguration{})
	})
}

// Close stops the control goroutine and closes the active sink.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		// A runtime that never started has no loop to wait for.
		r.startOnce.Do(func() { close(r.exited) })
		<-r.exited
		if r.out != nil {
			err = r.out.Close()
			r.out = nil
		}
	})
	return err
}

func (r *Runtime) loop() {
	defer close(r.exited)
	for {
		select {
		case <-r.done:
			return
		case req := <-r.queue:
			err := req.cmd.apply(r)
			if err != nil {
				r.log.Warn("command rejected", "command", fmt.Sprintf("%T", req.cmd), "err", err)
			}
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

// Send queues cmd without waiting. Failures are only logged.
func (r *Runtime) Send(cmd Command) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.queue <- request{cmd: cmd}:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// Do queues cmd and waits for its result. Cancelling ctx stops the wait;
// a command already queued still runs to completion.
func (r *Runtime) Do(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.queue <- req:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-r.exited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render advances the executable graph by len(out)/channels frames.
// It is the audio callback path and never changes structure.
func (r *Runtime) Render(out []float32, channels int) {
	r.mu.Lock()
	r.graph.Render(out, channels)
	r.mu.Unlock()
}

// build constructs a fresh executable graph from st. Parameters are replayed
// from the cache and cables connected in declared socket order.
func (r *Runtime) build(st state) (*engine.Graph, map[uint]engine.Handle, error) {
	g := engine.New(float64(r.format.SampleRate), r.format.BlockSize)
	handles := make(map[uint]engine.Handle, len(st.nodes))
	for _, inst := range st.nodes {
		n, def, err := r.catalog.New(inst.UID)
		if err != nil {
			return nil, nil, err
		}
		h := g.Add(n, def)
		handles[inst.ID] = h
		if inst.UID == nodes.OutputUID {
			if err := g.Connect(h, 0, g.Destination(), 0); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, k := range st.parameterKeys() {
		inst, ok := st.node(k.ID)
		if !ok {
			return nil, nil, fmt.Errorf("parameter for missing node %d", k.ID)
		}
		v := inst.Def.Parameters[k.Index].Kind.Denormalize(float64(st.params[k]))
		if err := g.Send(handles[k.ID], node.Message{Kind: node.SetParameter, Index: k.Index, Value: v}); err != nil {
			return nil, nil, err
		}
	}
	type wire struct {
		cable     patch.Cable
		out, port int
	}
	wires := make([]wire, 0, len(st.cables))
	for _, c := range st.cables {
		from, okFrom := st.node(c.From.NodeID)
		to, okTo := st.node(c.To.NodeID)
		if !okFrom || !okTo {
			return nil, nil, fmt.Errorf("cable %s references a missing node", c)
		}
		out, _ := from.Def.Output(c.From.SocketName)
		port, _ := to.Def.Port(c.To.SocketName)
		wires = append(wires, wire{cable: c, out: out, port: port})
	}
	// Declared socket order, not insertion order, fixes the summing order of fan-in.
	slices.SortFunc(wires, func(a, b wire) int {
		return cmp.Or(
			cmp.Compare(a.cable.To.NodeID, b.cable.To.NodeID),
			cmp.Compare(a.port, b.port),
			cmp.Compare(a.cable.From.NodeID, b.cable.From.NodeID),
			cmp.Compare(a.out, b.out),
		)
	})
	for _, w := range wires {
		if err := g.Connect(handles[w.cable.From.NodeID], w.out, handles[w.cable.To.NodeID], w.port); err != nil {
			return nil, nil, fmt.Errorf("cable %s: %w", w.cable, err)
		}
	}
	return g, handles, nil
}

// commit makes st authoritative and swaps in its graph.
func (r *Runtime) commit(st state, g *engine.Graph, handles map[uint]engine.Handle) {
	r.state = st
	r.mu.Lock()
	r.graph, r.handles = g, handles
	r.mu.Unlock()
}

// rebuild reconstructs the graph from the current state. The state was
// validated when it was accepted, so a failure here is a programming error.
func (r *Runtime) rebuild() {
	g, handles, err := r.build(r.state)
	if err != nil {
		panic("live: rebuild of accepted state failed: " + err.Error())
	}
	r.commit(r.state, g, handles)
	r.log.Debug("graph rebuilt", "nodes", len(r.state.nodes), "cables", len(r.state.cables))
}

func (r *Runtime) reset() error {
	r.state = newState()
	r.rebuild()
	r.log.Info("patch reset")
	return nil
}

func (r *Runtime) addNode(uid string, id uint) error {
	if _, exists := r.state.node(id); exists {
		return fmt.Errorf("node %d already exists", id)
	}
	def, ok := r.catalog.Lookup(uid)
	if !ok {
		err := fmt.Errorf("%w: %q", node.ErrUnknownNode, uid)
		r.log.Error("add node failed", "id", id, "uid", uid, "err", err)
		return err
	}
	next := r.state.clone()
	next.nodes = append(next.nodes, instance{ID: id, UID: uid, Def: def})
	g, handles, err := r.build(next)
	if err != nil {
		return err
	}
	r.commit(next, g, handles)
	r.log.Info("node added", "id", id, "uid", uid)
	return nil
}

func (r *Runtime) removeNode(id uint) error {
	if _, ok := r.state.node(id); !ok {
		return fmt.Errorf("unknown node %d", id)
	}
	r.state = r.state.withoutNode(id)
	r.rebuild()
	r.log.Info("node removed", "id", id)
	return nil
}

func (r *Runtime) addCable(c patch.Cable) error {
	if err := r.state.checkCable(c); err != nil {
		return err
	}
	if r.state.hasCable(c) {
		return fmt.Errorf("cable %s already exists", c)
	}
	next := r.state.clone()
	next.cables = append(next.cables, c)
	g, handles, err := r.build(next)
	if err != nil {
		return err
	}
	r.commit(next, g, handles)
	r.log.Info("cable added", "cable", c.String())
	return nil
}

func (r *Runtime) removeCable(c patch.Cable) error {
	if !r.state.hasCable(c) {
		return fmt.Errorf("unknown cable %s", c)
	}
	r.state = r.state.withoutCable(c)
	r.rebuild()
	r.log.Info("cable removed", "cable", c.String())
	return nil
}

func (r *Runtime) setParameter(id uint, index int, value float32) error {
	inst, ok := r.state.node(id)
	if !ok {
		return fmt.Errorf("unknown node %d", id)
	}
	if index < 0 || index >= len(inst.Def.Parameters) {
		return fmt.Errorf("%s has no parameter %d", inst.UID, index)
	}
	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	r.state.params[ParamKey{ID: id, Index: index}] = value
	v := inst.Def.Parameters[index].Kind.Denormalize(float64(value))

	r.mu.Lock()
	err := r.graph.Send(r.handles[id], node.Message{Kind: node.SetParameter, Index: index, Value: v})
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.log.Debug("parameter set", "id", id, "index", index, "value", v)
	return nil
}

// stream adapts the runtime to one sink's callback.
// stream feeds one sink. It writes silence until committed, so a sink
// that starts pulling inside Open does not advance the graph the previous
// sink is still playing.
type stream struct {
	r         *Runtime
	channels  atomic.Int32
	committed atomic.Bool
}

func (s *stream) render(out []float32) {
	if !s.committed.Load() {
		clear(out)
		return
	}
	s.r.Render(out, int(s.channels.Load()))
}

func (r *Runtime) changeOutput(device *string) error {
	if r.host == nil {
		return errors.New("no output host configured")
	}
	name := ""
	if device != nil {
		name = *device
	}
	st := &stream{r: r}
	st.channels.Store(int32(r.format.Channels))
	next, err := r.host.Open(name, r.format, st.render)
	if err != nil {
		r.log.Error("output change failed", "device", name, "err", err)
		return fmt.Errorf("open output %q: %w", name, err)
	}
	f := next.Format()
	st.channels.Store(int32(f.Channels))

	if r.out != nil {
		if err := r.out.Close(); err != nil {
			r.log.Warn("closing previous output", "device", r.out.Device(), "err", err)
		}
	}
	r.out = next
	if device != nil {
		d := *device
		r.device = &d
	} else {
		r.device = nil
	}
	if f.SampleRate > 0 {
		r.format.SampleRate = f.SampleRate
	}
	r.format.Channels = f.Channels
	r.rebuild()
	st.committed.Store(true)
	r.log.Info("output changed", "device", next.Device(), "sample_rate", f.SampleRate, "channels", f.Channels)
	// The switch already happened; a failed enumeration only leaves the
	// published device lists stale.
	if err := r.refreshConfiguration(); err != nil {
		r.log.Warn("refresh configuration after output change", "err", err)
	}
	return nil
}

func (r *Runtime) refreshConfiguration() error {
	cfg := OutputConfiguration{
		SampleRate: &SampleRateConfiguration{Current: r.format.SampleRate},
	}
	if r.device != nil {
		d := *r.device
		cfg.Current = &d
	}
	if r.host != nil {
		devs, err := r.host.Devices()
		if err != nil {
			return fmt.Errorf("enumerate devices: %w", err)
		}
		cfg.Available = sink.DeviceNames(devs)
		cfg.SampleRate.Available = sink.SampleRates(devs)
	}
	r.config.Set(cfg)
	return nil
}

func (r *Runtime) registerNode(def *node.Definition, factory node.Factory) error {
	if err := r.catalog.Register(def, factory); err != nil {
		return err
	}
	r.cat.Set(r.catalog.Definitions())
	r.log.Info("node type registered", "uid", def.UID)
	return nil
}

func (r *Runtime) subscribeCatalog(fn func([]node.Definition)) error {
	if fn == nil {
		return errors.New("nil listener")
	}
	r.cat.Subscribe(fn)
	return nil
}

func (r *Runtime) subscribeConfiguration(fn func(OutputConfiguration)) error {
	if fn == nil {
		return errors.New("nil listener")
	}
	r.config.Subscribe(fn)
	return nil
}
