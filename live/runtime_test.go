package live

import (
	"errors"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-modular/graph"
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/nodes"
	"github.com/cwbudde/algo-modular/patch"
	"github.com/cwbudde/algo-modular/sink"
)

func cable(from uint, out string, to uint, in string) patch.Cable {
	return patch.Cable{
		From: patch.CableEnd{NodeID: from, SocketName: out},
		To:   patch.CableEnd{NodeID: to, SocketName: in},
	}
}

func session() []Command {
	return []Command{
		AddNode{UID: nodes.SinUID, ID: 1},
		AddNode{UID: nodes.AmpUID, ID: 2},
		AddNode{UID: nodes.OutputUID, ID: 3},
		AddCable{Cable: cable(1, "output", 2, "input")},
		AddCable{Cable: cable(2, "output", 3, "input")},
		SetParameter{ID: 1, Index: 0, Value: 0.7},
		SetParameter{ID: 2, Index: 0, Value: 0.8},
	}
}

func TestRebuildIdempotence(t *testing.T) {
	r := newTestRuntime(t, nil)
	ctx := testContext(t)

	mustDo(t, r, Reset{})
	mustDo(t, r, session()...)
	first, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	mustDo(t, r, Reset{})
	mustDo(t, r, session()...)
	second, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical state, got\n%+v\n%+v", first, second)
	}
	if len(first.Nodes) != 3 || len(first.Cables) != 2 || len(first.Parameters) != 2 {
		t.Fatalf("unexpected snapshot %+v", first)
	}
}

func TestResetClearsEverything(t *testing.T) {
	r := newTestRuntime(t, nil)
	mustDo(t, r, session()...)
	mustDo(t, r, Reset{})
	snap, err := r.Snapshot(testContext(t))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != 0 || len(snap.Cables) != 0 || len(snap.Parameters) != 0 {
		t.Fatalf("expected empty state, got %+v", snap)
	}
	out := make([]float32, 128)
	r.Render(out, 2)
	if energy(out) != 0 {
		t.Fatalf("expected silence after reset")
	}
}

func TestParameterSurvivesRebuild(t *testing.T) {
	r := newTestRuntime(t, nil)
	ctx := testContext(t)
	mustDo(t, r, AddNode{UID: nodes.AmpUID, ID: 1}, SetParameter{ID: 1, Index: 0, Value: 0.5})

	before, err := r.ParameterValue(ctx, 1, 0)
	if err != nil {
		t.Fatalf("parameter value: %v", err)
	}
	// Db spans -120..12, so 0.5 is -54 dB.
	if math.Abs(before+54) > 1e-4 {
		t.Fatalf("expected -54 dB, got %v", before)
	}

	mustDo(t, r, AddNode{UID: nodes.SinUID, ID: 2})
	after, err := r.ParameterValue(ctx, 1, 0)
	if err != nil {
		t.Fatalf("parameter value: %v", err)
	}
	if after != before {
		t.Fatalf("expected %v after rebuild, got %v", before, after)
	}
}

func TestAddNodeUnknownUIDLeavesStateUnchanged(t *testing.T) {
	r := newTestRuntime(t, nil)
	ctx := testContext(t)
	mustDo(t, r, AddNode{UID: nodes.SinUID, ID: 1})
	before, _ := r.Snapshot(ctx)

	err := r.Do(ctx, AddNode{UID: "osc.nope", ID: 2})
	if !errors.Is(err, node.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	after, _ := r.Snapshot(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected unchanged state")
	}
	if err := r.Do(ctx, AddNode{UID: nodes.SinUID, ID: 1}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestRemoveNodeDropsCables(t *testing.T) {
	r := newTestRuntime(t, nil)
	mustDo(t, r, session()...)
	mustDo(t, r, RemoveNode{ID: 2})
	snap, _ := r.Snapshot(testContext(t))
	if len(snap.Nodes) != 2 || len(snap.Cables) != 0 {
		t.Fatalf("expected node and its cables removed, got %+v", snap)
	}
	if _, ok := snap.Parameters[ParamKey{ID: 2, Index: 0}]; ok {
		t.Fatalf("expected cached parameter of removed node to be dropped")
	}
	if _, ok := snap.Parameters[ParamKey{ID: 1, Index: 0}]; !ok {
		t.Fatalf("expected other parameters to survive")
	}
}

func TestCableValidation(t *testing.T) {
	r := newTestRuntime(t, nil)
	ctx := testContext(t)
	mustDo(t, r, AddNode{UID: nodes.AddUID, ID: 1}, AddNode{UID: nodes.AddUID, ID: 2})
	mustDo(t, r, AddCable{Cable: cable(1, "output", 2, "a")})

	if err := r.Do(ctx, AddCable{Cable: cable(2, "output", 1, "a")}); err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
	if err := r.Do(ctx, AddCable{Cable: cable(1, "output", 9, "a")}); err == nil {
		t.Fatalf("expected unknown node to be rejected")
	}
	if err := r.Do(ctx, AddCable{Cable: cable(1, "nope", 2, "a")}); err == nil {
		t.Fatalf("expected unknown socket to be rejected")
	}
	if err := r.Do(ctx, AddCable{Cable: cable(1, "output", 2, "a")}); err == nil {
		t.Fatalf("expected duplicate cable to be rejected")
	}
	snap, _ := r.Snapshot(ctx)
	if len(snap.Cables) != 1 {
		t.Fatalf("expected one cable, got %v", snap.Cables)
	}

	mustDo(t, r, RemoveCable{Cable: cable(1, "output", 2, "a")})
	if err := r.Do(ctx, RemoveCable{Cable: cable(1, "output", 2, "a")}); err == nil {
		t.Fatalf("expected removing a missing cable to fail")
	}
	mustDo(t, r, AddCable{Cable: cable(2, "output", 1, "a")})
}

func TestSetParameterValidation(t *testing.T) {
	r := newTestRuntime(t, nil)
	ctx := testContext(t)
	mustDo(t, r, AddNode{UID: nodes.AmpUID, ID: 1})
	if err := r.Do(ctx, SetParameter{ID: 5, Index: 0, Value: 0.5}); err == nil {
		t.Fatalf("expected unknown node error")
	}
	if err := r.Do(ctx, SetParameter{ID: 1, Index: 3, Value: 0.5}); err == nil {
		t.Fatalf("expected bad index error")
	}
	mustDo(t, r, SetParameter{ID: 1, Index: 0, Value: 7})
	v, _ := r.ParameterValue(ctx, 1, 0)
	if v != 12 {
		t.Fatalf("expected normalized value clamped to the top of the range, got %v", v)
	}
}

func TestChangeOutputAtomicity(t *testing.T) {
	host := sink.NewLoopback("speakers", "headphones")
	host.Fail("headphones", errors.New("device busy"))
	r := newTestRuntime(t, host)
	ctx := testContext(t)

	mustDo(t, r, ChangeOutput{Device: strptr("speakers")})
	active := host.Active()
	if active == nil || active.Device() != "speakers" {
		t.Fatalf("expected speakers to be active")
	}
	before := r.Configuration()

	if err := r.Do(ctx, ChangeOutput{Device: strptr("headphones")}); err == nil {
		t.Fatalf("expected change to failing device to fail")
	}
	if host.Active() != active || active.Closed() {
		t.Fatalf("expected previous sink to keep running")
	}
	if !reflect.DeepEqual(before, r.Configuration()) {
		t.Fatalf("expected configuration unchanged, got %+v", r.Configuration())
	}

	mustDo(t, r, ChangeOutput{Device: nil})
	if !active.Closed() {
		t.Fatalf("expected old sink to be closed after a successful change")
	}
	if cfg := r.Configuration(); cfg.Current != nil {
		t.Fatalf("expected default device, got %q", *cfg.Current)
	}
}

func TestConfigurationListenerReplays(t *testing.T) {
	host := sink.NewLoopback("speakers")
	r := newTestRuntime(t, host)

	var mu sync.Mutex
	var got []OutputConfiguration
	mustDo(t, r, RegisterConfigurationListener{Fn: func(c OutputConfiguration) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}})
	mu.Lock()
	if len(got) != 1 {
		t.Fatalf("expected replay on subscribe, got %d calls", len(got))
	}
	if !reflect.DeepEqual(got[0].Available, []string{"speakers"}) {
		t.Fatalf("unexpected devices %v", got[0].Available)
	}
	mu.Unlock()

	host.AddDevice("usb")
	mustDo(t, r, RefreshConfiguration{})
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || len(got[1].Available) != 2 {
		t.Fatalf("expected refreshed configuration, got %+v", got)
	}
}

func TestCatalogListenerAndRegisterNode(t *testing.T) {
	r := newTestRuntime(t, nil)
	var seen [][]node.Definition
	mustDo(t, r, RegisterCatalogListener{Fn: func(defs []node.Definition) { seen = append(seen, defs) }})
	if len(seen) != 1 || len(seen[0]) != len(r.Catalog().Definitions()) {
		t.Fatalf("expected catalog replay, got %d calls", len(seen))
	}

	plan, err := graph.Compile("patch.dc", r.Catalog(), []graph.Declaration{{Field: "c", UID: nodes.ConstUID}}, graph.Routing{
		{From: graph.Field("c", "output"), To: graph.Param("output")},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mustDo(t, r, RegisterNode{Definition: plan.Definition(), Factory: func() node.Node {
		c, _ := graph.NewComposite(plan, r.Catalog())
		return c
	}})
	if len(seen) != 2 {
		t.Fatalf("expected listener notified of new node type")
	}
	if err := r.Do(testContext(t), RegisterNode{Definition: plan.Definition(), Factory: func() node.Node { return nil }}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestEndToEndCompiledPatch(t *testing.T) {
	p := &patch.Patch{
		Nodes: []patch.Node{
			{ID: 0, UID: nodes.SinUID},
			{ID: 1, UID: patch.SyntheticOutput},
		},
		Cables: []patch.Cable{cable(0, "output", 1, "input")},
	}
	host := sink.NewLoopback()
	r := newTestRuntime(t, host)

	plan, err := patch.Compile(p, r.Catalog(), "patch.sine")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cat := r.Catalog()
	mustDo(t, r,
		RegisterNode{Definition: plan.Definition(), Factory: func() node.Node {
			c, err := graph.NewComposite(plan, cat)
			if err != nil {
				panic(err)
			}
			return c
		}},
		AddNode{UID: "patch.sine", ID: 10},
		AddNode{UID: nodes.OutputUID, ID: 11},
		AddCable{Cable: cable(10, "output", 11, "input")},
		ChangeOutput{},
	)

	out := host.Pull(512)
	if len(out) != 1024 {
		t.Fatalf("expected 1024 samples, got %d", len(out))
	}
	if energy(out) == 0 {
		t.Fatalf("expected non-silent output")
	}
}

func TestCommandsAfterClose(t *testing.T) {
	r := New()
	r.Start()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Send(Reset{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := r.Do(testContext(t), Reset{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	idle := New()
	if err := idle.Close(); err != nil {
		t.Fatalf("close of unstarted runtime: %v", err)
	}
}

func TestConcurrentRenderDuringEdits(t *testing.T) {
	host := sink.NewLoopback()
	r := newTestRuntime(t, host)
	mustDo(t, r, ChangeOutput{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				host.Pull(64)
			}
		}
	}()
	for i := 0; i < 20; i++ {
		mustDo(t, r, session()...)
		mustDo(t, r, Reset{})
	}
	close(stop)
	wg.Wait()
}

func TestFanInOrderIgnoresInsertionOrder(t *testing.T) {
	render := func(first, second patch.Cable) []float32 {
		r := newTestRuntime(t, nil)
		mustDo(t, r,
			AddNode{UID: nodes.SinUID, ID: 1},
			AddNode{UID: nodes.SawUID, ID: 2},
			AddNode{UID: nodes.OutputUID, ID: 3},
			AddCable{Cable: first},
			AddCable{Cable: second},
		)
		out := make([]float32, 2*512)
		r.Render(out, 2)
		return out
	}
	a, b := cable(1, "output", 3, "input"), cable(2, "output", 3, "input")
	forward := render(a, b)
	reverse := render(b, a)
	if energy(forward) == 0 {
		t.Fatalf("expected audio")
	}
	for i := range forward {
		if forward[i] != reverse[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, forward[i], reverse[i])
		}
	}
}

// eagerHost pulls one block from every sink while opening it, like a device
// that starts its stream before Open returns.
type eagerHost struct {
	*sink.Loopback
	failDevices atomic.Bool

	mu     sync.Mutex
	opened [][]float32
}

func (h *eagerHost) Open(device string, f sink.Format, cb sink.Callback) (sink.Sink, error) {
	s, err := h.Loopback.Open(device, f, cb)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, 256*s.Format().Channels)
	cb(buf)
	h.mu.Lock()
	h.opened = append(h.opened, buf)
	h.mu.Unlock()
	return s, nil
}

func (h *eagerHost) Devices() ([]sink.Device, error) {
	if h.failDevices.Load() {
		return nil, errors.New("enumeration failed")
	}
	return h.Loopback.Devices()
}

func TestChangeOutputSilentUntilCommitted(t *testing.T) {
	host := &eagerHost{Loopback: sink.NewLoopback("speakers", "headphones")}
	r := newTestRuntime(t, host)
	mustDo(t, r, session()...)
	mustDo(t, r, ChangeOutput{Device: strptr("speakers")})
	if energy(host.Pull(512)) == 0 {
		t.Fatalf("expected audio once the sink is committed")
	}

	mustDo(t, r, ChangeOutput{Device: strptr("headphones")})
	host.mu.Lock()
	opened := host.opened
	host.mu.Unlock()
	if len(opened) != 2 {
		t.Fatalf("expected 2 opened sinks, got %d", len(opened))
	}
	for i, buf := range opened {
		if e := energy(buf); e != 0 {
			t.Fatalf("sink %d: expected silence before commit, got energy %f", i, e)
		}
	}
	if energy(host.Pull(512)) == 0 {
		t.Fatalf("expected audio from the new sink")
	}
}

func TestChangeOutputSucceedsWhenRefreshFails(t *testing.T) {
	host := &eagerHost{Loopback: sink.NewLoopback("speakers", "headphones")}
	r := newTestRuntime(t, host)
	mustDo(t, r, ChangeOutput{Device: strptr("speakers")})
	old := host.Active()

	host.failDevices.Store(true)
	if err := r.Do(testContext(t), ChangeOutput{Device: strptr("headphones")}); err != nil {
		t.Fatalf("expected committed change to report success, got %v", err)
	}
	if active := host.Active(); active == nil || active.Device() != "headphones" {
		t.Fatalf("expected headphones to be active")
	}
	if !old.Closed() {
		t.Fatalf("expected previous sink to be closed")
	}
	if err := r.Do(testContext(t), RefreshConfiguration{}); err == nil {
		t.Fatalf("expected explicit refresh to report the enumeration error")
	}
}
