package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/nodes"
)

func mustParse(t *testing.T, text string) Routing {
	t.Helper()
	r, err := ParseRouting(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return r
}

func constDecl(field string, v float64) Declaration {
	return Declaration{Field: field, UID: nodes.ConstUID, Value: &v}
}

func TestParseRoutingRoundTrip(t *testing.T) {
	text := "freq -> osc.freq, osc.output -> amp.input, amp.output -> output"
	r := mustParse(t, text)
	if len(r) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(r))
	}
	if !r[0].From.IsParam() || r[0].To != Field("osc", "freq") {
		t.Fatalf("unexpected first route %v", r[0])
	}
	if got := r.String(); got != text {
		t.Fatalf("expected %q, got %q", text, got)
	}
}

func TestParseRoutingErrors(t *testing.T) {
	for _, text := range []string{"a.out b.in", "a. -> b.in", "1a -> b", "a.b.c -> d"} {
		if _, err := ParseRouting(text); !errors.Is(err, ErrSyntax) {
			t.Fatalf("expected ErrSyntax for %q, got %v", text, err)
		}
	}
}

func TestCompileOrdersProducersFirst(t *testing.T) {
	c := nodes.NewCatalog()
	decls := []Declaration{
		{Field: "amp", UID: nodes.AmpUID},
		{Field: "osc", UID: nodes.SinUID},
		constDecl("freq", 220),
	}
	plan, err := Compile("test.voice", c, decls, mustParse(t,
		"osc.output -> amp.input, freq.output -> osc.freq, amp.output -> output"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	pos := map[string]int{}
	for i, f := range plan.Order() {
		pos[f] = i
	}
	if !(pos["freq"] < pos["osc"] && pos["osc"] < pos["amp"]) {
		t.Fatalf("unexpected order %v", plan.Order())
	}
	if len(plan.Outputs) != 1 || plan.Outputs[0] != "output" {
		t.Fatalf("unexpected outputs %v", plan.Outputs)
	}
}

func TestCompileRandomDAGsAreOrdered(t *testing.T) {
	c := nodes.NewCatalog()
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.IntN(10)
		decls := make([]Declaration, n)
		perm := rng.Perm(n)
		for i := range decls {
			decls[i] = Declaration{Field: fmt.Sprintf("f%d", i), UID: nodes.AddUID}
		}
		// Edges only go from lower to higher rank in perm, so the graph is acyclic.
		var routing Routing
		for a := 0; a < n; a++ {
			for b := 0; b < n; b++ {
				if perm[a] < perm[b] && rng.IntN(3) == 0 {
					routing = append(routing, Route{From: Field(decls[a].Field, "output"), To: Field(decls[b].Field, "a")})
				}
			}
		}
		plan, err := Compile("rand", c, decls, routing)
		if err != nil {
			t.Fatalf("trial %d: compile: %v", trial, err)
		}
		pos := map[string]int{}
		for i, f := range plan.Order() {
			pos[f] = i
		}
		if len(pos) != n {
			t.Fatalf("trial %d: expected %d steps, got %d", trial, n, len(pos))
		}
		for _, r := range routing {
			if pos[r.From.Field] >= pos[r.To.Field] {
				t.Fatalf("trial %d: %s scheduled before its producer", trial, r)
			}
		}
	}
}

func TestCompileRejectsCycles(t *testing.T) {
	c := nodes.NewCatalog()
	decls := []Declaration{
		{Field: "a", UID: nodes.AddUID},
		{Field: "b", UID: nodes.AddUID},
		{Field: "c", UID: nodes.AddUID},
	}
	cases := []string{
		"a.output -> b.a, b.output -> a.a",
		"a.output -> a.b",
		"x -> a.a, a.output -> b.a, b.output -> c.a, c.output -> a.b, c.output -> y",
	}
	for _, text := range cases {
		plan, err := Compile("cyc", c, decls, mustParse(t, text))
		if !errors.Is(err, ErrCyclicGraph) {
			t.Fatalf("expected ErrCyclicGraph for %q, got %v", text, err)
		}
		if plan != nil {
			t.Fatalf("expected no plan for %q", text)
		}
	}
}

func TestCompileRejectsBadReferences(t *testing.T) {
	c := nodes.NewCatalog()
	decls := []Declaration{{Field: "osc", UID: nodes.SinUID}}

	if _, err := Compile("x", c, decls, mustParse(t, "osc.nope -> output")); !errors.Is(err, ErrUnknownSocket) {
		t.Fatalf("expected ErrUnknownSocket, got %v", err)
	}
	if _, err := Compile("x", c, decls, mustParse(t, "freq -> osc.nope")); !errors.Is(err, ErrUnknownSocket) {
		t.Fatalf("expected ErrUnknownSocket, got %v", err)
	}
	if _, err := Compile("x", c, decls, mustParse(t, "ghost.output -> output")); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := Compile("x", c, []Declaration{{Field: "a", UID: "nope"}}, nil); !errors.Is(err, node.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if _, err := Compile("x", c, append(decls, decls[0]), nil); !errors.Is(err, ErrInvalidRouting) {
		t.Fatalf("expected duplicate field error, got %v", err)
	}
}

func TestCompileRejectsAmbiguousOutput(t *testing.T) {
	c := nodes.NewCatalog()
	decls := []Declaration{
		{Field: "a", UID: nodes.SinUID},
		{Field: "b", UID: nodes.SinUID},
	}
	_, err := Compile("x", c, decls, mustParse(t, "a.output -> output, b.output -> output"))
	if !errors.Is(err, ErrAmbiguousOutput) {
		t.Fatalf("expected ErrAmbiguousOutput, got %v", err)
	}
	_, err = Compile("x", c, decls, mustParse(t, "sig -> a.tune, b.output -> sig"))
	if !errors.Is(err, ErrInvalidRouting) {
		t.Fatalf("expected ErrInvalidRouting for in/out clash, got %v", err)
	}
}

func TestCompositeFanOutAndFanIn(t *testing.T) {
	c := nodes.NewCatalog()
	decls := []Declaration{
		{Field: "sum", UID: nodes.AddUID},
		constDecl("one", 1),
		constDecl("two", 2),
	}
	// x fans out into both sides of the adder, one and two fan in on port a.
	plan, err := Compile("fan", c, decls, mustParse(t,
		"x -> sum.b, x -> sum.a, one.output -> sum.a, two.output -> sum.a, sum.output -> y"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	comp, err := NewComposite(plan, c)
	if err != nil {
		t.Fatalf("new composite: %v", err)
	}
	comp.Init(48000)
	out := [][]float32{make([]float32, 4)}
	comp.Process(4, []node.Signal{node.Const(0.5)}, out)
	// a = 0.5 + 1 + 2, b = 0.5
	if out[0][3] != 4 {
		t.Fatalf("expected 4, got %v", out[0][3])
	}
}

func TestCompositeUnconnectedPortsUseDefaults(t *testing.T) {
	c := nodes.NewCatalog()
	plan, err := Compile("amp", c, []Declaration{{Field: "amp", UID: nodes.AmpUID}}, mustParse(t, "in -> amp.input, amp.output -> out"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	comp, _ := NewComposite(plan, c)
	comp.Init(48000)
	out := [][]float32{make([]float32, 1)}
	comp.Process(1, []node.Signal{node.Const(1)}, out)
	// amp.db defaults to -6 dB.
	if out[0][0] < 0.49 || out[0][0] > 0.51 {
		t.Fatalf("expected about 0.5, got %v", out[0][0])
	}
}

func TestRegisterCompiledPlan(t *testing.T) {
	c := nodes.NewCatalog()
	plan, err := Compile("patch.tone", c, []Declaration{
		{Field: "osc", UID: nodes.SinUID},
		constDecl("f", 1000),
	}, mustParse(t, "f.output -> osc.freq, osc.output -> output"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := Register(c, plan); err != nil {
		t.Fatalf("register: %v", err)
	}
	nd, def, err := c.New("patch.tone")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(def.Inputs) != 0 || len(def.Outputs) != 1 {
		t.Fatalf("unexpected definition %+v", def)
	}
	nd.Init(48000)
	out := [][]float32{make([]float32, 48)}
	nd.Process(48, nil, out)
	var peak float32
	for _, v := range out[0] {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.99 {
		t.Fatalf("expected a full-scale tone, got peak %v", peak)
	}
}
