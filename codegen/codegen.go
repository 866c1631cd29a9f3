// Package codegen emits Go source for compiled plans, so a patch can be
// built into a binary ahead of time instead of interpreted by graph.Composite.
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/cwbudde/algo-modular/graph"
)

// ErrBadIdentifier is returned when a name cannot become a Go identifier.
var ErrBadIdentifier = errors.New("bad identifier")

// Options controls the emitted file.
type Options struct {
	Package  string
	TypeName string
	// Source names the input in the generated header.
	Source string
}

type stepData struct {
	Field  string
	UID    string
	Ports  int
	Outs   int
	Value  string
	Inputs []string
	Wiring []string
}

type fileData struct {
	Package string
	Type    string
	UID     string
	Source  string
	Inputs  []string
	Outputs []string
	Buffers int
	Sums    int
	Steps   []stepData
	Results []string
}

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by modular-codegen{{if .Source}} from {{.Source}}{{end}}. DO NOT EDIT.

package {{.Package}}

import (
{{- if .Steps}}
	"fmt"
{{end}}
	"github.com/cwbudde/algo-modular/node"
)

// {{.Type}} is the compiled patch {{printf "%q" .UID}}.
type {{.Type}} struct {
{{- range .Steps}}
	node_{{.Field}} node.Node
	in_{{.Field}} [{{.Ports}}]node.Signal
	out_{{.Field}} [{{.Outs}}][]float32
{{- end}}
	buf [{{.Buffers}}][]float32
	sum [{{.Sums}}][]float32
	discard []float32
}

// New{{.Type}} instantiates every sub-node from c.
func New{{.Type}}(c *node.Catalog) (*{{.Type}}, error) {
	p := &{{.Type}}{}
{{- if .Steps}}
	var err error
{{- end}}
{{- range .Steps}}
	if p.node_{{.Field}}, _, err = c.New({{printf "%q" .UID}}); err != nil {
		return nil, fmt.Errorf("{{.Field}}: %w", err)
	}
{{- if .Value}}
	if r, ok := p.node_{{.Field}}.(node.Receiver); ok {
		r.Receive(node.Message{Kind: node.SetParameter, Index: 0, Value: {{.Value}}})
	} else {
		return nil, fmt.Errorf("{{.Field}}: {{.UID}} cannot hold a constant")
	}
{{- end}}
{{- end}}
	return p, nil
}

// {{.Type}}Definition describes the boundary of {{.Type}}.
func {{.Type}}Definition() *node.Definition {
	return &node.Definition{
		UID:     {{printf "%q" .UID}},
		Name:    {{printf "%q" .UID}},
		Summary: "Compiled patch.",
		Inputs:  node.Sockets({{range $i, $n := .Inputs}}{{if $i}}, {{end}}{{printf "%q" $n}}{{end}}),
		Outputs: node.Sockets({{range $i, $n := .Outputs}}{{if $i}}, {{end}}{{printf "%q" $n}}{{end}}),
	}
}

func (p *{{.Type}}) Init(sampleRate float64) {
{{- range .Steps}}
	p.node_{{.Field}}.Init(sampleRate)
{{- end}}
}

func (p *{{.Type}}) Process(n int, in []node.Signal, out [][]float32) {
	for i := range p.buf {
		p.buf[i] = node.Grow(p.buf[i], n)
	}
	p.discard = node.Grow(p.discard, n)
{{range .Steps}}
	// {{.Field}} ({{.UID}})
{{- range .Inputs}}
	{{.}}
{{- end}}
{{- range .Wiring}}
	{{.}}
{{- end}}
	p.node_{{.Field}}.Process(n, p.in_{{.Field}}[:], p.out_{{.Field}}[:])
{{end}}
{{- range .Results}}
	{{.}}
{{- end}}
}

func (*{{.Type}}) arg(in []node.Signal, i int) node.Signal {
	if i < len(in) {
		return in[i]
	}
	return node.Const(0)
}

func (*{{.Type}}) mix(dst []float32, n int, srcs ...node.Signal) []float32 {
	dst = node.Grow(dst, n)
	node.Clear(dst)
	for _, s := range srcs {
		for i := 0; i < n; i++ {
			dst[i] += s.At(i)
		}
	}
	return dst
}
`))

// Generate renders plan as a formatted Go file. Sub-node state is emitted
// under node_, in_ and out_ prefixes, so any field name the compiler accepts
// yields a distinct identifier.
func Generate(plan *graph.Plan, opts Options) ([]byte, error) {
	if opts.Package == "" {
		opts.Package = "patches"
	}
	if opts.TypeName == "" {
		opts.TypeName = TypeName(plan.UID)
	}
	if !token.IsIdentifier(opts.Package) {
		return nil, fmt.Errorf("%w: package %q", ErrBadIdentifier, opts.Package)
	}
	if !token.IsIdentifier(opts.TypeName) {
		return nil, fmt.Errorf("%w: type %q", ErrBadIdentifier, opts.TypeName)
	}
	for _, s := range plan.Steps {
		if !token.IsIdentifier("node_" + s.Field) {
			return nil, fmt.Errorf("%w: field %q", ErrBadIdentifier, s.Field)
		}
	}
	data := fileData{
		Package: opts.Package,
		Type:    opts.TypeName,
		UID:     plan.UID,
		Source:  opts.Source,
		Inputs:  plan.Inputs,
		Outputs: plan.Outputs,
		Buffers: plan.Buffers,
	}

	for _, s := range plan.Steps {
		defaults := s.Def.PortDefaults()
		sd := stepData{
			Field: s.Field,
			UID:   s.UID,
			Ports: len(s.Ports),
			Outs:  len(s.Outputs),
		}
		if s.Value != nil {
			sd.Value = strconv.FormatFloat(*s.Value, 'g', -1, 64)
		}
		for port, srcs := range s.Ports {
			lhs := fmt.Sprintf("p.in_%s[%d]", s.Field, port)
			switch len(srcs) {
			case 0:
				sd.Inputs = append(sd.Inputs, fmt.Sprintf("%s = node.Const(%s)", lhs, float32Literal(defaults[port])))
			case 1:
				sd.Inputs = append(sd.Inputs, fmt.Sprintf("%s = %s", lhs, signalExpr(srcs[0])))
			default:
				sum := data.Sums
				data.Sums++
				sd.Inputs = append(sd.Inputs,
					fmt.Sprintf("p.sum[%d] = p.mix(p.sum[%d], n, %s)", sum, sum, signalList(srcs)),
					fmt.Sprintf("%s = node.Block(p.sum[%d])", lhs, sum))
			}
		}
		for o, b := range s.Outputs {
			target := "p.discard"
			if b >= 0 {
				target = fmt.Sprintf("p.buf[%d]", b)
			}
			sd.Wiring = append(sd.Wiring, fmt.Sprintf("p.out_%s[%d] = %s", s.Field, o, target))
		}
		data.Steps = append(data.Steps, sd)
	}
	for o, srcs := range plan.Results {
		data.Results = append(data.Results,
			fmt.Sprintf("if len(out) > %d {\n\t\tp.mix(out[%d][:n], n, %s)\n\t}", o, o, signalList(srcs)))
	}

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return src, nil
}

func signalExpr(s graph.Source) string {
	if s.Kind == graph.FromBuffer {
		return fmt.Sprintf("node.Block(p.buf[%d])", s.Index)
	}
	return fmt.Sprintf("p.arg(in, %d)", s.Index)
}

func signalList(srcs []graph.Source) string {
	parts := make([]string, len(srcs))
	for i, s := range srcs {
		parts[i] = signalExpr(s)
	}
	return strings.Join(parts, ", ")
}

func float32Literal(v float32) string {
	s := strconv.FormatFloat(float64(v), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// TypeName derives an exported Go identifier from a node uid,
// e.g. "patch.fm_bass" becomes "PatchFmBass".
func TypeName(uid string) string {
	var b strings.Builder
	upper := true
	for _, r := range uid {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteString("P")
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "Patch"
	}
	return b.String()
}
