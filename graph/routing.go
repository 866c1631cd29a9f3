// Package graph compiles routing descriptions into composite nodes.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for malformed routing text.
var ErrSyntax = errors.New("routing syntax error")

// Endpoint is one end of a route. An empty Field denotes a boundary
// parameter of the enclosing composite named Socket.
type Endpoint struct {
	Field  string
	Socket string
}

// Param returns a boundary parameter endpoint.
func Param(name string) Endpoint {
	return Endpoint{Socket: name}
}

// Field returns an inner reference to a sub-node socket.
func Field(field, socket string) Endpoint {
	return Endpoint{Field: field, Socket: socket}
}

// IsParam reports whether e refers to the composite boundary.
func (e Endpoint) IsParam() bool {
	return e.Field == ""
}

func (e Endpoint) String() string {
	if e.IsParam() {
		return e.Socket
	}
	return e.Field + "." + e.Socket
}

// Route is a directed edge From -> To.
type Route struct {
	From Endpoint
	To   Endpoint
}

func (r Route) String() string {
	return r.From.String() + " -> " + r.To.String()
}

// Routing is an ordered set of routes.
type Routing []Route

func (r Routing) String() string {
	parts := make([]string, len(r))
	for i, route := range r {
		parts[i] = route.String()
	}
	return strings.Join(parts, ", ")
}

// ParseRouting parses text of the form "a.out -> b.in, x -> c.y".
// Routes are separated by commas, semicolons or newlines.
func ParseRouting(text string) (Routing, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	var out Routing
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		lhs, rhs, ok := strings.Cut(f, "->")
		if !ok {
			return nil, fmt.Errorf("%w: missing \"->\" in %q", ErrSyntax, f)
		}
		from, err := parseEndpoint(lhs)
		if err != nil {
			return nil, err
		}
		to, err := parseEndpoint(rhs)
		if err != nil {
			return nil, err
		}
		out = append(out, Route{From: from, To: to})
	}
	return out, nil
}

func parseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	field, socket, inner := strings.Cut(s, ".")
	if !inner {
		if !isIdent(s) {
			return Endpoint{}, fmt.Errorf("%w: bad identifier %q", ErrSyntax, s)
		}
		return Param(s), nil
	}
	if !isIdent(field) || !isIdent(socket) {
		return Endpoint{}, fmt.Errorf("%w: bad reference %q", ErrSyntax, s)
	}
	return Field(field, socket), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
