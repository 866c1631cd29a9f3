// Package bridge exposes runtime commands as JSON lines over a byte stream.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cwbudde/algo-modular/graph"
	"github.com/cwbudde/algo-modular/live"
	"github.com/cwbudde/algo-modular/node"
	"github.com/cwbudde/algo-modular/patch"
)

// Request is one line sent by a client.
type Request struct {
	Op     string          `json:"op"`
	UID    string          `json:"uid,omitempty"`
	ID     uint            `json:"id,omitempty"`
	Index  int             `json:"index,omitempty"`
	Value  float32         `json:"value,omitempty"`
	From   *patch.CableEnd `json:"from,omitempty"`
	To     *patch.CableEnd `json:"to,omitempty"`
	Device *string         `json:"device,omitempty"`
	Path   string          `json:"path,omitempty"`
}

// Response answers one Request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Event is pushed to the client by a registered listener.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ErrUnknownOp is returned for an unsupported op.
var ErrUnknownOp = errors.New("unknown op")

// Server serves one client connection.
type Server struct {
	rt  *live.Runtime
	log *slog.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

// NewServer creates a server in front of rt.
func NewServer(rt *live.Runtime, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{rt: rt, log: log}
}

// Serve reads requests from r until EOF or ctx ends, writing responses and
// events to w. Request errors are reported to the client and never stop the loop.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.enc = json.NewEncoder(w)
	s.mu.Unlock()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var req Request
		var resp Response
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = Response{Error: fmt.Sprintf("bad request: %v", err)}
		} else {
			resp = s.Handle(ctx, req)
		}
		if err := s.write(resp); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (s *Server) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	return s.enc.Encode(v)
}

func (s *Server) emit(event string, data any) {
	if err := s.write(Event{Event: event, Data: data}); err != nil {
		s.log.Warn("event dropped", "event", event, "err", err)
	}
}

// Handle runs one request against the runtime.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	var data any
	err := s.dispatch(ctx, req, &data)
	if err != nil {
		s.log.Debug("request failed", "op", req.Op, "err", err)
		return Response{Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

func (s *Server) dispatch(ctx context.Context, req Request, data *any) error {
	switch req.Op {
	case "load_patch":
		uid, err := s.loadPatch(ctx, req.Path, req.UID)
		*data = uid
		return err
	case "export_patch":
		p, err := s.rt.Export(ctx)
		*data = p
		return err
	case "snapshot":
		snap, err := s.rt.Snapshot(ctx)
		*data = snap
		return err
	}
	cmd, err := s.Command(req)
	if err != nil {
		return err
	}
	return s.rt.Do(ctx, cmd)
}

// Command translates a request into a runtime command.
func (s *Server) Command(req Request) (live.Command, error) {
	switch req.Op {
	case "reset":
		return live.Reset{}, nil
	case "add_node":
		if req.UID == "" {
			return nil, errors.New("add_node: missing uid")
		}
		return live.AddNode{UID: req.UID, ID: req.ID}, nil
	case "remove_node":
		return live.RemoveNode{ID: req.ID}, nil
	case "add_cable", "remove_cable":
		if req.From == nil || req.To == nil {
			return nil, fmt.Errorf("%s: missing from/to", req.Op)
		}
		c := patch.Cable{From: *req.From, To: *req.To}
		if req.Op == "add_cable" {
			return live.AddCable{Cable: c}, nil
		}
		return live.RemoveCable{Cable: c}, nil
	case "set_parameter":
		return live.SetParameter{ID: req.ID, Index: req.Index, Value: req.Value}, nil
	case "change_output":
		return live.ChangeOutput{Device: req.Device}, nil
	case "refresh_configuration":
		return live.RefreshConfiguration{}, nil
	case "register_catalog_listener":
		return live.RegisterCatalogListener{Fn: func(defs []node.Definition) {
			s.emit("catalog", defs)
		}}, nil
	case "register_configuration_listener":
		return live.RegisterConfigurationListener{Fn: func(cfg live.OutputConfiguration) {
			s.emit("configuration", cfg)
		}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
}

// loadPatch compiles a patch file and registers it as a node type.
func (s *Server) loadPatch(ctx context.Context, path, uid string) (string, error) {
	if path == "" {
		return "", errors.New("load_patch: missing path")
	}
	p, err := patch.Load(path)
	if err != nil {
		return "", err
	}
	if uid == "" {
		uid = PatchUID(path)
	}
	catalog := s.rt.Catalog()
	plan, err := patch.Compile(p, catalog, uid)
	if err != nil {
		return "", err
	}
	if _, err := graph.NewComposite(plan, catalog); err != nil {
		return "", err
	}
	err = s.rt.Do(ctx, live.RegisterNode{Definition: plan.Definition(), Factory: func() node.Node {
		c, err := graph.NewComposite(plan, catalog)
		if err != nil {
			panic(err)
		}
		return c
	}})
	return uid, err
}

// PatchUID derives a node uid from a patch file name.
func PatchUID(path string) string {
	base := filepath.Base(path)
	return "patch." + strings.TrimSuffix(base, filepath.Ext(base))
}
