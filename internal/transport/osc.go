// Package transport implements the external control surface: an OSC
// listener built on github.com/hypebeast/go-osc, plus a small
// read-only HTTP status/schema mirror (go-osc's dispatcher never
// exposes the sender's return address, so a status query gets answered
// over HTTP instead of a synthesized OSC reply).
//
// go-osc's StandardDispatcher matches pre-registered address patterns,
// which doesn't fit this namespace's dynamic module ids
// (/mod/<id>/<param>, /gate/<id>): Server implements osc.Dispatcher
// itself and parses each address by hand instead.
package transport

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/module"
)

// Sink receives validated commands and patch ops parsed off the wire.
// internal/supervisor.Supervisor implements this.
type Sink interface {
	BroadcastCommand(rec [cmdrec.Size]byte)
	DispatchPatch(op ipc.PatchOp)
}

// Server is an OSC listener implementing osc.Dispatcher directly so it
// can parse addresses with embedded module ids instead of matching
// fixed patterns.
type Server struct {
	addr      string
	sink      Sink
	malformed atomic.Uint64
	srv       *osc.Server
}

// NewServer builds a Server bound to host:port, forwarding parsed
// commands and patch ops to sink.
func NewServer(host string, port int, sink Sink) *Server {
	s := &Server{addr: fmt.Sprintf("%s:%d", host, port), sink: sink}
	s.srv = &osc.Server{Addr: s.addr, Dispatcher: s}
	return s
}

// ListenAndServe blocks, serving OSC messages until the listener errors.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// MalformedCount returns the running count of messages rejected by
// address/argument validation.
func (s *Server) MalformedCount() uint64 { return s.malformed.Load() }

// Dispatch implements osc.Dispatcher: every incoming packet, message or
// bundle, is routed here instead of through StandardDispatcher's
// pattern table.
func (s *Server) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		s.handleMessage(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			s.handleMessage(m)
		}
	}
}

func (s *Server) handleMessage(msg *osc.Message) {
	addr := strings.TrimPrefix(msg.Address, "/")
	parts := strings.Split(addr, "/")

	switch {
	case len(parts) == 3 && parts[0] == "mod":
		s.handleSet(parts[1], parts[2], msg.Arguments)
	case len(parts) == 2 && parts[0] == "gate":
		s.handleGate(parts[1], msg.Arguments)
	case len(parts) >= 2 && parts[0] == "patch":
		s.handlePatch(parts[1:], msg.Arguments)
	case msg.Address == "/engine/schema" || msg.Address == "/engine/status":
		// Accepted but answered over the HTTP mirror, not an OSC
		// reply; see package doc.
	default:
		s.malformed.Add(1)
	}
}

func (s *Server) handleSet(id, param string, args []interface{}) {
	if !module.ValidIdentifier(id) || !module.ValidIdentifier(param) || len(args) != 1 {
		s.malformed.Add(1)
		return
	}
	value, ok := numericValue(args[0])
	if !ok {
		s.malformed.Add(1)
		return
	}
	rec, err := cmdrec.PackFloat64(id, param, value)
	if err != nil {
		s.malformed.Add(1)
		return
	}
	s.sink.BroadcastCommand(rec)
}

func (s *Server) handleGate(id string, args []interface{}) {
	if !module.ValidIdentifier(id) || len(args) != 1 {
		s.malformed.Add(1)
		return
	}
	value, ok := numericValue(args[0])
	if !ok {
		s.malformed.Add(1)
		return
	}
	rec, err := cmdrec.PackGate(id, value != 0)
	if err != nil {
		s.malformed.Add(1)
		return
	}
	s.sink.BroadcastCommand(rec)
}

func (s *Server) handlePatch(parts []string, args []interface{}) {
	if len(parts) == 0 {
		s.malformed.Add(1)
		return
	}
	switch parts[0] {
	case "create":
		if len(parts) != 1 || len(args) != 2 {
			s.malformed.Add(1)
			return
		}
		id, ok1 := stringValue(args[0])
		typ, ok2 := stringValue(args[1])
		if !ok1 || !ok2 || !module.ValidIdentifier(id) || !module.ValidIdentifier(typ) {
			s.malformed.Add(1)
			return
		}
		s.sink.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchCreate, ModuleID: id, TypeName: typ})
	case "connect":
		s.handleEdge(ipc.PatchConnect, args)
	case "disconnect":
		s.handleEdge(ipc.PatchDisconnect, args)
	case "delete":
		if len(parts) != 1 || len(args) != 1 {
			s.malformed.Add(1)
			return
		}
		id, ok := stringValue(args[0])
		if !ok || !module.ValidIdentifier(id) {
			s.malformed.Add(1)
			return
		}
		s.sink.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchDelete, ModuleID: id})
	case "commit":
		s.sink.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchCommit})
	case "abort":
		s.sink.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchAbort})
	default:
		s.malformed.Add(1)
	}
}

func (s *Server) handleEdge(kind ipc.PatchOpKind, args []interface{}) {
	if len(args) != 2 {
		s.malformed.Add(1)
		return
	}
	src, ok1 := stringValue(args[0])
	dst, ok2 := stringValue(args[1])
	if !ok1 || !ok2 || !module.ValidIdentifier(src) || !module.ValidIdentifier(dst) {
		s.malformed.Add(1)
		return
	}
	s.sink.DispatchPatch(ipc.PatchOp{Kind: kind, SourceID: src, DestID: dst})
}

// numericValue accepts the OSC argument types a parameter set/gate
// message plausibly carries (float32, int32, bool) and normalizes to
// float64.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
