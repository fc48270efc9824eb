// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package introspect serves a small debug/introspection HTTP+WS API over
// the current segment's state — sub table, constant pool, and a live
// trace stream — gated behind debug-level (spec.md §6), in the JSON API
// style of probe-lang/integration/rpc.go's ProbeLanguageAPI.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/orchestrator"
)

// ConstantView is the JSON projection of one pool entry.
type ConstantView struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Integer int64  `json:"integer,omitempty"`
	Number  float64 `json:"number,omitempty"`
	String  string `json:"string,omitempty"`
}

// SubView is the JSON projection of one sub record.
type SubView struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Kind      string `json:"kind"`
}

func kindName(k constant.Kind) string {
	switch k {
	case constant.KindInteger:
		return "integer"
	case constant.KindNumber:
		return "number"
	case constant.KindString:
		return "string"
	case constant.KindKey:
		return "key"
	case constant.KindPMC:
		return "pmc"
	case constant.KindSub:
		return "sub"
	default:
		return "unknown"
	}
}

// Server exposes the orchestrator's current segment over HTTP and
// broadcasts emitted-instruction events over a WebSocket upgrade.
type Server struct {
	orch *orchestrator.Orchestrator

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	upgrade websocket.Upgrader
}

// New builds a debug server over orch. It is only ever mounted by the
// caller when debug-level is non-zero.
func New(orch *orchestrator.Orchestrator) *Server {
	return &Server{
		orch:    orch,
		clients: make(map[*websocket.Conn]struct{}),
		upgrade: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Handler returns the CORS-wrapped httprouter mux for the debug API.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/subs", s.handleSubs)
	router.GET("/constants", s.handleConstants)
	router.GET("/trace", s.handleTrace)
	return cors.Default().Handler(router)
}

func (s *Server) handleSubs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	seg := s.orch.CurrentSegment()
	if seg == nil {
		writeJSON(w, []SubView{})
		return
	}
	var views []SubView
	for _, rec := range seg.Emitter.Subs.All() {
		views = append(views, SubView{
			Name:      rec.Name,
			Namespace: rec.Namespace,
			Start:     rec.Start,
			End:       rec.End,
			Kind:      rec.DisplayKind,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleConstants(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	seg := s.orch.CurrentSegment()
	if seg == nil {
		writeJSON(w, []ConstantView{})
		return
	}
	var views []ConstantView
	for i := 0; ; i++ {
		c, ok := seg.Emitter.Pool.At(i)
		if !ok {
			break
		}
		views = append(views, ConstantView{
			Index:   i,
			Kind:    kindName(c.Kind),
			Integer: c.Integer,
			Number:  c.Number,
			String:  string(c.String),
		})
	}
	writeJSON(w, views)
}

// handleTrace upgrades to a WebSocket and registers the connection for
// Broadcast; it blocks reading (and discarding) control frames until the
// client disconnects, the same idle-read loop gorilla/websocket's own
// examples use to detect closure.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrade.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes a trace event to every connected WebSocket client.
// pkg/emitlog does not call it; events reach clients only when the
// embedding code calls Broadcast itself.
func (s *Server) Broadcast(boundary, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.Marshal(map[string]string{"boundary": boundary, "message": msg})
	if err != nil {
		return
	}
	for c := range s.clients {
		c.WriteMessage(websocket.TextMessage, payload)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
