// Package livepreview exposes a running highlight.Registry over a
// WebSocket JSON-RPC protocol, so a browser-based preview (or any other
// out-of-process client) can ask "tokenize this text as this language"
// without linking against the Go module directly.
package livepreview

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cairnlang/cairn/highlight"
	"github.com/cairnlang/cairn/scope"
)

// Server serves the live-preview protocol against a fixed Registry of
// compiled grammars.
type Server struct {
	registry *highlight.Registry
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer serves against registry, logging with log (or slog.Default()
// if log is nil).
func NewServer(registry *highlight.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		registry: registry,
		log:      log,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades every request to a WebSocket connection carrying the
// RPC protocol; Server has no other routes of its own, so callers mount it
// at whatever path they like (conventionally "/ws") alongside their own
// static asset handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	s.addClient(c)
	defer s.removeClient(c)

	s.log.Info("client connected", "client_id", c.id)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.log.Info("client disconnected", "client_id", c.id, "err", err)
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.log.Warn("malformed rpc request", "client_id", c.id, "err", err)
			continue
		}
		resp := s.dispatch(req)
		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		c.mu.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if writeErr != nil {
			return
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	c.conn.Close()
}

func (s *Server) dispatch(req rpcRequest) rpcResponse {
	switch req.Method {
	case "tokenize":
		return s.rpcTokenize(req)
	case "listLanguages":
		return s.rpcListLanguages(req)
	default:
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method: %s", req.Method)}}
	}
}

type tokenizeParams struct {
	ScopeName string `json:"scopeName"`
	Text      string `json:"text"`
}

// lineJSON groups a document's tokens by the line they came from. Offset
// is the line's own starting byte within the document; Tokens' Start/End
// are already document-relative (highlight.TokenizeDocument shifts them),
// so a client that just wants the full token stream can concatenate every
// line's Tokens directly — Offset is there for a client that wants to
// know which line produced a given token, not to be added in again.
type lineJSON struct {
	Offset int         `json:"offset"`
	Tokens []tokenJSON `json:"tokens"`
}

type tokenJSON struct {
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Scopes []string `json:"scopes"`
}

func (s *Server) rpcTokenize(req rpcRequest) rpcResponse {
	var p tokenizeParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: err.Error()}}
	}
	lang, ok := s.registry.Resolve(p.ScopeName)
	if !ok {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: fmt.Sprintf("unknown language %q", p.ScopeName)}}
	}
	var interner *scope.Interner
	for _, l := range s.registry.AllLanguages() {
		if l.Grammar == lang {
			interner = l.Interner
			break
		}
	}

	tk := highlight.NewTokenizer(lang, nil)
	lines, err := tk.TokenizeDocument(p.Text)
	if err != nil {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32001, Message: err.Error()}}
	}

	out := make([]lineJSON, len(lines))
	for i, line := range lines {
		tokens := make([]tokenJSON, len(line.Tokens))
		for j, t := range line.Tokens {
			scopes := make([]string, len(t.Scopes))
			for k, id := range t.Scopes {
				scopes[k] = interner.NameOf(id)
			}
			tokens[j] = tokenJSON{Start: t.Start, End: t.End, Scopes: scopes}
		}
		out[i] = lineJSON{Offset: line.Offset, Tokens: tokens}
	}
	return rpcResponse{ID: req.ID, Result: out}
}

type languageJSON struct {
	ScopeName   string   `json:"scopeName"`
	DisplayName string   `json:"displayName"`
	FileTypes   []string `json:"fileTypes"`
}

// Broadcast sends a notification (a request with no ID) carrying method
// and params to every currently connected client. It's used to push
// updates — e.g. a grammar was hot-reloaded — without waiting for a
// client to ask.
func (s *Server) Broadcast(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	note := rpcRequest{Method: method, Params: raw}
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
	}
	return nil
}

func (s *Server) rpcListLanguages(req rpcRequest) rpcResponse {
	langs := s.registry.AllLanguages()
	out := make([]languageJSON, len(langs))
	for i, l := range langs {
		out[i] = languageJSON{ScopeName: l.ScopeName, DisplayName: l.DisplayName, FileTypes: l.FileTypes}
	}
	return rpcResponse{ID: req.ID, Result: out}
}
