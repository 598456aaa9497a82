// Package chaintest provides a programmable JSON-RPC node for tests.
package chaintest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Handler answers one JSON-RPC method. Returning an *Error sends it as the
// JSON-RPC error object; any other error becomes an internal error.
type Handler func(params []json.RawMessage) (interface{}, error)

// ErrDropConnection makes the node close the connection without answering.
var ErrDropConnection = errors.New("drop connection")

// Error is a JSON-RPC error object.
type Error struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Call records one request the node received.
type Call struct {
	Method string
	Params []json.RawMessage
}

// Node is an httptest server speaking JSON-RPC 2.0.
type Node struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

// NewNode starts a node that is closed when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{handlers: make(map[string]Handler)}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Handle registers h for method, replacing any previous handler.
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Result makes method always answer v.
func (n *Node) Result(method string, v interface{}) {
	n.Handle(method, func([]json.RawMessage) (interface{}, error) { return v, nil })
}

// Fail makes method always answer with a JSON-RPC error.
func (n *Node) Fail(method string, code int, msg string) {
	n.Handle(method, func([]json.RawMessage) (interface{}, error) {
		return nil, &Error{Code: code, Message: msg}
	})
}

// Calls returns how many times method was requested. An empty method counts
// every request.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if method == "" {
		return len(n.calls)
	}
	count := 0
	for _, c := range n.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// History returns a copy of every recorded request.
func (n *Node) History() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, Call{Method: req.Method, Params: req.Params})
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
	} else if result, err := h(req.Params); err != nil {
		if errors.Is(err, ErrDropConnection) {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, herr := hj.Hijack(); herr == nil {
					conn.Close()
					return
				}
			}
		}
		rpcErr, isRPC := err.(*Error)
		if !isRPC {
			rpcErr = &Error{Code: -32603, Message: err.Error()}
		}
		obj := map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message}
		if rpcErr.Data != nil {
			obj["data"] = rpcErr.Data
		}
		resp["error"] = obj
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}
