package rpcclient

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
)

// serveOnce accepts a single connection, decodes one request line, and
// writes back resp as the response line.
func serveOnce(t *testing.T, ln net.Listener, resp response) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	var req request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		t.Errorf("server: decode request: %v", err)
		return
	}
	resp.ID = req.ID
	resp.JSONRPC = "2.0"
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		t.Errorf("server: encode response: %v", err)
	}
}

func TestCallDecodesResult(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	result, err := json.Marshal(map[string]int{"number": 42})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	go serveOnce(t, ln, response{Result: result})

	c := New(ln.Addr().String())
	var out struct {
		Number int `json:"number"`
	}
	if err := c.Call("get_thing", nil, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.Number != 42 {
		t.Fatalf("expected 42, got %d", out.Number)
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go serveOnce(t, ln, response{Error: &RPCError{Code: -32001, Message: "not found"}})

	c := New(ln.Addr().String())
	err = c.Call("get_thing", nil, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	rerr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rerr.Code != -32001 {
		t.Fatalf("expected code -32001, got %d", rerr.Code)
	}
}
