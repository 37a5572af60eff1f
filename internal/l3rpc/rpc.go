// Package l3rpc exposes the channel tier's node surface as JSON-RPC 2.0
// over raw TCP, symmetric in shape to internal/l2rpc: the channel tier
// needs its own submission path for the relayer and for direct client
// use, which the token-tier-focused RPC contract is silent on — this is
// a supplement to that contract, not a contradiction of it.
package l3rpc

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"

	"covalent/internal/l3chain"
	"covalent/internal/l3mempool"
	"covalent/internal/l3types"
	"covalent/internal/smtdb"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StateRootFunc returns the channel tier's current committed state root.
type StateRootFunc func() l3types.Hash

// Server is the channel tier's JSON-RPC listener.
type Server struct {
	addr      string
	mempool   *l3mempool.Mempool
	chain     *l3chain.Store
	backend   *smtdb.Backend
	namespace string
	stateRoot StateRootFunc
}

// New returns a Server ready to ListenAndServe.
func New(addr string, mempool *l3mempool.Mempool, chain *l3chain.Store, backend *smtdb.Backend, treeNamespace string, stateRoot StateRootFunc) *Server {
	return &Server{addr: addr, mempool: mempool, chain: chain, backend: backend, namespace: treeNamespace, stateRoot: stateRoot}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("l3rpc: listen %s: %w", s.addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("l3rpc: accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req request
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		result, rpcErr := s.dispatch(req.Method, req.Params)
		resp := response{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		_ = enc.Encode(resp)
	}
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "send_channel_transaction":
		return s.sendChannelTransaction(params)
	case "get_channel":
		return s.getChannel(params)
	case "get_block_by_number":
		return s.getBlockByNumber(params)
	case "get_transaction_by_hash":
		return s.getTransactionByHash(params)
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}
}

func internalErr(err error) *rpcError { return &rpcError{Code: -32000, Message: err.Error()} }
func invalidParams(err error) *rpcError {
	return &rpcError{Code: -32602, Message: err.Error()}
}

type sendTxParams struct {
	Data string `json:"data"`
}

func (s *Server) sendChannelTransaction(params json.RawMessage) (interface{}, *rpcError) {
	var p sendTxParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	raw, err := hex.DecodeString(trim0x(p.Data))
	if err != nil {
		return nil, invalidParams(err)
	}
	stx, err := l3types.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.mempool.Push(stx); err != nil {
		return nil, internalErr(err)
	}
	return stx.TxHash.String(), nil
}

type channelParams struct {
	ChannelID string `json:"channel_id"`
}

// getChannel reads a channel directly out of the sparse merkle tree
// rooted at the tier's last committed state root.
func (s *Server) getChannel(params json.RawMessage) (interface{}, *rpcError) {
	var p channelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	idBytes, err := hex.DecodeString(trim0x(p.ChannelID))
	if err != nil {
		return nil, invalidParams(err)
	}
	if len(idBytes) != 32 {
		return nil, invalidParams(fmt.Errorf("l3rpc: channel_id must be 32 bytes, got %d", len(idBytes)))
	}
	var id [32]byte
	copy(id[:], idBytes)

	tree, err := smtdb.Open(s.backend, s.namespace, [32]byte(s.stateRoot()))
	if err != nil {
		return nil, internalErr(err)
	}
	data, err := tree.Get(id)
	if err == smtdb.ErrNotFound {
		return nil, &rpcError{Code: -32001, Message: "channel not found"}
	}
	if err != nil {
		return nil, internalErr(err)
	}
	channel, err := l3types.DecodeChannel(data)
	if err != nil {
		return nil, internalErr(err)
	}
	return channel, nil
}

type byNumberParams struct {
	Number uint64 `json:"number"`
}

func (s *Server) getBlockByNumber(params json.RawMessage) (interface{}, *rpcError) {
	var p byNumberParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	block, found, err := s.chain.BlockByNumber(p.Number)
	if err != nil {
		return nil, internalErr(err)
	}
	if !found {
		return nil, &rpcError{Code: -32001, Message: "block not found"}
	}
	return block, nil
}

type byHashParams struct {
	Hash string `json:"hash"`
}

func (s *Server) getTransactionByHash(params json.RawMessage) (interface{}, *rpcError) {
	var p byHashParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	b, err := hex.DecodeString(trim0x(p.Hash))
	if err != nil {
		return nil, invalidParams(err)
	}
	if len(b) != 32 {
		return nil, invalidParams(fmt.Errorf("l3rpc: hash must be 32 bytes, got %d", len(b)))
	}
	var hash l3types.Hash
	copy(hash[:], b)
	stx, found, err := s.chain.TransactionByHash(hash)
	if err != nil {
		return nil, internalErr(err)
	}
	if !found {
		return nil, &rpcError{Code: -32001, Message: "transaction not found"}
	}
	return stx, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
