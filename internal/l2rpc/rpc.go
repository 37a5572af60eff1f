// Package l2rpc exposes the token tier's node surface as JSON-RPC 2.0
// over a raw TCP connection: one newline-delimited JSON envelope per
// request, one goroutine per connection, dispatched through a small
// method table (§4.10, §6.3). No JSON-RPC framework in the retrieval
// pack speaks this raw-TCP framing (every pack library assumes HTTP), so
// this package is built directly on net and encoding/json.
package l2rpc

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"

	"covalent/internal/l2chain"
	"covalent/internal/l2mempool"
	"covalent/internal/l2types"
	"covalent/internal/triedb"
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

// StateRootFunc returns the token tier's current committed state root;
// it is a function, not a value, because the root advances every block.
type StateRootFunc func() l2types.Hash

// Server is the token tier's JSON-RPC listener.
type Server struct {
	addr      string
	mempool   *l2mempool.Mempool
	chain     *l2chain.Store
	backend   *triedb.Backend
	stateRoot StateRootFunc
	namespace string
}

// New returns a Server ready to ListenAndServe.
func New(addr string, mempool *l2mempool.Mempool, chain *l2chain.Store, backend *triedb.Backend, trieNamespace string, stateRoot StateRootFunc) *Server {
	return &Server{addr: addr, mempool: mempool, chain: chain, backend: backend, namespace: trieNamespace, stateRoot: stateRoot}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("l2rpc: listen %s: %w", s.addr, err)
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
				return fmt.Errorf("l2rpc: accept: %w", err)
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
	case "send_raw_transaction":
		return s.sendRawTransaction(params)
	case "get_block_by_number":
		return s.getBlockByNumber(params)
	case "get_transaction_by_hash":
		return s.getTransactionByHash(params)
	case "get_receipt_by_hash":
		return s.getReceiptByHash(params)
	case "get_balance":
		return s.getBalance(params)
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}
}

func internalErr(err error) *rpcError {
	return &rpcError{Code: -32000, Message: err.Error()}
}

func invalidParams(err error) *rpcError {
	return &rpcError{Code: -32602, Message: err.Error()}
}

type sendRawTxParams struct {
	Data string `json:"data"`
}

func (s *Server) sendRawTransaction(params json.RawMessage) (interface{}, *rpcError) {
	var p sendRawTxParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	raw, err := hex.DecodeString(trim0x(p.Data))
	if err != nil {
		return nil, invalidParams(err)
	}
	stx, err := l2types.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.mempool.Add(stx); err != nil {
		return nil, internalErr(err)
	}
	return stx.TxHash.String(), nil
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

func parseHash(s string) (l2types.Hash, error) {
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return l2types.Hash{}, err
	}
	if len(b) != 32 {
		return l2types.Hash{}, fmt.Errorf("l2rpc: hash must be 32 bytes, got %d", len(b))
	}
	var h l2types.Hash
	copy(h[:], b)
	return h, nil
}

func (s *Server) getTransactionByHash(params json.RawMessage) (interface{}, *rpcError) {
	var p byHashParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	hash, err := parseHash(p.Hash)
	if err != nil {
		return nil, invalidParams(err)
	}
	stx, found, err := s.chain.TransactionByHash(hash)
	if err != nil {
		return nil, internalErr(err)
	}
	if !found {
		return nil, &rpcError{Code: -32001, Message: "transaction not found"}
	}
	return stx, nil
}

func (s *Server) getReceiptByHash(params json.RawMessage) (interface{}, *rpcError) {
	var p byHashParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	hash, err := parseHash(p.Hash)
	if err != nil {
		return nil, invalidParams(err)
	}
	receipt, found, err := s.chain.ReceiptByHash(hash)
	if err != nil {
		return nil, internalErr(err)
	}
	if !found {
		return nil, &rpcError{Code: -32001, Message: "receipt not found"}
	}
	return receipt, nil
}

type balanceParams struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

func (s *Server) getBalance(params json.RawMessage) (interface{}, *rpcError) {
	var p balanceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	addrBytes, err := hex.DecodeString(trim0x(p.Address))
	if err != nil {
		return nil, invalidParams(err)
	}
	tokenBytes, err := hex.DecodeString(trim0x(p.TokenID))
	if err != nil {
		return nil, invalidParams(err)
	}
	addr := l2types.BytesToAddress(addrBytes)
	var token l2types.TokenID
	copy(token[32-len(tokenBytes):], tokenBytes)

	stateTrie, err := triedb.Open(s.backend, s.namespace, [32]byte(s.stateRoot()))
	if err != nil {
		return nil, internalErr(err)
	}
	accData, err := stateTrie.Get(addr[:])
	if err == triedb.ErrNotFound {
		return l2types.NewTokenBalance(), nil
	}
	if err != nil {
		return nil, internalErr(err)
	}
	acct, err := l2types.DecodeAccount(accData)
	if err != nil {
		return nil, internalErr(err)
	}
	if acct.BalanceRoot.IsZero() {
		return l2types.NewTokenBalance(), nil
	}
	balTrie, err := triedb.Open(s.backend, s.namespace, [32]byte(acct.BalanceRoot))
	if err != nil {
		return nil, internalErr(err)
	}
	balData, err := balTrie.Get(token[:])
	if err == triedb.ErrNotFound {
		return l2types.NewTokenBalance(), nil
	}
	if err != nil {
		return nil, internalErr(err)
	}
	bal, err := l2types.DecodeTokenBalance(balData)
	if err != nil {
		return nil, internalErr(err)
	}
	return bal, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
