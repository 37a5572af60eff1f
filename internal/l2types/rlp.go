package l2types

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// rlpRequest mirrors Request in RLP's field order; uint256.Int already
// implements rlp.Encoder/Decoder, so it round-trips as a canonical
// minimal-length big-endian integer like any other RLP uint field.
type rlpRequest struct {
	Address Address
	TokenID TokenID
	Amount  *uint256.Int
	Action  uint8
	To      Address
}

type rlpRawTransaction struct {
	ChainID     uint64
	CyclesPrice uint64
	CyclesLimit uint64
	Nonce       [32]byte
	Requests    []rlpRequest
	Timeout     uint64
	Sender      Address
}

// EncodeRawTransaction produces the canonical recursive-length-prefixed
// list encoding of raw, the sole input to tx_hash = H(encode(raw)).
func EncodeRawTransaction(raw RawTransaction) ([]byte, error) {
	reqs := make([]rlpRequest, len(raw.Requests))
	for i, r := range raw.Requests {
		amt := r.Amount
		if amt == nil {
			amt = uint256.NewInt(0)
		}
		reqs[i] = rlpRequest{
			Address: r.Address,
			TokenID: r.TokenID,
			Amount:  amt,
			Action:  uint8(r.Action),
			To:      r.To,
		}
	}
	return rlp.EncodeToBytes(rlpRawTransaction{
		ChainID:     raw.ChainID,
		CyclesPrice: raw.CyclesPrice,
		CyclesLimit: raw.CyclesLimit,
		Nonce:       raw.Nonce,
		Requests:    reqs,
		Timeout:     raw.Timeout,
		Sender:      raw.Sender,
	})
}

// DecodeRawTransaction is the inverse of EncodeRawTransaction.
func DecodeRawTransaction(data []byte) (RawTransaction, error) {
	var dec rlpRawTransaction
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return RawTransaction{}, err
	}
	reqs := make([]Request, len(dec.Requests))
	for i, r := range dec.Requests {
		reqs[i] = Request{
			Address: r.Address,
			TokenID: r.TokenID,
			Amount:  r.Amount,
			Action:  Action(r.Action),
			To:      r.To,
		}
	}
	return RawTransaction{
		ChainID:     dec.ChainID,
		CyclesPrice: dec.CyclesPrice,
		CyclesLimit: dec.CyclesLimit,
		Nonce:       dec.Nonce,
		Requests:    reqs,
		Timeout:     dec.Timeout,
		Sender:      dec.Sender,
	}, nil
}

// TxHash computes tx_hash = H(encode(raw)), the sole function of raw.
func TxHash(raw RawTransaction) (Hash, error) {
	enc, err := EncodeRawTransaction(raw)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(enc), nil
}

type rlpHeader struct {
	ChainID         uint64
	Number          uint64
	PrevHash        Hash
	TimestampMs     int64
	TransactionRoot Hash
	StateRoot       Hash
	CyclesLimit     uint64
	Proposer        Address
}

// EncodeHeader produces the canonical encoding hashed to form a block's
// identity in the chain store's blocks-by-hash index.
func EncodeHeader(h Header) ([]byte, error) {
	return rlp.EncodeToBytes(rlpHeader{
		ChainID:         h.ChainID,
		Number:          h.Number,
		PrevHash:        h.PrevHash,
		TimestampMs:     h.TimestampMs,
		TransactionRoot: h.TransactionRoot,
		StateRoot:       h.StateRoot,
		CyclesLimit:     h.CyclesLimit,
		Proposer:        h.Proposer,
	})
}

type rlpAccount struct {
	Address     Address
	BalanceRoot Hash
}

// EncodeAccount encodes an Account for storage as a state-trie leaf.
func EncodeAccount(a Account) ([]byte, error) {
	return rlp.EncodeToBytes(rlpAccount{Address: a.Address, BalanceRoot: a.BalanceRoot})
}

// DecodeAccount is the inverse of EncodeAccount.
func DecodeAccount(data []byte) (Account, error) {
	var dec rlpAccount
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return Account{}, err
	}
	return Account{Address: dec.Address, BalanceRoot: dec.BalanceRoot}, nil
}

type rlpTokenBalance struct {
	Locked *uint256.Int
	Active *uint256.Int
}

// EncodeTokenBalance encodes a TokenBalance for storage as a balance-trie leaf.
func EncodeTokenBalance(b TokenBalance) ([]byte, error) {
	locked, active := b.Locked, b.Active
	if locked == nil {
		locked = uint256.NewInt(0)
	}
	if active == nil {
		active = uint256.NewInt(0)
	}
	return rlp.EncodeToBytes(rlpTokenBalance{Locked: locked, Active: active})
}

// DecodeTokenBalance is the inverse of EncodeTokenBalance.
func DecodeTokenBalance(data []byte) (TokenBalance, error) {
	var dec rlpTokenBalance
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return TokenBalance{}, err
	}
	return TokenBalance{Locked: dec.Locked, Active: dec.Active}, nil
}

type rlpBlock struct {
	Header rlpHeader
	Txs    [][]byte
}

// EncodeBlock encodes a full Block (header plus signed transactions) for
// the blocks-by-hash chain-store index.
func EncodeBlock(b Block) ([]byte, error) {
	txs := make([][]byte, len(b.Txs))
	for i, stx := range b.Txs {
		enc, err := EncodeSignedTransaction(stx)
		if err != nil {
			return nil, err
		}
		txs[i] = enc
	}
	h := b.Header
	return rlp.EncodeToBytes(rlpBlock{
		Header: rlpHeader{
			ChainID:         h.ChainID,
			Number:          h.Number,
			PrevHash:        h.PrevHash,
			TimestampMs:     h.TimestampMs,
			TransactionRoot: h.TransactionRoot,
			StateRoot:       h.StateRoot,
			CyclesLimit:     h.CyclesLimit,
			Proposer:        h.Proposer,
		},
		Txs: txs,
	})
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (Block, error) {
	var dec rlpBlock
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return Block{}, err
	}
	txs := make([]SignedTransaction, len(dec.Txs))
	for i, enc := range dec.Txs {
		stx, err := DecodeSignedTransaction(enc)
		if err != nil {
			return Block{}, err
		}
		txs[i] = stx
	}
	return Block{
		Header: Header{
			ChainID:         dec.Header.ChainID,
			Number:          dec.Header.Number,
			PrevHash:        dec.Header.PrevHash,
			TimestampMs:     dec.Header.TimestampMs,
			TransactionRoot: dec.Header.TransactionRoot,
			StateRoot:       dec.Header.StateRoot,
			CyclesLimit:     dec.Header.CyclesLimit,
			Proposer:        dec.Header.Proposer,
		},
		Txs: txs,
	}, nil
}

type rlpExecuteResponse struct {
	TxHash    Hash
	Ret       []byte
	HasError  bool
	ErrCode   uint32
	ErrReason string
}

// EncodeExecuteResponse encodes a single transaction's execution receipt
// for the receipts-by-hash chain-store index.
func EncodeExecuteResponse(r ExecuteResponse) ([]byte, error) {
	wire := rlpExecuteResponse{TxHash: r.TxHash, Ret: r.Ret}
	if r.Error != nil {
		wire.HasError = true
		wire.ErrCode = r.Error.Code
		wire.ErrReason = r.Error.Message
	}
	return rlp.EncodeToBytes(wire)
}

// DecodeExecuteResponse is the inverse of EncodeExecuteResponse.
func DecodeExecuteResponse(data []byte) (ExecuteResponse, error) {
	var wire rlpExecuteResponse
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return ExecuteResponse{}, err
	}
	r := ExecuteResponse{TxHash: wire.TxHash, Ret: wire.Ret}
	if wire.HasError {
		r.Error = &ExecError{Code: wire.ErrCode, Message: wire.ErrReason}
	}
	return r, nil
}

// EncodeSignedTransaction encodes a SignedTransaction for chain-store
// persistence (transactions-by-hash index).
func EncodeSignedTransaction(stx SignedTransaction) ([]byte, error) {
	raw, err := EncodeRawTransaction(stx.Raw)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(struct {
		Raw       []byte
		TxHash    Hash
		PubKey    []byte
		Signature []byte
	}{raw, stx.TxHash, stx.PubKey, stx.Signature})
}

// DecodeSignedTransaction is the inverse of EncodeSignedTransaction.
func DecodeSignedTransaction(data []byte) (SignedTransaction, error) {
	var dec struct {
		Raw       []byte
		TxHash    Hash
		PubKey    []byte
		Signature []byte
	}
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return SignedTransaction{}, err
	}
	raw, err := DecodeRawTransaction(dec.Raw)
	if err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{Raw: raw, TxHash: dec.TxHash, PubKey: dec.PubKey, Signature: dec.Signature}, nil
}
