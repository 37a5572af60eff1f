package l3types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// This tier's canonical encoding is hand-rolled binary concatenation
// rather than a self-describing codec. The hashed payloads (raw
// transactions, channels, headers) are fixed-width field by field, so
// there is nothing to frame and they are cheap to re-derive byte-for-byte
// when checking a signature; signed transactions, blocks and receipts add
// 4-byte little-endian length prefixes for their variable-size fields.

func putUint256(buf *bytes.Buffer, v *uint256.Int) {
	if v == nil {
		v = uint256.NewInt(0)
	}
	b := v.Bytes32()
	buf.Write(b[:])
}

func readUint256(r *bytes.Reader) (*uint256.Int, error) {
	var b [32]byte
	if _, err := r.Read(b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b[:]), nil
}

// EncodeRawTransaction produces the canonical fixed-width encoding of raw,
// the sole input to tx_hash = H(encode(raw)).
func EncodeRawTransaction(raw RawTransaction) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(raw.Kind))
	buf.Write(raw.ChannelID[:])
	binary.Write(&buf, binary.LittleEndian, raw.Nonce)
	buf.Write(raw.PartyA[:])
	buf.Write(raw.PartyB[:])
	putUint256(&buf, raw.BalanceA)
	putUint256(&buf, raw.BalanceB)
	return buf.Bytes()
}

// DecodeRawTransaction is the inverse of EncodeRawTransaction.
func DecodeRawTransaction(data []byte) (RawTransaction, error) {
	r := bytes.NewReader(data)
	var raw RawTransaction
	kindByte, err := r.ReadByte()
	if err != nil {
		return RawTransaction{}, err
	}
	raw.Kind = TxKind(kindByte)
	if _, err := r.Read(raw.ChannelID[:]); err != nil {
		return RawTransaction{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &raw.Nonce); err != nil {
		return RawTransaction{}, err
	}
	if _, err := r.Read(raw.PartyA[:]); err != nil {
		return RawTransaction{}, err
	}
	if _, err := r.Read(raw.PartyB[:]); err != nil {
		return RawTransaction{}, err
	}
	if raw.BalanceA, err = readUint256(r); err != nil {
		return RawTransaction{}, err
	}
	if raw.BalanceB, err = readUint256(r); err != nil {
		return RawTransaction{}, err
	}
	return raw, nil
}

// TxHash computes tx_hash = H(encode(raw)).
func TxHash(raw RawTransaction) Hash {
	return HashBytes(EncodeRawTransaction(raw))
}

func lenPrefixed(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var l [4]byte
	if _, err := r.Read(l[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(l[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// EncodeSignedTransaction encodes a SignedTransaction for chain-store
// persistence (transactions-by-hash index).
func EncodeSignedTransaction(stx SignedTransaction) []byte {
	var buf bytes.Buffer
	lenPrefixed(&buf, EncodeRawTransaction(stx.Raw))
	buf.Write(stx.TxHash[:])
	lenPrefixed(&buf, stx.PubKey)
	lenPrefixed(&buf, stx.Signature)
	lenPrefixed(&buf, stx.CounterpartyPubKey)
	lenPrefixed(&buf, stx.CounterpartySig)
	return buf.Bytes()
}

// DecodeSignedTransaction is the inverse of EncodeSignedTransaction.
func DecodeSignedTransaction(data []byte) (SignedTransaction, error) {
	r := bytes.NewReader(data)
	rawEnc, err := readLenPrefixed(r)
	if err != nil {
		return SignedTransaction{}, err
	}
	raw, err := DecodeRawTransaction(rawEnc)
	if err != nil {
		return SignedTransaction{}, err
	}
	var stx SignedTransaction
	stx.Raw = raw
	if _, err := r.Read(stx.TxHash[:]); err != nil {
		return SignedTransaction{}, err
	}
	if stx.PubKey, err = readLenPrefixed(r); err != nil {
		return SignedTransaction{}, err
	}
	if stx.Signature, err = readLenPrefixed(r); err != nil {
		return SignedTransaction{}, err
	}
	if stx.CounterpartyPubKey, err = readLenPrefixed(r); err != nil {
		return SignedTransaction{}, err
	}
	if stx.CounterpartySig, err = readLenPrefixed(r); err != nil {
		return SignedTransaction{}, err
	}
	return stx, nil
}

// EncodeChannel encodes a Channel for storage as a channel sparse merkle
// tree leaf.
func EncodeChannel(c Channel) []byte {
	var buf bytes.Buffer
	buf.Write(c.ChannelID[:])
	buf.Write(c.PartyA[:])
	buf.Write(c.PartyB[:])
	putUint256(&buf, c.BalanceA)
	putUint256(&buf, c.BalanceB)
	binary.Write(&buf, binary.LittleEndian, c.Nonce)
	buf.WriteByte(byte(c.Status))
	return buf.Bytes()
}

// DecodeChannel is the inverse of EncodeChannel.
func DecodeChannel(data []byte) (Channel, error) {
	r := bytes.NewReader(data)
	var c Channel
	var err error
	if _, err = r.Read(c.ChannelID[:]); err != nil {
		return Channel{}, err
	}
	if _, err = r.Read(c.PartyA[:]); err != nil {
		return Channel{}, err
	}
	if _, err = r.Read(c.PartyB[:]); err != nil {
		return Channel{}, err
	}
	if c.BalanceA, err = readUint256(r); err != nil {
		return Channel{}, err
	}
	if c.BalanceB, err = readUint256(r); err != nil {
		return Channel{}, err
	}
	if err = binary.Read(r, binary.LittleEndian, &c.Nonce); err != nil {
		return Channel{}, err
	}
	statusByte, err := r.ReadByte()
	if err != nil {
		return Channel{}, err
	}
	c.Status = ChannelStatus(statusByte)
	return c, nil
}

// EncodeHeader produces the canonical encoding hashed to form a block's
// identity in the chain store's blocks-by-hash index.
func EncodeHeader(h Header) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, h.ChainID)
	binary.Write(&buf, binary.LittleEndian, h.Number)
	buf.Write(h.PrevHash[:])
	binary.Write(&buf, binary.LittleEndian, h.TimestampMs)
	buf.Write(h.TransactionRoot[:])
	buf.Write(h.ReceiptRoot[:])
	buf.Write(h.StateRoot[:])
	buf.Write(h.Proposer[:])
	return buf.Bytes()
}

// EncodeBlock encodes a full Block for the blocks-by-hash chain-store
// index.
func EncodeBlock(b Block) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeHeader(b.Header))
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b.Txs)))
	buf.Write(n[:])
	for _, stx := range b.Txs {
		lenPrefixed(&buf, EncodeSignedTransaction(stx))
	}
	return buf.Bytes()
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (Block, error) {
	const headerLen = 8 + 8 + 32 + 8 + 32 + 32 + 32 + AddressLength
	if len(data) < headerLen {
		return Block{}, fmt.Errorf("l3types: short block encoding")
	}
	headerBytes := data[:headerLen]
	r := bytes.NewReader(headerBytes)
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.ChainID); err != nil {
		return Block{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Number); err != nil {
		return Block{}, err
	}
	if _, err := r.Read(h.PrevHash[:]); err != nil {
		return Block{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.TimestampMs); err != nil {
		return Block{}, err
	}
	if _, err := r.Read(h.TransactionRoot[:]); err != nil {
		return Block{}, err
	}
	if _, err := r.Read(h.ReceiptRoot[:]); err != nil {
		return Block{}, err
	}
	if _, err := r.Read(h.StateRoot[:]); err != nil {
		return Block{}, err
	}
	if _, err := r.Read(h.Proposer[:]); err != nil {
		return Block{}, err
	}

	rest := bytes.NewReader(data[headerLen:])
	var count [4]byte
	if _, err := rest.Read(count[:]); err != nil {
		return Block{}, err
	}
	n := binary.LittleEndian.Uint32(count[:])
	txs := make([]SignedTransaction, 0, n)
	for i := uint32(0); i < n; i++ {
		enc, err := readLenPrefixed(rest)
		if err != nil {
			return Block{}, err
		}
		stx, err := DecodeSignedTransaction(enc)
		if err != nil {
			return Block{}, err
		}
		txs = append(txs, stx)
	}
	return Block{Header: h, Txs: txs}, nil
}

// EncodeExecuteResponse encodes a single transaction's execution receipt.
func EncodeExecuteResponse(resp ExecuteResponse) []byte {
	var buf bytes.Buffer
	buf.Write(resp.TxHash[:])
	lenPrefixed(&buf, resp.Ret)
	if resp.Error != nil {
		buf.WriteByte(1)
		binary.Write(&buf, binary.LittleEndian, resp.Error.Code)
		lenPrefixed(&buf, []byte(resp.Error.Message))
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeExecuteResponse is the inverse of EncodeExecuteResponse.
func DecodeExecuteResponse(data []byte) (ExecuteResponse, error) {
	r := bytes.NewReader(data)
	var resp ExecuteResponse
	if _, err := r.Read(resp.TxHash[:]); err != nil {
		return ExecuteResponse{}, err
	}
	ret, err := readLenPrefixed(r)
	if err != nil {
		return ExecuteResponse{}, err
	}
	resp.Ret = ret
	hasErr, err := r.ReadByte()
	if err != nil {
		return ExecuteResponse{}, err
	}
	if hasErr == 1 {
		var code uint32
		if err := binary.Read(r, binary.LittleEndian, &code); err != nil {
			return ExecuteResponse{}, err
		}
		msg, err := readLenPrefixed(r)
		if err != nil {
			return ExecuteResponse{}, err
		}
		resp.Error = &ExecError{Code: code, Message: string(msg)}
	}
	return resp, nil
}
