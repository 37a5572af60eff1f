// Package l3types defines the channel-tier data model: two-party payment
// channels keyed into a sparse merkle tree, and the transactions
// (CreateChannel/UpdateChannel/CloseChannel) that mutate them.
package l3types

import (
	"encoding/hex"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"
)

// AddressLength is the width of a channel-tier participant address.
const AddressLength = 20

// Address identifies one channel participant.
type Address [AddressLength]byte

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Hash is a 32-byte content digest, Blake2b-256 throughout the channel
// tier, domain-separated from any other Blake2b use in the process by a
// fixed personalization tag prefixed onto every hashed message.
type Hash [32]byte

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// ChannelID keys one channel into the channel sparse merkle tree.
type ChannelID [32]byte

func (c ChannelID) String() string { return "0x" + hex.EncodeToString(c[:]) }

// personalizationTag domain-separates channel-tier hashes; exactly 14
// bytes per the tier's pinned hash contract.
var personalizationTag = [14]byte{'c', 'v', 'l', 'n', 't', '-', 'c', 'h', 'a', 'n', 'n', 'e', 'l', '2'}

// HashBytes returns the personalized Blake2b-256 digest of data.
func HashBytes(data []byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // New256(nil) with a 32-byte output never errors
	}
	h.Write(personalizationTag[:])
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ChannelStatus is a channel's lifecycle state.
type ChannelStatus uint8

const (
	StatusOpen ChannelStatus = iota
	StatusClosed
)

func (s ChannelStatus) String() string {
	if s == StatusClosed {
		return "Closed"
	}
	return "Open"
}

// Channel is the value stored in the channel sparse merkle tree, keyed by
// ChannelID.
type Channel struct {
	ChannelID ChannelID
	PartyA    Address
	PartyB    Address
	BalanceA  *uint256.Int
	BalanceB  *uint256.Int
	Nonce     uint64
	Status    ChannelStatus
}

// NewChannel returns a freshly opened channel with the given initial
// balances and nonce 0.
func NewChannel(id ChannelID, partyA, partyB Address, balanceA, balanceB *uint256.Int) Channel {
	return Channel{
		ChannelID: id,
		PartyA:    partyA,
		PartyB:    partyB,
		BalanceA:  balanceA,
		BalanceB:  balanceB,
		Nonce:     0,
		Status:    StatusOpen,
	}
}

// TxKind discriminates the tagged union a RawTransaction carries.
type TxKind uint8

const (
	KindCreateChannel TxKind = iota
	KindUpdateChannel
	KindCloseChannel
)

func (k TxKind) String() string {
	switch k {
	case KindCreateChannel:
		return "CreateChannel"
	case KindUpdateChannel:
		return "UpdateChannel"
	case KindCloseChannel:
		return "CloseChannel"
	default:
		return "Unknown"
	}
}

// RawTransaction is the unsigned payload the submitter signs over. Fields
// not meaningful to Kind are left zero: CreateChannel uses ChannelID,
// PartyA/PartyB and BalanceA/BalanceB as the initial deposits; Update and
// Close use ChannelID, Nonce and BalanceA/BalanceB as the new/final state,
// counter-signed by the channel's other party.
type RawTransaction struct {
	Kind      TxKind
	ChannelID ChannelID
	Nonce     uint64
	PartyA    Address
	PartyB    Address
	BalanceA  *uint256.Int
	BalanceB  *uint256.Int
}

// SignedTransaction wraps a RawTransaction with its hash, the submitter's
// public key and ECDSA signature, and — for UpdateChannel/CloseChannel —
// the counterparty's signature over the same raw payload. CreateChannel
// carries no counterparty signature: verify_signature2 is only asked to
// recover and check two signers when a transaction mutates an already
// co-owned channel.
type SignedTransaction struct {
	Raw                RawTransaction
	TxHash             Hash
	PubKey             []byte
	Signature          []byte
	CounterpartyPubKey []byte
	CounterpartySig    []byte
}

// Action effects recorded for one committed transaction, mirroring the
// token tier's log trail (§4.4).
type LogKind uint8

const (
	LogChannelOpened LogKind = iota
	LogChannelUpdated
	LogChannelClosed
)

type Log struct {
	ChannelID ChannelID
	Kind      LogKind
}

// ExecError is a per-transaction execution failure; like the token tier,
// it never aborts the surrounding block.
type ExecError struct {
	Code    uint32
	Message string
}

func (e *ExecError) Error() string { return e.Message }

const (
	ErrCodeChannelExists          uint32 = 1
	ErrCodeChannelNotFound        uint32 = 2
	ErrCodeChannelClosed          uint32 = 3
	ErrCodeBadNonce               uint32 = 4
	ErrCodeBalanceMismatch        uint32 = 5
	ErrCodeInvalidSignature       uint32 = 6
	ErrCodeInvalidCounterparty    uint32 = 7
	ErrCodeRollbackChannelVersion uint32 = 8
	ErrCodeUpdateChannelSignature uint32 = 9
)

// ExecuteResponse is the per-transaction outcome of executing a block.
type ExecuteResponse struct {
	TxHash Hash
	Ret    []byte
	Error  *ExecError
}

// BlockExecuteResponse is the executor's overall verdict for one block.
type BlockExecuteResponse struct {
	StateRoot   Hash
	ReceiptRoot Hash
	Responses   []ExecuteResponse
}

// Header is the channel-tier block header committed to the chain store.
type Header struct {
	ChainID         uint64
	Number          uint64
	PrevHash        Hash
	TimestampMs     int64
	TransactionRoot Hash
	ReceiptRoot     Hash
	StateRoot       Hash
	Proposer        Address
}

// MerkleRoot is the tier's CBMT: a complete binary merkle tree over an
// ordered sequence of already-encoded leaves, each hashed and combined
// with the tier's own domain-separated Blake2b. An empty leaf set's root
// is the zero digest, matching an empty-tx-list block's transaction_root.
func MerkleRoot(leaves [][]byte) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	for i, l := range leaves {
		level[i] = HashBytes(l)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte(nil), level[i][:]...), level[i+1][:]...)
			next[i/2] = HashBytes(pair)
		}
		level = next
	}
	return level[0]
}

// Block is a header plus the ordered transactions it carries.
type Block struct {
	Header Header
	Txs    []SignedTransaction
}

// Hash returns the digest of the block header's canonical encoding.
func (h Header) Hash() (Hash, error) {
	return HashBytes(EncodeHeader(h)), nil
}
