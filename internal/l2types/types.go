// Package l2types defines the token-tier data model: accounts, per-token
// balances, token-action transactions and the blocks that carry them.
package l2types

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"
)

// AddressLength is the width of a token-tier account address.
const AddressLength = 20

// Address identifies one account in the state trie.
type Address [AddressLength]byte

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// BytesToAddress left-pads or truncates b into an Address.
func BytesToAddress(b []byte) (a Address) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// TokenID identifies one balance entry within an account's balance trie.
type TokenID [32]byte

func (t TokenID) String() string { return "0x" + hex.EncodeToString(t[:]) }

// Hash is a 32-byte content digest, Blake3 throughout the token tier.
type Hash [32]byte

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero empty-trie marker.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashBytes returns the Blake3-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// MerkleRoot is a complete binary merkle tree over an ordered sequence of
// already-encoded leaves, each hashed and pairwise combined with
// HashBytes, duplicating the last leaf up a level when its count is odd.
// An empty leaf set's root is the zero digest, matching an empty-tx-list
// block's transaction_root.
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

// Account is the value stored in the state trie, keyed by Address.
type Account struct {
	Address     Address
	BalanceRoot Hash
}

// EmptyBalanceRoot is the sentinel root of an account with no touched
// balances: the all-zero marker used to lazily materialise a sub-trie.
var EmptyBalanceRoot = Hash{}

// TokenBalance is the value stored in an account's balance trie, keyed by
// TokenID. A balance is "uninitialised" iff both fields are zero, which
// drives lazy seeding into the executor cache (§4.3).
type TokenBalance struct {
	Locked *uint256.Int
	Active *uint256.Int
}

// NewTokenBalance returns a zeroed, uninitialised balance.
func NewTokenBalance() TokenBalance {
	return TokenBalance{Locked: uint256.NewInt(0), Active: uint256.NewInt(0)}
}

// Uninitialized reports whether the balance has never been touched.
func (b TokenBalance) Uninitialized() bool {
	return (b.Locked == nil || b.Locked.IsZero()) && (b.Active == nil || b.Active.IsZero())
}

// Clone returns a deep copy, so tx_cache mutation never aliases block_cache.
func (b TokenBalance) Clone() TokenBalance {
	out := TokenBalance{Locked: uint256.NewInt(0), Active: uint256.NewInt(0)}
	if b.Locked != nil {
		out.Locked.Set(b.Locked)
	}
	if b.Active != nil {
		out.Active.Set(b.Active)
	}
	return out
}

// Action is one of the four (five, with Transfer) token-tier alphabet
// entries applied by a Request.
type Action uint8

const (
	ActionMint Action = iota
	ActionLock
	ActionUnlock
	ActionDivert
	// ActionTransfer is the extended action resolved by §9 note 1: it moves
	// amount from the sender's active balance to a recipient's active
	// balance, failing on underflow like Divert.
	ActionTransfer
)

func (a Action) String() string {
	switch a {
	case ActionMint:
		return "Mint"
	case ActionLock:
		return "Lock"
	case ActionUnlock:
		return "Unlock"
	case ActionDivert:
		return "Divert"
	case ActionTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Request is one line item of a RawTransaction.
type Request struct {
	Address Address
	TokenID TokenID
	Amount  *uint256.Int
	Action  Action
	// To is the recipient for ActionTransfer; zero for every other action.
	To Address
}

// RawTransaction is the unsigned payload a sender signs over.
type RawTransaction struct {
	ChainID     uint64
	CyclesPrice uint64
	CyclesLimit uint64
	Nonce       [32]byte
	Requests    []Request
	Timeout     uint64
	Sender      Address
}

// SignedTransaction wraps a RawTransaction with its hash, the signer's
// public key and a 65-byte recoverable ECDSA signature.
type SignedTransaction struct {
	Raw       RawTransaction
	TxHash    Hash
	PubKey    []byte
	Signature []byte
}

// LogDirection records which way a successful request moved funds, for the
// per-transaction log trail kept in the executor's log_cache.
type LogDirection uint8

const (
	LogActiveAdd LogDirection = iota
	LogActiveToLock
	LogLockToActive
	LogActiveReduce
)

// Log is one cache-committed effect of a single request.
type Log struct {
	Address   Address
	TokenID   TokenID
	Amount    *uint256.Int
	Direction LogDirection
}

// Header is the block header committed to the chain store.
type Header struct {
	ChainID          uint64
	Number           uint64
	PrevHash         Hash
	TimestampMs      int64
	TransactionRoot  Hash
	StateRoot        Hash
	CyclesLimit      uint64
	Proposer         Address
}

// Block is a header plus the ordered transactions it carries.
type Block struct {
	Header Header
	Txs    []SignedTransaction
}

// Hash returns the Blake3 digest of the block header's canonical encoding.
func (h Header) Hash() (Hash, error) {
	enc, err := EncodeHeader(h)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(enc), nil
}

// ExecError is the per-transaction execution failure recorded in a
// BlockExecuteResponse; it never aborts the surrounding block.
type ExecError struct {
	Code    uint32
	Message string
}

func (e *ExecError) Error() string { return e.Message }

const (
	ErrCodeActiveLessThanLock     uint32 = 1
	ErrCodeLockedLessThanUnlock   uint32 = 2
	ErrCodeActiveLessThanDivert   uint32 = 3
	ErrCodeActiveLessThanTransfer uint32 = 4
)

// ExecuteResponse is the per-transaction outcome of executing a block.
type ExecuteResponse struct {
	TxHash Hash
	Ret    []byte
	Error  *ExecError
}

// BlockExecuteResponse is the executor's overall verdict for one block.
type BlockExecuteResponse struct {
	StateRoot Hash
	Responses []ExecuteResponse
}
