// Package oracle is the thin typed façade over the shared KV store that
// both tiers' cross-tier machinery reads and writes (§4.9): the last
// confirmed channel-tier block number, the channel ids a confirmed
// withdrawal has settled, the channel ids awaiting settlement, and the
// create-channel requests awaiting the relayer's signature.
package oracle

import (
	"encoding/binary"

	"covalent/internal/kv"
	"covalent/internal/l3types"
	"github.com/holiman/uint256"
)

const (
	nsOracle = "oracle"

	keyConfirmedBlock       = "confirmed_l3_block"
	keyConfirmedWithdrawals = "confirmed_l3_withdrawals"
	keyPendingWithdrawals   = "pending_l3_withdrawals"
	keyPendingCreates       = "pending_create_channel_requests"
)

// Namespaces returns the bucket(s) this façade needs.
func Namespaces() []string { return []string{nsOracle} }

// Oracle is a narrow, four-key view over the shared KV store.
type Oracle struct {
	kv *kv.Store
}

// New wraps an already-open KV store; it must include Namespaces().
func New(store *kv.Store) *Oracle { return &Oracle{kv: store} }

// ConfirmedBlock returns the number of the last channel-tier block the
// token tier has observed settled. ok is false before the very first
// settlement tick, distinguishing "nothing confirmed yet" from "block
// zero confirmed" (both token-tier and channel-tier chains start
// numbering at zero).
func (o *Oracle) ConfirmedBlock() (n uint64, ok bool, err error) {
	v, found, err := o.kv.Get(nsOracle, []byte(keyConfirmedBlock))
	if err != nil || !found {
		return 0, false, err
	}
	return binary.LittleEndian.Uint64(v), true, nil
}

// SetConfirmedBlock advances the confirmed-block watermark.
func (o *Oracle) SetConfirmedBlock(n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return o.kv.Put(nsOracle, []byte(keyConfirmedBlock), b[:])
}

func (o *Oracle) readChannelIDs(key string) ([]l3types.ChannelID, error) {
	v, ok, err := o.kv.Get(nsOracle, []byte(key))
	if err != nil || !ok {
		return nil, err
	}
	out := make([]l3types.ChannelID, 0, len(v)/32)
	for i := 0; i+32 <= len(v); i += 32 {
		var id l3types.ChannelID
		copy(id[:], v[i:i+32])
		out = append(out, id)
	}
	return out, nil
}

func (o *Oracle) writeChannelIDs(key string, ids []l3types.ChannelID) error {
	buf := make([]byte, 0, len(ids)*32)
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	return o.kv.Put(nsOracle, []byte(key), buf)
}

// ConfirmedWithdrawals lists the channel ids whose withdrawal has
// already settled on the token tier.
func (o *Oracle) ConfirmedWithdrawals() ([]l3types.ChannelID, error) {
	return o.readChannelIDs(keyConfirmedWithdrawals)
}

// AppendConfirmedWithdrawal records id as settled.
func (o *Oracle) AppendConfirmedWithdrawal(id l3types.ChannelID) error {
	ids, err := o.ConfirmedWithdrawals()
	if err != nil {
		return err
	}
	return o.writeChannelIDs(keyConfirmedWithdrawals, append(ids, id))
}

// PendingWithdrawals lists channel ids closed on the channel tier but not
// yet settled on the token tier.
func (o *Oracle) PendingWithdrawals() ([]l3types.ChannelID, error) {
	return o.readChannelIDs(keyPendingWithdrawals)
}

// SetPendingWithdrawals overwrites the pending-withdrawal list wholesale.
func (o *Oracle) SetPendingWithdrawals(ids []l3types.ChannelID) error {
	return o.writeChannelIDs(keyPendingWithdrawals, ids)
}

// AppendPendingWithdrawal queues id for the next settlement tick.
func (o *Oracle) AppendPendingWithdrawal(id l3types.ChannelID) error {
	ids, err := o.PendingWithdrawals()
	if err != nil {
		return err
	}
	return o.writeChannelIDs(keyPendingWithdrawals, append(ids, id))
}

// CreateChannelRequest is one pending channel open, awaiting the
// relayer's signature before submission to the channel mempool.
type CreateChannelRequest struct {
	ChannelID l3types.ChannelID
	PartyA    l3types.Address
	PartyB    l3types.Address
	BalanceA  *uint256.Int
	BalanceB  *uint256.Int
}

const createRequestLen = 32 + 20 + 20 + 32 + 32

func encodeCreateRequest(r CreateChannelRequest) []byte {
	out := make([]byte, 0, createRequestLen)
	out = append(out, r.ChannelID[:]...)
	out = append(out, r.PartyA[:]...)
	out = append(out, r.PartyB[:]...)
	balA, balB := r.BalanceA, r.BalanceB
	if balA == nil {
		balA = uint256.NewInt(0)
	}
	if balB == nil {
		balB = uint256.NewInt(0)
	}
	a32, b32 := balA.Bytes32(), balB.Bytes32()
	out = append(out, a32[:]...)
	out = append(out, b32[:]...)
	return out
}

func decodeCreateRequest(b []byte) CreateChannelRequest {
	var r CreateChannelRequest
	copy(r.ChannelID[:], b[0:32])
	copy(r.PartyA[:], b[32:52])
	copy(r.PartyB[:], b[52:72])
	r.BalanceA = new(uint256.Int).SetBytes(b[72:104])
	r.BalanceB = new(uint256.Int).SetBytes(b[104:136])
	return r
}

// PendingCreateChannelRequests lists channel opens awaiting the relayer.
func (o *Oracle) PendingCreateChannelRequests() ([]CreateChannelRequest, error) {
	v, ok, err := o.kv.Get(nsOracle, []byte(keyPendingCreates))
	if err != nil || !ok {
		return nil, err
	}
	out := make([]CreateChannelRequest, 0, len(v)/createRequestLen)
	for i := 0; i+createRequestLen <= len(v); i += createRequestLen {
		out = append(out, decodeCreateRequest(v[i:i+createRequestLen]))
	}
	return out, nil
}

// QueueCreateChannelRequest appends a new pending open.
func (o *Oracle) QueueCreateChannelRequest(r CreateChannelRequest) error {
	existing, ok, err := o.kv.Get(nsOracle, []byte(keyPendingCreates))
	if err != nil {
		return err
	}
	if !ok {
		existing = nil
	}
	return o.kv.Put(nsOracle, []byte(keyPendingCreates), append(existing, encodeCreateRequest(r)...))
}

// ClearPendingCreateChannelRequests drops every queued open, called by the
// relayer once it has submitted them all to the channel mempool.
func (o *Oracle) ClearPendingCreateChannelRequests() error {
	return o.kv.Put(nsOracle, []byte(keyPendingCreates), nil)
}
