// Package relayer implements the cross-tier shuttle (§4.9): the Relayer
// drains channel-open requests queued on the oracle into signed
// CreateChannel transactions submitted to the channel tier's RPC
// surface, and Settlement walks newly committed channel-tier blocks
// forward, handing each one to a Relay so a closed channel's final
// balances land back on the token tier. Both talk to the tier nodes as
// external JSON-RPC clients — the relayer is a separate process from
// either tier node, so it has no direct handle on their in-memory
// mempools or open chain stores.
package relayer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"covalent/internal/l2types"
	"covalent/internal/l3types"
	"covalent/internal/oracle"
	"covalent/internal/rpcclient"
	"covalent/pkg/wallet"
)

// Relayer owns a wallet and turns the oracle's pending channel-open
// queue into signed, submitted CreateChannel transactions. It always
// opens channels as PartyA: a request queued with a different PartyA is
// not one this relayer can sign for, so it is skipped rather than
// submitted under the wrong identity.
type Relayer struct {
	oracle   *oracle.Oracle
	wallet   *wallet.Wallet
	l3Client *rpcclient.Client
	log      *logrus.Entry
}

// New returns a Relayer backed by o, signing with w, submitting to the
// channel tier node reachable at l3Client.
func New(o *oracle.Oracle, w *wallet.Wallet, l3Client *rpcclient.Client, log *logrus.Entry) *Relayer {
	return &Relayer{oracle: o, wallet: w, l3Client: l3Client, log: log}
}

// DrainPendingCreates signs and submits every queued create-channel
// request, then clears the queue. A request this relayer cannot sign for
// (PartyA mismatch) is logged and dropped rather than retried forever.
func (r *Relayer) DrainPendingCreates() error {
	reqs, err := r.oracle.PendingCreateChannelRequests()
	if err != nil {
		return fmt.Errorf("relayer: read pending creates: %w", err)
	}
	if len(reqs) == 0 {
		return nil
	}

	self := r.wallet.Address()
	for _, req := range reqs {
		if req.PartyA != self {
			r.log.WithField("channel_id", req.ChannelID.String()).Warn("dropping create-channel request whose party_a is not the relayer")
			continue
		}
		raw := l3types.RawTransaction{
			Kind:      l3types.KindCreateChannel,
			ChannelID: req.ChannelID,
			PartyA:    req.PartyA,
			PartyB:    req.PartyB,
			BalanceA:  req.BalanceA,
			BalanceB:  req.BalanceB,
		}
		hash := l3types.TxHash(raw)
		sig, err := r.wallet.Sign(hash)
		if err != nil {
			return fmt.Errorf("relayer: sign create-channel %s: %w", req.ChannelID, err)
		}
		stx := l3types.SignedTransaction{
			Raw:       raw,
			TxHash:    hash,
			PubKey:    r.wallet.PublicKeyBytes(),
			Signature: sig,
		}
		data := hex.EncodeToString(l3types.EncodeSignedTransaction(stx))
		if err := r.l3Client.Call("send_channel_transaction", map[string]string{"data": data}, nil); err != nil {
			return fmt.Errorf("relayer: submit create-channel %s: %w", req.ChannelID, err)
		}
	}
	return r.oracle.ClearPendingCreateChannelRequests()
}

// Relay hands a confirmed channel-tier block's outcomes to the token
// tier. Implementations decide what, if anything, to submit there.
type Relay interface {
	Submit(block l3types.Block) error
}

// Settlement advances the oracle's confirmed-block watermark one
// channel-tier block at a time, handing each newly available block to a
// Relay before recording it as confirmed.
type Settlement struct {
	oracle   *oracle.Oracle
	l3Client *rpcclient.Client
	relay    Relay
	log      *logrus.Entry
}

// NewSettlement returns a Settlement driving relay forward by reading
// committed blocks from the channel tier node at l3Client.
func NewSettlement(o *oracle.Oracle, l3Client *rpcclient.Client, relay Relay, log *logrus.Entry) *Settlement {
	return &Settlement{oracle: o, l3Client: l3Client, relay: relay, log: log}
}

// Tick submits at most one newly committed channel-tier block upward,
// advancing the confirmed watermark on success. It is a no-op if the
// next block has not been committed yet.
func (s *Settlement) Tick() error {
	confirmed, ok, err := s.oracle.ConfirmedBlock()
	if err != nil {
		return fmt.Errorf("settlement: read confirmed block: %w", err)
	}
	next := uint64(0)
	if ok {
		next = confirmed + 1
	}

	var block l3types.Block
	err = s.l3Client.Call("get_block_by_number", map[string]uint64{"number": next}, &block)
	if err != nil {
		var rerr *rpcclient.RPCError
		if errors.As(err, &rerr) && rerr.Code == -32001 {
			return nil // block not committed yet
		}
		return fmt.Errorf("settlement: read block %d: %w", next, err)
	}

	if err := s.relay.Submit(block); err != nil {
		return fmt.Errorf("settlement: relay block %d: %w", next, err)
	}
	if err := s.oracle.SetConfirmedBlock(next); err != nil {
		return fmt.Errorf("settlement: advance watermark: %w", err)
	}
	s.log.WithField("number", next).Info("settled channel-tier block")
	return nil
}

// NativeSettlementToken is the token-tier balance a closed channel's
// final split is credited into; the channel tier has no notion of
// token_id of its own, so settlement always lands in this one account.
var NativeSettlementToken l2types.TokenID

// TokenSettlementRelay is the Relay that credits a closed channel's
// final balances to its two participants on the token tier, by
// submitting a signed Mint transaction to the token tier's RPC surface
// for each CloseChannel found in the block.
type TokenSettlementRelay struct {
	wallet      *wallet.Wallet
	l2Client    *rpcclient.Client
	chainID     uint64
	cyclesLimit uint64
}

// NewTokenSettlementRelay returns a Relay that signs settlement mints
// with w and submits them to the token tier node at l2Client.
func NewTokenSettlementRelay(w *wallet.Wallet, l2Client *rpcclient.Client, chainID, cyclesLimit uint64) *TokenSettlementRelay {
	return &TokenSettlementRelay{wallet: w, l2Client: l2Client, chainID: chainID, cyclesLimit: cyclesLimit}
}

// Submit scans block for closed channels and mints their final balances
// on the token tier, one token-tier transaction per closed channel.
func (r *TokenSettlementRelay) Submit(block l3types.Block) error {
	for _, stx := range block.Txs {
		if stx.Raw.Kind != l3types.KindCloseChannel {
			continue
		}
		if err := r.settleClosedChannel(stx); err != nil {
			return err
		}
	}
	return nil
}

func (r *TokenSettlementRelay) settleClosedChannel(stx l3types.SignedTransaction) error {
	var nonce [32]byte
	copy(nonce[:], stx.TxHash[:])

	raw := l2types.RawTransaction{
		ChainID:     r.chainID,
		CyclesPrice: 0,
		CyclesLimit: r.cyclesLimit,
		Nonce:       nonce,
		Timeout:     0,
		Sender:      r.wallet.Address(),
		Requests: []l2types.Request{
			{
				Address: l2types.Address(stx.Raw.PartyA),
				TokenID: NativeSettlementToken,
				Amount:  stx.Raw.BalanceA,
				Action:  l2types.ActionMint,
			},
			{
				Address: l2types.Address(stx.Raw.PartyB),
				TokenID: NativeSettlementToken,
				Amount:  stx.Raw.BalanceB,
				Action:  l2types.ActionMint,
			},
		},
	}
	hash, err := l2types.TxHash(raw)
	if err != nil {
		return fmt.Errorf("relayer: hash settlement tx for channel %s: %w", stx.Raw.ChannelID, err)
	}
	sig, err := r.wallet.Sign(hash)
	if err != nil {
		return fmt.Errorf("relayer: sign settlement tx for channel %s: %w", stx.Raw.ChannelID, err)
	}
	settlementTx := l2types.SignedTransaction{
		Raw:       raw,
		TxHash:    hash,
		PubKey:    r.wallet.PublicKeyBytes(),
		Signature: sig,
	}
	enc, err := l2types.EncodeSignedTransaction(settlementTx)
	if err != nil {
		return fmt.Errorf("relayer: encode settlement tx for channel %s: %w", stx.Raw.ChannelID, err)
	}
	data := hex.EncodeToString(enc)
	if err := r.l2Client.Call("send_raw_transaction", map[string]string{"data": data}, nil); err != nil {
		return fmt.Errorf("relayer: submit settlement tx for channel %s: %w", stx.Raw.ChannelID, err)
	}
	return nil
}
