// Package l3executor implements the channel-tier per-block state
// machine: CreateChannel/UpdateChannel/CloseChannel applied against the
// channel sparse merkle tree, each mutation gated on the signature checks
// the channel's co-ownership demands (§4.4).
package l3executor

import (
	"fmt"

	"covalent/internal/l3types"
	"covalent/internal/smtdb"
	"covalent/pkg/wallet"
)

// Namespace is the shared KV bucket holding every sparse-merkle-tree node.
const Namespace = "l3_smt_nodes"

// Executor runs blocks of channel-tier transactions against a sparse
// merkle tree rooted in the shared KV store.
type Executor struct {
	backend *smtdb.Backend
}

// New returns an Executor backed by store.
func New(backend *smtdb.Backend) *Executor {
	return &Executor{backend: backend}
}

// Exec executes txs against the channel tree rooted at stateRoot and
// returns the new root plus one response per transaction, in order.
func (e *Executor) Exec(stateRoot l3types.Hash, txs []l3types.SignedTransaction) (l3types.BlockExecuteResponse, error) {
	tree, err := smtdb.Open(e.backend, Namespace, [32]byte(stateRoot))
	if err != nil {
		return l3types.BlockExecuteResponse{}, fmt.Errorf("l3executor: open channel tree: %w", err)
	}

	responses := make([]l3types.ExecuteResponse, 0, len(txs))
	for _, stx := range txs {
		resp, err := e.applyOne(tree, stx)
		if err != nil {
			return l3types.BlockExecuteResponse{}, err
		}
		responses = append(responses, resp)
	}

	newRoot, err := tree.Root()
	if err != nil {
		return l3types.BlockExecuteResponse{}, fmt.Errorf("l3executor: state root: %w", err)
	}

	receiptLeaves := make([][]byte, len(responses))
	for i, resp := range responses {
		receiptLeaves[i] = l3types.EncodeExecuteResponse(resp)
	}
	receiptRoot := l3types.MerkleRoot(receiptLeaves)

	return l3types.BlockExecuteResponse{StateRoot: l3types.Hash(newRoot), ReceiptRoot: receiptRoot, Responses: responses}, nil
}

func (e *Executor) applyOne(tree *smtdb.Tree, stx l3types.SignedTransaction) (l3types.ExecuteResponse, error) {
	fail := func(code uint32, msg string) l3types.ExecuteResponse {
		return l3types.ExecuteResponse{TxHash: stx.TxHash, Error: &l3types.ExecError{Code: code, Message: msg}}
	}
	ok := l3types.ExecuteResponse{TxHash: stx.TxHash, Ret: stx.TxHash[:]}

	raw := stx.Raw
	existing, loaded, err := loadChannel(tree, raw.ChannelID)
	if err != nil {
		return l3types.ExecuteResponse{}, err
	}

	switch raw.Kind {
	case l3types.KindCreateChannel:
		if loaded {
			return fail(l3types.ErrCodeChannelExists, "ChannelAlreadyExists"), nil
		}
		signerPub, err := wallet.Recover(stx.TxHash, stx.Signature)
		if err != nil {
			return fail(l3types.ErrCodeInvalidSignature, "InvalidSignature"), nil
		}
		signer := wallet.AddressFromPubKey(signerPub)
		if signer != raw.PartyA {
			return fail(l3types.ErrCodeInvalidSignature, "CreatorMustBePartyA"), nil
		}
		channel := l3types.NewChannel(raw.ChannelID, raw.PartyA, raw.PartyB, raw.BalanceA, raw.BalanceB)
		if err := storeChannel(tree, channel); err != nil {
			return l3types.ExecuteResponse{}, err
		}
		return ok, nil

	case l3types.KindUpdateChannel, l3types.KindCloseChannel:
		if !loaded {
			return fail(l3types.ErrCodeChannelNotFound, "ChannelNotFound"), nil
		}
		if existing.Status == l3types.StatusClosed {
			return fail(l3types.ErrCodeChannelClosed, "ChannelAlreadyClosed"), nil
		}
		if raw.Nonce <= existing.Nonce {
			return fail(l3types.ErrCodeRollbackChannelVersion, "ErrorRollbackChannelVersion"), nil
		}
		verified, err := wallet.VerifySignature2(stx.TxHash, stx.Signature, stx.CounterpartySig, existing.PartyA, existing.PartyB)
		if err != nil || !verified {
			return fail(l3types.ErrCodeUpdateChannelSignature, "ErrorUpdateChannelSignature"), nil
		}

		existing.BalanceA = raw.BalanceA
		existing.BalanceB = raw.BalanceB
		existing.Nonce = raw.Nonce
		if raw.Kind == l3types.KindCloseChannel {
			existing.Status = l3types.StatusClosed
		}
		if err := storeChannel(tree, existing); err != nil {
			return l3types.ExecuteResponse{}, err
		}
		return ok, nil

	default:
		return fail(l3types.ErrCodeInvalidSignature, "UnknownTransactionKind"), nil
	}
}

func loadChannel(tree *smtdb.Tree, id l3types.ChannelID) (l3types.Channel, bool, error) {
	data, err := tree.Get([32]byte(id))
	if err == smtdb.ErrNotFound {
		return l3types.Channel{}, false, nil
	}
	if err != nil {
		return l3types.Channel{}, false, err
	}
	ch, err := l3types.DecodeChannel(data)
	if err != nil {
		return l3types.Channel{}, false, err
	}
	return ch, true, nil
}

func storeChannel(tree *smtdb.Tree, ch l3types.Channel) error {
	return tree.Update([32]byte(ch.ChannelID), l3types.EncodeChannel(ch))
}
