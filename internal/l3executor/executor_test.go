package l3executor

import (
	"testing"

	"github.com/holiman/uint256"

	"covalent/internal/kv"
	"covalent/internal/l3types"
	"covalent/internal/smtdb"
	"covalent/pkg/wallet"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	store, err := kv.Open(t.TempDir()+"/l3.db", Namespace)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(smtdb.NewBackend(store))
}

func channelID(b byte) (id l3types.ChannelID) {
	id[31] = b
	return id
}

func TestCreateThenUpdateThenClose(t *testing.T) {
	e := newTestExecutor(t)

	walletA, err := wallet.New()
	if err != nil {
		t.Fatalf("new wallet A: %v", err)
	}
	walletB, err := wallet.New()
	if err != nil {
		t.Fatalf("new wallet B: %v", err)
	}
	partyA, partyB := walletA.Address(), walletB.Address()
	id := channelID(1)

	createRaw := l3types.RawTransaction{
		Kind:      l3types.KindCreateChannel,
		ChannelID: id,
		PartyA:    partyA,
		PartyB:    partyB,
		BalanceA:  uint256.NewInt(100),
		BalanceB:  uint256.NewInt(50),
	}
	createHash := l3types.TxHash(createRaw)
	createSig, err := walletA.Sign(createHash)
	if err != nil {
		t.Fatalf("sign create: %v", err)
	}
	createTx := l3types.SignedTransaction{Raw: createRaw, TxHash: createHash, Signature: createSig}

	resp, err := e.Exec(l3types.Hash(smtdb.EmptyRoot()), []l3types.SignedTransaction{createTx})
	if err != nil {
		t.Fatalf("exec create: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("create failed: %+v", resp.Responses[0].Error)
	}

	updateRaw := l3types.RawTransaction{
		Kind:      l3types.KindUpdateChannel,
		ChannelID: id,
		Nonce:     1,
		BalanceA:  uint256.NewInt(70),
		BalanceB:  uint256.NewInt(80),
	}
	updateHash := l3types.TxHash(updateRaw)
	sigA, err := walletA.Sign(updateHash)
	if err != nil {
		t.Fatalf("sign update A: %v", err)
	}
	sigB, err := walletB.Sign(updateHash)
	if err != nil {
		t.Fatalf("sign update B: %v", err)
	}
	updateTx := l3types.SignedTransaction{Raw: updateRaw, TxHash: updateHash, Signature: sigA, CounterpartySig: sigB}

	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{updateTx})
	if err != nil {
		t.Fatalf("exec update: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("update failed: %+v", resp.Responses[0].Error)
	}

	closeRaw := l3types.RawTransaction{
		Kind:      l3types.KindCloseChannel,
		ChannelID: id,
		Nonce:     2,
		BalanceA:  uint256.NewInt(70),
		BalanceB:  uint256.NewInt(80),
	}
	closeHash := l3types.TxHash(closeRaw)
	closeSigA, _ := walletA.Sign(closeHash)
	closeSigB, _ := walletB.Sign(closeHash)
	closeTx := l3types.SignedTransaction{Raw: closeRaw, TxHash: closeHash, Signature: closeSigA, CounterpartySig: closeSigB}

	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{closeTx})
	if err != nil {
		t.Fatalf("exec close: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("close failed: %+v", resp.Responses[0].Error)
	}
}

func TestUpdateAcceptsAnyVersionJumpForward(t *testing.T) {
	e := newTestExecutor(t)
	walletA, _ := wallet.New()
	walletB, _ := wallet.New()
	id := channelID(2)

	createRaw := l3types.RawTransaction{
		Kind: l3types.KindCreateChannel, ChannelID: id,
		PartyA: walletA.Address(), PartyB: walletB.Address(),
		BalanceA: uint256.NewInt(10), BalanceB: uint256.NewInt(10),
	}
	createHash := l3types.TxHash(createRaw)
	createSig, _ := walletA.Sign(createHash)
	createTx := l3types.SignedTransaction{Raw: createRaw, TxHash: createHash, Signature: createSig}
	resp, err := e.Exec(l3types.Hash(smtdb.EmptyRoot()), []l3types.SignedTransaction{createTx})
	if err != nil {
		t.Fatalf("exec create: %v", err)
	}

	// Current version is 0 after create; nonce 5 is a legal forward jump,
	// not required to be exactly current+1.
	jumpRaw := l3types.RawTransaction{
		Kind: l3types.KindUpdateChannel, ChannelID: id, Nonce: 5,
		BalanceA: uint256.NewInt(3), BalanceB: uint256.NewInt(17),
	}
	jumpHash := l3types.TxHash(jumpRaw)
	sigA, _ := walletA.Sign(jumpHash)
	sigB, _ := walletB.Sign(jumpHash)
	jumpTx := l3types.SignedTransaction{Raw: jumpRaw, TxHash: jumpHash, Signature: sigA, CounterpartySig: sigB}

	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{jumpTx})
	if err != nil {
		t.Fatalf("exec update: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("expected version jump to succeed, got %+v", resp.Responses[0].Error)
	}
}

func TestUpdateRejectsVersionRollback(t *testing.T) {
	e := newTestExecutor(t)
	walletA, _ := wallet.New()
	walletB, _ := wallet.New()
	id := channelID(3)

	createRaw := l3types.RawTransaction{
		Kind: l3types.KindCreateChannel, ChannelID: id,
		PartyA: walletA.Address(), PartyB: walletB.Address(),
		BalanceA: uint256.NewInt(10), BalanceB: uint256.NewInt(10),
	}
	createHash := l3types.TxHash(createRaw)
	createSig, _ := walletA.Sign(createHash)
	createTx := l3types.SignedTransaction{Raw: createRaw, TxHash: createHash, Signature: createSig}
	resp, err := e.Exec(l3types.Hash(smtdb.EmptyRoot()), []l3types.SignedTransaction{createTx})
	if err != nil {
		t.Fatalf("exec create: %v", err)
	}

	advanceRaw := l3types.RawTransaction{
		Kind: l3types.KindUpdateChannel, ChannelID: id, Nonce: 3,
		BalanceA: uint256.NewInt(5), BalanceB: uint256.NewInt(15),
	}
	advanceHash := l3types.TxHash(advanceRaw)
	advSigA, _ := walletA.Sign(advanceHash)
	advSigB, _ := walletB.Sign(advanceHash)
	advanceTx := l3types.SignedTransaction{Raw: advanceRaw, TxHash: advanceHash, Signature: advSigA, CounterpartySig: advSigB}
	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{advanceTx})
	if err != nil {
		t.Fatalf("exec advance: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("advance failed: %+v", resp.Responses[0].Error)
	}

	// Version 2 is not greater than the current version 3: a rollback.
	rollbackRaw := l3types.RawTransaction{
		Kind: l3types.KindUpdateChannel, ChannelID: id, Nonce: 2,
		BalanceA: uint256.NewInt(5), BalanceB: uint256.NewInt(15),
	}
	rollbackHash := l3types.TxHash(rollbackRaw)
	sigA, _ := walletA.Sign(rollbackHash)
	sigB, _ := walletB.Sign(rollbackHash)
	rollbackTx := l3types.SignedTransaction{Raw: rollbackRaw, TxHash: rollbackHash, Signature: sigA, CounterpartySig: sigB}

	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{rollbackTx})
	if err != nil {
		t.Fatalf("exec rollback: %v", err)
	}
	if resp.Responses[0].Error == nil || resp.Responses[0].Error.Code != l3types.ErrCodeRollbackChannelVersion {
		t.Fatalf("expected ErrCodeRollbackChannelVersion, got %+v", resp.Responses[0].Error)
	}
}

func TestUpdateRejectsBadCounterpartySignature(t *testing.T) {
	e := newTestExecutor(t)
	walletA, _ := wallet.New()
	walletB, _ := wallet.New()
	stranger, _ := wallet.New()
	id := channelID(4)

	createRaw := l3types.RawTransaction{
		Kind: l3types.KindCreateChannel, ChannelID: id,
		PartyA: walletA.Address(), PartyB: walletB.Address(),
		BalanceA: uint256.NewInt(10), BalanceB: uint256.NewInt(10),
	}
	createHash := l3types.TxHash(createRaw)
	createSig, _ := walletA.Sign(createHash)
	createTx := l3types.SignedTransaction{Raw: createRaw, TxHash: createHash, Signature: createSig}
	resp, err := e.Exec(l3types.Hash(smtdb.EmptyRoot()), []l3types.SignedTransaction{createTx})
	if err != nil {
		t.Fatalf("exec create: %v", err)
	}

	updateRaw := l3types.RawTransaction{
		Kind: l3types.KindUpdateChannel, ChannelID: id, Nonce: 1,
		BalanceA: uint256.NewInt(5), BalanceB: uint256.NewInt(15),
	}
	updateHash := l3types.TxHash(updateRaw)
	sigA, _ := walletA.Sign(updateHash)
	strangerSig, _ := stranger.Sign(updateHash)
	updateTx := l3types.SignedTransaction{Raw: updateRaw, TxHash: updateHash, Signature: sigA, CounterpartySig: strangerSig}

	resp, err = e.Exec(resp.StateRoot, []l3types.SignedTransaction{updateTx})
	if err != nil {
		t.Fatalf("exec update: %v", err)
	}
	if resp.Responses[0].Error == nil || resp.Responses[0].Error.Code != l3types.ErrCodeUpdateChannelSignature {
		t.Fatalf("expected ErrCodeUpdateChannelSignature, got %+v", resp.Responses[0].Error)
	}
}
