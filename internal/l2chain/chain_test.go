package l2chain

import (
	"testing"

	"covalent/internal/kv"
	"covalent/internal/l2types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.Open(t.TempDir()+"/chain.db", Namespaces()...)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestSaveBlockAndLookups(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.LatestHeader(); err != nil || ok {
		t.Fatalf("expected empty chain at boot, ok=%v err=%v", ok, err)
	}

	var txHash l2types.Hash
	txHash[31] = 9
	stx := l2types.SignedTransaction{Raw: l2types.RawTransaction{ChainID: 1}, TxHash: txHash}
	block := l2types.Block{
		Header: l2types.Header{ChainID: 1, Number: 1, CyclesLimit: 1000},
		Txs:    []l2types.SignedTransaction{stx},
	}
	receipts := []l2types.ExecuteResponse{{TxHash: txHash, Ret: txHash[:]}}

	if err := s.SaveBlock(block, receipts); err != nil {
		t.Fatalf("save block: %v", err)
	}

	head, ok, err := s.LatestHeader()
	if err != nil || !ok {
		t.Fatalf("latest header: ok=%v err=%v", ok, err)
	}
	if head.Number != 1 {
		t.Fatalf("expected tip at height 1, got %d", head.Number)
	}

	byNumber, ok, err := s.BlockByNumber(1)
	if err != nil || !ok {
		t.Fatalf("block by number: ok=%v err=%v", ok, err)
	}
	if len(byNumber.Txs) != 1 {
		t.Fatalf("expected 1 tx in block, got %d", len(byNumber.Txs))
	}

	gotTx, ok, err := s.TransactionByHash(txHash)
	if err != nil || !ok {
		t.Fatalf("tx by hash: ok=%v err=%v", ok, err)
	}
	if gotTx.TxHash != txHash {
		t.Fatalf("tx hash mismatch")
	}

	receipt, ok, err := s.ReceiptByHash(txHash)
	if err != nil || !ok {
		t.Fatalf("receipt by hash: ok=%v err=%v", ok, err)
	}
	if receipt.Error != nil {
		t.Fatalf("unexpected receipt error: %+v", receipt.Error)
	}
}
