package l3chain

import (
	"testing"

	"covalent/internal/kv"
	"covalent/internal/l3types"
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

	var txHash l3types.Hash
	txHash[31] = 9
	stx := l3types.SignedTransaction{Raw: l3types.RawTransaction{Kind: l3types.KindCreateChannel}, TxHash: txHash}
	block := l3types.Block{
		Header: l3types.Header{ChainID: 1, Number: 1},
		Txs:    []l3types.SignedTransaction{stx},
	}
	receipts := []l3types.ExecuteResponse{{TxHash: txHash, Ret: txHash[:]}}

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

	headHash, err := head.Hash()
	if err != nil {
		t.Fatalf("hash header: %v", err)
	}
	byHash, ok, err := s.BlockByHash(headHash)
	if err != nil || !ok {
		t.Fatalf("block by hash: ok=%v err=%v", ok, err)
	}
	if byHash.Header.Number != 1 {
		t.Fatalf("expected block by hash at height 1, got %d", byHash.Header.Number)
	}
}
