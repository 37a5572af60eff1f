// Package l3chain persists the channel-tier's committed blocks, mirroring
// the token-tier chain store's index shape (§4.8) over the channel-tier's
// own header/transaction/receipt encodings.
package l3chain

import (
	"encoding/binary"
	"fmt"

	"covalent/internal/kv"
	"covalent/internal/l3types"
)

const (
	nsBlocks       = "l3_blocks_by_hash"
	nsNumberToHash = "l3_number_to_hash"
	nsTxs          = "l3_txs_by_hash"
	nsReceipts     = "l3_receipts_by_hash"
	nsMeta         = "l3_meta"
)

var tipKey = []byte("tip")

// Namespaces returns every bbolt bucket this store needs.
func Namespaces() []string {
	return []string{nsBlocks, nsNumberToHash, nsTxs, nsReceipts, nsMeta}
}

// Store is the channel-tier chain store, backed by the shared KV store.
type Store struct {
	kv *kv.Store
}

// New wraps an already-open KV store; it must have been opened with at
// least the namespaces Namespaces() lists.
func New(store *kv.Store) *Store {
	return &Store{kv: store}
}

func numberKey(n uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return b[:]
}

// SaveBlock persists block and its per-transaction receipts atomically,
// then advances the tip, all within a single KV batch.
func (s *Store) SaveBlock(block l3types.Block, receipts []l3types.ExecuteResponse) error {
	blockHash, err := block.Header.Hash()
	if err != nil {
		return fmt.Errorf("l3chain: hash header: %w", err)
	}
	blockEnc := l3types.EncodeBlock(block)

	return s.kv.Batch(func(b *kv.Batch) error {
		b.Put(nsBlocks, blockHash[:], blockEnc)
		b.Put(nsNumberToHash, numberKey(block.Header.Number), blockHash[:])
		for _, stx := range block.Txs {
			b.Put(nsTxs, stx.TxHash[:], l3types.EncodeSignedTransaction(stx))
		}
		for _, r := range receipts {
			b.Put(nsReceipts, r.TxHash[:], l3types.EncodeExecuteResponse(r))
		}
		b.Put(nsMeta, tipKey, numberKey(block.Header.Number))
		return nil
	})
}

// LatestHeader returns the header at the chain tip, or ok=false if the
// chain store is still empty.
func (s *Store) LatestHeader() (l3types.Header, bool, error) {
	tip, ok, err := s.kv.Get(nsMeta, tipKey)
	if err != nil {
		return l3types.Header{}, false, err
	}
	if !ok {
		return l3types.Header{}, false, nil
	}
	n := binary.LittleEndian.Uint64(tip)
	block, found, err := s.BlockByNumber(n)
	if err != nil || !found {
		return l3types.Header{}, false, err
	}
	return block.Header, true, nil
}

// BlockByNumber looks up a committed block by height.
func (s *Store) BlockByNumber(n uint64) (l3types.Block, bool, error) {
	hash, ok, err := s.kv.Get(nsNumberToHash, numberKey(n))
	if err != nil || !ok {
		return l3types.Block{}, false, err
	}
	return s.blockByHashBytes(hash)
}

// BlockByHash looks up a committed block by header hash.
func (s *Store) BlockByHash(hash l3types.Hash) (l3types.Block, bool, error) {
	return s.blockByHashBytes(hash[:])
}

func (s *Store) blockByHashBytes(hash []byte) (l3types.Block, bool, error) {
	enc, ok, err := s.kv.Get(nsBlocks, hash)
	if err != nil || !ok {
		return l3types.Block{}, false, err
	}
	block, err := l3types.DecodeBlock(enc)
	if err != nil {
		return l3types.Block{}, false, err
	}
	return block, true, nil
}

// TransactionByHash looks up a previously committed transaction.
func (s *Store) TransactionByHash(hash l3types.Hash) (l3types.SignedTransaction, bool, error) {
	enc, ok, err := s.kv.Get(nsTxs, hash[:])
	if err != nil || !ok {
		return l3types.SignedTransaction{}, false, err
	}
	stx, err := l3types.DecodeSignedTransaction(enc)
	return stx, err == nil, err
}

// ReceiptByHash looks up a previously committed transaction's execution
// outcome.
func (s *Store) ReceiptByHash(hash l3types.Hash) (l3types.ExecuteResponse, bool, error) {
	enc, ok, err := s.kv.Get(nsReceipts, hash[:])
	if err != nil || !ok {
		return l3types.ExecuteResponse{}, false, err
	}
	r, err := l3types.DecodeExecuteResponse(enc)
	return r, err == nil, err
}
