// Package l2chain persists the token-tier's committed blocks: a
// blocks-by-hash index, a number-to-hash index, per-transaction and
// per-receipt indices, and the chain tip, all advanced atomically per
// block (§4.8), grounded on the chain-store persistence pattern used for
// the token tier's block log.
package l2chain

import (
	"encoding/binary"
	"fmt"

	"covalent/internal/kv"
	"covalent/internal/l2types"
)

const (
	nsBlocks       = "l2_blocks_by_hash"
	nsNumberToHash = "l2_number_to_hash"
	nsTxs          = "l2_txs_by_hash"
	nsReceipts     = "l2_receipts_by_hash"
	nsMeta         = "l2_meta"
)

var tipKey = []byte("tip")

// Namespaces returns every bbolt bucket this store needs; callers pass it
// to kv.Open alongside any other subsystem's namespaces (e.g. the trie
// node pool) that share the same database file.
func Namespaces() []string {
	return []string{nsBlocks, nsNumberToHash, nsTxs, nsReceipts, nsMeta}
}

// Store is the token-tier chain store, backed by the shared KV store.
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
// then points the tip at block's number, all within a single KV batch.
func (s *Store) SaveBlock(block l2types.Block, receipts []l2types.ExecuteResponse) error {
	blockHash, err := block.Header.Hash()
	if err != nil {
		return fmt.Errorf("l2chain: hash header: %w", err)
	}
	blockEnc, err := l2types.EncodeBlock(block)
	if err != nil {
		return fmt.Errorf("l2chain: encode block: %w", err)
	}

	return s.kv.Batch(func(b *kv.Batch) error {
		b.Put(nsBlocks, blockHash[:], blockEnc)
		b.Put(nsNumberToHash, numberKey(block.Header.Number), blockHash[:])

		for _, stx := range block.Txs {
			enc, err := l2types.EncodeSignedTransaction(stx)
			if err != nil {
				return err
			}
			b.Put(nsTxs, stx.TxHash[:], enc)
		}
		for _, r := range receipts {
			enc, err := l2types.EncodeExecuteResponse(r)
			if err != nil {
				return err
			}
			b.Put(nsReceipts, r.TxHash[:], enc)
		}
		b.Put(nsMeta, tipKey, numberKey(block.Header.Number))
		return nil
	})
}

// LatestHeader returns the header at the chain tip, or ok=false if the
// chain store is still empty (boot from genesis).
func (s *Store) LatestHeader() (l2types.Header, bool, error) {
	tip, ok, err := s.kv.Get(nsMeta, tipKey)
	if err != nil {
		return l2types.Header{}, false, err
	}
	if !ok {
		return l2types.Header{}, false, nil
	}
	n := binary.LittleEndian.Uint64(tip)
	block, found, err := s.BlockByNumber(n)
	if err != nil || !found {
		return l2types.Header{}, false, err
	}
	return block.Header, true, nil
}

// BlockByNumber looks up a committed block by height.
func (s *Store) BlockByNumber(n uint64) (l2types.Block, bool, error) {
	hash, ok, err := s.kv.Get(nsNumberToHash, numberKey(n))
	if err != nil || !ok {
		return l2types.Block{}, false, err
	}
	return s.blockByHashBytes(hash)
}

// BlockByHash looks up a committed block by header hash.
func (s *Store) BlockByHash(hash l2types.Hash) (l2types.Block, bool, error) {
	return s.blockByHashBytes(hash[:])
}

func (s *Store) blockByHashBytes(hash []byte) (l2types.Block, bool, error) {
	enc, ok, err := s.kv.Get(nsBlocks, hash)
	if err != nil || !ok {
		return l2types.Block{}, false, err
	}
	block, err := l2types.DecodeBlock(enc)
	if err != nil {
		return l2types.Block{}, false, err
	}
	return block, true, nil
}

// TransactionByHash looks up a previously committed transaction.
func (s *Store) TransactionByHash(hash l2types.Hash) (l2types.SignedTransaction, bool, error) {
	enc, ok, err := s.kv.Get(nsTxs, hash[:])
	if err != nil || !ok {
		return l2types.SignedTransaction{}, false, err
	}
	stx, err := l2types.DecodeSignedTransaction(enc)
	return stx, err == nil, err
}

// ReceiptByHash looks up a previously committed transaction's execution
// outcome.
func (s *Store) ReceiptByHash(hash l2types.Hash) (l2types.ExecuteResponse, bool, error) {
	enc, ok, err := s.kv.Get(nsReceipts, hash[:])
	if err != nil || !ok {
		return l2types.ExecuteResponse{}, false, err
	}
	r, err := l2types.DecodeExecuteResponse(enc)
	return r, err == nil, err
}
