// Package l2mempool holds token-tier transactions awaiting inclusion: a
// concurrent admission set plus a cycle-budget packaging step run once per
// block tick (§4.5), grounded on the RWMutex-guarded map idiom used
// throughout the token-tier balance tables.
package l2mempool

import (
	"errors"
	"sync"

	"covalent/internal/l2types"
)

// ErrAlreadyPending is returned by Add when a transaction with the same
// hash is already admitted.
var ErrAlreadyPending = errors.New("l2mempool: transaction already pending")

// Mempool is a concurrency-safe FIFO admission set keyed by transaction
// hash, with insertion order preserved for deterministic packaging.
type Mempool struct {
	mu      sync.RWMutex
	pending map[l2types.Hash]l2types.SignedTransaction
	order   []l2types.Hash
}

// New returns an empty Mempool.
func New() *Mempool {
	return &Mempool{pending: make(map[l2types.Hash]l2types.SignedTransaction)}
}

// Add admits stx, rejecting a duplicate by hash.
func (m *Mempool) Add(stx l2types.SignedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[stx.TxHash]; ok {
		return ErrAlreadyPending
	}
	m.pending[stx.TxHash] = stx
	m.order = append(m.order, stx.TxHash)
	return nil
}

// Len reports the number of currently pending transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Has reports whether hash is currently pending.
func (m *Mempool) Has(hash l2types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pending[hash]
	return ok
}

// Package drains a FIFO prefix of the mempool: it takes transactions in
// insertion order while their cumulative cycles_limit stays within
// cyclesBudget, stopping at the first one that would overflow it, and
// removes exactly the transactions it took. Transactions past the cutoff
// are left pending for the next tick, in their original order.
func (m *Mempool) Package(cyclesBudget uint64) []l2types.SignedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var packaged []l2types.SignedTransaction
	var used uint64
	cut := len(m.order)

	for i, h := range m.order {
		stx := m.pending[h]
		cost := stx.Raw.CyclesLimit
		if used+cost > cyclesBudget {
			cut = i
			break
		}
		used += cost
		packaged = append(packaged, stx)
		delete(m.pending, h)
	}
	m.order = append([]l2types.Hash(nil), m.order[cut:]...)
	return packaged
}

// Remove drops hashes from the pending set without packaging them; hashes
// that are not pending are ignored.
func (m *Mempool) Remove(hashes []l2types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(hashes) == 0 {
		return
	}
	drop := make(map[l2types.Hash]bool, len(hashes))
	for _, h := range hashes {
		drop[h] = true
		delete(m.pending, h)
	}
	kept := m.order[:0:0]
	for _, h := range m.order {
		if !drop[h] {
			kept = append(kept, h)
		}
	}
	m.order = kept
}
