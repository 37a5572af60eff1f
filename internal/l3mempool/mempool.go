// Package l3mempool holds channel-tier transactions awaiting inclusion:
// one FIFO queue per signer, drained round-robin into a capped package
// per block tick (§4.6), so no single busy sender can starve the rest of
// the queue the way a flat FIFO would.
package l3mempool

import (
	"errors"
	"sync"

	"covalent/internal/l3types"
	"covalent/pkg/wallet"
)

// MaxPackageSize caps how many transactions a single Package call returns.
const MaxPackageSize = 200

// ErrUnrecoverableSigner is returned by Push when the transaction's
// signature does not recover to a usable public key.
var ErrUnrecoverableSigner = errors.New("l3mempool: cannot recover signer")

// Mempool is a concurrency-safe set of per-signer FIFO queues.
type Mempool struct {
	mu          sync.Mutex
	bySender    map[l3types.Address][]l3types.SignedTransaction
	senderOrder []l3types.Address
}

// New returns an empty Mempool.
func New() *Mempool {
	return &Mempool{bySender: make(map[l3types.Address][]l3types.SignedTransaction)}
}

// Push admits stx into its signer's queue, identifying the signer by
// recovering the public key from its top-level signature.
func (m *Mempool) Push(stx l3types.SignedTransaction) error {
	pub, err := wallet.Recover(stx.TxHash, stx.Signature)
	if err != nil {
		return ErrUnrecoverableSigner
	}
	sender := wallet.AddressFromPubKey(pub)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySender[sender]; !ok {
		m.senderOrder = append(m.senderOrder, sender)
	}
	m.bySender[sender] = append(m.bySender[sender], stx)
	return nil
}

// Len reports the total number of pending transactions across all senders.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, q := range m.bySender {
		total += len(q)
	}
	return total
}

// Package drains up to MaxPackageSize transactions round-robin across
// senders — one transaction per sender per pass — removing every
// transaction it takes and leaving each sender's remaining queue in
// order for the next tick.
func (m *Mempool) Package() []l3types.SignedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	packaged := make([]l3types.SignedTransaction, 0, MaxPackageSize)
	activeOrder := append([]l3types.Address(nil), m.senderOrder...)

	for len(packaged) < MaxPackageSize && len(activeOrder) > 0 {
		next := activeOrder[:0]
		for _, sender := range activeOrder {
			if len(packaged) >= MaxPackageSize {
				next = append(next, sender)
				continue
			}
			q := m.bySender[sender]
			if len(q) == 0 {
				continue
			}
			packaged = append(packaged, q[0])
			m.bySender[sender] = q[1:]
			if len(m.bySender[sender]) > 0 {
				next = append(next, sender)
			}
		}
		activeOrder = next
	}

	var remainingOrder []l3types.Address
	for _, sender := range m.senderOrder {
		if len(m.bySender[sender]) > 0 {
			remainingOrder = append(remainingOrder, sender)
		} else {
			delete(m.bySender, sender)
		}
	}
	m.senderOrder = remainingOrder
	return packaged
}

// Reset drops every pending transaction from every sender.
func (m *Mempool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySender = make(map[l3types.Address][]l3types.SignedTransaction)
	m.senderOrder = nil
}
