package smtdb

import "covalent/internal/kv"

// NewBackend adapts the shared KV store to the Backend a Tree needs.
func NewBackend(store *kv.Store) *Backend {
	return &Backend{
		Get: func(ns string, key []byte) ([]byte, bool, error) {
			return store.Get(ns, key)
		},
		Batch: func(ns string, writes map[[32]byte][]byte) error {
			return store.Batch(func(b *kv.Batch) error {
				for h, enc := range writes {
					hh := h
					b.Put(ns, hh[:], enc)
				}
				return nil
			})
		},
	}
}
