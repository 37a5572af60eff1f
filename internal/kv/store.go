// Package kv wraps bbolt as the embedded ordered byte-key/byte-value store
// shared by both tiers: one bbolt database per process, one bucket
// ("namespace tree") per logical index, atomic multi-key writes via a single
// bbolt transaction.
package kv

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Store is a namespaced handle onto a single bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open creates (if needed) the parent directory and opens the database at
// path, creating every bucket in namespaces up front so later Get/Put calls
// never have to special-case a missing bucket.
func Open(path string, namespaces ...string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kv: create dir %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, ns := range namespaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return fmt.Errorf("kv: create bucket %s: %w", ns, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key in namespace, or (nil, false) if absent.
func (s *Store) Get(namespace string, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("kv: unknown namespace %s", namespace)
		}
		v := b.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Has reports key's presence without copying its value.
func (s *Store) Has(namespace string, key []byte) (bool, error) {
	_, ok, err := s.Get(namespace, key)
	return ok, err
}

// Put writes a single key/value pair in its own atomic transaction.
func (s *Store) Put(namespace string, key, value []byte) error {
	return s.Batch(func(b *Batch) error {
		b.Put(namespace, key, value)
		return nil
	})
}

// write is one pending mutation staged inside a Batch.
type write struct {
	namespace string
	key       []byte
	value     []byte // nil means delete
}

// Batch accumulates writes across one or more namespaces for a single
// atomic commit — the KV store's only write primitive, used by every
// component (trie/SMT root commit, chain-store block persistence) that
// needs several keys to land together or not at all.
type Batch struct {
	writes []write
}

func (b *Batch) Put(namespace string, key, value []byte) {
	b.writes = append(b.writes, write{namespace, append([]byte(nil), key...), append([]byte(nil), value...)})
}

func (b *Batch) Delete(namespace string, key []byte) {
	b.writes = append(b.writes, write{namespace, append([]byte(nil), key...), nil})
}

// Batch runs fn to accumulate writes, then commits them all in a single
// bbolt transaction. If fn returns an error, nothing is written.
func (s *Store) Batch(fn func(*Batch) error) error {
	b := &Batch{}
	if err := fn(b); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, w := range b.writes {
			bucket := tx.Bucket([]byte(w.namespace))
			if bucket == nil {
				return fmt.Errorf("kv: unknown namespace %s", w.namespace)
			}
			if w.value == nil {
				if err := bucket.Delete(w.key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(w.key, w.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Iterate walks namespace in key order from the first key, invoking fn for
// each pair until fn returns false.
func (s *Store) Iterate(namespace string, fn func(k, v []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("kv: unknown namespace %s", namespace)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}
