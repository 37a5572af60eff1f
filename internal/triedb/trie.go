// Package triedb implements the content-addressed modified Merkle Patricia
// trie used as the token-tier's state trie and, nested per account, its
// balance trie (spec §4.1). A Trie is stateless across blocks: callers open
// a fresh instance from the parent block's root and commit a new one.
package triedb

import (
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

func hashData(b []byte) [32]byte { return blake3.Sum256(b) }

// ErrNotFound is returned by Get when the key is absent from the trie.
var ErrNotFound = errors.New("triedb: key not found")

// Trie is one content-addressed Patricia trie instance, buffered in memory
// until Root() is called.
type Trie struct {
	store     *Backend
	root      node
	namespace string
}

// Backend adapts the shared kv.Store to the node-hash keyed reads the trie
// needs, isolated behind an interface so tests can substitute an in-memory
// double (§9 "trait-parametric" remapping).
type Backend struct {
	Get   func(namespace string, key []byte) ([]byte, bool, error)
	Batch func(namespace string, writes map[[32]byte][]byte) error
}

// Open returns a Trie rooted at root within namespace. The all-zero root
// denotes the empty trie and requires no KV lookup.
func Open(store *Backend, namespace string, root [32]byte) (*Trie, error) {
	t := &Trie{store: store, namespace: namespace}
	if root == ([32]byte{}) {
		return t, nil
	}
	t.root = hashNode(root)
	return t, nil
}

func (t *Trie) resolve(n node) (node, error) {
	h, ok := n.(hashNode)
	if !ok {
		return n, nil
	}
	enc, found, err := t.store.Get(t.namespace, h[:])
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("triedb: dangling reference %x", h)
	}
	return decodeNode(enc)
}

// Get looks up key, returning ErrNotFound if it is absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	v, err := t.get(t.root, keybytesToHex(key))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (t *Trie) get(n node, path []byte) ([]byte, error) {
	n, err := t.resolve(n)
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *shortNode:
		if len(path) < len(n.Key) || prefixLen(path, n.Key) != len(n.Key) {
			return nil, nil
		}
		if hasTerm(n.Key) {
			v, _ := n.Val.(valueNode)
			return []byte(v), nil
		}
		return t.get(n.Val, path[len(n.Key):])
	case *fullNode:
		if len(path) == 0 {
			return []byte(n.Value), nil
		}
		return t.get(n.Children[path[0]], path[1:])
	default:
		return nil, fmt.Errorf("triedb: unexpected node type %T", n)
	}
}

// Insert buffers key→value in memory; it does not touch the KV store until
// Root() is called.
func (t *Trie) Insert(key, value []byte) error {
	if len(value) == 0 {
		return errors.New("triedb: empty value not supported, delete is out of scope")
	}
	newRoot, err := t.insert(t.root, keybytesToHex(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(n node, path []byte, value node) (node, error) {
	n, err := t.resolve(n)
	if err != nil {
		return nil, err
	}
	switch cur := n.(type) {
	case nil:
		return &shortNode{Key: append([]byte(nil), path...), Val: value}, nil

	case *shortNode:
		matched := prefixLen(path, cur.Key)
		if matched == len(cur.Key) {
			if hasTerm(cur.Key) {
				return &shortNode{Key: cur.Key, Val: value}, nil
			}
			newChild, err := t.insert(cur.Val, path[matched:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: cur.Key, Val: newChild}, nil
		}
		// Split: create a branch at the point of divergence.
		branch := &fullNode{}
		existingKey := cur.Key
		existingVal := cur.Val
		if matched < len(existingKey) {
			idx := existingKey[matched]
			if idx == 16 {
				branch.Value = existingVal.(valueNode)
			} else {
				branch.Children[idx] = shortOrInline(existingKey[matched+1:], existingVal)
			}
		}
		if matched < len(path) {
			idx := path[matched]
			rest := path[matched+1:]
			if idx == 16 {
				branch.Value = value.(valueNode)
			} else {
				branch.Children[idx] = shortOrInline(rest, value)
			}
		} else {
			branch.Value = value.(valueNode)
		}
		if matched == 0 {
			return branch, nil
		}
		return &shortNode{Key: append([]byte(nil), path[:matched]...), Val: branch}, nil

	case *fullNode:
		if len(path) == 0 {
			cur.Value = value.(valueNode)
			return cur, nil
		}
		child, err := t.insert(cur.Children[path[0]], path[1:], value)
		if err != nil {
			return nil, err
		}
		cur.Children[path[0]] = child
		return cur, nil

	default:
		return nil, fmt.Errorf("triedb: unexpected node type %T", n)
	}
}

// shortOrInline builds the child hung under a new branch from the rest of
// a split path. A leaf remainder already ends in the terminator and
// becomes a leaf shortNode; an extension remainder becomes an extension
// shortNode over val, or val itself when nothing of the path is left.
func shortOrInline(rest []byte, val node) node {
	if len(rest) == 0 {
		return val
	}
	return &shortNode{Key: append([]byte(nil), rest...), Val: val}
}

// Root commits every buffered node to the KV store in one batch and
// returns the trie's new content-addressed root.
func (t *Trie) Root() ([32]byte, error) {
	if t.root == nil {
		return [32]byte{}, nil
	}
	writes := make(map[[32]byte][]byte)
	batchFn := func(h [32]byte, enc []byte) { writes[h] = enc }
	var rootHash [32]byte
	if h, ok := t.root.(hashNode); ok {
		rootHash = [32]byte(h)
	} else {
		enc, err := encodeNode(t.root, batchFn)
		if err != nil {
			return [32]byte{}, err
		}
		rootHash = hashData(enc)
		writes[rootHash] = enc
	}
	if len(writes) > 0 {
		if err := t.store.Batch(t.namespace, writes); err != nil {
			return [32]byte{}, err
		}
	}
	t.root = hashNode(rootHash)
	return rootHash, nil
}
