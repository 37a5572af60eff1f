// Package smtdb implements the sparse merkle tree backing the channel
// tier's state: a fixed-depth, 256-level binary tree over 256-bit keys
// (§4.2). Unlike the original CKB sparse-merkle-tree crate this tree
// never applies the ShortCut/MergeWithZero path-compression optimization;
// it always walks the full 256 levels, trading a little storage for a
// much simpler implementation, and leans on precomputed per-height
// zero-hashes so an empty subtree never needs a KV round trip.
package smtdb

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

func hashData(b []byte) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Depth is the fixed number of levels between the root and a leaf.
const Depth = 256

// zeroHash[h] is the root of an entirely empty subtree of height h
// (h levels above a leaf). zeroHash[0] is the empty-leaf sentinel.
var zeroHash [Depth + 1][32]byte

func init() {
	for h := 1; h <= Depth; h++ {
		zeroHash[h] = hashData(append(append([]byte(nil), zeroHash[h-1][:]...), zeroHash[h-1][:]...))
	}
}

// EmptyRoot is the root of a tree with no keys set.
func EmptyRoot() [32]byte { return zeroHash[Depth] }

// ErrNotFound is returned by Get when key has never been set.
var ErrNotFound = errors.New("smtdb: key not found")

// node is nil (empty subtree), hashNode (committed reference), *branch
// (internal node) or valueNode (leaf content).
type node interface{}

type hashNode [32]byte
type valueNode []byte

type branch struct {
	Left  node
	Right node
}

// Backend adapts the shared KV store to the hash-keyed reads/writes the
// tree needs. Branches and leaves share one namespace, content-addressed
// by their own hash, so a leaf's raw bytes and a branch's 64-byte
// Left||Right encoding never collide in practice.
type Backend struct {
	Get   func(namespace string, key []byte) ([]byte, bool, error)
	Batch func(namespace string, writes map[[32]byte][]byte) error
}

// Tree is one sparse merkle tree instance, buffered in memory until
// Root() is called.
type Tree struct {
	backend   *Backend
	namespace string
	root      node
	leaves    map[[32]byte][]byte
}

// Open returns a Tree rooted at root within namespace.
func Open(backend *Backend, namespace string, root [32]byte) (*Tree, error) {
	t := &Tree{backend: backend, namespace: namespace, leaves: make(map[[32]byte][]byte)}
	if root == EmptyRoot() {
		return t, nil
	}
	t.root = hashNode(root)
	return t, nil
}

func keyBits(key [32]byte) [Depth]byte {
	var bits [Depth]byte
	for i := 0; i < Depth; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		bits[i] = (key[byteIdx] >> bitIdx) & 1
	}
	return bits
}

func (t *Tree) resolveBranch(n node) (*branch, error) {
	switch v := n.(type) {
	case nil:
		return &branch{}, nil
	case *branch:
		return v, nil
	case hashNode:
		enc, found, err := t.backend.Get(t.namespace, v[:])
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("smtdb: dangling branch reference %x", v)
		}
		if len(enc) != 64 {
			return nil, fmt.Errorf("smtdb: malformed branch encoding (%d bytes)", len(enc))
		}
		left, right := hashNode(toHash32(enc[:32])), hashNode(toHash32(enc[32:]))
		return &branch{Left: normalizeZero(left), Right: normalizeZero(right)}, nil
	default:
		return nil, fmt.Errorf("smtdb: unexpected node type %T", n)
	}
}

func (t *Tree) resolveLeaf(n node) ([]byte, error) {
	switch v := n.(type) {
	case nil:
		return nil, nil
	case valueNode:
		return []byte(v), nil
	case hashNode:
		enc, found, err := t.backend.Get(t.namespace, v[:])
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("smtdb: dangling leaf reference %x", v)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("smtdb: unexpected node type %T", n)
	}
}

// normalizeZero collapses a reference to a precomputed zero-hash back to
// nil, so resolved branches re-enter the same "empty subtree" fast path
// freshly inserted nodes take.
func normalizeZero(h hashNode) node {
	for _, z := range zeroHash {
		if [32]byte(h) == z {
			return nil
		}
	}
	return h
}

func toHash32(b []byte) [32]byte {
	var h [32]byte
	copy(h[:], b)
	return h
}

// Get returns the value last set at key, or ErrNotFound.
func (t *Tree) Get(key [32]byte) ([]byte, error) {
	v, err := t.get(t.root, keyBits(key), 0)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (t *Tree) get(n node, path [Depth]byte, depth int) ([]byte, error) {
	if depth == Depth {
		return t.resolveLeaf(n)
	}
	br, err := t.resolveBranch(n)
	if err != nil {
		return nil, err
	}
	if path[depth] == 0 {
		return t.get(br.Left, path, depth+1)
	}
	return t.get(br.Right, path, depth+1)
}

// Update buffers key→value in memory; it does not touch the KV store
// until Root() is called. A nil or empty value is rejected — the tree has
// no delete operation in this tier's scope.
func (t *Tree) Update(key [32]byte, value []byte) error {
	if len(value) == 0 {
		return errors.New("smtdb: empty value not supported")
	}
	newRoot, err := t.insert(t.root, keyBits(key), 0, valueNode(value))
	if err != nil {
		return err
	}
	t.root = newRoot
	t.leaves[key] = append([]byte(nil), value...)
	return nil
}

func (t *Tree) insert(n node, path [Depth]byte, depth int, value node) (node, error) {
	if depth == Depth {
		return value, nil
	}
	br, err := t.resolveBranch(n)
	if err != nil {
		return nil, err
	}
	if path[depth] == 0 {
		child, err := t.insert(br.Left, path, depth+1, value)
		if err != nil {
			return nil, err
		}
		br.Left = child
	} else {
		child, err := t.insert(br.Right, path, depth+1, value)
		if err != nil {
			return nil, err
		}
		br.Right = child
	}
	return br, nil
}

// Root commits every buffered node to the KV store in one batch and
// returns the tree's new root.
func (t *Tree) Root() ([32]byte, error) {
	writes := make(map[[32]byte][]byte)
	root, err := t.commit(t.root, 0, writes)
	if err != nil {
		return [32]byte{}, err
	}
	if len(writes) > 0 {
		if err := t.backend.Batch(t.namespace, writes); err != nil {
			return [32]byte{}, err
		}
	}
	t.root = hashNode(root)
	return root, nil
}

func (t *Tree) commit(n node, depth int, writes map[[32]byte][]byte) ([32]byte, error) {
	if depth == Depth {
		switch v := n.(type) {
		case nil:
			return zeroHash[0], nil
		case hashNode:
			return [32]byte(v), nil
		case valueNode:
			h := hashData(v)
			writes[h] = []byte(v)
			return h, nil
		default:
			return [32]byte{}, fmt.Errorf("smtdb: unexpected leaf node type %T", n)
		}
	}
	switch v := n.(type) {
	case nil:
		return zeroHash[Depth-depth], nil
	case hashNode:
		return [32]byte(v), nil
	case *branch:
		lh, err := t.commit(v.Left, depth+1, writes)
		if err != nil {
			return [32]byte{}, err
		}
		rh, err := t.commit(v.Right, depth+1, writes)
		if err != nil {
			return [32]byte{}, err
		}
		enc := make([]byte, 0, 64)
		enc = append(enc, lh[:]...)
		enc = append(enc, rh[:]...)
		h := hashData(enc)
		writes[h] = enc
		return h, nil
	default:
		return [32]byte{}, fmt.Errorf("smtdb: unexpected branch node type %T", n)
	}
}

// TakeLeaves drains and returns every key/value this Tree instance has
// written since the last call, keyed by the original 256-bit key — the
// set of keys this instance actually touched, without re-diffing the
// whole tree.
func (t *Tree) TakeLeaves() map[[32]byte][]byte {
	out := t.leaves
	t.leaves = make(map[[32]byte][]byte)
	return out
}
