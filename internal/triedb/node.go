package triedb

import "github.com/ethereum/go-ethereum/rlp"

// node is one of: nil (empty subtree), valueNode (a leaf's stored bytes),
// hashNode (a content-address reference to a node not yet resolved into
// memory), *shortNode (leaf or extension) or *fullNode (16-way branch).
type node interface{}

type valueNode []byte

// hashNode references a committed node by its Blake3 digest.
type hashNode [32]byte

// shortNode is a leaf (Key ends with the terminator nibble, Val is a
// valueNode) or an extension (Val is a deeper node/hashNode).
type shortNode struct {
	Key []byte // nibble path, possibly terminated
	Val node
}

// fullNode is a 16-way branch plus an optional value for a key ending
// exactly at this branch.
type fullNode struct {
	Children [16]node
	Value    valueNode // nil if no key terminates here
}

func (n *fullNode) hasChildren() bool {
	for _, c := range n.Children {
		if c != nil {
			return true
		}
	}
	return false
}

// --- RLP wire shapes -------------------------------------------------------

type rlpShortNode struct {
	Path []byte
	Val  []byte
}

type rlpFullNode struct {
	Children [16][]byte
	Value    []byte
}

// encodeNode resolves n's children to hashes (committing any dirty
// descendants into batch first) and returns n's own RLP encoding.
func encodeNode(n node, batch func(hash [32]byte, enc []byte)) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case hashNode:
		return nil, nil // caller should not re-encode an already-committed ref
	case *shortNode:
		var valBytes []byte
		if hasTerm(n.Key) {
			v, _ := n.Val.(valueNode)
			valBytes = []byte(v)
		} else {
			h, err := commitChild(n.Val, batch)
			if err != nil {
				return nil, err
			}
			valBytes = h[:]
		}
		return rlp.EncodeToBytes(rlpShortNode{Path: hexToCompact(n.Key), Val: valBytes})
	case *fullNode:
		var wire rlpFullNode
		for i, c := range n.Children {
			if c == nil {
				continue
			}
			h, err := commitChild(c, batch)
			if err != nil {
				return nil, err
			}
			wire.Children[i] = h[:]
		}
		wire.Value = []byte(n.Value)
		return rlp.EncodeToBytes(wire)
	default:
		return nil, nil
	}
}

// commitChild returns child's content hash, hashing+batching it first if it
// is not already a committed hashNode.
func commitChild(child node, batch func(hash [32]byte, enc []byte)) ([32]byte, error) {
	if child == nil {
		return [32]byte{}, nil
	}
	if h, ok := child.(hashNode); ok {
		return [32]byte(h), nil
	}
	enc, err := encodeNode(child, batch)
	if err != nil {
		return [32]byte{}, err
	}
	h := hashData(enc)
	batch(h, enc)
	return h, nil
}

// decodeNode parses a node's RLP encoding back into its in-memory form,
// with children left unresolved as hashNode references.
func decodeNode(enc []byte) (node, error) {
	var asShort rlpShortNode
	if err := rlp.DecodeBytes(enc, &asShort); err == nil {
		key := compactToHex(asShort.Path)
		if hasTerm(key) {
			return &shortNode{Key: key, Val: valueNode(asShort.Val)}, nil
		}
		var val node
		if len(asShort.Val) == 32 {
			val = hashNode(toHash32(asShort.Val))
		}
		return &shortNode{Key: key, Val: val}, nil
	}
	var asFull rlpFullNode
	if err := rlp.DecodeBytes(enc, &asFull); err != nil {
		return nil, err
	}
	fn := &fullNode{Value: valueNode(asFull.Value)}
	for i, h := range asFull.Children {
		if len(h) == 32 {
			fn.Children[i] = hashNode(toHash32(h))
		}
	}
	return fn, nil
}

func toHash32(b []byte) [32]byte {
	var h [32]byte
	copy(h[:], b)
	return h
}
