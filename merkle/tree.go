// Package merkle implements the append-only, fixed-depth Merkle accumulator
// backing shielded pools, along with standalone membership-path
// verification. Leaves are 32-byte commitments; an absent leaf is 32 zero
// bytes and every level has a precomputed all-empty subtree digest, so
// membership paths are well-defined for any index inside capacity.
package merkle

import (
	"errors"

	"github.com/kysee/shieldpool/crypto"
)

// MaxDepth bounds the supported tree depth. A depth-32 tree already admits
// 2^32 leaves.
const MaxDepth = 32

var (
	ErrTreeFull = errors.New("merkle: tree is full")
	ErrBadIndex = errors.New("merkle: index out of range")
	ErrBadDepth = errors.New("merkle: unsupported depth")
)

// emptyNodes[i] is the digest of an all-empty subtree of height i.
var emptyNodes [MaxDepth + 1][32]byte

func init() {
	for i := 1; i <= MaxDepth; i++ {
		emptyNodes[i] = crypto.NodeHash(emptyNodes[i-1], emptyNodes[i-1])
	}
}

// EmptyRoot returns the root of an empty tree of the given depth, the root
// every fresh pool starts from.
func EmptyRoot(depth int) [32]byte {
	if depth < 1 || depth > MaxDepth {
		panic("merkle: unsupported depth")
	}
	return emptyNodes[depth]
}

// Tree is an append-only Merkle accumulator of fixed depth. Appending a
// leaf recomputes only the ancestors on its path to the root.
//
// Tree carries no lock of its own: a caller sharing one instance across
// goroutines must serialize Append against every other method.
type Tree struct {
	depth  int
	leaves [][32]byte
	filled [][32]byte // filled[level] = latest completed left node at that level
	root   [32]byte
}

func New(depth int) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, ErrBadDepth
	}
	return &Tree{
		depth:  depth,
		leaves: make([][32]byte, 0, 64),
		filled: make([][32]byte, depth),
		root:   emptyNodes[depth],
	}, nil
}

func (t *Tree) Depth() int {
	return t.depth
}

// Capacity returns the number of leaves a tree of this depth can hold.
func (t *Tree) Capacity() uint64 {
	return uint64(1) << t.depth
}

func (t *Tree) LeafCount() uint64 {
	return uint64(len(t.leaves))
}

func (t *Tree) Root() [32]byte {
	return t.root
}

// Append inserts leaf at the next free index and returns that index and the
// new root.
func (t *Tree) Append(leaf [32]byte) (uint64, [32]byte, error) {
	idx := uint64(len(t.leaves))
	if idx >= t.Capacity() {
		return 0, [32]byte{}, ErrTreeFull
	}

	t.leaves = append(t.leaves, leaf)

	current := leaf
	levelIdx := idx
	for level := 0; level < t.depth; level++ {
		if levelIdx%2 == 0 {
			// left child: the right sibling is still an empty subtree
			t.filled[level] = current
			current = crypto.NodeHash(current, emptyNodes[level])
		} else {
			// right child: the left sibling was cached when it completed
			current = crypto.NodeHash(t.filled[level], current)
		}
		levelIdx /= 2
	}
	t.root = current

	return idx, t.root, nil
}

// Path returns the sibling path for the leaf at index. Indices beyond the
// current frontier but inside capacity are served as well: their leaf is
// the empty leaf and the returned path proves that emptiness against the
// current root.
func (t *Tree) Path(index uint64) (Path, error) {
	if index >= t.Capacity() {
		return nil, ErrBadIndex
	}

	layer := make([][32]byte, len(t.leaves))
	copy(layer, t.leaves)

	path := make(Path, 0, t.depth)
	idx := index
	for level := 0; level < t.depth; level++ {
		if len(layer)%2 != 0 {
			layer = append(layer, emptyNodes[level])
		}

		sibling := emptyNodes[level]
		if sibIdx := idx ^ 1; sibIdx < uint64(len(layer)) {
			sibling = layer[sibIdx]
		}
		side := Right
		if idx%2 == 1 {
			side = Left
		}
		path = append(path, PathNode{Sibling: sibling, Side: side})

		next := make([][32]byte, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next[i/2] = crypto.NodeHash(layer[i], layer[i+1])
		}
		layer = next
		idx /= 2
	}

	return path, nil
}
