package merkle

import (
	"crypto/subtle"

	"github.com/kysee/shieldpool/crypto"
)

// Side tells which side of the parent a path node's sibling occupies.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// PathNode is one step of a membership path: a sibling digest and the side
// that sibling sits on.
type PathNode struct {
	Sibling [32]byte
	Side    Side
}

// Path is a leaf-to-root membership path. Its length equals the tree depth.
type Path []PathNode

// VerifyPath recomputes the root from leaf upward and compares it to root
// in constant time. The index bits decide the hashing order at every level;
// a path whose declared sides contradict the index is malformed and
// rejected. The function touches no accumulator state, so any holder of a
// published root can check membership independently.
func VerifyPath(leaf [32]byte, path Path, root [32]byte, index uint64) bool {
	if len(path) == 0 || len(path) > MaxDepth {
		return false
	}
	if index >= uint64(1)<<len(path) {
		return false
	}

	current := leaf
	idx := index
	for _, node := range path {
		if idx%2 == 0 {
			if node.Side != Right {
				return false
			}
			current = crypto.NodeHash(current, node.Sibling)
		} else {
			if node.Side != Left {
				return false
			}
			current = crypto.NodeHash(node.Sibling, current)
		}
		idx /= 2
	}

	return subtle.ConstantTimeCompare(current[:], root[:]) == 1
}
