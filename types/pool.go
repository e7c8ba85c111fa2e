package types

// Pool is the durable record of one shielded pool. Root always equals the
// Merkle root of the first LeafCount commitments in insertion order at the
// configured depth; LeafCount never decreases.
type Pool struct {
	ID          uint64
	Root        [32]byte
	LeafCount   uint64
	MinPoolSize uint64
	Depth       int
	Authority   [32]byte
	CreatedAt   int64
}

// Leaf is one appended commitment together with its sealed payload. Leaves
// are never deleted; spending a note does not disturb tree indices.
type Leaf struct {
	Index      uint64
	Commitment Commitment
	Payload    *EncryptedNote
	CreatedAt  int64
}
