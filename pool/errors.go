package pool

import "errors"

// Sentinel failures of the privacy-pool service. Every operation either
// commits fully or returns one of these with pool state unchanged.
var (
	ErrPoolExists               = errors.New("shieldpool: pool id already exists")
	ErrPoolNotFound             = errors.New("shieldpool: pool not found")
	ErrPoolFull                 = errors.New("shieldpool: pool is full")
	ErrCommitmentExists         = errors.New("shieldpool: commitment already deposited")
	ErrInsufficientAnonymitySet = errors.New("shieldpool: pool below its anonymity floor")
	ErrInvalidMerkleProof       = errors.New("shieldpool: merkle proof does not verify")
	ErrInvalidProof             = errors.New("shieldpool: withdrawal proof rejected")
	ErrAlreadySpent             = errors.New("shieldpool: nullifier already spent")
	ErrLeafNotFound             = errors.New("shieldpool: leaf not found")
)
