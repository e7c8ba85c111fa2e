package proof

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	std_mimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/test/unsafekzg"

	"github.com/kysee/shieldpool/crypto"
)

// WithdrawCircuit proves, without revealing which leaf is being spent,
// that the prover knows the opening of a commitment included under Root
// and that Nullifier is the spend marker derived from that commitment.
// Siblings run from the leaf level up to the level below the root.
type WithdrawCircuit struct {
	Secret    frontend.Variable
	Amount    frontend.Variable
	LeafIndex frontend.Variable
	Siblings  []frontend.Variable

	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`
	Recipient frontend.Variable `gnark:",public"`
}

func (cc *WithdrawCircuit) Define(api frontend.API) error {
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// commitment = H(recipient, amount, secret)
	hasher.Write(cc.Recipient, cc.Amount, cc.Secret)
	commitment := hasher.Sum()

	// nullifier = H(secret, commitment, tag)
	hasher.Reset()
	hasher.Write(cc.Secret, commitment, new(big.Int).SetBytes(crypto.NullifierTag))
	api.AssertIsEqual(cc.Nullifier, hasher.Sum())

	// fold the commitment up to the root, the index bits ordering each pair
	indexBits := api.ToBinary(cc.LeafIndex, len(cc.Siblings))
	node := commitment
	for i, sibling := range cc.Siblings {
		left := api.Select(indexBits[i], sibling, node)
		right := api.Select(indexBits[i], node, sibling)

		hasher.Reset()
		hasher.Write(left, right)
		node = hasher.Sum()
	}
	api.AssertIsEqual(cc.Root, node)

	return nil
}

// CompileWithdrawCircuit compiles the circuit for one tree depth and runs
// the plonk setup.
// todo: replace unsafekzg with a ceremony SRS before any real deployment.
func CompileWithdrawCircuit(depth int) (constraint.ConstraintSystem, plonk.ProvingKey, plonk.VerifyingKey, error) {
	var cc WithdrawCircuit
	cc.Siblings = make([]frontend.Variable, depth)

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, &cc)
	if err != nil {
		return nil, nil, nil, err
	}

	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, nil, nil, err
	}

	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, nil, nil, err
	}
	return ccs, pk, vk, nil
}
