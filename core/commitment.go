package core

import (
	"fmt"

	bls12381 "github.com/kilic/bls12-381"
)

// Commitment is a succinct binding to a polynomial: one element of the
// pairing-friendly curve's G1 group per §3.
type Commitment struct {
	point bls12381.PointG1
}

// Bytes serializes the commitment using the curve's canonical G1 encoding.
func (c Commitment) Bytes() []byte {
	g1 := bls12381.NewG1()
	return g1.ToBytes(&c.point)
}

// Equal reports whether two commitments denote the same group element.
func (c Commitment) Equal(o Commitment) bool {
	g1 := bls12381.NewG1()
	return g1.Equal(&c.point, &o.point)
}

// Commit computes g^{P(s)} as a multi-scalar multiplication of
// powers.PowersOfG[0:deg(P)+1] against p's coefficients, per §4.2.
func Commit(powers *Powers, p Polynomial) (Commitment, error) {
	if p.Degree() > powers.Degree() {
		return Commitment{}, fmt.Errorf("commit: %w", ErrDegreeTooLarge)
	}

	g1 := bls12381.NewG1()
	acc := g1.Zero()
	for i, coeff := range p.Coeffs() {
		if coeff.IsZero() {
			continue
		}
		var term bls12381.PointG1
		g1.MulScalar(&term, &powers.PowersOfG[i], coeff.toBigInt())
		g1.Add(acc, acc, &term)
	}
	return Commitment{point: *acc}, nil
}

// Verify checks a block against the public powers per §4.2: it reinterprets
// the shard bytes as a polynomial Q via SplitToField(shard.Bytes, 1),
// recomputes Commit(powers, Q), and compares against the weighted sum of the
// block's commits using the block's LinearCombination (the encoder always
// emits a single unit-weight element at the shard's own index, so the common
// case reduces to Sigma_j commits[j] * alpha^j with alpha = field(shard.I)).
func Verify(block Block, powers *Powers) (bool, error) {
	elements, err := SplitToField(block.Shard.Bytes, 1)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	q := NewPolynomial(elements)

	computed, err := Commit(powers, q)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}

	expected, err := weightedCommitSum(block)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}

	return computed.Equal(expected), nil
}

// weightedCommitSum computes Sigma_j commits[j] * alpha^j, generalized for
// recoded shards whose LinearCombination names more than the encoder's
// default single unit-weight element (§4.2 "Linear-combination recoding"):
// each element contributes weight * Sigma_j commits[j] * field(Index)^j.
func weightedCommitSum(block Block) (Commitment, error) {
	g1 := bls12381.NewG1()
	acc := g1.Zero()

	combo := block.LinearCombination
	if len(combo) == 0 {
		combo = []LinearCombinationElement{{Index: block.Shard.I, Weight: 1}}
	}

	for _, lc := range combo {
		alpha := FieldFromUint64(uint64(lc.Index))
		for j, commit := range block.Commits {
			weight := FieldFromUint64(uint64(lc.Weight))
			scalar := alpha.Exp(uint64(j)).Mul(weight)
			if scalar.IsZero() {
				continue
			}
			var term bls12381.PointG1
			g1.MulScalar(&term, &commit.point, scalar.toBigInt())
			g1.Add(acc, acc, &term)
		}
	}

	return Commitment{point: *acc}, nil
}

// commitmentFromBytes rehydrates a Commitment from its canonical G1
// encoding, used when loading a block from disk or the wire.
func commitmentFromBytes(raw []byte) (Commitment, error) {
	g1 := bls12381.NewG1()
	p, err := g1.FromBytes(raw)
	if err != nil {
		return Commitment{}, fmt.Errorf("commitment from bytes: %w", ErrSerialization)
	}
	return Commitment{point: *p}, nil
}

// BatchVerify ANDs Verify over all blocks, short-circuiting on first
// failure per §8's testable batch-verification property.
func BatchVerify(blocks []Block, powers *Powers) (bool, error) {
	for _, b := range blocks {
		ok, err := Verify(b, powers)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
