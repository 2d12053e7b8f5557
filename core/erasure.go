package core

import (
	"crypto/sha256"
	"fmt"
)

// Encode runs the full encode pipeline of §4.3 steps 1-6 with the default
// Vandermonde evaluation points 0..n-1, producing n blocks any k of which
// suffice to reconstruct bytes.
func Encode(data []byte, k, n int, powers *Powers) ([]Block, error) {
	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	return EncodeWithIndices(data, k, indices, powers)
}

// EncodeWithIndices is Encode generalized to an explicit, caller-chosen set
// of distinct evaluation points (one per output block), the hook the Random
// EncodingMethod (§6, commands.go) uses in place of the default 0..n-1
// Vandermonde ordering: each index becomes both the block's Shard.I and the
// alpha Decode later re-derives field(I) from, so reconstruction is
// unaffected by which indices were drawn.
func EncodeWithIndices(data []byte, k int, indices []uint32, powers *Powers) ([]Block, error) {
	n := len(indices)
	if k == 0 || n < k {
		return nil, fmt.Errorf("encode: %w", ErrInvalidArgument)
	}
	seen := make(map[uint32]bool, n)
	for _, idx := range indices {
		if seen[idx] {
			return nil, fmt.Errorf("encode: %w", ErrIndicesNotDistinct)
		}
		seen[idx] = true
	}

	elements, err := SplitFileBytes(data, k)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	m := len(elements) / k

	rows, err := BuildInterleaved(elements, m)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	columns := make([]Polynomial, k)
	for j := 0; j < k; j++ {
		coeffs := make([]FieldElement, m)
		for row := 0; row < m; row++ {
			coeffs[row] = rows[row].Coeff(j)
		}
		columns[j] = NewPolynomial(coeffs)
	}

	commits := make([]Commitment, k)
	for j, col := range columns {
		c, err := Commit(powers, col)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", ErrBudgetExceeded)
		}
		commits[j] = c
	}

	fileHash := sha256.Sum256(data)

	blocks := make([]Block, n)
	for i, idx := range indices {
		alpha := FieldFromUint64(uint64(idx))
		shardBytes := make([]byte, 0, m*Bls12381FrByteSize)
		for ℓ := 0; ℓ < m; ℓ++ {
			shardBytes = append(shardBytes, rows[ℓ].Evaluate(alpha).Bytes()...)
		}

		shard := Shard{
			K:     uint32(k),
			I:     idx,
			Hash:  fileHash,
			Bytes: shardBytes,
			Size:  len(data),
		}

		blocks[i] = Block{
			Shard:   shard,
			Commits: commits,
			M:       m,
			LinearCombination: []LinearCombinationElement{
				{Index: idx, Weight: 1},
			},
		}
	}

	return blocks, nil
}

// Decode reconstructs the original bytes from at least k shards with
// distinct evaluation indices, via non-systematic Reed-Solomon-style
// reconstruction over a Vandermonde matrix.
func Decode(shards []Shard) ([]byte, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("decode: %w", ErrTooFewShards)
	}

	k := int(shards[0].K)
	if len(shards) < k {
		return nil, fmt.Errorf("decode: %w", ErrTooFewShards)
	}

	seen := make(map[uint32]bool, k)
	points := make([]FieldElement, 0, k)
	chosen := make([]Shard, 0, k)
	for _, s := range shards {
		if int(s.K) != k {
			return nil, fmt.Errorf("decode: %w", ErrInconsistentK)
		}
		if seen[s.I] {
			return nil, fmt.Errorf("decode: %w", ErrIndicesNotDistinct)
		}
		seen[s.I] = true
		points = append(points, FieldFromUint64(uint64(s.I)))
		chosen = append(chosen, s)
		if len(chosen) == k {
			break
		}
	}
	if len(chosen) < k {
		return nil, fmt.Errorf("decode: %w", ErrTooFewShards)
	}

	m := len(chosen[0].Bytes) / Bls12381FrByteSize

	vand, err := Vandermonde(points, k)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	inv, err := vand.Invert()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", ErrIndicesNotDistinct)
	}

	// shardElements[row][col] is the col-th shard's row-th field element,
	// i.e. rows[row].Evaluate(alpha_col).
	shardElements := make([][]FieldElement, m)
	for row := 0; row < m; row++ {
		shardElements[row] = make([]FieldElement, k)
		for col, s := range chosen {
			start := row * Bls12381FrByteSize
			shardElements[row][col] = FieldElementFromLEBytes(s.Bytes[start : start+Bls12381FrByteSize])
		}
	}

	// elements[col*m+row] is the original pre-interleave position, the
	// inverse of BuildInterleaved's j -> (row=j%m, col=j/m) mapping.
	elements := make([]FieldElement, m*k)
	for row := 0; row < m; row++ {
		rowCoeffs, err := inv.MulVec(shardElements[row])
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		for col, c := range rowCoeffs {
			elements[col*m+row] = c
		}
	}

	out := JoinFileBytes(elements)
	if chosen[0].Size < len(out) {
		out = out[:chosen[0].Size]
	}
	return out, nil
}
