package core

import (
	"math/big"
	"testing"

	bls12381 "github.com/kilic/bls12-381"
)

func TestVerifyAcceptsGenuineBlocks(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("verify me please"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, b := range blocks {
		ok, err := Verify(b, powers)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected block %d to verify", b.Shard.I)
		}
	}
}

func TestBatchVerifyAllGenuine(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("batch verify me"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	ok, err := BatchVerify(blocks, powers)
	if err != nil {
		t.Fatalf("BatchVerify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected all genuine blocks to batch-verify")
	}
}

// TestVerifyRejectsCorruptedCommitment is §8 scenario 2: corrupt
// blocks[0].Commits[0] by scalar-multiplying with 123^4321; verify must fail
// and batch_verify over [blocks[3], corrupted] must fail too.
func TestVerifyRejectsCorruptedCommitment(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("batch verify corruption scenario"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	corrupted := blocks[0]
	corrupted.Commits = append([]Commitment(nil), blocks[0].Commits...)

	weight := new(big.Int).Exp(big.NewInt(123), big.NewInt(4321), nil)
	g1 := bls12381.NewG1()
	var scaled bls12381.PointG1
	g1.MulScalar(&scaled, &corrupted.Commits[0].point, weight)
	corrupted.Commits[0] = Commitment{point: scaled}

	ok, err := Verify(corrupted, powers)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected corrupted commitment to fail verification")
	}

	ok, err = BatchVerify([]Block{blocks[3], corrupted}, powers)
	if err != nil {
		t.Fatalf("BatchVerify failed: %v", err)
	}
	if ok {
		t.Fatal("expected batch verify to fail when one block is corrupted")
	}
}

// TestVerifyAcceptsLinearRecoding is §8 scenario 3: a recoded shard at index
// 3 with weight 2 (bytes multiplied by 2 element-wise) must still verify.
func TestVerifyAcceptsLinearRecoding(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("recoding scenario payload"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	recoded := blocks[3]
	recoded.LinearCombination = []LinearCombinationElement{{Index: 3, Weight: 2}}

	elements, err := SplitToField(blocks[3].Shard.Bytes, 1)
	if err != nil {
		t.Fatalf("SplitToField failed: %v", err)
	}
	weight := FieldFromUint64(2)
	scaled := make([]byte, 0, len(elements)*Bls12381FrByteSize)
	for _, e := range elements {
		scaled = append(scaled, e.Mul(weight).Bytes()...)
	}
	recoded.Shard.Bytes = scaled

	ok, err := Verify(recoded, powers)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected recoded shard with advertised weight to verify")
	}
}

func TestCommitRejectsDegreeTooLarge(t *testing.T) {
	powers := testPowers(t, 2)
	coeffs := make([]FieldElement, 8)
	for i := range coeffs {
		coeffs[i] = FieldFromUint64(uint64(i + 1))
	}
	if _, err := Commit(powers, NewPolynomial(coeffs)); err == nil {
		t.Fatal("expected ErrDegreeTooLarge")
	}
}
