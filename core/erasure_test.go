package core

import (
	"bytes"
	"testing"
)

func testPowers(t *testing.T, degree int) *Powers {
	t.Helper()
	powers, err := GenerateTrustedSetup(degree, deterministicRandReader(t.Name()))
	if err != nil {
		t.Fatalf("GenerateTrustedSetup failed: %v", err)
	}
	return powers
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := []byte("foobarbaz")
	k, n := 3, 7
	powers := testPowers(t, 64)

	blocks, err := Encode(data, k, n, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(blocks) != n {
		t.Fatalf("expected %d blocks, got %d", n, len(blocks))
	}

	// Drop shards at indices {1,3,6}; decode from the remaining k.
	dropped := map[uint32]bool{1: true, 3: true, 6: true}
	var shards []Shard
	for _, b := range blocks {
		if dropped[b.Shard.I] {
			continue
		}
		shards = append(shards, b.Shard)
	}

	got, err := Decode(shards)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, data)
	}
}

func TestEncodeDecodeRoundTripLargeData(t *testing.T) {
	// Exercises multiple RawChunkBytes-wide windows, including windows
	// whose raw bytes would overflow the field modulus if chunked at the
	// wider Bls12381FrByteSize instead of the injective RawChunkBytes.
	data := bytes.Repeat([]byte{0xff}, RawChunkBytes*5+7)
	k, n := 4, 6
	powers := testPowers(t, 64)

	blocks, err := Encode(data, k, n, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	shards := []Shard{blocks[0].Shard, blocks[2].Shard, blocks[4].Shard, blocks[5].Shard}
	got, err := Decode(shards)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch over 0xff-filled data: got %d bytes, want %d", len(got), len(data))
	}
}

func TestEncodeWithIndicesUsesCallerEvaluationPoints(t *testing.T) {
	data := []byte("random method payload")
	k := 3
	indices := []uint32{10, 20, 30, 40, 50}
	powers := testPowers(t, 64)

	blocks, err := EncodeWithIndices(data, k, indices, powers)
	if err != nil {
		t.Fatalf("EncodeWithIndices failed: %v", err)
	}
	for i, b := range blocks {
		if b.Shard.I != indices[i] {
			t.Fatalf("block %d: expected Shard.I=%d, got %d", i, indices[i], b.Shard.I)
		}
	}

	// Drop two blocks; decode from the remaining k shards, whose evaluation
	// indices are the caller-chosen values rather than 0..n-1.
	shards := []Shard{blocks[0].Shard, blocks[2].Shard, blocks[4].Shard}
	got, err := Decode(shards)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, data)
	}
}

func TestEncodeWithIndicesRejectsDuplicateIndices(t *testing.T) {
	powers := testPowers(t, 8)
	if _, err := EncodeWithIndices([]byte("x"), 2, []uint32{1, 1, 2}, powers); err == nil {
		t.Fatal("expected ErrIndicesNotDistinct")
	}
}

func TestEncodeRejectsZeroK(t *testing.T) {
	powers := testPowers(t, 8)
	if _, err := Encode([]byte("x"), 0, 4, powers); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestEncodeRejectsNLessThanK(t *testing.T) {
	powers := testPowers(t, 8)
	if _, err := Encode([]byte("x"), 4, 2, powers); err == nil {
		t.Fatal("expected error for n<k")
	}
}

func TestDecodeRejectsTooFewShards(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("hello world"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode([]Shard{blocks[0].Shard, blocks[1].Shard}); err == nil {
		t.Fatal("expected ErrTooFewShards")
	}
}

func TestDecodeRejectsDuplicateIndices(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("hello world!"), 3, 5, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	shards := []Shard{blocks[0].Shard, blocks[0].Shard, blocks[1].Shard}
	if _, err := Decode(shards); err == nil {
		t.Fatal("expected ErrIndicesNotDistinct")
	}
}

func TestDecodeRejectsInconsistentK(t *testing.T) {
	powers := testPowers(t, 64)
	a, err := Encode([]byte("first file contents"), 3, 5, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode([]byte("second file contents"), 4, 6, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	shards := []Shard{a[0].Shard, a[1].Shard, b[0].Shard}
	if _, err := Decode(shards); err == nil {
		t.Fatal("expected ErrInconsistentK")
	}
}
