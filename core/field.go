package core

import (
	"fmt"
	"math/big"
)

// Bls12381FrByteSize is the little-endian encoded width of a scalar field
// element of BLS12-381's order-r scalar field.
const Bls12381FrByteSize = 32

// frModulus is BLS12-381's scalar field order r, the modulus every
// FieldElement is reduced against.
var frModulus = mustParseModulus("52435875175126190479447740508185965837690552500527637822603658699938581184513")

func mustParseModulus(dec string) *big.Int {
	m, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		panic("core: invalid field modulus literal")
	}
	return m
}

// FieldElement wraps a scalar of BLS12-381's prime scalar field F_r, the
// algebraic unit the coding and commitment layers operate on (curve
// arithmetic comes from kilic/bls12-381; group-element arithmetic lives in
// commitment.go/powers.go, which pass a FieldElement's big.Int form
// directly to the curve library's scalar-multiplication entry points).
type FieldElement struct {
	v *big.Int
}

// ZeroField returns the additive identity.
func ZeroField() FieldElement {
	return FieldElement{v: new(big.Int)}
}

// FieldFromUint64 builds a field element from a small non-negative integer,
// used to encode evaluation indices (`field(i)` in §4.2/§4.3).
func FieldFromUint64(v uint64) FieldElement {
	return FieldElement{v: new(big.Int).SetUint64(v)}
}

// FieldElementFromLEBytes reduces an arbitrary byte slice modulo r,
// interpreting it as little-endian, per §3's "construction from an
// arbitrary byte slice via modular reduction".
func FieldElementFromLEBytes(b []byte) FieldElement {
	le := make([]byte, len(b))
	for i, x := range b {
		le[len(b)-1-i] = x
	}
	n := new(big.Int).SetBytes(le)
	n.Mod(n, frModulus)
	return FieldElement{v: n}
}

// Bytes serializes the element as fixed-width little-endian bytes.
func (f FieldElement) Bytes() []byte {
	be := f.v.FillBytes(make([]byte, Bls12381FrByteSize))
	out := make([]byte, Bls12381FrByteSize)
	for i, x := range be {
		out[Bls12381FrByteSize-1-i] = x
	}
	return out
}

// Add returns f+g mod r.
func (f FieldElement) Add(g FieldElement) FieldElement {
	out := new(big.Int).Add(f.v, g.v)
	out.Mod(out, frModulus)
	return FieldElement{v: out}
}

// Mul returns f*g mod r.
func (f FieldElement) Mul(g FieldElement) FieldElement {
	out := new(big.Int).Mul(f.v, g.v)
	out.Mod(out, frModulus)
	return FieldElement{v: out}
}

// Exp returns f^n mod r for a non-negative integer n.
func (f FieldElement) Exp(n uint64) FieldElement {
	out := new(big.Int).Exp(f.v, new(big.Int).SetUint64(n), frModulus)
	return FieldElement{v: out}
}

// IsZero reports whether f is the additive identity.
func (f FieldElement) IsZero() bool {
	return f.v.Sign() == 0
}

// toBigInt exposes the element's big.Int form, the scalar type the curve
// library's MulScalar expects.
func (f FieldElement) toBigInt() *big.Int {
	return new(big.Int).Set(f.v)
}

// negate returns the additive inverse of f (r - f mod r), used by
// vandermonde.go's Gauss-Jordan elimination.
func negate(f FieldElement) FieldElement {
	out := new(big.Int).Neg(f.v)
	out.Mod(out, frModulus)
	return FieldElement{v: out}
}

// invertElement computes the multiplicative inverse of a non-zero field
// element via Fermat's little theorem (f^(r-2) mod r).
func invertElement(f FieldElement) FieldElement {
	exp := new(big.Int).Sub(frModulus, big.NewInt(2))
	out := new(big.Int).Exp(f.v, exp, frModulus)
	return FieldElement{v: out}
}

// SplitToField chunks bytes into Bls12381FrByteSize windows, little-endian
// decodes and reduces each into a FieldElement, then zero-pads the resulting
// sequence to the next multiple of padTo. This width matches the fixed
// serialization width a shard's bytes were built with (§3's "concatenated
// little-endian encoding of the shard's field elements"), so it is the
// width Verify (commitment.go) uses to reinterpret shard.Bytes back into Q's
// coefficients. Grounded on
// semi-avid-pc/src/field.rs::split_data_into_field_elements.
func SplitToField(data []byte, padTo int) ([]FieldElement, error) {
	return splitToFieldWindowed(data, padTo, Bls12381FrByteSize)
}

// RawChunkBytes is floor(b/8) for BLS12-381's 255-bit scalar field: the
// largest window that reduces injectively into F, per §4.1. Splitting
// arbitrary file bytes on this (narrower) window, rather than the
// Bls12381FrByteSize serialization width, is what makes Encode/Decode a
// lossless round-trip for any input: a Bls12381FrByteSize-wide window can
// exceed the field modulus and silently reduce, which a 31-byte window
// never does (31*8 = 248 bits < the 255-bit modulus).
const RawChunkBytes = Bls12381FrByteSize - 1

// SplitFileBytes chunks arbitrary file bytes into RawChunkBytes windows
// before lifting them into F, guaranteeing the injective round-trip
// JoinFileBytes relies on. Used by Encode's step 1 (§4.3); distinct from
// SplitToField, which rebuilds a shard's own field elements from their
// fixed-width serialization.
func SplitFileBytes(data []byte, padTo int) ([]FieldElement, error) {
	return splitToFieldWindowed(data, padTo, RawChunkBytes)
}

// JoinFileBytes is SplitFileBytes's inverse: each element's low
// RawChunkBytes bytes are exactly the original window (by construction,
// every such window's integer value is below the field modulus), so
// discarding the high byte of each element's fixed-width serialization
// recovers the original bytes.
func JoinFileBytes(elements []FieldElement) []byte {
	out := make([]byte, 0, len(elements)*RawChunkBytes)
	for _, e := range elements {
		out = append(out, e.Bytes()[:RawChunkBytes]...)
	}
	return out
}

func splitToFieldWindowed(data []byte, padTo, window int) ([]FieldElement, error) {
	if padTo == 0 {
		return nil, fmt.Errorf("split to field: %w", ErrInvalidArgument)
	}

	var elements []FieldElement
	for off := 0; off < len(data); off += window {
		end := off + window
		if end > len(data) {
			end = len(data)
		}
		elements = append(elements, FieldElementFromLEBytes(data[off:end]))
	}

	if rem := len(elements) % padTo; rem != 0 {
		for i := 0; i < padTo-rem; i++ {
			elements = append(elements, ZeroField())
		}
	}
	return elements, nil
}
