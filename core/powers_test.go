package core

import (
	"os"
	"path/filepath"
	"testing"

	bls12381 "github.com/kilic/bls12-381"
	"github.com/klauspost/compress/gzip"
)

func TestPowersSaveLoadRoundTrip(t *testing.T) {
	powers := testPowers(t, 16)

	path := filepath.Join(t.TempDir(), "powers.bin")
	if err := powers.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadPowers(path)
	if err != nil {
		t.Fatalf("LoadPowers failed: %v", err)
	}
	if loaded.Degree() != powers.Degree() {
		t.Fatalf("degree mismatch: got %d want %d", loaded.Degree(), powers.Degree())
	}

	g1 := bls12381.NewG1()
	for i := range powers.PowersOfG {
		if !g1.Equal(&powers.PowersOfG[i], &loaded.PowersOfG[i]) {
			t.Fatalf("PowersOfG[%d] mismatch after round trip", i)
		}
		if !g1.Equal(&powers.PowersOfGammaG[i], &loaded.PowersOfGammaG[i]) {
			t.Fatalf("PowersOfGammaG[%d] mismatch after round trip", i)
		}
	}
}

func TestLoadPowersRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create garbage file: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte("nope")); err != nil {
		t.Fatalf("failed to write garbage payload: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close garbage file: %v", err)
	}

	if _, err := LoadPowers(path); err == nil {
		t.Fatal("expected error loading a non-powers blob")
	}
}

func TestGenerateTrustedSetupRejectsNegativeDegree(t *testing.T) {
	if _, err := GenerateTrustedSetup(-1, deterministicRandReader(t.Name())); err == nil {
		t.Fatal("expected error for negative degree")
	}
}

func TestCommitUsesGeneratedPowers(t *testing.T) {
	powers := testPowers(t, 8)
	p := NewPolynomial([]FieldElement{FieldFromUint64(1), FieldFromUint64(2), FieldFromUint64(3)})
	c1, err := Commit(powers, p)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	c2, err := Commit(powers, p)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !c1.Equal(c2) {
		t.Fatal("expected committing the same polynomial twice to produce equal commitments")
	}
}
