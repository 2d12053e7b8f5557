package core

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"os"

	bls12381 "github.com/kilic/bls12-381"
	"github.com/klauspost/compress/gzip"
)

var powersMagic = [4]byte{'d', 'f', 'p', '1'}

// Powers holds the trusted-setup public parameters for the polynomial
// commitment scheme: g^{s^i} and g^{gamma*s^i} for i in 0..=d, over G1.
type Powers struct {
	PowersOfG      []bls12381.PointG1
	PowersOfGammaG []bls12381.PointG1
}

// Degree returns the maximum polynomial degree these powers support.
func (p *Powers) Degree() int {
	return len(p.PowersOfG) - 1
}

// GenerateTrustedSetup produces a toy-secure setup of the given max degree,
// drawing the secret scalar s and gamma from rand. Intended for tests and
// the cmd/trusted-setup dev helper, never for a production wire format.
func GenerateTrustedSetup(maxDegree int, randSrc io.Reader) (*Powers, error) {
	if maxDegree < 0 {
		return nil, fmt.Errorf("generate trusted setup: %w", ErrInvalidArgument)
	}

	s, err := randScalar(randSrc)
	if err != nil {
		return nil, err
	}
	gamma, err := randScalar(randSrc)
	if err != nil {
		return nil, err
	}

	g1 := bls12381.NewG1()
	gen := g1.One()

	powersOfG := make([]bls12381.PointG1, maxDegree+1)
	powersOfGammaG := make([]bls12381.PointG1, maxDegree+1)

	sPow := big.NewInt(1)
	for i := 0; i <= maxDegree; i++ {
		var pg, pgg bls12381.PointG1
		g1.MulScalar(&pg, gen, sPow)
		powersOfG[i] = pg

		gammaTerm := new(big.Int).Mul(sPow, gamma)
		g1.MulScalar(&pgg, gen, gammaTerm)
		powersOfGammaG[i] = pgg

		sPow = new(big.Int).Mul(sPow, s)
	}

	return &Powers{PowersOfG: powersOfG, PowersOfGammaG: powersOfGammaG}, nil
}

func randScalar(src io.Reader) (*big.Int, error) {
	buf := make([]byte, Bls12381FrByteSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("generate trusted setup: reading randomness: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}

// Save persists the powers as a gzip-compressed binary blob using
// klauspost/compress rather than the stdlib compress/gzip.
func (p *Powers) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save powers: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("save powers: %w", err)
	}
	defer gz.Close()

	if _, err := gz.Write(powersMagic[:]); err != nil {
		return fmt.Errorf("save powers: %w", err)
	}
	if err := binary.Write(gz, binary.BigEndian, uint32(len(p.PowersOfG))); err != nil {
		return fmt.Errorf("save powers: %w", err)
	}
	g1 := bls12381.NewG1()
	for i := range p.PowersOfG {
		if _, err := gz.Write(g1.ToBytes(&p.PowersOfG[i])); err != nil {
			return fmt.Errorf("save powers: %w", err)
		}
		if _, err := gz.Write(g1.ToBytes(&p.PowersOfGammaG[i])); err != nil {
			return fmt.Errorf("save powers: %w", err)
		}
	}
	return nil
}

// LoadPowers reads and validates a powers blob previously written by Save.
func LoadPowers(path string) (*Powers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load powers: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("load powers: %w", err)
	}
	defer gz.Close()

	r := bufio.NewReader(gz)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("load powers: %w", err)
	}
	if !bytes.Equal(magic[:], powersMagic[:]) {
		return nil, fmt.Errorf("load powers: %w", ErrSerialization)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("load powers: %w", err)
	}

	g1 := bls12381.NewG1()
	encLen := g1.ToBytes(g1.Zero())
	pointLen := len(encLen)

	powersOfG := make([]bls12381.PointG1, count)
	powersOfGammaG := make([]bls12381.PointG1, count)
	buf := make([]byte, pointLen)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("load powers: %w", err)
		}
		p, err := g1.FromBytes(buf)
		if err != nil {
			return nil, fmt.Errorf("load powers: %w", err)
		}
		powersOfG[i] = *p

		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("load powers: %w", err)
		}
		p, err = g1.FromBytes(buf)
		if err != nil {
			return nil, fmt.Errorf("load powers: %w", err)
		}
		powersOfGammaG[i] = *p
	}

	return &Powers{PowersOfG: powersOfG, PowersOfGammaG: powersOfGammaG}, nil
}

// sysRandReader is the default randomness source for trusted-setup
// generation outside of tests.
var sysRandReader io.Reader = rand.Reader
