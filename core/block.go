package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Shard is an evaluation-domain fragment of a file, per §3.
type Shard struct {
	K     uint32      `cbor:"k"`
	I     uint32      `cbor:"i"`
	Hash  [32]byte    `cbor:"hash"`
	Bytes []byte      `cbor:"bytes"`
	Size  int         `cbor:"size"`
}

// LinearCombinationElement names one shard contributing to a recoded shard,
// with its small-integer weight (§4.2 "Linear-combination recoding").
type LinearCombinationElement struct {
	Index  uint32 `cbor:"index"`
	Weight uint32 `cbor:"weight"`
}

// Block binds a shard to the source file's column-polynomial commitments.
type Block struct {
	Shard             Shard                       `cbor:"shard"`
	Commits           []Commitment                `cbor:"-"`
	M                 int                         `cbor:"m"`
	LinearCombination []LinearCombinationElement `cbor:"linear_combination"`
}

// cborBlock is the wire/disk representation of a Block: Commitment does not
// implement cbor.Marshaler directly, so commits are serialized as their
// canonical G1 byte encodings and rehydrated through FromBytes on load.
type cborBlock struct {
	Shard             Shard                      `cbor:"shard"`
	Commits           [][]byte                   `cbor:"commits"`
	M                 int                        `cbor:"m"`
	LinearCombination []LinearCombinationElement `cbor:"linear_combination"`
}

func (b Block) toCBOR() (cborBlock, error) {
	commits := make([][]byte, len(b.Commits))
	for i, c := range b.Commits {
		commits[i] = c.Bytes()
	}
	return cborBlock{
		Shard:             b.Shard,
		Commits:           commits,
		M:                 b.M,
		LinearCombination: b.LinearCombination,
	}, nil
}

func (cb cborBlock) toBlock() (Block, error) {
	commits := make([]Commitment, len(cb.Commits))
	for i, raw := range cb.Commits {
		c, err := commitmentFromBytes(raw)
		if err != nil {
			return Block{}, fmt.Errorf("decode block: %w", err)
		}
		commits[i] = c
	}
	return Block{
		Shard:             cb.Shard,
		Commits:           commits,
		M:                 cb.M,
		LinearCombination: cb.LinearCombination,
	}, nil
}

// Hash computes the block-hash: SHA-256 over a canonical CBOR encoding.
func (b Block) Hash() ([32]byte, error) {
	cb, err := b.toCBOR()
	if err != nil {
		return [32]byte{}, err
	}
	data, err := cbor.Marshal(cb)
	if err != nil {
		return [32]byte{}, fmt.Errorf("hash block: %w", ErrSerialization)
	}
	return sha256.Sum256(data), nil
}

// blocksDir returns <dir>/<file-hash-hex>/blocks.
func blocksDir(dir string, fileHash [32]byte) string {
	return filepath.Join(dir, hex.EncodeToString(fileHash[:]), "blocks")
}

// SaveBlock writes b under <dir>/<file-hash>/blocks/<block-hash>, a plain
// content-addressed write (os.MkdirAll + os.WriteFile).
func SaveBlock(dir string, b Block) (string, error) {
	hash, err := b.Hash()
	if err != nil {
		return "", err
	}
	hashHex := hex.EncodeToString(hash[:])

	target := blocksDir(dir, b.Shard.Hash)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("save block: %w", err)
	}

	cb, err := b.toCBOR()
	if err != nil {
		return "", err
	}
	data, err := cbor.Marshal(cb)
	if err != nil {
		return "", fmt.Errorf("save block: %w", ErrSerialization)
	}

	path := filepath.Join(target, hashHex)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("save block: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("save block: %w", err)
	}
	return hashHex, nil
}

// LoadBlock reads and decodes a block file written by SaveBlock.
func LoadBlock(path string) (Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Block{}, fmt.Errorf("load block: %w", ErrBlockMissing)
	}
	var cb cborBlock
	if err := cbor.Unmarshal(data, &cb); err != nil {
		return Block{}, fmt.Errorf("load block: %w", ErrSerialization)
	}
	return cb.toBlock()
}
