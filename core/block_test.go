package core

import (
	"path/filepath"
	"testing"
)

func TestBlockSaveLoadRoundTrip(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("save and load me"), 3, 5, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	dir := t.TempDir()
	hashHex, err := SaveBlock(dir, blocks[0])
	if err != nil {
		t.Fatalf("SaveBlock failed: %v", err)
	}

	path := filepath.Join(blocksDir(dir, blocks[0].Shard.Hash), hashHex)
	loaded, err := LoadBlock(path)
	if err != nil {
		t.Fatalf("LoadBlock failed: %v", err)
	}

	if loaded.Shard.I != blocks[0].Shard.I || loaded.M != blocks[0].M {
		t.Fatalf("round-tripped block mismatch: got %+v", loaded.Shard)
	}
	ok, err := Verify(loaded, powers)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected reloaded block to still verify")
	}
}

func TestBlockHashIsDeterministic(t *testing.T) {
	powers := testPowers(t, 64)
	blocks, err := Encode([]byte("deterministic hash check"), 3, 5, powers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	h1, err := blocks[0].Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := blocks[0].Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected block hash to be deterministic across calls")
	}

	h3, err := blocks[1].Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h3 {
		t.Fatal("expected distinct shards to hash differently")
	}
}

func TestLoadBlockMissingFile(t *testing.T) {
	if _, err := LoadBlock(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected ErrBlockMissing")
	}
}
