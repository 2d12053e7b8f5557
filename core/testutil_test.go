package core

import (
	"hash/fnv"
	"math/rand"
)

// deterministicRandReader returns a seeded PRNG stream keyed off name, so
// trusted-setup fixtures used across tests are reproducible without needing
// crypto/rand (and without two tests racing on the same global source).
func deterministicRandReader(name string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
