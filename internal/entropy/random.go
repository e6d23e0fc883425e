// Package entropy provides the seedable randomness the simulation draws from.
// Runs are reproducible from their seed; crypto/rand only picks a seed when none is given.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand/v2"
	"time"
)

// Source is the randomness a simulation session needs: Gaussian noise for
// movement decisions and uniform integers for start placement.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	NormFloat64() float64
	IntN(n int) int
}

// NewSource creates a deterministic PCG generator from seed.
func NewSource(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewPCG(uint64(seed), 0))
}

// RandomSeed returns a non-zero seed from crypto/rand.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to the clock.
		slog.Debug("crypto seed failed", "error", err)
		return time.Now().UnixNano() | 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// SeedOrRandom returns seed, or a fresh random seed when seed is 0.
func SeedOrRandom(seed int64) int64 {
	if seed == 0 {
		return RandomSeed()
	}
	return seed
}
