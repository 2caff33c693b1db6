// Package prng provides the deterministic, cross-implementation-portable
// byte-stream generator used by every back-end's seeded shuffle. It wraps
// golang.org/x/crypto/chacha20 (ChaCha20, the nearest stdlib-adjacent
// ChaCha-family cipher available in the ecosystem) rather than
// math/rand: shuffles must be reproducible byte-for-byte across independent
// implementations given the same seed, a property math/rand's generator
// does not promise across Go versions.
package prng

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// Source is a seedable, stateful byte-stream generator. It is not safe for
// concurrent use; callers needing concurrent draws should construct one
// Source per goroutine or serialize access externally.
type Source struct {
	cipher *chacha20.Cipher
	// buf is scratch space for the 8 keystream bytes each Uint64 call draws.
	buf [8]byte
}

// New returns a Source whose output is a pure function of seed. The seed is
// the stream cipher's entire entropy input: it is zero-extended into a
// 32-byte ChaCha20 key with a zero nonce, since the contract only requires
// determinism keyed by a 64-bit seed, not key secrecy.
func New(seed uint64) *Source {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// NewUnauthenticatedCipher only fails on malformed key/nonce
		// lengths, which are fixed-size arrays above and can never be
		// wrong.
		panic(err)
	}
	return &Source{cipher: c}
}

// Uint64 draws the next 8 bytes of keystream as a little-endian uint64.
func (s *Source) Uint64() uint64 {
	var zero [8]byte
	s.cipher.XORKeyStream(s.buf[:], zero[:])
	return binary.LittleEndian.Uint64(s.buf[:])
}

// Intn returns a uniform random integer in [0, n). It panics if n <= 0.
//
// Uniformity uses Lemire-style rejection sampling over Uint64 draws so that
// every outcome in [0, n) is equally likely regardless of n's relationship
// to 2^64 (a plain modulo would bias small n toward the low end of the
// keystream range for non-power-of-two n).
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("prng: Intn called with n <= 0")
	}
	bound := uint64(n)
	// threshold is 2^64 mod bound; draws below it are rejected, leaving a
	// range whose size is a multiple of bound, which removes modulo bias.
	threshold := -bound % bound
	for {
		v := s.Uint64()
		if v >= threshold {
			return int(v % bound)
		}
	}
}

// Shuffle performs an in-place Fisher-Yates shuffle of a sequence of length
// n, calling swap(i, j) for each transposition. It matches the algorithm
// used by every back-end's Shuffle(Seeded(seed)) path, so that the same
// seed and the same element count always produce the same permutation.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// Permutation returns the permutation of [0, n) that Shuffle would apply to
// an identity-ordered slice, without requiring the caller to build one, so
// the order a seeded back-end produces can be predicted from the seed and
// the element count alone.
func Permutation(seed uint64, n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	New(seed).Shuffle(n, func(i, j int) { p[i], p[j] = p[j], p[i] })
	return p
}
