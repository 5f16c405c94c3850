// Package config defines the tunable algorithm parameters shared by the
// signature, delta, and patch jobs, and the on-disk profile format used to
// save and recall a particular tuning (spec §2, §4.2).
package config

import (
	"math"

	"github.com/rdelta/rdelta/pkg/wire"
)

const (
	// minimumOptimalBlockLength is the smallest block length
	// OptimalBlockLength will ever return, chosen to stay well clear of
	// per-block overhead (a weak sum plus a strong hash) dominating the
	// signature.
	minimumOptimalBlockLength = 1 << 9
	// maximumOptimalBlockLength is the largest block length
	// OptimalBlockLength will ever return, bounded by what the wire
	// protocol's width-4 COPY/LITERAL parameters can address comfortably
	// and by reasonable in-memory window sizes.
	maximumOptimalBlockLength = 1 << 16
	// DefaultBlockLength is used when a caller asks for block length 0 and
	// the basis length is unknown.
	DefaultBlockLength = 2048
	// DefaultStrongLength is used when a caller asks for strong length 0:
	// the strong hash's full output truncated to 16 bytes,
	// matching rsync's own default truncation for its strong checksum.
	DefaultStrongLength = 16
)

// OptimalBlockLength picks a signature block length for a basis file of the
// given size, per spec §4.2: proportional to the square root of the basis
// length (so the signature grows with the square root of the file, per the
// rsync thesis' analysis of expected match-miss cost), rounded up to the
// nearest power of two, and clamped to a sane range.
func OptimalBlockLength(basisLength uint64) uint64 {
	raw := uint64(math.Sqrt(8.0 * float64(basisLength)))

	length := uint64(1)
	for length < raw {
		length <<= 1
	}

	if length < minimumOptimalBlockLength {
		length = minimumOptimalBlockLength
	} else if length > maximumOptimalBlockLength {
		length = maximumOptimalBlockLength
	}
	return length
}

// Tunables bundles the algorithm choices that must agree between a
// signature's producer and its consumers: which weak/strong hash pair to
// use (folded into the wire magic), the block length, and how many bytes of
// the strong hash to retain per block.
type Tunables struct {
	// Weak selects the rolling checksum algorithm.
	Weak wire.WeakKind `yaml:"weak"`
	// Strong selects the strong hash algorithm.
	Strong wire.StrongKind `yaml:"strong"`
	// BlockLength is the basis block size, in bytes. Zero means
	// DefaultBlockLength (see ResolvedBlockLength).
	BlockLength uint64 `yaml:"blockLength"`
	// StrongLength is the number of strong-hash bytes retained per block.
	// Zero means DefaultStrongLength.
	StrongLength int `yaml:"strongLength"`
}

// Default returns the recommended tunables: RabinKarp rolling checksum
// (stronger than the classic sum against adversarial input) paired with
// BLAKE2b (faster and more collision-resistant than MD4).
func Default() Tunables {
	return Tunables{
		Weak:   wire.WeakRabinKarp,
		Strong: wire.StrongBlake2b,
	}
}

// Magic resolves the tunables' weak/strong choice to the signature magic
// number that must prefix a stream built with them.
func (t Tunables) Magic() (wire.Magic, error) {
	return wire.MagicForAlgorithms(t.Weak, t.Strong)
}

// ResolvedBlockLength returns t.BlockLength if set, otherwise
// DefaultBlockLength. Callers that know the basis size up front (e.g.
// because they stat'd the file) should instead call OptimalBlockLength
// themselves and set it on the Tunables before resolving; this package has
// no way to learn that size on its own since a signature job only ever
// sees a caller-pushed byte stream of unknown total length.
func (t Tunables) ResolvedBlockLength() uint64 {
	if t.BlockLength != 0 {
		return t.BlockLength
	}
	return DefaultBlockLength
}

// ResolvedStrongLength returns t.StrongLength if set, otherwise
// DefaultStrongLength clamped to what the chosen strong hash supports.
func (t Tunables) ResolvedStrongLength() int {
	if t.StrongLength != 0 {
		return t.StrongLength
	}
	if max := wire.MaxStrongLength(t.Strong); DefaultStrongLength < max {
		return DefaultStrongLength
	} else {
		return max
	}
}
