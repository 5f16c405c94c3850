// Package strong implements the block-content digests used for collision
// resistant confirmation of a weak-checksum match: MD4 (for backward
// compatibility only) and BLAKE2b (recommended, keyed by the stream magic
// for domain separation).
package strong

import (
	"encoding/binary"

	"github.com/gtank/blake2/blake2b"
	"golang.org/x/crypto/md4"

	"github.com/rdelta/rdelta/pkg/wire"
)

// Strong is the capability set required of a strong hash: reset to initial
// state, digest bytes, and finalize to a digest. It mirrors hash.Hash but
// drops the Size/BlockSize accessors this package doesn't need.
type Strong interface {
	// Reset returns the hash to its initial (pre-Write) state.
	Reset()
	// Write adds more data to the running hash. It never returns an error.
	Write(p []byte) (int, error)
	// Finalize returns the digest of all bytes written since the last
	// Reset (or construction). It does not mutate the running hash state
	// beyond what Reset would also need to undo, so calling Finalize
	// without an intervening Reset on a Strong obtained from this package
	// is not supported -- always Reset before reusing an instance.
	Finalize() []byte
}

// md4Strong adapts golang.org/x/crypto/md4's hash.Hash to Strong. MD4 is
// unkeyed; it is provided for backward compatibility only and must never be
// used to hash untrusted input (MD4 has known practical collisions).
type md4Strong struct {
	h hash4
}

// hash4 is the subset of hash.Hash that md4.New returns and that we need.
type hash4 interface {
	Reset()
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

func (m *md4Strong) Reset()                      { m.h.Reset() }
func (m *md4Strong) Write(p []byte) (int, error) { return m.h.Write(p) }
func (m *md4Strong) Finalize() []byte            { return m.h.Sum(nil) }

// blake2bStrong adapts github.com/gtank/blake2/blake2b to Strong. The
// underlying Digest type panics if asked to Reset (it cannot re-derive its
// keyed initial state), so this wrapper reconstructs a fresh Digest from the
// stored key/output-size configuration instead.
type blake2bStrong struct {
	key    []byte
	output int
	digest *blake2b.Digest
}

func newBlake2bStrong(key []byte, output int) *blake2bStrong {
	b := &blake2bStrong{key: key, output: output}
	b.Reset()
	return b
}

func (b *blake2bStrong) Reset() {
	d, err := blake2b.NewDigest(b.key, nil, nil, b.output)
	if err != nil {
		// The only failure modes are a key/salt/personalization/output size
		// outside the algorithm's fixed limits, all of which are enforced
		// by this package's own New before a blake2bStrong is ever built.
		panic(err)
	}
	b.digest = d
}

func (b *blake2bStrong) Write(p []byte) (int, error) { return b.digest.Write(p) }
func (b *blake2bStrong) Finalize() []byte            { return b.digest.Sum(nil) }

// magicKey derives the BLAKE2b key bytes for domain separation from a
// signature magic number: its big-endian byte representation. Two
// signatures built with different magic numbers (e.g. different weak-hash
// choices) therefore never collide in the strong-hash space even over
// otherwise identical block content.
func magicKey(magic wire.Magic) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(magic))
	return key[:]
}

// New constructs a fresh Strong implementation for the given kind, keyed
// (where supported) by magic for domain separation. The digest is the
// algorithm's full output (16 bytes for MD4, 64 for BLAKE2b; see Size) --
// callers then truncate it to strong_len when comparing.
func New(kind wire.StrongKind, magic wire.Magic) Strong {
	switch kind {
	case wire.StrongBlake2b:
		return newBlake2bStrong(magicKey(magic), blake2b.MaxOutput)
	default:
		return &md4Strong{h: md4.New()}
	}
}

// Size returns the full (untruncated) digest size, in bytes, produced by a
// Strong hash of the given kind.
func Size(kind wire.StrongKind) int {
	switch kind {
	case wire.StrongBlake2b:
		return blake2b.MaxOutput
	default:
		return md4.Size
	}
}
