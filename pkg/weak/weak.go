// Package weak implements the O(1) rolling checksums used to search for
// block matches: the classic (adler-like) rolling sum and RabinKarp. Both
// satisfy the Weak interface and are selected by wire.WeakKind at job
// construction time (see pkg/engine).
package weak

import "github.com/rdelta/rdelta/pkg/wire"

// Weak is the capability set required of a rolling checksum: prime a window
// from scratch (Init, RollIn for non-rolling fill), then slide it one byte
// at a time in O(1) (Rotate), reading the current digest at any point
// (Digest).
type Weak interface {
	// Init resets the checksum to represent an empty window.
	Init()
	// RollIn adds a byte to the window without evicting anything. It is used
	// to prime the window (e.g. the first block_len bytes of a scan).
	RollIn(in byte)
	// Rotate slides the window forward by one byte: out is the byte leaving
	// the window (at its front) and in is the byte entering it (at its
	// back). The window length is unchanged.
	Rotate(out, in byte)
	// Digest returns the current 32-bit checksum.
	Digest() uint32
}

// New constructs a fresh Weak implementation for the given kind.
func New(kind wire.WeakKind) Weak {
	switch kind {
	case wire.WeakRabinKarp:
		return new(RabinKarp)
	default:
		return new(Classic)
	}
}
