package weak

// rabinKarpMultiplier is the multiplicative constant used by the RabinKarp
// rolling checksum.
const rabinKarpMultiplier uint32 = 0x08104225

// RabinKarp is the multiplicative Rabin-Karp rolling checksum described in
// §4.1 of the spec: h = h*M + in - out*M^count, with the multiplier's
// count-th power (power) maintained incrementally so Rotate stays O(1).
type RabinKarp struct {
	h     uint32
	power uint32
}

// Init resets the checksum to represent an empty window: h=0 is the
// Horner-scheme accumulator's identity (no bytes rolled in yet), and
// power=1 is M^0, the weight that the next-evicted byte would carry if
// evicted right now.
func (r *RabinKarp) Init() {
	r.h = 0
	r.power = 1
}

// RollIn adds a byte to the window without evicting anything, growing
// power by one factor of the multiplier to track the (eventual) window
// length.
func (r *RabinKarp) RollIn(in byte) {
	r.h = r.h*rabinKarpMultiplier + uint32(in)
	r.power *= rabinKarpMultiplier
}

// Rotate slides the window forward by one byte. power is left unchanged
// since the window length doesn't change across a rotation.
func (r *RabinKarp) Rotate(out, in byte) {
	r.h = r.h*rabinKarpMultiplier + uint32(in) - uint32(out)*r.power
}

// Digest returns the current 32-bit checksum.
func (r *RabinKarp) Digest() uint32 {
	return r.h
}
