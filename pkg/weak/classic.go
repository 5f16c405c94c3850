package weak

// classicByteOffset is added to every byte before it is mixed into the
// checksum. Without it, a run of zero bytes would contribute nothing to the
// sum, which both weakens the hash and makes Digest() == 0 abnormally
// common. 31 is the constant librsync itself uses.
const classicByteOffset = 31

// Classic is the two-16-bit-half rolling checksum described in §4.1 of the
// spec: an adler-like running sum (a) plus a running sum of that sum (b),
// each maintained in O(1) per byte.
type Classic struct {
	a, b  uint32
	count uint32
}

// Init resets the checksum to represent an empty window.
func (c *Classic) Init() {
	c.a, c.b, c.count = 0, 0, 0
}

// RollIn adds a byte to the window without evicting anything.
func (c *Classic) RollIn(in byte) {
	c.a += uint32(in) + classicByteOffset
	c.count++
	c.b += c.a
}

// Rotate slides the window forward by one byte.
func (c *Classic) Rotate(out, in byte) {
	vOut := uint32(out) + classicByteOffset
	vIn := uint32(in) + classicByteOffset
	c.a += vIn - vOut
	c.b += c.a - c.count*vOut
}

// Digest returns the current 32-bit checksum.
func (c *Classic) Digest() uint32 {
	return (c.b << 16) | (c.a & 0xFFFF)
}
