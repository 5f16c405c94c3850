package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind identifies the category of command a particular opcode byte encodes.
type Kind uint8

const (
	// KindEnd is the stream terminator.
	KindEnd Kind = iota
	// KindLiteral carries a run of literal bytes to be emitted verbatim.
	KindLiteral
	// KindSignature is reserved for a future whole-output-verification
	// command (see the open questions in DESIGN.md); no opcode byte is
	// currently assigned to it.
	KindSignature
	// KindCopy carries an (offset, length) pair identifying a range to copy
	// from the basis.
	KindCopy
	// KindReserved marks an opcode byte with no assigned meaning. Decoding
	// a reserved opcode is always a corrupt-stream error.
	KindReserved
)

// widths is the closed set of parameter byte-widths the protocol supports.
var widths = [4]int{1, 2, 4, 8}

// Descriptor is one row of the opcode table: it tells the codec, for a given
// command byte, what kind of command it is and how many bytes follow for
// each of its (up to two) parameters. A single table (opcodeTable below)
// drives both encoding and decoding so the two can never drift apart.
type Descriptor struct {
	// Kind is the command category.
	Kind Kind
	// Len1 is the byte width of the first parameter (0, 1, 2, 4, or 8).
	Len1 int
	// Len2 is the byte width of the second parameter (0 for everything
	// except COPY).
	Len2 int
	// Immediate indicates that the first parameter's value is the command
	// byte itself (used for the short literal-length encoding, 1..64).
	Immediate bool
}

// TotalSize returns 1 (the opcode byte) plus the byte widths of both
// parameters. It exists purely for header bounds-checking.
func (d Descriptor) TotalSize() int {
	return 1 + d.Len1 + d.Len2
}

const (
	// opImmediateLiteralMin is the first opcode in the immediate-mode
	// literal range.
	opImmediateLiteralMin = 0x01
	// opImmediateLiteralMax is the last opcode in the immediate-mode literal
	// range; it also doubles as the maximum length representable in
	// immediate form.
	opImmediateLiteralMax = 0x40
	// MaxImmediateLiteralLength is the largest LITERAL length that can be
	// represented using the immediate (single-byte) form.
	MaxImmediateLiteralLength = opImmediateLiteralMax
)

// opcodeTable is the single source of truth for the wire protocol. Index i
// describes command byte i.
var opcodeTable [256]Descriptor

// literalWideOpcode maps a parameter width (1, 2, 4, 8) to the wide-form
// LITERAL opcode using it.
var literalWideOpcode = map[int]byte{}

// copyOpcode maps a (len1, len2) width pair to its COPY opcode byte.
var copyOpcode = map[[2]int]byte{}

func init() {
	// 0x00: END.
	opcodeTable[0x00] = Descriptor{Kind: KindEnd}

	// 0x01..0x40: immediate-mode LITERAL, length 1..64 carried in the
	// opcode byte itself.
	for length := opImmediateLiteralMin; length <= opImmediateLiteralMax; length++ {
		opcodeTable[length] = Descriptor{Kind: KindLiteral, Immediate: true}
	}

	// Wide-form LITERAL: one opcode per parameter width, used when the
	// length exceeds MaxImmediateLiteralLength.
	next := byte(opImmediateLiteralMax + 1)
	for _, w := range widths {
		opcodeTable[next] = Descriptor{Kind: KindLiteral, Len1: w}
		literalWideOpcode[w] = next
		next++
	}

	// COPY: one opcode per (offset width, length width) combination.
	for _, w1 := range widths {
		for _, w2 := range widths {
			opcodeTable[next] = Descriptor{Kind: KindCopy, Len1: w1, Len2: w2}
			copyOpcode[[2]int{w1, w2}] = next
			next++
		}
	}

	// Everything else is reserved.
	for i := int(next); i < 256; i++ {
		opcodeTable[i] = Descriptor{Kind: KindReserved}
	}
}

// Lookup returns the descriptor for a command byte.
func Lookup(command byte) Descriptor {
	return opcodeTable[command]
}

// ErrCorrupt is returned by the Encode helpers when a command cannot be
// represented (a zero-length literal, or parameters too large for any
// opcode); it maps to the RS_CORRUPT result code.
var ErrCorrupt = errors.New("corrupt rdelta stream")

// widthFor returns the smallest supported width that can hold v; any value
// above 0xFFFFFFFF gets the widest (8-byte) width.
func widthFor(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

// EncodeLiteralHeader picks the minimum-length encoding for a LITERAL
// command of the given length and returns the opcode byte to write. If the
// chosen form is immediate, no further parameter bytes are written before
// the length bytes of literal payload; otherwise the caller must follow the
// returned opcode with the length-width big-endian encoding of length
// (see AppendParam).
func EncodeLiteralHeader(length uint64) (byte, Descriptor, error) {
	if length == 0 {
		return 0, Descriptor{}, fmt.Errorf("%w: zero-length literal", ErrCorrupt)
	}
	if length <= MaxImmediateLiteralLength {
		return byte(length), opcodeTable[byte(length)], nil
	}
	w := widthFor(length)
	op, ok := literalWideOpcode[w]
	if !ok {
		return 0, Descriptor{}, fmt.Errorf("%w: literal length too large", ErrCorrupt)
	}
	return op, opcodeTable[op], nil
}

// EncodeCopyHeader picks the minimum-length encoding for a COPY(offset,
// length) command and returns the opcode byte. The caller must follow it
// with AppendParam(offset, descriptor.Len1) then AppendParam(length,
// descriptor.Len2).
func EncodeCopyHeader(offset, length uint64) (byte, Descriptor, error) {
	w1, w2 := widthFor(offset), widthFor(length)
	op, ok := copyOpcode[[2]int{w1, w2}]
	if !ok {
		return 0, Descriptor{}, fmt.Errorf("%w: copy parameters too large", ErrCorrupt)
	}
	return op, opcodeTable[op], nil
}

// AppendParam appends the big-endian, width-byte encoding of v to buf. width
// must be one of 1, 2, 4, or 8; width 0 appends nothing.
func AppendParam(buf []byte, v uint64, width int) []byte {
	switch width {
	case 0:
		return buf
	case 1:
		return append(buf, byte(v))
	case 2:
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(v))
		return append(buf, tmp[:]...)
	case 4:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	case 8:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], v)
		return append(buf, tmp[:]...)
	default:
		panic("invalid parameter width")
	}
}

// DecodeParam decodes a big-endian parameter of the given width from the
// front of buf. It panics if len(buf) < width; callers are expected to have
// accumulated exactly that many bytes beforehand (the job runtime's tube
// guarantees this).
func DecodeParam(buf []byte, width int) uint64 {
	switch width {
	case 0:
		return 0
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(buf))
	case 4:
		return uint64(binary.BigEndian.Uint32(buf))
	case 8:
		return binary.BigEndian.Uint64(buf)
	default:
		panic("invalid parameter width")
	}
}
