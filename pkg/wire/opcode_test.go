package wire

import "testing"

// TestLiteralEncodeDecodeRoundTrip checks that every representable LITERAL
// length survives an encode/decode round trip and that the chosen encoding
// is minimum-length (per the opcode table property in the spec).
func TestLiteralEncodeDecodeRoundTrip(t *testing.T) {
	lengths := []uint64{1, 2, 63, 64, 65, 66, 255, 256, 65535, 65536, 1 << 32, (1 << 32) + 1}
	for _, length := range lengths {
		op, desc, err := EncodeLiteralHeader(length)
		if err != nil {
			t.Fatalf("EncodeLiteralHeader(%d): %v", length, err)
		}
		if desc.Kind != KindLiteral {
			t.Fatalf("length %d: expected KindLiteral, got %v", length, desc.Kind)
		}

		// Verify minimality: immediate form whenever possible.
		if length <= MaxImmediateLiteralLength && !desc.Immediate {
			t.Fatalf("length %d: expected immediate encoding", length)
		}

		var decodedLength uint64
		if desc.Immediate {
			decodedLength = uint64(op)
		} else {
			buf := AppendParam(nil, length, desc.Len1)
			if len(buf) != desc.Len1 {
				t.Fatalf("length %d: param buffer has wrong size", length)
			}
			decodedLength = DecodeParam(buf, desc.Len1)
		}

		if decodedLength != length {
			t.Fatalf("length %d: round-tripped to %d", length, decodedLength)
		}

		// Confirm the table entry for op matches what Lookup would say.
		if Lookup(op) != desc {
			t.Fatalf("length %d: Lookup(op) does not match returned descriptor", length)
		}
	}
}

// TestLiteralZeroLengthRejected ensures a zero-length literal (which cannot
// be represented, since immediate mode starts at 1) is rejected.
func TestLiteralZeroLengthRejected(t *testing.T) {
	if _, _, err := EncodeLiteralHeader(0); err == nil {
		t.Fatal("expected error encoding zero-length literal")
	}
}

// TestCopyEncodeDecodeRoundTrip checks the COPY encoding for a range of
// offset/length pairs, including ones that force larger parameter widths.
func TestCopyEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct{ offset, length uint64 }{
		{0, 8},
		{2, 6},
		{255, 255},
		{256, 65535},
		{65536, 1},
		{1 << 32, 1 << 20},
		{0, 0xFFFFFFFFFFFFFFFF},
	}
	for _, c := range cases {
		op, desc, err := EncodeCopyHeader(c.offset, c.length)
		if err != nil {
			t.Fatalf("EncodeCopyHeader(%d, %d): %v", c.offset, c.length, err)
		}
		if desc.Kind != KindCopy {
			t.Fatalf("offset %d length %d: expected KindCopy, got %v", c.offset, c.length, desc.Kind)
		}

		buf := AppendParam(nil, c.offset, desc.Len1)
		buf = AppendParam(buf, c.length, desc.Len2)
		if len(buf) != desc.Len1+desc.Len2 {
			t.Fatalf("offset %d length %d: unexpected encoded size", c.offset, c.length)
		}

		gotOffset := DecodeParam(buf[:desc.Len1], desc.Len1)
		gotLength := DecodeParam(buf[desc.Len1:], desc.Len2)
		if gotOffset != c.offset || gotLength != c.length {
			t.Fatalf("offset %d length %d: round-tripped to %d, %d", c.offset, c.length, gotOffset, gotLength)
		}

		if Lookup(op) != desc {
			t.Fatalf("offset %d length %d: Lookup(op) does not match returned descriptor", c.offset, c.length)
		}
	}
}

// TestReservedOpcodesRejectDecode verifies that opcodes outside the
// assigned ranges are marked KindReserved.
func TestReservedOpcodesRejectDecode(t *testing.T) {
	// 0x55 is the first opcode past the assigned COPY range (0x45..0x54).
	for _, op := range []byte{0x55, 0x80, 0xFF} {
		if Lookup(op).Kind != KindReserved {
			t.Fatalf("expected opcode 0x%02x to be reserved, got %v", op, Lookup(op).Kind)
		}
	}
}
