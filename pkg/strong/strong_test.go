package strong

import (
	"bytes"
	"testing"

	"github.com/rdelta/rdelta/pkg/wire"
)

func TestDeterministicAndResettable(t *testing.T) {
	for _, kind := range []wire.StrongKind{wire.StrongMD4, wire.StrongBlake2b} {
		h := New(kind, wire.MagicSignatureRabinKarpBlake2b)
		h.Write([]byte("hello, world"))
		first := h.Finalize()

		h.Reset()
		h.Write([]byte("hello, world"))
		second := h.Finalize()

		if !bytes.Equal(first, second) {
			t.Fatalf("kind %v: digest not deterministic across Reset", kind)
		}
		if len(first) != Size(kind) {
			t.Fatalf("kind %v: expected digest length %d, got %d", kind, Size(kind), len(first))
		}
	}
}

func TestBlake2bKeyedByMagicDiffers(t *testing.T) {
	a := New(wire.StrongBlake2b, wire.MagicSignatureRabinKarpBlake2b)
	a.Write([]byte("same content"))
	da := a.Finalize()

	b := New(wire.StrongBlake2b, wire.MagicSignatureClassicBlake2b)
	b.Write([]byte("same content"))
	db := b.Finalize()

	if bytes.Equal(da, db) {
		t.Fatal("expected different magic keys to produce different digests for the same content")
	}
}
