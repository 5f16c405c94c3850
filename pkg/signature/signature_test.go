package signature

import (
	"math/rand"
	"testing"

	"github.com/rdelta/rdelta/pkg/wire"
)

func buildTestSignature(t *testing.T, n int) *Signature {
	t.Helper()
	sig, err := New(wire.MagicSignatureRabinKarpBlake2b, 4, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		strong := make([]byte, 8)
		rng.Read(strong)
		sig.AddBlock(uint32(i%7), strong, 4)
	}
	return sig
}

func TestEveryEntryFindableByWeakSum(t *testing.T) {
	sig := buildTestSignature(t, 100)
	sig.BuildIndex()

	for i, h := range sig.Hashes {
		candidates := sig.AppendCandidates(h.Weak, nil)
		found := false
		for _, c := range candidates {
			if c == i {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("block %d (weak=%d) not found among candidates %v", i, h.Weak, candidates)
		}
	}
}

func TestAbsentWeakSumReturnsEmpty(t *testing.T) {
	sig := buildTestSignature(t, 10)
	sig.BuildIndex()

	if got := sig.AppendCandidates(0xDEADBEEF, nil); len(got) != 0 {
		t.Fatalf("expected no candidates for absent weak sum, got %v", got)
	}
}

func TestBuildIndexIdempotent(t *testing.T) {
	sig := buildTestSignature(t, 50)
	sig.BuildIndex()
	first := sig.AppendCandidates(3, nil)

	sig.BuildIndex()
	second := sig.AppendCandidates(3, nil)

	if len(first) != len(second) {
		t.Fatalf("candidate count changed across rebuild: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("candidate order changed across rebuild: %v vs %v", first, second)
		}
	}
}

func TestEmptySignatureHasNoEntries(t *testing.T) {
	sig, err := New(wire.MagicSignatureRabinKarpBlake2b, 2048, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !sig.IsEmpty() {
		t.Fatal("expected fresh signature to be empty")
	}
	sig.BuildIndex()
	if got := sig.AppendCandidates(0, nil); len(got) != 0 {
		t.Fatalf("expected no candidates in an empty signature, got %v", got)
	}
}
