package engine

import (
	"bytes"
	"testing"

	"github.com/rdelta/rdelta/pkg/config"
	"github.com/rdelta/rdelta/pkg/signature"
)

// drive repeatedly calls job.Iter, feeding input in chunkSize pieces (or all
// at once if chunkSize <= 0) and collecting output in chunkSize-sized output
// windows, until the job reports Done or a terminal error.
func drive(t *testing.T, job *Job, input []byte, chunkSize int) []byte {
	t.Helper()

	outChunk := chunkSize
	if outChunk <= 0 {
		outChunk = 1 << 20
	}
	inChunk := chunkSize
	if inChunk <= 0 {
		inChunk = len(input) + 1
	}

	var out []byte
	pos := 0
	// A job can only legitimately stall (repeated Blocked with no input
	// consumed and no output produced) for a bounded number of calls once
	// EOF has been signaled; anything beyond that is a stuck state machine,
	// not a slow one.
	stalls := 0
	for iterations := 0; ; iterations++ {
		if iterations > len(input)*4+1000 {
			t.Fatalf("job made no progress after %d iterations: stats=%s", iterations, job.Stats())
		}

		end := pos + inChunk
		if end > len(input) {
			end = len(input)
		}
		b := &Buffers{
			NextIn:  input[pos:end],
			EOFIn:   end == len(input),
			NextOut: make([]byte, outChunk),
		}
		room := len(b.NextOut)

		result, err := job.Iter(b)
		if err != nil && result != Done {
			t.Fatalf("job error: %v (result=%v)", err, result)
		}

		consumed := (end - pos) - len(b.NextIn)
		produced := room - len(b.NextOut)
		pos += consumed
		out = append(out, b.NextOut[:produced]...)

		if result == Done {
			return out
		}
		if consumed == 0 && produced == 0 {
			stalls++
			if stalls > 10 {
				t.Fatalf("job stalled with EOFIn=%v, pos=%d/%d", b.EOFIn, pos, len(input))
			}
		} else {
			stalls = 0
		}
	}
}

// buildSignatureBytes runs a full signature job over basis and returns the wire
// bytes produced.
func buildSignatureBytes(t *testing.T, basis []byte, cfg config.Tunables, chunkSize int) []byte {
	t.Helper()
	job, err := BeginSignature(cfg, nil)
	if err != nil {
		t.Fatalf("BeginSignature: %v", err)
	}
	defer job.Close()
	return drive(t, job, basis, chunkSize)
}

// loadSignature decodes sigBytes into a *signature.Signature.
func loadSignature(t *testing.T, sigBytes []byte, chunkSize int) *signature.Signature {
	t.Helper()
	job := BeginLoadSignature(nil)
	defer job.Close()
	drive(t, job, sigBytes, chunkSize)
	sig, ok := job.LoadedSignature()
	if !ok {
		t.Fatalf("signature job did not complete")
	}
	return sig
}

// buildDelta runs a full delta job of target against sig and returns the
// wire bytes produced.
func buildDelta(t *testing.T, sig *signature.Signature, target []byte, chunkSize int) []byte {
	t.Helper()
	job, err := BeginDelta(sig, nil)
	if err != nil {
		t.Fatalf("BeginDelta: %v", err)
	}
	defer job.Close()
	return drive(t, job, target, chunkSize)
}

// applyPatch runs a full patch job of deltaBytes against basis and returns
// the recovered bytes.
func applyPatch(t *testing.T, basis, deltaBytes []byte, chunkSize int) []byte {
	t.Helper()
	read := func(offset uint64, buf []byte) (int, error) {
		if offset >= uint64(len(basis)) {
			return 0, nil
		}
		return copy(buf, basis[offset:]), nil
	}
	job, err := BeginPatch(read, nil)
	if err != nil {
		t.Fatalf("BeginPatch: %v", err)
	}
	defer job.Close()
	return drive(t, job, deltaBytes, chunkSize)
}

// roundTrip runs the full sig -> load -> delta -> patch pipeline and asserts
// the recovered bytes equal new, for every buffer chunk size in chunkSizes.
func roundTrip(t *testing.T, old, new []byte, blockLength uint64, chunkSizes []int) {
	t.Helper()
	cfg := config.Default()
	cfg.BlockLength = blockLength

	for _, chunkSize := range chunkSizes {
		sigBytes := buildSignatureBytes(t, old, cfg, chunkSize)
		sig := loadSignature(t, sigBytes, chunkSize)
		deltaBytes := buildDelta(t, sig, new, chunkSize)
		recovered := applyPatch(t, old, deltaBytes, chunkSize)
		if !bytes.Equal(recovered, new) {
			t.Fatalf("chunkSize=%d: recovered %q, want %q", chunkSize, recovered, new)
		}
	}
}

// chunkSizes drives every test through a 1-byte-at-a-time pass (streaming
// equivalence) and a single-giant-buffer pass.
var chunkSizes = []int{1, 0}

func TestRoundTripIdentical(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 50)
	roundTrip(t, data, append([]byte(nil), data...), 16, chunkSizes)
}

func TestRoundTripDisjoint(t *testing.T) {
	old := bytes.Repeat([]byte("aaaaaaaa"), 50)
	new := bytes.Repeat([]byte("zzzzzzzz"), 50)
	roundTrip(t, old, new, 16, chunkSizes)
}

func TestRoundTripSharedPrefix(t *testing.T) {
	old := append([]byte("the quick brown fox jumps over"), bytes.Repeat([]byte("x"), 100)...)
	new := append([]byte("the quick brown fox jumps over"), bytes.Repeat([]byte("y"), 80)...)
	roundTrip(t, old, new, 8, chunkSizes)
}

func TestRoundTripSharedSuffix(t *testing.T) {
	old := append(bytes.Repeat([]byte("x"), 100), []byte("the lazy dog sleeps soundly")...)
	new := append(bytes.Repeat([]byte("y"), 80), []byte("the lazy dog sleeps soundly")...)
	roundTrip(t, old, new, 8, chunkSizes)
}

func TestRoundTripInteriorRunCrossingBlockBoundary(t *testing.T) {
	shared := bytes.Repeat([]byte("0123456789"), 20) // 200 bytes, crosses many 16-byte blocks
	old := append(append([]byte("HEAD-"), shared...), []byte("-TAIL-OLD")...)
	new := append(append([]byte("DIFFERENT-HEADER-"), shared...), []byte("-DIFFERENT-TAIL")...)
	roundTrip(t, old, new, 16, chunkSizes)
}

func TestRoundTripEmptyOld(t *testing.T) {
	roundTrip(t, nil, []byte("hello"), 16, chunkSizes)
}

func TestRoundTripEmptyNew(t *testing.T) {
	roundTrip(t, []byte("hello"), nil, 16, chunkSizes)
}

func TestRoundTripBothEmpty(t *testing.T) {
	roundTrip(t, nil, nil, 16, chunkSizes)
}

func TestRoundTripShortFinalBlockMatches(t *testing.T) {
	// blockLength 16 over a 37-byte basis leaves a 5-byte final block; make
	// new end with exactly that short tail so the delta must match it.
	old := []byte("0123456789ABCDEF0123456789ABCDEFghijk")
	new := append(bytes.Repeat([]byte("Z"), 9), old[len(old)-5:]...)
	roundTrip(t, old, new, 16, chunkSizes)
}
