package engine

import (
	"math/rand"
	"testing"

	"github.com/rdelta/rdelta/pkg/config"
)

// BenchmarkDeltaLargeFile benchmarks delta generation against a multi-
// megabyte basis with a handful of scattered single-byte edits, driven
// through small (4 KiB) buffers to exercise the same streaming path the
// small-buffer correctness tests do, not just a single giant call.
func BenchmarkDeltaLargeFile(b *testing.B) {
	const size = 4 << 20
	const bufferSize = 4096

	old := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(old)

	new := append([]byte(nil), old...)
	for _, offset := range []int{size / 7, size / 3, size / 2, 2 * size / 3} {
		new[offset] ^= 0xFF
	}

	cfg := config.Default()
	cfg.BlockLength = 4096

	sigJob, err := BeginSignature(cfg, nil)
	if err != nil {
		b.Fatalf("BeginSignature: %v", err)
	}
	sigBytes := driveForBench(b, sigJob, old, bufferSize)
	sigJob.Close()

	loadJob := BeginLoadSignature(nil)
	driveForBench(b, loadJob, sigBytes, bufferSize)
	sig, ok := loadJob.LoadedSignature()
	if !ok {
		b.Fatal("signature load did not complete")
	}
	loadJob.Close()

	// Reset the benchmark timer to exclude basis generation and signature
	// construction.
	b.ResetTimer()
	b.SetBytes(size)

	for i := 0; i < b.N; i++ {
		job, err := BeginDelta(sig, nil)
		if err != nil {
			b.Fatalf("BeginDelta: %v", err)
		}
		driveForBench(b, job, new, bufferSize)
		job.Close()
	}
}

// driveForBench is roundtrip_test.go's drive, duplicated here (rather than
// shared) so this file stays runnable standalone under `go test -bench`
// without depending on *testing.T-only helpers.
func driveForBench(tb testing.TB, job *Job, input []byte, chunkSize int) []byte {
	tb.Helper()

	var out []byte
	pos := 0
	for {
		end := pos + chunkSize
		if end > len(input) {
			end = len(input)
		}
		bufs := &Buffers{
			NextIn:  input[pos:end],
			EOFIn:   end == len(input),
			NextOut: make([]byte, chunkSize),
		}
		room := len(bufs.NextOut)

		result, err := job.Iter(bufs)
		if err != nil && result != Done {
			tb.Fatalf("job error: %v (result=%v)", err, result)
		}

		pos += (end - pos) - len(bufs.NextIn)
		out = append(out, bufs.NextOut[:room-len(bufs.NextOut)]...)

		if result == Done {
			return out
		}
	}
}
