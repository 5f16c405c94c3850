package engine

import (
	"fmt"

	"github.com/rdelta/rdelta/pkg/wire"
)

// copyChunkSize bounds how many basis bytes a single COPY step reads and
// emits at once, so a huge COPY command never requires an equally huge
// internal buffer.
const copyChunkSize = 4096

// patchState holds a patch-applier job's basis callback and its progress
// through whatever command is currently being streamed.
type patchState struct {
	read BasisReader

	pendingWidth int // literal length width awaited by patchLiteralLen
	pendingLen1  int // copy offset width awaited by patchCopyParams
	pendingLen2  int // copy length width awaited by patchCopyParams

	remaining uint64 // bytes left to stream for the current LITERAL

	copyOffset    uint64 // next basis offset to read for the current COPY
	copyRemaining uint64 // bytes left to stream for the current COPY

	scratch []byte // reused basis-read buffer
}

// scratchWithSize returns the patch state's reusable basis-read buffer,
// resized (but not reallocated, if it already has enough capacity) to n.
func (st *patchState) scratchWithSize(n int) []byte {
	if cap(st.scratch) < n {
		st.scratch = make([]byte, n)
	}
	return st.scratch[:n]
}

// patchHeader reads and validates the stream's magic number.
func patchHeader(j *Job, b *Buffers) (statefun, Result, error) {
	data, complete := j.readChunk(b, 4)
	if !complete {
		return patchHeader, Blocked, nil
	}
	if len(data) < 4 {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended while reading magic"))
	}
	magic := wire.Magic(wire.DecodeParam(data, 4))
	if magic != wire.MagicDelta {
		return nil, BadMagic, newError(BadMagic, fmt.Errorf("0x%08x is not the delta stream magic", uint32(magic)))
	}
	return patchCmd, running, nil
}

// patchCmd reads one command byte and dispatches based on its descriptor.
func patchCmd(j *Job, b *Buffers) (statefun, Result, error) {
	data, complete := j.readChunk(b, 1)
	if !complete {
		return patchCmd, Blocked, nil
	}
	if len(data) == 0 {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended before an END command"))
	}

	op := data[0]
	desc := wire.Lookup(op)
	st := j.patch

	switch desc.Kind {
	case wire.KindEnd:
		return nil, Done, nil
	case wire.KindLiteral:
		if desc.Immediate {
			st.remaining = uint64(op)
			j.stats.LiteralCommands++
			return patchLiteralBody, running, nil
		}
		st.pendingWidth = desc.Len1
		return patchLiteralLen, running, nil
	case wire.KindCopy:
		st.pendingLen1, st.pendingLen2 = desc.Len1, desc.Len2
		return patchCopyParams, running, nil
	default:
		return nil, Corrupt, newError(Corrupt, fmt.Errorf("reserved or unrecognized opcode 0x%02x", op))
	}
}

// patchLiteralLen reads a wide-form LITERAL command's length parameter.
func patchLiteralLen(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.patch
	data, complete := j.readChunk(b, st.pendingWidth)
	if !complete {
		return patchLiteralLen, Blocked, nil
	}
	if len(data) < st.pendingWidth {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended while reading a literal length"))
	}
	length := wire.DecodeParam(data, st.pendingWidth)
	if length == 0 {
		return nil, Corrupt, newError(Corrupt, fmt.Errorf("zero-length literal"))
	}
	st.remaining = length
	j.stats.LiteralCommands++
	return patchLiteralBody, running, nil
}

// patchLiteralBody streams the current LITERAL command's payload straight
// from input to output, a window at a time, without requiring the whole
// payload to be present in the caller's buffer at once.
func patchLiteralBody(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.patch
	if st.remaining == 0 {
		return patchCmd, running, nil
	}

	want := copyChunkSize
	if st.remaining < uint64(want) {
		want = int(st.remaining)
	}
	data, n := j.readSome(b, want)
	if n == 0 {
		if !b.EOFIn {
			return patchLiteralBody, Blocked, nil
		}
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended mid-literal"))
	}

	ok := j.emit(b, data)
	st.remaining -= uint64(n)
	j.stats.LiteralBytes += uint64(n)
	if !ok {
		return patchLiteralBody, Blocked, nil
	}
	if st.remaining == 0 {
		return patchCmd, running, nil
	}
	return patchLiteralBody, running, nil
}

// patchCopyParams reads a COPY command's (offset, length) parameters.
func patchCopyParams(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.patch
	data, complete := j.readChunk(b, st.pendingLen1+st.pendingLen2)
	if !complete {
		return patchCopyParams, Blocked, nil
	}
	if len(data) < st.pendingLen1+st.pendingLen2 {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended while reading copy parameters"))
	}
	offset := wire.DecodeParam(data[:st.pendingLen1], st.pendingLen1)
	length := wire.DecodeParam(data[st.pendingLen1:], st.pendingLen2)
	if length == 0 {
		return nil, Corrupt, newError(Corrupt, fmt.Errorf("zero-length copy"))
	}
	st.copyOffset, st.copyRemaining = offset, length
	j.stats.CopyCommands++
	return patchCopyBody, running, nil
}

// patchCopyBody reads the current COPY command's basis range through the
// job's BasisReader, a chunk at a time, and streams it to output.
func patchCopyBody(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.patch
	if st.copyRemaining == 0 {
		return patchCmd, running, nil
	}

	want := copyChunkSize
	if st.copyRemaining < uint64(want) {
		want = int(st.copyRemaining)
	}
	buf := st.scratchWithSize(want)
	n, err := st.read(st.copyOffset, buf)
	if err != nil {
		return nil, IOError, newError(IOError, err)
	}
	if n == 0 {
		return nil, Corrupt, newError(Corrupt, fmt.Errorf(
			"basis reader returned no data for a pending copy of %d bytes at offset %d",
			st.copyRemaining, st.copyOffset,
		))
	}

	ok := j.emit(b, buf[:n])
	st.copyOffset += uint64(n)
	st.copyRemaining -= uint64(n)
	j.stats.CopyBytes += uint64(n)
	if !ok {
		return patchCopyBody, Blocked, nil
	}
	if st.copyRemaining == 0 {
		return patchCmd, running, nil
	}
	return patchCopyBody, running, nil
}
