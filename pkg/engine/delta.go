package engine

import (
	"bytes"

	"github.com/rdelta/rdelta/pkg/signature"
	"github.com/rdelta/rdelta/pkg/strong"
	"github.com/rdelta/rdelta/pkg/weak"
	"github.com/rdelta/rdelta/pkg/wire"
)

// maxPendingLiteral bounds how much unmatched target data a delta job will
// accumulate before forcibly emitting it as LITERAL commands, keeping
// memory use independent of how long a run of non-matching data is (spec
// §4.4's requirement that a job never need to buffer an entire input).
// Grounded on the teacher's Engine.Deltafy, which bounds its scan buffer to
// maxDataOpSize+blockSize for the same reason.
const maxPendingLiteral = 32 * 1024

// literalChunkSize bounds the payload of a single emitted LITERAL command
// so it always fits within the tube's scratch buffer, regardless of how
// much pending literal data maxPendingLiteral allows accumulating.
const literalChunkSize = 4096

// deltaState holds a delta-producer job's scan position and output queue.
type deltaState struct {
	sig         *signature.Signature
	weakHash    weak.Weak
	strongHash  strong.Strong
	blockLength int

	// buf holds [preceding unmatched bytes][current bl-byte candidate
	// window], exactly mirroring the teacher's Deltafy scan buffer. It is
	// either empty or at least blockLength bytes long except transiently
	// while priming.
	buf []byte
	// candScratch is reused across calls to avoid per-candidate-lookup
	// allocation.
	candScratch []int

	// pendingCopyStart/Len/havePendingCopy implement COPY coalescing:
	// adjacent matched blocks are merged into a single COPY command
	// instead of being emitted individually.
	pendingCopyStart uint64
	pendingCopyLen   uint64
	havePendingCopy  bool

	// outQueue holds wire-encoded commands awaiting emission; resume is the
	// statefun to continue at once the queue drains (nil means the job is
	// done once the queue is empty).
	outQueue [][]byte
	resume   statefun
}

// encodeLiteral wire-encodes a LITERAL command for data, which must be
// non-empty and no longer than literalChunkSize (so its length always fits
// the immediate form or a width-1 or width-2 parameter).
func encodeLiteral(data []byte) []byte {
	op, desc, err := wire.EncodeLiteralHeader(uint64(len(data)))
	if err != nil {
		panic("engine: invalid literal chunk: " + err.Error())
	}
	buf := make([]byte, 0, desc.TotalSize()+len(data))
	buf = append(buf, op)
	if !desc.Immediate {
		buf = wire.AppendParam(buf, uint64(len(data)), desc.Len1)
	}
	return append(buf, data...)
}

// encodeCopy wire-encodes a COPY(offset, length) command.
func encodeCopy(offset, length uint64) []byte {
	op, desc, err := wire.EncodeCopyHeader(offset, length)
	if err != nil {
		panic("engine: invalid copy parameters: " + err.Error())
	}
	buf := make([]byte, 0, desc.TotalSize())
	buf = append(buf, op)
	buf = wire.AppendParam(buf, offset, desc.Len1)
	return wire.AppendParam(buf, length, desc.Len2)
}

// appendLiteralFrames splits data into literalChunkSize pieces, wire-encodes
// each as a LITERAL command appended to frames, and updates stats.
func appendLiteralFrames(frames [][]byte, data []byte, j *Job) [][]byte {
	for len(data) > 0 {
		n := len(data)
		if n > literalChunkSize {
			n = literalChunkSize
		}
		frames = append(frames, encodeLiteral(data[:n]))
		j.stats.LiteralCommands++
		j.stats.LiteralBytes += uint64(n)
		data = data[n:]
	}
	return frames
}

// appendCopyFrame wire-encodes one COPY command and updates stats.
func appendCopyFrame(frames [][]byte, start, length uint64, j *Job) [][]byte {
	frames = append(frames, encodeCopy(start, length))
	j.stats.CopyCommands++
	j.stats.CopyBytes += length
	return frames
}

// sendData flushes any pending coalesced COPY ahead of non-empty preceding
// data (since it occurred earlier in the stream), then emits that data as
// one or more LITERAL commands.
func (st *deltaState) sendData(preceding []byte, j *Job) [][]byte {
	var frames [][]byte
	if len(preceding) > 0 && st.havePendingCopy {
		frames = appendCopyFrame(frames, st.pendingCopyStart, st.pendingCopyLen, j)
		st.havePendingCopy = false
	}
	return appendLiteralFrames(frames, preceding, j)
}

// sendBlock folds a newly matched block into the pending coalesced COPY if
// it's contiguous with it, otherwise flushes the old one and starts a new
// one.
func (st *deltaState) sendBlock(start, length uint64, frames [][]byte, j *Job) [][]byte {
	if st.havePendingCopy {
		if st.pendingCopyStart+st.pendingCopyLen == start {
			st.pendingCopyLen += length
			return frames
		}
		frames = appendCopyFrame(frames, st.pendingCopyStart, st.pendingCopyLen, j)
	}
	st.pendingCopyStart, st.pendingCopyLen = start, length
	st.havePendingCopy = true
	return frames
}

// finishFrames flushes any pending COPY, emits whatever is left in buf as a
// final LITERAL run, and terminates the stream.
func (st *deltaState) finishFrames(j *Job) [][]byte {
	var frames [][]byte
	if st.havePendingCopy {
		frames = appendCopyFrame(frames, st.pendingCopyStart, st.pendingCopyLen, j)
		st.havePendingCopy = false
	}
	frames = appendLiteralFrames(frames, st.buf, j)
	st.buf = nil
	return append(frames, []byte{0x00})
}

// deltaDrain emits queued wire commands one at a time, yielding Blocked
// without losing its place if output room runs out mid-command, and
// advancing to resume (or reporting Done, if resume is nil) once the queue
// empties.
func deltaDrain(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.delta
	if len(st.outQueue) > 0 {
		// Pop before emitting: j.emit hands data to the tube, which alone
		// owns delivering it in full (now, or later out of outHeld via
		// flushOut) -- emitting the same entry again on a resumed call
		// would duplicate whatever the tube already queued for delivery.
		data := st.outQueue[0]
		st.outQueue = st.outQueue[1:]
		if !j.emit(b, data) {
			return deltaDrain, Blocked, nil
		}
	}
	if len(st.outQueue) > 0 {
		return deltaDrain, running, nil
	}
	if st.resume == nil {
		return nil, Done, nil
	}
	return st.resume, running, nil
}

// deltaHeader emits the stream's magic number, then moves to scanning.
func deltaHeader(j *Job, b *Buffers) (statefun, Result, error) {
	j.delta.outQueue = [][]byte{wire.AppendParam(nil, uint64(wire.MagicDelta), 4)}
	j.delta.resume = deltaScan
	return deltaDrain(j, b)
}

// matchTail attempts to match the final, shorter-than-blockLength run of
// target bytes at the end of buf against a signature block of the same
// actual length (the basis's own final block, if short). On a match it also
// returns how many bytes of buf precede the matched run. It mirrors
// deltaScan's full-window match logic but primes the weak hash from scratch
// over the short run instead of rolling into it, since a rolled window's
// weak-hash state always reflects a full blockLength count while a block
// hashed as short during signature generation reflects its true, shorter
// count.
func matchTail(st *deltaState, j *Job) (uint64, uint64, int, bool) {
	if st.sig.IsEmpty() {
		return 0, 0, 0, false
	}
	tailLen := st.sig.Hashes[len(st.sig.Hashes)-1].Length
	if tailLen == st.sig.BlockLength || tailLen > uint64(len(st.buf)) {
		return 0, 0, 0, false
	}
	tail := st.buf[len(st.buf)-int(tailLen):]
	st.weakHash.Init()
	for _, c := range tail {
		st.weakHash.RollIn(c)
	}
	st.candScratch = st.sig.AppendCandidates(st.weakHash.Digest(), st.candScratch[:0])
	if len(st.candScratch) == 0 {
		return 0, 0, 0, false
	}
	st.strongHash.Reset()
	st.strongHash.Write(tail)
	full := st.strongHash.Finalize()
	trunc := full[:st.sig.StrongLength]
	for _, idx := range st.candScratch {
		if st.sig.Hashes[idx].Length != tailLen {
			continue
		}
		if bytes.Equal(trunc, st.sig.Hashes[idx].Strong) {
			start, end := st.sig.BlockRange(idx)
			return start, end - start, len(st.buf) - len(tail), true
		}
		j.stats.FalseMatches++
	}
	return 0, 0, 0, false
}

// deltaFinishAtEOF runs once target input is exhausted, whatever is left in
// buf (possibly nothing): it tries one last match of buf's trailing bytes
// against a short final basis block, then flushes everything pending.
func deltaFinishAtEOF(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.delta
	var tail [][]byte
	if start, length, preceding, ok := matchTail(st, j); ok {
		tail = st.sendData(st.buf[:preceding], j)
		tail = st.sendBlock(start, length, tail, j)
		st.buf = nil
	}
	st.outQueue = append(tail, st.finishFrames(j)...)
	st.resume = nil
	return deltaDrain(j, b)
}

// deltaScan is the core scanning loop: prime a blockLength-byte window,
// then roll it forward one byte at a time, checking for a signature match
// at every position, exactly as the teacher's Engine.Deltafy does, but
// reading through the pull-model tube instead of an io.Reader and emitting
// wire-encoded commands instead of in-memory Operation values.
func deltaScan(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.delta
	bl := st.blockLength

	if len(st.buf) < bl {
		data, complete := j.readChunk(b, bl-len(st.buf))
		if !complete {
			return deltaScan, Blocked, nil
		}
		st.buf = append(st.buf, data...)
		if len(st.buf) < bl {
			return deltaFinishAtEOF(j, b)
		}
		st.weakHash.Init()
		for _, c := range st.buf {
			st.weakHash.RollIn(c)
		}
	} else {
		data, complete := j.readChunk(b, 1)
		if !complete {
			return deltaScan, Blocked, nil
		}
		if len(data) == 0 {
			return deltaFinishAtEOF(j, b)
		}
		out := st.buf[len(st.buf)-bl]
		st.weakHash.Rotate(out, data[0])
		st.buf = append(st.buf, data[0])
	}

	window := st.buf[len(st.buf)-bl:]
	st.candScratch = st.sig.AppendCandidates(st.weakHash.Digest(), st.candScratch[:0])

	matchIdx := -1
	if len(st.candScratch) > 0 {
		st.strongHash.Reset()
		st.strongHash.Write(window)
		full := st.strongHash.Finalize()
		trunc := full[:st.sig.StrongLength]
		for _, idx := range st.candScratch {
			if st.sig.Hashes[idx].Length != uint64(bl) {
				continue
			}
			if bytes.Equal(trunc, st.sig.Hashes[idx].Strong) {
				matchIdx = idx
				break
			}
			j.stats.FalseMatches++
		}
	}

	if matchIdx < 0 {
		if len(st.buf) >= maxPendingLiteral+bl {
			preceding := st.buf[:len(st.buf)-bl]
			frames := st.sendData(preceding, j)
			copy(st.buf, window)
			st.buf = st.buf[:bl]
			if len(frames) > 0 {
				st.outQueue = frames
				st.resume = deltaScan
				return deltaDrain(j, b)
			}
		}
		return deltaScan, running, nil
	}

	start, end := st.sig.BlockRange(matchIdx)
	preceding := st.buf[:len(st.buf)-bl]
	frames := st.sendData(preceding, j)
	frames = st.sendBlock(start, end-start, frames, j)
	st.buf = st.buf[:0]

	if len(frames) == 0 {
		return deltaScan, running, nil
	}
	st.outQueue = frames
	st.resume = deltaScan
	return deltaDrain(j, b)
}
