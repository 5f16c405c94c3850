package engine

// maxTubeSize is the nominal size of a job's internal scratch buffer: room
// for a signature/delta header plus one maximal-width command, with
// headroom. Nothing in the runtime enforces it: inAccum grows to the
// largest record a statefun asks for (a whole block, up to 65536 bytes, for
// signature and delta jobs fed in small pieces), and outHeld to the unsent
// part of one emitted command.
const maxTubeSize = 8 * 1024

// tube is the runtime's internal scratch buffer. It serves two purposes:
// holding output a statefun produced but that didn't fit in the caller's
// current NextOut (outHeld), and accumulating fragmented input until a
// statefun has enough contiguous bytes to decode a fixed-size record
// (inAccum).
type tube struct {
	outHeld []byte
	inAccum []byte
}

// flushOut copies as much of outHeld as fits into b.NextOut, advancing both.
// It reports whether outHeld is now fully drained; if not, the caller must
// report Blocked without invoking any statefun, since output ordering would
// otherwise be violated.
func (t *tube) flushOut(b *Buffers) bool {
	if len(t.outHeld) == 0 {
		return true
	}
	n := copy(b.NextOut, t.outHeld)
	b.NextOut = b.NextOut[n:]
	t.outHeld = t.outHeld[n:]
	return len(t.outHeld) == 0
}

// push writes data to b.NextOut, holding whatever doesn't fit for the next
// flushOut. It assumes outHeld is already empty (Iter guarantees this
// before invoking any statefun). It reports whether all of data was written
// directly (true) or some had to be held (false, meaning the job should
// report Blocked once it has nothing else to do this call).
func (t *tube) push(b *Buffers, data []byte) bool {
	n := copy(b.NextOut, data)
	b.NextOut = b.NextOut[n:]
	if n < len(data) {
		t.outHeld = append(t.outHeld[:0], data[n:]...)
		return false
	}
	return true
}

// takeSome returns up to max bytes directly from whatever input is
// immediately available -- the accumulator first, if non-empty, otherwise
// b.NextIn -- without waiting to accumulate a full record. It never blocks
// and may return zero bytes. Unlike fillUpTo, it is for pure pass-through
// streaming (a patch job's LITERAL payload), where there is no fixed record
// size to wait for.
func (t *tube) takeSome(b *Buffers, max int) []byte {
	if len(t.inAccum) > 0 {
		n := len(t.inAccum)
		if n > max {
			n = max
		}
		data := t.inAccum[:n]
		t.inAccum = t.inAccum[n:]
		return data
	}
	n := len(b.NextIn)
	if n > max {
		n = max
	}
	data := b.NextIn[:n]
	b.NextIn = b.NextIn[n:]
	return data
}

// fillUpTo accumulates bytes from b.NextIn (and any previously-accumulated
// remainder) until either want bytes are available or b.EOFIn becomes true.
// It reports (data, true) once one of those conditions is met: data has
// length want in the first case, or length less than want (possibly zero)
// in the EOF case. It reports (nil, false) when more input is needed and
// none is available yet (the caller should report Blocked).
//
// The returned slice is only valid until the next tube operation; callers
// that need to retain it past that point (the signature/delta block
// content itself) must copy it.
func (t *tube) fillUpTo(b *Buffers, want int) (data []byte, complete bool) {
	if len(t.inAccum) == 0 && len(b.NextIn) >= want {
		data = b.NextIn[:want]
		b.NextIn = b.NextIn[want:]
		return data, true
	}

	need := want - len(t.inAccum)
	if need > 0 {
		take := need
		if take > len(b.NextIn) {
			take = len(b.NextIn)
		}
		t.inAccum = append(t.inAccum, b.NextIn[:take]...)
		b.NextIn = b.NextIn[take:]
	}

	if len(t.inAccum) >= want {
		data = t.inAccum[:want]
		t.inAccum = t.inAccum[:0]
		return data, true
	}
	if b.EOFIn {
		data = t.inAccum
		t.inAccum = nil
		return data, true
	}
	return nil, false
}
