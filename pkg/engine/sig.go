package engine

import (
	"github.com/rdelta/rdelta/pkg/strong"
	"github.com/rdelta/rdelta/pkg/weak"
	"github.com/rdelta/rdelta/pkg/wire"
)

// sigState holds a signature-producer job's algorithm choices and the
// reusable hash instances it rolls over each block.
type sigState struct {
	magic        wire.Magic
	blockLength  uint64
	strongLength int
	weakHash     weak.Weak
	strongHash   strong.Strong

	// outQueue/resume let sigHeader emit its (possibly multi-call) header
	// exactly once even if it takes several Iter calls to fit through
	// b.NextOut: the header bytes are computed a single time and queued,
	// rather than reconstructed and re-emitted on every resumed call.
	outQueue [][]byte
	resume   statefun
}

// sigDrain emits queued wire bytes one entry at a time, yielding Blocked
// without losing its place if output room runs out mid-entry, and
// advancing to resume once the queue empties.
func sigDrain(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.sig
	if len(st.outQueue) > 0 {
		// Pop before emitting -- see deltaDrain's identical comment: the
		// tube alone owns delivering data already handed to j.emit.
		data := st.outQueue[0]
		st.outQueue = st.outQueue[1:]
		if !j.emit(b, data) {
			return sigDrain, Blocked, nil
		}
	}
	if len(st.outQueue) > 0 {
		return sigDrain, running, nil
	}
	return st.resume, running, nil
}

// sigHeader emits the signature stream's header -- magic, block length,
// and retained strong-hash length -- then moves on to hashing blocks.
func sigHeader(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.sig
	header := wire.AppendParam(nil, uint64(st.magic), 4)
	header = wire.AppendParam(header, st.blockLength, 4)
	header = wire.AppendParam(header, uint64(st.strongLength), 4)
	st.outQueue = [][]byte{header}
	st.resume = sigGenerate
	return sigDrain(j, b)
}

// sigGenerate reads one block's worth of basis data (fewer for a final
// short block), hashes it, and emits a (length, weak, strong) entry. It
// repeats until the basis is exhausted, then moves to sigEnd.
func sigGenerate(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.sig
	data, complete := j.readChunk(b, int(st.blockLength))
	if !complete {
		return sigGenerate, Blocked, nil
	}
	if len(data) == 0 {
		return sigEnd, running, nil
	}

	st.weakHash.Init()
	for _, c := range data {
		st.weakHash.RollIn(c)
	}
	weakSum := st.weakHash.Digest()

	st.strongHash.Reset()
	st.strongHash.Write(data)
	full := st.strongHash.Finalize()

	entry := wire.AppendParam(nil, uint64(len(data)), 4)
	entry = wire.AppendParam(entry, uint64(weakSum), 4)
	entry = append(entry, full[:st.strongLength]...)

	j.stats.SignatureCommands++

	ok := j.emit(b, entry)
	if !ok {
		return sigGenerate, Blocked, nil
	}
	return sigGenerate, running, nil
}

// sigEnd is a no-op terminal state: the signature format has no explicit
// end marker (a loader recognizes completion from a clean EOF between
// entries), so there's nothing left to emit once generation reaches the
// basis's end.
func sigEnd(j *Job, b *Buffers) (statefun, Result, error) {
	return nil, Done, nil
}
