// Package engine implements the pull-driven state-machine runtime (spec
// §4.5) that drives signature generation, signature loading, delta
// generation, and patch application across caller-owned, arbitrarily
// chopped input/output buffers. The runtime itself never performs I/O or
// blocks; it only ever returns Blocked and waits to be called again with
// more room.
package engine

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rdelta/rdelta/pkg/logging"
)

// Result is one of the outcomes of a call to Job.Iter.
type Result int

const (
	// running is returned internally by a statefun to mean "advance to the
	// next statefun and keep going without returning to the caller." It is
	// never returned by Iter.
	running Result = iota
	// Done indicates the operation completed successfully; no further
	// input will be consumed or output produced.
	Done
	// Blocked indicates the job cannot proceed without more input space,
	// more output room, or both; the caller should supply more buffer and
	// call Iter again. Blocked is always recoverable.
	Blocked
	// IOError indicates a caller-supplied callback (the patch job's basis
	// reader) returned an error, which is propagated unchanged.
	IOError
	// MemError indicates an allocation failure. Non-recoverable.
	MemError
	// InputEnded indicates more input is required to complete a record but
	// eof_in was true.
	InputEnded
	// BadMagic indicates the stream prefix was not in the accepted set.
	BadMagic
	// Unimplemented indicates a feature the protocol allows for but this
	// implementation does not provide (e.g. the hinted CHECKSUM command).
	Unimplemented
	// Corrupt indicates a structurally-impossible value: an unknown
	// opcode, a block index beyond the signature, or similar.
	Corrupt
	// InternalError indicates an invariant violation: a bug in this
	// package, not in caller input.
	InternalError
	// ParamError indicates invalid arguments to a Begin function. No job
	// is created when this occurs.
	ParamError
)

// String renders a Result for logs and error messages.
func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case Blocked:
		return "blocked"
	case IOError:
		return "io_error"
	case MemError:
		return "mem_error"
	case InputEnded:
		return "input_ended"
	case BadMagic:
		return "bad_magic"
	case Unimplemented:
		return "unimplemented"
	case Corrupt:
		return "corrupt"
	case InternalError:
		return "internal_error"
	case ParamError:
		return "param_error"
	default:
		return "running"
	}
}

// Error is the terminal error type returned by Iter (and by Begin
// functions, with Code set to ParamError). It carries the Result code so
// callers can switch on kind, while still composing with
// errors.Is/As/Unwrap and github.com/pkg/errors' Cause() convention.
type Error struct {
	// Code is the result code this error corresponds to.
	Code Result
	// cause is the underlying error, if any (e.g. a wrapped callback
	// error, or a descriptive corruption message).
	cause error
}

// newError constructs an *Error, wrapping cause (if non-nil) with
// pkg/errors so a Cause() chain is preserved.
func newError(code Result, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Code: code, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code.String()
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause supports github.com/pkg/errors' Cause() convention, matching how
// the rest of this codebase (and its teacher) propagates wrapped errors.
func (e *Error) Cause() error {
	return e.cause
}

// BasisReader is the callback a patch job uses to read arbitrary ranges of
// the basis (old) file. It should write up to len(buf) bytes starting at
// offset into buf and return the number of bytes written. Returning fewer
// bytes than requested is not an error by itself -- the patch job will call
// again for the remainder -- but returning zero bytes for a request that
// expects more is reported as Corrupt (spec §9, open question on
// short-basis COPY semantics).
type BasisReader func(offset uint64, buf []byte) (int, error)

// Buffers is the pull-model I/O contract between a caller and a Job: the
// caller owns the backing arrays and slices them down as Iter consumes
// input and produces output, mirroring the avail_in/avail_out/next_in/
// next_out fields of the language-neutral API in spec §6 via Go slice
// length instead of an explicit counter.
type Buffers struct {
	// NextIn is the remaining unconsumed input. Iter advances it as it
	// consumes bytes.
	NextIn []byte
	// EOFIn, once set to true, promises that NextIn (across this and all
	// future calls) will never grow again -- no further input is coming.
	// Setting it back to false after having been true is undefined.
	EOFIn bool
	// NextOut is the remaining available output space. Iter advances it as
	// it produces bytes.
	NextOut []byte
}

// statefun is one node of a job's state machine: given the job and the
// current buffers, it either makes progress and reports how (running,
// Blocked, or Done, alongside the statefun to resume at), or reports a
// terminal error.
type statefun func(j *Job, b *Buffers) (next statefun, result Result, err error)

// kind identifies which of the four operations a Job is running.
type kind int

const (
	kindSignature kind = iota
	kindLoadSignature
	kindDelta
	kindPatch
)

// Stats accumulates counters over the lifetime of a single job, per spec §3.
type Stats struct {
	// JobID is this job's correlation identifier, also used as a logging
	// sublogger name.
	JobID uuid.UUID
	// Kind names the operation ("signature", "loadsig", "delta", "patch").
	Kind string
	// LiteralCommands and LiteralBytes count LITERAL commands emitted (by
	// a delta job) or applied (by a patch job).
	LiteralCommands, LiteralBytes uint64
	// CopyCommands and CopyBytes count COPY commands emitted or applied.
	CopyCommands, CopyBytes uint64
	// SignatureCommands counts (weak, strong) entries produced by a
	// signature job or consumed by a loadsig job.
	SignatureCommands uint64
	// FalseMatches counts weak-hash hits that did not survive strong-hash
	// confirmation during delta generation.
	FalseMatches uint64
	// BlockLength is the signature block length in effect for this job,
	// where applicable.
	BlockLength uint64
	// BytesIn and BytesOut are the total bytes consumed from and produced
	// to the job's buffers over its lifetime.
	BytesIn, BytesOut uint64
	// StartedAt is when the job was constructed. FinishedAt is when it
	// reached Done or a terminal error; it is the zero time until then.
	StartedAt, FinishedAt time.Time
}

// String renders a human-readable one-line summary of the job's
// statistics, suitable for a final log line once a job completes.
func (s Stats) String() string {
	elapsed := "in progress"
	if !s.FinishedAt.IsZero() {
		elapsed = s.FinishedAt.Sub(s.StartedAt).String()
	}
	return fmt.Sprintf(
		"%s %s: %s in / %s out, %s literal (%d cmds), %s copy (%d cmds), %d signature entries, %d false matches, %s",
		s.Kind, s.JobID.String()[:8],
		humanize.Bytes(s.BytesIn), humanize.Bytes(s.BytesOut),
		humanize.Bytes(s.LiteralBytes), s.LiteralCommands,
		humanize.Bytes(s.CopyBytes), s.CopyCommands,
		s.SignatureCommands, s.FalseMatches,
		elapsed,
	)
}

// Job is a running instance of one of the four engine operations. It is
// created by a Begin function, advanced by repeated calls to Iter until
// that returns Done or a terminal error, and then released with Close.
type Job struct {
	kind   kind
	state  statefun
	tube   tube
	logger *logging.Logger
	stats  Stats
	term   *Error
	closed bool

	sig    *sigState
	load   *loadState
	delta  *deltaState
	patch  *patchState
}

// newJob constructs the common Job scaffolding shared by all four Begin
// functions.
func newJob(k kind, kindName string, logger *logging.Logger) *Job {
	id := uuid.New()
	j := &Job{
		kind:   k,
		logger: logger.Sublogger(kindName + "-" + id.String()[:8]),
		stats:  Stats{JobID: id, Kind: kindName, StartedAt: time.Now()},
	}
	return j
}

// Stats returns a snapshot of the job's accumulated statistics.
func (j *Job) Stats() Stats {
	return j.stats
}

// Iter advances the job using whatever input and output room the caller
// currently provides, per spec §4.5: any output the job previously wanted
// to emit but couldn't fit is flushed first; if it still doesn't fit, Iter
// returns Blocked without invoking any statefun, preserving strict output
// ordering. Otherwise the job's current statefun runs repeatedly until it
// can't make further progress without more buffer space (Blocked),
// completes (Done), or fails (a non-nil error, whose Result is also
// returned).
func (j *Job) Iter(b *Buffers) (Result, error) {
	if j.closed {
		err := newError(InternalError, errors.New("Iter called on a closed job"))
		return err.Code, err
	}
	if j.term != nil {
		return j.term.Code, j.term
	}
	if j.state == nil {
		// Already completed successfully; further calls are harmless.
		return Done, nil
	}

	if !j.tube.flushOut(b) {
		return Blocked, nil
	}

	for {
		next, result, err := j.state(j, b)
		if err != nil {
			te, ok := err.(*Error)
			if !ok {
				code := result
				if code == running || code == Done {
					code = InternalError
				}
				te = newError(code, err)
			}
			j.term = te
			j.state = nil
			j.stats.FinishedAt = time.Now()
			j.logger.Error(te)
			return te.Code, te
		}

		switch result {
		case running:
			j.state = next
			continue
		case Done:
			j.state = nil
			j.stats.FinishedAt = time.Now()
			j.logger.Debugf("job done: %s", j.stats)
			return Done, nil
		case Blocked:
			j.state = next
			return Blocked, nil
		default:
			panic("statefun returned an invalid result code")
		}
	}
}

// readChunk requests want bytes from the input side of b, accumulating
// across calls via the job's tube as necessary. It reports (data, true)
// once either want bytes are available (len(data) == want) or b.EOFIn
// became true first (len(data) <= want, possibly zero); it reports
// (nil, false) when the caller should be told Blocked because more input
// is needed and none is available yet. The returned slice is only valid
// until the next call into the job; callers that need to retain bytes past
// that point must copy them.
func (j *Job) readChunk(b *Buffers, want int) (data []byte, complete bool) {
	before := len(b.NextIn)
	data, complete = j.tube.fillUpTo(b, want)
	j.stats.BytesIn += uint64(before - len(b.NextIn))
	return data, complete
}

// readSome returns up to want bytes available right now from the input side
// of b (which may be fewer than want, including zero, without that meaning
// EOF) for pure pass-through streaming, where a statefun has no fixed record
// size to wait for and wants to move data along as soon as any is available.
func (j *Job) readSome(b *Buffers, want int) (data []byte, n int) {
	before := len(b.NextIn)
	data = j.tube.takeSome(b, want)
	j.stats.BytesIn += uint64(before - len(b.NextIn))
	return data, len(data)
}

// emit writes data to the output side of b, holding any part that doesn't
// fit for later flushing. It reports whether all of data was written
// directly; a false result means the job should report Blocked once it has
// nothing else to do on this call.
func (j *Job) emit(b *Buffers, data []byte) bool {
	before := len(b.NextOut)
	ok := j.tube.push(b, data)
	j.stats.BytesOut += uint64(before - len(b.NextOut))
	return ok
}

// Close releases the job's internal buffers. It is idempotent. Go's
// garbage collector reclaims the memory regardless, but Close matches the
// explicit-lifecycle convention of the spec's language-neutral API (and of
// this repo's teacher, e.g. pkg/daemon's server lifecycle) and keeps Begin/
// Close symmetrical.
func (j *Job) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	j.tube = tube{}
	j.state = nil
	return nil
}
