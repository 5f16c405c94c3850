package engine

import (
	"fmt"

	"github.com/rdelta/rdelta/pkg/config"
	"github.com/rdelta/rdelta/pkg/logging"
	"github.com/rdelta/rdelta/pkg/signature"
	"github.com/rdelta/rdelta/pkg/strong"
	"github.com/rdelta/rdelta/pkg/weak"
)

// paramError wraps a construction-time validation failure as the *Error
// type Iter itself would return, so callers can handle both uniformly.
func paramError(err error) *Error {
	return newError(ParamError, err)
}

// BeginSignature starts a signature-generation job over a basis stream fed
// through Buffers.NextIn. cfg selects the algorithm pair (normally
// config.Default(), optionally overridden); its BlockLength and
// StrongLength are resolved to their defaults when left zero.
func BeginSignature(cfg config.Tunables, logger *logging.Logger) (*Job, error) {
	magic, err := cfg.Magic()
	if err != nil {
		return nil, paramError(err)
	}
	blockLength := cfg.ResolvedBlockLength()
	strongLength := cfg.ResolvedStrongLength()

	j := newJob(kindSignature, "signature", logger)
	j.stats.BlockLength = blockLength
	j.sig = &sigState{
		magic:        magic,
		blockLength:  blockLength,
		strongLength: strongLength,
		weakHash:     weak.New(cfg.Weak),
		strongHash:   strong.New(cfg.Strong, magic),
	}
	j.state = sigHeader
	return j, nil
}

// BeginLoadSignature starts a job that decodes a signature stream (as
// produced by a signature job) into an in-memory *signature.Signature. Once
// Iter reports Done, call LoadedSignature to retrieve the result.
func BeginLoadSignature(logger *logging.Logger) *Job {
	j := newJob(kindLoadSignature, "loadsig", logger)
	j.load = &loadState{}
	j.state = loadMagic
	return j
}

// LoadedSignature returns the signature a load job decoded, once Iter has
// reported Done. It returns (nil, false) if the job hasn't completed (or
// ended in error).
func (j *Job) LoadedSignature() (*signature.Signature, bool) {
	if j.load == nil || j.state != nil || j.term != nil {
		return nil, false
	}
	return j.load.sig, j.load.sig != nil
}

// BeginDelta starts a delta-generation job that scans a target stream fed
// through Buffers.NextIn against sig, emitting a delta command stream to
// Buffers.NextOut. sig must already be valid; if it hasn't had BuildIndex
// called, BeginDelta builds it.
func BeginDelta(sig *signature.Signature, logger *logging.Logger) (*Job, error) {
	if err := sig.EnsureValid(); err != nil {
		return nil, paramError(err)
	}
	if !sig.IndexBuilt() {
		sig.BuildIndex()
	}

	weakKind, strongKind, err := sig.Magic.Algorithms()
	if err != nil {
		return nil, paramError(err)
	}

	j := newJob(kindDelta, "delta", logger)
	j.stats.BlockLength = sig.BlockLength
	j.delta = &deltaState{
		sig:         sig,
		weakHash:    weak.New(weakKind),
		strongHash:  strong.New(strongKind, sig.Magic),
		blockLength: int(sig.BlockLength),
	}
	j.state = deltaHeader
	return j, nil
}

// BeginPatch starts a job that applies a delta command stream (fed through
// Buffers.NextIn) against a basis accessed through read, producing the
// reconstructed output on Buffers.NextOut.
func BeginPatch(read BasisReader, logger *logging.Logger) (*Job, error) {
	if read == nil {
		return nil, paramError(fmt.Errorf("nil BasisReader"))
	}
	j := newJob(kindPatch, "patch", logger)
	j.patch = &patchState{read: read}
	j.state = patchHeader
	return j, nil
}
