package engine

import (
	"fmt"

	"github.com/rdelta/rdelta/pkg/signature"
	"github.com/rdelta/rdelta/pkg/wire"
)

// loadState holds a signature-loader job's in-progress signature and the
// entry size implied by its header, once read.
type loadState struct {
	sig       *signature.Signature
	entrySize int
}

// loadMagic reads the stream's 4-byte magic and validates it identifies a
// signature stream.
func loadMagic(j *Job, b *Buffers) (statefun, Result, error) {
	data, complete := j.readChunk(b, 4)
	if !complete {
		return loadMagic, Blocked, nil
	}
	if len(data) < 4 {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended while reading magic"))
	}
	magic := wire.Magic(wire.DecodeParam(data, 4))
	if !wire.IsSignatureMagic(magic) {
		return nil, BadMagic, newError(BadMagic, fmt.Errorf("0x%08x is not a recognized signature magic", uint32(magic)))
	}
	j.load.sig = &signature.Signature{Magic: magic}
	return loadHeader, running, nil
}

// loadHeader reads the block length and retained strong-hash length that
// follow the magic, then constructs the signature table.
func loadHeader(j *Job, b *Buffers) (statefun, Result, error) {
	data, complete := j.readChunk(b, 8)
	if !complete {
		return loadHeader, Blocked, nil
	}
	if len(data) < 8 {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended while reading signature header"))
	}
	blockLength := wire.DecodeParam(data[:4], 4)
	strongLength := int(wire.DecodeParam(data[4:8], 4))

	sig, err := signature.New(j.load.sig.Magic, blockLength, strongLength)
	if err != nil {
		return nil, Corrupt, newError(Corrupt, err)
	}
	j.load.sig = sig
	j.load.entrySize = 4 + 4 + strongLength
	j.stats.BlockLength = blockLength
	return loadEntry, running, nil
}

// loadEntry reads one (length, weak, strong) entry and appends it to the
// signature, repeating until a clean EOF falls exactly on an entry
// boundary, at which point the index is built and the job is done.
func loadEntry(j *Job, b *Buffers) (statefun, Result, error) {
	st := j.load
	data, complete := j.readChunk(b, st.entrySize)
	if !complete {
		return loadEntry, Blocked, nil
	}
	if len(data) == 0 {
		st.sig.BuildIndex()
		return nil, Done, nil
	}
	if len(data) < st.entrySize {
		return nil, InputEnded, newError(InputEnded, fmt.Errorf("stream ended mid-entry"))
	}

	length := wire.DecodeParam(data[:4], 4)
	weakSum := uint32(wire.DecodeParam(data[4:8], 4))
	strongBytes := data[8:]

	if length == 0 || length > st.sig.BlockLength {
		return nil, Corrupt, newError(Corrupt, fmt.Errorf("block length %d out of range (0, %d]", length, st.sig.BlockLength))
	}
	st.sig.AddBlock(weakSum, strongBytes, length)
	j.stats.SignatureCommands++
	return loadEntry, running, nil
}
