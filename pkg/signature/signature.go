// Package signature implements the in-memory signature table: the ordered
// sequence of (weak, strong) block hashes over a basis file, plus the
// open-addressed hash index that makes delta search O(1) per candidate
// lookup (spec §4.3).
package signature

import (
	"fmt"

	"github.com/rdelta/rdelta/pkg/wire"
)

// BlockHash is one (weak, strong) pair, corresponding to one whole block of
// the basis file (the last block may be short; its hashes are computed over
// the bytes actually present).
type BlockHash struct {
	// Weak is the 32-bit rolling checksum of the block.
	Weak uint32
	// Strong is the (possibly truncated) strong hash of the block, of
	// length Signature.StrongLength.
	Strong []byte
	// Length is the number of basis bytes this block actually covers. It
	// equals BlockLength for every block except possibly the last, which
	// may be shorter if the basis length isn't a multiple of BlockLength.
	// Carrying it per-block (rather than inferring it from a separately
	// transmitted basis length) keeps signature generation fully streaming:
	// the producer never needs to know the basis's total size in advance.
	Length uint64
}

// minIndexSize is the lower bound on the hash index's slot count (spec
// §4.3: "a lower bound (e.g. 16)").
const minIndexSize = 16

// Signature is the in-memory signature table for a basis file: an ordered
// sequence of block hashes, indexable by block number, plus (once built) a
// hash index mapping weak sums to candidate block indices.
type Signature struct {
	// Magic records which weak/strong algorithm pair produced this
	// signature.
	Magic wire.Magic
	// BlockLength is the block size used when generating the signature.
	BlockLength uint64
	// StrongLength is the number of strong-hash bytes retained per block.
	StrongLength int
	// Hashes is the ordered sequence of block hashes, indexed by block
	// number (block i occupies basis bytes [i*BlockLength,
	// i*BlockLength+BlockLength), except possibly the last).

	Hashes []BlockHash

	// index maps a weak-sum's home slot (weak masked by indexMask) to a
	// block index, open-addressed with linear probing; emptySlot marks an
	// unused slot.
	index     []int32
	indexMask uint32
}

// emptySlot is the sentinel marking an unoccupied index slot.
const emptySlot int32 = -1

// New creates an empty signature table for the given algorithm choices.
// Blocks are added in order via AddBlock as a signature-generation job
// consumes the basis stream.
func New(magic wire.Magic, blockLength uint64, strongLength int) (*Signature, error) {
	_, strong, err := magic.Algorithms()
	if err != nil {
		return nil, err
	}
	if maxLen := wire.MaxStrongLength(strong); strongLength < 1 || strongLength > maxLen {
		return nil, fmt.Errorf("strong length %d out of range [1, %d] for %v", strongLength, maxLen, strong)
	}
	if blockLength < 1 || blockLength > (1<<16) {
		return nil, fmt.Errorf("block length %d out of range [1, %d]", blockLength, 1<<16)
	}
	return &Signature{
		Magic:        magic,
		BlockLength:  blockLength,
		StrongLength: strongLength,
	}, nil
}

// AddBlock appends one block hash. Blocks must be added in sequential block
// order; the index (if previously built) is invalidated and must be rebuilt
// via BuildIndex before use.
func (s *Signature) AddBlock(weak uint32, strong []byte, length uint64) {
	entry := BlockHash{Weak: weak, Strong: append([]byte(nil), strong...), Length: length}
	s.Hashes = append(s.Hashes, entry)
	s.index = nil
}

// IsEmpty reports whether the signature has no blocks (i.e. the basis file
// was empty).
func (s *Signature) IsEmpty() bool {
	return len(s.Hashes) == 0
}

// EnsureValid checks the invariants a signature must respect before it can
// safely be used to drive a delta job: every block hash has a strong sum of
// the declared length, and the declared algorithm pairing is internally
// consistent with Magic.
func (s *Signature) EnsureValid() error {
	if s == nil {
		return fmt.Errorf("nil signature")
	}
	if _, _, err := s.Magic.Algorithms(); err != nil {
		return err
	}
	for i, h := range s.Hashes {
		if len(h.Strong) != s.StrongLength {
			return fmt.Errorf("block %d: strong hash length %d, expected %d", i, len(h.Strong), s.StrongLength)
		}
		if h.Length == 0 || h.Length > s.BlockLength {
			return fmt.Errorf("block %d: length %d out of range [1, %d]", i, h.Length, s.BlockLength)
		}
		if h.Length < s.BlockLength && i != len(s.Hashes)-1 {
			return fmt.Errorf("block %d: short block before the end of the signature", i)
		}
	}
	return nil
}

// nextPowerOfTwo returns the smallest power of two greater than or equal to
// n.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// BuildIndex constructs the hash index over the signature's current set of
// block hashes. It is idempotent: calling it again (e.g. after the
// signature has not changed) simply rebuilds the same index and is not an
// error. Calling AddBlock after BuildIndex invalidates the index, requiring
// another call before the signature is used for delta generation.
func (s *Signature) BuildIndex() {
	size := nextPowerOfTwo(len(s.Hashes) * 2)
	if size < minIndexSize {
		size = minIndexSize
	}

	index := make([]int32, size)
	for i := range index {
		index[i] = emptySlot
	}
	mask := uint32(size - 1)

	for i, h := range s.Hashes {
		slot := h.Weak & mask
		for index[slot] != emptySlot {
			slot = (slot + 1) & mask
		}
		index[slot] = int32(i)
	}

	s.index = index
	s.indexMask = mask
}

// IndexBuilt reports whether BuildIndex has been called since the last
// AddBlock.
func (s *Signature) IndexBuilt() bool {
	return s.index != nil
}

// AppendCandidates appends the block indices of every block hash sharing
// the given weak sum to dst, in block-number (insertion) order, and returns
// the extended slice. Looking up a weak sum with no matching blocks leaves
// dst unchanged. BuildIndex must have been called first.
func (s *Signature) AppendCandidates(weak uint32, dst []int) []int {
	if s.index == nil {
		return dst
	}
	slot := weak & s.indexMask
	for {
		bi := s.index[slot]
		if bi == emptySlot {
			return dst
		}
		if s.Hashes[bi].Weak == weak {
			dst = append(dst, int(bi))
		}
		slot = (slot + 1) & s.indexMask
	}
}

// BlockRange returns the basis byte offsets [start, end) occupied by block
// i. Every block except possibly the last spans exactly BlockLength bytes;
// the last block's span is whatever Length it was recorded with.
func (s *Signature) BlockRange(i int) (start, end uint64) {
	start = uint64(i) * s.BlockLength
	end = start + s.Hashes[i].Length
	return start, end
}
