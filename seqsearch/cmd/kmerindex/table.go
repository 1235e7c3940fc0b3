// Copyright © 2024 The seqsearch Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package kmerindex implements an inverted index from k-mers to the
// sequences containing them. For every possible k-mer over an alphabet of
// size A there is one bucket; a bucket holds packed postings of
// (sequence id, position) pairs stored sequentially in one byte buffer.
//
// The table is built in two passes over the sequence set. The first pass
// counts how many postings each bucket will receive (AddKmerCount /
// AddSimilarKmerCount), a prefix sum turns the counts into bucket start
// offsets, and the second pass writes the postings (AddSequence /
// AddSimilarSequence). After the fill pass, Rewind restores the offsets to
// bucket starts and the table becomes read-only.
//
// The offset buffer carries a different meaning at each lifecycle stage:
//
//  1. after New: all cells are zero
//  2. after the counting pass: cell i holds the number of postings
//     destined for bucket i
//  3. after PrefixSum: cell i holds the start offset of bucket i,
//     cell A^k holds the total posting count
//  4. during the fill pass: cell i is the next free write cursor of
//     bucket i, ending at bucket i+1's start
//  5. after Rewind: cell i is the start offset of bucket i again
//
// Calls outside the expected stage are programmer errors.
package kmerindex

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"github.com/twotwotwo/sorts/sortutil"
)

var le = binary.LittleEndian

// ErrAllocFailed means the table or the posting store could not be allocated.
var ErrAllocFailed = errors.New("kmer index: allocation failed")

// ErrAlphabetTooLarge means alphabetSize^k does not fit the 32-bit k-mer index.
var ErrAlphabetTooLarge = errors.New("kmer index: alphabet size to the power of k overflows the k-mer index")

// ErrInvalidKmerSize means the k-mer size is out of the supported range.
var ErrInvalidKmerSize = errors.New("kmer index: invalid k-mer size")

// ErrContractViolation means an operation was called on a table in the
// wrong lifecycle stage, or with nil buffers.
var ErrContractViolation = errors.New("kmer index: contract violation")

// PostingSize is the number of bytes of one packed posting:
// a 4-byte sequence id followed by a 2-byte position, both little-endian.
// Go would pad the equivalent struct to 8 bytes, so postings are stored
// packed in a byte buffer and decoded on demand.
const PostingSize = 6

// Posting says that a sequence contains a k-mer at a given offset.
type Posting struct {
	SeqID uint32
	Pos   uint16
}

// Sequence is a cursor-based k-mer iterator over one encoded sequence.
// NextKmer returns a view of the next window of k alphabet symbols;
// CurrentPosition reports the start position of the k-mer returned by the
// last call to NextKmer. Positions must fit in 16 bits, so sequences
// longer than 65535 residues have to be split upstream.
type Sequence interface {
	ResetCursor()
	HasNextKmer() bool
	NextKmer() []int
	ID() uint32
	CurrentPosition() uint16
}

// Indexer maps a k-tuple of alphabet symbols to a dense integer
// in [0, A^k) and back.
type Indexer interface {
	Encode(kmer []int, offset int, k int) uint32
}

// KmerGenerator yields the indices of all k-mers similar to a given
// k-mer. Score filtering happens inside the generator, so the counting
// and fill passes see identical k-mer sets.
type KmerGenerator interface {
	Expand(kmer []int) []uint32
}

// SequenceLookup is an opaque handle to the sequence store backing the
// table. The table only keeps the reference and hands it back on request.
type SequenceLookup interface{}

// IndexTable is the k-mer inverted index.
//
// During the counting and fill passes the offset buffer is shared by all
// workers and mutated with atomic operations only; there are no
// per-bucket locks. The posting store is written at disjoint slots handed
// out by AdvanceAtomic. Both buffers are immutable once Rewind returned.
type IndexTable struct {
	tableSize    uint64 // alphabetSize^kmerSize
	alphabetSize int
	kmerSize     int

	// buffers borrowed from a mmapped file, do not modify or free
	externalData bool

	nEntries uint64 // total number of postings, must be 64-bit
	nSeqs    int    // number of sequences in the index

	offsets []uint64 // tableSize+1 cells
	entries []byte   // nEntries * PostingSize bytes

	masked []uint32 // sorted bucket indices excluded between the passes

	seqLookup SequenceLookup
}

// MaxKmerSize is the largest supported k-mer size.
const MaxKmerSize = 7

// maxResiduesForK6 is the largest residue count for which k=6 buckets
// stay reasonably occupied; above it k=7 is needed.
const maxResiduesForK6 = 3350000000

// ComputeKmerSize returns the k-mer size to use for a sequence set with
// the given total residue count.
func ComputeKmerSize(residues uint64) int {
	if residues < maxResiduesForK6 {
		return 6
	}
	return 7
}

// New allocates a zeroed table for k-mers of length kmerSize over an
// alphabet of alphabetSize symbols.
func New(alphabetSize int, kmerSize int) (*IndexTable, error) {
	if kmerSize < 1 || kmerSize > MaxKmerSize {
		return nil, ErrInvalidKmerSize
	}
	if alphabetSize < 1 {
		return nil, ErrAlphabetTooLarge
	}

	tableSize := uint64(1)
	for i := 0; i < kmerSize; i++ {
		if tableSize > math.MaxUint32/uint64(alphabetSize) {
			return nil, ErrAlphabetTooLarge
		}
		tableSize *= uint64(alphabetSize)
	}

	if tableSize+1 > math.MaxInt64/8 {
		return nil, ErrAllocFailed
	}

	return &IndexTable{
		tableSize:    tableSize,
		alphabetSize: alphabetSize,
		kmerSize:     kmerSize,
		offsets:      make([]uint64, tableSize+1),
	}, nil
}

// NewFromExternalData binds a read-only table over externally owned
// buffers, e.g. memory-mapped from disk. The table records that it does
// not own the buffers; they are used directly by all lookups and are
// never modified.
func NewFromExternalData(alphabetSize int, kmerSize int, numSequences int,
	nEntries uint64, entries []byte, offsets []uint64, lookup SequenceLookup) (*IndexTable, error) {
	if kmerSize < 1 || kmerSize > MaxKmerSize {
		return nil, ErrInvalidKmerSize
	}
	if offsets == nil || entries == nil {
		return nil, ErrContractViolation
	}

	tableSize := uint64(1)
	for i := 0; i < kmerSize; i++ {
		tableSize *= uint64(alphabetSize)
	}
	if uint64(len(offsets)) != tableSize+1 {
		return nil, ErrContractViolation
	}
	if uint64(len(entries)) != nEntries*PostingSize {
		return nil, ErrContractViolation
	}

	return &IndexTable{
		tableSize:    tableSize,
		alphabetSize: alphabetSize,
		kmerSize:     kmerSize,
		externalData: true,
		nEntries:     nEntries,
		nSeqs:        numSequences,
		offsets:      offsets,
		entries:      entries,
		seqLookup:    lookup,
	}, nil
}

// IncrementAtomic adds 1 to the count of a bucket. Only valid during the
// counting pass. Many workers may target the same cell; only the final
// sum matters.
func (t *IndexTable) IncrementAtomic(kmer uint32) {
	atomic.AddUint64(&t.offsets[kmer], 1)
}

// Mask excludes buckets from the index: their counts are forced to zero
// so that PrefixSum produces a zero-length window for them, they are
// never materialized in the posting store, and the fill pass drops all
// writes to them. Must be called after the counting pass and before
// PrefixSum. The mask list is typically produced by low-complexity
// filtering upstream and is assumed to be small.
func (t *IndexTable) Mask(kmers []uint32) {
	if len(kmers) == 0 {
		return
	}
	t.masked = append(t.masked[:0], kmers...)
	sortutil.Uint32s(t.masked)
	for _, kmer := range t.masked {
		t.offsets[kmer] = 0
	}
}

func (t *IndexTable) isMasked(kmer uint32) bool {
	if len(t.masked) == 0 {
		return false
	}
	i := sort.Search(len(t.masked), func(i int) bool { return t.masked[i] >= kmer })
	return i < len(t.masked) && t.masked[i] == kmer
}

// PrefixSum converts bucket counts to bucket start offsets in-place and
// records the total posting count in the last cell. Sequential. After the
// call the cells are monotonically non-decreasing.
func (t *IndexTable) PrefixSum() {
	var offset uint64
	var count uint64
	for i := uint64(0); i < t.tableSize; i++ {
		count = t.offsets[i]
		t.offsets[i] = offset
		offset += count
	}
	t.offsets[t.tableSize] = offset
	t.nEntries = offset
}

// InitEntries allocates the posting store for the total counted in
// PrefixSum, and records the sequence store handle and sequence count.
func (t *IndexTable) InitEntries(lookup SequenceLookup, numSequences int) error {
	if t.externalData {
		return ErrContractViolation
	}
	if t.nEntries > math.MaxInt64/PostingSize {
		return ErrAllocFailed
	}
	t.entries = make([]byte, t.nEntries*PostingSize)
	t.seqLookup = lookup
	t.nSeqs = numSequences
	return nil
}

// AdvanceAtomic claims the next free slot of a bucket and returns it.
// Only valid during the fill pass. Workers own disjoint bucket windows,
// so the atomicity is strictly defensive.
func (t *IndexTable) AdvanceAtomic(kmer uint32) uint64 {
	return atomic.AddUint64(&t.offsets[kmer], 1) - 1
}

// Rewind restores the offsets after the fill pass: every cursor ended at
// the start of the next bucket, so one right-shift brings every cell back
// to its own bucket start. All fill-pass workers must have been joined
// before the call; the join is the memory barrier that makes their writes
// observable to readers.
func (t *IndexTable) Rewind() {
	for i := t.tableSize; i > 0; i-- {
		t.offsets[i] = t.offsets[i-1]
	}
	t.offsets[0] = 0
}

// Lookup returns the packed postings of a bucket and their number.
// O(1) and infallible for any kmer < A^k on a frozen table.
func (t *IndexTable) Lookup(kmer uint32) ([]byte, uint64) {
	start := t.offsets[kmer]
	n := t.offsets[kmer+1] - start
	return t.entries[start*PostingSize : (start+n)*PostingSize : (start+n)*PostingSize], n
}

// Postings decodes the bucket of a k-mer into buf, which is reused.
func (t *IndexTable) Postings(kmer uint32, buf *[]Posting) []Posting {
	data, n := t.Lookup(kmer)
	if buf == nil {
		tmp := make([]Posting, 0, n)
		buf = &tmp
	} else {
		*buf = (*buf)[:0]
	}
	for i := uint64(0); i < n; i++ {
		*buf = append(*buf, decodePosting(data[i*PostingSize:]))
	}
	return *buf
}

// PostingAt decodes the posting at a global slot index.
func (t *IndexTable) PostingAt(slot uint64) Posting {
	return decodePosting(t.entries[slot*PostingSize:])
}

func (t *IndexTable) writePosting(slot uint64, seqID uint32, pos uint16) {
	b := t.entries[slot*PostingSize:]
	le.PutUint32(b[:4], seqID)
	le.PutUint16(b[4:6], pos)
}

func decodePosting(b []byte) Posting {
	return Posting{
		SeqID: le.Uint32(b[:4]),
		Pos:   le.Uint16(b[4:6]),
	}
}

// TotalPostings returns the number of postings in all buckets.
func (t *IndexTable) TotalPostings() uint64 { return t.nEntries }

// NumSequences returns the number of sequences in the index.
func (t *IndexTable) NumSequences() int { return t.nSeqs }

// BucketCount returns the number of buckets, A^k.
func (t *IndexTable) BucketCount() uint64 { return t.tableSize }

// KmerSize returns k.
func (t *IndexTable) KmerSize() int { return t.kmerSize }

// AlphabetSize returns the number of alphabet symbols.
func (t *IndexTable) AlphabetSize() int { return t.alphabetSize }

// SequenceLookup returns the sequence store handle given to InitEntries
// or NewFromExternalData.
func (t *IndexTable) SequenceLookup() SequenceLookup { return t.seqLookup }

// ExternalData reports whether the buffers are borrowed.
func (t *IndexTable) ExternalData() bool { return t.externalData }

// RawBuffers exposes the offset cells and the packed posting store for
// serialization. The returned slices must be treated as read-only.
func (t *IndexTable) RawBuffers() ([]uint64, []byte) {
	return t.offsets, t.entries
}
