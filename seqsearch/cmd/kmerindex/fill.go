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

package kmerindex

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// BuildPosting is a transient record used only in per-worker scratch
// buffers during the fill pass; it is never persisted. Its packed wire
// equivalent is 10 bytes.
type BuildPosting struct {
	kmer  uint32
	seqID uint32
	pos   uint16
}

var poolBuildPostings = &sync.Pool{New: func() interface{} {
	tmp := make([]BuildPosting, 0, 1<<16)
	return &tmp
}}

// GetKmerScratch returns a reusable scratch buffer for the counting pass.
func GetKmerScratch() *[]uint32 { return poolKmerIdxs.Get().(*[]uint32) }

// PutKmerScratch recycles a counting scratch buffer.
func PutKmerScratch(buf *[]uint32) { poolKmerIdxs.Put(buf) }

// GetBuildScratch returns a reusable scratch buffer for the fill pass.
func GetBuildScratch() *[]BuildPosting { return poolBuildPostings.Get().(*[]BuildPosting) }

// PutBuildScratch recycles a fill scratch buffer.
func PutBuildScratch(buf *[]BuildPosting) { poolBuildPostings.Put(buf) }

// AddSequence writes the postings of one sequence whose k-mer indices
// fall into the worker's window. Masked buckets and zero-length buckets
// are skipped. The threshold filter must match the one used in
// AddKmerCount. Duplicated k-mers within the sequence contribute one
// posting, the one with the smallest position.
func (t *IndexTable) AddSequence(s Sequence, idxer Indexer, buf *[]BuildPosting,
	win Window, threshold int, diagScore []int8) {
	s.ResetCursor()
	*buf = (*buf)[:0]

	var kmerIdx uint32
	for s.HasNextKmer() {
		kmer := s.NextKmer()
		kmerIdx = idxer.Encode(kmer, 0, t.kmerSize)
		if !win.contains(kmerIdx) {
			continue
		}
		if t.skipBucket(kmerIdx) {
			continue
		}
		if threshold > 0 && diagonalKmerScore(kmer, diagScore) < threshold {
			continue
		}
		*buf = append(*buf, BuildPosting{kmer: kmerIdx, seqID: s.ID(), pos: s.CurrentPosition()})
	}

	t.writeDistinct(*buf)
}

// AddSimilarSequence writes postings for all similar k-mers emitted by
// the neighborhood generator, restricted to the worker's window. The
// generator applies the score filtering, mirroring AddSimilarKmerCount.
func (t *IndexTable) AddSimilarSequence(s Sequence, gen KmerGenerator,
	buf *[]BuildPosting, win Window) {
	s.ResetCursor()
	*buf = (*buf)[:0]

	for s.HasNextKmer() {
		kmer := s.NextKmer()
		seqID := s.ID()
		pos := s.CurrentPosition()
		for _, kmerIdx := range gen.Expand(kmer) {
			if !win.contains(kmerIdx) {
				continue
			}
			if t.skipBucket(kmerIdx) {
				continue
			}
			*buf = append(*buf, BuildPosting{kmer: kmerIdx, seqID: seqID, pos: pos})
		}
	}

	t.writeDistinct(*buf)
}

// skipBucket reports whether a bucket must not receive postings: it was
// masked between the passes, or it received no counts. The zero-length
// check is defensive, counting and fill apply identical filters, so a
// live k-mer always has a counted slot. The loads are atomic because the
// neighboring cell may be a cursor owned by another worker.
func (t *IndexTable) skipBucket(kmerIdx uint32) bool {
	if t.isMasked(kmerIdx) {
		return true
	}
	return atomic.LoadUint64(&t.offsets[kmerIdx+1])-atomic.LoadUint64(&t.offsets[kmerIdx]) == 0
}

// writeDistinct sorts the collected postings by (kmer, position), then
// writes the first posting of each distinct k-mer into the slot claimed
// from the bucket cursor. Later occurrences of the same k-mer within the
// sequence are dropped.
func (t *IndexTable) writeDistinct(postings []BuildPosting) {
	if len(postings) > 1 {
		sort.Slice(postings, func(i, j int) bool {
			if postings[i].kmer != postings[j].kmer {
				return postings[i].kmer < postings[j].kmer
			}
			return postings[i].pos < postings[j].pos
		})
	}

	var prev uint32 = math.MaxUint32
	for _, p := range postings {
		if p.kmer != prev {
			slot := t.AdvanceAtomic(p.kmer)
			t.writePosting(slot, p.seqID, p.pos)
		}
		prev = p.kmer
	}
}
