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
	"sync"

	"github.com/twotwotwo/sorts/sortutil"
)

// Window is a contiguous slice [From, End) of the bucket index space
// assigned to one worker. During the fill pass, windows of concurrent
// workers must partition the space disjointly so that each cursor is
// advanced by a single worker.
//
// The counting pass does not need windows for correctness, every counter
// cell is atomic. The window parameter of the counting methods exists so
// that a caller can choose to partition the counting pass the same way as
// the fill pass; pass FullWindow for the usual one-worker-per-sequence
// mode.
type Window struct {
	From uint64
	End  uint64
}

func (w Window) contains(kmer uint32) bool {
	return uint64(kmer) >= w.From && uint64(kmer) < w.End
}

// FullWindow covers all buckets.
func (t *IndexTable) FullWindow() Window {
	return Window{From: 0, End: t.tableSize}
}

// Windows partitions the bucket space into n contiguous disjoint windows.
func (t *IndexTable) Windows(n int) []Window {
	if n < 1 {
		n = 1
	}
	if uint64(n) > t.tableSize {
		n = int(t.tableSize)
	}
	wins := make([]Window, n)
	size := t.tableSize / uint64(n)
	var from uint64
	for i := range wins {
		end := from + size
		if i == n-1 {
			end = t.tableSize
		}
		wins[i] = Window{From: from, End: end}
		from = end
	}
	return wins
}

// scratch buffers reused by workers across sequences

var poolKmerIdxs = &sync.Pool{New: func() interface{} {
	tmp := make([]uint32, 0, 1<<16)
	return &tmp
}}

// diagonalKmerScore sums the per-symbol diagonal score over a k-mer.
// Counting and fill use this same function so that both passes admit
// identical k-mer sets; a divergence would leave wasted slots or write
// past bucket ends.
func diagonalKmerScore(kmer []int, diagScore []int8) int {
	var score int
	for _, a := range kmer {
		score += int(diagScore[a])
	}
	return score
}

// AddKmerCount counts the distinct k-mers of one sequence into the bucket
// counters, so that the posting store can be sized before the fill pass.
// With threshold > 0, k-mers whose diagonal score is below the threshold
// are skipped. Duplicated k-mers within the sequence are counted once;
// the same k-mer in another sequence counts again. Returns the number of
// distinct k-mers contributed by this sequence.
func (t *IndexTable) AddKmerCount(s Sequence, idxer Indexer, buf *[]uint32,
	win Window, threshold int, diagScore []int8) int {
	s.ResetCursor()
	*buf = (*buf)[:0]

	var kmerIdx uint32
	for s.HasNextKmer() {
		kmer := s.NextKmer()
		if threshold > 0 && diagonalKmerScore(kmer, diagScore) < threshold {
			continue
		}
		kmerIdx = idxer.Encode(kmer, 0, t.kmerSize)
		if !win.contains(kmerIdx) {
			continue
		}
		*buf = append(*buf, kmerIdx)
	}

	return t.countDistinct(*buf)
}

// AddSimilarKmerCount counts, for one sequence, all similar k-mers
// emitted by the neighborhood generator. Score filtering is the
// generator's job; no diagonal score is applied here. Deduplication is
// per sequence over the expanded set. Returns the number of distinct
// k-mer indices contributed.
func (t *IndexTable) AddSimilarKmerCount(s Sequence, gen KmerGenerator,
	buf *[]uint32, win Window) int {
	s.ResetCursor()
	*buf = (*buf)[:0]

	for s.HasNextKmer() {
		kmer := s.NextKmer()
		for _, kmerIdx := range gen.Expand(kmer) {
			if !win.contains(kmerIdx) {
				continue
			}
			*buf = append(*buf, kmerIdx)
		}
	}

	return t.countDistinct(*buf)
}

// countDistinct sorts the collected indices and bumps each distinct
// bucket counter once.
func (t *IndexTable) countDistinct(idxs []uint32) int {
	if len(idxs) > 1 {
		sortutil.Uint32s(idxs)
	}

	var countUniq int
	var prev uint32 = math.MaxUint32
	for _, kmerIdx := range idxs {
		if kmerIdx != prev {
			t.IncrementAtomic(kmerIdx)
			countUniq++
		}
		prev = kmerIdx
	}
	return countUniq
}
