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
	"fmt"
	"io"
)

// TopN is the number of largest buckets reported by Stats.
const TopN = 10

// BucketSize pairs a bucket index with its posting count.
type BucketSize struct {
	Kmer uint32
	Size uint64
}

// Stats summarizes the bucket size distribution. Diagnostic only, never
// in a hot path. No minimum bucket size is reported: with most of the
// k-mer space empty it is always 0.
type Stats struct {
	Entries uint64
	Buckets uint64
	Empty   uint64
	Max     uint64
	Mean    float64

	// the TopN largest buckets, largest first; ties break on the
	// first-encountered bucket index
	Top []BucketSize
}

// Stats scans all buckets once and returns the size distribution.
func (t *IndexTable) Stats() Stats {
	var top [TopN]BucketSize

	var entries, empty, max, size uint64
	for i := uint64(0); i < t.tableSize; i++ {
		size = t.offsets[i+1] - t.offsets[i]
		entries += size
		if size == 0 {
			empty++
			continue
		}
		if size > max {
			max = size
		}
		if size < top[TopN-1].Size {
			continue
		}
		for j := range top {
			if top[j].Size < size {
				copy(top[j+1:], top[j:TopN-1])
				top[j] = BucketSize{Kmer: uint32(i), Size: size}
				break
			}
		}
	}

	n := 0
	for n < TopN && top[n].Size > 0 {
		n++
	}

	return Stats{
		Entries: entries,
		Buckets: t.tableSize,
		Empty:   empty,
		Max:     max,
		Mean:    float64(entries) / float64(t.tableSize),
		Top:     top[:n],
	}
}

// BucketSizes appends the sizes of all non-empty buckets to sizes,
// for distribution summaries of small tables.
func (t *IndexTable) BucketSizes(sizes *[]float64) []float64 {
	if sizes == nil {
		tmp := make([]float64, 0, 1024)
		sizes = &tmp
	} else {
		*sizes = (*sizes)[:0]
	}
	var size uint64
	for i := uint64(0); i < t.tableSize; i++ {
		size = t.offsets[i+1] - t.offsets[i]
		if size > 0 {
			*sizes = append(*sizes, float64(size))
		}
	}
	return *sizes
}

// WriteBuckets dumps every non-empty bucket and its postings, with k-mers
// rendered by the given function.
func (t *IndexTable) WriteBuckets(w io.Writer, render func(kmer uint32) string) error {
	var buf []Posting
	var err error
	for i := uint64(0); i < t.tableSize; i++ {
		if t.offsets[i+1]-t.offsets[i] == 0 {
			continue
		}
		if _, err = fmt.Fprintf(w, "%s\n", render(uint32(i))); err != nil {
			return err
		}
		for _, p := range t.Postings(uint32(i), &buf) {
			if _, err = fmt.Fprintf(w, "\t(%d, %d)\n", p.SeqID, p.Pos); err != nil {
				return err
			}
		}
	}
	return nil
}
