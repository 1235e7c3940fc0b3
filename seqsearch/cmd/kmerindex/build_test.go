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
	"sort"
	"sync"
	"testing"

	"github.com/seqsearch/SeqSearch/seqsearch/cmd/sequence"
)

// buildTable runs the whole two-pass build single-threaded over encoded
// test sequences.
func buildTable(t *testing.T, alphabetSize, k int, seqsData [][]int,
	threshold int, diagScore []int8, masked []uint32) *IndexTable {
	t.Helper()

	tbl, err := New(alphabetSize, k)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	idxer := sequence.NewIndexer(alphabetSize, k)

	seqs := make([]*sequence.Sequence, len(seqsData))
	for i, symbols := range seqsData {
		seqs[i] = sequence.New(uint32(i), symbols, k)
	}

	var scratch []uint32
	win := tbl.FullWindow()
	for _, s := range seqs {
		tbl.AddKmerCount(s, idxer, &scratch, win, threshold, diagScore)
	}

	tbl.Mask(masked)
	tbl.PrefixSum()
	if err = tbl.InitEntries(nil, len(seqs)); err != nil {
		t.Fatalf("InitEntries: %s", err)
	}

	var buf []BuildPosting
	for _, s := range seqs {
		tbl.AddSequence(s, idxer, &buf, win, threshold, diagScore)
	}
	tbl.Rewind()

	return tbl
}

func checkMonotone(t *testing.T, tbl *IndexTable) {
	t.Helper()
	offsets, _ := tbl.RawBuffers()
	for i := uint64(0); i < tbl.BucketCount(); i++ {
		if offsets[i] > offsets[i+1] {
			t.Errorf("offsets not monotone at %d: %d > %d", i, offsets[i], offsets[i+1])
		}
	}
	if offsets[0] != 0 {
		t.Errorf("offsets[0]: expected 0, got %d", offsets[0])
	}
	if offsets[tbl.BucketCount()] != tbl.TotalPostings() {
		t.Errorf("last cell: expected the total %d, got %d",
			tbl.TotalPostings(), offsets[tbl.BucketCount()])
	}
}

// scenario: s0 = 0,1,2,3 and s1 = 0,1,0,1 over the 4-letter alphabet, k=2
func TestBuildTwoSequences(t *testing.T) {
	tbl := buildTable(t, 4, 2, [][]int{
		{0, 1, 2, 3},
		{0, 1, 0, 1},
	}, 0, nil, nil)

	checkMonotone(t, tbl)

	if tbl.TotalPostings() != 5 {
		t.Errorf("total postings: expected 5, got %d", tbl.TotalPostings())
	}

	expected := map[uint32]uint64{
		0*4 + 1: 2, // 0,1
		1*4 + 2: 1, // 1,2
		2*4 + 3: 1, // 2,3
		1*4 + 0: 1, // 1,0
	}
	for kmer := uint32(0); kmer < 16; kmer++ {
		_, n := tbl.Lookup(kmer)
		if n != expected[kmer] {
			t.Errorf("bucket %d: expected %d postings, got %d", kmer, expected[kmer], n)
		}
	}

	// both sequences contain k-mer 0,1; order within the bucket is not
	// specified
	var buf []Posting
	ps := tbl.Postings(1, &buf)
	seen := map[uint32]uint16{}
	for _, p := range ps {
		seen[p.SeqID] = p.Pos
	}
	if len(seen) != 2 {
		t.Fatalf("bucket 1: expected postings of both sequences, got %v", ps)
	}
	if seen[0] != 0 {
		t.Errorf("bucket 1, sequence 0: expected position 0, got %d", seen[0])
	}
	if seen[1] != 0 && seen[1] != 2 {
		t.Errorf("bucket 1, sequence 1: expected position 0 or 2, got %d", seen[1])
	}
}

// scenario: duplicated k-mers are deduplicated within a sequence,
// not across sequences
func TestBuildDeduplication(t *testing.T) {
	tbl := buildTable(t, 4, 2, [][]int{
		{0, 0, 0, 0},
		{0, 0},
	}, 0, nil, nil)

	_, n := tbl.Lookup(0)
	if n != 2 {
		t.Errorf("bucket 0,0: expected 2 postings (one per sequence), got %d", n)
	}
	if tbl.TotalPostings() != 2 {
		t.Errorf("total postings: expected 2, got %d", tbl.TotalPostings())
	}
}

// scenario: a masked bucket stays empty, the others are unchanged
func TestBuildMask(t *testing.T) {
	plain := buildTable(t, 4, 2, [][]int{
		{0, 1, 2, 3},
		{0, 1, 0, 1},
	}, 0, nil, nil)

	masked := buildTable(t, 4, 2, [][]int{
		{0, 1, 2, 3},
		{0, 1, 0, 1},
	}, 0, nil, []uint32{1}) // k-mer 0,1

	if _, n := masked.Lookup(1); n != 0 {
		t.Errorf("masked bucket: expected 0 postings, got %d", n)
	}

	// no posting in the store references the masked bucket, and all
	// other buckets match the unmasked build
	for kmer := uint32(0); kmer < 16; kmer++ {
		if kmer == 1 {
			continue
		}
		want, _ := plain.Lookup(kmer)
		got, _ := masked.Lookup(kmer)
		if string(want) != string(got) {
			t.Errorf("bucket %d differs after masking another bucket", kmer)
		}
	}
	if masked.TotalPostings() != plain.TotalPostings()-2 {
		t.Errorf("masked total: expected %d, got %d",
			plain.TotalPostings()-2, masked.TotalPostings())
	}
}

// scenario: per-symbol scores 1,1,1,10 with threshold 12 only admit
// k-mers containing symbol 3 twice
func TestBuildScoreThreshold(t *testing.T) {
	diag := []int8{1, 1, 1, 10}
	tbl := buildTable(t, 4, 2, [][]int{
		{3, 3, 0, 3},
	}, 12, diag, nil)

	if tbl.TotalPostings() != 1 {
		t.Fatalf("total postings: expected 1, got %d", tbl.TotalPostings())
	}
	var buf []Posting
	ps := tbl.Postings(3*4+3, &buf)
	if len(ps) != 1 || ps[0].SeqID != 0 || ps[0].Pos != 0 {
		t.Errorf("bucket 3,3: expected one posting at position 0, got %v", ps)
	}
}

func TestBuildBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		symbols  []int
		expected uint64
	}{
		{"empty sequence", []int{}, 0},
		{"shorter than k", []int{1}, 0},
		{"length exactly k", []int{1, 2}, 1},
		{"all k-mers identical", []int{2, 2, 2, 2, 2}, 1},
	}
	for _, c := range cases {
		tbl := buildTable(t, 4, 2, [][]int{c.symbols}, 0, nil, nil)
		if tbl.TotalPostings() != c.expected {
			t.Errorf("%s: expected %d postings, got %d", c.name, c.expected, tbl.TotalPostings())
		}
		checkMonotone(t, tbl)
	}
}

// counting and fill contribute the same number of postings per sequence
// under identical filter parameters
func TestCountFillParity(t *testing.T) {
	seqsData := [][]int{
		{0, 1, 2, 3, 2, 1, 0},
		{3, 3, 3},
		{1, 0, 1, 0, 2},
	}
	diag := []int8{1, 2, 3, 4}

	for _, threshold := range []int{0, 4, 6} {
		tbl, err := New(4, 2)
		if err != nil {
			t.Fatalf("New: %s", err)
		}
		idxer := sequence.NewIndexer(4, 2)
		win := tbl.FullWindow()

		var scratch []uint32
		counted := make([]int, len(seqsData))
		for i, symbols := range seqsData {
			s := sequence.New(uint32(i), symbols, 2)
			counted[i] = tbl.AddKmerCount(s, idxer, &scratch, win, threshold, diag)
		}

		tbl.PrefixSum()
		if err = tbl.InitEntries(nil, len(seqsData)); err != nil {
			t.Fatalf("InitEntries: %s", err)
		}

		var buf []BuildPosting
		written := make([]int, len(seqsData))
		for i, symbols := range seqsData {
			s := sequence.New(uint32(i), symbols, 2)
			before := countCursorSum(tbl)
			tbl.AddSequence(s, idxer, &buf, win, threshold, diag)
			written[i] = int(countCursorSum(tbl) - before)
		}
		tbl.Rewind()

		for i := range seqsData {
			if counted[i] != written[i] {
				t.Errorf("threshold %d, sequence %d: counted %d, wrote %d",
					threshold, i, counted[i], written[i])
			}
		}
		checkMonotone(t, tbl)
	}
}

// countCursorSum sums all cursor cells; the delta over one AddSequence
// call is the number of postings it wrote.
func countCursorSum(tbl *IndexTable) uint64 {
	offsets, _ := tbl.RawBuffers()
	var sum uint64
	for _, o := range offsets {
		sum += o
	}
	return sum
}

// counting a sequence and then undoing its contributions leaves all
// counters at zero
func TestCountingIdempotence(t *testing.T) {
	tbl, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	idxer := sequence.NewIndexer(4, 2)
	s := sequence.New(0, []int{0, 1, 2, 1, 2, 3}, 2)

	var scratch []uint32
	tbl.AddKmerCount(s, idxer, &scratch, tbl.FullWindow(), 0, nil)

	// undo: decrement the counter of every distinct k-mer of the sequence
	distinct := map[uint32]bool{}
	s.ResetCursor()
	for s.HasNextKmer() {
		distinct[idxer.Encode(s.NextKmer(), 0, 2)] = true
	}
	offsets, _ := tbl.RawBuffers()
	for kmer := range distinct {
		offsets[kmer]--
	}

	for i, o := range offsets {
		if o != 0 {
			t.Errorf("cell %d: expected 0 after undo, got %d", i, o)
		}
	}
}

// running the fill pass with two workers on disjoint windows produces
// the same buckets as the single-threaded run
func TestDisjointWindowFill(t *testing.T) {
	seqsData := [][]int{
		{0, 1, 2, 3},
		{0, 1, 0, 1},
		{3, 2, 1, 0, 1, 2, 3},
	}

	single := buildTable(t, 4, 2, seqsData, 0, nil, nil)

	tbl, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	idxer := sequence.NewIndexer(4, 2)

	var scratch []uint32
	for i, symbols := range seqsData {
		s := sequence.New(uint32(i), symbols, 2)
		tbl.AddKmerCount(s, idxer, &scratch, tbl.FullWindow(), 0, nil)
	}
	tbl.PrefixSum()
	if err = tbl.InitEntries(nil, len(seqsData)); err != nil {
		t.Fatalf("InitEntries: %s", err)
	}

	var wg sync.WaitGroup
	for _, win := range tbl.Windows(2) {
		wg.Add(1)
		go func(win Window) {
			defer wg.Done()
			var buf []BuildPosting
			for i, symbols := range seqsData {
				s := sequence.New(uint32(i), symbols, 2)
				tbl.AddSequence(s, idxer, &buf, win, 0, nil)
			}
		}(win)
	}
	wg.Wait()
	tbl.Rewind()

	// per-bucket multisets must match
	var bufA, bufB []Posting
	for kmer := uint32(0); kmer < 16; kmer++ {
		a := append([]Posting{}, single.Postings(kmer, &bufA)...)
		b := append([]Posting{}, tbl.Postings(kmer, &bufB)...)
		if len(a) != len(b) {
			t.Fatalf("bucket %d: %d vs %d postings", kmer, len(a), len(b))
		}
		sortPostings(a)
		sortPostings(b)
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("bucket %d, posting %d: %v vs %v", kmer, i, a[i], b[i])
			}
		}
	}
}

func sortPostings(ps []Posting) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].SeqID != ps[j].SeqID {
			return ps[i].SeqID < ps[j].SeqID
		}
		return ps[i].Pos < ps[j].Pos
	})
}

// the neighborhood mode with a threshold admitting only exact matches
// equals the exact mode
func TestNeighborhoodExactEquivalence(t *testing.T) {
	seqsData := [][]int{
		{0, 1, 2, 3},
		{2, 2, 1, 3},
	}

	exact := buildTable(t, 4, 2, seqsData, 0, nil, nil)

	tbl, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	idxer := sequence.NewIndexer(4, 2)
	matrix := sequence.IdentityMatrix(4, 1, -1)
	gen := sequence.NewGenerator(matrix, idxer, 2, 2) // score 2 = both match

	var scratch []uint32
	for i, symbols := range seqsData {
		s := sequence.New(uint32(i), symbols, 2)
		tbl.AddSimilarKmerCount(s, gen, &scratch, tbl.FullWindow())
	}
	tbl.PrefixSum()
	if err = tbl.InitEntries(nil, len(seqsData)); err != nil {
		t.Fatalf("InitEntries: %s", err)
	}
	var buf []BuildPosting
	for i, symbols := range seqsData {
		s := sequence.New(uint32(i), symbols, 2)
		tbl.AddSimilarSequence(s, gen, &buf, tbl.FullWindow())
	}
	tbl.Rewind()

	if tbl.TotalPostings() != exact.TotalPostings() {
		t.Fatalf("totals differ: %d vs %d", tbl.TotalPostings(), exact.TotalPostings())
	}
	var bufA, bufB []Posting
	for kmer := uint32(0); kmer < 16; kmer++ {
		a := append([]Posting{}, exact.Postings(kmer, &bufA)...)
		b := append([]Posting{}, tbl.Postings(kmer, &bufB)...)
		sortPostings(a)
		sortPostings(b)
		if len(a) != len(b) {
			t.Fatalf("bucket %d: %d vs %d postings", kmer, len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("bucket %d, posting %d: %v vs %v", kmer, i, a[i], b[i])
			}
		}
	}
}

// one substitution allowed: a single k-mer hits all buckets within
// mismatch distance one
func TestNeighborhoodExpansion(t *testing.T) {
	tbl, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	idxer := sequence.NewIndexer(4, 2)
	matrix := sequence.IdentityMatrix(4, 1, 0)
	gen := sequence.NewGenerator(matrix, idxer, 2, 1) // at most one mismatch

	s := sequence.New(0, []int{0, 1}, 2)
	var scratch []uint32
	n := tbl.AddSimilarKmerCount(s, gen, &scratch, tbl.FullWindow())
	// 0,1 with at most one substitution: 1 exact + 3 + 3 = 7 k-mers
	if n != 7 {
		t.Errorf("distinct neighbors: expected 7, got %d", n)
	}

	tbl.PrefixSum()
	if err = tbl.InitEntries(nil, 1); err != nil {
		t.Fatalf("InitEntries: %s", err)
	}
	var buf []BuildPosting
	s2 := sequence.New(0, []int{0, 1}, 2)
	tbl.AddSimilarSequence(s2, gen, &buf, tbl.FullWindow())
	tbl.Rewind()

	if tbl.TotalPostings() != 7 {
		t.Errorf("total postings: expected 7, got %d", tbl.TotalPostings())
	}
	for _, kmer := range []uint32{1, 0, 2, 3, 5, 9, 13} {
		if _, n := tbl.Lookup(kmer); n != 1 {
			t.Errorf("bucket %d: expected 1 posting, got %d", kmer, n)
		}
	}
}
