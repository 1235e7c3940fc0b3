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

package sequence

import (
	"testing"
)

func TestKmerCursor(t *testing.T) {
	s := New(3, []int{0, 1, 2, 3}, 2)

	if s.ID() != 3 {
		t.Errorf("id: expected 3, got %d", s.ID())
	}

	var kmers [][]int
	var positions []uint16
	for s.HasNextKmer() {
		kmer := s.NextKmer()
		kmers = append(kmers, append([]int{}, kmer...))
		positions = append(positions, s.CurrentPosition())
	}

	expected := [][]int{{0, 1}, {1, 2}, {2, 3}}
	if len(kmers) != len(expected) {
		t.Fatalf("expected %d k-mers, got %d", len(expected), len(kmers))
	}
	for i := range expected {
		if positions[i] != uint16(i) {
			t.Errorf("k-mer %d: expected position %d, got %d", i, i, positions[i])
		}
		for j := range expected[i] {
			if kmers[i][j] != expected[i][j] {
				t.Errorf("k-mer %d: expected %v, got %v", i, expected[i], kmers[i])
			}
		}
	}

	// the cursor can be rewound
	s.ResetCursor()
	if !s.HasNextKmer() {
		t.Error("no k-mer after ResetCursor")
	}
	kmer := s.NextKmer()
	if kmer[0] != 0 || kmer[1] != 1 || s.CurrentPosition() != 0 {
		t.Errorf("first k-mer after reset: got %v at %d", kmer, s.CurrentPosition())
	}
}

func TestKmerCursorBoundaries(t *testing.T) {
	if s := New(0, []int{}, 2); s.HasNextKmer() {
		t.Error("empty sequence must not yield k-mers")
	}
	if s := New(0, []int{1}, 2); s.HasNextKmer() {
		t.Error("sequence shorter than k must not yield k-mers")
	}

	s := New(0, []int{1, 2}, 2)
	if !s.HasNextKmer() {
		t.Fatal("sequence of length k must yield one k-mer")
	}
	s.NextKmer()
	if s.HasNextKmer() {
		t.Error("sequence of length k must yield exactly one k-mer")
	}
}

func TestClone(t *testing.T) {
	s := New(0, []int{0, 1, 2}, 2)
	s.NextKmer()

	c := s.Clone()
	if !c.HasNextKmer() {
		t.Fatal("clone must start at the beginning")
	}
	kmer := c.NextKmer()
	if kmer[0] != 0 || kmer[1] != 1 {
		t.Errorf("clone first k-mer: got %v", kmer)
	}
	// the original cursor is unaffected
	if s.CurrentPosition() != 0 {
		t.Errorf("original cursor moved to %d", s.CurrentPosition())
	}
}

func TestFromBytes(t *testing.T) {
	a := DNA()

	s, err := FromBytes(a, 0, "t1", []byte("ACGTacgt"), 2)
	if err != nil {
		t.Fatalf("FromBytes: %s", err)
	}
	expected := []int{0, 1, 2, 3, 0, 1, 2, 3}
	for i, v := range expected {
		if s.Symbols()[i] != v {
			t.Errorf("symbol %d: expected %d, got %d", i, v, s.Symbols()[i])
		}
	}

	if _, err = FromBytes(a, 0, "t2", []byte("ACNT"), 2); err == nil {
		t.Error("invalid letter accepted")
	}

	// unknown amino acids map to X instead of failing
	p, err := FromBytes(Protein(), 0, "t3", []byte("ACDB"), 2)
	if err != nil {
		t.Fatalf("FromBytes protein: %s", err)
	}
	if p.Symbols()[3] != Protein().Symbol('X') {
		t.Errorf("unknown residue: expected X, got symbol %d", p.Symbols()[3])
	}
}

func TestIndexerBijection(t *testing.T) {
	for _, alphabetSize := range []int{4, 21} {
		k := 3
		idxer := NewIndexer(alphabetSize, k)

		n := uint32(1)
		for i := 0; i < k; i++ {
			n *= uint32(alphabetSize)
		}

		buf := make([]int, k)
		for idx := uint32(0); idx < n; idx++ {
			symbols := idxer.Decode(idx, buf)
			back := idxer.Encode(symbols, 0, k)
			if back != idx {
				t.Fatalf("A=%d: decode/encode of %d gives %d", alphabetSize, idx, back)
			}
		}
	}
}

func TestIndexerOffset(t *testing.T) {
	idxer := NewIndexer(4, 2)
	symbols := []int{3, 0, 1, 2}
	if idx := idxer.Encode(symbols, 1, 2); idx != 0*4+1 {
		t.Errorf("offset encode: expected 1, got %d", idx)
	}
}

func TestKmerString(t *testing.T) {
	dna := DNA()
	idxer := NewIndexer(4, 3)

	idx := idxer.Encode([]int{0, 1, 2}, 0, 3) // ACG
	if s := dna.KmerString(idx, 3); s != "ACG" {
		t.Errorf(`expected "ACG", got %q`, s)
	}

	back, err := dna.ParseKmer("ACG", idxer)
	if err != nil {
		t.Fatalf("ParseKmer: %s", err)
	}
	if back != idx {
		t.Errorf("ParseKmer: expected %d, got %d", idx, back)
	}

	protein := Protein()
	idxerP := NewIndexer(21, 2)
	idxP, err := protein.ParseKmer("CW", idxerP)
	if err != nil {
		t.Fatalf("ParseKmer protein: %s", err)
	}
	if s := protein.KmerString(idxP, 2); s != "CW" {
		t.Errorf(`expected "CW", got %q`, s)
	}
}
