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
	"fmt"
	"math"
)

// MaxLength is the longest sequence the 16-bit posting position can
// address. Longer sequences must be split before indexing.
const MaxLength = math.MaxUint16

// Sequence is one alphabet-encoded sequence with a k-mer cursor.
// The cursor walks all overlapping windows of k symbols; NextKmer
// returns a view into the sequence, valid until the next call.
type Sequence struct {
	id      uint32
	name    string
	symbols []int
	k       int
	pos     int // start of the k-mer returned by the last NextKmer
}

// New wraps already-encoded symbols.
func New(id uint32, symbols []int, k int) *Sequence {
	return &Sequence{id: id, symbols: symbols, k: k, pos: -1}
}

// FromBytes encodes letters with the given alphabet. Letters outside the
// alphabet are an error; callers split sequences at them beforehand.
func FromBytes(a *Alphabet, id uint32, name string, seq []byte, k int) (*Sequence, error) {
	if len(seq) > MaxLength {
		return nil, fmt.Errorf("sequence %q: length %d exceeds %d, split it first", name, len(seq), MaxLength)
	}
	symbols := make([]int, len(seq))
	for i, c := range seq {
		v := a.Symbol(c)
		if v < 0 {
			return nil, fmt.Errorf("sequence %q: invalid letter %q at position %d", name, c, i)
		}
		symbols[i] = v
	}
	s := New(id, symbols, k)
	s.name = name
	return s, nil
}

// ID returns the ordinal sequence id.
func (s *Sequence) ID() uint32 { return s.id }

// Name returns the sequence name, if any.
func (s *Sequence) Name() string { return s.name }

// Len returns the number of residues.
func (s *Sequence) Len() int { return len(s.symbols) }

// Symbols returns the encoded residues.
func (s *Sequence) Symbols() []int { return s.symbols }

// Clone returns a sequence sharing the symbols but with its own cursor,
// so that several workers can walk the same sequence concurrently.
func (s *Sequence) Clone() *Sequence {
	c := *s
	c.pos = -1
	return &c
}

// ResetCursor rewinds the k-mer cursor to the beginning.
func (s *Sequence) ResetCursor() { s.pos = -1 }

// HasNextKmer reports whether another window of k symbols remains.
func (s *Sequence) HasNextKmer() bool {
	return s.pos+1+s.k <= len(s.symbols)
}

// NextKmer advances the cursor and returns a view of the next k symbols.
func (s *Sequence) NextKmer() []int {
	s.pos++
	return s.symbols[s.pos : s.pos+s.k]
}

// CurrentPosition returns the start position of the k-mer returned by
// the last NextKmer call.
func (s *Sequence) CurrentPosition() uint16 {
	return uint16(s.pos)
}

// Set is an ordered collection of sequences, addressed by ordinal id.
// It doubles as the sequence lookup handle stored in the index table.
type Set struct {
	seqs     []*Sequence
	residues uint64
}

// NewSet creates an empty sequence set.
func NewSet() *Set {
	return &Set{seqs: make([]*Sequence, 0, 1024)}
}

// Add appends a sequence; its id must equal its ordinal position.
func (ss *Set) Add(s *Sequence) error {
	if int(s.id) != len(ss.seqs) {
		return fmt.Errorf("sequence: id %d added at ordinal %d", s.id, len(ss.seqs))
	}
	ss.seqs = append(ss.seqs, s)
	ss.residues += uint64(s.Len())
	return nil
}

// Seq returns the sequence with the given ordinal id.
func (ss *Set) Seq(id uint32) *Sequence { return ss.seqs[id] }

// Seqs returns all sequences in id order.
func (ss *Set) Seqs() []*Sequence { return ss.seqs }

// Len returns the number of sequences.
func (ss *Set) Len() int { return len(ss.seqs) }

// Residues returns the total residue count, for choosing k.
func (ss *Set) Residues() uint64 { return ss.residues }
