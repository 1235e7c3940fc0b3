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

// Package sequence provides alphabet-encoded sequences with a k-mer
// cursor, the k-mer indexer, and the similar-k-mer generator consumed by
// the index building passes.
package sequence

import (
	"fmt"

	"github.com/shenwei356/kmers"
)

// Alphabet maps sequence letters to dense symbol values [0, Size).
type Alphabet struct {
	name    string
	letters []byte
	codes   [128]int8 // letter to symbol, -1 for invalid letters
}

// DNA returns the 4-letter nucleotide alphabet ACGT. Ambiguity codes are
// invalid; callers split sequences at them.
func DNA() *Alphabet {
	return newAlphabet("dna", []byte("ACGT"), 0)
}

// Protein returns the 21-symbol amino acid alphabet: the 20 standard
// residues plus X, to which all unknown letters are mapped.
func Protein() *Alphabet {
	return newAlphabet("protein", []byte("ACDEFGHIKLMNPQRSTVWYX"), 'X')
}

func newAlphabet(name string, letters []byte, unknown byte) *Alphabet {
	a := &Alphabet{name: name, letters: letters}
	for i := range a.codes {
		a.codes[i] = -1
	}
	for s, c := range letters {
		a.codes[c] = int8(s)
		if c >= 'A' && c <= 'Z' {
			a.codes[c+'a'-'A'] = int8(s)
		}
	}
	if unknown > 0 {
		x := a.codes[unknown]
		for i := 'A'; i <= 'Z'; i++ {
			if a.codes[i] < 0 {
				a.codes[i] = x
				a.codes[i+'a'-'A'] = x
			}
		}
	}
	return a
}

// Name returns the alphabet name.
func (a *Alphabet) Name() string { return a.name }

// Size returns the number of symbols.
func (a *Alphabet) Size() int { return len(a.letters) }

// Symbol returns the symbol value of a letter, or -1 for invalid letters.
func (a *Alphabet) Symbol(c byte) int {
	if c >= 128 {
		return -1
	}
	return int(a.codes[c])
}

// Letter returns the letter of a symbol.
func (a *Alphabet) Letter(s int) byte { return a.letters[s] }

// KmerString renders the k-mer with the given dense index as letters.
// For the nucleotide alphabet the dense index equals the 2-bit k-mer
// code, so decoding is delegated to the kmers package.
func (a *Alphabet) KmerString(idx uint32, k int) string {
	if len(a.letters) == 4 {
		return string(kmers.Decode(uint64(idx), k))
	}
	buf := make([]byte, k)
	n := uint32(len(a.letters))
	for i := k - 1; i >= 0; i-- {
		buf[i] = a.letters[idx%n]
		idx /= n
	}
	return string(buf)
}

// ParseKmer encodes a k-mer given as letters into its dense index.
func (a *Alphabet) ParseKmer(s string, idxer *Indexer) (uint32, error) {
	if len(s) != idxer.k {
		return 0, fmt.Errorf("sequence: %d-mer expected, got %q", idxer.k, s)
	}
	symbols := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		v := a.Symbol(s[i])
		if v < 0 {
			return 0, fmt.Errorf("sequence: invalid letter %q in k-mer %q", s[i], s)
		}
		symbols[i] = v
	}
	return idxer.Encode(symbols, 0, idxer.k), nil
}
