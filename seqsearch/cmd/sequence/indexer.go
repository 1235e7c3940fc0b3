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

// Indexer is a bijection between k-tuples of alphabet symbols and dense
// integers in [0, A^k). The first symbol of the tuple is the most
// significant digit, so for the 4-letter nucleotide alphabet the index
// equals the usual 2-bit k-mer code.
type Indexer struct {
	alphabetSize int
	k            int
	powers       []uint32 // powers[i] = A^(k-1-i)
}

// NewIndexer creates an indexer for k-mers over an alphabet of
// alphabetSize symbols. The caller guarantees that A^k fits in 32 bits.
func NewIndexer(alphabetSize int, k int) *Indexer {
	powers := make([]uint32, k)
	p := uint32(1)
	for i := k - 1; i >= 0; i-- {
		powers[i] = p
		p *= uint32(alphabetSize)
	}
	return &Indexer{alphabetSize: alphabetSize, k: k, powers: powers}
}

// K returns the k-mer size.
func (x *Indexer) K() int { return x.k }

// Encode returns the dense index of the k symbols starting at offset.
func (x *Indexer) Encode(kmer []int, offset int, k int) uint32 {
	var idx uint32
	for i := 0; i < k; i++ {
		idx += uint32(kmer[offset+i]) * x.powers[i]
	}
	return idx
}

// Decode writes the symbols of a dense index into buf and returns it.
// buf must have length k.
func (x *Indexer) Decode(idx uint32, buf []int) []int {
	for i := 0; i < x.k; i++ {
		buf[i] = int(idx / x.powers[i])
		idx %= x.powers[i]
	}
	return buf
}
