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

// Generator emits the indices of all k-mers whose substitution score
// against a query k-mer reaches a threshold. The enumeration is a
// depth-first walk over the positions with branch-and-bound pruning:
// a branch is cut as soon as the score so far plus the best achievable
// score of the remaining positions cannot reach the threshold.
//
// Each Generator is used by a single worker; Expand reuses an internal
// buffer, so results are only valid until the next call.
type Generator struct {
	m         *SubstitutionMatrix
	idxer     *Indexer
	k         int
	threshold int

	bestLeft []int // bestLeft[i]: max score achievable from position i on
	rowMax   []int // per-symbol max row score
	out      []uint32
}

// NewGenerator creates a similar-k-mer generator. The threshold binds
// both this generator and the exact emission mode of the same build, so
// counting and filling see the same k-mer sets.
func NewGenerator(m *SubstitutionMatrix, idxer *Indexer, k int, threshold int) *Generator {
	g := &Generator{
		m:         m,
		idxer:     idxer,
		k:         k,
		threshold: threshold,
		bestLeft:  make([]int, k+1),
		rowMax:    make([]int, m.Size()),
		out:       make([]uint32, 0, 64),
	}
	for a := 0; a < m.Size(); a++ {
		best := int(m.Score(a, 0))
		for b := 1; b < m.Size(); b++ {
			if int(m.Score(a, b)) > best {
				best = int(m.Score(a, b))
			}
		}
		g.rowMax[a] = best
	}
	return g
}

// Threshold returns the similarity threshold.
func (g *Generator) Threshold() int { return g.threshold }

// Expand returns the indices of all k-mers scoring at least the
// threshold against the query k-mer. The returned slice is reused.
func (g *Generator) Expand(kmer []int) []uint32 {
	g.out = g.out[:0]

	// upper bounds of the remaining suffix score per position
	g.bestLeft[g.k] = 0
	for i := g.k - 1; i >= 0; i-- {
		g.bestLeft[i] = g.bestLeft[i+1] + g.rowMax[kmer[i]]
	}
	if g.bestLeft[0] < g.threshold {
		return g.out
	}

	g.expand(kmer, 0, 0, 0)
	return g.out
}

func (g *Generator) expand(kmer []int, pos int, score int, idx uint32) {
	if pos == g.k {
		g.out = append(g.out, idx)
		return
	}
	a := kmer[pos]
	for b := 0; b < g.m.Size(); b++ {
		s := score + int(g.m.Score(a, b))
		if s+g.bestLeft[pos+1] < g.threshold {
			continue
		}
		g.expand(kmer, pos+1, s, idx+uint32(b)*g.idxer.powers[pos])
	}
}
