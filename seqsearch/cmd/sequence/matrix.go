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

// SubstitutionMatrix scores symbol substitutions. The diagonal holds the
// per-symbol self scores used by the threshold filter of the exact
// k-mer emission mode.
type SubstitutionMatrix struct {
	size   int
	scores [][]int8
}

// NewSubstitutionMatrix creates a zero matrix for an alphabet size.
func NewSubstitutionMatrix(size int) *SubstitutionMatrix {
	scores := make([][]int8, size)
	for i := range scores {
		scores[i] = make([]int8, size)
	}
	return &SubstitutionMatrix{size: size, scores: scores}
}

// IdentityMatrix scores match on the diagonal and mismatch elsewhere.
func IdentityMatrix(size int, match, mismatch int8) *SubstitutionMatrix {
	m := NewSubstitutionMatrix(size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if i == j {
				m.scores[i][j] = match
			} else {
				m.scores[i][j] = mismatch
			}
		}
	}
	return m
}

// Size returns the alphabet size.
func (m *SubstitutionMatrix) Size() int { return m.size }

// Score returns the substitution score of two symbols.
func (m *SubstitutionMatrix) Score(a, b int) int8 { return m.scores[a][b] }

// SetScore sets the substitution score of two symbols.
func (m *SubstitutionMatrix) SetScore(a, b int, score int8) { m.scores[a][b] = score }

// DiagonalScores returns the per-symbol self scores.
func (m *SubstitutionMatrix) DiagonalScores() []int8 {
	diag := make([]int8, m.size)
	for i := 0; i < m.size; i++ {
		diag[i] = m.scores[i][i]
	}
	return diag
}
