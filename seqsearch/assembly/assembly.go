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

// Package assembly greedily extends query contigs with the unaligned
// overhangs of pre-computed pairwise alignment results. No alignment is
// computed here; the results are inputs.
package assembly

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rdleal/intervalst/interval"
)

// Result is one pairwise alignment result between a query and a target
// sequence, with 0-based inclusive coordinates.
type Result struct {
	DBKey   uint32
	Score   int
	QStart  int
	QEnd    int
	DBStart int
	DBEnd   int
}

// noHit marks the absence of a usable extension hit.
const noHit = math.MaxUint32

// ParseResults reads tab-separated alignment results with one hit per
// row:
//
//	queryKey  dbKey  score  qStart  qEnd  dbStart  dbEnd
//
// Coordinates are 0-based and inclusive. Hits are grouped by query key
// and sorted by score descending within each group.
func ParseResults(r io.Reader) (map[uint32][]Result, error) {
	byQuery := make(map[uint32][]Result, 1024)

	scanner := bufio.NewScanner(r)
	fields := make([]int, 7)
	var line string
	var nLine int
	for scanner.Scan() {
		nLine++
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || line[0] == '#' {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 7 {
			return nil, fmt.Errorf("assembly: line %d: 7 columns expected, got %d", nLine, len(cols))
		}
		for i := 0; i < 7; i++ {
			v, err := strconv.Atoi(cols[i])
			if err != nil {
				return nil, fmt.Errorf("assembly: line %d: column %d: %s", nLine, i+1, err)
			}
			fields[i] = v
		}
		queryKey := uint32(fields[0])
		byQuery[queryKey] = append(byQuery[queryKey], Result{
			DBKey:   uint32(fields[1]),
			Score:   fields[2],
			QStart:  fields[3],
			QEnd:    fields[4],
			DBStart: fields[5],
			DBEnd:   fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, results := range byQuery {
		if !sort.SliceIsSorted(results, func(i, j int) bool { return results[i].Score > results[j].Score }) {
			sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		}
	}

	return byQuery, nil
}

// Extender extends queries with target overhangs.
type Extender struct {
	targets map[uint32][]byte
}

// NewExtender creates an extender over a set of target sequences.
func NewExtender(targets map[uint32][]byte) *Extender {
	return &Extender{targets: targets}
}

// selectBestExtension returns the first hit, in score order, that has not
// been used yet, is not the query itself, and whose alignment touches
// either end of the current contig (its query start or its target start
// is 0). Returns noHit if none qualifies.
func selectBestExtension(results []Result, used map[uint32]bool, queryKey uint32) (Result, bool) {
	for _, r := range results {
		if used[r.DBKey] || r.DBKey == queryKey {
			continue
		}
		if r.DBStart == 0 || r.QStart == 0 {
			return r, true
		}
	}
	return Result{DBKey: noHit}, false
}

// Extend grows one query contig. Hits are consumed best-score first;
// each used target is marked so it extends the contig at most once, and
// each accepted extension records the query interval its alignment
// covered, so a later hit aligning into an already-consumed interval is
// skipped instead of re-extending the same flank. Coordinates of the
// hits refer to the original query throughout.
func (e *Extender) Extend(queryKey uint32, query []byte, results []Result) []byte {
	used := make(map[uint32]bool, len(results))
	covered := interval.NewSearchTree[uint32](func(x, y int) int { return x - y })

	contig := make([]byte, len(query))
	copy(contig, query)

	for {
		hit, ok := selectBestExtension(results, used, queryKey)
		if !ok {
			break
		}
		used[hit.DBKey] = true

		target, ok := e.targets[hit.DBKey]
		if !ok {
			continue
		}

		if _, hasOverlap := covered.AnyIntersection(hit.QStart, hit.QEnd+1); hasOverlap {
			continue
		}

		switch {
		case hit.DBStart == 0 && hit.DBEnd < len(target)-1:
			// target aligns from its start: its tail extends the right end
			contig = append(contig, target[hit.DBEnd+1:]...)
			covered.Insert(hit.QStart, hit.QEnd+1, hit.DBKey)
		case hit.QStart == 0 && hit.DBStart > 0:
			// query aligns from its start: the target head extends the left end
			fragment := target[:hit.DBStart]
			extended := make([]byte, 0, len(fragment)+len(contig))
			extended = append(extended, fragment...)
			extended = append(extended, contig...)
			contig = extended
			covered.Insert(hit.QStart, hit.QEnd+1, hit.DBKey)
		}
	}

	return contig
}
