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

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/seqsearch/SeqSearch/seqsearch/cmd/kmerindex"
	"github.com/seqsearch/SeqSearch/seqsearch/cmd/sequence"
	"github.com/seqsearch/SeqSearch/seqsearch/util"
)

// IndexBuildingOptions holds everything the two-pass build needs.
type IndexBuildingOptions struct {
	// general
	NumCPUs int
	Verbose bool // show log

	// k-mer index
	K            int
	Alphabet     *sequence.Alphabet
	Matrix       *sequence.SubstitutionMatrix
	Threshold    int  // diagonal score threshold for the exact mode
	Neighborhood bool // emit similar k-mers instead of exact ones

	// buckets excluded between the counting and fill passes
	MaskedKmers []uint32
}

// CheckIndexBuildingOptions checks the options.
func CheckIndexBuildingOptions(opt *IndexBuildingOptions) error {
	if opt.K != 6 && opt.K != 7 {
		return errors.Wrapf(kmerindex.ErrInvalidKmerSize, "k=%d, valid values: 6, 7", opt.K)
	}
	if opt.Alphabet == nil {
		return fmt.Errorf("no alphabet given")
	}
	if opt.NumCPUs < 1 {
		return fmt.Errorf("invalid number of CPUs: %d, should be >= 1", opt.NumCPUs)
	}
	if opt.Neighborhood && opt.Matrix == nil {
		return fmt.Errorf("the neighborhood mode needs a substitution matrix")
	}
	if opt.Threshold > 0 && opt.Matrix == nil {
		return fmt.Errorf("a score threshold needs a substitution matrix")
	}
	return nil
}

// BuildIndex runs the two passes over a sequence set and returns the
// frozen table.
//
// The counting pass distributes whole sequences over the workers; all
// counter cells are atomic, so no partitioning is needed there. The fill
// pass instead assigns each worker a disjoint window of the bucket
// space, and every worker walks all sequences; this keeps each bucket
// cursor local to one worker. Joining the fill workers is the memory
// barrier making all postings observable before Rewind.
func BuildIndex(seqs *sequence.Set, opt *IndexBuildingOptions) (*kmerindex.IndexTable, error) {
	t, err := kmerindex.New(opt.Alphabet.Size(), opt.K)
	if err != nil {
		return nil, err
	}

	idxer := sequence.NewIndexer(opt.Alphabet.Size(), opt.K)

	var diagScore []int8
	if opt.Matrix != nil {
		diagScore = opt.Matrix.DiagonalScores()
	}

	// ------------------------------------------------------------------
	// counting pass

	var bar *mpb.Bar
	var pbs *mpb.Progress
	if opt.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(seqs.Len()),
			mpb.PrependDecorators(
				decor.Name("counting k-mers: ", decor.WC{W: len("counting k-mers: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.AverageETA(decor.ET_STYLE_GO),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	chSeq := make(chan *sequence.Sequence, opt.NumCPUs)

	var counting errgroup.Group
	for w := 0; w < opt.NumCPUs; w++ {
		counting.Go(func() error {
			buf := kmerindex.GetKmerScratch()
			defer kmerindex.PutKmerScratch(buf)

			var gen *sequence.Generator
			if opt.Neighborhood {
				gen = sequence.NewGenerator(opt.Matrix, idxer, opt.K, opt.Threshold)
			}

			win := t.FullWindow()
			for s := range chSeq {
				if opt.Neighborhood {
					t.AddSimilarKmerCount(s, gen, buf, win)
				} else {
					t.AddKmerCount(s, idxer, buf, win, opt.Threshold, diagScore)
				}
				if bar != nil {
					bar.Increment()
				}
			}
			return nil
		})
	}
	for _, s := range seqs.Seqs() {
		chSeq <- s
	}
	close(chSeq)
	if err = counting.Wait(); err != nil {
		return nil, err
	}
	if pbs != nil {
		pbs.Wait()
	}

	// ------------------------------------------------------------------
	// masking, offsets, posting store

	if len(opt.MaskedKmers) > 0 {
		masked := make([]uint32, len(opt.MaskedKmers))
		copy(masked, opt.MaskedKmers)
		util.UniqUint32s(&masked)
		t.Mask(masked)
	}

	t.PrefixSum()

	if err = t.InitEntries(seqs, seqs.Len()); err != nil {
		return nil, err
	}

	// ------------------------------------------------------------------
	// fill pass

	if opt.Verbose {
		log.Infof("filling %d postings with %d workers", t.TotalPostings(), opt.NumCPUs)
	}

	var filling errgroup.Group
	for _, win := range t.Windows(opt.NumCPUs) {
		win := win
		filling.Go(func() error {
			buf := kmerindex.GetBuildScratch()
			defer kmerindex.PutBuildScratch(buf)

			var gen *sequence.Generator
			if opt.Neighborhood {
				gen = sequence.NewGenerator(opt.Matrix, idxer, opt.K, opt.Threshold)
			}

			// every worker walks every sequence, with its own cursor
			for _, s := range seqs.Seqs() {
				c := s.Clone()
				if opt.Neighborhood {
					t.AddSimilarSequence(c, gen, buf, win)
				} else {
					t.AddSequence(c, idxer, buf, win, opt.Threshold, diagScore)
				}
			}
			return nil
		})
	}
	if err = filling.Wait(); err != nil {
		return nil, err
	}

	t.Rewind()

	return t, nil
}

// readSequences reads FASTA/Q files into a sequence set, splitting
// records at letters outside the alphabet and into chunks short enough
// for the 16-bit posting position.
func readSequences(files []string, a *sequence.Alphabet, k int) (*sequence.Set, error) {
	set := sequence.NewSet()

	var id uint32
	for _, file := range files {
		reader, err := fastx.NewReader(nil, file, "")
		if err != nil {
			return nil, errors.Wrap(err, file)
		}
		for {
			record, err := reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				return nil, errors.Wrap(err, file)
			}

			for _, frag := range splitByAlphabet(a, record.Seq.Seq) {
				if len(frag) < k {
					continue
				}
				s, err := sequence.FromBytes(a, id, string(record.ID), frag, k)
				if err != nil {
					return nil, errors.Wrap(err, file)
				}
				if err = set.Add(s); err != nil {
					return nil, err
				}
				id++
			}
		}
		reader.Close()
	}

	return set, nil
}

// splitByAlphabet cuts a sequence at letters the alphabet rejects and
// then into chunks of at most sequence.MaxLength residues.
func splitByAlphabet(a *sequence.Alphabet, seq []byte) [][]byte {
	frags := make([][]byte, 0, 1)
	start := -1
	for i, c := range seq {
		if a.Symbol(c) < 0 {
			if start >= 0 {
				frags = append(frags, seq[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		frags = append(frags, seq[start:])
	}

	chunked := make([][]byte, 0, len(frags))
	for _, frag := range frags {
		for len(frag) > sequence.MaxLength {
			chunked = append(chunked, frag[:sequence.MaxLength])
			frag = frag[sequence.MaxLength:]
		}
		chunked = append(chunked, frag)
	}
	return chunked
}

// readMaskFile reads one k-mer per line, in letters, and returns their
// dense indices.
func readMaskFile(file string, a *sequence.Alphabet, idxer *sequence.Indexer) ([]uint32, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	kmers := make([]uint32, 0, 128)
	var line string
	for {
		line, err = fh.ReadString('\n')
		if len(line) > 0 {
			s := trimNewline(line)
			if s != "" && s[0] != '#' {
				idx, err2 := a.ParseKmer(s, idxer)
				if err2 != nil {
					return nil, err2
				}
				kmers = append(kmers, idx)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return kmers, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
