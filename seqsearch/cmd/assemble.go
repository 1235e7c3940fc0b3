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
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"

	"github.com/seqsearch/SeqSearch/seqsearch/assembly"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Greedily extend sequences with aligned fragments",
	Long: `Greedily extend sequences with aligned fragments

Reads sequences (FASTA/Q, record names must be integer keys) and
pre-computed pairwise alignment results, and extends every sequence
with the unaligned overhangs of its best-scoring hits. Alignment result
files are tab-separated:

    queryKey  dbKey  score  qStart  qEnd  dbStart  dbEnd

with 0-based inclusive coordinates, rows grouped by query.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		seqFile := getFlagString(cmd, "seqs")
		alnFile := getFlagString(cmd, "alignments")
		outFile := getFlagString(cmd, "out-file")
		if seqFile == "" || alnFile == "" {
			checkError(fmt.Errorf("flags -s/--seqs and -a/--alignments are needed"))
		}

		// ---------------------------------------------------------------
		// sequences

		targets := make(map[uint32][]byte, 1024)
		order := make([]uint32, 0, 1024)

		reader, err := fastx.NewReader(nil, expandHome(seqFile), "")
		checkError(errors.Wrap(err, seqFile))
		for {
			record, err := reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				checkError(errors.Wrap(err, seqFile))
			}
			key, err := strconv.ParseUint(string(record.ID), 10, 32)
			checkError(errors.Wrapf(err, "sequence name is not an integer key: %s", record.ID))

			s := make([]byte, len(record.Seq.Seq))
			copy(s, record.Seq.Seq)
			targets[uint32(key)] = s
			order = append(order, uint32(key))
		}
		reader.Close()

		// ---------------------------------------------------------------
		// alignment results, grouped by query key

		fh, err := xopen.Ropen(expandHome(alnFile))
		checkError(errors.Wrap(err, alnFile))
		byQuery, err := assembly.ParseResults(fh)
		checkError(errors.Wrap(err, alnFile))
		checkError(fh.Close())

		// ---------------------------------------------------------------
		// extend

		extender := assembly.NewExtender(targets)

		outfh, err := xopen.Wopen(outFile)
		checkError(err)

		var extended int
		for _, key := range order {
			contig := extender.Extend(key, targets[key], byQuery[key])
			if len(contig) > len(targets[key]) {
				extended++
			}
			fmt.Fprintf(outfh, ">%d\n%s\n", key, contig)
		}
		checkError(outfh.Close())

		if opt.Verbose {
			log.Infof("%d of %d sequences extended", extended, len(order))
		}
	},
}

func init() {
	RootCmd.AddCommand(assembleCmd)

	assembleCmd.Flags().StringP("seqs", "s", "", "sequence file (FASTA/Q)")
	assembleCmd.Flags().StringP("alignments", "a", "", "tab-separated alignment results")
	assembleCmd.Flags().StringP("out-file", "o", "-", `out file ("-" for stdout, ".gz" for compressed)`)
}
