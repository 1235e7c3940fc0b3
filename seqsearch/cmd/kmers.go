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
	"time"

	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/seqsearch/SeqSearch/seqsearch/cmd/kmerindex"
	"github.com/seqsearch/SeqSearch/seqsearch/cmd/sequence"
)

var kmersCmd = &cobra.Command{
	Use:   "kmers",
	Short: "Show statistics of an index",
	Long: `Show statistics of an index

Loads the offsets and postings of an index directory and reports the
bucket size distribution and the largest buckets. With -o, every
non-empty bucket and its postings are dumped.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		dir := getFlagString(cmd, "index")
		outFile := getFlagString(cmd, "out-file")
		if dir == "" {
			checkError(fmt.Errorf("flag -d/--index is needed"))
		}
		dir = expandHome(dir)

		t, err := kmerindex.ReadFromPath(dir)
		checkError(err)

		var alphabet *sequence.Alphabet
		switch t.AlphabetSize() {
		case 4:
			alphabet = sequence.DNA()
		default:
			alphabet = sequence.Protein()
		}
		k := t.KmerSize()

		stats := t.Stats()

		log.Infof("index: %s", dir)
		log.Infof("sequences:     %d", t.NumSequences())
		log.Infof("postings:      %d", stats.Entries)
		log.Infof("buckets:       %d", stats.Buckets)
		log.Infof("empty buckets: %d", stats.Empty)
		log.Infof("max bucket:    %d", stats.Max)
		log.Infof("mean size:     %.4f", stats.Mean)

		sizes := t.BucketSizes(nil)
		if len(sizes) > 0 {
			mean, stdev := stat.MeanStdDev(sizes, nil)
			log.Infof("non-empty buckets: mean size %.4f, stdev %.4f", mean, stdev)
		}

		log.Infof("top %d buckets:", len(stats.Top))
		for _, b := range stats.Top {
			log.Infof("  %s\t%d", alphabet.KmerString(b.Kmer, k), b.Size)
		}

		if outFile != "" {
			w, err := xopen.Wopen(outFile)
			checkError(err)
			checkError(t.WriteBuckets(w, func(kmer uint32) string {
				return alphabet.KmerString(kmer, k)
			}))
			checkError(w.Close())
			if opt.Verbose {
				log.Infof("buckets dumped to: %s", outFile)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(kmersCmd)

	kmersCmd.Flags().StringP("index", "d", "", "index directory")
	kmersCmd.Flags().StringP("out-file", "o", "", `dump all buckets to this file (".gz" for compressed)`)
}
