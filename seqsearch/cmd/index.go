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
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"

	"github.com/seqsearch/SeqSearch/seqsearch/cmd/kmerindex"
	"github.com/seqsearch/SeqSearch/seqsearch/cmd/sequence"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a k-mer index from FASTA/Q files",
	Long: `Build a k-mer index from FASTA/Q files

The index maps every k-mer to the sequences containing it. It is built
in two passes: the first counts the postings of every bucket, the
second writes them. Sequences are split at letters outside the chosen
alphabet and into chunks of at most 65535 residues.

With --neighborhood, every k-mer additionally hits the buckets of all
similar k-mers scoring at least --threshold under the identity
substitution matrix (--match/--mismatch).

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		var err error

		// ---------------------------------------------------------------
		// flags

		k := getFlagInt(cmd, "kmer-len")
		alphabetName := getFlagString(cmd, "alphabet")
		threshold := getFlagNonNegativeInt(cmd, "threshold")
		neighborhood := getFlagBool(cmd, "neighborhood")
		match := getFlagInt(cmd, "match")
		mismatch := getFlagInt(cmd, "mismatch")
		maskFile := getFlagString(cmd, "mask-file")
		outDir := getFlagString(cmd, "out-dir")
		inDir := getFlagString(cmd, "in-dir")
		reFileStr := getFlagString(cmd, "file-regexp")
		force := getFlagBool(cmd, "force")
		compress := getFlagBool(cmd, "compress")

		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}
		outDir = expandHome(outDir)

		var alphabet *sequence.Alphabet
		switch alphabetName {
		case "dna":
			alphabet = sequence.DNA()
		case "protein":
			alphabet = sequence.Protein()
		default:
			checkError(fmt.Errorf("invalid alphabet: %s, valid values: dna, protein", alphabetName))
		}

		// ---------------------------------------------------------------
		// input files

		files := make([]string, 0, len(args))
		files = append(files, args...)
		if inDir != "" {
			inDir = expandHome(inDir)
			isDir, err := pathutil.IsDir(inDir)
			checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
			reFile, err := regexp.Compile(reFileStr)
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching files: %s", reFileStr))
			fromDir, err := getFileListFromDir(inDir, reFile, opt.NumCPUs)
			checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			files = append(files, fromDir...)
		}
		if len(files) == 0 {
			checkError(fmt.Errorf("no input files given, by positional arguments or -I/--in-dir"))
		}

		if opt.Verbose {
			log.Infof("seqsearch v%s", VERSION)
			log.Info()
			log.Infof("%d input file(s) given", len(files))
		}

		// ---------------------------------------------------------------
		// read sequences

		seqs, err := readSequences(files, alphabet, k)
		checkError(err)
		if seqs.Len() == 0 {
			checkError(fmt.Errorf("no sequences longer than k=%d found", k))
		}

		if k == 0 {
			k = kmerindex.ComputeKmerSize(seqs.Residues())
			if opt.Verbose {
				log.Infof("chose k=%d for %d residues", k, seqs.Residues())
			}
			// re-split: fragments shorter than the chosen k are useless
			seqs, err = readSequences(files, alphabet, k)
			checkError(err)
		}

		if opt.Verbose {
			log.Infof("%d sequence fragment(s), %d residues", seqs.Len(), seqs.Residues())
		}

		// ---------------------------------------------------------------
		// build

		matrix := sequence.IdentityMatrix(alphabet.Size(), int8(match), int8(mismatch))

		bopt := &IndexBuildingOptions{
			NumCPUs:      opt.NumCPUs,
			Verbose:      opt.Verbose,
			K:            k,
			Alphabet:     alphabet,
			Matrix:       matrix,
			Threshold:    threshold,
			Neighborhood: neighborhood,
		}
		checkError(CheckIndexBuildingOptions(bopt))

		if maskFile != "" {
			idxer := sequence.NewIndexer(alphabet.Size(), k)
			masked, err := readMaskFile(expandHome(maskFile), alphabet, idxer)
			checkError(errors.Wrap(err, maskFile))
			bopt.MaskedKmers = masked
			if opt.Verbose {
				log.Infof("%d masked k-mer(s) read from %s", len(masked), maskFile)
			}
		}

		t, err := BuildIndex(seqs, bopt)
		checkError(err)

		stats := t.Stats()
		if opt.Verbose {
			log.Infof("postings: %d, empty buckets: %d / %d, mean bucket size: %.4f",
				stats.Entries, stats.Empty, stats.Buckets, stats.Mean)
		}

		// ---------------------------------------------------------------
		// save

		makeOutDir(outDir, force, "out-dir", opt.Verbose)
		checkError(t.WriteToPath(outDir, compress))
		if opt.Verbose {
			log.Infof("index saved to: %s", outDir)
		}
	},
}

func init() {
	RootCmd.AddCommand(indexCmd)

	indexCmd.Flags().IntP("kmer-len", "k", 0, "k-mer size, 6 or 7, 0 to choose by the total residue count")
	indexCmd.Flags().StringP("alphabet", "a", "dna", "sequence alphabet: dna or protein")
	indexCmd.Flags().IntP("threshold", "t", 0, "minimum k-mer score, 0 to keep all k-mers")
	indexCmd.Flags().BoolP("neighborhood", "n", false, "emit all similar k-mers above the threshold")
	indexCmd.Flags().Int("match", 2, "identity matrix match score")
	indexCmd.Flags().Int("mismatch", -1, "identity matrix mismatch score")
	indexCmd.Flags().StringP("mask-file", "m", "", "file with one k-mer per line to exclude from the index")
	indexCmd.Flags().StringP("out-dir", "O", "", "output index directory")
	indexCmd.Flags().StringP("in-dir", "I", "", "directory containing FASTA/Q files")
	indexCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(.gz)?$`, "regular expression for matching sequence files in -I/--in-dir")
	indexCmd.Flags().Bool("force", false, "overwrite existing output directory")
	indexCmd.Flags().BoolP("compress", "z", false, "compress the index files with gzip")
}
