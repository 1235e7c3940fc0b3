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
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// multihitSh is the embedded pipeline: index the sequence files, report
// the index statistics, and dump the buckets next to the index.
const multihitSh = `#!/bin/sh -e
# multihit workflow
[ -n "$OUT_DIR" ] || exit 1

seqsearch index $INDEX_PAR -O "$OUT_DIR" "$@"
seqsearch kmers -d "$OUT_DIR" -o "$OUT_DIR/buckets.tsv.gz" $KMERS_PAR

if [ -n "$REMOVE_TMP" ]; then
    rm -rf "$TMP_PATH"
fi
`

var multihitCmd = &cobra.Command{
	Use:   "multihit",
	Short: "Run the index-and-report workflow on sequence files",
	Long: `Run the index-and-report workflow on sequence files

Builds a k-mer index from the given sequence files, logs its
statistics, and dumps all buckets next to it, by driving the seqsearch
subcommands through a shell pipeline. The pipeline script is written
into a tmp directory derived from the parameters, and a "latest"
symlink points at the most recent run, so an interrupted workflow can
be inspected or resumed by hand.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		timeStart := time.Now()
		defer func() {
			if opt.Verbose {
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
		}()

		outDir := getFlagString(cmd, "out-dir")
		tmpDir := getFlagString(cmd, "tmp-dir")
		removeTmp := getFlagBool(cmd, "remove-tmp-files")
		k := getFlagInt(cmd, "kmer-len")
		alphabet := getFlagString(cmd, "alphabet")
		force := getFlagBool(cmd, "force")

		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}
		if len(args) == 0 {
			checkError(fmt.Errorf("no sequence files given"))
		}

		params := append([]string{outDir, alphabet, strconv.Itoa(k)}, args...)
		runDir, err := makeWorkflowTmpDir(expandHome(tmpDir), params)
		checkError(err)
		if opt.Verbose {
			log.Infof("workflow tmp directory: %s", runDir)
		}

		indexPar := fmt.Sprintf("-k %d -a %s -j %d", k, alphabet, opt.NumCPUs)
		if force {
			indexPar += " --force"
		}
		if !opt.Verbose {
			indexPar += " --quiet"
		}

		caller := &CommandCaller{}
		caller.AddVariable("OUT_DIR", outDir)
		caller.AddVariable("TMP_PATH", runDir)
		caller.AddVariable("INDEX_PAR", indexPar)
		caller.AddVariable("KMERS_PAR", fmt.Sprintf("-j %d", opt.NumCPUs))
		if removeTmp {
			caller.AddVariable("REMOVE_TMP", "TRUE")
		}

		err = caller.Run(runDir, "multihit.sh", multihitSh, args...)
		if err != nil {
			log.Errorf("workflow failed, tmp files kept in %s", runDir)
			os.Exit(1)
		}
	},
}

func init() {
	RootCmd.AddCommand(multihitCmd)

	multihitCmd.Flags().StringP("out-dir", "O", "", "output index directory")
	multihitCmd.Flags().String("tmp-dir", "tmp", "directory for temporary files")
	multihitCmd.Flags().Bool("remove-tmp-files", false, "delete temporary files when done")
	multihitCmd.Flags().IntP("kmer-len", "k", 6, "k-mer size, 6 or 7")
	multihitCmd.Flags().StringP("alphabet", "a", "dna", "sequence alphabet: dna or protein")
	multihitCmd.Flags().Bool("force", false, "overwrite existing output directory")
}
