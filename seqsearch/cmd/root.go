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

	colorable "github.com/mattn/go-colorable"
	"github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

// VERSION of seqsearch
const VERSION = "0.1.0"

var log = logging.MustGetLogger("seqsearch")

func init() {
	format := logging.MustStringFormatter(`%{color}%{time:15:04:05.000} [%{level:.4s}]%{color:reset} %{message}`)
	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	logging.SetBackend(logging.NewBackendFormatter(backend, format))
}

// RootCmd is the root command of seqsearch.
var RootCmd = &cobra.Command{
	Use:   "seqsearch",
	Short: "sequence search toolkit with a k-mer prefilter index",
	Long: fmt.Sprintf(`seqsearch: sequence search toolkit with a k-mer prefilter index

Version: v%s

seqsearch builds an inverted index from k-mers to the sequences
containing them, reports index statistics, greedily assembles contigs
from pairwise alignment results, and drives multi-step shell pipelines.

`, VERSION),
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().IntP("threads", "j", 0, "number of CPU cores to use, 0 for all")
	RootCmd.PersistentFlags().Bool("quiet", false, "do not print any verbose information")
	RootCmd.PersistentFlags().String("log", "", "log file (also prints log to the screen)")

	RootCmd.CompletionOptions.DisableDefaultCmd = true
}

func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
