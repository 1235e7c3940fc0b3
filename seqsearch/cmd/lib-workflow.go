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
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"github.com/zeebo/wyhash"
)

// CommandCaller accumulates environment variables and runs a shell
// pipeline script with them. Workflow commands write their embedded
// script into a run-specific tmp directory and exec it, so a failed run
// can be inspected and resumed by hand.
type CommandCaller struct {
	vars [][2]string
}

// AddVariable exports VAR=value into the pipeline environment.
func (c *CommandCaller) AddVariable(name, value string) {
	c.vars = append(c.vars, [2]string{name, value})
}

// Run writes the script into dir and executes it with the accumulated
// variables, connecting the pipeline to the current stdout/stderr.
func (c *CommandCaller) Run(dir string, name string, script string, args ...string) error {
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte(script), 0755); err != nil {
		return err
	}

	cmd := exec.Command("/bin/sh", append([]string{file}, args...)...)
	cmd.Env = os.Environ()
	for _, v := range c.vars {
		cmd.Env = append(cmd.Env, v[0]+"="+v[1])
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// hashParameters derives a stable run id from the parameter strings, so
// that re-running the same workflow reuses its tmp directory.
func hashParameters(params []string) string {
	return fmt.Sprintf("%d", wyhash.Hash([]byte(strings.Join(params, "\x00")), 42))
}

// makeWorkflowTmpDir creates <tmpDir>/<hash of params> and points the
// "latest" symlink at it.
func makeWorkflowTmpDir(tmpDir string, params []string) (string, error) {
	existed, err := pathutil.DirExists(tmpDir)
	if err != nil {
		return "", errors.Wrap(err, tmpDir)
	}
	if !existed {
		if err = os.MkdirAll(tmpDir, 0777); err != nil {
			return "", errors.Wrap(err, tmpDir)
		}
	}

	runDir := filepath.Join(tmpDir, hashParameters(params))
	if err = os.MkdirAll(runDir, 0777); err != nil {
		return "", errors.Wrap(err, runDir)
	}

	link := filepath.Join(tmpDir, "latest")
	os.Remove(link)
	if err = os.Symlink(filepath.Base(runDir), link); err != nil {
		return "", errors.Wrap(err, link)
	}

	return runDir, nil
}
