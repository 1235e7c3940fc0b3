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

package kmerindex

import (
	"os"
	"path/filepath"
	"testing"
)

// building, serializing and adopting an index returns byte-identical
// buckets
func TestSerializationRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		tbl := buildTable(t, 4, 2, [][]int{
			{0, 1, 2, 3},
			{0, 1, 0, 1},
		}, 0, nil, nil)

		dir := t.TempDir()
		if err := tbl.WriteToPath(dir, compress); err != nil {
			t.Fatalf("WriteToPath (compress=%v): %s", compress, err)
		}

		adopted, err := ReadFromPath(dir)
		if err != nil {
			t.Fatalf("ReadFromPath (compress=%v): %s", compress, err)
		}

		if !adopted.ExternalData() {
			t.Error("adopted table does not record external data")
		}
		if adopted.KmerSize() != tbl.KmerSize() ||
			adopted.AlphabetSize() != tbl.AlphabetSize() ||
			adopted.NumSequences() != tbl.NumSequences() ||
			adopted.TotalPostings() != tbl.TotalPostings() {
			t.Fatalf("adopted metadata differs")
		}

		for kmer := uint32(0); kmer < 16; kmer++ {
			want, nWant := tbl.Lookup(kmer)
			got, nGot := adopted.Lookup(kmer)
			if nWant != nGot || string(want) != string(got) {
				t.Errorf("bucket %d differs after the round trip", kmer)
			}
		}
	}
}

func TestSerializationBadMagic(t *testing.T) {
	tbl := buildTable(t, 4, 2, [][]int{{0, 1, 2, 3}}, 0, nil, nil)

	dir := t.TempDir()
	if err := tbl.WriteToPath(dir, false); err != nil {
		t.Fatalf("WriteToPath: %s", err)
	}

	file := filepath.Join(dir, OffsetsFile)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading %s: %s", file, err)
	}
	data[0] = 'x'
	if err = os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("writing %s: %s", file, err)
	}

	if _, err = ReadFromPath(dir); err != ErrInvalidFileFormat {
		t.Errorf("expected ErrInvalidFileFormat, got %v", err)
	}
}

func TestSerializationTruncated(t *testing.T) {
	tbl := buildTable(t, 4, 2, [][]int{{0, 1, 2, 3}}, 0, nil, nil)

	dir := t.TempDir()
	if err := tbl.WriteToPath(dir, false); err != nil {
		t.Fatalf("WriteToPath: %s", err)
	}

	file := filepath.Join(dir, PostingsFile)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading %s: %s", file, err)
	}
	if err = os.WriteFile(file, data[:len(data)-3], 0644); err != nil {
		t.Fatalf("writing %s: %s", file, err)
	}

	if _, err = ReadFromPath(dir); err != ErrBrokenFile {
		t.Errorf("expected ErrBrokenFile, got %v", err)
	}
}
