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
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/pelletier/go-toml/v2"
)

// Magic number of the offsets file
var MagicOffsets = [8]byte{'.', 's', 'e', 'q', 's', 'o', 'f', 'f'}

// Magic number of the postings file
var MagicPostings = [8]byte{'.', 's', 'e', 'q', 's', 'p', 'o', 's'}

// MainVersion is used for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// BufferSize is the size of the reading and writing buffers
var BufferSize = 65536

// OffsetsFile is the name of the bucket offsets file in an index directory.
const OffsetsFile = "offsets.bin"

// PostingsFile is the name of the packed postings file.
const PostingsFile = "postings.bin"

// InfoFile summarizes the index for humans and tools.
const InfoFile = "info.toml"

// GzipFileExt marks compressed data files.
const GzipFileExt = ".gz"

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("kmer index: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("kmer index: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("kmer index: version mismatch")

// Info is the content of the info file.
type Info struct {
	MainVersion  uint8  `toml:"main-version"`
	MinorVersion uint8  `toml:"minor-version"`
	K            int    `toml:"k"`
	AlphabetSize int    `toml:"alphabet-size"`
	Sequences    int    `toml:"sequences"`
	Postings     uint64 `toml:"postings"`
	Buckets      uint64 `toml:"buckets"`
	Compressed   bool   `toml:"compressed"`
}

// WriteToPath saves a frozen table into a directory:
//
//	offsets.bin[.gz]   A^k+1 offset cells
//	postings.bin[.gz]  packed postings
//	info.toml          summary
//
// The two binary files have a 16-byte header (magic number, versions,
// k, alphabet size) followed by 8-byte record counters and the raw
// little-endian buffers, so an uncompressed file can be adopted by
// mapping everything after the header.
func (t *IndexTable) WriteToPath(outDir string, compress bool) error {
	ext := ""
	if compress {
		ext = GzipFileExt
	}

	err := t.writeOffsets(filepath.Join(outDir, OffsetsFile+ext))
	if err != nil {
		return err
	}
	err = t.writePostings(filepath.Join(outDir, PostingsFile+ext))
	if err != nil {
		return err
	}

	info := Info{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,
		K:            t.kmerSize,
		AlphabetSize: t.alphabetSize,
		Sequences:    t.nSeqs,
		Postings:     t.nEntries,
		Buckets:      t.tableSize,
		Compressed:   compress,
	}
	data, err := toml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, InfoFile), data, 0644)
}

func openDataWriter(file string) (io.WriteCloser, *os.File, error) {
	fh, err := os.Create(file)
	if err != nil {
		return nil, nil, err
	}
	if filepath.Ext(file) == GzipFileExt {
		return pgzip.NewWriter(fh), fh, nil
	}
	return nil, fh, nil
}

func (t *IndexTable) writeOffsets(file string) error {
	gz, fh, err := openDataWriter(file)
	if err != nil {
		return err
	}
	var w *bufio.Writer
	if gz != nil {
		w = bufio.NewWriterSize(gz, BufferSize)
	} else {
		w = bufio.NewWriterSize(fh, BufferSize)
	}

	buf := make([]byte, 8)

	// 8-byte magic number
	if _, err = w.Write(MagicOffsets[:]); err != nil {
		return err
	}
	// 8-byte meta info: versions, k, alphabet size; 4 bytes preserved
	if _, err = w.Write([]byte{MainVersion, MinorVersion, uint8(t.kmerSize), uint8(t.alphabetSize), 0, 0, 0, 0}); err != nil {
		return err
	}
	// the number of cells
	le.PutUint64(buf, t.tableSize+1)
	if _, err = w.Write(buf); err != nil {
		return err
	}

	for _, cell := range t.offsets {
		le.PutUint64(buf, cell)
		if _, err = w.Write(buf); err != nil {
			return err
		}
	}

	if err = w.Flush(); err != nil {
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return err
		}
	}
	return fh.Close()
}

func (t *IndexTable) writePostings(file string) error {
	gz, fh, err := openDataWriter(file)
	if err != nil {
		return err
	}
	var w *bufio.Writer
	if gz != nil {
		w = bufio.NewWriterSize(gz, BufferSize)
	} else {
		w = bufio.NewWriterSize(fh, BufferSize)
	}

	buf := make([]byte, 16)

	// 8-byte magic number
	if _, err = w.Write(MagicPostings[:]); err != nil {
		return err
	}
	// 8-byte meta info
	if _, err = w.Write([]byte{MainVersion, MinorVersion, uint8(t.kmerSize), uint8(t.alphabetSize), 0, 0, 0, 0}); err != nil {
		return err
	}
	// the number of sequences and postings
	le.PutUint64(buf[:8], uint64(t.nSeqs))
	le.PutUint64(buf[8:16], t.nEntries)
	if _, err = w.Write(buf); err != nil {
		return err
	}

	if _, err = w.Write(t.entries); err != nil {
		return err
	}

	if err = w.Flush(); err != nil {
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return err
		}
	}
	return fh.Close()
}

// ReadFromPath loads an index directory written by WriteToPath and binds
// the loaded buffers through the external-data path, so the returned
// table behaves exactly like a freshly built one.
func ReadFromPath(dir string) (*IndexTable, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFile))
	if err != nil {
		return nil, err
	}
	var info Info
	if err = toml.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	if info.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}

	ext := ""
	if info.Compressed {
		ext = GzipFileExt
	}

	offsets, k, a, err := readOffsets(filepath.Join(dir, OffsetsFile+ext))
	if err != nil {
		return nil, err
	}
	if k != info.K || a != info.AlphabetSize {
		return nil, ErrInvalidFileFormat
	}

	entries, nSeqs, nEntries, err := readPostings(filepath.Join(dir, PostingsFile+ext))
	if err != nil {
		return nil, err
	}
	if nEntries != info.Postings {
		return nil, ErrBrokenFile
	}

	return NewFromExternalData(a, k, nSeqs, nEntries, entries, offsets, nil)
}

func openDataReader(file string) (io.Reader, io.Closer, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	if filepath.Ext(file) == GzipFileExt {
		gz, err := pgzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, nil, err
		}
		return gz, fh, nil
	}
	return fh, fh, nil
}

// readHeader checks the magic number and versions and returns k and the
// alphabet size.
func readHeader(r io.Reader, magic [8]byte, buf []byte) (int, int, error) {
	n, err := io.ReadFull(r, buf[:8])
	if err != nil {
		return 0, 0, err
	}
	if n < 8 {
		return 0, 0, ErrBrokenFile
	}
	for i := 0; i < 8; i++ {
		if magic[i] != buf[i] {
			return 0, 0, ErrInvalidFileFormat
		}
	}

	n, err = io.ReadFull(r, buf[:8])
	if err != nil {
		return 0, 0, err
	}
	if n < 8 {
		return 0, 0, ErrBrokenFile
	}
	if MainVersion != buf[0] {
		return 0, 0, ErrVersionMismatch
	}
	return int(buf[2]), int(buf[3]), nil
}

func readOffsets(file string) ([]uint64, int, int, error) {
	rdr, closer, err := openDataReader(file)
	if err != nil {
		return nil, 0, 0, err
	}
	defer closer.Close()
	r := bufio.NewReaderSize(rdr, BufferSize)

	buf := make([]byte, 8)
	k, a, err := readHeader(r, MagicOffsets, buf)
	if err != nil {
		return nil, 0, 0, err
	}

	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, 0, 0, err
	}
	nCells := le.Uint64(buf)

	offsets := make([]uint64, nCells)
	for i := range offsets {
		if _, err = io.ReadFull(r, buf); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil, 0, 0, ErrBrokenFile
			}
			return nil, 0, 0, err
		}
		offsets[i] = le.Uint64(buf)
	}

	return offsets, k, a, nil
}

func readPostings(file string) ([]byte, int, uint64, error) {
	rdr, closer, err := openDataReader(file)
	if err != nil {
		return nil, 0, 0, err
	}
	defer closer.Close()
	r := bufio.NewReaderSize(rdr, BufferSize)

	buf := make([]byte, 16)
	if _, _, err = readHeader(r, MagicPostings, buf); err != nil {
		return nil, 0, 0, err
	}

	if _, err = io.ReadFull(r, buf[:16]); err != nil {
		return nil, 0, 0, err
	}
	nSeqs := int(le.Uint64(buf[:8]))
	nEntries := le.Uint64(buf[8:16])

	entries := make([]byte, nEntries*PostingSize)
	if _, err = io.ReadFull(r, entries); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, 0, 0, ErrBrokenFile
		}
		return nil, 0, 0, err
	}

	return entries, nSeqs, nEntries, nil
}
