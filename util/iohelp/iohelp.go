// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package iohelp

import (
	"encoding/binary"
	"io"
)

// WriteIfNoErr writes |b| to |w| unless |err| is already set, and returns
// the first error seen.
func WriteIfNoErr(w io.Writer, b []byte, err error) error {
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WritePrimIfNoErr writes the big-endian encoding of |v| unless |err| is
// already set.
func WritePrimIfNoErr(w io.Writer, v interface{}, err error) error {
	if err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, v)
}

// ErrPreservingReader remembers the first error returned by the wrapped
// reader. Every read after that fails with the same error, so callers can
// check once after a run of reads.
type ErrPreservingReader struct {
	R   io.Reader
	Err error
}

func NewErrPreservingReader(r io.Reader) *ErrPreservingReader {
	return &ErrPreservingReader{R: r}
}

func (r *ErrPreservingReader) Read(p []byte) (int, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	n, err := io.ReadFull(r.R, p)
	r.Err = err
	return n, err
}

func (r *ErrPreservingReader) ReadUint8() (uint8, error) {
	var v uint8
	err := r.readPrim(&v)
	return v, err
}

func (r *ErrPreservingReader) ReadUint32(order binary.ByteOrder) (uint32, error) {
	var v uint32
	if r.Err == nil {
		r.Err = binary.Read(r.R, order, &v)
	}
	return v, r.Err
}

func (r *ErrPreservingReader) ReadUint64(order binary.ByteOrder) (uint64, error) {
	var v uint64
	if r.Err == nil {
		r.Err = binary.Read(r.R, order, &v)
	}
	return v, r.Err
}

func (r *ErrPreservingReader) readPrim(v interface{}) error {
	if r.Err == nil {
		r.Err = binary.Read(r.R, binary.BigEndian, v)
	}
	return r.Err
}
