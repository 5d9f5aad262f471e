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

// Package image writes and reads instructions images: the executable
// region that carries raw machine code outside the clustered snapshot
// stream.
//
// Layout, all integers little-endian:
//
//	header:        magic(4) version(4) flags(4) reserved(4)
//	instructions:  { length(4) bytes(length) padding } aligned to 16
//	table:         { start(8) length(8) stackMapsRef(8) } aligned to 8
//
// An instructions offset names the length prefix of its blob.
package image

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dolthub/heapsnap/heap"
)

var Magic = [4]byte{'H', 'S', 'I', 'M'}

const (
	Version uint32 = 1

	HeaderSize = 16

	InstructionsAlignment = 16
	tableAlignment        = 8
	lengthPrefixSize      = 4
	TableEntrySize        = 24
)

var (
	ErrBadMagic   = errors.New("not an instructions image")
	ErrBadVersion = errors.New("unsupported instructions image version")
	ErrOutOfRange = errors.New("offset outside the instructions image")
)

// TableEntry maps one range of the image to the stack maps of the code
// running there. Start is an image offset; StackMaps is a snapshot ref id.
type TableEntry struct {
	Start     uint64
	Length    uint64
	StackMaps uint64
}

// Layout assigns image offsets. Writer lays out blobs with a Layout, so a
// plan computed ahead of time with a fresh Layout matches what the Writer
// later produces.
type Layout struct {
	size uint64
}

func NewLayout() *Layout {
	return &Layout{size: HeaderSize}
}

// Place reserves room for a blob of |n| bytes and returns its offset.
func (l *Layout) Place(n int) uint64 {
	off := align(l.size, InstructionsAlignment)
	l.size = off + lengthPrefixSize + uint64(n)
	return off
}

// TableOffset returns the offset the instructions table will start at.
func (l *Layout) TableOffset() uint64 {
	return align(l.size, tableAlignment)
}

func align(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// Writer accumulates an image in memory.
type Writer struct {
	layout *Layout
	buf    []byte
	codes  []heap.Ref
}

func NewWriter() *Writer {
	w := &Writer{layout: NewLayout(), buf: make([]byte, HeaderSize)}
	copy(w.buf, Magic[:])
	binary.LittleEndian.PutUint32(w.buf[4:], Version)
	return w
}

// EmitInstructions appends |bytes| on behalf of |code| and returns the
// offset of the blob.
func (w *Writer) EmitInstructions(bytes []byte, code heap.Ref) uint64 {
	off := w.layout.Place(len(bytes))
	w.pad(off)
	var n [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(bytes)))
	w.buf = append(w.buf, n[:]...)
	w.buf = append(w.buf, bytes...)
	w.codes = append(w.codes, code)
	return off
}

// NumInstructions returns the number of blobs emitted so far.
func (w *Writer) NumInstructions() int {
	return len(w.codes)
}

// WriteTable appends the instructions table at |at|, which must be the
// current TableOffset.
func (w *Writer) WriteTable(at uint64, entries []TableEntry) error {
	if at != w.layout.TableOffset() {
		return errors.Errorf("instructions table planned at %d, image ends at %d", at, w.layout.TableOffset())
	}
	w.pad(at)
	for _, e := range entries {
		var b [TableEntrySize]byte
		binary.LittleEndian.PutUint64(b[0:], e.Start)
		binary.LittleEndian.PutUint64(b[8:], e.Length)
		binary.LittleEndian.PutUint64(b[16:], e.StackMaps)
		w.buf = append(w.buf, b[:]...)
	}
	w.layout.size = uint64(len(w.buf))
	return nil
}

func (w *Writer) pad(to uint64) {
	for uint64(len(w.buf)) < to {
		w.buf = append(w.buf, 0)
	}
}

// Bytes returns the image.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Instructions is a view of one blob of a mapped image.
type Instructions struct {
	Offset uint64
	Bytes  []byte
}

// Reader reads a mapped image. It never copies instruction bytes.
type Reader struct {
	data []byte
}

// NewReader validates the header of |data|. An empty image is valid and
// holds no instructions.
func NewReader(data []byte) (*Reader, error) {
	if len(data) == 0 {
		return &Reader{}, nil
	}
	if len(data) < HeaderSize || [4]byte(data[:4]) != Magic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != Version {
		return nil, errors.Wrapf(ErrBadVersion, "version %d", v)
	}
	return &Reader{data: data}, nil
}

// Size returns the image size in bytes.
func (r *Reader) Size() int {
	return len(r.data)
}

// InstructionsAt returns the blob at |offset|.
func (r *Reader) InstructionsAt(offset uint64) (Instructions, error) {
	if offset < HeaderSize || offset+lengthPrefixSize > uint64(len(r.data)) {
		return Instructions{}, errors.Wrapf(ErrOutOfRange, "instructions at %d", offset)
	}
	n := uint64(binary.LittleEndian.Uint32(r.data[offset:]))
	start := offset + lengthPrefixSize
	if start+n > uint64(len(r.data)) {
		return Instructions{}, errors.Wrapf(ErrOutOfRange, "instructions at %d, length %d", offset, n)
	}
	return Instructions{Offset: offset, Bytes: r.data[start : start+n : start+n]}, nil
}

// Table returns the |n| instructions table entries starting at |at|.
func (r *Reader) Table(at uint64, n int) ([]TableEntry, error) {
	if n == 0 {
		return nil, nil
	}
	end := at + uint64(n)*TableEntrySize
	if at < HeaderSize || end > uint64(len(r.data)) {
		return nil, errors.Wrapf(ErrOutOfRange, "table at %d with %d entries", at, n)
	}
	out := make([]TableEntry, n)
	for i := range out {
		b := r.data[at+uint64(i)*TableEntrySize:]
		out[i] = TableEntry{
			Start:     binary.LittleEndian.Uint64(b[0:]),
			Length:    binary.LittleEndian.Uint64(b[8:]),
			StackMaps: binary.LittleEndian.Uint64(b[16:]),
		}
	}
	return out, nil
}
