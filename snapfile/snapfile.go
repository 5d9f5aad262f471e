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

// Package snapfile stores one snapshot stream and its instructions image in
// a single file. Every file carries a random id and the id of the file it
// was written over, so a unit is never loaded on top of the wrong program.
//
// Layout, integers big-endian:
//
//	magic     [8]byte "HEAPSNP\x00"
//	format    uint8
//	kind      uint8
//	flags     uint8   bit 0: payload is snappy compressed
//	unit      uint32  loading unit id, 0 unless kind is unit
//	id        [16]byte
//	parent    [16]byte zero when the stream has no parent file
//	data len  uint64  stored length of the stream
//	image len uint64  stored length of the image
//	checksum  uint32  crc32c over the stored payload
//	payload   stream bytes then image bytes
package snapfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goerrors "gopkg.in/src-d/go-errors.v1"

	"github.com/dolthub/heapsnap/snapshot"
	"github.com/dolthub/heapsnap/util/iohelp"
)

// FormatVersion is the version of the file layout written by Encode.
const FormatVersion = 1

const (
	magic = "HEAPSNP\x00"

	flagCompressed = 1 << 0

	headerSize = len(magic) + 1 + 1 + 1 + 4 + 16 + 16 + 8 + 8 + 4
)

var (
	ErrChecksum = goerrors.NewKind("snapshot file checksum mismatch: stored %08x, computed %08x")
	ErrFormat   = goerrors.NewKind("unsupported snapshot file format %d")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// File is a decoded snapshot file.
type File struct {
	Kind   snapshot.Kind
	Unit   int32
	ID     uuid.UUID
	Parent uuid.UUID
	Data   []byte
	Image  []byte

	// Compressed reports how the payload was stored.
	Compressed bool
}

// FromSnapshot wraps |snap| in a new file with a fresh id. |parent| is the
// file whose objects are the snapshot's base objects, or nil.
func FromSnapshot(snap *snapshot.Snapshot, unit int32, parent *File) *File {
	f := &File{
		Kind:  snap.Kind,
		Unit:  unit,
		ID:    uuid.New(),
		Data:  snap.Data,
		Image: snap.Image,
	}
	if parent != nil {
		f.Parent = parent.ID
	}
	return f
}

// HasParent reports whether the file was written over another file.
func (f *File) HasParent() bool {
	return f.Parent != uuid.Nil
}

// CheckParent verifies that |parent| is the file |f| was written over. A nil
// |parent| is only valid for files without one.
func (f *File) CheckParent(parent *File) error {
	if parent == nil {
		if f.HasParent() {
			return snapshot.ErrParentMismatch.New(fmt.Sprintf("%s %s needs parent %s", f.Kind, f.ID, f.Parent))
		}
		return nil
	}
	if f.Parent != parent.ID {
		return snapshot.ErrParentMismatch.New(fmt.Sprintf("%s %s was written over %s, not %s", f.Kind, f.ID, f.Parent, parent.ID))
	}
	var want snapshot.Kind
	switch f.Kind {
	case snapshot.ProgramKind:
		want = snapshot.FullKind
	case snapshot.UnitKind:
		want = snapshot.ProgramKind
	default:
		return snapshot.ErrParentMismatch.New(fmt.Sprintf("%s snapshots have no parent", f.Kind))
	}
	if parent.Kind != want {
		return snapshot.ErrParentMismatch.New(fmt.Sprintf("%s over a %s snapshot", f.Kind, parent.Kind))
	}
	return nil
}

// Encode writes |f| to |w|, compressing the payload if |compress| is set.
func (f *File) Encode(w io.Writer, compress bool) error {
	data, img := f.Data, f.Image
	var flags uint8
	if compress {
		flags |= flagCompressed
		data = snappy.Encode(nil, data)
		img = snappy.Encode(nil, img)
	}
	crc := crc32.Update(crc32.Checksum(data, crcTable), crcTable, img)

	err := iohelp.WriteIfNoErr(w, []byte(magic), nil)
	err = iohelp.WritePrimIfNoErr(w, uint8(FormatVersion), err)
	err = iohelp.WritePrimIfNoErr(w, uint8(f.Kind), err)
	err = iohelp.WritePrimIfNoErr(w, flags, err)
	err = iohelp.WritePrimIfNoErr(w, uint32(f.Unit), err)
	err = iohelp.WriteIfNoErr(w, f.ID[:], err)
	err = iohelp.WriteIfNoErr(w, f.Parent[:], err)
	err = iohelp.WritePrimIfNoErr(w, uint64(len(data)), err)
	err = iohelp.WritePrimIfNoErr(w, uint64(len(img)), err)
	err = iohelp.WritePrimIfNoErr(w, crc, err)
	err = iohelp.WriteIfNoErr(w, data, err)
	return iohelp.WriteIfNoErr(w, img, err)
}

// Decode parses a file held in |buf|. Uncompressed payloads alias |buf|.
func Decode(buf []byte) (*File, error) {
	if len(buf) < headerSize {
		if len(buf) >= len(magic) && string(buf[:len(magic)]) != magic {
			return nil, snapshot.ErrBadMagic.New("wrong file magic")
		}
		return nil, snapshot.ErrTruncated.New(len(buf), headerSize-len(buf))
	}
	if string(buf[:len(magic)]) != magic {
		return nil, snapshot.ErrBadMagic.New("wrong file magic")
	}

	rd := iohelp.NewErrPreservingReader(bytes.NewReader(buf[len(magic):headerSize]))
	format, _ := rd.ReadUint8()
	kind, _ := rd.ReadUint8()
	flags, _ := rd.ReadUint8()
	unit, _ := rd.ReadUint32(binary.BigEndian)

	f := &File{Kind: snapshot.Kind(kind), Unit: int32(unit)}
	_, _ = rd.Read(f.ID[:])
	_, _ = rd.Read(f.Parent[:])
	dataLen, _ := rd.ReadUint64(binary.BigEndian)
	imgLen, _ := rd.ReadUint64(binary.BigEndian)
	stored, err := rd.ReadUint32(binary.BigEndian)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot file header")
	}

	if format != FormatVersion {
		return nil, ErrFormat.New(format)
	}
	if _, ok := snapshot.ParseKind(f.Kind.String()); !ok {
		return nil, snapshot.ErrBadMagic.New(fmt.Sprintf("unknown snapshot kind %d", kind))
	}

	payload := buf[headerSize:]
	if uint64(len(payload)) < dataLen || uint64(len(payload))-dataLen < imgLen {
		return nil, snapshot.ErrTruncated.New(len(buf), dataLen+imgLen-uint64(len(payload)))
	}
	data := payload[:dataLen]
	img := payload[dataLen : dataLen+imgLen]
	if crc := crc32.Update(crc32.Checksum(data, crcTable), crcTable, img); crc != stored {
		return nil, ErrChecksum.New(stored, crc)
	}

	if flags&flagCompressed != 0 {
		f.Compressed = true
		if data, err = snappy.Decode(nil, data); err != nil {
			return nil, errors.Wrap(err, "decompressing snapshot stream")
		}
		if img, err = snappy.Decode(nil, img); err != nil {
			return nil, errors.Wrap(err, "decompressing instructions image")
		}
	}
	f.Data, f.Image = data, img
	return f, nil
}

// WriteFile writes |f| to |path|. The file is written next to its final
// location and renamed into place.
func WriteFile(path string, f *File, compress bool) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "creating snapshot file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	err = f.Encode(bw, compress)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "writing %s", path)
}

// ReadFile reads and decodes the file at |path| into memory.
func ReadFile(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot file")
	}
	f, err := Decode(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return f, nil
}
