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

package snapshot

import (
	"encoding/binary"
	"math"

	"github.com/dolthub/heapsnap/d"
)

const initialBufferSize = 4096

const (
	// refDataBits is the payload width of one byte of an encoded ref id.
	refDataBits = 7
	refByteMask = 1<<refDataBits - 1
	// refEndMarker is set on the final byte of an encoded ref id.
	refEndMarker = 1 << refDataBits
)

type binaryStreamWriter struct {
	buff   []byte
	offset uint32
	// lastRef is the previous ref id written with writeDeltaRef.
	lastRef int64
}

func newBinaryStreamWriter() binaryStreamWriter {
	return binaryStreamWriter{buff: make([]byte, initialBufferSize)}
}

func (b *binaryStreamWriter) data() []byte {
	return b.buff[0:b.offset]
}

func (b *binaryStreamWriter) pos() uint32 {
	return b.offset
}

func (b *binaryStreamWriter) ensureCapacity(n uint32) {
	length := uint32(len(b.buff))
	if b.offset+n <= length {
		return
	}

	old := b.buff

	for b.offset+n > length {
		length = length * 2
	}
	b.buff = make([]byte, length)

	copy(b.buff, old)
}

func (b *binaryStreamWriter) writeUint8(v uint8) {
	b.ensureCapacity(1)
	b.buff[b.offset] = v
	b.offset++
}

func (b *binaryStreamWriter) writeBool(v bool) {
	if v {
		b.writeUint8(1)
	} else {
		b.writeUint8(0)
	}
}

func (b *binaryStreamWriter) writeUnsigned(v uint64) {
	b.ensureCapacity(binary.MaxVarintLen64)
	count := binary.PutUvarint(b.buff[b.offset:], v)
	b.offset += uint32(count)
}

func (b *binaryStreamWriter) writeSigned(v int64) {
	b.ensureCapacity(binary.MaxVarintLen64)
	count := binary.PutVarint(b.buff[b.offset:], v)
	b.offset += uint32(count)
}

func (b *binaryStreamWriter) writeUint32(v uint32) {
	b.ensureCapacity(4)
	binary.BigEndian.PutUint32(b.buff[b.offset:], v)
	b.offset += 4
}

func (b *binaryStreamWriter) writeWord(v uint64) {
	b.ensureCapacity(8)
	binary.BigEndian.PutUint64(b.buff[b.offset:], v)
	b.offset += 8
}

func (b *binaryStreamWriter) writeFloat(v float64) {
	b.writeWord(math.Float64bits(v))
}

func (b *binaryStreamWriter) writeRaw(buff []byte) {
	size := uint32(len(buff))
	b.ensureCapacity(size)
	copy(b.buff[b.offset:], buff)
	b.offset += size
}

func (b *binaryStreamWriter) writeBytes(buff []byte) {
	b.writeUnsigned(uint64(len(buff)))
	b.writeRaw(buff)
}

func (b *binaryStreamWriter) writeString(v string) {
	b.writeUnsigned(uint64(len(v)))
	b.ensureCapacity(uint32(len(v)))
	copy(b.buff[b.offset:], v)
	b.offset += uint32(len(v))
}

// writeRefID writes |id| most significant group first, seven bits per byte.
// The last byte carries refEndMarker.
func (b *binaryStreamWriter) writeRefID(id int64) {
	d.PanicIfTrue(id < 0)
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(id&refByteMask) | refEndMarker
	for v := uint64(id) >> refDataBits; v != 0; v >>= refDataBits {
		i--
		tmp[i] = byte(v & refByteMask)
	}
	b.writeRaw(tmp[i:])
}

// writeDeltaRef writes |id| as a zigzag delta from the previous delta ref.
func (b *binaryStreamWriter) writeDeltaRef(id int64) {
	b.writeSigned(id - b.lastRef)
	b.lastRef = id
}

func (b *binaryStreamWriter) resetDelta() {
	b.lastRef = 0
}

// binaryStreamReader reads what binaryStreamWriter wrote. Reading past the
// end panics with a recoverable ErrTruncated.
type binaryStreamReader struct {
	buff    []byte
	offset  uint32
	lastRef int64
}

func (b *binaryStreamReader) pos() uint32 {
	return b.offset
}

func (b *binaryStreamReader) remaining() int {
	return len(b.buff) - int(b.offset)
}

func (b *binaryStreamReader) need(n uint32) {
	if uint64(b.offset)+uint64(n) > uint64(len(b.buff)) {
		d.PanicRecoverable(ErrTruncated.New(b.offset, n))
	}
}

func (b *binaryStreamReader) readUint8() uint8 {
	b.need(1)
	v := b.buff[b.offset]
	b.offset++
	return v
}

func (b *binaryStreamReader) readBool() bool {
	return b.readUint8() == 1
}

func (b *binaryStreamReader) readUnsigned() uint64 {
	v, count := binary.Uvarint(b.buff[b.offset:])
	if count <= 0 {
		d.PanicRecoverable(ErrTruncated.New(b.offset, 1))
	}
	b.offset += uint32(count)
	return v
}

func (b *binaryStreamReader) readSigned() int64 {
	v, count := binary.Varint(b.buff[b.offset:])
	if count <= 0 {
		d.PanicRecoverable(ErrTruncated.New(b.offset, 1))
	}
	b.offset += uint32(count)
	return v
}

func (b *binaryStreamReader) readUint32() uint32 {
	b.need(4)
	v := binary.BigEndian.Uint32(b.buff[b.offset:])
	b.offset += 4
	return v
}

func (b *binaryStreamReader) readWord() uint64 {
	b.need(8)
	v := binary.BigEndian.Uint64(b.buff[b.offset:])
	b.offset += 8
	return v
}

func (b *binaryStreamReader) readFloat() float64 {
	return math.Float64frombits(b.readWord())
}

// readRaw returns the next |count| bytes without copying.
func (b *binaryStreamReader) readRaw(count uint32) []byte {
	b.need(count)
	v := b.buff[b.offset : b.offset+count : b.offset+count]
	b.offset += count
	return v
}

func (b *binaryStreamReader) readBytes() []byte {
	n := b.readUnsigned()
	if n > uint64(b.remaining()) {
		d.PanicRecoverable(ErrTruncated.New(b.offset, n))
	}
	return b.readRaw(uint32(n))
}

func (b *binaryStreamReader) readString() string {
	return string(b.readBytes())
}

func (b *binaryStreamReader) readRefID() int64 {
	var v uint64
	for i := 0; ; i++ {
		if i == 10 {
			d.Panic("malformed ref id at offset %d", b.offset)
		}
		c := b.readUint8()
		v = v<<refDataBits | uint64(c&refByteMask)
		if c&refEndMarker != 0 {
			break
		}
	}
	if v > math.MaxInt64 {
		d.Panic("ref id overflow at offset %d", b.offset)
	}
	return int64(v)
}

func (b *binaryStreamReader) readDeltaRef() int64 {
	b.lastRef += b.readSigned()
	return b.lastRef
}

func (b *binaryStreamReader) resetDelta() {
	b.lastRef = 0
}
